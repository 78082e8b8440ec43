package api

import (
	"fmt"
	"net/mail"
	"net/url"
	"strings"
)

// ValidationConfig holds configurable limits for request validation.
type ValidationConfig struct {
	MinPasswordLength int
	MaxPasswordBytes  int
	MaxNameLength     int
	MaxBioLength      int
}

// DefaultValidationConfig returns a ValidationConfig with sensible defaults.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		MinPasswordLength: 8,
		MaxPasswordBytes:  72, // bcrypt input limit
		MaxNameLength:     200,
		MaxBioLength:      4000,
	}
}

// NormalizeEmail trims and lower-cases an email address. Emails are unique
// and compared case-insensitively, so every lookup goes through here.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// validEmail accepts a bare address (no display name) with a dotted domain.
func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}
	at := strings.LastIndexByte(email, '@')
	return at > 0 && strings.Contains(email[at+1:], ".")
}

// fieldErrors accumulates FieldErrors in order.
type fieldErrors []FieldError

func (f *fieldErrors) add(field, format string, args ...any) {
	*f = append(*f, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (f fieldErrors) err() *APIError {
	if len(f) == 0 {
		return nil
	}
	return NewValidationErrors(f)
}

func (f *fieldErrors) checkPassword(field, password string, cfg ValidationConfig) {
	switch {
	case password == "":
		f.add(field, "%s is required", field)
	case len([]rune(password)) < cfg.MinPasswordLength:
		f.add(field, "%s must be at least %d characters", field, cfg.MinPasswordLength)
	case cfg.MaxPasswordBytes > 0 && len(password) > cfg.MaxPasswordBytes:
		f.add(field, "%s must be at most %d bytes", field, cfg.MaxPasswordBytes)
	}
}

// ValidateRegister checks a registration request. When provisioning is
// false only self-registrable roles and the FREE plan are accepted. The returned Role is the
// parsed role when validation succeeds.
func ValidateRegister(req *RegisterRequest, provisioning bool, cfg ValidationConfig) (Role, *APIError) {
	var errs fieldErrors

	email := NormalizeEmail(req.Email)
	if email == "" {
		errs.add("email", "email is required")
	} else if !validEmail(email) {
		errs.add("email", "email must be a valid address")
	}

	errs.checkPassword("password", req.Password, cfg)

	name := strings.TrimSpace(req.FullName)
	if name == "" {
		errs.add("fullName", "fullName is required")
	} else if cfg.MaxNameLength > 0 && len([]rune(name)) > cfg.MaxNameLength {
		errs.add("fullName", "fullName must be at most %d characters", cfg.MaxNameLength)
	}

	role, ok := ParseRole(req.Role)
	switch {
	case strings.TrimSpace(req.Role) == "":
		errs.add("role", "role is required")
	case !ok:
		errs.add("role", "role %q is not recognised", req.Role)
	case !provisioning && !role.SelfRegistrable():
		errs.add("role", "role %s cannot be chosen at registration", role)
	}

	switch plan, ok := ParsePlan(req.SubscriptionPlan); {
	case !ok:
		errs.add("subscriptionPlan", "subscriptionPlan %q is not recognised", req.SubscriptionPlan)
	case !provisioning && plan != PlanFree:
		errs.add("subscriptionPlan", "subscriptionPlan %s cannot be chosen at registration", plan)
	}

	return role, errs.err()
}

// ValidateLogin checks that both credentials are present. Format checks are
// deliberately skipped: a malformed email simply fails to authenticate.
func ValidateLogin(req *LoginRequest) *APIError {
	var errs fieldErrors
	if NormalizeEmail(req.Email) == "" {
		errs.add("email", "email is required")
	}
	if req.Password == "" {
		errs.add("password", "password is required")
	}
	return errs.err()
}

// ValidateProfileUpdate checks the fields present in a profile update.
func ValidateProfileUpdate(req *ProfileUpdate, cfg ValidationConfig) *APIError {
	var errs fieldErrors

	if req.Empty() {
		errs.add("body", "at least one field must be provided")
		return errs.err()
	}

	if req.FullName != nil {
		name := strings.TrimSpace(*req.FullName)
		if name == "" {
			errs.add("fullName", "fullName cannot be empty")
		} else if cfg.MaxNameLength > 0 && len([]rune(name)) > cfg.MaxNameLength {
			errs.add("fullName", "fullName must be at most %d characters", cfg.MaxNameLength)
		}
	}

	if req.Phone != nil && *req.Phone != "" && !validPhone(*req.Phone) {
		errs.add("phone", "phone must be a valid phone number")
	}

	if req.Website != nil && *req.Website != "" {
		u, err := url.Parse(strings.TrimSpace(*req.Website))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs.add("website", "website must be an absolute http or https URL")
		}
	}

	if req.Bio != nil && cfg.MaxBioLength > 0 && len([]rune(*req.Bio)) > cfg.MaxBioLength {
		errs.add("bio", "bio must be at most %d characters", cfg.MaxBioLength)
	}

	if req.Specialization != nil && strings.TrimSpace(*req.Specialization) == "" {
		errs.add("specialization", "specialization cannot be empty")
	}

	if req.Institution != nil && strings.TrimSpace(*req.Institution) == "" {
		errs.add("institution", "institution cannot be empty")
	}

	return errs.err()
}

// validPhone accepts an optional leading '+' followed by 7 to 15 digits,
// allowing spaces, dashes, dots, and parentheses as separators.
func validPhone(phone string) bool {
	digits := 0
	for i, r := range strings.TrimSpace(phone) {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
		default:
			return false
		}
	}
	return digits >= 7 && digits <= 15
}

// ValidateChangePassword checks a password change request.
func ValidateChangePassword(req *ChangePasswordRequest, cfg ValidationConfig) *APIError {
	var errs fieldErrors
	if req.CurrentPassword == "" {
		errs.add("currentPassword", "currentPassword is required")
	}
	errs.checkPassword("newPassword", req.NewPassword, cfg)
	if len(errs) == 0 && req.CurrentPassword == req.NewPassword {
		errs.add("newPassword", "newPassword must differ from currentPassword")
	}
	return errs.err()
}

// ValidateResetRequest checks a password reset request.
func ValidateResetRequest(req *ResetRequest) *APIError {
	var errs fieldErrors
	email := NormalizeEmail(req.Email)
	if email == "" {
		errs.add("email", "email is required")
	} else if !validEmail(email) {
		errs.add("email", "email must be a valid address")
	}
	return errs.err()
}

// ValidateConsumeReset checks a reset consumption request.
func ValidateConsumeReset(req *ConsumeResetRequest, cfg ValidationConfig) *APIError {
	var errs fieldErrors
	if strings.TrimSpace(req.Token) == "" {
		errs.add("token", "token is required")
	}
	errs.checkPassword("newPassword", req.NewPassword, cfg)
	return errs.err()
}
