package api

import (
	"strings"
	"time"
)

// Role is a member of the fixed role enumeration.
type Role string

const (
	RoleAdmin       Role = "ADMIN"
	RoleDirector    Role = "DIRECTOR"
	RoleResearcher  Role = "RESEARCHER"
	RoleStudent     Role = "STUDENT"
	RoleCoordinator Role = "COORDINATOR"
	RoleInstitution Role = "INSTITUTION"
	RoleGuest       Role = "GUEST"
)

// Roles lists every role in declaration order.
var Roles = []Role{
	RoleAdmin,
	RoleDirector,
	RoleResearcher,
	RoleStudent,
	RoleCoordinator,
	RoleInstitution,
	RoleGuest,
}

// Valid reports whether r is a member of the enumeration.
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// SelfRegistrable reports whether a user may pick r when registering.
// ADMIN and COORDINATOR accounts are provisioned by an administrator.
func (r Role) SelfRegistrable() bool {
	switch r {
	case RoleDirector, RoleResearcher, RoleStudent, RoleInstitution, RoleGuest:
		return true
	}
	return false
}

// ParseRole converts s (case-insensitive) to a Role.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	return r, r.Valid()
}

// Plan is a subscription plan.
type Plan string

const (
	PlanFree          Plan = "FREE"
	PlanProfessional  Plan = "PROFESSIONAL"
	PlanInstitutional Plan = "INSTITUTIONAL"
)

// ParsePlan parses a plan name case-insensitively. An empty name is FREE.
func ParsePlan(s string) (Plan, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return PlanFree, true
	}
	switch p := Plan(strings.ToUpper(s)); p {
	case PlanFree, PlanProfessional, PlanInstitutional:
		return p, true
	default:
		return "", false
	}
}

// Level returns the plan's position in the upgrade order. Unknown plans
// rank with FREE.
func (p Plan) Level() int {
	switch p {
	case PlanProfessional:
		return 1
	case PlanInstitutional:
		return 2
	default:
		return 0
	}
}

// User is the identity record held by the user directory.
type User struct {
	ID               string
	Email            string
	PasswordHash     string
	FullName         string
	Role             Role
	SubscriptionPlan Plan
	Institution      string
	Phone            string
	Website          string
	Bio              string
	Specialization   string
	IsActive         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Public returns the client-facing view of u.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:               u.ID,
		Email:            u.Email,
		FullName:         u.FullName,
		Role:             u.Role,
		SubscriptionPlan: u.SubscriptionPlan,
		Institution:      u.Institution,
		Phone:            u.Phone,
		Website:          u.Website,
		Bio:              u.Bio,
		Specialization:   u.Specialization,
		IsActive:         u.IsActive,
		CreatedAt:        u.CreatedAt,
		UpdatedAt:        u.UpdatedAt,
	}
}

// PublicUser is the user as returned to clients. It has no password field.
type PublicUser struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	FullName         string    `json:"fullName"`
	Role             Role      `json:"role"`
	SubscriptionPlan Plan      `json:"subscriptionPlan"`
	Institution      string    `json:"institution,omitempty"`
	Phone            string    `json:"phone,omitempty"`
	Website          string    `json:"website,omitempty"`
	Bio              string    `json:"bio,omitempty"`
	Specialization   string    `json:"specialization,omitempty"`
	IsActive         bool      `json:"isActive"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// RegisterRequest is the body of POST /auth/register and POST /auth/users.
type RegisterRequest struct {
	Email            string `json:"email"`
	Password         string `json:"password"`
	FullName         string `json:"fullName"`
	Role             string `json:"role"`
	Institution      string `json:"institution,omitempty"`
	SubscriptionPlan string `json:"subscriptionPlan,omitempty"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ProfileUpdate is the body of PUT /auth/profile. Nil fields are left
// unchanged.
type ProfileUpdate struct {
	FullName       *string `json:"fullName,omitempty"`
	Phone          *string `json:"phone,omitempty"`
	Website        *string `json:"website,omitempty"`
	Bio            *string `json:"bio,omitempty"`
	Specialization *string `json:"specialization,omitempty"`
	Institution    *string `json:"institution,omitempty"`
}

// Empty reports whether the update changes nothing.
func (p *ProfileUpdate) Empty() bool {
	return p.FullName == nil && p.Phone == nil && p.Website == nil &&
		p.Bio == nil && p.Specialization == nil && p.Institution == nil
}

// Apply copies the set fields of p onto u.
func (p *ProfileUpdate) Apply(u *User) {
	if p.FullName != nil {
		u.FullName = strings.TrimSpace(*p.FullName)
	}
	if p.Phone != nil {
		u.Phone = strings.TrimSpace(*p.Phone)
	}
	if p.Website != nil {
		u.Website = strings.TrimSpace(*p.Website)
	}
	if p.Bio != nil {
		u.Bio = *p.Bio
	}
	if p.Specialization != nil {
		u.Specialization = strings.TrimSpace(*p.Specialization)
	}
	if p.Institution != nil {
		u.Institution = strings.TrimSpace(*p.Institution)
	}
}

// ChangePasswordRequest is the body of PUT /auth/change-password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// ResetRequest is the body of POST /auth/request-reset.
type ResetRequest struct {
	Email string `json:"email"`
}

// ConsumeResetRequest is the body of POST /auth/reset-password.
type ConsumeResetRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

// AuthResult is returned by register and login.
type AuthResult struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expiresAt"`
	User      PublicUser `json:"user"`
}

// Envelope is the success wrapper used by every endpoint.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}
