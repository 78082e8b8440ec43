// Package postgres provides a PostgreSQL user directory and reset token
// store. Connections come from a pgx/v5 pool exposed through database/sql,
// and the schema is managed with goose.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/rhuss/digsite/pkg/account"
	"github.com/rhuss/digsite/pkg/api"
	"github.com/rhuss/digsite/pkg/storage"
)

// PostgreSQL error codes the store translates.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// Store is a PostgreSQL-backed UserDirectory and ResetTokenStore.
type Store struct {
	db   *sql.DB
	pool *pgxpool.Pool // nil when built from a plain *sql.DB
}

// Ensure Store implements the account storage interfaces at compile time.
var (
	_ account.UserDirectory   = (*Store)(nil)
	_ account.ResetTokenStore = (*Store)(nil)
)

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{db: stdlib.OpenDBFromPool(pool), pool: pool}

	if cfg.MigrateOnStart {
		if err := Migrate(ctx, s.db); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

// NewFromDB wraps an existing database handle. The caller owns db.
func NewFromDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB { return s.db }

const userColumns = `id, email, password_hash, full_name, role, subscription_plan,
	institution, phone, website, bio, specialization, is_active, created_at, updated_at`

// CreateUser inserts a user. A duplicate email yields ErrConflict.
func (s *Store) CreateUser(ctx context.Context, u *api.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		u.ID, u.Email, u.PasswordHash, u.FullName, string(u.Role), string(u.SubscriptionPlan),
		u.Institution, u.Phone, u.Website, u.Bio, u.Specialization, u.IsActive, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		if pgCode(err) == codeUniqueViolation {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

// GetUserByID returns the user with the given id.
func (s *Store) GetUserByID(ctx context.Context, id string) (*api.User, error) {
	if !api.ValidateUserID(id) {
		return nil, storage.ErrNotFound
	}
	return s.getUser(ctx, "id", id)
}

// GetUserByEmail returns the user with the given normalised email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*api.User, error) {
	return s.getUser(ctx, "email", email)
}

func (s *Store) getUser(ctx context.Context, column, value string) (*api.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+column+` = $1`, value)

	var u api.User
	var role, plan string
	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &role, &plan,
		&u.Institution, &u.Phone, &u.Website, &u.Bio, &u.Specialization, &u.IsActive,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	u.Role = api.Role(role)
	u.SubscriptionPlan = api.Plan(plan)
	return &u, nil
}

// UpdateProfile writes the profile fields of u.
func (s *Store) UpdateProfile(ctx context.Context, u *api.User) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET full_name = $1, institution = $2, phone = $3, website = $4,
		    bio = $5, specialization = $6, updated_at = $7
		WHERE id = $8
	`,
		u.FullName, u.Institution, u.Phone, u.Website, u.Bio, u.Specialization, u.UpdatedAt, u.ID,
	)
	if err != nil {
		return fmt.Errorf("updating profile: %w", err)
	}
	return expectOne(res)
}

// UpdatePassword replaces a user's password hash.
func (s *Store) UpdatePassword(ctx context.Context, userID, hash string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`,
		hash, at, userID)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	return expectOne(res)
}

// ReplacePassword writes the new password hash and consumes the user's
// outstanding reset tokens in one transaction.
func (s *Store) ReplacePassword(ctx context.Context, userID, hash string, at time.Time) error {
	return withTx(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`,
			hash, at, userID)
		if err != nil {
			return fmt.Errorf("updating password: %w", err)
		}
		if err := expectOne(res); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE password_reset_tokens SET consumed_at = $1 WHERE user_id = $2 AND consumed_at IS NULL`,
			at, userID,
		); err != nil {
			return fmt.Errorf("consuming reset tokens: %w", err)
		}
		return nil
	})
}

// CreateResetToken invalidates the user's outstanding tokens and stores t
// in one transaction.
func (s *Store) CreateResetToken(ctx context.Context, t *account.ResetToken) error {
	return withTx(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE password_reset_tokens SET consumed_at = $1 WHERE user_id = $2 AND consumed_at IS NULL`,
			t.IssuedAt, t.UserID,
		); err != nil {
			return fmt.Errorf("invalidating reset tokens: %w", err)
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO password_reset_tokens (token_hash, user_id, issued_at, expires_at)
			VALUES ($1, $2, $3, $4)
		`, t.TokenHash, t.UserID, t.IssuedAt, t.ExpiresAt)
		switch pgCode(err) {
		case "":
		case codeUniqueViolation:
			return storage.ErrConflict
		case codeForeignKeyViolation:
			return storage.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("inserting reset token: %w", err)
		}
		return nil
	})
}

// GetResetToken returns the token with the given hash.
func (s *Store) GetResetToken(ctx context.Context, tokenHash string) (*account.ResetToken, error) {
	var t account.ResetToken
	var consumed sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT token_hash, user_id, issued_at, expires_at, consumed_at
		FROM password_reset_tokens WHERE token_hash = $1
	`, tokenHash).Scan(&t.TokenHash, &t.UserID, &t.IssuedAt, &t.ExpiresAt, &consumed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying reset token: %w", err)
	}
	if consumed.Valid {
		t.ConsumedAt = &consumed.Time
	}
	return &t, nil
}

// ConsumeResetToken locks the token row, checks it, writes the new
// password hash, and consumes every outstanding token of the user. Any
// failure rolls the whole step back.
func (s *Store) ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time, newHash string) error {
	return withTx(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		var t account.ResetToken
		var consumed sql.NullTime
		err := tx.QueryRowContext(ctx, `
			SELECT user_id, expires_at, consumed_at
			FROM password_reset_tokens WHERE token_hash = $1
			FOR UPDATE
		`, tokenHash).Scan(&t.UserID, &t.ExpiresAt, &consumed)
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("locking reset token: %w", err)
		}
		if consumed.Valid {
			t.ConsumedAt = &consumed.Time
		}
		if !t.ValidAt(now) {
			return storage.ErrNotFound
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`,
			newHash, now, t.UserID)
		if err != nil {
			return fmt.Errorf("updating password: %w", err)
		}
		if err := expectOne(res); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE password_reset_tokens SET consumed_at = $1 WHERE user_id = $2 AND consumed_at IS NULL`,
			now, t.UserID,
		); err != nil {
			return fmt.Errorf("consuming reset tokens: %w", err)
		}
		return nil
	})
}

// PurgeResetTokens deletes tokens expired or consumed before the cutoff.
func (s *Store) PurgeResetTokens(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM password_reset_tokens
		WHERE expires_at < $1 OR (consumed_at IS NOT NULL AND consumed_at < $1)
	`, before)
	if err != nil {
		return 0, fmt.Errorf("purging reset tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purging reset tokens: %w", err)
	}
	return n, nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database handle and, when owned, the pool.
func (s *Store) Close() error {
	err := s.db.Close()
	if s.pool != nil {
		s.pool.Close()
	}
	return err
}

// expectOne maps an update that touched no row to ErrNotFound.
func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// pgCode returns the SQLSTATE of a PostgreSQL error, or "".
func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
