// Package identity is the durable record of users, credentials, and
// roles. It owns every mutation of user state; everything else in the
// system reads roles through it.
package identity

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pkamenev/toolgate/internal/model"
)

var (
	ErrDuplicateUser      = errors.New("identity: user already exists")
	ErrInvalidRole        = errors.New("identity: invalid role")
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
	ErrAccountLocked      = errors.New("identity: account locked")
	ErrUnknownUser        = errors.New("identity: unknown user")
)

// LockoutPolicy bounds consecutive credential failures. Threshold failures
// within Window of each other lock the account until the window lapses.
type LockoutPolicy struct {
	Threshold int
	Window    time.Duration
}

// DefaultLockout locks after 5 consecutive failures within 15 minutes.
var DefaultLockout = LockoutPolicy{Threshold: 5, Window: 15 * time.Minute}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	pass_hash  BLOB NOT NULL,
	salt       BLOB NOT NULL,
	role       TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	fail_count INTEGER NOT NULL DEFAULT 0,
	last_fail  INTEGER NOT NULL DEFAULT 0
);
`

// Store is the SQLite-backed identity store. Writes are serialized by a
// mutex so a role or counter update is never observed half-applied; reads
// go straight to the database.
type Store struct {
	db      *sql.DB
	lockout LockoutPolicy
	mu      sync.Mutex
	now     func() time.Time

	// Dummy credential hashed at startup so verification work is done
	// even for unknown ids, keeping response time independent of user
	// existence.
	dummySalt []byte
	dummyHash []byte
}

// UserInfo is the read-only projection of a user record.
type UserInfo struct {
	ID        string
	Role      model.Role
	CreatedAt time.Time
}

// Open opens (or creates) the identity database at path.
func Open(path string, lockout LockoutPolicy) (*Store, error) {
	if lockout.Threshold <= 0 {
		lockout = DefaultLockout
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("identity: open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("identity: create schema: %w", err)
	}

	dummySalt := make([]byte, saltSize)
	if _, err := rand.Read(dummySalt); err != nil {
		db.Close()
		return nil, fmt.Errorf("identity: generate dummy salt: %w", err)
	}

	return &Store{
		db:        db,
		lockout:   lockout,
		now:       time.Now,
		dummySalt: dummySalt,
		dummyHash: hashPassword("", dummySalt),
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateUser stores a new user with a salted slow-hashed credential.
func (s *Store) CreateUser(ctx context.Context, id, password string, role model.Role) error {
	if id == "" {
		return fmt.Errorf("identity: user id must not be empty")
	}
	if !role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("identity: generate salt: %w", err)
	}
	hash := hashPassword(password, salt)

	s.mu.Lock()
	defer s.mu.Unlock()

	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, id).Scan(&exists)
	if err == nil {
		return fmt.Errorf("%w: %q", ErrDuplicateUser, id)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("identity: lookup user: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, pass_hash, salt, role, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, hash, salt, string(role), s.now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("identity: insert user: %w", err)
	}
	return nil
}

// VerifyCredentials checks a password against the stored hash and returns
// the user's role on match. Comparison runs in constant time and performs
// the same hashing work whether or not the id exists, so timing does not
// reveal user existence. Consecutive failures within the lockout window
// lock the account: once locked, even a correct password is rejected
// until the window lapses.
func (s *Store) VerifyCredentials(ctx context.Context, id, password string) (model.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		hash, salt []byte
		roleStr    string
		failCount  int
		lastFail   int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT pass_hash, salt, role, fail_count, last_fail FROM users WHERE id = ?`, id).
		Scan(&hash, &salt, &roleStr, &failCount, &lastFail)
	if errors.Is(err, sql.ErrNoRows) {
		// Burn the same hashing cost as the known-user path.
		candidate := hashPassword(password, s.dummySalt)
		subtle.ConstantTimeCompare(candidate, s.dummyHash)
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", fmt.Errorf("identity: lookup user: %w", err)
	}

	now := s.now().UTC()
	windowActive := lastFail > 0 && now.Sub(time.Unix(lastFail, 0)) <= s.lockout.Window

	if windowActive && failCount >= s.lockout.Threshold {
		return "", ErrAccountLocked
	}

	candidate := hashPassword(password, salt)
	if subtle.ConstantTimeCompare(candidate, hash) == 1 {
		if failCount > 0 {
			if _, err := s.db.ExecContext(ctx,
				`UPDATE users SET fail_count = 0, last_fail = 0 WHERE id = ?`, id); err != nil {
				return "", fmt.Errorf("identity: reset failure counter: %w", err)
			}
		}
		return model.Role(roleStr), nil
	}

	if windowActive {
		failCount++
	} else {
		failCount = 1
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE users SET fail_count = ?, last_fail = ? WHERE id = ?`,
		failCount, now.Unix(), id); err != nil {
		return "", fmt.Errorf("identity: record failure: %w", err)
	}
	return "", ErrInvalidCredentials
}

// GetRole returns the user's current role.
func (s *Store) GetRole(ctx context.Context, id string) (model.Role, error) {
	var roleStr string
	err := s.db.QueryRowContext(ctx, `SELECT role FROM users WHERE id = ?`, id).Scan(&roleStr)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %q", ErrUnknownUser, id)
	}
	if err != nil {
		return "", fmt.Errorf("identity: lookup role: %w", err)
	}
	return model.Role(roleStr), nil
}

// SetRole changes a user's role. The change is visible to the session
// authority on the very next validation.
func (s *Store) SetRole(ctx context.Context, id string, role model.Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE users SET role = ? WHERE id = ?`, string(role), id)
	if err != nil {
		return fmt.Errorf("identity: update role: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("identity: update role: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %q", ErrUnknownUser, id)
	}
	return nil
}

// SetPassword replaces a user's credential with a freshly salted hash and
// clears any lockout state.
func (s *Store) SetPassword(ctx context.Context, id, password string) error {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("identity: generate salt: %w", err)
	}
	hash := hashPassword(password, salt)

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET pass_hash = ?, salt = ?, fail_count = 0, last_fail = 0 WHERE id = ?`,
		hash, salt, id)
	if err != nil {
		return fmt.Errorf("identity: update credential: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("identity: update credential: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %q", ErrUnknownUser, id)
	}
	return nil
}

// ListUsers returns all users ordered by id.
func (s *Store) ListUsers(ctx context.Context) ([]UserInfo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, role, created_at FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("identity: list users: %w", err)
	}
	defer rows.Close()

	var users []UserInfo
	for rows.Next() {
		var (
			u       UserInfo
			roleStr string
			created int64
		)
		if err := rows.Scan(&u.ID, &roleStr, &created); err != nil {
			return nil, fmt.Errorf("identity: scan user: %w", err)
		}
		u.Role = model.Role(roleStr)
		u.CreatedAt = time.Unix(created, 0).UTC()
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("identity: list users: %w", err)
	}
	return users, nil
}
