// Package auth provides token authentication for the HTTP API.
//
// Passwords are stored as bcrypt hashes. A successful login issues an
// opaque bearer token with an expiry; tokens live in memory, so a restart
// invalidates all sessions.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Authentication errors.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrWeakPassword       = errors.New("password too short")
)

// Role grants a coarse capability level.
type Role string

const (
	// RoleAdmin can publish versions and manage users.
	RoleAdmin Role = "admin"
	// RoleReader can query and read traces.
	RoleReader Role = "reader"
)

// User is an API account. PasswordHash never leaves the package.
type User struct {
	Username  string    `json:"username"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`

	passwordHash []byte
}

// TokenResponse is returned on successful authentication.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Username  string    `json:"username"`
	Role      Role      `json:"role"`
}

// Config tunes the authenticator.
type Config struct {
	MinPasswordLength int
	TokenExpiry       time.Duration
}

// DefaultConfig returns sensible authentication defaults.
func DefaultConfig() Config {
	return Config{
		MinPasswordLength: 8,
		TokenExpiry:       24 * time.Hour,
	}
}

type session struct {
	username  string
	expiresAt time.Time
}

// Authenticator manages users and bearer tokens.
//
// Thread Safety:
//
//	Safe for concurrent use.
type Authenticator struct {
	mu       sync.RWMutex
	config   Config
	users    map[string]*User
	sessions map[string]session

	now func() time.Time
}

// New creates an authenticator. Zero config fields fall back to defaults.
func New(config Config) *Authenticator {
	def := DefaultConfig()
	if config.MinPasswordLength <= 0 {
		config.MinPasswordLength = def.MinPasswordLength
	}
	if config.TokenExpiry <= 0 {
		config.TokenExpiry = def.TokenExpiry
	}
	return &Authenticator{
		config:   config,
		users:    make(map[string]*User),
		sessions: make(map[string]session),
		now:      time.Now,
	}
}

// CreateUser registers an account with a bcrypt-hashed password.
func (a *Authenticator) CreateUser(username, password string, role Role) (*User, error) {
	if username == "" {
		return nil, fmt.Errorf("empty username: %w", ErrInvalidCredentials)
	}
	if len(password) < a.config.MinPasswordLength {
		return nil, fmt.Errorf("%w: minimum %d characters", ErrWeakPassword, a.config.MinPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.users[username]; exists {
		return nil, fmt.Errorf("%q: %w", username, ErrUserExists)
	}

	u := &User{
		Username:     username,
		Role:         role,
		CreatedAt:    a.now().UTC(),
		passwordHash: hash,
	}
	a.users[username] = u
	return u, nil
}

// Authenticate checks credentials and issues a bearer token.
func (a *Authenticator) Authenticate(username, password string) (*TokenResponse, error) {
	a.mu.RLock()
	u, ok := a.users[username]
	a.mu.RUnlock()
	if !ok {
		// Burn a comparison anyway so missing users cost the same as
		// wrong passwords.
		bcrypt.CompareHashAndPassword([]byte("$2a$10$0000000000000000000000000000000000000000000000000000"), []byte(password))
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword(u.passwordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := generateToken()
	if err != nil {
		return nil, err
	}

	expires := a.now().Add(a.config.TokenExpiry)
	a.mu.Lock()
	a.sessions[token] = session{username: username, expiresAt: expires}
	a.mu.Unlock()

	return &TokenResponse{
		Token:     token,
		ExpiresAt: expires.UTC(),
		Username:  u.Username,
		Role:      u.Role,
	}, nil
}

// ValidateToken resolves a bearer token to its user. Expired tokens are
// evicted on sight.
func (a *Authenticator) ValidateToken(token string) (*User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok := a.sessions[token]
	if !ok {
		return nil, ErrInvalidToken
	}
	if a.now().After(s.expiresAt) {
		delete(a.sessions, token)
		return nil, ErrInvalidToken
	}
	u, ok := a.users[s.username]
	if !ok {
		delete(a.sessions, token)
		return nil, ErrInvalidToken
	}
	return u, nil
}

// Revoke drops a token.
func (a *Authenticator) Revoke(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.sessions, token)
}

// UserCount returns the number of registered users.
func (a *Authenticator) UserCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.users)
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
