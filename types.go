package teamgate

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/MrEthical07/teamgate/mail"
)

// Role is the closed set of account roles.
type Role string

const (
	RoleAdministrator Role = "admin"
	RoleLead          Role = "lead"
	RoleContributor   Role = "developer"
)

// Roles lists every valid role in privilege order.
func Roles() []Role {
	return []Role{RoleAdministrator, RoleLead, RoleContributor}
}

// ParseRole maps a wire name to a Role. "contributor" is accepted as an
// alias of "developer". Anything else fails with ErrInvalidRole.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "admin", "administrator":
		return RoleAdministrator, nil
	case "lead":
		return RoleLead, nil
	case "developer", "contributor":
		return RoleContributor, nil
	}
	return "", ErrInvalidRole
}

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdministrator, RoleLead, RoleContributor:
		return true
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

// roleNames returns the wire names accepted inside session tokens.
func roleNames() []string {
	out := make([]string, 0, 3)
	for _, r := range Roles() {
		out = append(out, string(r))
	}
	return out
}

// Account is a registered user. Email is stored normalized and is unique.
type Account struct {
	ID           string
	Email        string
	Name         string
	Role         Role
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewAccount is the record handed to AccountDirectory.Create. The password
// is already hashed.
type NewAccount struct {
	ID           string
	Email        string
	Name         string
	Role         Role
	PasswordHash string
	CreatedAt    time.Time
}

// NewAccountInput is the caller-facing registration request.
type NewAccountInput struct {
	Name     string
	Email    string
	Password string
	// Role defaults to RoleContributor when empty.
	Role string
}

// AccountUpdate carries the profile fields an administrator may change.
// Nil fields are left untouched.
type AccountUpdate struct {
	Name  *string
	Email *string
	Role  *Role
}

// AccountDirectory is the account persistence the Engine depends on.
// Implementations return ErrAccountNotFound for unknown accounts and
// ErrAccountExists on duplicate email.
type AccountDirectory interface {
	FindByEmail(ctx context.Context, normalizedEmail string) (Account, error)
	FindByID(ctx context.Context, id string) (Account, error)
	Create(ctx context.Context, input NewAccount) (Account, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	UpdateProfile(ctx context.Context, id string, update AccountUpdate) (Account, error)
	List(ctx context.Context) ([]Account, error)
}

// Message is one outbound email.
type Message = mail.Message

// Mailer delivers messages to a recipient.
type Mailer interface {
	Deliver(ctx context.Context, msg Message) error
}

// Clock supplies the current instant.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// RandomSource supplies cryptographically secure random bytes.
type RandomSource = io.Reader

// SessionResult is returned by a successful VerifyOTP.
type SessionResult struct {
	Token     string
	AccountID string
	Name      string
	Role      Role
	ExpiresAt time.Time
}

// SessionInfo describes a validated session token.
type SessionInfo struct {
	AccountID string
	Role      Role
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
