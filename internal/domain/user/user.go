package user

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrNotFound           = errors.New("user not found")
	ErrConflict           = errors.New("user already exists")
	ErrEmailTaken         = fmt.Errorf("%w: email already exists", ErrConflict)
	ErrPhoneTaken         = fmt.Errorf("%w: phone already exists", ErrConflict)
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	PasswordHash string    `json:"-"` // never expose hash in JSON
	ProfileImage string    `json:"profileImage"`
	CreatedAt    time.Time `json:"-"`
	UpdatedAt    time.Time `json:"-"`
}

// Public is the only shape of a user that leaves the service.
type Public struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	ProfileImage string `json:"profileImage"`
}

func (u User) Public() Public {
	return Public{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		Phone:        u.Phone,
		ProfileImage: u.ProfileImage,
	}
}

// Patch carries a partial profile update. A nil field is absent; so is a blank one.
type Patch struct {
	Username *string
	Email    *string
	Phone    *string
	Password *string
}

func (p Patch) Empty() bool {
	_, hasPassword := p.PasswordValue()
	return present(p.Username) == "" && present(p.Email) == "" && present(p.Phone) == "" && !hasPassword
}

// Apply overwrites the present fields of u. Password is left to the caller,
// since it has to be hashed first.
func (p Patch) Apply(u *User) {
	if v := present(p.Username); v != "" {
		u.Username = v
	}
	if v := present(p.Email); v != "" {
		u.Email = v
	}
	if v := present(p.Phone); v != "" {
		u.Phone = v
	}
}

// MaxPasswordBytes is the longest input bcrypt will hash.
const MaxPasswordBytes = 72

// CheckPassword rejects passwords that are blank or too long to hash.
func CheckPassword(pw string) error {
	if strings.TrimSpace(pw) == "" {
		return fmt.Errorf("%w: password is required", ErrValidation)
	}
	if len(pw) > MaxPasswordBytes {
		return fmt.Errorf("%w: password must be at most %d bytes", ErrValidation, MaxPasswordBytes)
	}
	return nil
}

// PasswordValue returns the new plaintext password, if one was sent.
func (p Patch) PasswordValue() (string, bool) {
	if p.Password == nil || *p.Password == "" {
		return "", false
	}
	return *p.Password, true
}

func present(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
