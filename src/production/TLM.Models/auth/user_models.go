package auth_models

import (
	"time"
)

// Roles understood by the API
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User is a dashboard account owning devices and alert rules
type User struct {
	UserID             string    `json:"user_id" db:"user_id"`
	Username           string    `json:"username" db:"username"`
	Email              string    `json:"email" db:"email"`
	Password           string    `json:"-" db:"password"` // bcrypt hash, never serialized
	Role               string    `json:"role" db:"role"`
	Active             bool      `json:"active" db:"active"`
	EmailNotifications bool      `json:"email_notifications" db:"email_notifications"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
}

// NewUser creates a new User with email notifications enabled
func NewUser(username, email, passwordHash, role string) *User {
	now := time.Now().UTC()
	return &User{
		Username:           username,
		Email:              email,
		Password:           passwordHash,
		Role:               role,
		Active:             true,
		EmailNotifications: true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// WantsEmail reports whether alert emails may be sent to this user
func (u *User) WantsEmail() bool {
	return u.Active && u.Email != "" && u.EmailNotifications
}
