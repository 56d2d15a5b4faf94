package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// StaffRole gates admin-only operations (§4.8 "role >= admin").
type StaffRole string

const (
	StaffRoleStaff StaffRole = "STAFF"
	StaffRoleAdmin StaffRole = "ADMIN"
)

// AtLeastAdmin reports whether the role satisfies admin-gated endpoints.
func (r StaffRole) AtLeastAdmin() bool {
	return r == StaffRoleAdmin
}

// StaffUser is a local bearer-token principal (spec §3/§4.5).
type StaffUser struct {
	ID           string     `db:"id" json:"id"`
	Username     string     `db:"username" json:"username"`
	PasswordHash string     `db:"password_hash" json:"-"`
	Role         StaffRole  `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	LastLoginAt  *time.Time `db:"last_login_at" json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// StaffLoginRequest carries staff credentials.
type StaffLoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// StaffLoginResponse is returned on successful staff authentication.
type StaffLoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// JWTClaims is the payload carried by a staff bearer token: (staff_id,
// role, issued_at, expires_at) per spec §4.5.
type JWTClaims struct {
	UserID string    `json:"staff_id"`
	Role   StaffRole `json:"role"`
	jwt.RegisteredClaims
}
