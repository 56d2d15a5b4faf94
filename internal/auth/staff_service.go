package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/sma-adp-api/internal/models"
	"github.com/noah-isme/sma-adp-api/internal/repository"
	appErrors "github.com/noah-isme/sma-adp-api/pkg/errors"
)

// bcryptCost matches the teacher's auth stack: strong enough for an
// admin-facing login surface without materially slowing request handling.
const bcryptCost = 12

// StaffService issues and verifies staff bearer tokens (spec §4.5).
type StaffService struct {
	staffRepo  *repository.StaffRepository
	secret     []byte
	expiration time.Duration
}

// NewStaffService constructs the service.
func NewStaffService(staffRepo *repository.StaffRepository, secret string, expiration time.Duration) *StaffService {
	return &StaffService{staffRepo: staffRepo, secret: []byte(secret), expiration: expiration}
}

// HashPassword bcrypt-hashes a plaintext password for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Login verifies credentials and issues a bearer token. There is no
// refresh token: the client re-authenticates once the 60-minute token
// expires (spec §4.5).
func (s *StaffService) Login(ctx context.Context, req models.StaffLoginRequest) (*models.StaffLoginResponse, error) {
	user, err := s.staffRepo.FindByUsername(ctx, req.Username)
	if err != nil {
		return nil, err
	}
	if !user.Active {
		return nil, appErrors.Clone(appErrors.ErrAuthz, "account is disabled")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.Clone(appErrors.ErrAuthInvalid, "invalid credentials")
	}

	token, expiresAt, err := s.issueToken(user)
	if err != nil {
		return nil, err
	}

	if err := s.staffRepo.TouchLogin(ctx, user.ID); err != nil {
		return nil, err
	}

	return &models.StaffLoginResponse{Token: token, ExpiresAt: expiresAt}, nil
}

func (s *StaffService) issueToken(user *models.StaffUser) (string, time.Time, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(s.expiration)

	claims := models.JWTClaims{
		UserID: user.ID,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Subject:   user.ID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign staff token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken parses and verifies a bearer token, returning its claims.
func (s *StaffService) ValidateToken(raw string) (*models.JWTClaims, error) {
	claims := &models.JWTClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrAuthInvalid, "invalid or expired token")
	}
	return claims, nil
}

// Bootstrap creates the initial admin account if no staff account exists
// yet, gated by the caller on a configured bootstrap password.
func (s *StaffService) Bootstrap(ctx context.Context, username, password string) error {
	exists, err := s.staffRepo.ExistsAny(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	return s.staffRepo.Create(ctx, &models.StaffUser{
		Username:     username,
		PasswordHash: hash,
		Role:         models.StaffRoleAdmin,
		Active:       true,
	})
}
