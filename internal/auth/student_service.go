package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/noah-isme/sma-adp-api/internal/lms"
	"github.com/noah-isme/sma-adp-api/internal/models"
	"github.com/noah-isme/sma-adp-api/internal/repository"
	appErrors "github.com/noah-isme/sma-adp-api/pkg/errors"
)

// StudentService manages the student LMS-session lifecycle (spec §4.5):
// exchange credentials for a Moodle token, seal it at rest, and issue a
// session id the student uses as their bearer credential thereafter.
type StudentService struct {
	sessionRepo *repository.SessionRepository
	mappingRepo *repository.MappingRepository
	lmsClient   *lms.Client
	sealer      *Sealer
	expireAfter time.Duration
}

// NewStudentService constructs the service.
func NewStudentService(sessionRepo *repository.SessionRepository, mappingRepo *repository.MappingRepository, lmsClient *lms.Client, sealer *Sealer, expireHours int) *StudentService {
	return &StudentService{
		sessionRepo: sessionRepo,
		mappingRepo: mappingRepo,
		lmsClient:   lmsClient,
		sealer:      sealer,
		expireAfter: time.Duration(expireHours) * time.Hour,
	}
}

// Login exchanges Moodle credentials for a web-service token, resolves the
// student's register number, and creates a new session.
func (s *StudentService) Login(ctx context.Context, req models.StudentLoginRequest) (*models.StudentLoginResponse, error) {
	token, err := s.lmsClient.ExchangeToken(ctx, req.MoodleUsername, req.MoodlePassword)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrAuthInvalid, "moodle rejected these credentials")
	}

	// An unmapped Moodle username logs in with an empty dashboard rather
	// than being rejected: Dashboard simply returns zero artifacts for a
	// register nothing has been uploaded against yet (spec §9).
	register, err := s.mappingRepo.ResolveRegister(ctx, req.MoodleUsername)
	if err != nil && !isNotFound(err) {
		return nil, err
	}

	sealed, err := s.sealer.Seal([]byte(token))
	if err != nil {
		return nil, fmt.Errorf("seal lms token: %w", err)
	}

	id, err := randomSessionID()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	expiresAt := now.Add(s.expireAfter)

	session := &models.StudentSession{
		ID:                id,
		MoodleUsername:    req.MoodleUsername,
		RegisterNumber:    register,
		EncryptedLMSToken: sealed,
		CreatedAt:         now,
		ExpiresAt:         expiresAt,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, err
	}

	return &models.StudentLoginResponse{SessionID: id, ExpiresAt: expiresAt}, nil
}

// Logout deletes the session row outright, so a revoked session cannot be
// replayed (spec §8 "session absence after logout").
func (s *StudentService) Logout(ctx context.Context, sessionID string) error {
	return s.sessionRepo.Delete(ctx, sessionID)
}

// Authenticate resolves a bearer session id to its session row.
func (s *StudentService) Authenticate(ctx context.Context, sessionID string) (*models.StudentSession, error) {
	return s.sessionRepo.FindByID(ctx, sessionID)
}

// LMSToken decrypts the session's stored Moodle token for use in a
// submission call.
func (s *StudentService) LMSToken(session *models.StudentSession) (string, error) {
	plaintext, err := s.sealer.Open(session.EncryptedLMSToken)
	if err != nil {
		return "", fmt.Errorf("open sealed lms token: %w", err)
	}
	return string(plaintext), nil
}

func isNotFound(err error) bool {
	var e *appErrors.Error
	return errors.As(err, &e) && e.Code == appErrors.ErrNotFound.Code
}

func randomSessionID() (string, error) {
	buf := make([]byte, 16) // 128 bits, per spec §4.5
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
