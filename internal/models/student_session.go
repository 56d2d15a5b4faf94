package models

import "time"

// StudentSession is a student principal authenticated via LMS token
// exchange (spec §3/§4.5). The LMS token is stored only as AEAD
// ciphertext; plaintext never persists.
type StudentSession struct {
	ID              string    `db:"id" json:"id"`
	MoodleUsername  string    `db:"moodle_username" json:"moodle_username"`
	RegisterNumber  string    `db:"register_number" json:"register_number"`
	EncryptedLMSToken []byte  `db:"encrypted_lms_token" json:"-"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	ExpiresAt       time.Time `db:"expires_at" json:"expires_at"`
}

// Expired reports whether the session has passed its expiry.
func (s StudentSession) Expired() bool {
	return time.Now().UTC().After(s.ExpiresAt)
}

// StudentLoginRequest carries Moodle credentials exchanged for a session.
type StudentLoginRequest struct {
	MoodleUsername string `json:"moodle_username" validate:"required"`
	MoodlePassword string `json:"moodle_password" validate:"required"`
}

// StudentLoginResponse is returned on successful student authentication.
type StudentLoginResponse struct {
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// UsernameRegisterMap binds a Moodle username to a register number,
// one-to-one within an exam session (spec §3).
type UsernameRegisterMap struct {
	MoodleUsername string    `db:"moodle_username" json:"moodle_username"`
	RegisterNumber string    `db:"register_number" json:"register_number"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
