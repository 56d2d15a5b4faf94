// Package identity implements filename parsing, magic-byte sniffing, and
// fingerprint computation (spec §4.2).
package identity

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/noah-isme/sma-adp-api/internal/models"
	appErrors "github.com/noah-isme/sma-adp-api/pkg/errors"
)

var (
	subjectCodePattern = regexp.MustCompile(`^[A-Z0-9]{2,10}$`)
	registerPattern     = regexp.MustCompile(`^[0-9]{12}$`)
	strictFilenamePattern = regexp.MustCompile(`^([0-9]{12})_([A-Za-z0-9]{2,10})(?:_([A-Za-z0-9]+))?\.(pdf|jpg|jpeg|png)$`)
)

// Mode selects the filename parsing strategy.
type Mode string

const (
	ModeStrict   Mode = "strict"
	ModeFlexible Mode = "flexible"
)

// Parsed holds the (register, subject, exam_type) tuple
// extracted from a filename, plus the validated extension.
type Parsed struct {
	RegisterNumber string
	SubjectCode    string
	ExamType       models.ExamType
	Extension      string
}

// DefaultExamType is used when no exam type is supplied by filename or
// request parameter.
const DefaultExamType = models.ExamTypeCIA1

var validExamTypes = map[string]models.ExamType{
	"CIA1": models.ExamTypeCIA1,
	"CIA2": models.ExamTypeCIA2,
	"CIA3": models.ExamTypeCIA3,
	"SEM":  models.ExamTypeSEM,
}

// ParseFilename extracts the identity tuple from filename under the given
// mode. In flexible mode, a non-matching filename is not an error — it
// simply yields no parse, deferring to C3 extraction.
func ParseFilename(mode Mode, filename string, examTypeOverride string) (*Parsed, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	ext = strings.TrimPrefix(ext, ".")

	if mode == ModeStrict {
		match := strictFilenamePattern.FindStringSubmatch(filename)
		if match == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "filename does not match required pattern {register}_{subject}.{ext}")
		}
		register := match[1]
		subject := strings.ToUpper(match[2])
		examType := resolveExamType(examTypeOverride, match[3])

		if !registerPattern.MatchString(register) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "register number must be exactly 12 digits")
		}
		if !subjectCodePattern.MatchString(subject) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "subject code must match [A-Z0-9]{2,10}")
		}

		return &Parsed{
			RegisterNumber: register,
			SubjectCode:    subject,
			ExamType:       examType,
			Extension:      ext,
		}, nil
	}

	// Flexible mode: best-effort, never errors on shape — only on extension.
	if ext != "pdf" && ext != "jpg" && ext != "jpeg" && ext != "png" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported file extension")
	}
	return nil, nil
}

func resolveExamType(override, fromFilename string) models.ExamType {
	if override != "" {
		if et, ok := validExamTypes[strings.ToUpper(override)]; ok {
			return et
		}
	}
	if fromFilename != "" {
		if et, ok := validExamTypes[strings.ToUpper(fromFilename)]; ok {
			return et
		}
	}
	return DefaultExamType
}

// NormalizeSubjectCode uppercases and validates a subject code, as used by
// the AI extraction fallback path.
func NormalizeSubjectCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !subjectCodePattern.MatchString(code) {
		return "", appErrors.Clone(appErrors.ErrValidation, "subject code must match [A-Z0-9]{2,10}")
	}
	return code, nil
}

// ValidateRegisterNumber checks the 12-digit register number format.
func ValidateRegisterNumber(register string) error {
	if !registerPattern.MatchString(register) {
		return appErrors.Clone(appErrors.ErrValidation, "register number must be exactly 12 digits")
	}
	return nil
}

// magic byte signatures for the three accepted file kinds (§4.2).
var (
	pdfMagic  = []byte("%PDF")
	jpegMagic = []byte{0xFF, 0xD8}
	pngMagic  = []byte{0x89, 0x50, 0x4E, 0x47}
)

// SniffAndValidate confirms the declared extension matches the file's
// magic bytes, rejecting mismatches (e.g. a renamed .exe).
func SniffAndValidate(ext string, data []byte) error {
	switch ext {
	case "pdf":
		if !bytes.HasPrefix(data, pdfMagic) {
			return appErrors.Clone(appErrors.ErrValidation, "content does not match PDF signature")
		}
	case "jpg", "jpeg":
		if !bytes.HasPrefix(data, jpegMagic) {
			return appErrors.Clone(appErrors.ErrValidation, "content does not match JPEG signature")
		}
	case "png":
		if !bytes.HasPrefix(data, pngMagic) {
			return appErrors.Clone(appErrors.ErrValidation, "content does not match PNG signature")
		}
	default:
		return appErrors.Clone(appErrors.ErrValidation, "unsupported file extension")
	}
	return nil
}

// ContentHash returns the hex SHA-256 digest of data.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Fingerprint computes the idempotency key: hex(SHA-256(register|subject|exam_type|content_hash)).
func Fingerprint(register, subject string, examType models.ExamType, contentHash string) string {
	material := fmt.Sprintf("%s|%s|%s|%s", register, subject, examType, contentHash)
	sum := sha256.Sum256([]byte(material))
	return hex.EncodeToString(sum[:])
}

// CanonicalFilename builds the {register}_{subject}_{exam_type}.{ext}
// name used once a tuple is confirmed (strictly, or via C3 above
// confidence threshold).
func CanonicalFilename(register, subject string, examType models.ExamType, ext string) string {
	return fmt.Sprintf("%s_%s_%s.%s", register, subject, examType, ext)
}
