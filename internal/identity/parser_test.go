package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-adp-api/internal/models"
)

func TestParseFilenameStrictMode(t *testing.T) {
	parsed, err := ParseFilename(ModeStrict, "123456789012_MATH_CIA1.pdf", "")
	require.NoError(t, err)
	require.NotNil(t, parsed)
	assert.Equal(t, "123456789012", parsed.RegisterNumber)
	assert.Equal(t, "MATH", parsed.SubjectCode)
	assert.Equal(t, models.ExamTypeCIA1, parsed.ExamType)
	assert.Equal(t, "pdf", parsed.Extension)
}

func TestParseFilenameStrictModeRejectsMalformed(t *testing.T) {
	_, err := ParseFilename(ModeStrict, "not-a-valid-name.pdf", "")
	require.Error(t, err)
}

func TestParseFilenameStrictModeDefaultsExamType(t *testing.T) {
	parsed, err := ParseFilename(ModeStrict, "123456789012_MATH.pdf", "")
	require.NoError(t, err)
	require.NotNil(t, parsed)
	assert.Equal(t, DefaultExamType, parsed.ExamType)
}

func TestParseFilenameFlexibleModeDefersOnUnmatchedShape(t *testing.T) {
	parsed, err := ParseFilename(ModeFlexible, "scan_004.pdf", "")
	require.NoError(t, err)
	assert.Nil(t, parsed)
}

func TestParseFilenameFlexibleModeRejectsUnsupportedExtension(t *testing.T) {
	_, err := ParseFilename(ModeFlexible, "scan_004.docx", "")
	require.Error(t, err)
}

func TestSniffAndValidate(t *testing.T) {
	require.NoError(t, SniffAndValidate("pdf", []byte("%PDF-1.4 rest of file")))
	require.Error(t, SniffAndValidate("pdf", []byte("not a pdf")))
	require.NoError(t, SniffAndValidate("jpg", []byte{0xFF, 0xD8, 0xFF, 0xE0}))
	require.Error(t, SniffAndValidate("png", []byte{0xFF, 0xD8}))
}

func TestFingerprintIsStableAndDistinguishesContent(t *testing.T) {
	a := Fingerprint("123456789012", "MATH", models.ExamTypeCIA1, "hash-a")
	b := Fingerprint("123456789012", "MATH", models.ExamTypeCIA1, "hash-a")
	c := Fingerprint("123456789012", "MATH", models.ExamTypeCIA1, "hash-b")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestCanonicalFilename(t *testing.T) {
	name := CanonicalFilename("123456789012", "MATH", models.ExamTypeCIA1, "pdf")
	assert.Equal(t, "123456789012_MATH_CIA1.pdf", name)
}

func TestNormalizeSubjectCode(t *testing.T) {
	code, err := NormalizeSubjectCode(" math ")
	require.NoError(t, err)
	assert.Equal(t, "MATH", code)

	_, err = NormalizeSubjectCode("!!")
	require.Error(t, err)
}

func TestValidateRegisterNumber(t *testing.T) {
	require.NoError(t, ValidateRegisterNumber("123456789012"))
	require.Error(t, ValidateRegisterNumber("12345"))
}
