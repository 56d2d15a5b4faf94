package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config is the fully-resolved application configuration, one sub-struct
// per concern, populated from the environment by Load.
type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Storage    StorageConfig
	Extraction ExtractionConfig
	Moodle     MoodleConfig
	Encryption EncryptionConfig
	Email      EmailConfig
	Retry      RetryConfig
	Session    SessionConfig
}

type DatabaseConfig struct {
	URL          string
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// DSN returns the connection string, preferring an explicit URL.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig governs staff bearer tokens (§4.5). Students are not JWT
// principals — their sessions live in StudentSession rows.
type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// StorageConfig configures the C1 dual disk+blob store.
type StorageConfig struct {
	UploadDir        string
	MaxFileSizeBytes int64
	AllowedExts      []string
}

// ExtractionConfig configures the C3 remote AI extraction client.
type ExtractionConfig struct {
	BaseURL             string
	Timeout             time.Duration
	ConfidenceThreshold float64
}

// MoodleConfig configures the C6 LMS wire client.
type MoodleConfig struct {
	BaseURL      string
	WSEndpoint   string
	UploadEndpoint string
	TokenEndpoint  string
	Service      string
	AdminToken   string
	CallTimeout  time.Duration
}

// WebserviceURL returns the full REST endpoint.
func (m MoodleConfig) WebserviceURL() string {
	return m.BaseURL + m.WSEndpoint
}

// UploadURL returns the full multipart upload endpoint.
func (m MoodleConfig) UploadURL() string {
	return m.BaseURL + m.UploadEndpoint
}

// TokenURL returns the full login-token exchange endpoint.
func (m MoodleConfig) TokenURL() string {
	return m.BaseURL + m.TokenEndpoint
}

// EncryptionConfig holds the process-wide AEAD key for student LMS tokens.
type EncryptionConfig struct {
	Key []byte // exactly 32 bytes, AES-256-GCM
}

type EmailConfig struct {
	SendgridAPIKey string
	FromEmail      string
	FromName       string
	SMTPEnabled    bool
	SMTPHost       string
	SMTPPort       int
	SMTPUsername   string
	SMTPPassword   string
	SMTPUseTLS     bool
}

// RetryConfig governs the C7 retry queue worker.
type RetryConfig struct {
	ScanInterval time.Duration
	MaxAttempts  int
}

type SessionConfig struct {
	ExpireHours int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		URL:          v.GetString("DATABASE_URL"),
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("SECRET_KEY"),
		Expiration: time.Duration(v.GetInt("ACCESS_TOKEN_EXPIRE_MINUTES")) * time.Minute,
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("CORS_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	maxFileSize := v.GetInt64("MAX_FILE_SIZE_MB")
	if maxFileSize <= 0 {
		maxFileSize = 50
	}
	cfg.Storage = StorageConfig{
		UploadDir:        v.GetString("UPLOAD_DIR"),
		MaxFileSizeBytes: maxFileSize * 1024 * 1024,
		AllowedExts:      splitAndTrim(v.GetString("ALLOWED_EXTENSIONS")),
	}

	cfg.Extraction = ExtractionConfig{
		BaseURL:             strings.TrimSuffix(v.GetString("HF_SPACE_URL"), "/"),
		Timeout:             parseDuration(v.GetString("EXTRACTION_TIMEOUT"), 300*time.Second),
		ConfidenceThreshold: v.GetFloat64("EXTRACTION_CONFIDENCE_THRESHOLD"),
	}

	cfg.Moodle = MoodleConfig{
		BaseURL:        strings.TrimSuffix(v.GetString("MOODLE_BASE_URL"), "/"),
		WSEndpoint:     v.GetString("MOODLE_WS_ENDPOINT"),
		UploadEndpoint: v.GetString("MOODLE_UPLOAD_ENDPOINT"),
		TokenEndpoint:  v.GetString("MOODLE_TOKEN_ENDPOINT"),
		Service:        v.GetString("MOODLE_SERVICE"),
		AdminToken:     v.GetString("MOODLE_ADMIN_TOKEN"),
		CallTimeout:    parseDuration(v.GetString("MOODLE_CALL_TIMEOUT"), 60*time.Second),
	}

	cfg.Encryption = EncryptionConfig{Key: []byte(v.GetString("ENCRYPTION_KEY"))}

	cfg.Email = EmailConfig{
		SendgridAPIKey: v.GetString("SENDGRID_API_KEY"),
		FromEmail:      v.GetString("EMAIL_FROM_EMAIL"),
		FromName:       v.GetString("EMAIL_FROM_NAME"),
		SMTPEnabled:    v.GetBool("SMTP_ENABLED"),
		SMTPHost:       v.GetString("SMTP_HOST"),
		SMTPPort:       v.GetInt("SMTP_PORT"),
		SMTPUsername:   v.GetString("SMTP_USERNAME"),
		SMTPPassword:   v.GetString("SMTP_PASSWORD"),
		SMTPUseTLS:     v.GetBool("SMTP_USE_TLS"),
	}

	cfg.Retry = RetryConfig{
		ScanInterval: parseDuration(v.GetString("RETRY_SCAN_INTERVAL"), 60*time.Second),
		MaxAttempts:  v.GetInt("RETRY_MAX_ATTEMPTS"),
	}

	cfg.Session = SessionConfig{
		ExpireHours: v.GetInt("SESSION_EXPIRE_HOURS"),
	}

	return cfg, nil
}

// Validate enforces the required-fields contract from spec.md §6, returning
// a config-class error suitable for CLI exit code 1.
func (c *Config) Validate() error {
	if c.Database.DSN() == "" {
		return errors.New("database connection is not configured")
	}
	if c.JWT.Secret == "" || c.JWT.Secret == "dev_secret_change_me" {
		return errors.New("secret_key must be set to a non-default value in production")
	}
	if len(c.Encryption.Key) != 32 {
		return fmt.Errorf("encryption_key must be exactly 32 bytes, got %d", len(c.Encryption.Key))
	}
	if c.Moodle.BaseURL == "" {
		return errors.New("moodle_base_url is required")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8000)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "exam_middleware")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("SECRET_KEY", "dev_secret_change_me")
	v.SetDefault("ACCESS_TOKEN_EXPIRE_MINUTES", 60)

	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("UPLOAD_DIR", "./uploads")
	v.SetDefault("MAX_FILE_SIZE_MB", 50)
	v.SetDefault("ALLOWED_EXTENSIONS", ".pdf,.jpg,.jpeg,.png")

	v.SetDefault("HF_SPACE_URL", "")
	v.SetDefault("EXTRACTION_TIMEOUT", "300s")
	v.SetDefault("EXTRACTION_CONFIDENCE_THRESHOLD", 0.75)

	v.SetDefault("MOODLE_BASE_URL", "")
	v.SetDefault("MOODLE_WS_ENDPOINT", "/webservice/rest/server.php")
	v.SetDefault("MOODLE_UPLOAD_ENDPOINT", "/webservice/upload.php")
	v.SetDefault("MOODLE_TOKEN_ENDPOINT", "/login/token.php")
	v.SetDefault("MOODLE_SERVICE", "moodle_mobile_app")
	v.SetDefault("MOODLE_ADMIN_TOKEN", "")
	v.SetDefault("MOODLE_CALL_TIMEOUT", "60s")

	v.SetDefault("ENCRYPTION_KEY", "")

	v.SetDefault("SENDGRID_API_KEY", "")
	v.SetDefault("EMAIL_FROM_EMAIL", "")
	v.SetDefault("EMAIL_FROM_NAME", "Examination Middleware")
	v.SetDefault("SMTP_ENABLED", false)
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_USE_TLS", true)

	v.SetDefault("RETRY_SCAN_INTERVAL", "60s")
	v.SetDefault("RETRY_MAX_ATTEMPTS", 5)

	v.SetDefault("SESSION_EXPIRE_HOURS", 24)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
