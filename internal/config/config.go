// Package config loads the canvas server's configuration from CLI flags and
// environment variables, validates it, and fills in defaults. The terminal
// client's TOML settings live in client.go.
//
// CLI flags switch off external services (--no-oidc, --no-s3, --no-chat,
// --test). Environment variables provide secrets and service settings.
package config

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kuitang/sticky-canvas/internal/auth"
	"github.com/kuitang/sticky-canvas/internal/chat"
	"github.com/kuitang/sticky-canvas/internal/ratelimit"
)

const (
	defaultAppID     = "collaborative-canvas"
	defaultS3Region  = "auto"
	defaultListen    = ":8080"
	defaultDataPath  = "/data"
	maxAppIDLength   = 128
	hexKeyCharacters = 64
)

// Config holds all server configuration.
type Config struct {
	// Server settings
	ListenAddr string
	BaseURL    string
	// AppID is the default application id advertised to clients.
	AppID string

	// Storage and encryption
	DatabasePath string // Directory of per-user SQLCipher databases
	DatabaseURL  string // Postgres DSN; selects the Postgres repository
	MasterKey    string // 64 hex characters (32 bytes)

	// Identity
	TokenSigningKey string // 64 hex characters (ed25519 seed) for dev tokens
	OIDCIssuer      string
	OIDCAudience    string

	// Chat
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	// HTTP surface
	CORSAllowedOrigins []string
	RateLimitConfig    ratelimit.Config

	// Service switches (CLI flags, not env vars)
	NoOIDC bool // Dev token issuer instead of OIDC (--no-oidc)
	NoS3   bool // In-memory object storage (--no-s3)
	NoChat bool // Chat disabled, /api/chat answers 503 (--no-chat)

	// Object storage (AWS_ env vars)
	AWSEndpointS3      string // AWS_ENDPOINT_URL_S3
	AWSRegion          string // AWS_REGION
	AWSAccessKeyID     string // AWS_ACCESS_KEY_ID
	AWSSecretAccessKey string // AWS_SECRET_ACCESS_KEY
	AWSBucketName      string // BUCKET_NAME
	AWSPublicURL       string // S3_PUBLIC_URL
}

// Flags are the parsed CLI flags.
type Flags struct {
	NoOIDC bool
	NoS3   bool
	NoChat bool
	Addr   string
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// ParseFlags parses the server flags from args (without the program name).
func ParseFlags(args []string) (Flags, error) {
	var f Flags
	var testMode bool
	fs := flag.NewFlagSet("canvas-server", flag.ContinueOnError)
	fs.BoolVar(&f.NoOIDC, "no-oidc", false, "Issue development tokens instead of verifying OIDC ID tokens")
	fs.BoolVar(&f.NoS3, "no-s3", false, "Use in-memory object storage for exports")
	fs.BoolVar(&f.NoChat, "no-chat", false, "Disable the chat endpoint")
	fs.BoolVar(&testMode, "test", false, "Shorthand for --no-oidc --no-s3 --no-chat")
	fs.StringVar(&f.Addr, "addr", "", "Listen address (default :8080, overrides LISTEN_ADDR env var)")
	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}
	if testMode {
		f.NoOIDC = true
		f.NoS3 = true
		f.NoChat = true
	}
	return f, nil
}

// LoadConfig loads configuration from environment variables and flags.
func LoadConfig(f Flags) (*Config, error) {
	cfg := &Config{
		NoOIDC: f.NoOIDC,
		NoS3:   f.NoS3,
		NoChat: f.NoChat,
	}

	// Server settings
	cfg.ListenAddr = getEnvOrDefault("LISTEN_ADDR", defaultListen)
	if f.Addr != "" {
		cfg.ListenAddr = f.Addr
	}
	cfg.BaseURL = getEnvOrDefault("BASE_URL", "")
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost" + cfg.ListenAddr
	}
	cfg.AppID = getEnvOrDefault("APP_ID", defaultAppID)

	// Storage and encryption
	cfg.DatabasePath = getEnvOrDefault("DATABASE_PATH", defaultDataPath)
	cfg.DatabaseURL = getEnvOrDefault("DATABASE_URL", "")
	cfg.MasterKey = getEnvOrDefault("MASTER_KEY", "")

	// Identity
	cfg.TokenSigningKey = getEnvOrDefault("TOKEN_SIGNING_KEY", "")
	cfg.OIDCIssuer = getEnvOrDefault("OIDC_ISSUER", "")
	cfg.OIDCAudience = getEnvOrDefault("OIDC_AUDIENCE", "")
	if project := getEnvOrDefault("FIREBASE_PROJECT_ID", ""); project != "" {
		if cfg.OIDCIssuer == "" {
			cfg.OIDCIssuer = auth.FirebaseIssuer(project)
		}
		if cfg.OIDCAudience == "" {
			cfg.OIDCAudience = project
		}
	}

	// Chat
	cfg.OpenAIAPIKey = getEnvOrDefault("OPENAI_API_KEY", "")
	cfg.OpenAIBaseURL = getEnvOrDefault("OPENAI_BASE_URL", "")
	cfg.OpenAIModel = getEnvOrDefault("OPENAI_MODEL", chat.DefaultModel)

	// HTTP surface
	cfg.CORSAllowedOrigins = splitList(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "*"))
	cfg.RateLimitConfig = ratelimit.Config{
		RPS:             parseFloat64OrDefault("RATE_LIMIT_RPS", ratelimit.DefaultConfig.RPS),
		Burst:           parseIntOrDefault("RATE_LIMIT_BURST", ratelimit.DefaultConfig.Burst),
		CleanupInterval: parseDurationOrDefault("RATE_LIMIT_CLEANUP_INTERVAL", ratelimit.DefaultConfig.CleanupInterval),
	}

	// Object storage
	cfg.AWSEndpointS3 = getEnvOrDefault("AWS_ENDPOINT_URL_S3", "")
	cfg.AWSRegion = getEnvOrDefault("AWS_REGION", defaultS3Region)
	cfg.AWSAccessKeyID = getEnvOrDefault("AWS_ACCESS_KEY_ID", "")
	cfg.AWSSecretAccessKey = getEnvOrDefault("AWS_SECRET_ACCESS_KEY", "")
	cfg.AWSBucketName = getEnvOrDefault("BUCKET_NAME", "")
	cfg.AWSPublicURL = getEnvOrDefault("S3_PUBLIC_URL", "")
	if cfg.AWSPublicURL == "" && cfg.AWSEndpointS3 != "" && cfg.AWSBucketName != "" {
		cfg.AWSPublicURL = strings.TrimRight(cfg.AWSEndpointS3, "/") + "/" + cfg.AWSBucketName
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all required configuration is present and valid.
// Secrets of a service are required unless its flag switched it off.
func (c *Config) Validate() error {
	var errs []string

	// MasterKey: always required (losing it = all canvas DBs unreadable)
	if msg := checkHexKey("MASTER_KEY", c.MasterKey, true); msg != "" {
		errs = append(errs, msg)
	}
	if msg := checkHexKey("TOKEN_SIGNING_KEY", c.TokenSigningKey, false); msg != "" {
		errs = append(errs, msg)
	}

	if !c.NoOIDC {
		if c.OIDCIssuer == "" {
			errs = append(errs, "OIDC_ISSUER is required (or FIREBASE_PROJECT_ID, or use --no-oidc)")
		}
		if c.OIDCAudience == "" {
			errs = append(errs, "OIDC_AUDIENCE is required (or FIREBASE_PROJECT_ID, or use --no-oidc)")
		}
	}

	if !c.NoS3 {
		if c.AWSBucketName == "" {
			errs = append(errs, "BUCKET_NAME is required (set env var or use --no-s3)")
		}
		if c.AWSAccessKeyID == "" {
			errs = append(errs, "AWS_ACCESS_KEY_ID is required (set env var or use --no-s3)")
		}
		if c.AWSSecretAccessKey == "" {
			errs = append(errs, "AWS_SECRET_ACCESS_KEY is required (set env var or use --no-s3)")
		}
	}

	if !c.NoChat && c.OpenAIAPIKey == "" {
		errs = append(errs, "OPENAI_API_KEY is required (set env var or use --no-chat)")
	}

	if !validAppID(c.AppID) {
		errs = append(errs, "APP_ID must be 1-128 characters of [A-Za-z0-9._-]")
	}
	if c.DatabaseURL == "" && c.DatabasePath == "" {
		errs = append(errs, "DATABASE_PATH is required when DATABASE_URL is not set")
	}

	if c.RateLimitConfig.RPS <= 0 {
		errs = append(errs, "RATE_LIMIT_RPS must be positive")
	}
	if c.RateLimitConfig.Burst <= 0 {
		errs = append(errs, "RATE_LIMIT_BURST must be positive")
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// MasterKeyBytes decodes MASTER_KEY. Call after Validate.
func (c *Config) MasterKeyBytes() ([]byte, error) {
	return hex.DecodeString(c.MasterKey)
}

// SigningSeed decodes TOKEN_SIGNING_KEY; nil when unset.
func (c *Config) SigningSeed() ([]byte, error) {
	if c.TokenSigningKey == "" {
		return nil, nil
	}
	return hex.DecodeString(c.TokenSigningKey)
}

// UsePostgres reports whether documents live in Postgres.
func (c *Config) UsePostgres() bool {
	return c.DatabaseURL != ""
}

// IsDevelopment returns true if any external service is switched off.
func (c *Config) IsDevelopment() bool {
	return c.NoOIDC || c.NoS3 || c.NoChat
}

// PrintStartupSummary prints a human-readable summary of the configuration.
func (c *Config) PrintStartupSummary(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "sticky-canvas server starting...")

	if c.NoOIDC {
		fmt.Fprintln(w, "  Auth:    Dev tokens (--no-oidc)")
	} else {
		fmt.Fprintf(w, "  Auth:    OIDC (issuer: %s)\n", c.OIDCIssuer)
	}

	if c.UsePostgres() {
		fmt.Fprintln(w, "  Docs:    Postgres (DATABASE_URL)")
	} else {
		fmt.Fprintf(w, "  Docs:    SQLCipher per user (%s)\n", c.DatabasePath)
	}

	if c.NoS3 {
		fmt.Fprintln(w, "  Exports: In-memory S3 (--no-s3)")
	} else {
		fmt.Fprintf(w, "  Exports: S3 (bucket: %s)\n", c.AWSBucketName)
	}

	if c.NoChat {
		fmt.Fprintln(w, "  Chat:    Disabled (--no-chat)")
	} else {
		fmt.Fprintf(w, "  Chat:    %s\n", c.OpenAIModel)
	}

	fmt.Fprintf(w, "  App:     %s\n", c.AppID)
	fmt.Fprintf(w, "  Listen:  %s\n", c.ListenAddr)
	fmt.Fprintf(w, "  Base:    %s\n", c.BaseURL)
	fmt.Fprintln(w, "")
}

func checkHexKey(name, value string, required bool) string {
	if value == "" {
		if required {
			return name + " is required (generate with: openssl rand -hex 32)"
		}
		return ""
	}
	if len(value) != hexKeyCharacters {
		return fmt.Sprintf("%s must be %d hex characters (32 bytes)", name, hexKeyCharacters)
	}
	if _, err := hex.DecodeString(value); err != nil {
		return name + " must be hex encoded"
	}
	return ""
}

func validAppID(id string) bool {
	if id == "" || len(id) > maxAppIDLength || id == "." || id == ".." {
		return false
	}
	for _, r := range id {
		ok := r == '-' || r == '_' || r == '.' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !ok {
			return false
		}
	}
	return true
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Helper functions for parsing environment variables

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func parseIntOrDefault(key string, defaultValue int) int {
	value := getEnvOrDefault(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseFloat64OrDefault(key string, defaultValue float64) float64 {
	value := getEnvOrDefault(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := getEnvOrDefault(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// MustLoadConfig loads configuration and panics if validation fails.
func MustLoadConfig(f Flags) *Config {
	cfg, err := LoadConfig(f)
	if err != nil {
		var validationErr *ValidationError
		if errors.As(err, &validationErr) {
			panic(fmt.Sprintf("Configuration validation failed:\n  - %s", strings.Join(validationErr.Errors, "\n  - ")))
		}
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}
	return cfg
}
