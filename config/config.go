package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port        string
	CORSOrigins []string
	StoreDriver string
	SQLitePath  string
	MongoURI    string
	DBName      string

	RelayURL        string
	RelayTimeout    time.Duration
	PollInterval    time.Duration
	PollMaxAttempts int

	OpenLibraryURL string
	GoogleBooksURL string

	JWTSecret          string
	DevicePasscodeHash string
	DeviceID           string

	S3Bucket      string
	S3Region      string
	S3AccessKeyID string
	S3SecretKey   string
	QRLinkExpiry  time.Duration

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string

	RelayPort     string
	RelayDBSource string
	RelayTTL      time.Duration
}

func Load() (*Config, error) {
	_ = os.Setenv("AWS_REGION", getEnv("AWS_REGION", "us-east-1"))

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", "sqlite")),
		SQLitePath:  getEnv("SQLITE_PATH", "data/sharemybook.db"),
		MongoURI:    getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		DBName:      getEnv("MONGODB_DB", "sharemybook"),

		RelayURL: getEnv("RELAY_URL", "http://localhost:8090"),

		OpenLibraryURL: getEnv("OPENLIBRARY_URL", "https://openlibrary.org"),
		GoogleBooksURL: getEnv("GOOGLE_BOOKS_URL", "https://www.googleapis.com/books/v1/volumes"),

		JWTSecret:          getEnv("JWT_SECRET", "change-me-in-production"),
		DevicePasscodeHash: getEnv("DEVICE_PASSCODE_HASH", ""),
		DeviceID:           getEnv("DEVICE_ID", hostname()),

		S3Bucket:      getEnv("AWS_S3_BUCKET", ""),
		S3Region:      getEnv("AWS_REGION", "us-east-1"),
		S3AccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		S3SecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPUser:     getEnv("SMTP_USER", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv("SMTP_FROM", ""),

		RelayPort:     getEnv("RELAY_PORT", "8090"),
		RelayDBSource: getEnv("RELAY_DB_SOURCE", ""),
	}

	if v := getEnv("CORS_ORIGINS", ""); v != "" {
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, o)
			}
		}
	}

	var err error
	if cfg.RelayTimeout, err = durationEnv("RELAY_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.PollInterval, err = durationEnv("POLL_INTERVAL", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.PollMaxAttempts, err = intEnv("POLL_MAX_ATTEMPTS", 60); err != nil {
		return nil, err
	}
	if cfg.QRLinkExpiry, err = durationEnv("QR_LINK_EXPIRY", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.SMTPPort, err = intEnv("SMTP_PORT", 587); err != nil {
		return nil, err
	}
	if cfg.RelayTTL, err = durationEnv("RELAY_TTL", 10*time.Minute); err != nil {
		return nil, err
	}

	switch cfg.StoreDriver {
	case "sqlite", "mongo", "mongodb":
	default:
		return nil, fmt.Errorf("STORE_DRIVER must be sqlite or mongo, got %q", cfg.StoreDriver)
	}
	return cfg, nil
}

// hostname names the device in issued tokens when DEVICE_ID is not set.
func hostname() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "sharemybook"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration like 2s, got %q", key, v)
	}
	return d, nil
}

func intEnv(key string, fallback int) (int, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, v)
	}
	return n, nil
}

// RequiredEnvVars are checked by `serve`; the device API refuses to start without them.
var RequiredEnvVars = []string{
	"JWT_SECRET",
	"DEVICE_PASSCODE_HASH",
	"RELAY_URL",
}

// OptionalEnvVars are logged at startup so you can confirm they are loaded when set.
var OptionalEnvVars = []string{
	"PORT",
	"DEVICE_ID",
	"STORE_DRIVER",
	"SQLITE_PATH",
	"MONGODB_URI",
	"MONGODB_DB",
	"AWS_S3_BUCKET",
	"AWS_ACCESS_KEY_ID",
	"AWS_SECRET_ACCESS_KEY",
	"SMTP_HOST",
	"SMTP_PASSWORD",
}

var secretEnvVars = map[string]bool{
	"JWT_SECRET":            true,
	"DEVICE_PASSCODE_HASH":  true,
	"MONGODB_URI":           true,
	"AWS_ACCESS_KEY_ID":     true,
	"AWS_SECRET_ACCESS_KEY": true,
	"SMTP_PASSWORD":         true,
}

// ValidateEnv checks that all required env vars are set and logs status of required + optional.
// Calls log.Fatal if any required var is missing.
func ValidateEnv() {
	var missing []string
	for _, key := range RequiredEnvVars {
		if strings.TrimSpace(os.Getenv(key)) == "" {
			missing = append(missing, key)
		} else {
			log.Printf("env %s loaded", key)
		}
	}
	if len(missing) > 0 {
		log.Fatalf("missing required env: %s (set these in .env or environment)", strings.Join(missing, ", "))
	}
	for _, key := range OptionalEnvVars {
		v := strings.TrimSpace(os.Getenv(key))
		switch {
		case v == "":
			log.Printf("env %s not set (optional)", key)
		case secretEnvVars[key]:
			// Don't log secret values
			log.Printf("env %s loaded", key)
		default:
			log.Printf("env %s = %s", key, v)
		}
	}
	if os.Getenv("JWT_SECRET") == "change-me-in-production" {
		log.Fatal("JWT_SECRET must be set to a strong secret (not the default change-me-in-production)")
	}
	if h := os.Getenv("DEVICE_PASSCODE_HASH"); !strings.HasPrefix(h, "$2") {
		log.Fatal("DEVICE_PASSCODE_HASH must be a bcrypt hash (generate with: sharemybook passcode)")
	}
	log.Println("env check complete")
}
