// Package config loads calendarchy settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"calendarchy/internal/icloud"

	"github.com/joho/godotenv"
)

var (
	ErrMissingConfig = errors.New("missing required configuration")
	ErrInvalidConfig = errors.New("invalid configuration value")
)

// Config holds all application configuration.
type Config struct {
	Google   GoogleConfig
	ICloud   ICloudConfig
	Location *time.Location
	LogLevel string
	// HTTPTimeout bounds every outbound request.
	HTTPTimeout time.Duration
}

// GoogleConfig holds OAuth client credentials and the calendars to read.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	CalendarIDs  []string
	TokenFile    string
}

// Enabled reports whether OAuth client credentials are present.
func (g GoogleConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != ""
}

// ICloudConfig holds CalDAV credentials. An empty CalendarURLs list means
// calendars are discovered from the server.
type ICloudConfig struct {
	Username     string
	Password     string
	ServerURL    string
	CalendarURLs []string
}

// Enabled reports whether CalDAV credentials are present.
func (i ICloudConfig) Enabled() bool {
	return i.Username != "" && i.Password != ""
}

// Load reads a .env file when present, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Google: GoogleConfig{
			ClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
			ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
			CalendarIDs:  splitList(getEnv("GOOGLE_CALENDAR_IDS", "primary")),
			TokenFile:    getEnv("GOOGLE_TOKEN_FILE", "token-google.json"),
		},
		ICloud: ICloudConfig{
			Username:     getEnv("ICLOUD_USERNAME", ""),
			Password:     getEnv("ICLOUD_APP_SPECIFIC_PASSWORD", ""),
			ServerURL:    getEnv("CALDAV_SERVER_URL", icloud.DefaultServerURL),
			CalendarURLs: splitList(getEnv("ICLOUD_CALENDAR_URLS", "")),
		},
		LogLevel: strings.ToLower(getEnv("LOG_LEVEL", "info")),
	}

	tz := getEnv("PRIMARY_TIMEZONE", "")
	if tz == "" {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("%w: PRIMARY_TIMEZONE: %w", ErrInvalidConfig, err)
		}
		cfg.Location = loc
	}

	timeout, err := getEnvInt("HTTP_TIMEOUT_SECONDS", 30)
	if err != nil {
		return nil, fmt.Errorf("%w: HTTP_TIMEOUT_SECONDS: %w", ErrInvalidConfig, err)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("%w: HTTP_TIMEOUT_SECONDS must be positive", ErrInvalidConfig)
	}
	cfg.HTTPTimeout = time.Duration(timeout) * time.Second

	if missing := cfg.missingRequired(); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingConfig, strings.Join(missing, ", "))
	}
	return cfg, nil
}

// missingRequired lists half-configured providers, or both credential sets
// when neither provider is configured.
func (c *Config) missingRequired() []string {
	var missing []string
	if (c.Google.ClientID == "") != (c.Google.ClientSecret == "") {
		if c.Google.ClientID == "" {
			missing = append(missing, "GOOGLE_CLIENT_ID")
		} else {
			missing = append(missing, "GOOGLE_CLIENT_SECRET")
		}
	}
	if (c.ICloud.Username == "") != (c.ICloud.Password == "") {
		if c.ICloud.Username == "" {
			missing = append(missing, "ICLOUD_USERNAME")
		} else {
			missing = append(missing, "ICLOUD_APP_SPECIFIC_PASSWORD")
		}
	}
	if len(missing) == 0 && !c.Google.Enabled() && !c.ICloud.Enabled() {
		missing = append(missing, "GOOGLE_CLIENT_ID/GOOGLE_CLIENT_SECRET or ICLOUD_USERNAME/ICLOUD_APP_SPECIFIC_PASSWORD")
	}
	return missing
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid integer: %w", err)
	}
	return parsed, nil
}

// splitList splits a comma separated value, dropping blanks.
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
