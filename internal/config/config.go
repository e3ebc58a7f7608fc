package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env string

	// remote API
	APIBaseURL   string
	AssetBaseURL string
	APITimeout   time.Duration

	// session persistence
	TokenFile      string
	TokenMaxAge    time.Duration
	CookieHashKey  []byte
	CookieBlockKey []byte

	// polling
	PollInterval time.Duration

	// console
	ListenAddr string
	HelpURL    string
	AboutURL   string

	// optional activity log
	DatabaseURL string
}

// Load reads a .env file when one exists, then the environment.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		// real environment variables win over the file
		if err := godotenv.Load(f); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv()
}

func FromEnv() (Config, error) {
	cfg := Config{
		Env:          getenv("APP_ENV", "local"),
		APIBaseURL:   getenv("API_BASE_URL", "https://apiservice.tablebookings.co.uk/api/v1"),
		AssetBaseURL: getenv("ASSET_BASE_URL", "https://apiservice.tablebookings.co.uk"),
		TokenFile:    getenv("TOKEN_FILE", defaultTokenFile()),
		ListenAddr:   getenv("LISTEN_ADDR", "127.0.0.1:8080"),
		HelpURL:      getenv("HELP_URL", "https://www.tablebookings.co.uk/faq"),
		AboutURL:     getenv("ABOUT_URL", "https://www.tablebookings.co.uk/about-us"),
		DatabaseURL:  strings.TrimSpace(os.Getenv("DATABASE_URL")),
	}

	var err error
	if cfg.PollInterval, err = seconds("POLL_SECONDS", "30"); err != nil {
		return Config{}, err
	}
	if cfg.APITimeout, err = seconds("API_TIMEOUT_SECONDS", "20"); err != nil {
		return Config{}, err
	}
	days, err := strconv.Atoi(getenv("TOKEN_MAX_AGE_DAYS", "30"))
	if err != nil || days < 1 {
		return Config{}, fmt.Errorf("invalid TOKEN_MAX_AGE_DAYS")
	}
	cfg.TokenMaxAge = time.Duration(days) * 24 * time.Hour

	hashKey := strings.TrimSpace(os.Getenv("COOKIE_HASH_KEY"))
	blockKey := strings.TrimSpace(os.Getenv("COOKIE_BLOCK_KEY"))
	if hashKey == "" || blockKey == "" {
		return Config{}, fmt.Errorf("COOKIE_HASH_KEY and COOKIE_BLOCK_KEY are required (base64, see `tablestaff keys`)")
	}
	if cfg.CookieHashKey, err = decodeB64(hashKey); err != nil {
		return Config{}, fmt.Errorf("COOKIE_HASH_KEY: %w", err)
	}
	if cfg.CookieBlockKey, err = decodeB64(blockKey); err != nil {
		return Config{}, fmt.Errorf("COOKIE_BLOCK_KEY: %w", err)
	}
	switch len(cfg.CookieBlockKey) {
	case 16, 24, 32:
	default:
		return Config{}, fmt.Errorf("COOKIE_BLOCK_KEY must decode to 16, 24 or 32 bytes (got %d)", len(cfg.CookieBlockKey))
	}
	return cfg, nil
}

func seconds(key, def string) (time.Duration, error) {
	n, err := strconv.Atoi(getenv(key, def))
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return time.Duration(n) * time.Second, nil
}

// decodeB64 accepts the key itself or a path to a file holding it, for
// secret mounts.
func decodeB64(s string) ([]byte, error) {
	if b, err := os.ReadFile(s); err == nil {
		s = strings.TrimSpace(string(b))
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}

func defaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".tablestaff-session"
	}
	return filepath.Join(dir, "tablestaff", "session")
}

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}
