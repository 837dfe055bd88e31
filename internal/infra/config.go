package infra

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv    string
	LogLevel  string
	Port      string
	DataDir   string
	StaticDir string

	RenderBin     string
	RenderScript  string
	RenderDir     string
	ThemesDir     string
	CacheDir      string
	RenderTimeout time.Duration

	GalleryDBPath string
	GalleryLimit  int

	CleanupSchedule string
	CleanupAfter    time.Duration

	GeoIPDBPath string

	PayToAddress    string
	X402Network     string
	X402Facilitator string
	PosterPriceUSD  float64

	CORSAllowedOrigins []string
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	renderDir := getEnv("RENDER_DIR", "../maptoposter")

	cfg := &Config{
		AppEnv:    getEnv("APP_ENV", "development"),
		LogLevel:  os.Getenv("LOG_LEVEL"),
		Port:      getEnv("PORT", "8080"),
		DataDir:   getEnv("DATA_DIR", "./data/posters"),
		StaticDir: getEnv("STATIC_DIR", "./static"),

		RenderBin:     getEnv("RENDER_BIN", "python3"),
		RenderScript:  getEnv("RENDER_SCRIPT", "create_map_poster.py"),
		RenderDir:     renderDir,
		ThemesDir:     getEnv("THEMES_DIR", filepath.Join(renderDir, "themes")),
		CacheDir:      getEnv("CACHE_DIR", filepath.Join(renderDir, "cache")),
		RenderTimeout: time.Second * time.Duration(getEnvInt("RENDER_TIMEOUT_SECONDS", 0)),

		GalleryDBPath: getEnv("GALLERY_DB_PATH", "./data/gallery.db"),
		GalleryLimit:  getEnvInt("GALLERY_LIMIT", 50),

		CleanupSchedule: getEnv("CLEANUP_SCHEDULE", "@every 1h"),
		CleanupAfter:    time.Hour * time.Duration(getEnvInt("CLEANUP_HOURS", 24)),

		GeoIPDBPath: os.Getenv("GEOIP_DB_PATH"),

		PayToAddress:    os.Getenv("PAY_TO_ADDRESS"),
		X402Network:     getEnv("X402_NETWORK", "base-sepolia"),
		X402Facilitator: os.Getenv("X402_FACILITATOR_URL"),
		PosterPriceUSD:  getEnvFloat("POSTER_PRICE_USD", 0.75),

		CORSAllowedOrigins: splitOrigins(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	if cfg.PosterPriceUSD <= 0 {
		return nil, fmt.Errorf("POSTER_PRICE_USD must be a positive amount")
	}

	if cfg.GalleryLimit < 1 {
		return nil, fmt.Errorf("GALLERY_LIMIT must be at least 1")
	}

	if cfg.CleanupSchedule == "" {
		return nil, fmt.Errorf("CLEANUP_SCHEDULE is required")
	}

	if cfg.RenderBin == "" {
		return nil, fmt.Errorf("RENDER_BIN is required")
	}

	return cfg, nil
}

// PaymentsEnabled reports whether the poster endpoint charges at all.
// Leaving PAY_TO_ADDRESS unset runs the service in free mode.
func (c *Config) PaymentsEnabled() bool {
	return c.PayToAddress != "" && c.PayToAddress != "0x0000000000000000000000000000000000000000"
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func splitOrigins(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if origin := strings.TrimSpace(part); origin != "" {
			out = append(out, origin)
		}
	}
	return out
}
