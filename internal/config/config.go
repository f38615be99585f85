package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"pomodoro/bot/internal/model"
)

const (
	PlatformTelegram = "telegram"
	PlatformMax      = "max"
)

type Preset struct {
	WorkMinutes  int `yaml:"work_minutes"`
	BreakMinutes int `yaml:"break_minutes"`
}

type Config struct {
	Port          string
	DBPath        string
	MigrationsDir string

	Platform   string
	BotToken   string
	WebhookURL string
	Debug      bool

	DefaultWorkMinutes  int
	DefaultBreakMinutes int
	Presets             []Preset

	ResetTime     string
	ResetTimezone string

	JWTSecret         string
	TokenTTL          time.Duration
	AdminUsername     string
	AdminPasswordHash string
	CORSOrigins       []string
}

// fileConfig is the optional YAML overlay. Zero values keep the env-derived setting.
type fileConfig struct {
	Pomodoro struct {
		WorkMinutes  int      `yaml:"work_minutes"`
		BreakMinutes int      `yaml:"break_minutes"`
		Presets      []Preset `yaml:"presets"`
	} `yaml:"pomodoro"`
	Reset struct {
		Time     string `yaml:"time"`
		Timezone string `yaml:"timezone"`
	} `yaml:"reset"`
}

// LoadDotEnv loads a .env file when one exists. A missing file is not an error.
func LoadDotEnv(paths ...string) error {
	err := godotenv.Load(paths...)
	if err != nil && errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func Load() Config {
	return Config{
		Port:                getEnv("PORT", "8080"),
		DBPath:              getEnv("DB_PATH", "./data/pomodoro.db"),
		MigrationsDir:       getEnv("MIGRATIONS_DIR", "./migrations"),
		Platform:            strings.ToLower(getEnv("PLATFORM", PlatformTelegram)),
		BotToken:            getEnv("BOT_TOKEN", os.Getenv("TELEGRAM_TOKEN")),
		WebhookURL:          webhookURL(),
		Debug:               getEnvBool("DEBUG", false),
		DefaultWorkMinutes:  getEnvInt("DEFAULT_WORK_MINUTES", 25),
		DefaultBreakMinutes: getEnvInt("DEFAULT_BREAK_MINUTES", 5),
		Presets:             []Preset{{WorkMinutes: 25, BreakMinutes: 5}, {WorkMinutes: 50, BreakMinutes: 10}},
		ResetTime:           getEnv("RESET_TIME", "00:00"),
		ResetTimezone:       getEnv("RESET_TIMEZONE", "UTC"),
		JWTSecret:           getEnv("JWT_SECRET", "change-this-secret"),
		TokenTTL:            time.Duration(getEnvInt("TOKEN_TTL_HOURS", 72)) * time.Hour,
		AdminUsername:       getEnv("ADMIN_USERNAME", "admin"),
		AdminPasswordHash:   os.Getenv("ADMIN_PASSWORD_HASH"),
		CORSOrigins:         getEnvList("ADMIN_CORS_ORIGINS", nil),
	}
}

// LoadFile applies the YAML file at path on top of cfg.
func LoadFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var file fileConfig
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if file.Pomodoro.WorkMinutes > 0 {
		cfg.DefaultWorkMinutes = file.Pomodoro.WorkMinutes
	}
	if file.Pomodoro.BreakMinutes > 0 {
		cfg.DefaultBreakMinutes = file.Pomodoro.BreakMinutes
	}
	if len(file.Pomodoro.Presets) > 0 {
		presets := make([]Preset, 0, len(file.Pomodoro.Presets))
		for _, preset := range file.Pomodoro.Presets {
			if inRange(preset.WorkMinutes) && inRange(preset.BreakMinutes) {
				presets = append(presets, preset)
			}
		}
		if len(presets) > 0 {
			cfg.Presets = presets
		}
	}
	if file.Reset.Time != "" {
		cfg.ResetTime = file.Reset.Time
	}
	if file.Reset.Timezone != "" {
		cfg.ResetTimezone = file.Reset.Timezone
	}
	return nil
}

func (c Config) Validate() error {
	if !inRange(c.DefaultWorkMinutes) || !inRange(c.DefaultBreakMinutes) {
		return fmt.Errorf("default durations must be between 1 and %d minutes", model.MaxMinutes)
	}
	if c.Platform != PlatformTelegram && c.Platform != PlatformMax {
		return fmt.Errorf("unknown platform %q", c.Platform)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.ResetSchedule(); err != nil {
		return err
	}
	return nil
}

func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.ResetTimezone)
	if err != nil {
		return nil, fmt.Errorf("load reset timezone %q: %w", c.ResetTimezone, err)
	}
	return loc, nil
}

// ResetSchedule converts ResetTime ("HH:MM") into a five-field cron spec.
func (c Config) ResetSchedule() (string, error) {
	parsed, err := time.Parse("15:04", strings.TrimSpace(c.ResetTime))
	if err != nil {
		return "", fmt.Errorf("parse reset time %q: %w", c.ResetTime, err)
	}
	return fmt.Sprintf("%d %d * * *", parsed.Minute(), parsed.Hour()), nil
}

func inRange(minutes int) bool {
	return minutes > 0 && minutes <= model.MaxMinutes
}

func webhookURL() string {
	if value := os.Getenv("WEBHOOK_URL"); value != "" {
		return value
	}
	if domain := os.Getenv("RAILWAY_STATIC_URL"); domain != "" {
		return "https://" + domain + "/webhook/telegram"
	}
	return ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch value {
	case "":
		return fallback
	case "1", "t", "true", "yes":
		return true
	default:
		return false
	}
}

func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	items := make([]string, 0)
	for _, part := range strings.Split(value, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	if len(items) == 0 {
		return fallback
	}
	return items
}
