package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Settings holds the runtime configuration of the application.
type Settings struct {
	DataDir         string
	StoreKind       string
	Port            string
	Language        string
	CardDAVURL      string
	CardDAVUser     string
	RefreshInterval time.Duration
	Reminder        bool
	ReminderTrigger string // ISO8601 duration relative to the due date, e.g. "PT9H"
	Scoring         ScoringSettings
}

// ScoringSettings overrides the urgency scorer constants.
type ScoringSettings struct {
	OverdueWeight  float64
	SignalWeight   float64
	AffinityWeight float64
	SignalBoost    float64
	DefaultCadence int
}

// DefaultSettings returns Settings populated with the built-in defaults.
// DataDir is left empty and resolved by Load.
func DefaultSettings() Settings {
	return Settings{
		StoreKind:       DefaultStoreKind,
		Port:            DefaultPort,
		Language:        DefaultLanguage,
		RefreshInterval: DefaultRefreshMin * time.Minute,
		Reminder:        true,
		ReminderTrigger: DefaultReminderTrigger,
		Scoring: ScoringSettings{
			OverdueWeight:  DefaultWeightOverdue,
			SignalWeight:   DefaultWeightSignal,
			AffinityWeight: DefaultWeightAffinity,
			SignalBoost:    DefaultSignalBoost,
			DefaultCadence: DefaultCadenceDays,
		},
	}
}

// Load reads an optional .env file from the working directory, then the
// KETCHUP_* environment variables, on top of DefaultSettings. The
// overrides run last, in order, and the merged result is validated once,
// so a flag can correct a bad environment value.
func Load(overrides ...func(*Settings)) (Settings, error) {
	if err := godotenv.Load(EnvFileName); err == nil {
		slog.Debug(MsgEnvLoaded, LogKeyComponent, CompConfig, LogKeyFile, EnvFileName)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return Settings{}, fmt.Errorf("%s: %w", ErrEnvFile, err)
	}

	s := DefaultSettings()
	s.DataDir = getEnv(EnvDataDir, "")
	s.StoreKind = getEnv(EnvStore, s.StoreKind)
	s.Port = getEnv(EnvPort, s.Port)
	s.Language = getEnv(EnvLanguage, s.Language)
	s.CardDAVURL = getEnv(EnvCardDAVURL, "")
	s.CardDAVUser = getEnv(EnvCardDAVUser, "")
	s.RefreshInterval = time.Duration(getEnvInt(EnvRefreshMin, DefaultRefreshMin)) * time.Minute
	s.Reminder = getEnvBool(EnvReminder, s.Reminder)
	s.ReminderTrigger = getEnv(EnvReminderTrig, s.ReminderTrigger)
	s.Scoring.OverdueWeight = getEnvFloat(EnvWeightOverdue, s.Scoring.OverdueWeight)
	s.Scoring.SignalWeight = getEnvFloat(EnvWeightSignal, s.Scoring.SignalWeight)
	s.Scoring.AffinityWeight = getEnvFloat(EnvWeightAffinity, s.Scoring.AffinityWeight)
	s.Scoring.SignalBoost = getEnvFloat(EnvSignalBoost, s.Scoring.SignalBoost)
	s.Scoring.DefaultCadence = getEnvInt(EnvDefaultCadence, s.Scoring.DefaultCadence)

	for _, override := range overrides {
		override(&s)
	}

	if s.DataDir == "" {
		dir, err := DefaultDataDir()
		if err != nil {
			return Settings{}, err
		}
		s.DataDir = dir
	}

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks that the settings are usable.
func (s Settings) Validate() error {
	if err := ValidatePort(s.Port); err != nil {
		return err
	}
	switch s.StoreKind {
	case StoreKindFile, StoreKindYAML, StoreKindSQLite:
	default:
		return fmt.Errorf("%s: %q", ErrStoreUnsupported, s.StoreKind)
	}
	if s.RefreshInterval < 0 {
		return errors.New(ErrRefreshInterval)
	}
	if s.Scoring.DefaultCadence <= 0 {
		return errors.New(ErrDefaultCadence)
	}
	if s.Scoring.OverdueWeight < 0 || s.Scoring.SignalWeight < 0 ||
		s.Scoring.AffinityWeight < 0 || s.Scoring.SignalBoost < 0 {
		return errors.New(ErrWeightNegative)
	}
	return nil
}

// ValidatePort checks that port is a number within the TCP range.
func ValidatePort(port string) error {
	if port == "" {
		return errors.New(ErrPortRequired)
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return errors.New(ErrPortNumber)
	}
	if n < MinPort || n > MaxPort {
		return errors.New(ErrPortRange)
	}
	return nil
}

// StorePath returns the file the configured store kind lives in.
func (s Settings) StorePath() string {
	switch s.StoreKind {
	case StoreKindSQLite:
		return filepath.Join(s.DataDir, StoreFileDB)
	case StoreKindYAML:
		return filepath.Join(s.DataDir, StoreFileYAML)
	default:
		return filepath.Join(s.DataDir, StoreFileJSON)
	}
}

// ListenAddr returns the loopback bind address for the HTTP server.
func (s Settings) ListenAddr() string {
	return LocalhostBindAddr + AddrSeparator + s.Port
}

// DefaultDataDir returns the per-user config directory for the store.
func DefaultDataDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("%s: %w", ErrCacheDir, err)
	}
	return filepath.Join(base, AppID), nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}
