package commands

import (
	"errors"
	"fmt"
	"imperilment-submitter/internal/components/chrono"
	"imperilment-submitter/internal/components/configutil"
	"imperilment-submitter/internal/components/telemetry"
	"imperilment-submitter/internal/scrapers/imperilment"
	"os"
	"time"

	"dario.cat/mergo"
	"github.com/caarlos0/env/v11"
)

const (
	defaultGames             = 1
	defaultCategoriesPerGame = 6
	defaultRequestsPerSecond = 5
	defaultTimeoutSeconds    = 30
)

// Config is read from the config file, then overridden by IMPERILMENT_* environment
// variables (a .env file is loaded first), then by flags.
type Config struct {
	Host     string `json:"host" env:"IMPERILMENT_HOST"`
	Username string `json:"username" env:"IMPERILMENT_USERNAME"`
	Password string `json:"password" env:"IMPERILMENT_PASSWORD"`

	Games int `json:"games" env:"IMPERILMENT_GAMES"`
	// StartDate skips discovery when set, YYYY-MM-DD or RFC3339.
	StartDate string `json:"start_date" env:"IMPERILMENT_START_DATE"`

	Deck              string `json:"deck" env:"IMPERILMENT_DECK"`
	CategoriesPerGame int    `json:"categories_per_game"`
	// Seed shuffles the deck, 0 picks one from the clock.
	Seed int64 `json:"seed" env:"IMPERILMENT_SEED"`

	RequestsPerSecond float64 `json:"requests_per_second"`
	TimeoutSeconds    int     `json:"timeout_seconds"`
	DumpDir           string  `json:"dump_dir" env:"IMPERILMENT_DUMP_DIR"`

	Telemetry telemetry.Config `json:"telemetry"`
}

// loadConfig layers the config file, the environment and `flags`. A missing
// config file is only an error when it was asked for explicitly.
func loadConfig(path string, explicit bool, flags Config) (Config, error) {
	cfg, err := configutil.ReadConfig[Config](path)
	if errors.Is(err, os.ErrNotExist) && !explicit {
		err = nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	fromEnv, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	err = mergo.Merge(&cfg, fromEnv, mergo.WithOverride)
	if err != nil {
		return Config{}, err
	}
	err = mergo.Merge(&cfg, flags, mergo.WithOverride)
	if err != nil {
		return Config{}, err
	}

	cfg.applyDefaults()
	err = cfg.validate()
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Games <= 0 {
		c.Games = defaultGames
	}
	if c.CategoriesPerGame <= 0 {
		c.CategoriesPerGame = defaultCategoriesPerGame
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = defaultRequestsPerSecond
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = defaultTimeoutSeconds
	}
}

func (c Config) validate() error {
	var errlist []error
	if c.Host == "" {
		errlist = append(errlist, fmt.Errorf("host is required"))
	} else if _, err := imperilment.NormalizeBaseUrl(c.Host); err != nil {
		errlist = append(errlist, err)
	}
	if c.Username == "" {
		errlist = append(errlist, fmt.Errorf("username is required"))
	}
	if c.Password == "" {
		errlist = append(errlist, fmt.Errorf("password is required"))
	}
	if c.Deck == "" {
		errlist = append(errlist, fmt.Errorf("deck is required"))
	}
	if _, err := c.startDate(); err != nil {
		errlist = append(errlist, err)
	}
	return errors.Join(errlist...)
}

// startDate returns the zero Date when no start date is configured.
func (c Config) startDate() (chrono.Date, error) {
	if c.StartDate == "" {
		return chrono.Date{}, nil
	}
	date, err := chrono.ParseDate(c.StartDate)
	if err != nil {
		return chrono.Date{}, fmt.Errorf("start_date: %w", err)
	}
	return date, nil
}

func (c Config) clientOptions(output telemetry.MessageOutput) imperilment.ClientOptions {
	return imperilment.ClientOptions{
		BaseUrl:           c.Host,
		RequestsPerSecond: c.RequestsPerSecond,
		Timeout:           time.Duration(c.TimeoutSeconds) * time.Second,
		Output:            output,
	}
}

func (c Config) seed(clock chrono.API) int64 {
	if c.Seed != 0 {
		return c.Seed
	}
	return clock.Now().UnixNano()
}
