package commands

import (
	"imperilment-submitter/internal/components/chrono"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t testing.TB, contents string) string {
	path := filepath.Join(t.TempDir(), "config.json5")
	err := os.WriteFile(path, []byte(contents), 0600)
	require.NoError(t, err)
	return path
}

func TestLoadConfigLayers(t *testing.T) {
	path := writeConfig(t, `{
		host:                "quiz.example.com",
		username:            "file@example.com",
		password:            "from the file",
		deck:                "deck.json5",
		games:               3,
		requests_per_second: 2.5,
	}`)
	t.Setenv("IMPERILMENT_USERNAME", "env@example.com")
	t.Setenv("IMPERILMENT_START_DATE", "2024-02-21")

	cfg, err := loadConfig(path, true, Config{Games: 4, Deck: "other.json5"})
	require.NoError(t, err)

	require.Equal(t, "quiz.example.com", cfg.Host)
	require.Equal(t, "env@example.com", cfg.Username)
	require.Equal(t, "from the file", cfg.Password)
	require.Equal(t, "other.json5", cfg.Deck)
	require.Equal(t, 4, cfg.Games)
	require.Equal(t, 2.5, cfg.RequestsPerSecond)
	require.Equal(t, defaultCategoriesPerGame, cfg.CategoriesPerGame)
	require.Equal(t, defaultTimeoutSeconds, cfg.TimeoutSeconds)

	start, err := cfg.startDate()
	require.NoError(t, err)
	require.Equal(t, chrono.NewDate(2024, time.February, 21), start)

	opts := cfg.clientOptions(nil)
	require.Equal(t, "quiz.example.com", opts.BaseUrl)
	require.Equal(t, 30*time.Second, opts.Timeout)
}

func TestLoadConfigMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "config.json5")
	flags := Config{
		Host:     "localhost:3000",
		Username: "admin@example.com",
		Password: "hunter22",
		Deck:     "deck.json5",
	}

	cfg, err := loadConfig(missing, false, flags)
	require.NoError(t, err)
	require.Equal(t, defaultGames, cfg.Games)
	require.Equal(t, float64(defaultRequestsPerSecond), cfg.RequestsPerSecond)

	_, err = loadConfig(missing, true, flags)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadConfigInvalid(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "config.json5")

	table := []struct {
		name  string
		flags Config
	}{
		{name: "nothing set", flags: Config{}},
		{name: "bad host", flags: Config{Host: "ftp://quiz.example.com", Username: "a", Password: "b", Deck: "d"}},
		{name: "no deck", flags: Config{Host: "quiz.example.com", Username: "a", Password: "b"}},
		{name: "bad start date", flags: Config{Host: "quiz.example.com", Username: "a", Password: "b", Deck: "d", StartDate: "next monday"}},
	}
	for _, row := range table {
		_, err := loadConfig(missing, false, row.flags)
		require.Error(t, err, row.name)
	}
}

func TestSeed(t *testing.T) {
	clock := chrono.FixedImpl{At: time.Unix(1700000000, 0)}
	require.Equal(t, int64(7), Config{Seed: 7}.seed(clock))
	require.Equal(t, clock.At.UnixNano(), Config{}.seed(clock))
}
