package configutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Host     string `json:"host"`
	Username string `json:"username"`
	Games    int    `json:"games"`
}

func TestLocalPath(t *testing.T) {
	require.Equal(t, filepath.Join("a", "config.local.json5"), LocalPath(filepath.Join("a", "config.json5")))
	require.Equal(t, filepath.Join("a", "deck.local"), LocalPath(filepath.Join("a", "deck")))
}

func TestReadConfig(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "config.json5")

	_, err := ReadConfig[testConfig](name)
	require.ErrorIs(t, err, os.ErrNotExist)

	err = os.WriteFile(name, []byte(`{
		// comments are fine in json5
		host:     "quiz.example.com",
		username: "admin@example.com",
		games:    2,
	}`), 0600)
	require.NoError(t, err)

	cfg, err := ReadConfig[testConfig](name)
	require.NoError(t, err)
	require.Equal(t, testConfig{Host: "quiz.example.com", Username: "admin@example.com", Games: 2}, cfg)

	err = os.WriteFile(LocalPath(name), []byte(`{host: "localhost:3000"}`), 0600)
	require.NoError(t, err)

	cfg, err = ReadConfig[testConfig](name)
	require.NoError(t, err)
	require.Equal(t, testConfig{Host: "localhost:3000", Username: "admin@example.com", Games: 2}, cfg)
}

func TestReadConfigInvalid(t *testing.T) {
	name := filepath.Join(t.TempDir(), "config.json5")
	err := os.WriteFile(name, []byte(`{host: `), 0600)
	require.NoError(t, err)

	_, err = ReadConfig[testConfig](name)
	require.Error(t, err)
	require.NotErrorIs(t, err, os.ErrNotExist)
}
