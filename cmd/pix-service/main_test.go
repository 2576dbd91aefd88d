package main

import (
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestSetupLogger(t *testing.T) {
	t.Cleanup(func() { setupLogger("", "") })

	setupLogger("JSON", "debug")
	require.IsType(t, &log.JSONFormatter{}, log.StandardLogger().Formatter)
	require.Equal(t, log.DebugLevel, log.GetLevel())

	setupLogger("text", "not-a-level")
	require.IsType(t, &log.TextFormatter{}, log.StandardLogger().Formatter)
	require.Equal(t, log.InfoLevel, log.GetLevel())
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "pix.env"), []byte("PIX_TEST_FROM_CONFIG=config\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("PIX_TEST_FROM_DOTENV=dotenv\nPIX_TEST_PRESET=file\n"), 0o600))

	t.Setenv("PIX_TEST_PRESET", "process")
	t.Cleanup(func() {
		_ = os.Unsetenv("PIX_TEST_FROM_CONFIG")
		_ = os.Unsetenv("PIX_TEST_FROM_DOTENV")
	})

	files := loadEnvFiles(dir)
	require.Len(t, files, 2)
	require.Equal(t, "config", os.Getenv("PIX_TEST_FROM_CONFIG"))
	require.Equal(t, "dotenv", os.Getenv("PIX_TEST_FROM_DOTENV"))
	require.Equal(t, "process", os.Getenv("PIX_TEST_PRESET"))
}

func TestLoadEnvFiles_NoFiles(t *testing.T) {
	require.Nil(t, loadEnvFiles(t.TempDir()))
}
