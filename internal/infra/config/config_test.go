package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
servers:
  - id: primary
    host: news.example.com
    port: 563
    tls: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.Servers, 1)
	assert.Equal(t, 10, cfg.Servers[0].MaxConnection)
	assert.Equal(t, 1, cfg.Servers[0].Priority)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 15, cfg.Stream.MaxDownloadWorkers)
	assert.Equal(t, 30*time.Second, cfg.Stream.CloseTimeout)
	assert.Zero(t, cfg.Stream.ReadTimeout)
	assert.False(t, cfg.Stream.StrictIncomplete)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "nzbstream.db", cfg.Store.SQLitePath)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_StreamSection(t *testing.T) {
	path := writeConfig(t, `
servers:
  - id: primary
    host: news.example.com
    port: 119
    max_connections: 30
    priority: 2
stream:
  max_download_workers: 8
  close_timeout: 5s
  read_timeout: 2s
  strict_incomplete: true
  max_article_bytes: 1048576
store:
  driver: postgres
  postgres_dsn: postgres://localhost/nzbstream
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.Servers[0].MaxConnection)
	assert.Equal(t, 2, cfg.Servers[0].Priority)
	assert.Equal(t, 8, cfg.Stream.MaxDownloadWorkers)
	assert.Equal(t, 5*time.Second, cfg.Stream.CloseTimeout)
	assert.Equal(t, 2*time.Second, cfg.Stream.ReadTimeout)
	assert.True(t, cfg.Stream.StrictIncomplete)
	assert.Equal(t, int64(1048576), cfg.Stream.MaxArticleBytes)
	assert.Equal(t, "postgres", cfg.Store.Driver)
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeConfig(t, `
servers:
  - id: primary
    host: news.example.com
    port: 119
`)
	t.Setenv("NZBSTREAM_PORT", "9999")
	t.Setenv("NZBSTREAM_STREAM_MAX_DOWNLOAD_WORKERS", "4")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9999", cfg.Port)
	assert.Equal(t, 4, cfg.Stream.MaxDownloadWorkers)
}

func TestLoad_Validation(t *testing.T) {
	cases := map[string]string{
		"no servers": `port: "8080"`,
		"missing host": `
servers:
  - id: a
    port: 119
`,
		"duplicate id": `
servers:
  - id: a
    host: h
    port: 119
  - id: a
    host: h2
    port: 119
`,
		"postgres without dsn": `
servers:
  - id: a
    host: h
    port: 119
store:
  driver: postgres
`,
		"unknown driver": `
servers:
  - id: a
    host: h
    port: 119
store:
  driver: mongo
`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "config file not found")
}
