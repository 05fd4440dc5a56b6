package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleApp = `title: 测试看板
server:
  port: 9000
  read_timeout: 10s
storage:
  path: data/jobs.db
downloads:
  token_ttl: 5m
cors:
  allowed_origins:
    - http://localhost:3000
`

func TestLoadAppliesFileOverDefaults(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/srv/bsc_web.yaml", []byte(sampleApp), 0644))

	conf := Default()
	require.NoError(t, Load(fs, "/srv/bsc_web.yaml", &conf))

	assert.Equal(t, "测试看板", conf.Title)
	assert.Equal(t, "localhost", conf.Server.Address)
	assert.Equal(t, 9000, conf.Server.Port)
	assert.Equal(t, 10*time.Second, conf.Server.ReadTimeout)
	assert.Equal(t, 32, conf.Storage.CacheSize)
	assert.Equal(t, 5*time.Minute, conf.Downloads.TokenTTL)
	assert.Equal(t, []string{"http://localhost:3000"}, conf.CORS.AllowedOrigins)
	assert.Equal(t, "/srv/bsc_web.yaml", conf.OriginalPath)
	assert.NoError(t, conf.Validate())

	conf.Resolve()
	assert.Equal(t, filepath.Join("/srv", "data/jobs.db"), conf.Storage.Path)
	assert.Equal(t, filepath.Join("/srv", "bsc_download.key"), conf.Downloads.SecretPath)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "bsc_web.yaml", []byte(sampleApp), 0644))
	t.Setenv("BSC_SERVER_PORT", "9100")
	t.Setenv("BSC_STORAGE_CACHE_SIZE", "4")
	t.Setenv("BSC_CORS_ALLOWED_ORIGINS", "http://a,http://b")

	conf := Default()
	require.NoError(t, Load(fs, "bsc_web.yaml", &conf))

	assert.Equal(t, 9100, conf.Server.Port)
	assert.Equal(t, 4, conf.Storage.CacheSize)
	assert.Equal(t, []string{"http://a", "http://b"}, conf.CORS.AllowedOrigins)
}

func TestLoadIgnoresUnprefixedEnvironment(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/srv/bsc_web.yaml", []byte("title: 看板\n"), 0644))
	t.Setenv("PATH", "/usr/local/bin:/usr/bin:/bin")
	t.Setenv("PORT", "3000")
	t.Setenv("ADDRESS", "0.0.0.0")
	t.Setenv("TITLE", "other")
	t.Setenv("RETENTION", "1h")
	t.Setenv("CACHE_SIZE", "1")

	conf := Default()
	require.NoError(t, Load(fs, "/srv/bsc_web.yaml", &conf))

	assert.Equal(t, "看板", conf.Title)
	assert.Equal(t, "bsc_jobs.db", conf.Storage.Path)
	assert.Equal(t, 8501, conf.Server.Port)
	assert.Equal(t, "localhost", conf.Server.Address)
	assert.Equal(t, 7*24*time.Hour, conf.Storage.Retention)
	assert.Equal(t, 32, conf.Storage.CacheSize)
}

func TestWriteDefaultIgnoresUnprefixedEnvironment(t *testing.T) {
	fs := afero.NewMemMapFs()
	t.Setenv("PATH", "/usr/local/bin:/usr/bin:/bin")
	t.Setenv("BSC_STORAGE_PATH", "jobs.db")

	conf := Default()
	require.NoError(t, Load(fs, "/srv/bsc_web.yaml", &conf))
	assert.Equal(t, "jobs.db", conf.Storage.Path)

	written, err := afero.ReadFile(fs, "/srv/bsc_web.yaml")
	require.NoError(t, err)
	assert.NotContains(t, string(written), "/usr/bin")
	assert.Contains(t, string(written), "path: jobs.db")
}

func TestLoadWritesDefaultWhenMissing(t *testing.T) {
	fs := afero.NewMemMapFs()

	conf := Default()
	require.NoError(t, Load(fs, "bsc_web.yaml", &conf))
	assert.Equal(t, 8501, conf.Server.Port)

	exists, err := afero.Exists(fs, "bsc_web.yaml")
	require.NoError(t, err)
	assert.True(t, exists, "default application file should be written")

	reloaded := Config{}
	require.NoError(t, Load(fs, "bsc_web.yaml", &reloaded))
	assert.Equal(t, Default().Downloads.TokenTTL, reloaded.Downloads.TokenTTL)
	assert.Equal(t, Default().Upload.MaxBytes, reloaded.Upload.MaxBytes)
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "bad.yaml", []byte("server: [1, 2"), 0644))

	conf := Default()
	assert.Error(t, Load(fs, "bad.yaml", &conf))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		valid  bool
	}{
		{"defaults", func(*Config) {}, true},
		{"port zero", func(c *Config) { c.Server.Port = 0 }, false},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }, false},
		{"empty address", func(c *Config) { c.Server.Address = "" }, false},
		{"cache size", func(c *Config) { c.Storage.CacheSize = 0 }, false},
		{"no retention", func(c *Config) { c.Storage.Retention = 0 }, true},
		{"negative retention", func(c *Config) { c.Storage.Retention = -time.Hour }, false},
		{"upload size", func(c *Config) { c.Upload.MaxBytes = -1 }, false},
		{"token ttl", func(c *Config) { c.Downloads.TokenTTL = 0 }, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			conf := Default()
			tc.modify(&conf)
			if tc.valid {
				assert.NoError(t, conf.Validate())
			} else {
				assert.Error(t, conf.Validate())
			}
		})
	}
}

func TestListen(t *testing.T) {
	assert.Equal(t, "localhost:8501", Default().Server.Listen())
}
