package envconfig

import (
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ad-freiburg/text-correction-utils/logutil"
)

func TestConfig(t *testing.T) {
	t.Setenv("TCU_CONFIG", "")
	t.Setenv("TCU_DEBUG", "")
	LoadConfig()
	require.False(t, Debug)
	assert.Equal(t, slog.LevelInfo, LogLevel())

	t.Setenv("TCU_DEBUG", "false")
	LoadConfig()
	require.False(t, Debug)

	t.Setenv("TCU_DEBUG", "1")
	LoadConfig()
	require.True(t, Debug)
	assert.Equal(t, slog.LevelDebug, LogLevel())

	t.Setenv("TCU_DEBUG", "2")
	LoadConfig()
	require.True(t, Trace)
	assert.Equal(t, logutil.LevelTrace, LogLevel())

	t.Setenv("TCU_DEBUG", "yes please")
	LoadConfig()
	require.True(t, Debug)
	require.False(t, Trace)
}

func TestHost(t *testing.T) {
	cases := map[string]struct {
		value  string
		expect string
	}{
		"empty":            {"", "127.0.0.1:8765"},
		"only address":     {"1.2.3.4", "1.2.3.4:8765"},
		"only port":        {":1234", ":1234"},
		"address and port": {"1.2.3.4:1234", "1.2.3.4:1234"},
		"hostname":         {"example.com", "example.com:8765"},
		"scheme":           {"http://example.com:80/", "example.com:80"},
		"ipv6":             {"[::1]:1234", "[::1]:1234"},
		"bad port":         {"example.com:99999", "example.com:8765"},
	}

	for name, tt := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("TCU_CONFIG", "")
			t.Setenv("TCU_HOST", tt.value)
			LoadConfig()
			assert.Equal(t, tt.expect, Host)
		})
	}
}

func TestPositive(t *testing.T) {
	t.Setenv("TCU_CONFIG", "")

	t.Setenv("TCU_MAX_SESSIONS", "16")
	t.Setenv("TCU_NUM_THREADS", "0")
	LoadConfig()
	assert.Equal(t, 16, MaxSessions)
	assert.Equal(t, runtime.NumCPU(), NumThreads)

	t.Setenv("TCU_MAX_SESSIONS", "many")
	t.Setenv("TCU_NUM_THREADS", "3")
	LoadConfig()
	assert.Equal(t, 1024, MaxSessions)
	assert.Equal(t, 3, NumThreads)
}

func TestOrigins(t *testing.T) {
	t.Setenv("TCU_CONFIG", "")
	t.Setenv("TCU_ORIGINS", "http://10.0.0.1,https://example.com")
	LoadConfig()

	assert.Equal(t, []string{"http://10.0.0.1", "https://example.com"}, AllowOrigins[:2])
	assert.Contains(t, AllowOrigins, "http://localhost:*")
	assert.Len(t, AllowOrigins, 2+4*len(defaultAllowOrigins))
}

func TestFileConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  host: 0.0.0.0:9000
  max_sessions: 8
  debug: 1
grammars_dir: extra
grammars:
  - name: arithmetic
    kind: exact-lr1
    builtin: calc
  - name: mine
    grammar: mine/mine.y
    lexer: /abs/mine.l
`), 0o644))

	t.Setenv("TCU_CONFIG", path)
	t.Setenv("TCU_HOST", "")
	t.Setenv("TCU_DEBUG", "")
	t.Setenv("TCU_MAX_SESSIONS", "32")
	t.Setenv("TCU_GRAMMARS", "")
	LoadConfig()

	assert.Equal(t, "0.0.0.0:9000", Host)
	assert.True(t, Debug)
	assert.Equal(t, 32, MaxSessions, "environment wins")
	assert.Equal(t, filepath.Join(dir, "extra"), GrammarsDir)

	cfg := FileConfig()
	require.NotNil(t, cfg)
	require.Len(t, cfg.Grammars, 2)
	assert.Equal(t, "calc", cfg.Grammars[0].Builtin)
	assert.Equal(t, filepath.Join(dir, "mine", "mine.y"), cfg.Grammars[1].Grammar)
	assert.Equal(t, "/abs/mine.l", cfg.Grammars[1].Lexer)
}

func TestFileConfigInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [1, 2"), 0o644))

	_, err := ReadConfig(path)
	assert.ErrorContains(t, err, "error parsing config file")

	t.Setenv("TCU_CONFIG", path)
	t.Setenv("TCU_HOST", "")
	LoadConfig()
	assert.Nil(t, FileConfig())
	assert.Equal(t, "127.0.0.1:8765", Host)
}

func TestExampleConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(GenerateExampleConfig()), 0o644))

	cfg, err := ReadConfig(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Grammars, 3)
	assert.Equal(t, 1024, cfg.Server.MaxSessions)
}

func TestAsMap(t *testing.T) {
	for k, v := range AsMap() {
		assert.Equal(t, k, v.Name)
		assert.NotEmpty(t, v.Description, k)
	}
	assert.Len(t, Values(), len(AsMap()))
}
