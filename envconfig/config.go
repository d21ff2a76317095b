package envconfig

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/ad-freiburg/text-correction-utils/logutil"
)

var (
	// Set via TCU_HOST in the environment
	Host string
	// Set via TCU_DEBUG in the environment
	Debug bool
	// Set via TCU_DEBUG=2 in the environment
	Trace bool
	// Set via TCU_ORIGINS in the environment
	AllowOrigins []string
	// Set via TCU_MAX_SESSIONS in the environment
	MaxSessions int
	// Set via TCU_NUM_THREADS in the environment
	NumThreads int
	// Set via TCU_CONFIG in the environment
	ConfigPath string
	// Set via TCU_GRAMMARS in the environment
	GrammarsDir string
)

const (
	defaultHost = "127.0.0.1"
	defaultPort = "8765"
)

type EnvVar struct {
	Name        string
	Value       any
	Description string
}

func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"TCU_HOST":         {"TCU_HOST", Host, "IP address and port of the server (default 127.0.0.1:8765)"},
		"TCU_DEBUG":        {"TCU_DEBUG", Debug, "Show additional debug information (e.g. TCU_DEBUG=1, TCU_DEBUG=2 for tracing)"},
		"TCU_ORIGINS":      {"TCU_ORIGINS", AllowOrigins, "A comma separated list of allowed origins"},
		"TCU_MAX_SESSIONS": {"TCU_MAX_SESSIONS", MaxSessions, "Maximum number of constraint sessions kept by the server (default 1024)"},
		"TCU_NUM_THREADS":  {"TCU_NUM_THREADS", NumThreads, "Maximum number of goroutines for batched queries (default number of CPUs)"},
		"TCU_CONFIG":       {"TCU_CONFIG", ConfigPath, "Path to a YAML configuration file"},
		"TCU_GRAMMARS":     {"TCU_GRAMMARS", GrammarsDir, "Directory with additional grammars, one subdirectory per grammar"},
	}
}

func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}

var defaultAllowOrigins = []string{
	"localhost",
	"127.0.0.1",
	"0.0.0.0",
}

// clean quotes and spaces from the value
func clean(key string) string {
	return strings.Trim(os.Getenv(key), "\"' ")
}

// lookup returns the environment value of key, falling back to the
// configuration file.
func lookup(key string) string {
	if v := clean(key); v != "" {
		return v
	}
	return fileValue(key)
}

func init() {
	LoadConfig()
}

// LoadConfig reads the configuration from the environment and the
// configuration file. Invalid values are logged and replaced by their
// defaults.
func LoadConfig() {
	ConfigPath = clean("TCU_CONFIG")
	resetFileConfig()

	Host = host(lookup("TCU_HOST"))

	Debug, Trace = false, false
	if debug := lookup("TCU_DEBUG"); debug != "" {
		if n, err := strconv.Atoi(debug); err == nil {
			Debug, Trace = n > 0, n > 1
		} else if d, err := strconv.ParseBool(debug); err == nil {
			Debug = d
		} else {
			Debug = true
		}
	}

	AllowOrigins = nil
	if origins := lookup("TCU_ORIGINS"); origins != "" {
		AllowOrigins = strings.Split(origins, ",")
	}
	for _, allowOrigin := range defaultAllowOrigins {
		AllowOrigins = append(AllowOrigins,
			fmt.Sprintf("http://%s", allowOrigin),
			fmt.Sprintf("https://%s", allowOrigin),
			fmt.Sprintf("http://%s:*", allowOrigin),
			fmt.Sprintf("https://%s:*", allowOrigin),
		)
	}

	MaxSessions = positive("TCU_MAX_SESSIONS", 1024)
	NumThreads = positive("TCU_NUM_THREADS", runtime.NumCPU())

	GrammarsDir = lookup("TCU_GRAMMARS")
}

func positive(key string, fallback int) int {
	s := lookup(key)
	if s == "" {
		return fallback
	}

	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		slog.Error("invalid setting must be greater than zero", key, s, "error", err)
		return fallback
	}
	return n
}

// host returns s as host:port, filling in the defaults for missing parts.
func host(s string) string {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "http://"), "https://")
	s = strings.TrimSuffix(s, "/")
	if s == "" {
		return net.JoinHostPort(defaultHost, defaultPort)
	}

	h, p, err := net.SplitHostPort(s)
	if err != nil {
		h, p = s, defaultPort
	}

	if p == "" {
		p = defaultPort
	}
	if n, err := strconv.Atoi(p); err != nil || n < 0 || n > 65535 {
		slog.Warn("invalid port, using default", "port", p, "default", defaultPort)
		p = defaultPort
	}

	return net.JoinHostPort(strings.Trim(h, "[]"), p)
}

// LogLevel is the level of the default logger.
func LogLevel() slog.Level {
	switch {
	case Trace:
		return logutil.LevelTrace
	case Debug:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
