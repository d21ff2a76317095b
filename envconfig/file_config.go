package envconfig

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Config is the layout of the YAML configuration file. Environment
// variables take precedence over its server settings.
type Config struct {
	Server struct {
		Host        string   `yaml:"host"`
		Origins     []string `yaml:"origins"`
		MaxSessions int      `yaml:"max_sessions"`
		NumThreads  int      `yaml:"num_threads"`
		Debug       int      `yaml:"debug"`
	} `yaml:"server"`

	GrammarsDir string    `yaml:"grammars_dir"`
	Grammars    []Grammar `yaml:"grammars"`
}

// Grammar is a catalog entry. Either Builtin names a built-in grammar, or
// Grammar and Lexer name the definition files, or Pattern holds a regular
// expression. Continuations names a file with one JSON string per line
// used when a request brings none.
type Grammar struct {
	Name          string `yaml:"name"`
	Kind          string `yaml:"kind"`
	Builtin       string `yaml:"builtin,omitempty"`
	Grammar       string `yaml:"grammar,omitempty"`
	Lexer         string `yaml:"lexer,omitempty"`
	Pattern       string `yaml:"pattern,omitempty"`
	Continuations string `yaml:"continuations,omitempty"`
}

var (
	configOnce sync.Once
	config     *Config
)

// ReadConfig parses the configuration file at path. Relative paths in the
// grammar catalog are resolved against the directory of the file.
func ReadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}

	cfg.GrammarsDir = resolve(cfg.GrammarsDir)
	for i := range cfg.Grammars {
		g := &cfg.Grammars[i]
		g.Grammar = resolve(g.Grammar)
		g.Lexer = resolve(g.Lexer)
		g.Continuations = resolve(g.Continuations)
	}

	return &cfg, nil
}

func resetFileConfig() {
	configOnce = sync.Once{}
	config = nil
}

// FileConfig returns the configuration file named by TCU_CONFIG, or nil if
// there is none or it cannot be read.
func FileConfig() *Config {
	configOnce.Do(func() {
		if ConfigPath == "" {
			return
		}

		cfg, err := ReadConfig(ConfigPath)
		if err != nil {
			slog.Warn("failed to load config file", "error", err)
			return
		}

		slog.Debug("loaded config file", "path", ConfigPath)
		config = cfg
	})
	return config
}

func fileValue(key string) string {
	cfg := FileConfig()
	if cfg == nil {
		return ""
	}

	switch key {
	case "TCU_HOST":
		return cfg.Server.Host
	case "TCU_ORIGINS":
		return strings.Join(cfg.Server.Origins, ",")
	case "TCU_MAX_SESSIONS":
		if cfg.Server.MaxSessions > 0 {
			return strconv.Itoa(cfg.Server.MaxSessions)
		}
	case "TCU_NUM_THREADS":
		if cfg.Server.NumThreads > 0 {
			return strconv.Itoa(cfg.Server.NumThreads)
		}
	case "TCU_DEBUG":
		if cfg.Server.Debug > 0 {
			return strconv.Itoa(cfg.Server.Debug)
		}
	case "TCU_GRAMMARS":
		return cfg.GrammarsDir
	}

	return ""
}

// GenerateExampleConfig returns a commented example configuration.
func GenerateExampleConfig() string {
	return `# text correction utils configuration

server:
  # address of the server (default: "127.0.0.1:8765")
  host: 127.0.0.1:8765
  # additional allowed CORS origins
  origins: ["http://localhost:3000"]
  # constraint sessions kept in memory (default: 1024)
  max_sessions: 1024
  # goroutines for batched queries (default: number of CPUs)
  num_threads: 4
  # 1 for debug, 2 for trace logging
  debug: 0

# directory with one subdirectory per grammar holding <name>.y and <name>.l
grammars_dir: grammars

grammars:
  - name: arithmetic
    kind: exact-lr1
    builtin: calc
  - name: sparql
    kind: lr1
    grammar: sparql/sparql.y
    lexer: sparql/sparql.l
    continuations: vocab.jsonl
  - name: number
    kind: regex
    pattern: '[0-9]+(\.[0-9]+)?'
`
}
