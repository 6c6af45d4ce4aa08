package ludus

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultScriptDir    = "scripts"
	defaultInstanceDir  = "instances"
	defaultArchetypeDir = "archetypes"
	defaultCodebaseDir  = "codebase"
	defaultGracePeriod  = 5 * time.Second
)

// Config describes one ludus installation. There is no package-level
// default; every Controller is built from an explicit Config.
type Config struct {
	// Root is the tool's working root. Commands run with Root as their
	// working directory and the layout directories below are relative to it.
	Root string

	// Executable, when set, is invoked as "<Executable> <verb> args...".
	// When empty each verb is its own program found in ScriptDir.
	Executable string

	ScriptDir    string // default "scripts"
	InstanceDir  string // default "instances"
	ArchetypeDir string // default "archetypes"
	CodebaseDir  string // default "codebase"

	// ExtraPaths are prepended to PATH after ScriptDir.
	ExtraPaths []string

	// Env is added to the inherited environment of every invocation.
	// Entries override values read from EnvFile.
	Env map[string]string

	// EnvFile is a dotenv file, relative to Root unless absolute.
	EnvFile string

	// Timeout bounds each external invocation. Zero means no timeout.
	Timeout time.Duration

	// GracePeriod is how long a cancelled process has between SIGTERM and SIGKILL.
	GracePeriod time.Duration

	// Patterns override the stderr patterns used to classify failures.
	Patterns Patterns
}

// Patterns are regular expressions matched against the tool's stderr.
// Empty fields keep the defaults from DefaultPatterns.
type Patterns struct {
	Exists    string `yaml:"exists" toml:"exists"`
	NotFound  string `yaml:"notFound" toml:"not_found"`
	ConfigKey string `yaml:"configKey" toml:"config_key"`
}

// NewConfig returns a Config for root with the default layout.
func NewConfig(root string) Config {
	return Config{Root: root}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.ScriptDir == "" {
		c.ScriptDir = defaultScriptDir
	}
	if c.InstanceDir == "" {
		c.InstanceDir = defaultInstanceDir
	}
	if c.ArchetypeDir == "" {
		c.ArchetypeDir = defaultArchetypeDir
	}
	if c.CodebaseDir == "" {
		c.CodebaseDir = defaultCodebaseDir
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = defaultGracePeriod
	}
	return c
}

// Validate reports configuration errors that would make every call fail.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Root) == "" {
		return fmt.Errorf("config missing root")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("config timeout must not be negative")
	}
	return nil
}

// ScriptPath returns the scripts directory resolved against Root.
func (c Config) ScriptPath() string { return c.resolve(c.ScriptDir) }

// InstancesPath returns the directory instances are created in.
func (c Config) InstancesPath() string { return c.resolve(c.InstanceDir) }

// ArchetypesPath returns the directory archetypes are read from.
func (c Config) ArchetypesPath() string { return c.resolve(c.ArchetypeDir) }

// CodebasePath returns the codebase directory passed to instance-run.
func (c Config) CodebasePath() string { return c.resolve(c.CodebaseDir) }

func (c Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Root, p)
}

// Environment merges EnvFile and Env. Env wins on conflicts.
func (c Config) Environment() (map[string]string, error) {
	env := make(map[string]string, len(c.Env))
	if c.EnvFile != "" {
		loaded, err := godotenv.Read(c.resolve(c.EnvFile))
		if err != nil {
			return nil, fmt.Errorf("read env file: %w", err)
		}
		for k, v := range loaded {
			env[k] = v
		}
	}
	for k, v := range c.Env {
		env[k] = v
	}
	return env, nil
}

// fileConfig is the on-disk shape of a Config. Durations are strings.
type fileConfig struct {
	Root         string            `yaml:"root" toml:"root"`
	Executable   string            `yaml:"executable" toml:"executable"`
	ScriptDir    string            `yaml:"scriptDir" toml:"script_dir"`
	InstanceDir  string            `yaml:"instanceDir" toml:"instance_dir"`
	ArchetypeDir string            `yaml:"archetypeDir" toml:"archetype_dir"`
	CodebaseDir  string            `yaml:"codebaseDir" toml:"codebase_dir"`
	ExtraPaths   []string          `yaml:"extraPaths" toml:"extra_paths"`
	Env          map[string]string `yaml:"env" toml:"env"`
	EnvFile      string            `yaml:"envFile" toml:"env_file"`
	Timeout      string            `yaml:"timeout" toml:"timeout"`
	GracePeriod  string            `yaml:"gracePeriod" toml:"grace_period"`
	Patterns     Patterns          `yaml:"patterns" toml:"patterns"`
}

// LoadConfig reads a YAML or TOML configuration file, chosen by extension
// (.toml is TOML, anything else YAML). Unknown keys are rejected. A
// relative root is resolved against the file's directory; an empty root
// defaults to that directory.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}

	var raw fileConfig
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		meta, err := toml.Decode(string(data), &raw)
		if err != nil {
			return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return Config{}, fmt.Errorf("config parse failed (%s): unknown key %q", path, undecoded[0].String())
		}
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
	}

	cfg, err := raw.toConfig(filepath.Dir(path))
	if err != nil {
		return Config{}, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	return cfg, nil
}

func (f fileConfig) toConfig(baseDir string) (Config, error) {
	cfg := Config{
		Root:         strings.TrimSpace(f.Root),
		Executable:   strings.TrimSpace(f.Executable),
		ScriptDir:    f.ScriptDir,
		InstanceDir:  f.InstanceDir,
		ArchetypeDir: f.ArchetypeDir,
		CodebaseDir:  f.CodebaseDir,
		ExtraPaths:   f.ExtraPaths,
		Env:          f.Env,
		EnvFile:      f.EnvFile,
		Patterns:     f.Patterns,
	}
	switch {
	case cfg.Root == "":
		cfg.Root = baseDir
	case !filepath.IsAbs(cfg.Root):
		cfg.Root = filepath.Join(baseDir, cfg.Root)
	}

	if s := strings.TrimSpace(f.Timeout); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return Config{}, fmt.Errorf("parse timeout: %w", err)
		}
		cfg.Timeout = d
	}
	if s := strings.TrimSpace(f.GracePeriod); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return Config{}, fmt.Errorf("parse grace period: %w", err)
		}
		cfg.GracePeriod = d
	}

	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
