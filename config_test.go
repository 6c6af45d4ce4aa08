//go:build testing

package ludus

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig("/srv/ludus")
	assert.Equal(t, "/srv/ludus/scripts", cfg.ScriptPath())
	assert.Equal(t, "/srv/ludus/instances", cfg.InstancesPath())
	assert.Equal(t, "/srv/ludus/archetypes", cfg.ArchetypesPath())
	assert.Equal(t, "/srv/ludus/codebase", cfg.CodebasePath())
	assert.Equal(t, 5*time.Second, cfg.GracePeriod)
	assert.Zero(t, cfg.Timeout)
}

func TestConfig_AbsoluteLayoutDirs(t *testing.T) {
	cfg := NewConfig("/srv/ludus")
	cfg.InstanceDir = "/var/lib/ludus/instances"
	assert.Equal(t, "/var/lib/ludus/instances", cfg.InstancesPath())
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, NewConfig("/srv/ludus").Validate())
	assert.Error(t, NewConfig("").Validate())
	assert.Error(t, NewConfig("  ").Validate())

	cfg := NewConfig("/srv/ludus")
	cfg.Timeout = -time.Second
	assert.Error(t, cfg.Validate())
}

func TestConfig_Environment(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "ludus.env"), "A=1\nB=2\n")

	cfg := NewConfig(root)
	cfg.EnvFile = "ludus.env"
	cfg.Env = map[string]string{"B": "override", "C": "3"}

	env, err := cfg.Environment()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"A": "1", "B": "override", "C": "3"}, env)
}

func TestConfig_Environment_NoFile(t *testing.T) {
	env, err := NewConfig(t.TempDir()).Environment()
	require.NoError(t, err)
	assert.Empty(t, env)
}

func TestLoadConfig_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ludus.yaml")
	writeFile(t, path, `
root: tool
executable: bin/ludus
instanceDir: /var/lib/ludus
extraPaths: [bin]
env:
  LUDUS_MODE: test
envFile: .env
timeout: 30s
gracePeriod: 2s
patterns:
  notFound: "E404"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "tool"), cfg.Root)
	assert.Equal(t, "bin/ludus", cfg.Executable)
	assert.Equal(t, "/var/lib/ludus", cfg.InstancesPath())
	assert.Equal(t, filepath.Join(dir, "tool", "scripts"), cfg.ScriptPath())
	assert.Equal(t, []string{"bin"}, cfg.ExtraPaths)
	assert.Equal(t, map[string]string{"LUDUS_MODE": "test"}, cfg.Env)
	assert.Equal(t, ".env", cfg.EnvFile)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 2*time.Second, cfg.GracePeriod)
	assert.Equal(t, "E404", cfg.Patterns.NotFound)
}

func TestLoadConfig_TOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ludus.toml")
	writeFile(t, path, `
root = "/srv/ludus"
script_dir = "bin"
extra_paths = ["/opt/ludus/bin"]
timeout = "1m"

[env]
LUDUS_MODE = "test"

[patterns]
config_key = "bad key"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/ludus", cfg.Root)
	assert.Equal(t, "/srv/ludus/bin", cfg.ScriptPath())
	assert.Equal(t, []string{"/opt/ludus/bin"}, cfg.ExtraPaths)
	assert.Equal(t, time.Minute, cfg.Timeout)
	assert.Equal(t, 5*time.Second, cfg.GracePeriod)
	assert.Equal(t, "test", cfg.Env["LUDUS_MODE"])
	assert.Equal(t, "bad key", cfg.Patterns.ConfigKey)
}

func TestLoadConfig_EmptyFileUsesItsDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ludus.yml")
	writeFile(t, path, "")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.Root)
	assert.Equal(t, filepath.Join(dir, "instances"), cfg.InstancesPath())
}

func TestLoadConfig_UnknownKey(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "ludus.yaml")
	writeFile(t, yamlPath, "root: /srv/ludus\ninstancesDir: x\n")
	_, err := LoadConfig(yamlPath)
	assert.Error(t, err)

	tomlPath := filepath.Join(dir, "ludus.toml")
	writeFile(t, tomlPath, "root = \"/srv/ludus\"\ninstances = \"x\"\n")
	_, err = LoadConfig(tomlPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown key "instances"`)
}

func TestLoadConfig_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	writeFile(t, bad, "root: [unterminated\n")
	_, err = LoadConfig(bad)
	assert.Error(t, err)

	badTimeout := filepath.Join(dir, "timeout.yaml")
	writeFile(t, badTimeout, "timeout: soon\n")
	_, err = LoadConfig(badTimeout)
	assert.Error(t, err)

	negative := filepath.Join(dir, "negative.toml")
	writeFile(t, negative, "timeout = \"-1s\"\n")
	_, err = LoadConfig(negative)
	assert.Error(t, err)
}
