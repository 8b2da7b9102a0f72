package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, name, content string) string {
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoadToml(t *testing.T) {
	p := write(t, "hotwire.toml", `
dir = "/opt/modules"
watch = true
poll = "250ms"
concurrency = 4

[[modules]]
path = "console.o"

[[modules]]
path = "/abs/greeter.o"
package = "greeter"

[symbols]
so = ["libhost.so"]

[log]
level = "debug"
no_color = true
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "/opt/modules", cfg.Dir)
	assert.True(t, cfg.Watch)
	assert.Equal(t, 250*time.Millisecond, cfg.Poll.Duration)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, []string{"libhost.so"}, cfg.Symbols.So)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.NoColor)
	assert.True(t, cfg.Log.Timestamp)

	ms, err := cfg.Resolve()
	require.NoError(t, err)
	require.Len(t, ms, 2)
	assert.Equal(t, filepath.Join("/opt/modules", "console.o"), ms[0].Path)
	assert.Equal(t, Module{Path: "/abs/greeter.o", Package: "greeter"}, ms[1])
}

func TestLoadYaml(t *testing.T) {
	p := write(t, "hotwire.yaml", `
dir: mods
poll: 2s
modules:
  - path: a.linkable
log:
  level: warn
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "mods", cfg.Dir)
	assert.Equal(t, 2*time.Second, cfg.Poll.Duration)
	require.Len(t, cfg.Modules, 1)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvDir, "/env/dir")
	t.Setenv(EnvWatch, "true")
	t.Setenv(EnvConcurrency, "7")
	cfg, err := Load(write(t, "c.toml", `dir = "x"`))
	require.NoError(t, err)
	assert.Equal(t, "/env/dir", cfg.Dir)
	assert.True(t, cfg.Watch)
	assert.Equal(t, 7, cfg.Concurrency)
}

func TestInvalid(t *testing.T) {
	_, err := Load(write(t, "c.json", `{}`))
	require.ErrorIs(t, err, ErrFormat)
	_, err = Load(write(t, "c.toml", `concurrency = -1`))
	require.ErrorIs(t, err, ErrInvalid)
	_, err = Load(write(t, "c.toml", "[[modules]]\npackage = \"x\"\n"))
	require.ErrorIs(t, err, ErrInvalid)
	_, err = Load(write(t, "c.toml", `poll = "soon"`))
	require.Error(t, err)
	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestResolveDirectory(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"b.o", "a.linkable", "c.a", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "b"), os.ModePerm))
	ms, err := Config{Dir: dir}.Resolve()
	require.NoError(t, err)
	require.Len(t, ms, 3)
	assert.Equal(t, filepath.Join(dir, "a.linkable"), ms[0].Path)
	assert.Equal(t, filepath.Join(dir, "b.o"), ms[1].Path)
	assert.Equal(t, filepath.Join(dir, "c.a"), ms[2].Path)
	assert.True(t, IsModule("x.o"))
	assert.False(t, IsModule("x.so"))
}
