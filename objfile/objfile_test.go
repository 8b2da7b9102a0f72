package objfile

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/ZenLiuCN/fn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	moduleGreeter = "../testdata/greeter.o"
	moduleConsole = "../testdata/console.o"
)

func double(x int) int { return x * 2 }

func TestFunc(t *testing.T) {
	f := Func[func(int) int](reflect.ValueOf(double).Pointer())
	assert.Equal(t, 8, f(4))
}

func TestUseRecovers(t *testing.T) {
	boom := errors.New("boom")
	err := Use(reflect.ValueOf(double).Pointer(), func(f func(int) int) error {
		if f(1) == 2 {
			panic(boom)
		}
		return nil
	})
	require.ErrorIs(t, err, ErrPanicked)
	require.ErrorIs(t, err, boom)
	err = Use(reflect.ValueOf(double).Pointer(), func(f func(int) int) error {
		panic("text")
	})
	require.ErrorIs(t, err, ErrPanicked)
}

func TestStem(t *testing.T) {
	assert.Equal(t, "greeter", stem("/a/b/greeter.o"))
	assert.Equal(t, "pack", stem("pack.linkable"))
	assert.Equal(t, "pkg.Run", qualify("pkg.Run"))
	assert.Equal(t, "main.Run", qualify("Run"))
	assert.Equal(t, "a, b", brief([]string{"a", "b"}))
	assert.Contains(t, brief([]string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10"}), "and 2 more")
}

func TestResolveMissingWithoutDirectory(t *testing.T) {
	files, pkgs, err := ResolveMissing(filepath.Join(t.TempDir(), "alone.o"), []string{"x.Y"})
	require.NoError(t, err)
	assert.Empty(t, files)
	assert.Empty(t, pkgs)
}

func TestResolveMissingSkipsOtherFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "mod", "nested.o"), os.ModePerm))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mod", "readme.txt"), []byte("x"), 0o644))
	files, _, err := ResolveMissing(filepath.Join(dir, "mod.o"), []string{"x.Y"})
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestUnsupported(t *testing.T) {
	c := fn.Panic1(New())
	_, err := c.Load("module.so")
	require.ErrorIs(t, err, ErrUnsupported)
}

func fixture(t *testing.T, path string) {
	if _, err := os.Stat(path); err != nil {
		t.Skipf("compiled fixture %s absent, build it with: hotwire compile", path)
	}
}

func TestLoadObject(t *testing.T) {
	fixture(t, moduleConsole)
	c := fn.Panic1(New(WithDebug(testing.Verbose())))
	o := fn.Panic1(c.Open(moduleConsole))
	exports, err := o.Exports()
	require.NoError(t, err)
	require.NotEmpty(t, exports)
	_, ok := c.Symbols().Lookup("console." + ExportsSymbol)
	assert.True(t, ok)

	released := false
	o.OnRelease(func() { released = true })
	require.NoError(t, o.Release())
	assert.True(t, released)
	_, ok = c.Object(moduleConsole)
	assert.False(t, ok)
	_, ok = c.Symbols().Lookup("console." + ExportsSymbol)
	assert.False(t, ok)
}

func TestLoadDependentObject(t *testing.T) {
	fixture(t, moduleConsole)
	fixture(t, moduleGreeter)
	c := fn.Panic1(New())
	con := fn.Panic1(c.Open(moduleConsole))
	gre := fn.Panic1(c.Open(moduleGreeter))
	_, err := c.Open(moduleConsole)
	require.ErrorIs(t, err, ErrAlreadyLoaded)
	require.NoError(t, c.Close())
	assert.True(t, con.Released())
	assert.True(t, gre.Released())
	assert.Empty(t, c.Objects())
}
