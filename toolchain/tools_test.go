package toolchain

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseName(t *testing.T) {
	assert.Equal(t, "github.com/ZenLiuCN/fn", parseName("github.com/!zen!liu!c!n/fn"))
	assert.Equal(t, "plain", parseName("plain"))
}

func TestVersions(t *testing.T) {
	i := versions(
		[]string{"github.com/ZenLiuCN/fn", "fmt", "github.com/rs/zerolog"},
		[]string{
			"gofile..$GOROOT/src/fmt/print.go",
			"gofile../root/go/pkg/mod/github.com/!zen!liu!c!n/fn@v0.1.33/fn.go",
			"gofile../home/dev/module/main.go",
		},
	)
	assert.Equal(t, "v0.1.33", i.Imports["github.com/ZenLiuCN/fn"])
	assert.Equal(t, "", i.Imports["fmt"])
	assert.Contains(t, i.Imports, "github.com/rs/zerolog")
	i.PkgPath, i.File = "greeter", "greeter.o"
	s := Infos{i}.String()
	assert.Contains(t, s, "greeter (greeter.o)")
	assert.Contains(t, s, "\tgithub.com/ZenLiuCN/fn@v0.1.33\n")
	assert.Contains(t, s, "\tfmt\n")
}

func TestLookup(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"a.go", "a_test.go", "b.go", "notes.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("package a"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.go"), os.ModePerm))
	v, err := Tools{Dir: dir}.Lookup()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.go", "b.go"}, v)
}

func TestCopy(t *testing.T) {
	src, dst := t.TempDir(), filepath.Join(t.TempDir(), "copy")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "x", "y"), os.ModePerm))
	require.NoError(t, os.WriteFile(filepath.Join(src, "x", "y", "f.txt"), []byte("hello"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(src, "top.txt"), []byte("top"), 0o644))
	tools := Tools{Debug: true}
	n, err := tools.Copy(src, dst)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	b, err := os.ReadFile(filepath.Join(dst, "x", "y", "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))
	st, err := os.Stat(filepath.Join(dst, "x", "y", "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), st.Mode().Perm())

	require.NoError(t, os.WriteFile(filepath.Join(src, "top.txt"), []byte("TOP"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "x", "new.txt"), []byte("new"), 0o644))
	n, err = tools.Copy(src, dst)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	b, err = os.ReadFile(filepath.Join(dst, "top.txt"))
	require.NoError(t, err)
	assert.Equal(t, "top", string(b))
}

func TestNoSources(t *testing.T) {
	require.ErrorIs(t, Tools{}.Compile("x", "", nil), ErrNoSources)
	require.ErrorIs(t, Tools{}.Imports(nil), ErrNoSources)
	require.ErrorIs(t, Tools{}.Link([]string{"a.o"}, nil, "a.linkable"), ErrNoSources)
}
