// Package toolchain compiles module sources into object files and linkables, inspects their imports
// and prepares the go sdk goloader needs.
package toolchain

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ZenLiuCN/fn"
	"github.com/pkujhd/goloader"
	"github.com/pkujhd/goloader/obj"
	"github.com/rs/zerolog"
)

// ImportCfg is the import configuration file generated beside the sources.
const ImportCfg = "importcfg"

// ErrNoSources occurs when nothing is given to compile.
var ErrNoSources = errors.New("missing go sources")

// Tools runs the go toolchain in Dir.
type Tools struct {
	Dir   string // working directory, current directory when empty
	Debug bool   // log commands and keep the importcfg
	Log   zerolog.Logger
}

func (t Tools) command(name string, args ...string) *exec.Cmd {
	cmd := exec.Command(name, args...)
	cmd.Dir = t.Dir
	if t.Debug {
		t.Log.Debug().Strs("args", cmd.Args).Msg("execute")
	}
	return cmd
}

func (t Tools) path(name string) string {
	if t.Dir == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(t.Dir, name)
}

// Imports generates the importcfg for the sources.
func (t Tools) Imports(sources []string) (err error) {
	if len(sources) == 0 {
		return ErrNoSources
	}
	var bout []byte
	if bout, err = t.command("go", append([]string{"list", "-export", "-f", "{{.Imports}}"}, sources...)...).Output(); err != nil {
		return fmt.Errorf("inspect imports: %w%s", err, stderr(err))
	}
	out := strings.TrimSpace(string(bout))
	if out != "" && out[0] == '[' {
		out = out[1 : len(out)-1]
	}
	deps := strings.Fields(out)
	if t.Debug {
		t.Log.Debug().Strs("imports", deps).Msg("sources import")
	}
	cmd := t.command("go", append([]string{"list", "-export", "-f", "{{if .Export}}packagefile {{.ImportPath}}={{.Export}}{{end}}", "std"}, deps...)...)
	if bout, err = cmd.Output(); err != nil {
		return fmt.Errorf("inspect dependencies: %w%s", err, stderr(err))
	}
	return os.WriteFile(t.path(ImportCfg), bout, 0o644)
}

// Compile compiles the sources of package pkg into the object file out, pkg.o when out is empty.
func (t Tools) Compile(pkg, out string, sources []string) (err error) {
	if len(sources) == 0 {
		return ErrNoSources
	}
	if _, err = exec.LookPath("go"); err != nil {
		return fmt.Errorf("missing go sdk: %w", err)
	}
	if err = t.Imports(sources); err != nil {
		return
	}
	if out == "" {
		out = pkg + ".o"
	}
	args := []string{"tool", "compile", "-importcfg", ImportCfg, "-o", out}
	if pkg != "" {
		args = append(args, "-p", pkg)
	}
	cmd := t.command("go", append(args, sources...)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err = cmd.Run(); err == nil && !t.Debug {
		err = os.Remove(t.path(ImportCfg))
	}
	return
}

// Link reads object files into one linker and writes it as a linkable, which loads without the
// object files.
func (t Tools) Link(files, pkgs []string, out string) (err error) {
	if len(files) == 0 || len(files) != len(pkgs) {
		return fmt.Errorf("%w: %d files for %d packages", ErrNoSources, len(files), len(pkgs))
	}
	var l *goloader.Linker
	if l, err = goloader.ReadObjs(files, pkgs); err != nil {
		return
	}
	var f *os.File
	if f, err = os.Create(t.path(out)); err != nil {
		return
	}
	defer fn.IgnoreClose(f)
	return goloader.Serialize(l, f)
}

// Lookup lists the non test go sources of Dir.
func (t Tools) Lookup() (v []string, err error) {
	dir := t.Dir
	if dir == "" {
		if dir, err = os.Getwd(); err != nil {
			return
		}
	}
	var e []os.DirEntry
	if e, err = os.ReadDir(dir); err != nil {
		return
	}
	for _, entry := range e {
		n := entry.Name()
		if !entry.IsDir() && strings.HasSuffix(n, ".go") && !strings.HasSuffix(n, "_test.go") {
			v = append(v, n)
		}
	}
	return
}

func stderr(err error) string {
	var ee *exec.ExitError
	if errors.As(err, &ee) && len(ee.Stderr) > 0 {
		return "\n" + string(ee.Stderr)
	}
	return ""
}

// SdkInternal is the go sdk source goloader compiles against, SdkCopy its copy.
var (
	SdkInternal = "$GOROOT/src/cmd/internal"
	SdkCopy     = "$GOROOT/src/cmd/objfile"
)

// Prepare copies the internals of the go sdk goloader needs. An existing copy is kept.
func (t Tools) Prepare() (err error) {
	src, dir := os.ExpandEnv(SdkInternal), os.ExpandEnv(SdkCopy)
	if _, err = os.Stat(dir); err == nil {
		t.Log.Info().Str("dir", dir).Msg("sdk already prepared")
		return nil
	} else if !os.IsNotExist(err) {
		return
	}
	var n int
	if n, err = t.Copy(src, dir); err == nil {
		t.Log.Info().Str("from", src).Str("dir", dir).Int("files", n).Msg("sdk prepared")
	}
	return
}

// Clean removes the copy made by Prepare.
func (t Tools) Clean() (err error) {
	dir := os.ExpandEnv(SdkCopy)
	if _, err = os.Stat(dir); err != nil {
		t.Log.Info().Str("dir", dir).Msg("nothing to clean")
		return nil
	}
	if err = os.RemoveAll(dir); err == nil {
		t.Log.Info().Str("dir", dir).Msg("sdk cleaned")
	}
	return
}

// Copy mirrors the tree src into dest, keeping file modes. Files already present in dest with the
// same size are kept. It reports how many files were written.
func (t Tools) Copy(src, dest string) (n int, err error) {
	err = filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		info, err := d.Info()
		if err != nil {
			return err
		}
		if d.IsDir() {
			return os.MkdirAll(target, info.Mode().Perm()|0o700)
		}
		if st, err := os.Stat(target); err == nil && st.Size() == info.Size() {
			if t.Debug {
				t.Log.Debug().Str("file", target).Msg("keep existing")
			}
			return nil
		}
		if err = copyFile(path, target, info.Mode().Perm()); err != nil {
			return fmt.Errorf("copy %s: %w", rel, err)
		}
		n++
		return nil
	})
	if err == nil {
		t.Log.Debug().Str("from", src).Str("to", dest).Int("files", n).Msg("copied")
	}
	return
}

func copyFile(src, dest string, mode fs.FileMode) (err error) {
	sf, err := os.Open(src)
	if err != nil {
		return
	}
	defer fn.IgnoreClose(sf)
	df, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return
	}
	if _, err = io.Copy(df, sf); err != nil {
		_ = df.Close()
		return
	}
	if err = df.Close(); err != nil {
		return
	}
	return os.Chmod(dest, mode)
}

// Inspect lists the symbols of an object file.
func Inspect(file, pkg string) ([]string, error) {
	return goloader.Parse(file, pkg)
}

// Info is the import information of one package of an object or linkable.
type Info struct {
	File    string
	PkgPath string
	Imports map[string]string // import path to module version, empty outside modules
}

// Infos is a printable list of Info.
type Infos []*Info

// ObjectImports resolves the imported packages of an object file, with versions for module packages.
func ObjectImports(file, pkgPath string) (info *Info, err error) {
	if pkgPath == "" {
		pkgPath = strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	}
	v := &obj.Pkg{Syms: make(map[string]*obj.ObjSymbol), File: file, PkgPath: pkgPath}
	if err = v.Symbols(); err != nil {
		return
	}
	info = parseInfo(v)
	info.File = file
	info.PkgPath = pkgPath
	return
}

// LinkableImports resolves the imported packages of every package of a linkable.
func LinkableImports(file string) (infos Infos, err error) {
	var f *os.File
	if f, err = os.Open(file); err != nil {
		return
	}
	defer fn.IgnoreClose(f)
	var l *goloader.Linker
	if l, err = goloader.UnSerialize(f); err != nil {
		return
	}
	return LinkerImports(l), nil
}

// LinkerImports resolves the imported packages of every package of a linker.
func LinkerImports(link *goloader.Linker) (infos Infos) {
	for _, pkg := range link.Packages {
		info := parseInfo(pkg)
		info.File = pkg.File
		info.PkgPath = pkg.PkgPath
		infos = append(infos, info)
	}
	return
}

func (i Infos) String() string {
	s := strings.Builder{}
	for _, v := range i {
		s.WriteString(v.String())
	}
	return s.String()
}

func (i Info) String() string {
	s := strings.Builder{}
	s.WriteString(fmt.Sprintf("%s (%s)\n", i.PkgPath, i.File))
	keys := fn.MapKeys(i.Imports)
	sort.Strings(keys)
	for _, p := range keys {
		if v := i.Imports[p]; v != "" {
			s.WriteString(fmt.Sprintf("\t%s@%s\n", p, v))
		} else {
			s.WriteString(fmt.Sprintf("\t%s\n", p))
		}
	}
	return s.String()
}

func parseInfo(v *obj.Pkg) *Info {
	return versions(v.ImportPkgs, v.CUFiles)
}

// versions pairs imports with the module versions found in the compilation unit file paths, which
// look like $GOPATH/pkg/mod/github.com/!some/pkg@v1.2.3/file.go.
func versions(imports, files []string) (i *Info) {
	i = new(Info)
	i.Imports = make(map[string]string)
	for _, pkg := range imports {
		i.Imports[pkg] = ""
	}
	for _, f := range files {
		f = strings.TrimPrefix(f, "gofile..")
		if strings.HasPrefix(f, "$GOROOT") {
			continue
		}
		if strings.IndexByte(f, '!') >= 0 {
			f = parseName(f)
		}
		for _, s := range imports {
			x := strings.Index(f, s+"@")
			if x < 0 || i.Imports[s] != "" {
				continue
			}
			ver := f[x+len(s)+1:]
			if y := strings.IndexByte(ver, '/'); y >= 0 {
				ver = ver[:y]
			}
			i.Imports[s] = ver
		}
	}
	return
}

// parseName decodes the module cache escaping: '!' marks an upper case letter.
func parseName(f string) string {
	v := strings.Builder{}
	x := false
	for _, i := range []byte(f) {
		switch {
		case i == '!':
			x = true
		case x:
			x = false
			v.WriteByte(i - 32)
		default:
			v.WriteByte(i)
		}
	}
	return v.String()
}
