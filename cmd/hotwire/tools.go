package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZenLiuCN/hotwire"
	"github.com/ZenLiuCN/hotwire/objfile"
	"github.com/ZenLiuCN/hotwire/toolchain"
	"github.com/davecgh/go-spew/spew"
	"github.com/urfave/cli/v2"
)

func tools(ctx *cli.Context) (toolchain.Tools, error) {
	cfg, log, err := settings(ctx)
	return toolchain.Tools{Debug: cfg.Debug, Log: log}, err
}

func compile(ctx *cli.Context) (err error) {
	t, err := tools(ctx)
	if err != nil {
		return
	}
	o := ctx.Args().Slice()
	if len(o) == 0 || (len(o) == 1 && o[0] == ".") {
		if o, err = t.Lookup(); err != nil {
			return
		}
		t.Log.Info().Strs("sources", o).Msg("found go sources at working directory")
	}
	pkg := ctx.String("pkg")
	if pkg == "" {
		var wd string
		if wd, err = os.Getwd(); err != nil {
			return
		}
		pkg = filepath.Base(wd)
	}
	return t.Compile(pkg, ctx.String("out"), o)
}

func link(ctx *cli.Context) (err error) {
	t, err := tools(ctx)
	if err != nil {
		return
	}
	files := ctx.Args().Slice()
	pkgs := ctx.StringSlice("pkg")
	if len(pkgs) == 0 {
		for _, f := range files {
			pkgs = append(pkgs, strings.TrimSuffix(filepath.Base(f), filepath.Ext(f)))
		}
	}
	return t.Link(files, pkgs, ctx.String("out"))
}

func imports(ctx *cli.Context) (err error) {
	for _, s := range ctx.Args().Slice() {
		var v *toolchain.Info
		if v, err = toolchain.ObjectImports(s, ctx.String("pkg")); err != nil {
			return
		}
		fmt.Print(v.String())
	}
	return
}

func linkables(ctx *cli.Context) (err error) {
	for _, s := range ctx.Args().Slice() {
		var v toolchain.Infos
		if v, err = toolchain.LinkableImports(s); err != nil {
			return
		}
		fmt.Print(v.String())
	}
	return
}

func prepare(ctx *cli.Context) error {
	t, err := tools(ctx)
	if err != nil {
		return err
	}
	return t.Prepare()
}

func clean(ctx *cli.Context) error {
	t, err := tools(ctx)
	if err != nil {
		return err
	}
	return t.Clean()
}

// inspect links each module file without running any hook and prints what the loader would read.
func inspect(ctx *cli.Context) (err error) {
	cfg, log, err := settings(ctx)
	if err != nil {
		return
	}
	c, err := container(cfg, log)
	if err != nil {
		return
	}
	defer func() { _ = c.Close() }()
	sp := spew.NewDefaultConfig()
	sp.MaxDepth = 3
	sp.DisablePointerAddresses = true
	h := newHost(log)
	for _, path := range ctx.Args().Slice() {
		var o *objfile.Object
		if o, err = c.Open(path); err != nil {
			return
		}
		exports, err := o.Exports()
		if err != nil {
			return err
		}
		fmt.Printf("%s %v\n", path, o.Packages())
		for _, e := range exports {
			fmt.Printf("\texport %s %T\n", e.Name, e.Value)
		}
		meta, err := hotwire.ReadMetadata(exports)
		if err != nil {
			fmt.Printf("\tmetadata: %s (%s)\n", err, hotwire.KindOf(err))
		} else {
			sp.Dump(meta)
		}
		reqs, err := hotwire.Scan(exports, h.providers(), cfg.Concurrency)
		if err != nil {
			fmt.Printf("\tdependencies: %s\n", err)
		}
		for _, group := range []map[string][]hotwire.Request{reqs.Hard, reqs.Soft} {
			for name, rs := range group {
				for _, r := range rs {
					fmt.Printf("\t%s %s -> %s:%s\n", r.Kind, r.Origin, name, r.Target)
				}
			}
		}
		for _, b := range reqs.Core {
			fmt.Printf("\t%s %s -> core %s:%s\n", b.Kind, b.Origin, b.Module, b.Member)
		}
		if ctx.Bool("symbols") && filepath.Ext(path) != objfile.ExtLinkable {
			var syms []string
			if syms, err = toolchain.Inspect(path, o.Packages()[0]); err != nil {
				return err
			}
			for _, s := range syms {
				fmt.Printf("\tsymbol %s\n", s)
			}
		}
		if err = o.Release(); err != nil {
			return err
		}
	}
	return nil
}
