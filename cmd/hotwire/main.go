package main

import (
	"os"

	"github.com/ZenLiuCN/hotwire/internal/config"
	"github.com/ZenLiuCN/hotwire/internal/logging"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.NewApp()
	app.Name = "hotwire"
	app.Usage = "runtime module loader"
	app.Description = "hotwire loads go object modules at runtime, wires their dependencies by name and drives their lifecycle"
	app.Flags = []cli.Flag{
		&cli.BoolFlag{Name: "debug", Aliases: []string{"d"}, Usage: "debug logging and linking details"},
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "configuration file (.toml, .yaml)"},
		&cli.StringFlag{Name: "log-level", Usage: "trace, debug, info, warn, error or disabled"},
	}
	app.Commands = []*cli.Command{
		{
			Name:   "run",
			Action: run,
			Usage:  "load modules, activate them and wait for a signal",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "dir", Usage: "module directory, overrides the configuration"},
				&cli.BoolFlag{Name: "watch", Aliases: []string{"w"}, Usage: "load new and unload removed module files of the directory"},
			},
			Args:      true,
			ArgsUsage: "[module files...]",
		},
		{
			Name:      "inspect",
			Action:    inspect,
			Usage:     "display metadata and dependency declarations of module files",
			Flags:     []cli.Flag{&cli.BoolFlag{Name: "symbols", Aliases: []string{"s"}, Usage: "also list the symbols"}},
			Args:      true,
			ArgsUsage: "<module files...>",
		},
		{
			Name:   "compile",
			Action: compile,
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "pkg", Aliases: []string{"k"}, Usage: "package path, defaults to the directory name"},
				&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output object file, defaults to <pkg>.o"},
			},
			Args:      true,
			ArgsUsage: "[go sources...|.]",
			Usage:     "compile go sources to an object file; '.' or nothing takes the sources of the working directory",
		},
		{
			Name:   "link",
			Action: link,
			Flags: []cli.Flag{
				&cli.StringSliceFlag{Name: "pkg", Aliases: []string{"k"}, Usage: "package path of each object file, defaults to the file stems"},
				&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output linkable", Required: true},
			},
			Args:      true,
			ArgsUsage: "<object files...>",
			Usage:     "link object files into a linkable",
		},
		{
			Name:   "imports",
			Action: imports,
			Usage:  "display imports of object files or archives",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "pkg", Aliases: []string{"p"}, Usage: "package path, defaults to the file stem"},
			},
			Args: true,
		},
		{
			Name:   "linkable",
			Action: linkables,
			Usage:  "display imports of linkable files",
			Args:   true,
		},
		{
			Name:   "prepare",
			Action: prepare,
			Usage:  "copy internals of go sdk",
		},
		{
			Name:   "clean",
			Action: clean,
			Usage:  "remove copied internals of go sdk",
		},
	}
	if err := app.Run(os.Args); err != nil {
		log := logging.Stderr(logging.Default())
		log.Fatal().Err(err).Msg("failure")
	}
}

// settings loads the configuration and builds the logger from the global flags.
func settings(ctx *cli.Context) (cfg config.Config, log zerolog.Logger, err error) {
	cfg = config.Default()
	if p := ctx.String("config"); p != "" {
		if cfg, err = config.Load(p); err != nil {
			return
		}
	} else {
		config.ApplyEnv(&cfg)
	}
	if ctx.Bool("debug") {
		cfg.Debug = true
		cfg.Log.Level = "debug"
	}
	if l := ctx.String("log-level"); l != "" {
		cfg.Log.Level = l
	}
	log = logging.Stderr(cfg.Log)
	return
}
