package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ZenLiuCN/hotwire"
	"github.com/ZenLiuCN/hotwire/internal/config"
	"github.com/ZenLiuCN/hotwire/objfile"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

func container(cfg config.Config, log zerolog.Logger) (*objfile.Container, error) {
	opts := []objfile.Option{
		objfile.WithLogger(log),
		objfile.WithDebug(cfg.Debug),
		objfile.WithSyncStdout(true),
	}
	for _, so := range cfg.Symbols.So {
		opts = append(opts, objfile.WithSo(so))
	}
	if cfg.Symbols.Executable != "" {
		opts = append(opts, objfile.WithExecutable(cfg.Symbols.Executable))
	}
	return objfile.New(opts...)
}

func run(ctx *cli.Context) (err error) {
	cfg, log, err := settings(ctx)
	if err != nil {
		return
	}
	if d := ctx.String("dir"); d != "" {
		cfg.Dir = d
		cfg.Modules = nil
	}
	if ctx.Bool("watch") {
		cfg.Watch = true
	}
	for _, a := range ctx.Args().Slice() {
		cfg.Modules = append(cfg.Modules, config.Module{Path: a})
	}
	if len(ctx.Args().Slice()) > 0 {
		cfg.Dir = "."
	}
	c, err := container(cfg, log)
	if err != nil {
		return
	}
	defer func() { _ = c.Close() }()
	l := hotwire.New(c,
		hotwire.WithLogger(log),
		hotwire.WithPoll(cfg.Poll.Duration),
		hotwire.WithConcurrency(cfg.Concurrency),
		hotwire.WithObserver(hotwire.ObserverFunc{ID: "log", Fn: func(_ context.Context, e cloudevents.Event) error {
			log.Debug().Str("type", e.Type()).Str("module", e.Subject()).Str("id", e.ID()).Msg("event")
			return nil
		}}),
	)
	if err = l.RegisterCoreProvider(HostProvider, newHost(log)); err != nil {
		return
	}
	defer func() { _ = l.Close() }()

	modules, err := cfg.Resolve()
	if err != nil {
		return
	}
	paths := make([]string, len(modules))
	for i, m := range modules {
		if m.Package != "" {
			c.Bind(m.Path, m.Package)
		}
		paths[i] = m.Path
	}
	for _, r := range l.LoadAll(paths...) {
		if r.Err != nil {
			log.Error().Err(r.Err).Str("path", r.Path).Str("module", r.Name).Stringer("kind", r.Kind()).Msg("load failed")
		}
	}
	if err = l.Activate(); err != nil {
		return
	}
	for _, m := range l.Modules() {
		log.Info().Str("module", m.Name()).Stringer("version", m.Version()).Stringer("state", m.State()).Strs("dependents", m.Dependents()).Msg("module")
	}

	sig, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.Watch {
		go func() {
			if err := watch(sig, cfg.Dir, l, log); err != nil {
				log.Error().Err(err).Str("dir", cfg.Dir).Msg("watch stopped")
			}
		}()
	}
	<-sig.Done()
	log.Info().Msg("shutting down")
	return nil
}

// watch loads module files created in dir and unloads the modules of removed ones. A rewritten file
// reloads its module.
func watch(ctx context.Context, dir string, l *hotwire.Loader, log zerolog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()
	if err = w.Add(dir); err != nil {
		return err
	}
	log.Info().Str("dir", dir).Msg("watching")
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("watch")
		case e, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !config.IsModule(e.Name) {
				continue
			}
			path := filepath.Clean(e.Name)
			if e.Has(fsnotify.Remove) || e.Has(fsnotify.Rename) || e.Has(fsnotify.Write) {
				unloadPath(l, path, log)
			}
			if e.Has(fsnotify.Create) || e.Has(fsnotify.Write) {
				r := <-l.LoadAsync(path)
				if r.Err != nil {
					log.Error().Err(r.Err).Str("path", path).Msg("load failed")
				}
			}
		}
	}
}

func unloadPath(l *hotwire.Loader, path string, log zerolog.Logger) {
	for _, m := range l.Modules() {
		if filepath.Clean(m.Path()) == path {
			log.Info().Str("module", m.Name()).Str("path", path).Msg("module file changed")
			_ = l.Unload(m.Name())
		}
	}
}
