package main

import (
	"fmt"

	"github.com/ZenLiuCN/hotwire/internal/logging"
	"github.com/rs/zerolog"
)

// HostProvider is the name modules use to reach the host: `hard:"host,Print"`.
const HostProvider = "host"

// host is the core provider of the command: output of modules goes through the host logger.
type host struct {
	log zerolog.Logger
}

func newHost(log zerolog.Logger) *host {
	return &host{log: log.With().Str("provider", HostProvider).Logger()}
}

func (h *host) Print(args ...any) {
	h.log.Info().Msg(fmt.Sprint(args...))
}

func (h *host) Printf(format string, args ...any) {
	h.log.Info().Msgf(format, args...)
}

// Log writes msg at a named level, info when the level is unknown.
func (h *host) Log(level, msg string) {
	lvl, ok := logging.ParseLevel(level)
	if !ok {
		lvl = zerolog.InfoLevel
	}
	h.log.WithLevel(lvl).Msg(msg)
}

func (h *host) providers() func(string) (any, bool) {
	return func(name string) (any, bool) {
		if name == HostProvider {
			return h, true
		}
		return nil, false
	}
}
