// Command proxy runs the forwarding HTTP/HTTPS proxy: the acceptor,
// request handler, LRU cache, blacklist, event sink, and control
// surface wired together per the process configuration.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"forwardproxy/internal/acceptor"
	"forwardproxy/internal/cache"
	"forwardproxy/internal/config"
	"forwardproxy/internal/control"
	"forwardproxy/internal/events"
	"forwardproxy/internal/handler"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "proxy:", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	sink, err := events.NewSink("proxy.log", "proxy_dash.log")
	if err != nil {
		return fmt.Errorf("opening event sink: %w", err)
	}
	defer sink.Close()

	lru := cache.NewLRU(cfg.CacheLimit)
	store := cache.NewStore(lru, "cache.pkl", func(err error) {
		log.Warn().Err(err).Msg("cache persist failed")
	})
	cache.Load("cache.pkl", lru)

	h := &handler.Handler{
		Blacklist: cfg.Blacklist,
		Cache:     lru,
		Sink:      sink,
	}

	limiter := acceptor.NewLimiter(cfg.MaxConnections)
	a := &acceptor.Acceptor{
		Addr:    cfg.Addr(),
		Handle:  h.Handle,
		Limiter: limiter,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Listen(ctx); err != nil {
		return err
	}
	log.Info().Str("addr", cfg.Addr()).Int("backlog", acceptor.Backlog()).Msg("proxy listening")

	surface := &control.Surface{Cache: lru, Store: store, ConfigPath: cfg.ConfigPath}
	controlServer := &http.Server{Addr: cfg.ControlAddr, Handler: surface.Mux()}
	go func() {
		if err := controlServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("control server stopped")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

	runErr := make(chan error, 1)
	go func() { runErr <- a.Run() }()

	for {
		select {
		case s := <-sig:
			switch s {
			case syscall.SIGHUP:
				if err := cfg.Reload(); err != nil {
					log.Warn().Err(err).Msg("config reload failed")
				} else {
					log.Info().Msg("blacklist reloaded")
				}
			default:
				log.Info().Msg("shutting down")
				a.Close()
				controlServer.Close()
				return nil
			}
		case err := <-runErr:
			return err
		}
	}
}
