// Command pddbmem serves an in-memory database over the stream transport
// for local development against the client.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/danmuck/pddbwire/internal/config"
	"github.com/danmuck/pddbwire/internal/logging"
	"github.com/danmuck/pddbwire/internal/observability"
	"github.com/danmuck/pddbwire/internal/pddbtest"
	"github.com/danmuck/pddbwire/internal/transport"
	"github.com/danmuck/pddbwire/internal/transport/stream"
	"github.com/rs/zerolog/log"
)

func main() {
	cfgPath := flag.String("config", "", "client config whose service, address and opcodes to serve")
	addr := flag.String("addr", "", "listen address (overrides config address)")
	bases := flag.String("bases", ".System", "comma-separated bases to mount, oldest first")
	adminAddr := flag.String("admin", "", "address for the admin HTTP endpoint (/health, /metrics, /store)")
	corsOrigins := flag.String("cors", "", "comma-separated origins allowed to call the admin endpoint")
	flag.Parse()
	logging.ConfigureRuntime()

	cfg := config.DefaultClientConfig()
	cfg.Address = "127.0.0.1:7400"
	if *cfgPath != "" {
		loaded, err := config.Load(*cfgPath)
		if err != nil {
			log.Fatal().Err(err).Msg("pddbmem config")
		}
		cfg = loaded
	}
	if *addr != "" {
		cfg.Address = *addr
	}

	names := splitList(*bases)
	store := pddbtest.New(cfg.Opcodes, names...)
	lb := transport.NewLoopback()
	lb.Register(cfg.Service, store)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *adminAddr != "" {
		router := observability.NewAdminRouter("pddbmem", splitList(*corsOrigins))
		store.RegisterRoutes(router)
		srv := &http.Server{Addr: *adminAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			log.Info().Msgf("pddbmem admin listening addr=%s", *adminAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("pddbmem admin")
			}
		}()
		go func() {
			<-ctx.Done()
			_ = srv.Close()
		}()
	}

	ln, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		log.Fatal().Err(err).Msg("pddbmem listen")
	}
	log.Info().Msgf("pddbmem serving service=%q bases=%v", cfg.Service, names)
	if err := stream.NewServer(lb, cfg.Stream).Serve(ctx, ln); err != nil {
		log.Fatal().Err(err).Msg("pddbmem serve")
	}
}

func splitList(raw string) []string {
	var out []string
	for _, v := range strings.Split(raw, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
