// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command tmtcpd is a TMTCP echo server: every message received in a
// transaction is sent back in the same transaction.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"code.hybscloud.com/mtcp/internal/admin"
	"code.hybscloud.com/mtcp/internal/config"
	"code.hybscloud.com/mtcp/internal/logging"
	"code.hybscloud.com/mtcp/tmtcp"
)

func main() {
	path := flag.String("config", "", "path to the TOML configuration")
	flag.Parse()

	boot := logging.NewStderr("tmtcpd", logging.Config{})
	cfg, err := loadConfig(*path)
	if err != nil {
		boot.Fatal().Err(err).Msg("config")
	}
	log := logging.NewStderr("tmtcpd", logging.Config{Level: cfg.LogLevel, NoColor: cfg.LogNoColor})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, log, cfg); err != nil {
		log.Fatal().Err(err).Msg("tmtcpd")
	}
}

// loadConfig reads path, or returns the defaults when path is empty.
func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func run(ctx context.Context, log zerolog.Logger, cfg config.Config) error {
	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return err
	}
	return serve(ctx, log, cfg, ln)
}

// serve runs the echo server on ln, and the admin HTTP server when
// cfg.MetricsAddr is set, until ctx is done.
func serve(ctx context.Context, log zerolog.Logger, cfg config.Config, ln net.Listener) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := tmtcp.NewMetrics(reg)

	srv := tmtcp.NewServer(ln, tmtcp.HandlerFunc(echo),
		tmtcp.ServerLoggerOption(log),
		tmtcp.ServerMetricsOption(metrics),
		tmtcp.ServerIdleTimeoutOption(cfg.IdleTimeout),
		tmtcp.ServerConnOption(tmtcp.WithMaxMessageSize(cfg.MaxMessageSize)),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(gctx)
	})
	if cfg.MetricsAddr != "" {
		hs := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           admin.NewRouter(log, reg, admin.Status{Addr: ln.Addr().String(), Started: time.Now()}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			log.Info().Str("addr", cfg.MetricsAddr).Msg("admin listening")
			if err := hs.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return hs.Shutdown(sctx)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// echo returns every message of t to the peer until t ends.
func echo(ctx context.Context, t *tmtcp.Txn) {
	for {
		p, err := t.Recv(ctx)
		if err != nil {
			return
		}
		if _, err := t.Send(p); err != nil {
			return
		}
	}
}
