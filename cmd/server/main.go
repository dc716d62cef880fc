// Copyright 2025 The fawa Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/fawa-io/filedrop/pkg/config"
	"github.com/fawa-io/filedrop/pkg/fwlog"
	"github.com/fawa-io/filedrop/pkg/metrics"
	"github.com/fawa-io/filedrop/pkg/notify"
	"github.com/fawa-io/filedrop/pkg/pipeline"
	"github.com/fawa-io/filedrop/pkg/ratelimit"
	"github.com/fawa-io/filedrop/pkg/storage"
	"github.com/fawa-io/filedrop/service/upload"
)

const shutdownTimeout = 10 * time.Second

func main() {
	fs := pflag.NewFlagSet("filedrop-server", pflag.ExitOnError)
	config.RegisterFlags(fs)
	cfg, v, err := config.Load(fs, os.Args[1:])
	if err != nil {
		fwlog.Fatalf("Failed to initialize configuration: %v", err)
	}

	logLevel, err := fwlog.ParseLevel(cfg.LogLevel)
	if err != nil {
		fwlog.Warnf("Invalid initial log level '%s': %v. Using default.", cfg.LogLevel, err)
	}
	fwlog.SetLevel(logLevel)
	fwlog.Infof("Logger initialized with level: %s", logLevel)
	config.WatchLogLevel(v, fwlog.SetLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		fwlog.Fatalf("Server exited: %v", err)
	}
	fwlog.Info("Server shutdown complete")
}

func run(ctx context.Context, cfg config.Config) error {
	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	dispatcher, err := notify.New(cfg.Mail)
	if err != nil {
		return err
	}

	var limiter ratelimit.Limiter = ratelimit.Noop{}
	if cfg.RateLimit.RedisAddr != "" {
		l, err := ratelimit.NewRedisLimiter(ctx, cfg.RateLimit.RedisAddr, cfg.RateLimit.PerRecipient, cfg.RateLimit.Window)
		if err != nil {
			return err
		}
		limiter = l
		fwlog.Infof("Rate limiting notifications to %d per %s per recipient", cfg.RateLimit.PerRecipient, cfg.RateLimit.Window)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	observer, err := metrics.NewPrometheusObserver(reg)
	if err != nil {
		return err
	}

	orch := pipeline.New(pipeline.Config{
		MaxBytes:     cfg.Upload.MaxBytes,
		LinkValidity: cfg.Upload.LinkValidity,
		Timeout:      cfg.Upload.Timeout,
		Prefix:       cfg.Storage.Prefix,
	}, store, notify.NewComposer(cfg.Mail.Subject), dispatcher, pipeline.WithObserver(observer))

	router := upload.NewRouter(
		upload.NewHandler(orch, limiter),
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
	)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h2c.NewHandler(router, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return serve(srv, cfg)
	})
	g.Go(func() error {
		<-gctx.Done()
		fwlog.Info("Shutting down server...")

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			fwlog.Errorf("Server shutdown error: %v", err)
			return err
		}
		return nil
	})
	return g.Wait()
}

func serve(srv *http.Server, cfg config.Config) error {
	fwlog.Infof("Server starting on %v", cfg.Addr)

	var err error
	if cfg.CertFile != "" && cfg.KeyFile != "" {
		fwlog.Infof("Starting HTTPS server with certificates: %s, %s", cfg.CertFile, cfg.KeyFile)
		err = srv.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)
	} else {
		fwlog.Infof("Starting HTTP server")
		err = srv.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
