package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/leaseth/leaseth/pkg/cache"
	"github.com/leaseth/leaseth/pkg/config"
)

const (
	serverShutdownWaitSeconds = 5
	serverTimeoutSeconds      = 300
	serverMaxHeaderBytes      = 20
	serverPortDefault         = 8080
)

var (
	portFlag = &cli.IntFlag{
		Name:  "port",
		Usage: "Port on which the server will listen (default: config server.port)",
	}

	serveCmd = &cli.Command{
		Name:    "serve",
		Aliases: []string{"server"},
		Usage:   "Start the scoring HTTP API",
		Action:  cmdServe,
		Flags: []cli.Flag{
			portFlag,
			debugFlag,
		},
	}
)

func cmdServe(c *cli.Context) error {
	cfg := getConfig(c)

	eng, err := cfg.loadEngine()
	if err != nil {
		return err
	}

	port := c.Int(portFlag.Name)
	if port == 0 {
		port = cfg.Conf.Server.Port
	}
	if port == 0 {
		port = serverPortDefault
	}

	dc := newDecisionCache(c.Context, cfg.Conf.Cache)
	defer dc.Close()

	api := newAPIServer(eng, cfg.Store, dc, getAPIKey(cfg.Home))

	address := fmt.Sprintf(":%d", port)
	s := &http.Server{
		Addr:           address,
		Handler:        api.routes(),
		ReadTimeout:    serverTimeoutSeconds * time.Second,
		WriteTimeout:   serverTimeoutSeconds * time.Second,
		MaxHeaderBytes: 1 << serverMaxHeaderBytes,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("error starting server", "error", err)
		}
	}()

	slog.Info("server started",
		"address", address,
		"store", cfg.Store.Driver(),
		"auth", api.apiKey != "")

	<-done

	ctx, cancel := context.WithTimeout(context.Background(), serverShutdownWaitSeconds*time.Second)
	defer cancel()

	if err := s.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("error shutting down server", "error", err)
	}
	return nil
}

// newDecisionCache builds the configured cache. A redis connection
// failure degrades to the in-process cache rather than refusing to serve.
func newDecisionCache(ctx context.Context, conf config.Cache) cache.DecisionCache {
	ttl := time.Duration(conf.TTLMinutes) * time.Minute

	if conf.Enabled && conf.Addr != "" {
		rc, err := cache.NewRedis(ctx, conf.Addr, conf.DB, ttl)
		if err == nil {
			slog.Info("decision cache on redis", "addr", conf.Addr)
			return rc
		}
		slog.Warn("redis unavailable, using in-process cache", "addr", conf.Addr, "error", err)
	}

	return cache.NewMemory(ttl)
}
