// Command dnsrouter runs the DNS routing proxy: it loads a rule table and
// upstream registry from configuration, binds a UDP listener, and serves
// queries until interrupted (spec §6).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/proksi-dns/droute/internal/config"
	"github.com/proksi-dns/droute/internal/logging"
	"github.com/proksi-dns/droute/internal/server"
	"github.com/proksi-dns/droute/internal/shutdown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type cliFlags struct {
	configPath string
	validate   bool
}

func parseFlags() cliFlags {
	var f cliFlags
	flag.StringVar(&f.configPath, "c", "", "path to configuration file")
	flag.StringVar(&f.configPath, "config", "", "path to configuration file")
	flag.BoolVar(&f.validate, "v", false, "construct the router and exit without binding")
	flag.BoolVar(&f.validate, "validate", false, "construct the router and exit without binding")
	flag.Parse()
	return f
}

// loadConfig implements the -c/--config resolution order: an explicit path
// is read as given; with no flag, ./config.yaml is tried next; if neither
// exists, the compiled-in default is used. An explicit path or an existing
// ./config.yaml that fails to read is a fatal error either way.
func loadConfig(explicitPath string) (*config.Config, error) {
	path, useDefault, err := config.Resolve(explicitPath)
	if err != nil {
		return nil, err
	}
	if useDefault {
		return config.Default(), nil
	}
	return config.Load(path)
}

func run() error {
	flags := parseFlags()

	cfg, err := loadConfig(flags.configPath)
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	if flags.validate {
		_, reg, _, err := config.Build(cfg, true)
		if err != nil {
			return fmt.Errorf("configuration invalid: %w", err)
		}
		defer reg.Close()
		fmt.Println("configuration OK")
		return nil
	}

	rt, registry, limiter, err := config.Build(cfg, false)
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}
	defer registry.Close()

	sessionID := uuid.NewString()
	logger := logging.Configure(cfg.Verbosity).With("session_id", sessionID)

	conn, err := server.Listen(cfg.Address)
	if err != nil {
		return fmt.Errorf("bind %s: %w", cfg.Address, err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	broadcaster := shutdown.New()
	srv := &server.Server{
		Conn:     conn,
		Router:   rt,
		Limiter:  limiter,
		Shutdown: broadcaster,
		Logger:   logger,
	}

	logger.Info("ready", "address", cfg.Address)
	serveErr := srv.Serve(ctx)

	broadcaster.Shutdown()
	broadcaster.WaitDrain(context.Background(), logger)
	registry.LogCacheStats(logger)

	return serveErr
}
