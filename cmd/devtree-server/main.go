// Command devtree-server runs the devtree core: it loads device plugins,
// builds the path tree and routes device reports to clients.
//
// Usage:
//
//	devtree-server [flags]
//
// Flags:
//
//	-config string        Configuration file (YAML or JSON with comments)
//	-listen string        Listen address for shared mode
//	-local                Serve in-process clients only
//	-plugins string       Comma-separated plugins to load (overrides config)
//	-log-level string     Log level: debug, info, warn, error
//	-protocol-log string  File receiving the CBOR routing event log
//	-state-file string    File keeping aliases added from the shell
//	-interactive          Start an interactive shell
//
// Examples:
//
//	# Run the demo plugin, shared over TCP
//	devtree-server -plugins demo
//
//	# Run from a config file with a shell
//	devtree-server -config /etc/devtree/server.yaml -interactive
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/devtree-io/devtree-go/cmd/devtree-server/interactive"
	"github.com/devtree-io/devtree-go/pkg/config"
	_ "github.com/devtree-io/devtree-go/pkg/examples"
	"github.com/devtree-io/devtree-go/pkg/log"
	"github.com/devtree-io/devtree-go/pkg/server"
)

type flags struct {
	configFile  string
	listen      string
	local       bool
	plugins     string
	logLevel    string
	protocolLog string
	stateFile   string
	interactive bool
}

func main() {
	var f flags
	flag.StringVar(&f.configFile, "config", "", "Configuration file (YAML or JSON with comments)")
	flag.StringVar(&f.listen, "listen", "", "Listen address for shared mode")
	flag.BoolVar(&f.local, "local", false, "Serve in-process clients only")
	flag.StringVar(&f.plugins, "plugins", "", "Comma-separated plugins to load (overrides config)")
	flag.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.StringVar(&f.protocolLog, "protocol-log", "", "File receiving the CBOR routing event log")
	flag.StringVar(&f.stateFile, "state-file", "", "File keeping aliases added from the shell")
	flag.BoolVar(&f.interactive, "interactive", false, "Start an interactive shell")
	flag.Parse()

	if err := run(f); err != nil {
		fmt.Fprintf(os.Stderr, "devtree-server: %v\n", err)
		os.Exit(1)
	}
}

func run(f flags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}

	var logOut io.Writer = os.Stderr
	var shell *interactive.Shell
	if f.interactive {
		shell, err = interactive.New()
		if err != nil {
			return err
		}
		logOut = shell.Stderr()
	}

	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))

	sc, err := server.ConfigFrom(cfg)
	if err != nil {
		return err
	}
	sc.Log = logger

	var protoLog *log.FileLogger
	if cfg.ProtocolLog != "" {
		protoLog, err = log.NewFileLogger(cfg.ProtocolLog)
		if err != nil {
			return fmt.Errorf("protocol log: %w", err)
		}
		defer protoLog.Close()
	}
	sc.Logger = protocolLogger(protoLog, logger, parseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.New(sc)
	if err := srv.Start(ctx); err != nil {
		if shell != nil {
			shell.Close()
		}
		return fmt.Errorf("start: %w", err)
	}
	logger.Info("server started",
		"name", cfg.Name,
		"transport", cfg.Transport,
		"port", srv.Port(),
		"plugins", strings.Join(srv.Plugins(), ","))
	for _, p := range srv.BadPaths() {
		logger.Warn("alias does not resolve", "path", p)
	}

	runErr := make(chan error, 1)
	go func() { runErr <- srv.Run(ctx) }()

	if shell != nil {
		go shell.Run(ctx, srv, stop)
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-runErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("server loop stopped", "error", err)
		}
	}

	if err := srv.Stop(); err != nil && !errors.Is(err, server.ErrNotStarted) {
		return fmt.Errorf("stop: %w", err)
	}
	return nil
}

// loadConfig reads the config file, if any, and applies flag overrides.
func loadConfig(f flags) (*config.Config, error) {
	cfg := config.Default()
	if f.configFile != "" {
		var err error
		if cfg, err = config.Load(f.configFile); err != nil {
			return nil, err
		}
	}

	if f.listen != "" {
		cfg.Listen = f.listen
	}
	if f.local {
		cfg.Transport = config.TransportLocal
	}
	if f.plugins != "" {
		cfg.Plugins = nil
		for _, name := range strings.Split(f.plugins, ",") {
			if name = strings.TrimSpace(name); name != "" {
				cfg.Plugins = append(cfg.Plugins, config.PluginConfig{Name: name})
			}
		}
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if f.protocolLog != "" {
		cfg.ProtocolLog = f.protocolLog
	}
	if f.stateFile != "" {
		cfg.StateFile = f.stateFile
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// protocolLogger returns the routing event sink: the protocol log file,
// mirrored to slog at debug level.
func protocolLogger(file *log.FileLogger, logger *slog.Logger, level slog.Level) log.Logger {
	var sinks []log.Logger
	if file != nil {
		sinks = append(sinks, file)
	}
	if level <= slog.LevelDebug {
		sinks = append(sinks, log.NewSlogAdapter(logger))
	}
	switch len(sinks) {
	case 0:
		return nil
	case 1:
		return sinks[0]
	default:
		return log.NewMultiLogger(sinks...)
	}
}
