package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	voiceinfo "github.com/Qazim-tec/VoiceInfoBlog-sub000"
)

// version is set at build time via ldflags.
var version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	cmd := "serve"
	args := os.Args[1:]
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	configPath := fs.String("config", "", "path to a YAML config file (optional)")
	_ = fs.Parse(args)

	switch cmd {
	case "serve":
		if err := serve(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "check-config":
		cfg, err := voiceinfo.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("config ok: site=%s api=%s addr=%s\n", cfg.URL, cfg.APIBaseURL, cfg.Addr)
	case "version":
		fmt.Printf("voiceinfo-edge %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func serve(configPath string) error {
	cfg, err := voiceinfo.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := voiceinfo.NewLogger(cfg.LogDevelopment)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush

	app, err := voiceinfo.New(cfg, voiceinfo.WithLogger(logger))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Start()
	}()

	select {
	case err := <-errCh:
		_ = app.Close()
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("shutdown", zap.Error(err))
		return err
	}
	return nil
}

func printUsage() {
	fmt.Println(`voiceinfo-edge - share-preview edge for the VoiceInfo blog

Usage:
  voiceinfo-edge [command] [-config path]

Commands:
  serve          Run the edge server (default)
  check-config   Load and validate configuration, then exit
  version        Print the version
  help           Show this help message

Configuration comes from EDGE_* environment variables, a .env file and the
optional -config file. API_BASE_URL and PORT are also honoured.`)
}
