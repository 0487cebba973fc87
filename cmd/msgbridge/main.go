package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"msgbridge/internal/config"
	"msgbridge/internal/dispatch"
	"msgbridge/internal/engine"
	"msgbridge/internal/server"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "msgbridge",
		Short: "msgbridge: provider-agnostic messaging adapter",
		Long:  "msgbridge normalizes WhatsApp Cloud API and Evolution API traffic into one canonical message schema and renders canonical sends back out.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (default: ~/.msgbridge/config.yaml)")

	root.AddCommand(serveCmd())
	root.AddCommand(configCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the adapter HTTP server",
		Long:  "Starts the webhook receivers and the send API. Press Ctrl+C to stop.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel()),
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng := engine.New(engine.Options{
		Config: cfg.ProviderConfig(),
		Logger: logger,
		Client: &http.Client{Timeout: 30 * time.Second},
	})

	srv := server.New(server.Options{
		Config: cfg,
		Engine: eng,
		Runner: dispatch.NewRunner(logger),
		Logger: logger,
	})

	logger.Info("msgbridge starting", "version", version, "config", cfgPath)
	return srv.Start(ctx)
}

func parseLogLevel(level string) slog.Level {
	switch level {
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

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists at %s", cfgPath)
			}
			if err := os.MkdirAll(filepath.Dir(cfgPath), 0o755); err != nil {
				return err
			}
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load and validate the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			logger.Info("config valid", "path", cfgPath, "provider", cfg.Provider.Selected)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective config with secrets redacted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			redact(&cfg.Provider.WhatsApp.Token)
			redact(&cfg.Provider.WhatsApp.AppSecret)
			redact(&cfg.Provider.Evolution.APIKey)
			redact(&cfg.Provider.Cloudflare.APIToken)
			redact(&cfg.Provider.AWS.SecretKey)
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Print(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}

func redact(s *string) {
	if *s != "" {
		*s = "***"
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("msgbridge", version)
		},
	}
}
