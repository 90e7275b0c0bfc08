// Package main is the vecgate CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/devine/vecgate/internal/config"
	"github.com/devine/vecgate/internal/embedding"
	"github.com/devine/vecgate/internal/secrets"
	"github.com/devine/vecgate/internal/server"
	"github.com/devine/vecgate/internal/service"
	"github.com/devine/vecgate/internal/storage"
	"github.com/devine/vecgate/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/vecgate/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development). When no file exists at the
// default location either, built-in defaults are used and the returned path is empty.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); errors.Is(statErr, fs.ErrNotExist) {
			return config.Default(), "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// prepareConfig loads the config file, then layers the .env file, the
// environment and command-line flags on top.
func prepareConfig(c *cli.Context) (*config.Config, string, error) {
	cfg, path, err := loadConfig(c.String("config"))
	if err != nil {
		return nil, "", err
	}
	if err := config.LoadDotEnv(c.String("env-file")); err != nil {
		return nil, "", err
	}
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, "", err
	}
	if c.Bool("debug") {
		cfg.Debug = true
	}
	if c.IsSet("port") {
		cfg.Server.Port = c.Int("port")
	}
	return cfg, path, nil
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	serverFlag := &cli.StringFlag{
		Name:    "server",
		Value:   "http://localhost:8080",
		Usage:   "base URL of a running vecgate server",
		EnvVars: []string{"VECGATE_SERVER_URL"},
	}
	return &cli.App{
		Name:    "vecgate",
		Usage:   "HTTP gateway for report embeddings in a vector store",
		Version: version,
		Commands: []*cli.Command{
			{
				Name:   "server",
				Usage:  "Run the HTTP API",
				Action: runServer,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "config", Value: defaultConfigPath, Usage: "config file path"},
					&cli.StringFlag{Name: "env-file", Value: ".env", Usage: "dotenv file with VECGATE_* overrides"},
					&cli.BoolFlag{Name: "debug", Usage: "enable debug logging"},
					&cli.IntFlag{Name: "port", Usage: "override server.port"},
				},
			},
			{
				Name:      "save",
				Usage:     "Save an embedding",
				ArgsUsage: "<vector-json>",
				Action:    runSave,
				Flags: []cli.Flag{
					serverFlag,
					&cli.Int64Flag{Name: "report-id", Required: true, Usage: "report id"},
					&cli.StringFlag{Name: "title", Usage: "report title"},
				},
			},
			{
				Name:      "search",
				Aliases:   []string{"s"},
				Usage:     "Find the stored embeddings nearest to a vector",
				ArgsUsage: "<vector-json>",
				Action:    runSearch,
				Flags: []cli.Flag{
					serverFlag,
					&cli.IntFlag{Name: "limit", Usage: "number of results (server default when unset)"},
					&cli.StringFlag{Name: "metric", Value: "cosine", Usage: "cosine or l2"},
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Value: "text", Usage: "text, json or markdown"},
					&cli.BoolFlag{Name: "pretty", Usage: "shorthand for --output markdown"},
				},
			},
			{
				Name:   "count",
				Usage:  "Print the number of stored embeddings",
				Action: runCount,
				Flags:  []cli.Flag{serverFlag},
			},
			{
				Name:   "health",
				Usage:  "Check that the server is up",
				Action: runHealth,
				Flags:  []cli.Flag{serverFlag},
			},
			{
				Name:      "embed",
				Usage:     "Embed a report JSON file through the server",
				ArgsUsage: "<report.json>",
				Action:    runEmbed,
				Flags:     []cli.Flag{serverFlag},
			},
			{
				Name:  "config",
				Usage: "Manage the config file",
				Subcommands: []*cli.Command{
					{
						Name:      "init",
						Usage:     "Write a config file with every default filled in",
						ArgsUsage: "<path>",
						Action:    runConfigInit,
						Flags: []cli.Flag{
							&cli.BoolFlag{Name: "force", Usage: "overwrite an existing file"},
						},
					},
				},
			},
		},
	}
}

func runServer(c *cli.Context) error {
	cfg, configPath, err := prepareConfig(c)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx := c.Context
	if secrets.Needed(cfg) {
		resolver, err := secrets.NewResolver(ctx)
		if err != nil {
			return err
		}
		if err := secrets.Apply(ctx, resolver, cfg); err != nil {
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	level := utils.LevelFor(cfg.Debug, cfg.LogLevel)
	logger, err := utils.NewLoggerWithLevel(level, cfg.Debug)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("config loaded",
		zap.String("config_path", configPath),
		zap.String("driver", cfg.Storage.Driver),
		zap.Bool("debug", cfg.Debug),
	)

	store, err := storage.Open(ctx, &cfg.Storage, cfg.Storage.DSN)
	if err != nil {
		logger.Error("failed to open store", zap.Error(err))
		return err
	}
	defer store.Close()

	opts := []server.Option{server.WithDebug(cfg.Debug)}
	if cfg.Embedding.Enabled() {
		embedder, err := embedding.NewOpenAIEmbedder(embedding.OpenAIOptions{
			APIKey:      cfg.Embedding.APIKey,
			BaseURL:     cfg.Embedding.BaseURL,
			Model:       cfg.Embedding.Model,
			Dimensions:  cfg.Embedding.Dimensions,
			CacheSize:   cfg.Embedding.CacheSize,
			MaxAttempts: cfg.Embedding.MaxAttempts,
			Logger:      logger,
		})
		if err != nil {
			return err
		}
		defer embedder.Close()
		opts = append(opts, server.WithEmbedder(embedder))
		logger.Info("embedding enabled", zap.String("model", cfg.Embedding.Model))
	}

	svc := service.NewVectorService(store, cfg.Search.DefaultLimit, logger)
	srv := server.NewServer(svc, &cfg.Server, logger, opts...)

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if configPath != "" {
		w := config.NewWatcher(configPath, func(next *config.Config) {
			if err := config.ApplyEnv(next); err != nil {
				logger.Warn("config reload: env override failed", zap.Error(err))
				return
			}
			lvl := utils.LevelFor(next.Debug || c.Bool("debug"), next.LogLevel).Level()
			if lvl != level.Level() {
				level.SetLevel(lvl)
				logger.Info("log level changed", zap.Stringer("level", lvl))
			}
		}, config.WithLogger(logger))
		if err := w.Start(watchCtx); err != nil {
			logger.Warn("config watcher not started", zap.Error(err))
		} else {
			defer w.Stop()
		}
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigChan:
	case err := <-errCh:
		logger.Error("Server failed", zap.Error(err))
		return err
	}

	logger.Info("Shutting down...")
	watchCancel()
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(stopCtx)
}

func runConfigInit(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return errors.New("usage: vecgate config init <path>")
	}
	if _, err := os.Stat(path); err == nil && !c.Bool("force") {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if err := config.Save(path, config.Default()); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "wrote %s\n", path)
	return nil
}
