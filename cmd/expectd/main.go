// expectd is a mock HTTP server driven by request expectations: declarative
// request matchers paired with canned actions, managed over a control-plane
// API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/expectd/expectd/pkg/config"
	"github.com/expectd/expectd/pkg/engine"
	"github.com/expectd/expectd/pkg/logging"
	"github.com/expectd/expectd/pkg/openapi"
)

// Build-time variables set via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "expectd",
		Short:        "Expectation-driven mock HTTP server",
		Version:      fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage: true,
	}
	root.AddCommand(serveCommand())
	return root
}

func serveCommand() *cobra.Command {
	var (
		configPath   string
		listen       string
		logLevel     string
		logFormat    string
		initializers []string
		openapiDocs  []string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the mock server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			} else if err := cfg.ApplyEnv(); err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}
			if logLevel != "" {
				cfg.Log.Level = logLevel
			}
			if logFormat != "" {
				cfg.Log.Format = logFormat
			}
			cfg.Initializers = append(cfg.Initializers, initializers...)

			log := logging.New(logging.Config{
				Level:  logging.ParseLevel(cfg.Log.Level),
				Format: logging.ParseFormat(cfg.Log.Format),
			})

			server := engine.NewServer(cfg, log)
			if err := loadOpenAPIDocs(server.Engine(), openapiDocs); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				log.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = server.Shutdown(shutdownCtx)
			}()

			return server.Start()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "configuration file")
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	cmd.Flags().StringVar(&logFormat, "log-format", "", "log format: text, json")
	cmd.Flags().StringArrayVar(&initializers, "init", nil, "expectation initializer file (repeatable)")
	cmd.Flags().StringArrayVar(&openapiDocs, "openapi", nil, "OpenAPI document to expand into expectations (repeatable)")
	return cmd
}

func loadOpenAPIDocs(e *engine.Engine, docs []string) error {
	for _, location := range docs {
		doc, err := openapi.Load(location)
		if err != nil {
			return err
		}
		exps, err := openapi.Expand(doc)
		if err != nil {
			return fmt.Errorf("expand %s: %w", location, err)
		}
		if _, err := e.Store().Upsert(exps...); err != nil {
			return fmt.Errorf("store expectations from %s: %w", location, err)
		}
	}
	return nil
}
