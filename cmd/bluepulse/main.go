package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aadhira3355/BluePulse/internal/app"
	"github.com/aadhira3355/BluePulse/internal/chat"
	"github.com/aadhira3355/BluePulse/internal/config"
	"github.com/aadhira3355/BluePulse/internal/engine"
	"github.com/aadhira3355/BluePulse/internal/forecast"
	"github.com/aadhira3355/BluePulse/internal/logging"
	"github.com/aadhira3355/BluePulse/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "bluepulse",
	Short: "BluePulse marine analytics",
	Long: `BluePulse serves mock marine analytics data for frontend and demo work:
species occurrence maps, oceanographic parameter forecasts, simulated eDNA
analysis and model training pipelines, and a keyword-driven chat assistant.
All data is generated or canned; nothing talks to real instruments.`,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	_ = godotenv.Load(filepath.Join(viper.GetString("workspace"), ".env"))
	viper.SetEnvPrefix("BLUEPULSE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory (holds bluepulse.yml)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(forecastCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(modelsCmd())
	rootCmd.AddCommand(configCmd())
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("base-path") {
				cfg.Server.BasePath = basePath
			}
			logger := logging.New(cfg.Log.Level)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			e, cleanup, err := app.Bootstrap(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			handler, err := server.New(server.Config{
				Engine:      e,
				BasePath:    cfg.Server.BasePath,
				CORSOrigins: cfg.Server.CORSOrigins,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			logger.Info("serving BluePulse API",
				"addr", cfg.Server.Addr,
				"docs", cfg.Server.BasePath+"/docs")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "0.0.0.0:8000", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/api", "API base path")
	return cmd
}

func forecastCmd() *cobra.Command {
	var hours int
	cmd := &cobra.Command{
		Use:   "forecast <parameter>",
		Short: "Generate a parameter forecast",
		Long:  "Generates a synthetic historical+forecast series for an oceanographic parameter (temperature, salinity, chlorophyll, ph, oxygen).",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			gen := forecast.New(cfg.Forecast.BaseValues, cfg.Forecast.DefaultBase)
			series, err := gen.Generate(args[0], hours)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{
					"parameter":  series.Parameter,
					"historical": series.Historical,
					"forecast":   series.Forecast,
					"accuracy":   cfg.Forecast.Accuracy,
					"model":      cfg.Forecast.Model,
				})
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Timestamp", "Value", "Kind"})
			for i, ts := range series.Timestamps {
				if i < len(series.Historical) {
					tw.AppendRow(table.Row{ts.Format(time.RFC3339), series.Historical[i], "historical"})
				} else {
					tw.AppendRow(table.Row{ts.Format(time.RFC3339), series.Forecast[i-len(series.Historical)], "forecast"})
				}
			}
			tw.Render()
			fmt.Printf("model=%s accuracy=%.1f%%\n", cfg.Forecast.Model, cfg.Forecast.Accuracy)
			return nil
		},
	}
	cmd.Flags().IntVar(&hours, "hours", 168, "series length in hours")
	return cmd
}

func chatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat <message>",
		Short: "Ask the marine AI assistant",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			reply := chat.FromConfig(cfg).Respond(strings.Join(args, " "))
			if viper.GetBool("json") {
				return printJSON(map[string]any{
					"response":   reply.Text,
					"confidence": reply.Confidence,
					"model":      cfg.Chat.Model,
				})
			}
			fmt.Println(reply.Text)
			return nil
		},
	}
	return cmd
}

func modelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the ML model catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			logger := logging.New(cfg.Log.Level)
			return withEngine(cmd.Context(), cfg, logger, func(ctx context.Context, e engine.Engine) error {
				models, err := e.ListModels(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(models)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Type", "Status", "Accuracy", "Last Trained"})
				for _, m := range models {
					tw.AppendRow(table.Row{m.ID, m.Name, m.Type, m.Status, m.Accuracy, m.LastTrained})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage bluepulse.yml",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default bluepulse.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config")
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate bluepulse.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err == nil {
				err = cfg.Validate()
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger, fn func(context.Context, engine.Engine) error) error {
	e, cleanup, err := app.Bootstrap(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()
	return fn(ctx, e)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
