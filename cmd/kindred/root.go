package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/goblincore/kindred"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:          "kindred",
	Short:        "A companion engine with feelings that grow, fade and remember",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return viper.BindPFlags(cmd.Flags())
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("db-path", "./data/kindred.db", "SQLite database path")
	flags.Duration("decay-interval", time.Hour, "how often the decay worker sweeps memories")
	flags.String("openai-api-key", "", "API key for the OpenAI response generator")
	flags.String("openai-base-url", "", "OpenAI-compatible API base URL")
	flags.String("openai-model", "gpt-4o-mini", "chat model for the OpenAI generator")
	flags.String("gemini-api-key", "", "API key for the Gemini response generator")
	flags.String("redis-addr", "", "Redis address for cross-process companion locks")
	flags.String("log-level", "info", "log level: debug, info, warn, error")

	if err := viper.BindPFlags(flags); err != nil {
		log.Fatal("bind flags", "err", err)
	}
}

// initConfig loads .env, then lets KINDRED_* variables override flag defaults.
func initConfig() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn("could not read .env", "err", err)
	}
	viper.SetEnvPrefix("kindred")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func newLogger() *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		Prefix:          "kindred",
		ReportTimestamp: true,
	})
	if lvl, err := log.ParseLevel(viper.GetString("log-level")); err == nil {
		logger.SetLevel(lvl)
	}
	return logger
}

type engineOptions struct {
	decayWorker bool
	registerer  prometheus.Registerer
}

// openEngine builds a kindred.Config from viper and initializes the engine.
func openEngine(ctx context.Context, opts engineOptions) (*kindred.Engine, error) {
	logger := newLogger()

	cfg := kindred.Config{
		DBPath:        viper.GetString("db-path"),
		DecayInterval: viper.GetDuration("decay-interval"),
		Logger:        logger,
		Registerer:    opts.registerer,
	}
	if !opts.decayWorker {
		cfg.DecayInterval = -1
	}

	switch {
	case viper.GetString("openai-api-key") != "":
		cfg.Generator = kindred.NewOpenAIGenerator(viper.GetString("openai-api-key"),
			kindred.WithOpenAIModel(viper.GetString("openai-model")),
			kindred.WithOpenAIBaseURL(viper.GetString("openai-base-url")),
		)
	case viper.GetString("gemini-api-key") != "":
		cfg.Generator = kindred.NewGeminiGenerator(viper.GetString("gemini-api-key"))
	default:
		logger.Warn("no response generator configured, replies will be canned")
	}

	if addr := viper.GetString("redis-addr"); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis %s: %w", addr, err)
		}
		cfg.Locker = kindred.NewRedisLocker(client, kindred.WithLockLogger(logger))
	}

	return kindred.Init(cfg)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
