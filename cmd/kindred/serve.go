package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the engine as MCP tools over stdio",
	Long:  longServe,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		var reg *prometheus.Registry
		metricsAddr := viper.GetString("metrics-addr")
		if metricsAddr != "" {
			reg = prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		}

		opts := engineOptions{decayWorker: true}
		if reg != nil {
			opts.registerer = reg
		}
		engine, err := openEngine(ctx, opts)
		if err != nil {
			return err
		}
		defer engine.Close()

		if reg != nil {
			srv := &http.Server{
				Addr:              metricsAddr,
				Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
				ReadHeaderTimeout: 5 * time.Second,
			}
			go func() {
				log.Info("metrics listening", "addr", metricsAddr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("metrics server", "err", err)
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
		}

		server := mcp.NewServer(&mcp.Implementation{
			Name:    "kindred",
			Version: "1.0.0",
		}, nil)
		registerTools(server, engine)

		return server.Run(ctx, &mcp.StdioTransport{})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
}

var longServe = `
Serve the companion engine to an orchestrator as MCP tools over stdio.

Tools: create_companion, process_interaction, respond, recall,
memory_context, get_profile, decay_sweep.

Examples:
  # Serve with canned replies only
  kindred serve

  # Serve with an OpenAI generator and a metrics endpoint
  KINDRED_OPENAI_API_KEY=sk-... kindred serve --metrics-addr :9090
`
