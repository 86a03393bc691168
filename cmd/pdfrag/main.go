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
	"sort"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/pdfrag/internal/api"
	"github.com/efebarandurmaz/pdfrag/internal/bootstrap"
	"github.com/efebarandurmaz/pdfrag/internal/config"
	"github.com/efebarandurmaz/pdfrag/internal/llm"
	mcpserver "github.com/efebarandurmaz/pdfrag/internal/mcp"
	"github.com/efebarandurmaz/pdfrag/internal/observability"
	"github.com/efebarandurmaz/pdfrag/internal/rag"
	"github.com/efebarandurmaz/pdfrag/internal/server"
	"github.com/efebarandurmaz/pdfrag/internal/temporal"
)

var version = "dev"

// shutdownWait bounds how long serve waits for hooks after the listener fails.
const shutdownWait = 45 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "pdfrag",
		Short:        "PDF retrieval-augmented question answering on Temporal",
		Version:      version,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (optional)")

	rootCmd.AddCommand(
		newServeCmd(&configPath),
		newIngestCmd(&configPath),
		newQueryCmd(&configPath),
		newResultCmd(&configPath),
		newMCPCmd(&configPath),
		newProvidersCmd(),
	)
	return rootCmd
}

// session is what every Temporal-backed command needs.
type session struct {
	cfg        *config.Config
	dispatcher *temporal.Dispatcher
	close      func()
}

func openSession(configPath string) (*session, error) {
	// A missing .env file is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := bootstrap.NewLogger(cfg.Log)

	c, err := bootstrap.DialTemporal(cfg.Temporal, logger)
	if err != nil {
		return nil, err
	}
	return &session{
		cfg:        cfg,
		dispatcher: temporal.NewDispatcher(c, cfg.Temporal.TaskQueue),
		close:      c.Close,
	}, nil
}

func newServeCmd(configPath *string) *cobra.Command {
	var (
		addr      string
		enableMCP bool
		stateless bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(*configPath, addr, enableMCP, stateless)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config, :8000)")
	cmd.Flags().BoolVar(&enableMCP, "mcp", true, "Also serve MCP over streamable HTTP at /mcp")
	cmd.Flags().BoolVar(&stateless, "mcp-stateless", false, "Disable MCP session management")
	return cmd
}

func runServe(configPath, addr string, enableMCP, stateless bool) error {
	s, err := openSession(configPath)
	if err != nil {
		return err
	}
	cfg := s.cfg
	if addr == "" {
		addr = cfg.Server.Addr
	}

	ctx := context.Background()
	tp, err := bootstrap.InitTracing(ctx, cfg.Tracing, "pdfrag-api", version)
	if err != nil {
		s.close()
		return err
	}

	cat, err := bootstrap.OpenCatalog(ctx, cfg.Catalog)
	if err != nil {
		s.close()
		tp.Shutdown(ctx)
		return err
	}

	gs := server.NewGracefulServer(&server.HealthConfig{Version: version}, nil)
	opts := []api.Option{
		api.WithHealth(gs.Health),
		api.WithMetrics(observability.Metrics().Handler()),
	}
	if cat != nil {
		opts = append(opts, api.WithCatalog(cat))
		gs.Health.RegisterCheck("catalog", server.CatalogHealthChecker(cat.Health))
		gs.AddHook(server.CatalogShutdownHook(cat.Close))
	}
	if enableMCP {
		mcpSrv := mcpserver.NewServer(&mcpserver.Config{Events: s.dispatcher, Catalog: cat, Version: version})
		opts = append(opts, api.WithHandler("/mcp", mcpserver.NewHTTPHandler(mcpSrv, stateless)))
	}

	apiSrv := api.NewServer(&api.Config{ListenAddr: addr, RunTimeout: cfg.Server.RunTimeout}, s.dispatcher, opts...)

	gs.AddHook(server.HTTPServerShutdownHook("api-server", apiSrv.Stop))
	gs.AddHook(server.TemporalClientShutdownHook(s.close))
	gs.AddHook(server.TracingShutdownHook(tp.Shutdown))

	// Health endpoints are mounted on the API mux; no separate listener.
	gs.Start("")

	errCh := make(chan error, 1)
	go func() {
		errCh <- apiSrv.Start()
	}()

	select {
	case err := <-errCh:
		gs.Shutdown.Shutdown()
		if !gs.Shutdown.WaitWithTimeout(shutdownWait) {
			slog.Warn("shutdown did not finish", "timeout", shutdownWait)
		}
		return err
	case <-gs.Shutdown.Done():
		return nil
	}
}

func newIngestCmd(configPath *string) *cobra.Command {
	var (
		sourceID   string
		collection string
		wait       bool
	)

	cmd := &cobra.Command{
		Use:   "ingest <pdf_path>",
		Short: "Send a rag/ingest_pdf event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := rag.IngestRequest{PDFPath: args[0], SourceID: sourceID, Collection: collection}
			if err := req.Validate(); err != nil {
				return err
			}
			var result rag.UpsertResult
			return sendAndPrint(cmd, *configPath, rag.EventIngestPDF, req.Payload(), wait, &result)
		},
	}
	cmd.Flags().StringVar(&sourceID, "source-id", "", "Source label stored with each chunk (default: the path)")
	cmd.Flags().StringVar(&collection, "collection", "", "Target collection (default docs)")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for the run and print its result")
	return cmd
}

func newQueryCmd(configPath *string) *cobra.Command {
	var (
		topK       int
		collection string
		noWait     bool
	)

	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Send a rag/query_pdf_ai event and print the answer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := rag.QueryRequest{Question: args[0], Collection: collection}
			if cmd.Flags().Changed("top-k") {
				req.TopK = &topK
			}
			if err := req.Validate(); err != nil {
				return err
			}
			var result rag.QueryResult
			return sendAndPrint(cmd, *configPath, rag.EventQueryPDFAI, req.Payload(), !noWait, &result)
		},
	}
	cmd.Flags().IntVar(&topK, "top-k", rag.DefaultTopK, "Number of chunks to retrieve")
	cmd.Flags().StringVar(&collection, "collection", "", "Collection to search (default docs)")
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "Print the run ID without waiting for the answer")
	return cmd
}

func sendAndPrint(cmd *cobra.Command, configPath, name string, payload any, wait bool, result any) error {
	s, err := openSession(configPath)
	if err != nil {
		return err
	}
	defer s.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ack, err := s.dispatcher.Send(ctx, rag.Event{Name: name, Data: payload})
	if err != nil {
		return err
	}
	if !wait {
		return printJSON(cmd, ack)
	}

	if s.cfg.Server.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Server.RunTimeout)
		defer cancel()
	}
	if err := s.dispatcher.Result(ctx, ack.IDs[0], result); err != nil {
		return err
	}
	return printJSON(cmd, result)
}

func newResultCmd(configPath *string) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "result <id>",
		Short: "Wait for a run and print its result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(*configPath)
			if err != nil {
				return err
			}
			defer s.close()

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			var raw json.RawMessage
			if err := s.dispatcher.Result(ctx, args[0], &raw); err != nil {
				if errors.Is(err, temporal.ErrRunNotFound) {
					return fmt.Errorf("no run with id %q", args[0])
				}
				return err
			}
			return printJSON(cmd, raw)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "How long to wait for the run")
	return cmd
}

func newMCPCmd(configPath *string) *cobra.Command {
	var httpAddr string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the MCP tools over stdio, or over HTTP with --http",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(*configPath)
			if err != nil {
				return err
			}
			defer s.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cat, err := bootstrap.OpenCatalog(ctx, s.cfg.Catalog)
			if err != nil {
				return err
			}
			if cat != nil {
				defer cat.Close(context.Background())
			}

			srv := mcpserver.NewServer(&mcpserver.Config{Events: s.dispatcher, Catalog: cat, Version: version})
			if httpAddr == "" {
				return srv.Run(ctx)
			}

			mux := http.NewServeMux()
			mux.Handle("/mcp", mcpserver.NewHTTPHandler(srv, false))
			httpSrv := &http.Server{Addr: httpAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				httpSrv.Shutdown(shutdownCtx)
			}()
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&httpAddr, "http", "", "Serve streamable HTTP on this address instead of stdio")
	return cmd
}

func newProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List available model providers",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			names := make([]string, 0, len(llm.KnownProviders))
			for name := range llm.KnownProviders {
				names = append(names, name)
			}
			sort.Strings(names)

			fmt.Fprintln(out, "Available model providers:")
			fmt.Fprintln(out)
			for _, name := range names {
				fmt.Fprintf(out, "  %-14s %s\n", name, llm.KnownProviders[name])
			}
			fmt.Fprintln(out, "  custom         (set base_url to any OpenAI-compatible endpoint)")
			fmt.Fprintln(out)
			fmt.Fprintln(out, "anthropic cannot embed; pick another embedding provider.")
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Configure in pdfrag.yaml or via environment:")
			fmt.Fprintf(out, "  %s_LLM_PROVIDER=gemini\n", config.EnvPrefix)
			fmt.Fprintf(out, "  %s_EMBEDDING_PROVIDER=openai\n", config.EnvPrefix)
			fmt.Fprintln(out, "  GEMINI_API_KEY=... OPENAI_API_KEY=...")
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
