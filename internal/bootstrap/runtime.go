// Package bootstrap builds the process-wide resources shared by the worker
// and the pdfrag CLI from a loaded configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"go.temporal.io/sdk/client"
	sdklog "go.temporal.io/sdk/log"

	"github.com/efebarandurmaz/pdfrag/internal/catalog"
	"github.com/efebarandurmaz/pdfrag/internal/catalog/neo4j"
	"github.com/efebarandurmaz/pdfrag/internal/config"
	"github.com/efebarandurmaz/pdfrag/internal/llm"
	"github.com/efebarandurmaz/pdfrag/internal/llmutil"
	"github.com/efebarandurmaz/pdfrag/internal/loader"
	"github.com/efebarandurmaz/pdfrag/internal/observability"
	"github.com/efebarandurmaz/pdfrag/internal/server"
	"github.com/efebarandurmaz/pdfrag/internal/temporal"
	"github.com/efebarandurmaz/pdfrag/internal/vector"
	"github.com/efebarandurmaz/pdfrag/internal/vector/memory"
	"github.com/efebarandurmaz/pdfrag/internal/vector/qdrant"
)

// Runtime holds the resources the activities need.
type Runtime struct {
	Generator llm.Provider
	Embedding llm.Provider
	Store     vector.Store
	Catalog   catalog.Repository // nil when disabled
	Loader    *loader.Loader
	Embedder  *vector.Embedder

	vectorProvider string
}

// NewRuntime creates model providers, the vector store, the optional
// catalog and the PDF loader. On error, everything created so far is
// closed.
func NewRuntime(ctx context.Context, cfg *config.Config) (rt *Runtime, err error) {
	rt = &Runtime{vectorProvider: cfg.Vector.Provider}
	defer func() {
		if err != nil {
			rt.Close(context.Background())
			rt = nil
		}
	}()

	factory := llm.NewFactory()
	llmutil.RegisterDefaultProviders(factory)

	rt.Generator, err = newProvider(factory, "llm", cfg.LLM.ProviderConfig())
	if err != nil {
		return rt, err
	}
	rt.Embedding, err = newProvider(factory, "embedding", cfg.Embedding.ProviderConfig())
	if err != nil {
		return rt, err
	}

	rt.Store, err = NewStore(ctx, cfg.Vector)
	if err != nil {
		return rt, err
	}

	rt.Catalog, err = OpenCatalog(ctx, cfg.Catalog)
	if err != nil {
		return rt, err
	}

	extractor, err := loader.ExtractorByName(cfg.Chunking.Extractor)
	if err != nil {
		return rt, err
	}
	splitter, err := loader.NewSentenceSplitter(cfg.Chunking.Size, cfg.Chunking.Overlap)
	if err != nil {
		return rt, fmt.Errorf("chunking: %w", err)
	}
	rt.Loader = loader.New(extractor, splitter)
	rt.Embedder = vector.NewEmbedder(rt.Embedding, rt.Store).WithBatchSize(cfg.Embedding.BatchSize)

	return rt, nil
}

func newProvider(factory *llm.ProviderFactory, role string, pc llm.ProviderConfig) (llm.Provider, error) {
	p, err := factory.Create(pc)
	if err != nil {
		return nil, fmt.Errorf("%s provider: %w", role, err)
	}
	if p == nil {
		return nil, fmt.Errorf("%s provider: %w", role, config.ErrNoProvider)
	}
	return llm.WithTracing(p), nil
}

// NewStore opens the configured vector store.
func NewStore(ctx context.Context, cfg config.VectorConfig) (vector.Store, error) {
	switch cfg.Provider {
	case "memory":
		slog.Warn("using in-memory vector store; data is lost on restart")
		return vector.WithTracing(memory.New(), "memory"), nil
	case "", "qdrant":
		store, err := qdrant.New(ctx, qdrant.Config{
			Host:           cfg.Host,
			Port:           cfg.Port,
			APIKey:         cfg.APIKey,
			UseTLS:         cfg.UseTLS,
			StartupTimeout: cfg.StartupTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("qdrant: %w", err)
		}
		return vector.WithTracing(store, "qdrant"), nil
	default:
		return nil, fmt.Errorf("unknown vector provider %q", cfg.Provider)
	}
}

// OpenCatalog connects to the Neo4j catalog. It returns a nil Repository
// when no URI is configured.
func OpenCatalog(ctx context.Context, cfg config.CatalogConfig) (catalog.Repository, error) {
	if cfg.URI == "" {
		return nil, nil
	}
	repo, err := neo4j.New(ctx, cfg.URI, cfg.Username, cfg.Password, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	return repo, nil
}

// Dependencies returns the activity dependencies backed by this runtime.
func (rt *Runtime) Dependencies() *temporal.Dependencies {
	return &temporal.Dependencies{
		Loader:    rt.Loader,
		Embedder:  rt.Embedder,
		Generator: rt.Generator,
		Catalog:   rt.Catalog,
	}
}

// RegisterHealthChecks adds the vector store, catalog and model checks.
func (rt *Runtime) RegisterHealthChecks(h *server.HealthServer) {
	h.RegisterCheck("vector-store", server.VectorStoreHealthChecker(rt.vectorProvider, rt.Store.Health))
	if rt.Catalog != nil {
		h.RegisterCheck("catalog", server.CatalogHealthChecker(rt.Catalog.Health))
	}
	h.RegisterCheck("llm", server.LLMHealthChecker(rt.Generator.Name(), nil))
}

// RegisterShutdownHooks closes the store and catalog during shutdown.
func (rt *Runtime) RegisterShutdownHooks(g *server.GracefulServer) {
	g.AddHook(server.VectorStoreShutdownHook(rt.Store.Close))
	if rt.Catalog != nil {
		g.AddHook(server.CatalogShutdownHook(rt.Catalog.Close))
	}
}

// Close releases the store and catalog. Safe on a partly built runtime.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.Store != nil {
		errs = append(errs, rt.Store.Close())
	}
	if rt.Catalog != nil {
		errs = append(errs, rt.Catalog.Close(ctx))
	}
	return errors.Join(errs...)
}

// NewLogger builds the process logger and installs it as the slog default.
func NewLogger(cfg config.LogConfig) *slog.Logger {
	logger := observability.NewLogger(os.Stderr, cfg.Level, cfg.Format)
	slog.SetDefault(logger)
	return logger
}

// InitTracing starts the OTLP exporter when an endpoint is configured.
func InitTracing(ctx context.Context, cfg config.TracingConfig, serviceName, version string) (*observability.TracerProvider, error) {
	tc := observability.DefaultTracingConfig()
	tc.ServiceName = serviceName
	tc.ServiceVersion = version
	tc.OTLPEndpoint = cfg.Endpoint
	if cfg.Environment != "" {
		tc.Environment = cfg.Environment
	}
	if cfg.SampleRate > 0 {
		tc.SampleRate = cfg.SampleRate
	}
	return observability.InitTracing(ctx, tc)
}

// DialTemporal connects to the Temporal frontend, logging through logger.
func DialTemporal(cfg config.TemporalConfig, logger *slog.Logger) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Host,
		Namespace: cfg.Namespace,
		Logger:    sdklog.NewStructuredLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("temporal client: %w", err)
	}
	return c, nil
}
