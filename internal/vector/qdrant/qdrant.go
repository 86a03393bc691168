// Package qdrant implements vector.Store on Qdrant's gRPC API.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/efebarandurmaz/pdfrag/internal/rag"
	"github.com/efebarandurmaz/pdfrag/internal/vector"
)

// ErrUnreachable is returned when the startup health check gives up.
var ErrUnreachable = errors.New("qdrant unreachable")

const (
	upsertBatchSize = 100
	maxMsgSize      = 64 << 20
)

// client is the subset of *pb.Client used by Store.
type client interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *pb.CreateCollection) error
	GetCollectionInfo(ctx context.Context, collectionName string) (*pb.CollectionInfo, error)
	Upsert(ctx context.Context, request *pb.UpsertPoints) (*pb.UpdateResult, error)
	Query(ctx context.Context, request *pb.QueryPoints) ([]*pb.ScoredPoint, error)
	HealthCheck(ctx context.Context) (*pb.HealthCheckReply, error)
	Close() error
}

// Config selects the Qdrant endpoint.
type Config struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
	// StartupTimeout bounds the health-check retries in New. 0 means 30s.
	StartupTimeout time.Duration
}

// Store implements vector.Store using Qdrant.
type Store struct {
	client client
}

// New connects to Qdrant and waits until it answers a health check,
// retrying with exponential backoff.
func New(ctx context.Context, cfg Config) (*Store, error) {
	c, err := pb.NewClient(&pb.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(maxMsgSize),
				grpc.MaxCallSendMsgSize(maxMsgSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}

	s := &Store{client: c}
	if err := s.waitHealthy(ctx, cfg.StartupTimeout); err != nil {
		c.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	return s, nil
}

func newWithClient(c client) *Store {
	return &Store{client: c}
}

// waitHealthy polls Health with backoff: 500ms initial, 10s max interval.
func (s *Store) waitHealthy(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = timeout

	return backoff.Retry(func() error {
		return s.Health(ctx)
	}, backoff.WithContext(b, ctx))
}

// Health performs a single health check.
func (s *Store) Health(ctx context.Context) error {
	reply, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if reply == nil || reply.GetTitle() == "" {
		return errors.New("health check returned invalid response")
	}
	return nil
}

// EnsureCollection creates collection with cosine distance when missing. An
// existing collection with a different vector size is an error.
func (s *Store) EnsureCollection(ctx context.Context, collection string, dim int) error {
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if exists {
		info, err := s.client.GetCollectionInfo(ctx, collection)
		if err != nil {
			return fmt.Errorf("collection info: %w", err)
		}
		size := info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
		if size != 0 && size != uint64(dim) {
			return fmt.Errorf("%w: collection %s has size %d, got %d", vector.ErrDimensionMismatch, collection, size, dim)
		}
		return nil
	}

	err = s.client.CreateCollection(ctx, &pb.CreateCollection{
		CollectionName: collection,
		VectorsConfig: pb.NewVectorsConfig(&pb.VectorParams{
			Size:     uint64(dim),
			Distance: pb.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	return nil
}

// Upsert writes points in batches of 100 and waits for each batch to be
// applied.
func (s *Store) Upsert(ctx context.Context, collection string, ids []string, vectors [][]float32, payloads []map[string]any) error {
	if err := vector.CheckLengths(ids, vectors, payloads); err != nil {
		return err
	}

	for i := 0; i < len(ids); i += upsertBatchSize {
		end := i + upsertBatchSize
		if end > len(ids) {
			end = len(ids)
		}

		points := make([]*pb.PointStruct, 0, end-i)
		for j := i; j < end; j++ {
			payload, err := pb.TryValueMap(payloads[j])
			if err != nil {
				return fmt.Errorf("payload %d: %w", j, err)
			}
			points = append(points, &pb.PointStruct{
				Id:      pb.NewIDUUID(ids[j]),
				Vectors: pb.NewVectors(vectors[j]...),
				Payload: payload,
			})
		}

		_, err := s.client.Upsert(ctx, &pb.UpsertPoints{
			CollectionName: collection,
			Wait:           pb.PtrOf(true),
			Points:         points,
		})
		if err != nil {
			return fmt.Errorf("upsert batch %d-%d: %w", i, end, err)
		}
	}
	return nil
}

// Search queries the topK nearest points and returns their text and source
// payloads. Points without text are skipped.
func (s *Store) Search(ctx context.Context, collection string, vec []float32, topK int) (rag.SearchResult, error) {
	if topK <= 0 {
		topK = rag.DefaultTopK
	}
	points, err := s.client.Query(ctx, &pb.QueryPoints{
		CollectionName: collection,
		Query:          pb.NewQuery(vec...),
		Limit:          pb.PtrOf(uint64(topK)),
		WithPayload:    pb.NewWithPayload(true),
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return rag.SearchResult{}, fmt.Errorf("%w: %s", vector.ErrCollectionNotFound, collection)
		}
		return rag.SearchResult{}, fmt.Errorf("query: %w", err)
	}

	res := rag.SearchResult{
		Contexts: make([]string, 0, len(points)),
		Sources:  make([]string, 0, len(points)),
	}
	for _, p := range points {
		text := p.GetPayload()[vector.PayloadText].GetStringValue()
		if text == "" {
			continue
		}
		res.Contexts = append(res.Contexts, text)
		res.Sources = append(res.Sources, p.GetPayload()[vector.PayloadSource].GetStringValue())
	}
	return res, nil
}

// Close closes the gRPC connection.
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

var _ vector.Store = (*Store)(nil)
