package evidence

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/qdrant/go-client/qdrant"

	"github.com/stellarlinkco/vouchvault/internal/config"
)

// qdrantAPI is the subset of *qdrant.Client the backend calls.
type qdrantAPI interface {
	HealthCheck(ctx context.Context) (*qdrant.HealthCheckReply, error)
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	DeleteCollection(ctx context.Context, collectionName string) error
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Scroll(ctx context.Context, request *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, error)
	Close() error
}

// QdrantBackend talks to a Qdrant server over gRPC.
type QdrantBackend struct {
	client     qdrantAPI
	collection string
}

func DialQdrant(cfg config.VectorStoreConfig) (*QdrantBackend, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("dial qdrant %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return &QdrantBackend{client: client, collection: cfg.Collection}, nil
}

func (b *QdrantBackend) Ping(ctx context.Context) error {
	if _, err := b.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant health check: %w", err)
	}
	return nil
}

func (b *QdrantBackend) EnsureCollection(ctx context.Context, schema Schema, recreate bool) error {
	exists, err := b.client.CollectionExists(ctx, b.collection)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if exists {
		if !recreate {
			return nil
		}
		if err := b.client.DeleteCollection(ctx, b.collection); err != nil {
			return fmt.Errorf("delete collection: %w", err)
		}
	}

	params := make(map[string]*qdrant.VectorParams, len(schema.Vectors))
	for _, v := range schema.Vectors {
		params[v.Name] = &qdrant.VectorParams{Size: uint64(v.Size), Distance: qdrant.Distance_Cosine}
	}
	if err := b.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: b.collection,
		VectorsConfig:  qdrant.NewVectorsConfigMap(params),
	}); err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	return nil
}

func (b *QdrantBackend) Upsert(ctx context.Context, points ...Point) error {
	structs := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		payload, err := qdrant.TryValueMap(p.Payload)
		if err != nil {
			return fmt.Errorf("encode payload %s: %w", p.ID, err)
		}
		vectors := make(map[string]*qdrant.Vector, len(p.Vectors))
		for name, vec := range p.Vectors {
			vectors[name] = qdrant.NewVector(vec...)
		}
		structs = append(structs, &qdrant.PointStruct{
			Id:      qdrant.NewID(p.ID),
			Vectors: qdrant.NewVectorsMap(vectors),
			Payload: payload,
		})
	}
	if _, err := b.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: b.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         structs,
	}); err != nil {
		return fmt.Errorf("upsert: %w", err)
	}
	return nil
}

func (b *QdrantBackend) Query(ctx context.Context, vectorName string, vector []float32, limit int) ([]Hit, error) {
	points, err := b.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: b.collection,
		Query:          qdrant.NewQuery(vector...),
		Using:          qdrant.PtrOf(vectorName),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", vectorName, err)
	}
	hits := make([]Hit, 0, len(points))
	for _, p := range points {
		hits = append(hits, Hit{ID: pointIDString(p.GetId()), Score: float64(p.GetScore()), Payload: fromValueMap(p.GetPayload())})
	}
	return hits, nil
}

func (b *QdrantBackend) Scroll(ctx context.Context, filter Filter, limit int) ([]Hit, error) {
	keys := make([]string, 0, len(filter.Must))
	for k := range filter.Must {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	conditions := make([]*qdrant.Condition, 0, len(keys))
	for _, k := range keys {
		conditions = append(conditions, qdrant.NewMatch(k, filter.Must[k]))
	}

	req := &qdrant.ScrollPoints{
		CollectionName: b.collection,
		Filter:         &qdrant.Filter{Must: conditions},
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if limit > 0 {
		req.Limit = qdrant.PtrOf(uint32(limit))
	}
	points, err := b.client.Scroll(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("scroll: %w", err)
	}
	hits := make([]Hit, 0, len(points))
	for _, p := range points {
		hits = append(hits, Hit{ID: pointIDString(p.GetId()), Payload: fromValueMap(p.GetPayload())})
	}
	return hits, nil
}

func (b *QdrantBackend) Close() error {
	return b.client.Close()
}

func pointIDString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	return strconv.FormatUint(id.GetNum(), 10)
}

func fromValueMap(fields map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = fromValue(v)
	}
	return out
}

func fromValue(v *qdrant.Value) any {
	if v == nil {
		return nil
	}
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return float64(kind.IntegerValue)
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_StructValue:
		return fromValueMap(kind.StructValue.GetFields())
	case *qdrant.Value_ListValue:
		items := kind.ListValue.GetValues()
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = fromValue(item)
		}
		return out
	default:
		return nil
	}
}
