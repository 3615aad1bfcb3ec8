package evidence

import (
	"context"
	"errors"
	"fmt"
	"log"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stellarlinkco/vouchvault/internal/config"
	"github.com/stellarlinkco/vouchvault/internal/embed"
)

const (
	DefaultSearchLimit   = 3
	contractorHistoryMax = 10
)

var ErrUnavailable = errors.New("evidence store unavailable")

// Store is the evidence facade used by tools, ingestion and the audit loop.
// A Store without a backend is degraded: writes are skipped and reads are empty.
type Store struct {
	backend Backend
	schema  Schema
	text    embed.TextEmbedder
	image   embed.ImageEmbedder

	now     func() time.Time
	auditID func(contractorID string) string
}

func New(backend Backend, schema Schema, text embed.TextEmbedder, image embed.ImageEmbedder) *Store {
	return &Store{
		backend: backend,
		schema:  schema,
		text:    text,
		image:   image,
		now:     time.Now,
		auditID: randomAuditID,
	}
}

// Open connects the configured backend. Connection failures yield a degraded
// store and a warning; only an unknown backend name is an error.
func Open(ctx context.Context, cfg *config.Config, text embed.TextEmbedder, image embed.ImageEmbedder) (*Store, error) {
	vs := cfg.VectorStore
	schema := DefaultSchema(vs.Collection, cfg.Embedding.Text.Dimension, cfg.Embedding.Image.Dimension)

	var (
		backend Backend
		err     error
		where   string
	)
	switch strings.ToLower(strings.TrimSpace(vs.Backend)) {
	case "", "qdrant":
		where = fmt.Sprintf("qdrant at %s:%d", vs.Host, vs.Port)
		backend, err = DialQdrant(vs)
	case "sqlite":
		where = "sqlite at " + vs.DBPath
		backend, err = OpenSQLite(vs.DBPath, vs.Collection)
	default:
		return nil, fmt.Errorf("unknown vector store backend: %s", vs.Backend)
	}
	if err != nil {
		log.Printf("[evidence] warning: %v; vector capabilities disabled", err)
		return New(nil, schema, text, image), nil
	}
	if err := backend.Ping(ctx); err != nil {
		log.Printf("[evidence] warning: cannot reach %s: %v; vector capabilities disabled", where, err)
		_ = backend.Close()
		return New(nil, schema, text, image), nil
	}
	log.Printf("[evidence] connected to %s", where)
	return New(backend, schema, text, image), nil
}

func (s *Store) Available() bool {
	return s != nil && s.backend != nil
}

func (s *Store) Close() error {
	if !s.Available() {
		return nil
	}
	return s.backend.Close()
}

// EnsureCollection creates the two-vector collection, dropping it first when recreate is set.
func (s *Store) EnsureCollection(ctx context.Context, recreate bool) error {
	if !s.Available() {
		return ErrUnavailable
	}
	if err := s.backend.EnsureCollection(ctx, s.schema, recreate); err != nil {
		return fmt.Errorf("ensure collection %s: %w", s.schema.Collection, err)
	}
	return nil
}

// AddEvidence embeds text and/or the image and upserts them under PointID(docID).
// It reports whether a point was written.
func (s *Store) AddEvidence(ctx context.Context, docID, text, imagePath string, metadata map[string]any) bool {
	if !s.Available() {
		log.Printf("[evidence] store unavailable, skipping %s", docID)
		return false
	}

	vectors := map[string][]float32{}
	if text != "" && s.text != nil {
		if vec, err := s.text.EmbedText(ctx, text); err != nil {
			log.Printf("[evidence] embed text for %s: %v", docID, err)
		} else {
			vectors[VectorContractText] = vec
		}
	}
	if imagePath != "" && s.image != nil {
		if vec, err := s.image.EmbedImage(ctx, imagePath); err != nil {
			log.Printf("[evidence] embed image %s: %v", imagePath, err)
		} else {
			vectors[VectorSiteVisuals] = vec
		}
	}
	if len(vectors) == 0 {
		log.Printf("[evidence] warning: no vectors generated for %s, skipping upsert", docID)
		return false
	}

	var payload map[string]any
	if len(metadata) > 0 {
		payload = maps.Clone(metadata)
	} else {
		payload = map[string]any{"original_id": docID}
	}
	if text != "" {
		payload[PayloadText] = text
	}
	payload, err := normalizePayload(payload)
	if err != nil {
		log.Printf("[evidence] %s: %v", docID, err)
		return false
	}

	if err := s.backend.Upsert(ctx, Point{ID: PointID(docID), Vectors: vectors, Payload: payload}); err != nil {
		log.Printf("[evidence] upsert %s: %v", docID, err)
		return false
	}
	log.Printf("[evidence] stored %s", docID)
	return true
}

func (s *Store) SearchSimilarContracts(ctx context.Context, query string, limit int) []Hit {
	if !s.Available() || s.text == nil {
		return []Hit{}
	}
	vec, err := s.text.EmbedText(ctx, query)
	if err != nil {
		log.Printf("[evidence] embed query: %v", err)
		return []Hit{}
	}
	return s.query(ctx, VectorContractText, vec, limit)
}

func (s *Store) SearchVisualsByImage(ctx context.Context, imagePath string, limit int) []Hit {
	if !s.Available() || s.image == nil {
		return []Hit{}
	}
	vec, err := s.image.EmbedImage(ctx, imagePath)
	if err != nil {
		log.Printf("[evidence] embed query image: %v", err)
		return []Hit{}
	}
	return s.query(ctx, VectorSiteVisuals, vec, limit)
}

// SearchVisualsByText encodes query with the image model's text tower and
// searches the photo vectors.
func (s *Store) SearchVisualsByText(ctx context.Context, query string, limit int) []Hit {
	if !s.Available() || s.image == nil {
		return []Hit{}
	}
	vec, err := s.image.EmbedText(ctx, query)
	if err != nil {
		log.Printf("[evidence] embed visual query: %v", err)
		return []Hit{}
	}
	return s.query(ctx, VectorSiteVisuals, vec, limit)
}

func (s *Store) query(ctx context.Context, vectorName string, vec []float32, limit int) []Hit {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	hits, err := s.backend.Query(ctx, vectorName, vec, limit)
	if err != nil {
		log.Printf("[evidence] search %s: %v", vectorName, err)
		return []Hit{}
	}
	if hits == nil {
		hits = []Hit{}
	}
	return hits
}

// StoreAuditResult appends one audit_history entry for the contractor. The
// summary is embedded for semantic recall when a text model is available.
func (s *Store) StoreAuditResult(ctx context.Context, contractorID, projectID, status, summary string) bool {
	if !s.Available() {
		return false
	}

	id := s.auditID(contractorID)
	vectors := map[string][]float32{}
	if s.text != nil {
		if vec, err := s.text.EmbedText(ctx, summary); err != nil {
			log.Printf("[evidence] embed audit summary: %v", err)
		} else {
			vectors[VectorContractText] = vec
		}
	}
	payload := map[string]any{
		PayloadType:         TypeAuditHistory,
		PayloadContractorID: contractorID,
		PayloadProjectID:    projectID,
		"status":            status,
		"summary":           summary,
		"timestamp":         s.now().UTC().Format(time.RFC3339),
	}
	if err := s.backend.Upsert(ctx, Point{ID: PointID(id), Vectors: vectors, Payload: payload}); err != nil {
		log.Printf("[evidence] store audit result for %s: %v", contractorID, err)
		return false
	}
	log.Printf("[evidence] audit result stored for contractor %s", contractorID)
	return true
}

// ContractorHistory returns up to ten audit_history entries for contractorID.
func (s *Store) ContractorHistory(ctx context.Context, contractorID string) []Hit {
	if !s.Available() {
		return []Hit{}
	}
	hits, err := s.backend.Scroll(ctx, Filter{Must: map[string]string{
		PayloadType:         TypeAuditHistory,
		PayloadContractorID: contractorID,
	}}, contractorHistoryMax)
	if err != nil {
		log.Printf("[evidence] contractor history for %s: %v", contractorID, err)
		return []Hit{}
	}
	if hits == nil {
		hits = []Hit{}
	}
	return hits
}

func randomAuditID(contractorID string) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("audit_%s_%s", contractorID, hex[:8])
}
