// Package evidence stores contract text and site photos as named vectors and
// answers similarity and history queries over them.
package evidence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

const (
	VectorContractText = "contract_text"
	VectorSiteVisuals  = "site_visuals"

	PayloadType         = "type"
	PayloadContractorID = "contractor_id"
	PayloadProjectID    = "project_id"
	PayloadText         = "text"
	PayloadSource       = "source"

	TypeAuditHistory = "audit_history"
	TypeContractPDF  = "contract_pdf"
	TypeEvidence     = "evidence"
)

// Point is one stored item: up to one vector per name plus a JSON payload.
type Point struct {
	ID      string
	Vectors map[string][]float32
	Payload map[string]any
}

// Hit is a point returned by a query or scroll. Score is zero for scrolls.
type Hit struct {
	ID      string
	Score   float64
	Payload map[string]any
}

// String returns payload[key] when it is a string.
func (h Hit) String(key string) string {
	s, _ := h.Payload[key].(string)
	return s
}

// Filter holds exact-match conditions that must all hold.
type Filter struct {
	Must map[string]string
}

type VectorSpec struct {
	Name string
	Size int
}

// Schema describes a collection. All vectors use cosine distance.
type Schema struct {
	Collection string
	Vectors    []VectorSpec
}

// DefaultSchema is the two-vector layout for contract text and site photos.
func DefaultSchema(collection string, textDim, imageDim int) Schema {
	return Schema{
		Collection: collection,
		Vectors: []VectorSpec{
			{Name: VectorContractText, Size: textDim},
			{Name: VectorSiteVisuals, Size: imageDim},
		},
	}
}

// Backend is a vector database holding one collection.
type Backend interface {
	EnsureCollection(ctx context.Context, schema Schema, recreate bool) error
	Upsert(ctx context.Context, points ...Point) error
	Query(ctx context.Context, vectorName string, vector []float32, limit int) ([]Hit, error)
	Scroll(ctx context.Context, filter Filter, limit int) ([]Hit, error)
	Ping(ctx context.Context) error
	Close() error
}

// PointID derives the stable point id for docID (UUIDv5 in the DNS namespace),
// so re-ingesting a document overwrites its point.
func PointID(docID string) string {
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(docID)).String()
}

// normalizePayload round-trips through JSON so every backend sees the same
// value types (string, float64, bool, nil, []any, map[string]any).
func normalizePayload(payload map[string]any) (map[string]any, error) {
	if payload == nil {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return out, nil
}
