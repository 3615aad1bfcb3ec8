package ingest

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/stellarlinkco/vouchvault/internal/config"
	"github.com/stellarlinkco/vouchvault/internal/evidence"
)

// Sink receives evidence. *evidence.Store satisfies it.
type Sink interface {
	AddEvidence(ctx context.Context, docID, text, imagePath string, metadata map[string]any) bool
}

var photoExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

// Report counts what one ingestion pass did.
type Report struct {
	Contracts   int      `json:"contracts"`
	Chunks      int      `json:"chunks"`
	Photos      int      `json:"photos"`
	Skipped     int      `json:"skipped"`
	FailedFiles int      `json:"failed_files"`
	Errors      []string `json:"errors,omitempty"`
}

func (r Report) String() string {
	return fmt.Sprintf("contracts=%d chunks=%d photos=%d skipped=%d failed=%d",
		r.Contracts, r.Chunks, r.Photos, r.Skipped, r.FailedFiles)
}

// Service loads contract PDFs and site photos from the data directory.
type Service struct {
	sink         Sink
	contractsDir string
	photosDir    string
	chunkSize    int
	overlap      int
	projectID    string
	contractorID string

	// ExtractText reads a contract; tests replace it.
	ExtractText func(path string) (string, error)
}

func NewService(sink Sink, cfg *config.Config) *Service {
	return &Service{
		sink:         sink,
		contractsDir: cfg.ContractsDir(),
		photosDir:    cfg.PhotosDir(),
		chunkSize:    cfg.Ingest.ChunkSize,
		overlap:      cfg.Ingest.ChunkOverlap,
		projectID:    cfg.Ingest.ProjectID,
		contractorID: cfg.Ingest.ContractorID,
		ExtractText:  ExtractPDFText,
	}
}

// Run performs one full pass. Per-file failures are counted, not returned.
func (s *Service) Run(ctx context.Context) Report {
	var rep Report
	s.ingestContracts(ctx, &rep)
	s.ingestPhotos(ctx, &rep)
	log.Printf("[ingest] done: %s", rep)
	return rep
}

func (s *Service) ingestContracts(ctx context.Context, rep *Report) {
	files := listFiles(s.contractsDir, func(ext string) bool { return ext == ".pdf" })
	log.Printf("[ingest] found %d contracts in %s", len(files), s.contractsDir)

	for _, path := range files {
		if ctx.Err() != nil {
			return
		}
		name := filepath.Base(path)
		text, err := s.ExtractText(path)
		if err != nil {
			rep.FailedFiles++
			rep.Errors = append(rep.Errors, fmt.Sprintf("%s: %v", name, err))
			log.Printf("[ingest] failed to process %s: %v", name, err)
			continue
		}
		rep.Contracts++
		for _, c := range SplitChunks(text, s.chunkSize, s.overlap) {
			docID := fmt.Sprintf("%s_chunk_%d", name, c.Offset)
			meta := map[string]any{
				evidence.PayloadSource: name,
				evidence.PayloadType:   evidence.TypeContractPDF,
			}
			if s.sink.AddEvidence(ctx, docID, c.Text, "", meta) {
				rep.Chunks++
			} else {
				rep.Skipped++
			}
		}
	}
}

func (s *Service) ingestPhotos(ctx context.Context, rep *Report) {
	files := listFiles(s.photosDir, func(ext string) bool { return photoExts[ext] })
	log.Printf("[ingest] found %d site photos in %s", len(files), s.photosDir)

	for _, path := range files {
		if ctx.Err() != nil {
			return
		}
		name := filepath.Base(path)
		meta := map[string]any{
			evidence.PayloadType:         evidence.TypeEvidence,
			evidence.PayloadProjectID:    s.projectID,
			evidence.PayloadContractorID: s.contractorID,
			evidence.PayloadSource:       name,
		}
		if s.sink.AddEvidence(ctx, name, "", path, meta) {
			rep.Photos++
		} else {
			rep.Skipped++
		}
	}
}

// listFiles returns regular files in dir whose lower-cased extension is
// accepted, in name order. A missing directory yields nothing.
func listFiles(dir string, accept func(ext string) bool) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[ingest] read dir %s: %v", dir, err)
		}
		return nil
	}
	var out []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if accept(strings.ToLower(filepath.Ext(e.Name()))) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out
}
