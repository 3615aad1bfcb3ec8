package ingest

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// ExtractPDFText returns the plain text of every page.
func ExtractPDFText(path string) (text string, err error) {
	// The reader panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("read pdf %s: %v", path, r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	return buf.String(), nil
}

// Chunk is a window of a document with its rune offset.
type Chunk struct {
	Offset int
	Text   string
}

// SplitChunks cuts text into windows of size runes, each starting
// size-overlap runes after the previous one.
func SplitChunks(text string, size, overlap int) []Chunk {
	if size <= 0 {
		return nil
	}
	step := size - overlap
	if step <= 0 {
		step = size
	}
	runes := []rune(text)
	var chunks []Chunk
	for i := 0; i < len(runes); i += step {
		end := i + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, Chunk{Offset: i, Text: string(runes[i:end])})
	}
	return chunks
}
