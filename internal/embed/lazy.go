package embed

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/stellarlinkco/vouchvault/internal/config"
)

// LazyText builds its embedder on first use and caches the outcome, error included.
type LazyText struct {
	get func() (TextEmbedder, error)
}

func NewLazyText(name string, build func() (TextEmbedder, error)) *LazyText {
	return &LazyText{get: sync.OnceValues(func() (TextEmbedder, error) {
		log.Printf("[embed] loading text model %s", name)
		e, err := build()
		if err != nil {
			log.Printf("[embed] text model %s unavailable: %v", name, err)
		}
		return e, err
	})}
}

func (l *LazyText) EmbedText(ctx context.Context, text string) ([]float32, error) {
	e, err := l.get()
	if err != nil {
		return nil, fmt.Errorf("text embedder: %w", err)
	}
	return e.EmbedText(ctx, text)
}

// LazyImage is the ImageEmbedder counterpart of LazyText.
type LazyImage struct {
	get func() (ImageEmbedder, error)
}

func NewLazyImage(name string, build func() (ImageEmbedder, error)) *LazyImage {
	return &LazyImage{get: sync.OnceValues(func() (ImageEmbedder, error) {
		log.Printf("[embed] loading image model %s", name)
		e, err := build()
		if err != nil {
			log.Printf("[embed] image model %s unavailable: %v", name, err)
		}
		return e, err
	})}
}

func (l *LazyImage) EmbedImage(ctx context.Context, path string) ([]float32, error) {
	e, err := l.get()
	if err != nil {
		return nil, fmt.Errorf("image embedder: %w", err)
	}
	return e.EmbedImage(ctx, path)
}

func (l *LazyImage) EmbedText(ctx context.Context, text string) ([]float32, error) {
	e, err := l.get()
	if err != nil {
		return nil, fmt.Errorf("image embedder: %w", err)
	}
	return e.EmbedText(ctx, text)
}

// FromConfig wires lazily validated HTTP clients for both models.
func FromConfig(textCfg, imageCfg config.EmbedderConfig) (*LazyText, *LazyImage) {
	text := NewLazyText(textCfg.Model, func() (TextEmbedder, error) {
		c := NewClient(textCfg)
		if err := c.Validate(); err != nil {
			return nil, err
		}
		return c, nil
	})
	image := NewLazyImage(imageCfg.Model, func() (ImageEmbedder, error) {
		c := NewClient(imageCfg)
		if err := c.Validate(); err != nil {
			return nil, err
		}
		return c, nil
	})
	return text, image
}
