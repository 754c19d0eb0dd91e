// Package blank decides whether a PDF page carries meaningful content.
package blank

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/printorder/internal/metrics"
	"github.com/local/printorder/internal/pdfdoc"
)

// AnalysisDPI is the resolution pages are rendered at for classification.
const AnalysisDPI = 150.0

// Margins are excluded from analysis, in pixels at AnalysisDPI.
type Margins struct {
	Top    int `toml:"top"`
	Bottom int `toml:"bottom"`
	Left   int `toml:"left"`
	Right  int `toml:"right"`
}

// Options configures a Classifier.
type Options struct {
	Enabled      bool      `toml:"enabled"`
	Algorithm    Algorithm `toml:"algorithm"`
	Threshold    float64   `toml:"threshold"`
	Margins      Margins   `toml:"margins"`
	CacheEnabled bool      `toml:"cache_enabled"`
}

// DefaultOptions returns detection on, simple algorithm at 95%, header and
// footer margins of 50px and side margins of 20px.
func DefaultOptions() Options {
	return Options{
		Enabled:      true,
		Algorithm:    Simple,
		Threshold:    95,
		Margins:      Margins{Top: 50, Bottom: 50, Left: 20, Right: 20},
		CacheEnabled: true,
	}
}

// Classifier renders pages and classifies them. It is safe for concurrent
// use; the cache is the only shared state.
type Classifier struct {
	opts   Options
	cache  *Cache
	remote RemoteCache
}

// New builds a classifier with its own in-process cache.
func New(opts Options) *Classifier {
	return &Classifier{opts: opts, cache: NewCache()}
}

// WithRemote adds a shared cache tier consulted after the in-process one.
func (c *Classifier) WithRemote(r RemoteCache) *Classifier {
	c.remote = r
	return c
}

// WithCache shares an existing in-process cache between classifiers.
func (c *Classifier) WithCache(cache *Cache) *Classifier {
	if cache != nil {
		c.cache = cache
	}
	return c
}

func (c *Classifier) Options() Options { return c.opts }

// Cache exposes the in-process cache.
func (c *Classifier) Cache() *Cache { return c.cache }

// IsBlank reports whether page of doc is blank. Failures to render or
// analyse the page answer false so content is never dropped.
func (c *Classifier) IsBlank(ctx context.Context, doc pdfdoc.Document, page int) bool {
	if !c.opts.Enabled {
		return false
	}

	var key string
	if c.opts.CacheEnabled {
		if hash, err := ContentHash(doc, page); err != nil {
			log.Debug().Err(err).Int("page", page).Msg("content hash failed; classifying without cache")
		} else {
			key = cacheKey(hash, c.opts)
			if v, ok := c.lookup(ctx, key); ok {
				return v
			}
		}
	}

	start := time.Now()
	blank, err := c.classifyPage(doc, page)
	if err != nil {
		log.Warn().Err(err).Int("page", page).Msg("blank detection failed; keeping page")
		return false
	}
	metrics.IncClassified(blank)

	log.Debug().
		Int("page", page).
		Str("algorithm", c.opts.Algorithm.String()).
		Float64("threshold", c.opts.Threshold).
		Bool("blank", blank).
		Dur("took", time.Since(start)).
		Msg("page classified")

	if key != "" {
		c.store(ctx, key, blank)
	}
	return blank
}

func (c *Classifier) classifyPage(doc pdfdoc.Document, page int) (blank bool, err error) {
	defer func() {
		// image decoders in the render path can panic on malformed content
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Int("page", page).Msg("blank detection panicked")
			blank, err = false, fmt.Errorf("render panic: %v", r)
		}
	}()

	img, err := doc.RenderDPI(page, AnalysisDPI)
	if err != nil {
		return false, err
	}
	gray := toGrayscale(cropMargins(img, c.opts.Margins))
	return Classify(gray, c.opts.Algorithm, c.opts.Threshold), nil
}

func (c *Classifier) lookup(ctx context.Context, key string) (bool, bool) {
	if v, ok := c.cache.Get(key); ok {
		metrics.IncBlankCache("memory", "hit")
		return v, true
	}
	metrics.IncBlankCache("memory", "miss")

	if c.remote == nil {
		return false, false
	}
	v, found, err := c.remote.GetVerdict(ctx, key)
	switch {
	case err != nil:
		metrics.IncBlankCache("redis", "error")
		log.Debug().Err(err).Msg("remote blank cache lookup failed")
		return false, false
	case !found:
		metrics.IncBlankCache("redis", "miss")
		return false, false
	}
	metrics.IncBlankCache("redis", "hit")
	c.cache.Set(key, v)
	return v, true
}

func (c *Classifier) store(ctx context.Context, key string, blank bool) {
	c.cache.Set(key, blank)
	if c.remote == nil {
		return
	}
	if err := c.remote.SetVerdict(ctx, key, blank); err != nil {
		log.Debug().Err(err).Msg("remote blank cache write failed")
	}
}
