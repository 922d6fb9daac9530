package fonts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/TimoteoRJanzen/Tradutor-PDF/ir/semantic"
)

// ErrFontUnavailable means no tier of the cascade produced a usable
// face, including the generic fallback. This is fatal for the run
// that needed the font.
var ErrFontUnavailable = errors.New("font unavailable")

// Tier identifies which cascade step satisfied a resolution.
type Tier int

const (
	TierEmbedded Tier = iota
	TierLocal
	TierCatalog
	TierFallback
)

func (t Tier) String() string {
	switch t {
	case TierEmbedded:
		return "embedded"
	case TierLocal:
		return "local"
	case TierCatalog:
		return "catalog"
	case TierFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// Resolution is the outcome of a font lookup: the face to render
// with, the tier it came from, and any runes even that face lacks.
type Resolution struct {
	Face    *Face
	Tier    Tier
	Missing []rune
}

// Config wires the cascade. Zero values disable the local and catalog
// tiers; FallbackPaths defaults to the common DejaVu install paths.
type Config struct {
	Local         *LocalDir
	Catalog       Catalog
	FallbackPaths []string
}

// DefaultFallbackPaths lists where the bundled generic family is
// normally installed.
func DefaultFallbackPaths() []string {
	return []string{
		"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
		"/usr/share/fonts/dejavu/DejaVuSans.ttf",
		"/usr/local/share/fonts/DejaVuSans.ttf",
	}
}

// Resolver runs the cascade with a shared write-through face cache.
// Concurrent lookups for the same key are coalesced so a font file is
// fetched and parsed at most once.
type Resolver struct {
	cfg Config

	mu    sync.RWMutex
	faces map[string]*Face // cache key -> parsed face
	fails map[string]error // negative results, also write-through

	group singleflight.Group
}

func NewResolver(cfg Config) *Resolver {
	if len(cfg.FallbackPaths) == 0 {
		cfg.FallbackPaths = DefaultFallbackPaths()
	}
	return &Resolver{
		cfg:   cfg,
		faces: make(map[string]*Face),
		fails: make(map[string]error),
	}
}

// Resolve finds a face able to render text for the given document
// font. Coverage is re-checked on every call since different calls
// carry different text; only the parsed faces are cached.
func (r *Resolver) Resolve(ctx context.Context, docFont *semantic.Font, text string) (*Resolution, error) {
	family := ""
	var bold, italic bool
	if docFont != nil {
		family = NormalizeName(docFont.BaseFont)
		angle := 0.0
		if docFont.Descriptor != nil {
			angle = docFont.Descriptor.ItalicAngle
		}
		bold, italic = Style(docFont.BaseFont, angle)
	}

	if face := r.embeddedFace(docFont); face != nil && face.Covers(text) {
		return &Resolution{Face: face, Tier: TierEmbedded}, nil
	}

	if r.cfg.Local != nil && family != "" {
		if path := r.cfg.Local.Find(family, bold, italic); path != "" {
			if face, err := r.faceFromFile(path); err == nil && face.Covers(text) {
				return &Resolution{Face: face, Tier: TierLocal}, nil
			}
		}
	}

	if r.cfg.Catalog != nil && family != "" {
		face, err := r.catalogFace(ctx, family, bold, italic)
		if err == nil && face.Covers(text) {
			return &Resolution{Face: face, Tier: TierCatalog}, nil
		}
		if err != nil && errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
	}

	face, err := r.fallbackFace(bold, italic)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFontUnavailable, family, err)
	}
	return &Resolution{Face: face, Tier: TierFallback, Missing: face.Missing(text)}, nil
}

// embeddedFace parses the font file carried by the document, caching
// per font object. Unparseable embedded programs (e.g. Type1) simply
// disqualify the tier.
func (r *Resolver) embeddedFace(docFont *semantic.Font) *Face {
	if docFont == nil || docFont.Descriptor == nil || len(docFont.Descriptor.FontFile) == 0 {
		return nil
	}
	if docFont.Descriptor.FontFileType == "FontFile" {
		// Type1 programs are not sfnt-parseable.
		return nil
	}
	key := "embedded:" + docFont.BaseFont + ":" + fmt.Sprintf("%d", len(docFont.Descriptor.FontFile))
	face, _ := r.load(key, func() (*Face, error) {
		return NewFace(docFont.BaseFont, docFont.Descriptor.FontFile)
	})
	return face
}

func (r *Resolver) faceFromFile(path string) (*Face, error) {
	return r.load("file:"+path, func() (*Face, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return NewFace(path, data)
	})
}

func (r *Resolver) catalogFace(ctx context.Context, family string, bold, italic bool) (*Face, error) {
	key := fmt.Sprintf("catalog:%s:%v:%v", strings.ToLower(family), bold, italic)
	return r.load(key, func() (*Face, error) {
		data, err := r.cfg.Catalog.Fetch(ctx, family, bold, italic)
		if err != nil {
			return nil, err
		}
		face, err := NewFace(family, data)
		if err != nil {
			return nil, err
		}
		if r.cfg.Local != nil {
			// Persist the download so the next run finds it on disk.
			r.cfg.Local.Add(family, bold, italic, data)
		}
		return face, nil
	})
}

func (r *Resolver) fallbackFace(bold, italic bool) (*Face, error) {
	paths := orderFallbackPaths(r.cfg.FallbackPaths, bold, italic)
	var lastErr error
	for _, path := range paths {
		face, err := r.faceFromFile(path)
		if err == nil {
			return face, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("no fallback paths configured")
	}
	return nil, lastErr
}

// load is the single-flight, write-through cache around face
// construction. Both successes and failures are remembered.
func (r *Resolver) load(key string, fetch func() (*Face, error)) (*Face, error) {
	r.mu.RLock()
	face, okFace := r.faces[key]
	failErr, okFail := r.fails[key]
	r.mu.RUnlock()
	if okFace {
		return face, nil
	}
	if okFail {
		return nil, failErr
	}

	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		face, err := fetch()
		r.mu.Lock()
		switch {
		case err == nil:
			r.faces[key] = face
		case !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded):
			// Cancellation is not a verdict on the font.
			r.fails[key] = err
		}
		r.mu.Unlock()
		return face, err
	})
	if err != nil {
		return nil, err
	}
	return v.(*Face), nil
}

// orderFallbackPaths prefers style-matched files but keeps every path
// as a candidate.
func orderFallbackPaths(paths []string, bold, italic bool) []string {
	if !bold && !italic {
		return paths
	}
	styled := make([]string, 0, len(paths))
	rest := make([]string, 0, len(paths))
	for _, p := range paths {
		if styleScore(p, bold, italic) == 4 {
			styled = append(styled, p)
		} else {
			rest = append(rest, p)
		}
	}
	return append(styled, rest...)
}
