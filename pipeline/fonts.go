package pipeline

import (
	"fmt"
	"sync"

	"github.com/TimoteoRJanzen/Tradutor-PDF/fonts"
	"github.com/TimoteoRJanzen/Tradutor-PDF/ir/raw"
	"github.com/TimoteoRJanzen/Tradutor-PDF/writer"
)

// fontRegistry hands out one embedded font per resolved face, shared
// by every page that renders with it. Encoding mutates the embedded
// font's glyph bookkeeping, so rendering happens under mu.
type fontRegistry struct {
	mu      sync.Mutex
	byFace  map[*fonts.Face]*registeredFont
	ordered []*registeredFont
}

type registeredFont struct {
	name string
	font *fonts.EmbeddedFont
}

func newFontRegistry() *fontRegistry {
	return &fontRegistry{byFace: make(map[*fonts.Face]*registeredFont)}
}

// lookup returns the resource name and embedded font for face,
// creating both on first use. Resource names are TF0, TF1, ... and
// never collide with the document's own names, which the stripper
// leaves behind only in non-text operators.
func (r *fontRegistry) lookup(face *fonts.Face) (string, *fonts.EmbeddedFont) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if reg, ok := r.byFace[face]; ok {
		return reg.name, reg.font
	}
	ef, err := fonts.NewEmbeddedFont(face)
	if err != nil {
		// A face that parsed for resolution embeds fine; this only
		// trips on a nil face, which resolution never returns.
		return "", nil
	}
	reg := &registeredFont{name: fmt.Sprintf("TF%d", len(r.ordered)), font: ef}
	r.byFace[face] = reg
	r.ordered = append(r.ordered, reg)
	return reg.name, reg.font
}

// install finalizes every registered font and adds it to the output
// document, returning resource name to object reference.
func (r *fontRegistry) install(w *writer.Writer) (map[string]raw.ObjectRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	refs := make(map[string]raw.ObjectRef, len(r.ordered))
	for _, reg := range r.ordered {
		reg.font.Finish()
		ref, err := w.AddFont(reg.font.Font)
		if err != nil {
			return nil, fmt.Errorf("install font %s: %w", reg.name, err)
		}
		refs[reg.name] = ref
	}
	return refs, nil
}
