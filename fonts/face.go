// Package fonts resolves a usable font face for each text run through
// a fixed cascade: the font embedded in the document, a local font
// directory, a remote catalog, and finally a bundled generic fallback.
// Coverage is checked glyph by glyph against the text that will be
// painted, so a face is only chosen when it can actually render it.
package fonts

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	"github.com/go-text/typesetting/font"
	xfont "golang.org/x/image/font"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
)

// Face is a parsed TrueType/OpenType font ready for coverage checks,
// metric queries and embedding.
type Face struct {
	Name string
	Data []byte

	sf  *sfnt.Font
	tf  *font.Face
	buf sfnt.Buffer

	unitsPerEm sfnt.Units
	ppem       fixed.Int26_6
}

// NewFace parses font data. Both parsers must accept it: sfnt drives
// metrics and glyph lookup, typesetting drives coverage.
func NewFace(name string, data []byte) (*Face, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("font %s: empty data", name)
	}
	sf, err := sfnt.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("font %s: %w", name, err)
	}
	tf, err := font.ParseTTF(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("font %s: %w", name, err)
	}
	f := &Face{Name: name, Data: data, sf: sf, tf: tf}
	f.unitsPerEm = sf.UnitsPerEm()
	if f.unitsPerEm == 0 {
		return nil, fmt.Errorf("font %s: invalid unitsPerEm", name)
	}
	f.ppem = fixed.Int26_6(int32(f.unitsPerEm) << 6)

	if ps, _ := sf.Name(&f.buf, sfnt.NameIDPostScript); ps != "" {
		f.Name = ps
	} else if name == "" {
		f.Name = "Unnamed"
	}
	return f, nil
}

// Missing returns the runes of text this face has no glyph for,
// deduplicated and in first-appearance order. Control characters and
// spaces never count as missing.
func (f *Face) Missing(text string) []rune {
	var missing []rune
	seen := make(map[rune]bool)
	for _, r := range text {
		if r == ' ' || r == '\n' || r == '\t' || seen[r] {
			continue
		}
		seen[r] = true
		if _, ok := f.tf.NominalGlyph(r); !ok {
			missing = append(missing, r)
		}
	}
	return missing
}

// Covers reports whether every rune of text maps to a glyph.
func (f *Face) Covers(text string) bool { return len(f.Missing(text)) == 0 }

// GlyphIndex returns the glyph id for a rune, or 0 (.notdef).
func (f *Face) GlyphIndex(r rune) uint16 {
	if gid, ok := f.tf.NominalGlyph(r); ok {
		return uint16(gid)
	}
	return 0
}

// AdvanceEm returns the advance width of a rune in glyph space units
// (1000 per em). Missing glyphs report the .notdef advance.
func (f *Face) AdvanceEm(r rune) float64 {
	gi, err := f.sf.GlyphIndex(&f.buf, r)
	if err != nil {
		return 0
	}
	adv, err := f.sf.GlyphAdvance(&f.buf, gi, f.ppem, xfont.HintingNone)
	if err != nil {
		return 0
	}
	return f.scaleFixed(adv)
}

// TextWidthEm is the summed advance of text in glyph space units.
func (f *Face) TextWidthEm(text string) float64 {
	var total float64
	for _, r := range text {
		total += f.AdvanceEm(r)
	}
	return total
}

// Extents returns ascent and descent in glyph space units. Descent is
// negative.
func (f *Face) Extents() (ascent, descent float64) {
	metrics, err := f.sf.Metrics(&f.buf, f.ppem, xfont.HintingNone)
	if err != nil {
		return 800, -200
	}
	return f.scaleFixed(metrics.Ascent), -f.scaleFixed(metrics.Descent)
}

// GlyphAdvanceByIndex returns the advance of a glyph id in glyph
// space units, rounded the way widths are written to PDF.
func (f *Face) GlyphAdvanceByIndex(gid uint16) float64 {
	adv, err := f.sf.GlyphAdvance(&f.buf, sfnt.GlyphIndex(gid), f.ppem, xfont.HintingNone)
	if err != nil {
		return 0
	}
	return math.Round(f.scaleFixed(adv))
}

// ItalicAngle reads the post table angle, 0 when absent.
func (f *Face) ItalicAngle() float64 {
	post := f.sf.PostTable()
	if post == nil {
		return 0
	}
	return post.ItalicAngle
}

// Bounds returns the font bounding box in glyph space units.
func (f *Face) Bounds() [4]float64 {
	bounds, err := f.sf.Bounds(&f.buf, f.ppem, xfont.HintingNone)
	if err != nil {
		return [4]float64{0, -200, 1000, 800}
	}
	return [4]float64{
		f.scaleFixed(bounds.Min.X),
		f.scaleFixed(bounds.Min.Y),
		f.scaleFixed(bounds.Max.X),
		f.scaleFixed(bounds.Max.Y),
	}
}

func (f *Face) scaleFixed(val fixed.Int26_6) float64 {
	return float64(val) * 1000.0 / (64.0 * float64(f.unitsPerEm))
}

// NormalizeName strips the subset tag and style decorations from a
// PDF BaseFont name: "ABCDEF+Times-BoldItalic" becomes "Times".
func NormalizeName(baseFont string) string {
	name := baseFont
	if len(name) > 7 && name[6] == '+' && isSubsetTag(name[:6]) {
		name = name[7:]
	}
	if idx := strings.IndexAny(name, ",-"); idx > 0 {
		name = name[:idx]
	}
	return name
}

// Style guesses bold/italic from a BaseFont name and italic angle.
func Style(baseFont string, italicAngle float64) (bold, italic bool) {
	lower := strings.ToLower(baseFont)
	bold = strings.Contains(lower, "bold") || strings.Contains(lower, "black") || strings.Contains(lower, "heavy")
	italic = strings.Contains(lower, "italic") || strings.Contains(lower, "oblique") || italicAngle != 0
	return bold, italic
}

func isSubsetTag(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return true
}
