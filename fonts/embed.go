package fonts

import (
	"bytes"
	"fmt"
	"math"
	"sort"

	"github.com/TimoteoRJanzen/Tradutor-PDF/ir/semantic"
)

// EmbeddedFont pairs a parsed face with the semantic font object that
// embeds it, plus the code assignments handed out so far. Codes are
// glyph IDs (Identity-H), so encoding text is a cmap lookup.
type EmbeddedFont struct {
	Face *Face
	Font *semantic.Font

	used map[uint16]rune // gid -> source rune, for the ToUnicode CMap
}

// NewEmbeddedFont builds a Type0 Identity-H font around face with a
// FontFile2 stream carrying the full program.
func NewEmbeddedFont(face *Face) (*EmbeddedFont, error) {
	if face == nil || len(face.Data) == 0 {
		return nil, fmt.Errorf("embed font: empty face")
	}

	widths := make(map[int]float64)
	ascent, descent := face.Extents()
	bounds := face.Bounds()

	descriptor := &semantic.FontDescriptor{
		FontName:     face.Name,
		Flags:        4, // non-symbolic
		ItalicAngle:  face.ItalicAngle(),
		Ascent:       ascent * 1000,
		Descent:      descent * 1000,
		CapHeight:    ascent * 1000,
		StemV:        80,
		FontBBox:     bounds,
		FontFile:     face.Data,
		FontFileType: "FontFile2",
	}

	dw := face.GlyphAdvanceByIndex(0)
	if dw == 0 {
		dw = 1000
	}

	descendant := &semantic.CIDFont{
		Subtype:  "CIDFontType2",
		BaseFont: face.Name,
		CIDSystemInfo: semantic.CIDSystemInfo{
			Registry: "Adobe",
			Ordering: "Identity",
		},
		DW:         dw,
		W:          widths,
		Descriptor: descriptor,
	}

	font := &semantic.Font{
		Subtype:        "Type0",
		BaseFont:       face.Name,
		Encoding:       "Identity-H",
		DescendantFont: descendant,
		Descriptor:     descriptor,
	}

	return &EmbeddedFont{
		Face: face,
		Font: font,
		used: make(map[uint16]rune),
	}, nil
}

// Encode maps text to the big-endian 2-byte code string painted by Tj
// for an Identity-H font, recording widths and ToUnicode entries for
// every glyph it touches. Runes the face lacks paint as '?' so the
// substitution stays legible; .notdef only when the face has no '?'.
func (e *EmbeddedFont) Encode(text string) []byte {
	out := make([]byte, 0, len(text)*2)
	for _, r := range text {
		gid := e.Face.GlyphIndex(r)
		if gid == 0 {
			if q := e.Face.GlyphIndex('?'); q != 0 {
				gid, r = q, '?'
			}
		}
		if _, seen := e.used[gid]; !seen {
			e.used[gid] = r
			e.Font.DescendantFont.W[int(gid)] = math.Round(e.Face.GlyphAdvanceByIndex(gid))
		}
		out = append(out, byte(gid>>8), byte(gid))
	}
	return out
}

// Finish writes the accumulated glyph-to-rune mapping into the font's
// ToUnicode stream. Call once after all text for the font is encoded.
func (e *EmbeddedFont) Finish() {
	e.Font.ToUnicodeCMap = buildToUnicode(e.used)
}

// buildToUnicode emits a minimal CMap with one bfchar entry per glyph.
func buildToUnicode(used map[uint16]rune) []byte {
	gids := make([]int, 0, len(used))
	for gid := range used {
		gids = append(gids, int(gid))
	}
	sort.Ints(gids)

	var buf bytes.Buffer
	buf.WriteString("/CIDInit /ProcSet findresource begin\n")
	buf.WriteString("12 dict begin\n")
	buf.WriteString("begincmap\n")
	buf.WriteString("/CIDSystemInfo << /Registry (Adobe) /Ordering (UCS) /Supplement 0 >> def\n")
	buf.WriteString("/CMapName /Adobe-Identity-UCS def\n")
	buf.WriteString("/CMapType 2 def\n")
	buf.WriteString("1 begincodespacerange\n<0000> <FFFF>\nendcodespacerange\n")

	for start := 0; start < len(gids); start += 100 {
		end := start + 100
		if end > len(gids) {
			end = len(gids)
		}
		fmt.Fprintf(&buf, "%d beginbfchar\n", end-start)
		for _, gid := range gids[start:end] {
			r := used[uint16(gid)]
			if r > 0xFFFF {
				// Surrogate pair for astral runes.
				r -= 0x10000
				hi := 0xD800 + (r >> 10)
				lo := 0xDC00 + (r & 0x3FF)
				fmt.Fprintf(&buf, "<%04X> <%04X%04X>\n", gid, hi, lo)
			} else {
				fmt.Fprintf(&buf, "<%04X> <%04X>\n", gid, r)
			}
		}
		buf.WriteString("endbfchar\n")
	}

	buf.WriteString("endcmap\n")
	buf.WriteString("CMapName currentdict /CMap defineresource pop\n")
	buf.WriteString("end\nend\n")
	return buf.Bytes()
}
