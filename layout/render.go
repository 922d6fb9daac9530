package layout

import (
	"bytes"
	"fmt"
	"math"
	"strconv"

	"github.com/TimoteoRJanzen/Tradutor-PDF/contentstream"
	"github.com/TimoteoRJanzen/Tradutor-PDF/coords"
	"github.com/TimoteoRJanzen/Tradutor-PDF/fonts"
)

// PlacedRun is one fitted piece of text ready to be drawn: the fit,
// where its first baseline sits, its fill color, and the font it is
// encoded with. FontRes is the resource name the page dictionary
// maps to the embedded font.
type PlacedRun struct {
	Fit     Fit
	Origin  coords.Point
	Color   contentstream.RGB
	FontRes string
	Font    *fonts.EmbeddedFont
}

// Render emits the content stream operations that paint the placed
// runs, in slice order. The output is meant to be appended after a
// stripped page stream, so it saves and restores graphics state
// around itself.
func Render(runs []PlacedRun, cfg Config) []byte {
	cfg = cfg.withDefaults()
	var buf bytes.Buffer
	buf.WriteString("q\n")
	for _, run := range runs {
		renderRun(&buf, run, cfg)
	}
	buf.WriteString("Q\n")
	return buf.Bytes()
}

func renderRun(buf *bytes.Buffer, run PlacedRun, cfg Config) {
	if len(run.Fit.Lines) == 0 || run.Font == nil {
		return
	}
	lineHeight := run.Fit.Size * cfg.Leading

	buf.WriteString("BT\n")
	fmt.Fprintf(buf, "/%s %s Tf\n", run.FontRes, num(run.Fit.Size))
	fmt.Fprintf(buf, "%s %s %s rg\n", num(run.Color.R), num(run.Color.G), num(run.Color.B))
	fmt.Fprintf(buf, "1 0 0 1 %s %s Tm\n", num(run.Origin.X), num(run.Origin.Y))
	fmt.Fprintf(buf, "%s TL\n", num(lineHeight))
	for i, line := range run.Fit.Lines {
		if i > 0 {
			buf.WriteString("T*\n")
		}
		writeHexString(buf, run.Font.Encode(line.Text))
		buf.WriteString(" Tj\n")
	}
	buf.WriteString("ET\n")
}

// writeHexString emits the 2-byte glyph codes as a PDF hex string.
func writeHexString(buf *bytes.Buffer, codes []byte) {
	const hexDigits = "0123456789ABCDEF"
	buf.WriteByte('<')
	for _, b := range codes {
		buf.WriteByte(hexDigits[b>>4])
		buf.WriteByte(hexDigits[b&0xF])
	}
	buf.WriteByte('>')
}

func num(v float64) string {
	return strconv.FormatFloat(math.Round(v*10000)/10000, 'f', -1, 64)
}
