// Package extractor walks page content and produces the ordered list
// of text runs with their position, font, color and visibility. It
// interprets just enough of the graphics state to place text; damaged
// operators are skipped and reported, never fatal.
package extractor

import (
	"fmt"

	"github.com/TimoteoRJanzen/Tradutor-PDF/contentstream"
	"github.com/TimoteoRJanzen/Tradutor-PDF/coords"
	"github.com/TimoteoRJanzen/Tradutor-PDF/ir/semantic"
	"github.com/TimoteoRJanzen/Tradutor-PDF/observability"
	"github.com/TimoteoRJanzen/Tradutor-PDF/recovery"
)

// TextRun is one uninterrupted piece of shown text.
type TextRun struct {
	Text        string
	Raw         []byte
	FontName    string // resource name, e.g. F1
	Font        *semantic.Font
	FontSize    float64 // effective size in text space units
	Origin      coords.Point
	BBox        coords.Rect
	Color       contentstream.RGB
	Visible     bool
	CharSpacing float64
	WordSpacing float64
	Op          int // index into the page's operation list
}

// Extractor decodes text runs from pages, caching parsed ToUnicode
// maps across pages that share fonts.
type Extractor struct {
	diag  *observability.Collector
	cmaps map[*semantic.Font]*toUnicodeMap
}

func New(diag *observability.Collector) *Extractor {
	return &Extractor{
		diag:  diag,
		cmaps: make(map[*semantic.Font]*toUnicodeMap),
	}
}

// Marker points at one non-text graphical object the extractor leaves
// untouched: a painted path, a placed XObject, a shading or an inline
// image.
type Marker struct {
	Operator string
	Op       int // index into the page's operation list
}

// ExtractPage returns the text runs of a page in painting order. A
// parse failure of the content stream itself is returned as an error;
// individual bad operators only produce diagnostics.
func (e *Extractor) ExtractPage(page *semantic.Page) ([]TextRun, error) {
	runs, _, err := e.ExtractContent(page)
	return runs, err
}

// ExtractContent returns the text runs plus the residual-graphics
// manifest of everything that stays behind after stripping.
func (e *Extractor) ExtractContent(page *semantic.Page) ([]TextRun, []Marker, error) {
	ops, err := e.pageOperations(page)
	if err != nil {
		return nil, nil, err
	}
	return e.runsFromOps(ops, page)
}

func (e *Extractor) pageOperations(page *semantic.Page) ([]contentstream.Operation, error) {
	data := joinContents(page.Contents)
	ops, err := contentstream.Parse(data, contentstream.Config{Recovery: recovery.NewLenientStrategy()})
	if err != nil {
		return nil, fmt.Errorf("page %d: parse content: %w", page.Index, err)
	}
	return ops, nil
}

// joinContents concatenates content streams with a newline separator,
// as the PDF model treats them as one logical stream.
func joinContents(streams []semantic.ContentStream) []byte {
	var total int
	for _, s := range streams {
		total += len(s.RawBytes) + 1
	}
	out := make([]byte, 0, total)
	for i, s := range streams {
		if i > 0 {
			out = append(out, '\n')
		}
		out = append(out, s.RawBytes...)
	}
	return out
}

func (e *Extractor) runsFromOps(ops []contentstream.Operation, page *semantic.Page) ([]TextRun, []Marker, error) {
	gs := contentstream.NewGraphicsState()
	var runs []TextRun
	var graphics []Marker

	skip := func(i int, op string, reason string) {
		e.diag.Record(observability.EventOperatorSkipped, page.Index, "%s: %s", op, reason)
		_ = i
	}

	for i, op := range ops {
		switch op.Operator {
		case "q":
			gs.Save()
		case "Q":
			if err := gs.Restore(); err != nil {
				skip(i, "Q", "restore on empty stack")
			}
		case "cm":
			if m, ok := matrixOperand(op.Operands); ok {
				gs.CTM = m.Multiply(gs.CTM)
			} else {
				skip(i, "cm", "needs 6 numbers")
			}

		case "BT":
			gs.BeginText()
		case "ET":

		case "Tf":
			if len(op.Operands) == 2 {
				name, okName := op.Operands[0].(contentstream.NameOperand)
				size, okSize := op.Operands[1].(contentstream.NumberOperand)
				if okName && okSize {
					gs.Text.FontName = name.Value
					gs.Text.FontSize = size.Value
					gs.Text.Font = nil
					if page.Resources != nil {
						gs.Text.Font = page.Resources.Fonts[name.Value]
					}
					if gs.Text.Font == nil {
						skip(i, "Tf", fmt.Sprintf("font %s not in resources", name.Value))
					}
					continue
				}
			}
			skip(i, "Tf", "needs name and size")
		case "Td":
			if tx, ty, ok := twoNumbers(op.Operands); ok {
				gs.NextLine(tx, ty)
			} else {
				skip(i, "Td", "needs 2 numbers")
			}
		case "TD":
			if tx, ty, ok := twoNumbers(op.Operands); ok {
				gs.Text.Leading = -ty
				gs.NextLine(tx, ty)
			} else {
				skip(i, "TD", "needs 2 numbers")
			}
		case "Tm":
			if m, ok := matrixOperand(op.Operands); ok {
				gs.Text.Matrix = m
				gs.Text.LineMatrix = m
			} else {
				skip(i, "Tm", "needs 6 numbers")
			}
		case "T*":
			gs.NextLine(0, -gs.Text.Leading)
		case "TL":
			if v, ok := oneNumber(op.Operands); ok {
				gs.Text.Leading = v
			}
		case "Tc":
			if v, ok := oneNumber(op.Operands); ok {
				gs.Text.CharSpacing = v
			}
		case "Tw":
			if v, ok := oneNumber(op.Operands); ok {
				gs.Text.WordSpacing = v
			}
		case "Tz":
			if v, ok := oneNumber(op.Operands); ok {
				gs.Text.HorizScale = v
			}
		case "Ts":
			if v, ok := oneNumber(op.Operands); ok {
				gs.Text.Rise = v
			}
		case "Tr":
			if v, ok := oneNumber(op.Operands); ok {
				gs.Text.RenderMode = contentstream.TextRenderMode(int(v))
			}

		case "rg":
			gs.FillColor = rgbFromOperands(op.Operands, gs.FillColor)
		case "RG":
			gs.StrokeColor = rgbFromOperands(op.Operands, gs.StrokeColor)
		case "g":
			gs.FillColor = grayFromOperands(op.Operands, gs.FillColor)
		case "G":
			gs.StrokeColor = grayFromOperands(op.Operands, gs.StrokeColor)
		case "k":
			gs.FillColor = cmykFromOperands(op.Operands, gs.FillColor)
		case "K":
			gs.StrokeColor = cmykFromOperands(op.Operands, gs.StrokeColor)
		case "sc", "scn":
			c, warn := componentColor(op.Operands, gs.FillColor)
			gs.FillColor = c
			if warn {
				e.diag.Record(observability.EventWarning, page.Index, "pattern fill reduced to black")
			}
		case "SC", "SCN":
			c, warn := componentColor(op.Operands, gs.StrokeColor)
			gs.StrokeColor = c
			if warn {
				e.diag.Record(observability.EventWarning, page.Index, "pattern stroke reduced to black")
			}

		case "Tj":
			if len(op.Operands) == 1 {
				if s, ok := op.Operands[0].(contentstream.StringOperand); ok {
					runs = e.show(runs, gs, s.Value, page, i)
					continue
				}
			}
			skip(i, "Tj", "needs a string")
		case "'":
			if len(op.Operands) == 1 {
				if s, ok := op.Operands[0].(contentstream.StringOperand); ok {
					gs.NextLine(0, -gs.Text.Leading)
					runs = e.show(runs, gs, s.Value, page, i)
					continue
				}
			}
			skip(i, "'", "needs a string")
		case "\"":
			if len(op.Operands) == 3 {
				aw, okA := op.Operands[0].(contentstream.NumberOperand)
				ac, okC := op.Operands[1].(contentstream.NumberOperand)
				s, okS := op.Operands[2].(contentstream.StringOperand)
				if okA && okC && okS {
					gs.Text.WordSpacing = aw.Value
					gs.Text.CharSpacing = ac.Value
					gs.NextLine(0, -gs.Text.Leading)
					runs = e.show(runs, gs, s.Value, page, i)
					continue
				}
			}
			skip(i, "\"", "needs two numbers and a string")
		case "TJ":
			if len(op.Operands) == 1 {
				if arr, ok := op.Operands[0].(contentstream.ArrayOperand); ok {
					for _, el := range arr.Values {
						switch v := el.(type) {
						case contentstream.StringOperand:
							runs = e.show(runs, gs, v.Value, page, i)
						case contentstream.NumberOperand:
							adv := -v.Value / 1000 * gs.Text.FontSize * gs.Text.HorizScale / 100
							gs.Text.Matrix = coords.Translate(adv, 0).Multiply(gs.Text.Matrix)
						}
					}
					continue
				}
			}
			skip(i, "TJ", "needs an array")

		case "S", "s", "f", "F", "f*", "B", "B*", "b", "b*", "Do", "sh", "BI":
			graphics = append(graphics, Marker{Operator: op.Operator, Op: i})
		}
	}
	return runs, graphics, nil
}

// show decodes one show-string, appends the resulting run, and
// advances the text matrix past it.
func (e *Extractor) show(runs []TextRun, gs *contentstream.GraphicsState, raw []byte, page *semantic.Page, opIndex int) []TextRun {
	if len(raw) == 0 {
		return runs
	}
	font := gs.Text.Font
	if font == nil {
		e.diag.Record(observability.EventOperatorSkipped, page.Index, "show without active font")
		return runs
	}

	codes := splitCodes(raw, font)
	text := e.decodeToUnicode(raw, codes, font, page.Index)
	advance := e.advanceOf(codes, gs)

	trm := gs.Text.Matrix.Multiply(gs.CTM)
	origin := trm.Transform(coords.Point{X: 0, Y: gs.Text.Rise})

	ascent, descent := fontExtents(font)
	box := coords.Rect{
		LLX: 0,
		LLY: gs.Text.Rise + descent*gs.Text.FontSize,
		URX: advance,
		URY: gs.Text.Rise + ascent*gs.Text.FontSize,
	}

	runs = append(runs, TextRun{
		Text:        text,
		Raw:         append([]byte(nil), raw...),
		FontName:    gs.Text.FontName,
		Font:        font,
		FontSize:    gs.Text.FontSize,
		Origin:      origin,
		BBox:        trm.TransformRect(box),
		Color:       gs.FillColor,
		Visible:     gs.Text.RenderMode < contentstream.TextInvisible,
		CharSpacing: gs.Text.CharSpacing,
		WordSpacing: gs.Text.WordSpacing,
		Op:          opIndex,
	})

	gs.Text.Matrix = coords.Translate(advance, 0).Multiply(gs.Text.Matrix)
	return runs
}

// splitCodes slices a show-string into character codes: two bytes per
// code for composite fonts, one otherwise.
func splitCodes(raw []byte, font *semantic.Font) []int {
	if font.Composite() {
		codes := make([]int, 0, len(raw)/2)
		for i := 0; i+1 < len(raw); i += 2 {
			codes = append(codes, int(raw[i])<<8|int(raw[i+1]))
		}
		return codes
	}
	codes := make([]int, len(raw))
	for i, b := range raw {
		codes[i] = int(b)
	}
	return codes
}

func (e *Extractor) decodeToUnicode(raw []byte, codes []int, font *semantic.Font, pageIndex int) string {
	if len(font.ToUnicodeCMap) > 0 {
		cmap, ok := e.cmaps[font]
		if !ok {
			cmap = parseToUnicodeCMap(font.ToUnicodeCMap)
			e.cmaps[font] = cmap
		}
		return cmap.decode(raw)
	}
	if font.Composite() {
		// No ToUnicode for a CID font: fall back to treating CIDs as
		// code points so downstream stages still see the characters.
		e.diag.Record(observability.EventWarning, pageIndex, "font %s has no ToUnicode map", font.BaseFont)
		out := make([]rune, len(codes))
		for i, c := range codes {
			out[i] = rune(c)
		}
		return string(out)
	}
	return latin1String(raw)
}

// advanceOf computes the total displacement of the codes along the
// baseline in text space units (PDF 9.4.4).
func (e *Extractor) advanceOf(codes []int, gs *contentstream.GraphicsState) float64 {
	font := gs.Text.Font
	var total float64
	for _, code := range codes {
		w, ok := font.WidthOf(code)
		if !ok {
			w = 500
		}
		adv := w/1000*gs.Text.FontSize + gs.Text.CharSpacing
		if code == 32 && !font.Composite() {
			adv += gs.Text.WordSpacing
		}
		total += adv
	}
	return total * gs.Text.HorizScale / 100
}

// fontExtents returns ascent and descent as fractions of the em.
func fontExtents(font *semantic.Font) (float64, float64) {
	ascent, descent := 0.8, -0.2
	if fd := font.Descriptor; fd != nil {
		if fd.Ascent != 0 {
			ascent = fd.Ascent / 1000
		}
		if fd.Descent != 0 {
			descent = fd.Descent / 1000
		}
	}
	return ascent, descent
}

func matrixOperand(ops []contentstream.Operand) (coords.Matrix, bool) {
	if len(ops) != 6 {
		return coords.Matrix{}, false
	}
	var m coords.Matrix
	for i, op := range ops {
		n, ok := op.(contentstream.NumberOperand)
		if !ok {
			return coords.Matrix{}, false
		}
		m[i] = n.Value
	}
	return m, true
}

func twoNumbers(ops []contentstream.Operand) (float64, float64, bool) {
	if len(ops) != 2 {
		return 0, 0, false
	}
	a, okA := ops[0].(contentstream.NumberOperand)
	b, okB := ops[1].(contentstream.NumberOperand)
	if !okA || !okB {
		return 0, 0, false
	}
	return a.Value, b.Value, true
}

func oneNumber(ops []contentstream.Operand) (float64, bool) {
	if len(ops) != 1 {
		return 0, false
	}
	n, ok := ops[0].(contentstream.NumberOperand)
	return n.Value, ok
}

func rgbFromOperands(ops []contentstream.Operand, prev contentstream.RGB) contentstream.RGB {
	if len(ops) != 3 {
		return prev
	}
	var c [3]float64
	for i, op := range ops {
		n, ok := op.(contentstream.NumberOperand)
		if !ok {
			return prev
		}
		c[i] = clamp01(n.Value)
	}
	return contentstream.RGB{R: c[0], G: c[1], B: c[2]}
}

func grayFromOperands(ops []contentstream.Operand, prev contentstream.RGB) contentstream.RGB {
	if len(ops) != 1 {
		return prev
	}
	n, ok := ops[0].(contentstream.NumberOperand)
	if !ok {
		return prev
	}
	v := clamp01(n.Value)
	return contentstream.RGB{R: v, G: v, B: v}
}

func cmykFromOperands(ops []contentstream.Operand, prev contentstream.RGB) contentstream.RGB {
	if len(ops) != 4 {
		return prev
	}
	var c [4]float64
	for i, op := range ops {
		n, ok := op.(contentstream.NumberOperand)
		if !ok {
			return prev
		}
		c[i] = clamp01(n.Value)
	}
	return contentstream.RGB{
		R: (1 - c[0]) * (1 - c[3]),
		G: (1 - c[1]) * (1 - c[3]),
		B: (1 - c[2]) * (1 - c[3]),
	}
}

// componentColor interprets sc/scn operands by arity. A trailing name
// means a pattern, which is reduced to black.
func componentColor(ops []contentstream.Operand, prev contentstream.RGB) (contentstream.RGB, bool) {
	if len(ops) == 0 {
		return prev, false
	}
	if _, isName := ops[len(ops)-1].(contentstream.NameOperand); isName {
		return contentstream.RGB{}, true
	}
	switch len(ops) {
	case 1:
		return grayFromOperands(ops, prev), false
	case 3:
		return rgbFromOperands(ops, prev), false
	case 4:
		return cmykFromOperands(ops, prev), false
	}
	return prev, false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
