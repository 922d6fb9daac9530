package extractor

import (
	"math"
	"testing"

	"github.com/TimoteoRJanzen/Tradutor-PDF/contentstream"
	"github.com/TimoteoRJanzen/Tradutor-PDF/ir/semantic"
	"github.com/TimoteoRJanzen/Tradutor-PDF/observability"
)

func testPage(content string, fonts map[string]*semantic.Font) *semantic.Page {
	return &semantic.Page{
		MediaBox:  semantic.Rectangle{LLX: 0, LLY: 0, URX: 612, URY: 792},
		Resources: &semantic.Resources{Fonts: fonts},
		Contents:  []semantic.ContentStream{{RawBytes: []byte(content)}},
	}
}

func helvetica() *semantic.Font {
	widths := make(map[int]float64)
	for c := 32; c < 127; c++ {
		widths[c] = 500
	}
	return &semantic.Font{
		Subtype:  "Type1",
		BaseFont: "Helvetica",
		Widths:   widths,
	}
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestExtractSimpleRun(t *testing.T) {
	page := testPage("BT /F1 12 Tf 72 700 Td (Hello) Tj ET", map[string]*semantic.Font{"F1": helvetica()})
	diag := observability.NewCollector()

	runs, err := New(diag).ExtractPage(page)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	run := runs[0]
	if run.Text != "Hello" {
		t.Errorf("expected text Hello, got %q", run.Text)
	}
	if run.FontName != "F1" || run.FontSize != 12 {
		t.Errorf("font state wrong: %s %v", run.FontName, run.FontSize)
	}
	if !approx(run.Origin.X, 72) || !approx(run.Origin.Y, 700) {
		t.Errorf("origin wrong: %+v", run.Origin)
	}
	// 5 glyphs at width 500/1000 em and 12pt.
	if !approx(run.BBox.Width(), 5*0.5*12) {
		t.Errorf("bbox width wrong: %v", run.BBox.Width())
	}
	if !run.Visible {
		t.Errorf("run should be visible")
	}
}

func TestExtractRunsInPaintingOrder(t *testing.T) {
	content := "BT /F1 10 Tf 10 100 Td (first) Tj 0 -20 Td (second) Tj ET"
	page := testPage(content, map[string]*semantic.Font{"F1": helvetica()})

	runs, err := New(observability.NewCollector()).ExtractPage(page)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].Text != "first" || runs[1].Text != "second" {
		t.Errorf("order wrong: %q %q", runs[0].Text, runs[1].Text)
	}
	if !approx(runs[1].Origin.Y, 80) {
		t.Errorf("second line should sit 20 below, got %v", runs[1].Origin.Y)
	}
}

func TestExtractInvisibleRenderMode(t *testing.T) {
	content := "BT /F1 10 Tf 3 Tr (ocr layer) Tj 0 Tr (painted) Tj ET"
	page := testPage(content, map[string]*semantic.Font{"F1": helvetica()})

	runs, err := New(observability.NewCollector()).ExtractPage(page)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].Visible {
		t.Errorf("render mode 3 text must be invisible")
	}
	if !runs[1].Visible {
		t.Errorf("render mode 0 text must be visible")
	}
}

func TestExtractClipRenderModes(t *testing.T) {
	content := "BT /F1 10 Tf 7 Tr (clip path) Tj 4 Tr (fill clip) Tj ET"
	page := testPage(content, map[string]*semantic.Font{"F1": helvetica()})

	runs, err := New(observability.NewCollector()).ExtractPage(page)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	for i, run := range runs {
		if run.Visible {
			t.Errorf("run %d: clip mode text must not be marked visible", i)
		}
	}
}

func TestExtractTJAdjustments(t *testing.T) {
	content := "BT /F1 10 Tf [(AB) -200 (CD)] TJ ET"
	page := testPage(content, map[string]*semantic.Font{"F1": helvetica()})

	runs, err := New(observability.NewCollector()).ExtractPage(page)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	// AB advances 2*5pt, then the -200 adjustment adds 2pt.
	if !approx(runs[1].Origin.X, 10+2) {
		t.Errorf("TJ adjustment wrong, second run at %v", runs[1].Origin.X)
	}
}

func TestExtractColorsReduceToRGB(t *testing.T) {
	content := "BT /F1 10 Tf 1 0 0 rg (red) Tj 0 0 0 1 k (black) Tj 0.5 g (gray) Tj ET"
	page := testPage(content, map[string]*semantic.Font{"F1": helvetica()})

	runs, err := New(observability.NewCollector()).ExtractPage(page)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runs))
	}
	if runs[0].Color != (contentstream.RGB{R: 1}) {
		t.Errorf("rg color wrong: %+v", runs[0].Color)
	}
	if runs[1].Color != (contentstream.RGB{}) {
		t.Errorf("cmyk black wrong: %+v", runs[1].Color)
	}
	if runs[2].Color != (contentstream.RGB{R: 0.5, G: 0.5, B: 0.5}) {
		t.Errorf("gray wrong: %+v", runs[2].Color)
	}
}

func TestExtractPatternFillWarns(t *testing.T) {
	content := "BT /F1 10 Tf /P0 scn (patterned) Tj ET"
	page := testPage(content, map[string]*semantic.Font{"F1": helvetica()})
	diag := observability.NewCollector()

	runs, err := New(diag).ExtractPage(page)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if runs[0].Color != (contentstream.RGB{}) {
		t.Errorf("pattern should reduce to black, got %+v", runs[0].Color)
	}
	if diag.Count(observability.EventWarning) == 0 {
		t.Errorf("expected a pattern warning")
	}
}

func TestExtractSkipsUnknownFont(t *testing.T) {
	content := "BT /F9 10 Tf (lost) Tj /F1 10 Tf (kept) Tj ET"
	page := testPage(content, map[string]*semantic.Font{"F1": helvetica()})
	diag := observability.NewCollector()

	runs, err := New(diag).ExtractPage(page)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if len(runs) != 1 || runs[0].Text != "kept" {
		t.Fatalf("expected only the run with a known font, got %+v", runs)
	}
	if diag.Count(observability.EventOperatorSkipped) == 0 {
		t.Errorf("expected skip diagnostics")
	}
}

func TestExtractToUnicodeDecoding(t *testing.T) {
	cmap := `/CIDInit /ProcSet findresource begin
begincmap
1 begincodespacerange
<0000> <FFFF>
endcodespacerange
2 beginbfchar
<0001> <0048>
<0002> <00E9>
endbfchar
endcmap`
	font := &semantic.Font{
		Subtype:       "Type0",
		BaseFont:      "Custom",
		ToUnicodeCMap: []byte(cmap),
		DescendantFont: &semantic.CIDFont{
			Subtype: "CIDFontType2",
			DW:      600,
		},
	}
	content := "BT /F1 10 Tf (\x00\x01\x00\x02) Tj ET"
	page := testPage(content, map[string]*semantic.Font{"F1": font})

	runs, err := New(observability.NewCollector()).ExtractPage(page)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if runs[0].Text != "Hé" {
		t.Errorf("expected decoded text, got %q", runs[0].Text)
	}
	// Two CIDs at default width 600.
	if !approx(runs[0].BBox.Width(), 2*0.6*10) {
		t.Errorf("composite advance wrong: %v", runs[0].BBox.Width())
	}
}

func TestExtractCarriesGraphicsStack(t *testing.T) {
	content := "q 2 0 0 2 0 0 cm BT /F1 10 Tf 10 10 Td (scaled) Tj ET Q BT /F1 10 Tf 10 10 Td (plain) Tj ET"
	page := testPage(content, map[string]*semantic.Font{"F1": helvetica()})

	runs, err := New(observability.NewCollector()).ExtractPage(page)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if !approx(runs[0].Origin.X, 20) || !approx(runs[0].Origin.Y, 20) {
		t.Errorf("CTM scale not applied: %+v", runs[0].Origin)
	}
	if !approx(runs[1].Origin.X, 10) || !approx(runs[1].Origin.Y, 10) {
		t.Errorf("CTM not restored after Q: %+v", runs[1].Origin)
	}
}

func TestExtractContentManifest(t *testing.T) {
	content := "q 0 0 10 10 re f /Im1 Do BT /F1 12 Tf (x) Tj ET 1 1 m 5 5 l S Q"
	page := testPage(content, map[string]*semantic.Font{"F1": helvetica()})

	runs, graphics, err := New(nil).ExtractContent(page)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	var ops []string
	for _, m := range graphics {
		ops = append(ops, m.Operator)
	}
	want := []string{"f", "Do", "S"}
	if len(ops) != len(want) {
		t.Fatalf("manifest = %v, want %v", ops, want)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Errorf("manifest[%d] = %q, want %q", i, ops[i], want[i])
		}
	}
	for i := 1; i < len(graphics); i++ {
		if graphics[i].Op <= graphics[i-1].Op {
			t.Errorf("manifest not in stream order: %+v", graphics)
		}
	}
}
