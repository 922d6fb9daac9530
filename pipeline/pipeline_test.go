package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"golang.org/x/text/language"

	"github.com/TimoteoRJanzen/Tradutor-PDF/extractor"
	"github.com/TimoteoRJanzen/Tradutor-PDF/fonts"
	"github.com/TimoteoRJanzen/Tradutor-PDF/ir/semantic"
	"github.com/TimoteoRJanzen/Tradutor-PDF/observability"
	"github.com/TimoteoRJanzen/Tradutor-PDF/parser"
	"github.com/TimoteoRJanzen/Tradutor-PDF/translate"
)

const dejaVuSans = "/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf"

func requireFallbackFont(t *testing.T) {
	t.Helper()
	if _, err := os.Stat(dejaVuSans); err != nil {
		t.Skip("DejaVuSans.ttf not found, skipping test")
	}
}

type fakeTranslator struct {
	fn func(texts []string) ([]string, error)
}

func (f *fakeTranslator) Translate(ctx context.Context, texts []string, source, target language.Tag) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.fn(texts)
}

func mapTranslator(m map[string]string) *fakeTranslator {
	return &fakeTranslator{fn: func(texts []string) ([]string, error) {
		out := make([]string, len(texts))
		for i, t := range texts {
			if tr, ok := m[t]; ok {
				out[i] = tr
			} else {
				out[i] = t
			}
		}
		return out, nil
	}}
}

// buildTextPDF synthesizes a single-page document with one Helvetica
// text run.
func buildTextPDF(t *testing.T, shown string) []byte {
	t.Helper()
	var buf bytes.Buffer
	offsets := make([]int, 6)
	addObj := func(num int, body string) {
		offsets[num] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", num, body)
	}

	buf.WriteString("%PDF-1.4\n")
	addObj(1, "<< /Type /Catalog /Pages 2 0 R >>")
	addObj(2, "<< /Type /Pages /Count 1 /Kids [3 0 R] >>")
	addObj(3, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] "+
		"/Resources << /Font << /F1 5 0 R >> >> /Contents 4 0 R >>")
	content := fmt.Sprintf("BT /F1 12 Tf 72 700 Td (%s) Tj ET", shown)
	addObj(4, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	addObj(5, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")

	xrefOffset := buf.Len()
	buf.WriteString("xref\n0 6\n0000000000 65535 f \n")
	for i := 1; i <= 5; i++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size 6 /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", xrefOffset)
	return buf.Bytes()
}

func testConfig(tr translate.Client) Config {
	return Config{
		Translator: tr,
		Resolver:   fonts.NewResolver(fonts.Config{FallbackPaths: []string{dejaVuSans}}),
		TargetLang: language.MustParse("pt-BR"),
	}
}

func extractAllText(t *testing.T, pdf []byte) string {
	t.Helper()
	ctx := context.Background()
	rawDoc, err := parser.NewDocumentParser(parser.Config{}).Parse(ctx, bytes.NewReader(pdf))
	if err != nil {
		t.Fatalf("parse output: %v", err)
	}
	doc, err := semantic.Build(ctx, rawDoc)
	if err != nil {
		t.Fatalf("build output: %v", err)
	}
	var sb strings.Builder
	for _, page := range doc.Pages {
		runs, err := extractor.New(nil).ExtractPage(page)
		if err != nil {
			t.Fatalf("extract output page %d: %v", page.Index, err)
		}
		for _, run := range runs {
			if run.Visible {
				sb.WriteString(run.Text)
				sb.WriteString(" ")
			}
		}
	}
	return strings.TrimSpace(sb.String())
}

func TestTranslateEndToEnd(t *testing.T) {
	requireFallbackFont(t)
	input := buildTextPDF(t, "Hello World")
	tr := mapTranslator(map[string]string{"Hello World": "Olá mundo"})

	out, report, err := Translate(context.Background(), input, testConfig(tr))
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if report.Pages != 1 || report.TranslatedRuns != 1 {
		t.Errorf("report = %+v", report)
	}
	got := extractAllText(t, out)
	if !strings.Contains(strings.ReplaceAll(got, " ", ""), "Olámundo") {
		t.Errorf("output text = %q, want Olá mundo", got)
	}
}

func TestTranslateRecordsFontTier(t *testing.T) {
	requireFallbackFont(t)
	input := buildTextPDF(t, "Hello")
	tr := mapTranslator(map[string]string{"Hello": "Oi"})

	_, report, err := Translate(context.Background(), input, testConfig(tr))
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	found := false
	for _, ev := range report.Events {
		if ev.Kind == observability.EventFontTier {
			found = true
		}
	}
	if !found {
		t.Errorf("no font tier event recorded: %v", report.Events)
	}
}

func TestTranslateAuthErrorIsFatal(t *testing.T) {
	requireFallbackFont(t)
	input := buildTextPDF(t, "Hello")
	tr := &fakeTranslator{fn: func([]string) ([]string, error) {
		return nil, &translate.AuthError{Status: 403, Message: "bad key"}
	}}

	out, _, err := Translate(context.Background(), input, testConfig(tr))
	var authErr *translate.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("err = %v, want AuthError", err)
	}
	if out != nil {
		t.Error("got partial output on fatal error")
	}
}

func TestTranslateTransientFailurePassesPageThrough(t *testing.T) {
	requireFallbackFont(t)
	input := buildTextPDF(t, "Hello")
	tr := &fakeTranslator{fn: func([]string) ([]string, error) {
		return nil, &translate.TransientError{Err: errors.New("service down")}
	}}

	out, report, err := Translate(context.Background(), input, testConfig(tr))
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if report.SkippedPages != 1 {
		t.Errorf("SkippedPages = %d, want 1", report.SkippedPages)
	}
	fallback := false
	for _, ev := range report.Events {
		if ev.Kind == observability.EventPageFallback {
			fallback = true
		}
	}
	if !fallback {
		t.Errorf("no page fallback event: %v", report.Events)
	}
	// The untouched page still reads as the original.
	if got := extractAllText(t, out); got != "Hello" {
		t.Errorf("passthrough text = %q, want Hello", got)
	}
}

func TestTranslateDeadlineNoPartialOutput(t *testing.T) {
	requireFallbackFont(t)
	input := buildTextPDF(t, "Hello")
	tr := &fakeTranslator{fn: func(texts []string) ([]string, error) {
		time.Sleep(50 * time.Millisecond)
		return texts, nil
	}}

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	out, _, err := Translate(ctx, input, testConfig(tr))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if out != nil {
		t.Error("got partial output after deadline")
	}
}

func TestTranslateInvalidInput(t *testing.T) {
	tr := mapTranslator(nil)
	_, _, err := Translate(context.Background(), []byte("this is not a pdf"), testConfig(tr))
	if !errors.Is(err, parser.ErrInvalidPDF) {
		t.Fatalf("err = %v, want ErrInvalidPDF", err)
	}
}

func TestTranslateRequiresConfig(t *testing.T) {
	if _, _, err := Translate(context.Background(), nil, Config{}); err == nil {
		t.Error("expected error without translator")
	}
	if _, _, err := Translate(context.Background(), nil, Config{Translator: mapTranslator(nil)}); err == nil {
		t.Error("expected error without target language")
	}
}
