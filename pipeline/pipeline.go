// Package pipeline wires the whole translation flow: parse, extract,
// translate, strip, re-fit and rewrite. Pages run in parallel; shared
// font resolution is coalesced; the output is produced only when every
// page either succeeded or was deliberately passed through.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"

	"github.com/TimoteoRJanzen/Tradutor-PDF/coords"
	"github.com/TimoteoRJanzen/Tradutor-PDF/extractor"
	"github.com/TimoteoRJanzen/Tradutor-PDF/fonts"
	"github.com/TimoteoRJanzen/Tradutor-PDF/ir/semantic"
	"github.com/TimoteoRJanzen/Tradutor-PDF/layout"
	"github.com/TimoteoRJanzen/Tradutor-PDF/observability"
	"github.com/TimoteoRJanzen/Tradutor-PDF/parser"
	"github.com/TimoteoRJanzen/Tradutor-PDF/recovery"
	"github.com/TimoteoRJanzen/Tradutor-PDF/stripper"
	"github.com/TimoteoRJanzen/Tradutor-PDF/translate"
	"github.com/TimoteoRJanzen/Tradutor-PDF/writer"
)

// Config configures one translation run. Translator and TargetLang
// are required; everything else has working defaults.
type Config struct {
	Translator translate.Client
	Resolver   *fonts.Resolver
	SourceLang language.Tag // Und lets the service detect
	TargetLang language.Tag
	Workers    int // page parallelism, default GOMAXPROCS
	Layout     layout.Config
	Logger     observability.Logger
}

// Report aggregates what happened during a run.
type Report struct {
	Pages          int
	TranslatedRuns int
	SkippedPages   int
	Events         []observability.Event
}

// Translate produces a translated PDF from input. On fatal errors
// (invalid input, rejected credentials, unusable fonts, deadline) no
// output is returned.
func Translate(ctx context.Context, input []byte, cfg Config) ([]byte, *Report, error) {
	if cfg.Translator == nil {
		return nil, nil, errors.New("pipeline: Translator is required")
	}
	if cfg.TargetLang == language.Und {
		return nil, nil, errors.New("pipeline: TargetLang is required")
	}
	if cfg.Resolver == nil {
		cfg.Resolver = fonts.NewResolver(fonts.Config{})
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger{}
	}

	diag := observability.NewCollector()

	rawDoc, err := parser.NewDocumentParser(parser.Config{
		Recovery: recovery.NewLenientStrategy(),
	}).Parse(ctx, bytes.NewReader(input))
	if err != nil {
		return nil, nil, err
	}
	doc, err := semantic.Build(ctx, rawDoc)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", parser.ErrInvalidPDF, err)
	}

	cfg.Logger.Info("translating document",
		observability.Int("pages", len(doc.Pages)),
		observability.String("target", cfg.TargetLang.String()))

	reg := newFontRegistry()
	results := make([]*pageResult, len(doc.Pages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for _, page := range doc.Pages {
		page := page
		g.Go(func() error {
			res, err := translatePage(gctx, page, cfg, reg, diag)
			if err != nil {
				return err
			}
			results[page.Index] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	w := writer.New(rawDoc)
	fontRefs, err := reg.install(w)
	if err != nil {
		return nil, nil, err
	}

	report := &Report{Pages: len(doc.Pages)}
	for _, page := range doc.Pages {
		res := results[page.Index]
		if res == nil || res.passthrough {
			report.SkippedPages++
			continue
		}
		if err := w.SetPageContents(page, res.content); err != nil {
			return nil, nil, err
		}
		for _, name := range res.fontNames {
			if err := w.AddPageFont(page, name, fontRefs[name]); err != nil {
				return nil, nil, err
			}
		}
		report.TranslatedRuns += res.runs
	}

	out, err := w.Bytes()
	if err != nil {
		return nil, nil, err
	}
	report.Events = diag.Events()
	return out, report, nil
}

type pageResult struct {
	passthrough bool
	content     []byte
	fontNames   []string
	runs        int
}

// translatePage runs the per-page stages. A page that cannot be
// extracted or stripped is passed through unmodified with a recorded
// fallback; only auth, font-unavailable and context errors abort the
// run.
func translatePage(ctx context.Context, page *semantic.Page, cfg Config, reg *fontRegistry, diag *observability.Collector) (*pageResult, error) {
	runs, err := extractor.New(diag).ExtractPage(page)
	if err != nil {
		diag.Record(observability.EventPageFallback, page.Index, "extract failed: %v", err)
		return &pageResult{passthrough: true}, nil
	}

	visible := make([]extractor.TextRun, 0, len(runs))
	for _, run := range runs {
		if run.Visible && run.Text != "" {
			visible = append(visible, run)
		}
	}
	if len(visible) == 0 {
		return &pageResult{passthrough: true}, nil
	}

	texts := make([]string, len(visible))
	for i, run := range visible {
		texts[i] = run.Text
	}
	translated, err := cfg.Translator.Translate(ctx, texts, cfg.SourceLang, cfg.TargetLang)
	if err != nil {
		var authErr *translate.AuthError
		if errors.As(err, &authErr) || ctx.Err() != nil {
			return nil, err
		}
		diag.Record(observability.EventPageFallback, page.Index, "translate failed: %v", err)
		return &pageResult{passthrough: true}, nil
	}
	if len(translated) != len(texts) {
		diag.Record(observability.EventPageFallback, page.Index, "translation count mismatch: %d != %d", len(translated), len(texts))
		return &pageResult{passthrough: true}, nil
	}

	placed := make([]layout.PlacedRun, 0, len(visible))
	usedFonts := make(map[string]bool)
	for i, run := range visible {
		text := translated[i]
		if text == "" {
			continue
		}
		res, err := cfg.Resolver.Resolve(ctx, run.Font, text)
		if err != nil {
			// Font failures are fatal only when even the fallback
			// could not be loaded.
			if errors.Is(err, fonts.ErrFontUnavailable) || ctx.Err() != nil {
				return nil, err
			}
			diag.Record(observability.EventWarning, page.Index, "resolve font %s: %v", run.FontName, err)
			continue
		}
		diag.Record(observability.EventFontTier, page.Index, "%s resolved via %s", fonts.NormalizeName(fontBaseName(run)), res.Tier)
		for _, r := range res.Missing {
			diag.Record(observability.EventGlyphSubstituted, page.Index, "no glyph for %q", r)
		}

		fit := layout.FitText(res.Face, text, run.BBox, run.FontSize, cfg.Layout)
		if fit.Overflow > 0 {
			diag.Record(observability.EventFitOverflow, page.Index, "text overflows box by %.1fpt", fit.Overflow)
		}

		name, ef := reg.lookup(res.Face)
		usedFonts[name] = true
		placed = append(placed, layout.PlacedRun{
			Fit:     fit,
			Origin:  runOrigin(run),
			Color:   run.Color,
			FontRes: name,
			Font:    ef,
		})
	}

	stripped, err := stripper.Strip(joinContents(page))
	if err != nil {
		diag.Record(observability.EventPageFallback, page.Index, "strip failed: %v", err)
		return &pageResult{passthrough: true}, nil
	}

	var content bytes.Buffer
	content.Write(stripped.Content)
	content.WriteByte('\n')
	// Render encodes glyphs through the shared embedded fonts.
	reg.mu.Lock()
	content.Write(layout.Render(placed, cfg.Layout))
	reg.mu.Unlock()

	names := make([]string, 0, len(usedFonts))
	for name := range usedFonts {
		names = append(names, name)
	}
	sort.Strings(names)

	return &pageResult{
		content:   content.Bytes(),
		fontNames: names,
		runs:      len(placed),
	}, nil
}

// runOrigin keeps the original baseline for the first line; wrapped
// lines step down from there during rendering.
func runOrigin(run extractor.TextRun) coords.Point {
	return coords.Point{X: run.Origin.X, Y: run.Origin.Y}
}

func fontBaseName(run extractor.TextRun) string {
	if run.Font != nil && run.Font.BaseFont != "" {
		return run.Font.BaseFont
	}
	return run.FontName
}

func joinContents(page *semantic.Page) []byte {
	var buf bytes.Buffer
	for i, cs := range page.Contents {
		if i > 0 {
			buf.WriteByte('\n')
		}
		buf.Write(cs.RawBytes)
	}
	return buf.Bytes()
}
