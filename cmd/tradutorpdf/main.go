package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"golang.org/x/text/language"

	"github.com/TimoteoRJanzen/Tradutor-PDF/fonts"
	"github.com/TimoteoRJanzen/Tradutor-PDF/pipeline"
	"github.com/TimoteoRJanzen/Tradutor-PDF/translate"
)

type options struct {
	input      string
	output     string
	targetLang string
	sourceLang string
	fontDir    string
	timeout    time.Duration
	verbose    bool
}

func main() {
	opts, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "tradutorpdf: %v\n", err)
		os.Exit(2)
	}
	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "tradutorpdf: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var opts options
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: tradutorpdf --input in.pdf --output out.pdf [flags]\n")
		flag.PrintDefaults()
	}
	flag.StringVar(&opts.input, "input", "", "Input PDF path")
	flag.StringVar(&opts.output, "output", "", "Output PDF path")
	flag.StringVar(&opts.targetLang, "target_lang", "PT-BR", "Target language code")
	flag.StringVar(&opts.sourceLang, "source_lang", "", "Source language code (empty = detect)")
	flag.StringVar(&opts.fontDir, "font_dir", "", "Directory of local fonts tried before the remote catalog")
	flag.DurationVar(&opts.timeout, "timeout", 10*time.Minute, "Deadline for the whole document")
	flag.BoolVar(&opts.verbose, "v", false, "Print per-page diagnostics")
	flag.Parse()

	if opts.input == "" || opts.output == "" {
		return opts, fmt.Errorf("--input and --output are required")
	}
	return opts, nil
}

func run(opts options) error {
	apiKey := os.Getenv("DEEPL_API_KEY")
	if apiKey == "" {
		return fmt.Errorf("DEEPL_API_KEY is not set")
	}

	target, err := translate.ParseLang(opts.targetLang)
	if err != nil {
		return err
	}
	source := language.Und
	if opts.sourceLang != "" {
		if source, err = translate.ParseLang(opts.sourceLang); err != nil {
			return err
		}
	}

	input, err := os.ReadFile(opts.input)
	if err != nil {
		return err
	}

	fontCfg := fonts.Config{}
	if opts.fontDir != "" {
		fontCfg.Local = fonts.NewLocalDir(opts.fontDir)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	out, report, err := pipeline.Translate(ctx, input, pipeline.Config{
		Translator: translate.New(translate.Config{APIKey: apiKey}),
		Resolver:   fonts.NewResolver(fontCfg),
		SourceLang: source,
		TargetLang: target,
	})
	if err != nil {
		return err
	}

	if err := os.WriteFile(opts.output, out, 0o644); err != nil {
		return err
	}

	fmt.Printf("translated %d runs across %d pages (%d passed through)\n",
		report.TranslatedRuns, report.Pages, report.SkippedPages)
	if opts.verbose {
		for _, ev := range report.Events {
			fmt.Println("  " + ev.String())
		}
	}
	return nil
}
