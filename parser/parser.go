// Package parser turns a PDF byte stream into a raw object graph. It
// resolves the cross-reference information, loads every object the
// tables reference (including object-stream members), and captures the
// document trailer and metadata.
package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"unicode/utf16"

	"github.com/TimoteoRJanzen/Tradutor-PDF/ir/raw"
	"github.com/TimoteoRJanzen/Tradutor-PDF/recovery"
	"github.com/TimoteoRJanzen/Tradutor-PDF/xref"
)

// ErrInvalidPDF marks structural damage that prevents building an
// object graph at all. Callers test for it with errors.Is.
var ErrInvalidPDF = errors.New("invalid PDF")

// ErrEncrypted is returned for documents carrying an /Encrypt
// dictionary. Decryption is not supported.
var ErrEncrypted = errors.New("encrypted PDF not supported")

type Config struct {
	Recovery    recovery.Strategy
	MaxIndirect int
	Limits      Limits
	Cache       Cache
}

type DocumentParser struct {
	cfg Config
}

func NewDocumentParser(cfg Config) *DocumentParser {
	if cfg.Recovery == nil {
		cfg.Recovery = recovery.NewStrictStrategy()
	}
	return &DocumentParser{cfg: cfg}
}

// Parse reads the whole document reachable from its cross-reference
// tables. Objects that fail to load are skipped or fatal depending on
// the configured recovery strategy.
func (p *DocumentParser) Parse(ctx context.Context, r io.ReaderAt) (*raw.Document, error) {
	version, err := detectHeaderVersion(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}

	resolver := xref.NewResolver(xref.ResolverConfig{Recovery: p.cfg.Recovery})
	table, err := resolver.Resolve(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}

	doc := &raw.Document{
		Objects: make(map[raw.ObjectRef]raw.Object),
		Version: version,
	}
	if trailer := resolver.Trailer(); trailer != nil {
		doc.Trailer = trailer
		if _, ok := trailer.Get(raw.NameLiteral("Encrypt")); ok {
			doc.Encrypted = true
			return nil, ErrEncrypted
		}
	}

	builder := &ObjectLoaderBuilder{}
	loader, err := builder.
		WithReader(r).
		WithXRef(table).
		WithLimits(p.cfg.Limits).
		WithCache(p.cfg.Cache).
		WithRecovery(p.cfg.Recovery).
		Build()
	if err != nil {
		return nil, err
	}

	for _, num := range table.Objects() {
		if num == 0 {
			continue
		}
		gen := 0
		if _, g, ok := table.Lookup(num); ok {
			gen = g
		}
		ref := raw.ObjectRef{Num: num, Gen: gen}
		obj, err := loader.Load(ctx, ref)
		if err != nil {
			loc := recovery.Location{ObjectNum: num, ObjectGen: gen, Component: "Parser"}
			if action := p.cfg.Recovery.OnError(ctx, err, loc); action == recovery.ActionFail {
				return nil, fmt.Errorf("load object %d: %w", num, err)
			}
			continue
		}
		doc.Objects[ref] = obj
	}

	p.populateMetadata(doc)
	return doc, nil
}

func detectHeaderVersion(r io.ReaderAt) (string, error) {
	buf := make([]byte, 64)
	n, err := r.ReadAt(buf, 0)
	if n == 0 && err != nil {
		return "", err
	}
	buf = buf[:n]
	line := buf
	if idx := bytes.IndexAny(buf, "\r\n"); idx >= 0 {
		line = buf[:idx]
	}
	if !bytes.HasPrefix(line, []byte("%PDF-")) {
		return "", errors.New("missing %PDF header")
	}
	return string(bytes.TrimSpace(line[5:])), nil
}

func (p *DocumentParser) populateMetadata(doc *raw.Document) {
	if doc.Trailer == nil {
		return
	}
	infoObj, ok := doc.Trailer.Get(raw.NameLiteral("Info"))
	if !ok {
		return
	}
	info, ok := doc.Resolve(infoObj).(*raw.DictObj)
	if !ok {
		return
	}
	get := func(key string) string {
		v, ok := info.Get(raw.NameLiteral(key))
		if !ok {
			return ""
		}
		s, ok := doc.Resolve(v).(raw.StringObj)
		if !ok {
			return ""
		}
		return decodeTextString(s.Bytes)
	}
	doc.Metadata = raw.DocumentMetadata{
		Title:    get("Title"),
		Author:   get("Author"),
		Subject:  get("Subject"),
		Creator:  get("Creator"),
		Producer: get("Producer"),
	}
}

// decodeTextString interprets a PDF text string: UTF-16BE when it
// carries a BOM, PDFDocEncoding (treated as Latin-1) otherwise.
func decodeTextString(b []byte) string {
	if len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF {
		b = b[2:]
		u := make([]uint16, 0, len(b)/2)
		for i := 0; i+1 < len(b); i += 2 {
			u = append(u, uint16(b[i])<<8|uint16(b[i+1]))
		}
		return string(utf16.Decode(u))
	}
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}
