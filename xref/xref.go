// Package xref locates and parses cross-reference information: classic
// xref tables, cross-reference streams, hybrid files carrying both, and
// a full-file repair scan for documents whose tables are damaged.
package xref

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/TimoteoRJanzen/Tradutor-PDF/filters"
	"github.com/TimoteoRJanzen/Tradutor-PDF/ir/raw"
	"github.com/TimoteoRJanzen/Tradutor-PDF/recovery"
	"github.com/TimoteoRJanzen/Tradutor-PDF/scanner"
)

// Table holds resolved object locations.
type Table interface {
	// Lookup returns the byte offset of an object stored directly in the
	// file.
	Lookup(objNum int) (offset int64, gen int, found bool)
	// ObjStream returns the object stream and index for an object stored
	// compressed (xref stream type 2 entries).
	ObjStream(objNum int) (streamNum int, idx int, found bool)
	Objects() []int
	Type() string
}

// Resolver locates and parses xref information in a PDF.
type Resolver interface {
	Resolve(ctx context.Context, r io.ReaderAt) (Table, error)
	Linearized() bool
	Trailer() raw.Dictionary
}

type ResolverConfig struct {
	MaxXRefDepth int
	Recovery     recovery.Strategy
}

func NewResolver(cfg ResolverConfig) Resolver {
	if cfg.MaxXRefDepth <= 0 {
		cfg.MaxXRefDepth = 32
	}
	return &resolver{cfg: cfg, pipeline: filters.NewStandardPipeline(filters.Limits{})}
}

type entryKind int

const (
	entryInFile entryKind = iota
	entryInStream
)

type entry struct {
	kind      entryKind
	offset    int64
	gen       int
	streamNum int
	streamIdx int
}

type table struct {
	entries map[int]entry
	trailer *raw.DictObj
	typ     string
}

func (t *table) Lookup(objNum int) (int64, int, bool) {
	e, ok := t.entries[objNum]
	if !ok || e.kind != entryInFile {
		return 0, 0, false
	}
	return e.offset, e.gen, true
}

func (t *table) ObjStream(objNum int) (int, int, bool) {
	e, ok := t.entries[objNum]
	if !ok || e.kind != entryInStream {
		return 0, 0, false
	}
	return e.streamNum, e.streamIdx, true
}

func (t *table) Objects() []int {
	out := make([]int, 0, len(t.entries))
	for k := range t.entries {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

func (t *table) Type() string { return t.typ }

type resolver struct {
	cfg        ResolverConfig
	pipeline   *filters.Pipeline
	linearized bool
	trailer    *raw.DictObj
}

func (rv *resolver) Linearized() bool { return rv.linearized }

func (rv *resolver) Trailer() raw.Dictionary {
	if rv.trailer == nil {
		return nil
	}
	return rv.trailer
}

func (rv *resolver) Resolve(ctx context.Context, r io.ReaderAt) (Table, error) {
	data := readAll(r)
	rv.linearized = detectLinearized(data)

	start, err := findStartXref(data)
	if err != nil {
		return rv.maybeRepair(ctx, r, data, err)
	}

	entries := make(map[int]entry)
	var primaryTrailer *raw.DictObj
	var primaryType string

	visited := make(map[int64]bool)
	queue := []int64{start}
	for depth := 0; len(queue) > 0; depth++ {
		if depth >= rv.cfg.MaxXRefDepth {
			return nil, errors.New("xref chain too deep")
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		offset := queue[0]
		queue = queue[1:]
		if visited[offset] {
			continue
		}
		visited[offset] = true
		if offset <= 0 || offset >= int64(len(data)) {
			if primaryTrailer != nil {
				continue // older section with a bad offset
			}
			return rv.maybeRepair(ctx, r, data, fmt.Errorf("xref offset out of range: %d", offset))
		}

		sec, err := rv.parseSection(ctx, r, data, offset)
		if err != nil {
			if primaryTrailer != nil {
				continue
			}
			return rv.maybeRepair(ctx, r, data, err)
		}
		// newer sections win on conflicts
		for num, e := range sec.entries {
			if _, exists := entries[num]; !exists {
				entries[num] = e
			}
		}
		if primaryTrailer == nil {
			primaryTrailer = sec.trailer
			primaryType = sec.typ
		} else if sec.trailer != nil {
			// inherit keys the newest trailer lacks (Root, Info, ID)
			for k, v := range sec.trailer.KV {
				if _, ok := primaryTrailer.KV[k]; !ok && k != "Prev" && k != "XRefStm" {
					primaryTrailer.Set(raw.NameLiteral(k), v)
				}
			}
		}
		queue = append(queue, sec.next...)
	}

	if primaryTrailer == nil {
		return rv.maybeRepair(ctx, r, data, errors.New("no xref trailer found"))
	}
	if err := validateSize(primaryTrailer, entries); err != nil {
		return nil, err
	}
	rv.trailer = primaryTrailer
	return &table{entries: entries, trailer: primaryTrailer, typ: primaryType}, nil
}

// maybeRepair consults the recovery strategy before falling back to a
// full-file scan.
func (rv *resolver) maybeRepair(ctx context.Context, r io.ReaderAt, data []byte, cause error) (Table, error) {
	if rv.cfg.Recovery == nil {
		return nil, cause
	}
	action := rv.cfg.Recovery.OnError(ctx, cause, recovery.Location{Component: "xref"})
	if action != recovery.ActionFix && action != recovery.ActionSkip {
		return nil, cause
	}
	t, err := repair(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("%w (repair: %v)", cause, err)
	}
	rv.trailer = t.trailer
	return t, nil
}

type section struct {
	entries map[int]entry
	trailer *raw.DictObj
	typ     string
	next    []int64
}

func (rv *resolver) parseSection(ctx context.Context, r io.ReaderAt, data []byte, offset int64) (*section, error) {
	rest := data[offset:]
	trimmed := bytes.TrimLeft(rest, " \t\r\n")
	if bytes.HasPrefix(trimmed, []byte("xref")) {
		return parseClassicSection(rest)
	}
	return rv.parseStreamSection(ctx, r, offset)
}

func parseClassicSection(tableData []byte) (*section, error) {
	sc := bufio.NewScanner(bytes.NewReader(tableData))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	if !sc.Scan() || strings.TrimSpace(sc.Text()) != "xref" {
		return nil, errors.New("xref keyword not found at offset")
	}

	entries := make(map[int]entry)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "trailer") {
			break
		}
		parts := strings.Fields(line)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid xref subsection header: %q", line)
		}
		startObj, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, fmt.Errorf("parse xref start: %w", err)
		}
		count, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("parse xref count: %w", err)
		}

		for i := 0; i < count; i++ {
			if !sc.Scan() {
				return nil, errors.New("unexpected end of xref section")
			}
			entryLine := strings.TrimSpace(sc.Text())
			fields := strings.Fields(entryLine)
			if len(fields) < 3 {
				return nil, fmt.Errorf("invalid xref entry: %q", entryLine)
			}
			off, err := strconv.ParseInt(fields[0], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("parse xref offset: %w", err)
			}
			gen, err := strconv.Atoi(fields[1])
			if err != nil {
				return nil, fmt.Errorf("parse xref gen: %w", err)
			}
			if len(fields[2]) == 0 || fields[2][0] != 'n' {
				continue // free entry
			}
			entries[startObj+i] = entry{kind: entryInFile, offset: off, gen: gen}
		}
	}

	sec := &section{entries: entries, typ: "table"}
	if ti := bytes.Index(tableData, []byte("trailer")); ti >= 0 {
		trailer, err := parseTrailerDict(tableData[ti+len("trailer"):])
		if err != nil {
			return nil, fmt.Errorf("parse trailer: %w", err)
		}
		sec.trailer = trailer
		sec.next = trailerNext(trailer)
	}
	return sec, nil
}

func parseTrailerDict(data []byte) (*raw.DictObj, error) {
	tr := newTokenReader(scanner.New(bytes.NewReader(data), scanner.Config{}))
	obj, err := parseObject(tr)
	if err != nil {
		return nil, err
	}
	dict, ok := obj.(*raw.DictObj)
	if !ok {
		return nil, fmt.Errorf("trailer is %T, not a dictionary", obj)
	}
	return dict, nil
}

// trailerNext collects the offsets of older sections referenced by a
// trailer: /XRefStm first so hybrid-file entries beat the /Prev chain.
func trailerNext(trailer *raw.DictObj) []int64 {
	var next []int64
	if obj, ok := trailer.Get(raw.NameLiteral("XRefStm")); ok {
		if num, ok := obj.(raw.Number); ok {
			next = append(next, num.Int())
		}
	}
	if obj, ok := trailer.Get(raw.NameLiteral("Prev")); ok {
		if num, ok := obj.(raw.Number); ok {
			next = append(next, num.Int())
		}
	}
	return next
}

// parseStreamSection reads a cross-reference stream object (PDF 7.5.8).
func (rv *resolver) parseStreamSection(ctx context.Context, r io.ReaderAt, offset int64) (*section, error) {
	s := scanner.New(r, scanner.Config{})
	if err := s.SeekTo(offset); err != nil {
		return nil, err
	}
	tr := newTokenReader(s)

	// "num gen obj" header
	for i := 0; i < 3; i++ {
		if _, err := tr.next(); err != nil {
			return nil, fmt.Errorf("xref stream header: %w", err)
		}
	}
	obj, err := parseObject(tr)
	if err != nil {
		return nil, fmt.Errorf("xref stream dict: %w", err)
	}
	dict, ok := obj.(*raw.DictObj)
	if !ok {
		return nil, fmt.Errorf("xref stream object is %T", obj)
	}
	if n, ok := dict.Get(raw.NameLiteral("Length")); ok {
		if num, ok := n.(raw.Number); ok {
			s.SetNextStreamLength(num.Int())
		}
	}
	streamTok, err := tr.next()
	if err != nil || streamTok.Type != scanner.TokenStream {
		return nil, errors.New("xref stream payload missing")
	}

	names, parms := filters.ExtractFilters(dict)
	payload, err := rv.pipeline.Decode(ctx, streamTok.Bytes, names, parms)
	if err != nil {
		return nil, fmt.Errorf("decode xref stream: %w", err)
	}

	widths, err := intArray(dict, "W")
	if err != nil || len(widths) != 3 {
		return nil, errors.New("xref stream /W invalid")
	}
	size := int64(0)
	if n, ok := dict.Get(raw.NameLiteral("Size")); ok {
		if num, ok := n.(raw.Number); ok {
			size = num.Int()
		}
	}
	index, err := intArray(dict, "Index")
	if err != nil || len(index) == 0 {
		index = []int64{0, size}
	}
	if len(index)%2 != 0 {
		return nil, errors.New("xref stream /Index invalid")
	}

	rowLen := int(widths[0] + widths[1] + widths[2])
	if rowLen <= 0 {
		return nil, errors.New("xref stream /W empty")
	}
	entries := make(map[int]entry)
	pos := 0
	for i := 0; i+1 < len(index); i += 2 {
		first, count := int(index[i]), int(index[i+1])
		for j := 0; j < count; j++ {
			if pos+rowLen > len(payload) {
				return nil, errors.New("xref stream data truncated")
			}
			row := payload[pos : pos+rowLen]
			pos += rowLen
			typ := int64(1) // omitted type field defaults to 1
			if widths[0] > 0 {
				typ = beInt(row[:widths[0]])
			}
			f2 := beInt(row[widths[0] : widths[0]+widths[1]])
			f3 := beInt(row[widths[0]+widths[1]:])
			num := first + j
			switch typ {
			case 1:
				entries[num] = entry{kind: entryInFile, offset: f2, gen: int(f3)}
			case 2:
				entries[num] = entry{kind: entryInStream, streamNum: int(f2), streamIdx: int(f3)}
			}
		}
	}

	return &section{entries: entries, trailer: dict, typ: "xref-stream", next: trailerNext(dict)}, nil
}

func intArray(dict *raw.DictObj, key string) ([]int64, error) {
	obj, ok := dict.Get(raw.NameLiteral(key))
	if !ok {
		return nil, fmt.Errorf("missing %s", key)
	}
	arr, ok := obj.(*raw.ArrayObj)
	if !ok {
		return nil, fmt.Errorf("%s is not an array", key)
	}
	out := make([]int64, 0, arr.Len())
	for _, item := range arr.Items {
		num, ok := item.(raw.Number)
		if !ok {
			return nil, fmt.Errorf("%s has non-numeric element", key)
		}
		out = append(out, num.Int())
	}
	return out, nil
}

func beInt(b []byte) int64 {
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}

func validateSize(trailer *raw.DictObj, entries map[int]entry) error {
	obj, ok := trailer.Get(raw.NameLiteral("Size"))
	if !ok {
		return nil
	}
	num, ok := obj.(raw.Number)
	if !ok {
		return nil
	}
	size := num.Int()
	for objNum := range entries {
		if int64(objNum) >= size {
			return fmt.Errorf("xref entry %d exceeds trailer /Size %d", objNum, size)
		}
	}
	return nil
}

func findStartXref(data []byte) (int64, error) {
	startxref := bytes.LastIndex(data, []byte("startxref"))
	if startxref < 0 {
		return 0, errors.New("startxref not found")
	}
	rest := data[startxref+len("startxref"):]
	lines := bufio.NewScanner(bytes.NewReader(rest))
	for lines.Scan() {
		text := strings.TrimSpace(lines.Text())
		if text == "" {
			continue
		}
		val, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse startxref: %w", err)
		}
		return val, nil
	}
	return 0, errors.New("startxref value missing")
}

func detectLinearized(data []byte) bool {
	limit := len(data)
	if limit > 2048 {
		limit = 2048
	}
	return bytes.Contains(data[:limit], []byte("/Linearized"))
}

func readAll(r io.ReaderAt) []byte {
	var buf bytes.Buffer
	const chunk = int64(32 * 1024)
	for off := int64(0); ; off += chunk {
		tmp := make([]byte, chunk)
		n, err := r.ReadAt(tmp, off)
		if n > 0 {
			buf.Write(tmp[:n])
		}
		if err != nil || int64(n) < chunk {
			break
		}
	}
	return buf.Bytes()
}
