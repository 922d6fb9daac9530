package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/TimoteoRJanzen/Tradutor-PDF/filters"
	"github.com/TimoteoRJanzen/Tradutor-PDF/ir/raw"
	"github.com/TimoteoRJanzen/Tradutor-PDF/recovery"
	"github.com/TimoteoRJanzen/Tradutor-PDF/scanner"
	"github.com/TimoteoRJanzen/Tradutor-PDF/xref"
)

// Limits bounds resource usage during object loading.
type Limits struct {
	MaxIndirectDepth    int
	MaxStringLength     int64
	MaxStreamLength     int64
	MaxDecompressedSize int64
	MaxDecodeTime       time.Duration
}

func DefaultLimits() Limits {
	return Limits{
		MaxIndirectDepth:    32,
		MaxStringLength:     16 << 20,
		MaxStreamLength:     256 << 20,
		MaxDecompressedSize: 512 << 20,
	}
}

type Cache interface {
	Get(ref raw.ObjectRef) (raw.Object, bool)
	Put(ref raw.ObjectRef, obj raw.Object)
}

type ObjectLoader interface {
	Load(ctx context.Context, ref raw.ObjectRef) (raw.Object, error)
	LoadIndirect(ctx context.Context, ref raw.ObjectRef, depth int) (raw.Object, error)
}

type ObjectLoaderBuilder struct {
	reader    io.ReaderAt
	xrefTable xref.Table
	maxDepth  int
	limits    Limits
	cache     Cache
	recovery  recovery.Strategy
}

func (b *ObjectLoaderBuilder) WithReader(r io.ReaderAt) *ObjectLoaderBuilder {
	b.reader = r
	return b
}
func (b *ObjectLoaderBuilder) WithXRef(table xref.Table) *ObjectLoaderBuilder {
	b.xrefTable = table
	return b
}
func (b *ObjectLoaderBuilder) WithLimits(l Limits) *ObjectLoaderBuilder { b.limits = l; return b }
func (b *ObjectLoaderBuilder) WithCache(c Cache) *ObjectLoaderBuilder  { b.cache = c; return b }
func (b *ObjectLoaderBuilder) WithRecovery(s recovery.Strategy) *ObjectLoaderBuilder {
	b.recovery = s
	return b
}

func (b *ObjectLoaderBuilder) Build() (ObjectLoader, error) {
	if b.reader == nil || b.xrefTable == nil {
		return nil, errors.New("reader and xrefTable required")
	}
	maxDepth := b.maxDepth
	if maxDepth == 0 {
		maxDepth = b.limits.MaxIndirectDepth
		if maxDepth == 0 {
			maxDepth = DefaultLimits().MaxIndirectDepth
		}
	}
	return &objectLoader{
		reader:    b.reader,
		xrefTable: b.xrefTable,
		maxDepth:  maxDepth,
		limits:    b.limits,
		cache:     b.cache,
		recovery:  b.recovery,
	}, nil
}

type objectLoader struct {
	reader    io.ReaderAt
	xrefTable xref.Table
	maxDepth  int
	limits    Limits
	cache     Cache
	recovery  recovery.Strategy
	mu        sync.Mutex
	scanner   scanner.Scanner
	objstm    map[int]map[int]raw.Object
}

func (o *objectLoader) Load(ctx context.Context, ref raw.ObjectRef) (raw.Object, error) {
	if o.cache != nil {
		if obj, ok := o.cache.Get(ref); ok {
			return obj, nil
		}
	}

	obj, err := o.loadOnce(ctx, ref)
	if err != nil {
		return nil, err
	}

	if o.cache != nil {
		o.cache.Put(ref, obj)
	}
	return obj, nil
}

func (o *objectLoader) LoadIndirect(ctx context.Context, ref raw.ObjectRef, depth int) (raw.Object, error) {
	if depth > o.maxDepth {
		return nil, errors.New("max depth exceeded")
	}
	return o.Load(ctx, ref)
}

func (o *objectLoader) loadOnce(ctx context.Context, ref raw.ObjectRef) (raw.Object, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	offset, gen, found := o.xrefTable.Lookup(ref.Num)
	if !found {
		if osNum, idx, ok := o.xrefTable.ObjStream(ref.Num); ok {
			return o.loadFromObjectStream(ctx, ref, osNum, idx)
		}
		return nil, fmt.Errorf("object %d not found in xref", ref.Num)
	}
	return o.loadAtOffset(ref.Num, offset, gen)
}

// loadAtOffset assumes caller holds the loader mutex.
func (o *objectLoader) loadAtOffset(objNum int, offset int64, gen int) (raw.Object, error) {
	if o.scanner == nil {
		o.scanner = scanner.New(o.reader, o.scannerConfig())
	}
	return o.scanObject(o.scanner, objNum, offset, gen)
}

func (o *objectLoader) scannerConfig() scanner.Config {
	return scanner.Config{
		Recovery:        o.recovery,
		MaxStringLength: o.limits.MaxStringLength,
		MaxStreamLength: o.limits.MaxStreamLength,
	}
}

func (o *objectLoader) scanObject(s scanner.Scanner, objNum int, offset int64, gen int) (raw.Object, error) {
	if err := s.SeekTo(offset); err != nil {
		return nil, err
	}
	s.SetRecoveryLocation(recovery.Location{ByteOffset: offset, ObjectNum: objNum, ObjectGen: gen, Component: "Parser"})
	tr := newTokenReader(s)

	// Expect "<objNum> <gen> obj"
	tokNum, err := tr.next()
	if err != nil {
		return nil, err
	}
	if tokNum.Type != scanner.TokenNumber || !tokNum.IsInt || int(tokNum.Int) != objNum {
		return nil, fmt.Errorf("object %d: header number mismatch", objNum)
	}
	tokGen, err := tr.next()
	if err != nil {
		return nil, err
	}
	if tokGen.Type != scanner.TokenNumber || !tokGen.IsInt || int(tokGen.Int) != gen {
		return nil, fmt.Errorf("object %d: header generation mismatch", objNum)
	}
	tokObj, err := tr.next()
	if err != nil {
		return nil, err
	}
	if tokObj.Type != scanner.TokenKeyword || tokObj.Str != "obj" {
		return nil, fmt.Errorf("object %d: expected obj keyword", objNum)
	}

	obj, err := parseLoaderObject(tr, o.recovery, objNum, gen)
	if err != nil {
		return nil, err
	}
	if dict, ok := obj.(*raw.DictObj); ok {
		hint, err := o.resolveStreamLength(dict)
		if err != nil {
			return nil, err
		}
		if hint > 0 {
			tr.setStreamLengthHint(hint)
		} else {
			tr.clearStreamLengthHint()
		}
		if streamTok, err := tr.next(); err == nil && streamTok.Type == scanner.TokenStream {
			obj = raw.NewStream(dict, streamTok.Bytes)
		} else if err == nil {
			tr.unread(streamTok)
		}
	}
	return obj, nil
}

func (o *objectLoader) loadFromObjectStream(ctx context.Context, ref raw.ObjectRef, objStreamNum int, idx int) (raw.Object, error) {
	if o.objstm == nil {
		o.objstm = make(map[int]map[int]raw.Object)
	}
	if objs, ok := o.objstm[objStreamNum]; ok {
		if obj, ok2 := objs[ref.Num]; ok2 {
			return obj, nil
		}
	}
	offset, gen, ok := o.xrefTable.Lookup(objStreamNum)
	if !ok {
		return nil, fmt.Errorf("object stream %d missing from xref", objStreamNum)
	}
	streamObj, err := o.loadAtOffset(objStreamNum, offset, gen)
	if err != nil {
		return nil, err
	}
	st, ok := streamObj.(*raw.StreamObj)
	if !ok {
		return nil, fmt.Errorf("object %d is not an object stream", objStreamNum)
	}
	nObj := int(getIntFromDict(st.Dict, "N"))
	first := int(getIntFromDict(st.Dict, "First"))
	data := st.RawData()
	filterNames, filterParams := filters.ExtractFilters(st.Dict)
	if len(filterNames) > 0 {
		p := filters.NewStandardPipeline(filters.Limits{
			MaxDecompressedSize: o.limits.MaxDecompressedSize,
			MaxDecodeTime:       o.limits.MaxDecodeTime,
		})
		decoded, err := p.Decode(ctx, data, filterNames, filterParams)
		if err != nil {
			return nil, err
		}
		data = decoded
	}
	if first > len(data) {
		return nil, fmt.Errorf("object stream %d: First exceeds stream length", objStreamNum)
	}
	header := data[:first]
	body := data[first:]

	// The header is nObj pairs of "objNum offset".
	s := scanner.New(bytes.NewReader(header), o.scannerConfig())
	var pairs []int
	for len(pairs)/2 < nObj {
		tok, err := s.Next()
		if err != nil {
			return nil, fmt.Errorf("object stream %d: bad header: %w", objStreamNum, err)
		}
		if tok.Type != scanner.TokenNumber || !tok.IsInt {
			continue
		}
		pairs = append(pairs, int(tok.Int))
	}

	objs := make(map[int]raw.Object, nObj)
	for i := 0; i < nObj; i++ {
		objNum := pairs[2*i]
		off := pairs[2*i+1]
		if off < 0 || off > len(body) {
			return nil, fmt.Errorf("object stream %d: offset out of range for object %d", objStreamNum, objNum)
		}
		sc := scanner.New(bytes.NewReader(body[off:]), o.scannerConfig())
		obj, err := parseLoaderObject(newTokenReader(sc), o.recovery, objNum, 0)
		if err != nil {
			return nil, err
		}
		objs[objNum] = obj
	}
	o.objstm[objStreamNum] = objs
	if obj, ok := objs[ref.Num]; ok {
		return obj, nil
	}
	return nil, fmt.Errorf("object %d not present in object stream %d", ref.Num, objStreamNum)
}

func getIntFromDict(d *raw.DictObj, key string) int64 {
	if v, ok := d.Get(raw.NameObj{Val: key}); ok {
		if n, ok := v.(raw.NumberObj); ok {
			return n.Int()
		}
	}
	return 0
}

// Token-level parsing. The scanner emits only open tokens for containers,
// so the reader walks nested structure itself.

type streamLengthSetter interface{ SetNextStreamLength(int64) }

type tokenReader struct {
	s            interface{ Next() (scanner.Token, error) }
	buf          []scanner.Token
	lengthSetter streamLengthSetter
}

func newTokenReader(src interface{ Next() (scanner.Token, error) }) *tokenReader {
	tr := &tokenReader{s: src}
	if setter, ok := src.(streamLengthSetter); ok {
		tr.lengthSetter = setter
	}
	return tr
}

func (r *tokenReader) next() (scanner.Token, error) {
	if l := len(r.buf); l > 0 {
		t := r.buf[l-1]
		r.buf = r.buf[:l-1]
		return t, nil
	}
	return r.s.Next()
}

func (r *tokenReader) unread(tok scanner.Token) { r.buf = append(r.buf, tok) }

func (r *tokenReader) setStreamLengthHint(n int64) {
	if r.lengthSetter != nil && n > 0 {
		r.lengthSetter.SetNextStreamLength(n)
	}
}

func (r *tokenReader) clearStreamLengthHint() {
	if r.lengthSetter != nil {
		r.lengthSetter.SetNextStreamLength(-1)
	}
}

func parseLoaderObject(tr *tokenReader, rec recovery.Strategy, objNum, gen int) (raw.Object, error) {
	tok, err := tr.next()
	if err != nil {
		return nil, err
	}
	if tok.Type == scanner.TokenKeyword && tok.Str == "endobj" {
		return nil, errors.New("unexpected endobj")
	}
	switch tok.Type {
	case scanner.TokenName:
		return raw.NameObj{Val: tok.Str}, nil
	case scanner.TokenNumber:
		if tok.IsInt {
			return raw.NumberObj{I: tok.Int, IsInt: true}, nil
		}
		return raw.NumberObj{F: tok.Float}, nil
	case scanner.TokenBoolean:
		return raw.BoolObj{V: tok.Bool}, nil
	case scanner.TokenNull:
		return raw.NullObj{}, nil
	case scanner.TokenString:
		return raw.StringObj{Bytes: tok.Bytes}, nil
	case scanner.TokenArray:
		return parseLoaderArray(tr, rec, objNum, gen)
	case scanner.TokenDict:
		return parseLoaderDict(tr, rec, objNum, gen)
	case scanner.TokenRef:
		return raw.RefObj{R: raw.ObjectRef{Num: tok.Num, Gen: tok.Gen}}, nil
	}
	return nil, fmt.Errorf("unexpected token %v", tok.Type)
}

func parseLoaderArray(tr *tokenReader, rec recovery.Strategy, objNum, gen int) (raw.Object, error) {
	arr := &raw.ArrayObj{}
	for {
		tok, err := tr.next()
		if err != nil {
			return nil, err
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "]" {
			break
		}
		tr.unread(tok)
		item, err := parseLoaderObject(tr, rec, objNum, gen)
		if err != nil {
			return nil, err
		}
		arr.Append(item)
	}
	return arr, nil
}

func parseLoaderDict(tr *tokenReader, rec recovery.Strategy, objNum, gen int) (raw.Object, error) {
	d := raw.Dict()
	for {
		tok, err := tr.next()
		if err != nil {
			return nil, err
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == ">>" {
			break
		}
		if tok.Type != scanner.TokenName {
			if tok.Type == scanner.TokenKeyword && tok.Str == "endobj" {
				err := errors.New("unexpected endobj in dict (missing >>?)")
				if rec != nil {
					action := rec.OnError(context.Background(), err, recovery.Location{ObjectNum: objNum, ObjectGen: gen, Component: "Parser"})
					if action == recovery.ActionWarn || action == recovery.ActionFix {
						tr.unread(tok)
						break
					}
				}
				return nil, err
			}
			return nil, errors.New("expected name in dict")
		}
		key := tok.Str
		val, err := parseLoaderObject(tr, rec, objNum, gen)
		if err != nil {
			return nil, err
		}
		d.Set(raw.NameObj{Val: key}, val)
	}
	return d, nil
}

func (o *objectLoader) resolveStreamLength(dict *raw.DictObj) (int64, error) {
	val, ok := dict.Get(raw.NameLiteral("Length"))
	if !ok {
		return 0, nil
	}
	switch v := val.(type) {
	case raw.NumberObj:
		return v.Int(), nil
	case raw.RefObj:
		obj, err := o.loadReferencedObject(v.R)
		if err != nil {
			return 0, err
		}
		if num, ok := obj.(raw.NumberObj); ok {
			return num.Int(), nil
		}
		return 0, fmt.Errorf("length reference %v is not numeric", v.R)
	default:
		return 0, nil
	}
}

func (o *objectLoader) loadReferencedObject(ref raw.ObjectRef) (raw.Object, error) {
	offset, gen, ok := o.xrefTable.Lookup(ref.Num)
	if !ok {
		return nil, fmt.Errorf("object %d missing for length reference", ref.Num)
	}
	// Temporary scanner so the shared cursor is not clobbered mid-object.
	tmp := scanner.New(o.reader, o.scannerConfig())
	return o.scanObject(tmp, ref.Num, offset, gen)
}
