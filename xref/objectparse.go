package xref

import (
	"fmt"

	"github.com/TimoteoRJanzen/Tradutor-PDF/ir/raw"
	"github.com/TimoteoRJanzen/Tradutor-PDF/scanner"
)

// tokenReader wraps a scanner with single-token pushback.
type tokenReader struct {
	s   scanner.Scanner
	buf []scanner.Token
}

func newTokenReader(s scanner.Scanner) *tokenReader { return &tokenReader{s: s} }

func (r *tokenReader) next() (scanner.Token, error) {
	if l := len(r.buf); l > 0 {
		t := r.buf[l-1]
		r.buf = r.buf[:l-1]
		return t, nil
	}
	return r.s.Next()
}

func (r *tokenReader) unread(tok scanner.Token) { r.buf = append(r.buf, tok) }

// parseObject reads one object from the token stream. It covers the
// subset of syntax that appears in trailers and xref stream dicts.
func parseObject(tr *tokenReader) (raw.Object, error) {
	tok, err := tr.next()
	if err != nil {
		return nil, err
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
	case scanner.TokenRef:
		return raw.Ref(tok.Num, tok.Gen), nil
	case scanner.TokenArray:
		return parseArray(tr)
	case scanner.TokenDict:
		return parseDict(tr)
	}
	return nil, fmt.Errorf("unexpected token type %v", tok.Type)
}

func parseArray(tr *tokenReader) (raw.Object, error) {
	arr := &raw.ArrayObj{}
	for {
		tok, err := tr.next()
		if err != nil {
			return nil, err
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "]" {
			return arr, nil
		}
		tr.unread(tok)
		item, err := parseObject(tr)
		if err != nil {
			return nil, err
		}
		arr.Append(item)
	}
}

func parseDict(tr *tokenReader) (raw.Object, error) {
	d := raw.Dict()
	for {
		tok, err := tr.next()
		if err != nil {
			return nil, err
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == ">>" {
			return d, nil
		}
		if tok.Type != scanner.TokenName {
			return nil, fmt.Errorf("expected name key in dict, got token type %v", tok.Type)
		}
		val, err := parseObject(tr)
		if err != nil {
			return nil, err
		}
		d.Set(raw.NameObj{Val: tok.Str}, val)
	}
}
