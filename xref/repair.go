package xref

import (
	"context"
	"errors"
	"io"

	"github.com/TimoteoRJanzen/Tradutor-PDF/ir/raw"
	"github.com/TimoteoRJanzen/Tradutor-PDF/scanner"
)

// repair scans the entire file to reconstruct the xref table. It looks
// for "num gen obj" patterns and keeps the last trailer dictionary it
// can parse.
func repair(ctx context.Context, r io.ReaderAt) (*table, error) {
	s := scanner.New(r, scanner.Config{})
	entries := make(map[int]entry)
	var lastTrailer *raw.DictObj

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		tok, err := s.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			// skip unreadable constructs during repair
			continue
		}

		if tok.Type == scanner.TokenNumber && tok.IsInt {
			objNum := int(tok.Int)

			tokGen, err := s.Next()
			if err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				continue
			}
			if tokGen.Type != scanner.TokenNumber || !tokGen.IsInt {
				continue
			}
			gen := int(tokGen.Int)

			tokObj, err := s.Next()
			if err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				continue
			}
			if tokObj.Type == scanner.TokenKeyword && tokObj.Str == "obj" {
				entries[objNum] = entry{kind: entryInFile, offset: tok.Pos, gen: gen}
				continue
			}
			// tokGen may itself start an object header ("999 1 0 obj"),
			// so rewind to it before continuing the scan
			if err := s.SeekTo(tokGen.Pos); err != nil {
				return nil, err
			}
			continue
		}

		if tok.Type == scanner.TokenKeyword && tok.Str == "trailer" {
			tr := newTokenReader(s)
			obj, err := parseObject(tr)
			if err == nil {
				if dict, ok := obj.(*raw.DictObj); ok {
					lastTrailer = dict
				}
			}
		}
	}

	if len(entries) == 0 {
		return nil, errors.New("repair failed: no objects found")
	}

	if lastTrailer == nil {
		lastTrailer = raw.Dict()
		lastTrailer.Set(raw.NameObj{Val: "Size"}, raw.NumberObj{I: int64(len(entries)) + 1, IsInt: true})
	}

	return &table{entries: entries, trailer: lastTrailer, typ: "repaired"}, nil
}
