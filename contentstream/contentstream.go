// Package contentstream lexes decoded page content into operations.
// Every operation keeps the byte span it occupies in the source stream
// so later stages can splice text out without disturbing other bytes.
package contentstream

import (
	"bytes"
	"errors"
	"io"

	"github.com/TimoteoRJanzen/Tradutor-PDF/recovery"
	"github.com/TimoteoRJanzen/Tradutor-PDF/scanner"
)

// Operand is a typed content stream operand.
type Operand interface {
	operand()
	Type() string
}

type NumberOperand struct{ Value float64 }

func (NumberOperand) operand()     {}
func (NumberOperand) Type() string { return "number" }

type NameOperand struct{ Value string }

func (NameOperand) operand()     {}
func (NameOperand) Type() string { return "name" }

type StringOperand struct{ Value []byte }

func (StringOperand) operand()     {}
func (StringOperand) Type() string { return "string" }

type BoolOperand struct{ Value bool }

func (BoolOperand) operand()     {}
func (BoolOperand) Type() string { return "bool" }

type ArrayOperand struct{ Values []Operand }

func (ArrayOperand) operand()     {}
func (ArrayOperand) Type() string { return "array" }

type DictOperand struct{ Values map[string]Operand }

func (DictOperand) operand()     {}
func (DictOperand) Type() string { return "dict" }

// InlineImageOperand carries the raw bytes between ID and EI. The
// parameter tokens before ID stay in the operand list ahead of it.
type InlineImageOperand struct{ Data []byte }

func (InlineImageOperand) operand()     {}
func (InlineImageOperand) Type() string { return "inline_image" }

// Operation is one operator with its operands. Start and End delimit
// the half-open byte range [Start, End) covering the operands and the
// operator itself.
type Operation struct {
	Operator string
	Operands []Operand
	Start    int64
	End      int64
}

// Config controls lexing behavior.
type Config struct {
	Recovery recovery.Strategy
}

// Parse lexes a decoded content stream. Operations with operands the
// lexer cannot make sense of are dropped; a scanning error that cannot
// be recovered ends the parse and returns the operations collected so
// far along with the error.
func Parse(data []byte, cfg Config) ([]Operation, error) {
	s := scanner.New(bytes.NewReader(data), scanner.Config{Recovery: cfg.Recovery})

	var ops []Operation
	var operands []Operand
	var opStart int64 = -1

	mark := func(pos int64) {
		if opStart < 0 {
			opStart = pos
		}
	}
	reset := func() {
		operands = nil
		opStart = -1
	}

	for {
		tok, err := s.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return ops, nil
			}
			if cfg.Recovery != nil {
				action := cfg.Recovery.OnError(nil, err, recovery.Location{ByteOffset: s.Position(), Component: "ContentStream"})
				if action != recovery.ActionFail {
					before := s.Position()
					reset()
					if err := s.SeekTo(before + 1); err != nil {
						return ops, nil
					}
					continue
				}
			}
			return ops, err
		}

		switch tok.Type {
		case scanner.TokenNumber:
			mark(tok.Pos)
			operands = append(operands, NumberOperand{Value: numValue(tok)})
		case scanner.TokenName:
			mark(tok.Pos)
			operands = append(operands, NameOperand{Value: tok.Str})
		case scanner.TokenString:
			mark(tok.Pos)
			operands = append(operands, StringOperand{Value: tok.Bytes})
		case scanner.TokenBoolean:
			mark(tok.Pos)
			operands = append(operands, BoolOperand{Value: tok.Bool})
		case scanner.TokenNull:
			mark(tok.Pos)
		case scanner.TokenRef:
			// "n g R" never forms a valid content operator; keep the
			// numbers so operand counts stay plausible.
			mark(tok.Pos)
			operands = append(operands,
				NumberOperand{Value: float64(tok.Num)},
				NumberOperand{Value: float64(tok.Gen)})
		case scanner.TokenArray:
			mark(tok.Pos)
			arr, err := parseArrayOperand(s)
			if err != nil {
				reset()
				continue
			}
			operands = append(operands, arr)
		case scanner.TokenDict:
			mark(tok.Pos)
			dict, err := parseDictOperand(s)
			if err != nil {
				reset()
				continue
			}
			operands = append(operands, dict)
		case scanner.TokenInlineImage:
			mark(tok.Pos)
			operands = append(operands, InlineImageOperand{Data: tok.Bytes})
			ops = append(ops, Operation{Operator: "BI", Operands: operands, Start: opStart, End: s.Position()})
			reset()
		case scanner.TokenKeyword:
			if tok.Str == "BI" {
				mark(tok.Pos)
				continue
			}
			mark(tok.Pos)
			ops = append(ops, Operation{
				Operator: tok.Str,
				Operands: operands,
				Start:    opStart,
				End:      tok.Pos + int64(len(tok.Str)),
			})
			reset()
		default:
			reset()
		}
	}
}

func parseArrayOperand(s scanner.Scanner) (ArrayOperand, error) {
	var arr ArrayOperand
	for {
		tok, err := s.Next()
		if err != nil {
			return arr, err
		}
		switch tok.Type {
		case scanner.TokenKeyword:
			if tok.Str == "]" {
				return arr, nil
			}
			return arr, errors.New("unexpected keyword in array")
		case scanner.TokenNumber:
			arr.Values = append(arr.Values, NumberOperand{Value: numValue(tok)})
		case scanner.TokenName:
			arr.Values = append(arr.Values, NameOperand{Value: tok.Str})
		case scanner.TokenString:
			arr.Values = append(arr.Values, StringOperand{Value: tok.Bytes})
		case scanner.TokenBoolean:
			arr.Values = append(arr.Values, BoolOperand{Value: tok.Bool})
		case scanner.TokenNull:
		case scanner.TokenArray:
			inner, err := parseArrayOperand(s)
			if err != nil {
				return arr, err
			}
			arr.Values = append(arr.Values, inner)
		case scanner.TokenDict:
			inner, err := parseDictOperand(s)
			if err != nil {
				return arr, err
			}
			arr.Values = append(arr.Values, inner)
		default:
			return arr, errors.New("unexpected token in array")
		}
	}
}

func parseDictOperand(s scanner.Scanner) (DictOperand, error) {
	dict := DictOperand{Values: make(map[string]Operand)}
	for {
		tok, err := s.Next()
		if err != nil {
			return dict, err
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == ">>" {
			return dict, nil
		}
		if tok.Type != scanner.TokenName {
			return dict, errors.New("expected name key in dict")
		}
		key := tok.Str

		val, err := s.Next()
		if err != nil {
			return dict, err
		}
		switch val.Type {
		case scanner.TokenNumber:
			dict.Values[key] = NumberOperand{Value: numValue(val)}
		case scanner.TokenName:
			dict.Values[key] = NameOperand{Value: val.Str}
		case scanner.TokenString:
			dict.Values[key] = StringOperand{Value: val.Bytes}
		case scanner.TokenBoolean:
			dict.Values[key] = BoolOperand{Value: val.Bool}
		case scanner.TokenNull:
		case scanner.TokenArray:
			inner, err := parseArrayOperand(s)
			if err != nil {
				return dict, err
			}
			dict.Values[key] = inner
		case scanner.TokenDict:
			inner, err := parseDictOperand(s)
			if err != nil {
				return dict, err
			}
			dict.Values[key] = inner
		default:
			return dict, errors.New("unexpected token as dict value")
		}
	}
}

func numValue(tok scanner.Token) float64 {
	if tok.IsInt {
		return float64(tok.Int)
	}
	return tok.Float
}
