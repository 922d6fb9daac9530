// Package stripper removes text-painting operators from content
// streams. Every byte outside the removed operator spans is copied
// through untouched, so graphics, images and state changes survive
// exactly as written. The combined operators ' and " also move the
// text cursor and set spacing, so they are replaced by their
// state-changing parts instead of being dropped outright.
package stripper

import (
	"bytes"
	"sort"
	"strconv"

	"github.com/TimoteoRJanzen/Tradutor-PDF/contentstream"
	"github.com/TimoteoRJanzen/Tradutor-PDF/recovery"
)

// Result reports what a strip pass did.
type Result struct {
	Content []byte
	Removed int // number of text-painting operations taken out
}

// Strip parses the decoded content stream and splices out Tj, TJ, '
// and " operations. Shows under a text-clip render mode stay in
// place. A content stream that cannot be lexed at all is returned
// unchanged along with the error.
func Strip(data []byte) (Result, error) {
	ops, err := contentstream.Parse(data, contentstream.Config{Recovery: recovery.NewLenientStrategy()})
	if err != nil {
		return Result{Content: data}, err
	}
	return stripOps(data, ops), nil
}

func stripOps(data []byte, ops []contentstream.Operation) Result {
	targets := make([]contentstream.Operation, 0)
	mode := contentstream.TextFill
	var saved []contentstream.TextRenderMode
	for _, op := range ops {
		switch op.Operator {
		case "q":
			saved = append(saved, mode)
		case "Q":
			if n := len(saved); n > 0 {
				mode = saved[n-1]
				saved = saved[:n-1]
			}
		case "Tr":
			if len(op.Operands) == 1 {
				if v, ok := op.Operands[0].(contentstream.NumberOperand); ok {
					mode = contentstream.TextRenderMode(int(v.Value))
				}
			}
		case "Tj", "TJ", "'", "\"":
			// Clip-mode shows define the clip for later painting;
			// splicing them out would change what gets clipped.
			if mode >= contentstream.TextFillClip {
				continue
			}
			targets = append(targets, op)
		}
	}
	if len(targets) == 0 {
		return Result{Content: data}
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].Start < targets[j].Start })

	var out bytes.Buffer
	out.Grow(len(data))
	var pos int64
	for _, op := range targets {
		if op.Start < pos {
			continue
		}
		out.Write(data[pos:op.Start])
		out.WriteString(replacementFor(op))
		pos = op.End
	}
	out.Write(data[pos:])
	return Result{Content: out.Bytes(), Removed: len(targets)}
}

// replacementFor keeps the non-painting side effects of an operator.
// ' is T* followed by a show; " additionally sets word and character
// spacing first.
func replacementFor(op contentstream.Operation) string {
	switch op.Operator {
	case "'":
		return "T*"
	case "\"":
		if len(op.Operands) == 3 {
			aw, okA := op.Operands[0].(contentstream.NumberOperand)
			ac, okC := op.Operands[1].(contentstream.NumberOperand)
			if okA && okC {
				return formatNumber(aw.Value) + " Tw " + formatNumber(ac.Value) + " Tc T*"
			}
		}
		return "T*"
	default:
		return ""
	}
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
