package contentstream

import (
	"testing"

	"github.com/TimoteoRJanzen/Tradutor-PDF/recovery"
)

func TestParseSimpleTextOperations(t *testing.T) {
	src := []byte("BT /F1 12 Tf 72 700 Td (Hello) Tj ET")
	ops, err := Parse(src, Config{})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	want := []string{"BT", "Tf", "Td", "Tj", "ET"}
	if len(ops) != len(want) {
		t.Fatalf("expected %d operations, got %d: %+v", len(want), len(ops), ops)
	}
	for i, w := range want {
		if ops[i].Operator != w {
			t.Errorf("op %d: expected %s, got %s", i, w, ops[i].Operator)
		}
	}

	tf := ops[1]
	if len(tf.Operands) != 2 {
		t.Fatalf("Tf should have 2 operands, got %d", len(tf.Operands))
	}
	if name, ok := tf.Operands[0].(NameOperand); !ok || name.Value != "F1" {
		t.Errorf("Tf font operand wrong: %+v", tf.Operands[0])
	}
	if size, ok := tf.Operands[1].(NumberOperand); !ok || size.Value != 12 {
		t.Errorf("Tf size operand wrong: %+v", tf.Operands[1])
	}

	tj := ops[3]
	if s, ok := tj.Operands[0].(StringOperand); !ok || string(s.Value) != "Hello" {
		t.Errorf("Tj string operand wrong: %+v", tj.Operands[0])
	}
}

func TestParseSpansCoverOperandsAndOperator(t *testing.T) {
	src := []byte("q 1 0 0 1 10 20 cm (abc) Tj Q")
	ops, err := Parse(src, Config{})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(ops) != 4 {
		t.Fatalf("expected 4 operations, got %d", len(ops))
	}
	for _, op := range ops {
		got := string(src[op.Start:op.End])
		switch op.Operator {
		case "q":
			if got != "q" {
				t.Errorf("q span wrong: %q", got)
			}
		case "cm":
			if got != "1 0 0 1 10 20 cm" {
				t.Errorf("cm span wrong: %q", got)
			}
		case "Tj":
			if got != "(abc) Tj" {
				t.Errorf("Tj span wrong: %q", got)
			}
		case "Q":
			if got != "Q" {
				t.Errorf("Q span wrong: %q", got)
			}
		}
	}
}

func TestParseTJArray(t *testing.T) {
	src := []byte("[(He) 120 (llo) -30 (!)] TJ")
	ops, err := Parse(src, Config{})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(ops) != 1 || ops[0].Operator != "TJ" {
		t.Fatalf("expected single TJ, got %+v", ops)
	}
	arr, ok := ops[0].Operands[0].(ArrayOperand)
	if !ok {
		t.Fatalf("TJ operand is not an array: %+v", ops[0].Operands[0])
	}
	if len(arr.Values) != 5 {
		t.Fatalf("expected 5 array elements, got %d", len(arr.Values))
	}
	if s, ok := arr.Values[0].(StringOperand); !ok || string(s.Value) != "He" {
		t.Errorf("first element wrong: %+v", arr.Values[0])
	}
	if n, ok := arr.Values[1].(NumberOperand); !ok || n.Value != 120 {
		t.Errorf("second element wrong: %+v", arr.Values[1])
	}
}

func TestParseInlineImage(t *testing.T) {
	src := []byte("BI /W 2 /H 2 /BPC 8 /CS /G ID \x01\x02\x03\x04\nEI Q")
	ops, err := Parse(src, Config{})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(ops) != 2 {
		t.Fatalf("expected BI and Q, got %+v", ops)
	}
	if ops[0].Operator != "BI" {
		t.Fatalf("expected BI, got %s", ops[0].Operator)
	}
	last := ops[0].Operands[len(ops[0].Operands)-1]
	img, ok := last.(InlineImageOperand)
	if !ok {
		t.Fatalf("expected inline image operand, got %+v", last)
	}
	if string(img.Data) != "\x01\x02\x03\x04\n" && string(img.Data) != "\x01\x02\x03\x04" {
		t.Errorf("unexpected image payload: %q", img.Data)
	}
	if ops[1].Operator != "Q" {
		t.Errorf("expected trailing Q, got %s", ops[1].Operator)
	}
}

func TestParseKeepsGoingAfterBadToken(t *testing.T) {
	// An unbalanced paren string would be unterminated without the
	// closer; the lenient strategy lets the lexer resume.
	src := []byte("(good) Tj 72 0 Td (fine) Tj")
	ops, err := Parse(src, Config{Recovery: recovery.NewLenientStrategy()})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	count := 0
	for _, op := range ops {
		if op.Operator == "Tj" {
			count++
		}
	}
	if count != 2 {
		t.Fatalf("expected 2 Tj operations, got %d", count)
	}
}

func TestGraphicsStateSaveRestore(t *testing.T) {
	gs := NewGraphicsState()
	gs.Text.FontSize = 10
	gs.FillColor = RGB{R: 1}
	gs.Save()
	gs.Text.FontSize = 24
	gs.FillColor = RGB{B: 1}
	if err := gs.Restore(); err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	if gs.Text.FontSize != 10 {
		t.Errorf("font size not restored, got %v", gs.Text.FontSize)
	}
	if gs.FillColor != (RGB{R: 1}) {
		t.Errorf("fill color not restored, got %+v", gs.FillColor)
	}
	if err := gs.Restore(); err == nil {
		t.Errorf("restore on empty stack must fail")
	}
}

func TestNextLineAccumulates(t *testing.T) {
	gs := NewGraphicsState()
	gs.BeginText()
	gs.NextLine(10, -12)
	gs.NextLine(0, -12)
	if gs.Text.Matrix[4] != 10 || gs.Text.Matrix[5] != -24 {
		t.Errorf("line matrix wrong: %+v", gs.Text.Matrix)
	}
}
