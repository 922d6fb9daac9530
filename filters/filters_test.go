package filters

import (
	"bytes"
	"compress/flate"
	"compress/lzw"
	"compress/zlib"
	"context"
	"errors"
	"testing"

	"github.com/TimoteoRJanzen/Tradutor-PDF/ir/raw"
)

func TestFlateDecode(t *testing.T) {
	var buf bytes.Buffer
	w, _ := flate.NewWriter(&buf, flate.BestSpeed)
	w.Write([]byte("hello world"))
	w.Close()

	dec := NewFlateDecoder()
	out, err := dec.Decode(context.Background(), buf.Bytes(), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "hello world" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestFlateDecodeZlibStream(t *testing.T) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	w.Write([]byte("hello world"))
	w.Close()

	out, err := NewFlateDecoder().Decode(context.Background(), buf.Bytes(), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "hello world" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestFlateDecodeWithPredictor(t *testing.T) {
	var comp bytes.Buffer
	w, _ := flate.NewWriter(&comp, flate.BestSpeed)
	// PNG predictor row: filter byte 1 (Sub), then row bytes.
	w.Write([]byte{1, 10, 12, 20})
	w.Close()

	params := raw.Dict()
	params.Set(raw.NameObj{Val: "Predictor"}, raw.NumberInt(12))
	params.Set(raw.NameObj{Val: "Colors"}, raw.NumberInt(1))
	params.Set(raw.NameObj{Val: "BitsPerComponent"}, raw.NumberInt(8))
	params.Set(raw.NameObj{Val: "Columns"}, raw.NumberInt(3))

	dec := NewFlateDecoder()
	out, err := dec.Decode(context.Background(), comp.Bytes(), params)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	want := []byte{10, 22, 42}
	if !bytes.Equal(out, want) {
		t.Fatalf("predictor output mismatch: got %v want %v", out, want)
	}
}

func TestPNGUpPredictor(t *testing.T) {
	// Two rows with Up filter, as cross-reference streams use.
	rows := []byte{
		2, 1, 0, 10,
		2, 0, 0, 5,
	}
	var comp bytes.Buffer
	w, _ := flate.NewWriter(&comp, flate.BestSpeed)
	w.Write(rows)
	w.Close()

	params := raw.Dict()
	params.Set(raw.NameObj{Val: "Predictor"}, raw.NumberInt(12))
	params.Set(raw.NameObj{Val: "Columns"}, raw.NumberInt(3))

	out, err := NewFlateDecoder().Decode(context.Background(), comp.Bytes(), params)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	want := []byte{1, 0, 10, 1, 0, 15}
	if !bytes.Equal(out, want) {
		t.Fatalf("up predictor mismatch: got %v want %v", out, want)
	}
}

func TestLZWDecode(t *testing.T) {
	var buf bytes.Buffer
	w := lzw.NewWriter(&buf, lzw.MSB, 8)
	input := []byte("hello hello hello")
	if _, err := w.Write(input); err != nil {
		t.Fatalf("write: %v", err)
	}
	w.Close()

	params := raw.Dict()
	params.Set(raw.NameObj{Val: "EarlyChange"}, raw.NumberInt(0))

	dec := NewLZWDecoder()
	out, err := dec.Decode(context.Background(), buf.Bytes(), params)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if !bytes.Equal(out, input) {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestRunLengthDecode(t *testing.T) {
	// literal run of 3 bytes (len=2), then repeat 'A' 2 times (len=255 => count=2), then EOD 128
	data := []byte{2, 'h', 'i', '!', 255, 'A', 128}
	dec := NewRunLengthDecoder()
	out, err := dec.Decode(context.Background(), data, nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "hi!AA" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestASCII85Decode(t *testing.T) {
	dec := NewASCII85Decoder()
	out, err := dec.Decode(context.Background(), []byte("<~87cURD_*#4DfTZ)+T~>"), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "Hello, World!" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestASCIIHexDecode(t *testing.T) {
	dec := NewASCIIHexDecoder()
	out, err := dec.Decode(context.Background(), []byte("68656c 6c6f20 776f726c64>"), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "hello world" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestPipelineChain(t *testing.T) {
	var comp bytes.Buffer
	w, _ := flate.NewWriter(&comp, flate.BestSpeed)
	w.Write([]byte("chained"))
	w.Close()
	hexed := make([]byte, 0, comp.Len()*2)
	for _, b := range comp.Bytes() {
		hexed = append(hexed, "0123456789abcdef"[b>>4], "0123456789abcdef"[b&0xf])
	}
	hexed = append(hexed, '>')

	p := NewStandardPipeline(Limits{})
	out, err := p.Decode(context.Background(), hexed, []string{"ASCIIHexDecode", "FlateDecode"}, nil)
	if err != nil {
		t.Fatalf("pipeline decode error: %v", err)
	}
	if string(out) != "chained" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestUnsupportedFilter(t *testing.T) {
	p := NewStandardPipeline(Limits{})
	_, err := p.Decode(context.Background(), []byte{0x00}, []string{"JPXDecode"}, nil)
	var ue UnsupportedError
	if err == nil || !errors.As(err, &ue) || ue.Filter != "JPXDecode" {
		t.Fatalf("expected unsupported error, got %v", err)
	}
}

func TestExtractFilters(t *testing.T) {
	dict := raw.Dict()
	dict.Set(raw.NameObj{Val: "Filter"}, raw.NewArray(raw.NameLiteral("ASCIIHexDecode"), raw.NameLiteral("FlateDecode")))
	parms := raw.Dict()
	parms.Set(raw.NameObj{Val: "Predictor"}, raw.NumberInt(12))
	dict.Set(raw.NameObj{Val: "DecodeParms"}, raw.NewArray(raw.NullObj{}, parms))

	names, params := ExtractFilters(dict)
	if len(names) != 2 || names[0] != "ASCIIHexDecode" || names[1] != "FlateDecode" {
		t.Fatalf("unexpected filter names: %v", names)
	}
	if len(params) != 2 || params[0] != nil || params[1] == nil {
		t.Fatalf("unexpected params: %v", params)
	}
}
