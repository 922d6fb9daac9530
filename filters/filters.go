// Package filters implements the PDF stream filters needed to decode
// content streams, object streams and cross-reference streams.
package filters

import (
	"bytes"
	"compress/flate"
	stdlzw "compress/lzw"
	"compress/zlib"
	"context"
	stdascii85 "encoding/ascii85"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	tifflzw "golang.org/x/image/tiff/lzw"

	"github.com/TimoteoRJanzen/Tradutor-PDF/ir/raw"
)

type Decoder interface {
	Name() string
	Decode(ctx context.Context, input []byte, params raw.Dictionary) ([]byte, error)
}

// UnsupportedError reports a filter the pipeline has no decoder for.
type UnsupportedError struct{ Filter string }

func (e UnsupportedError) Error() string { return fmt.Sprintf("unsupported filter %s", e.Filter) }

type Limits struct {
	MaxDecompressedSize int64
	MaxDecodeTime       time.Duration
}

// Pipeline applies a chain of filters in order.
type Pipeline struct {
	decoders []Decoder
	limits   Limits
}

func NewPipeline(decoders []Decoder, limits Limits) *Pipeline {
	return &Pipeline{decoders: decoders, limits: limits}
}

// NewStandardPipeline returns a pipeline with every decoder this
// library implements.
func NewStandardPipeline(limits Limits) *Pipeline {
	return NewPipeline([]Decoder{
		NewFlateDecoder(),
		NewLZWDecoder(),
		NewRunLengthDecoder(),
		NewASCIIHexDecoder(),
		NewASCII85Decoder(),
	}, limits)
}

func (p *Pipeline) findDecoder(name string) Decoder {
	for _, d := range p.decoders {
		if d.Name() == name {
			return d
		}
	}
	return nil
}

func (p *Pipeline) Decode(ctx context.Context, input []byte, filterNames []string, params []raw.Dictionary) ([]byte, error) {
	data := input
	for i, name := range filterNames {
		dec := p.findDecoder(name)
		if dec == nil {
			return nil, UnsupportedError{Filter: name}
		}
		if p.limits.MaxDecompressedSize > 0 && int64(len(data)) > p.limits.MaxDecompressedSize {
			return nil, errors.New("decompressed size exceeds limit")
		}
		var param raw.Dictionary
		if i < len(params) {
			param = params[i]
		}
		out, err := dec.Decode(ctx, data, param)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if p.limits.MaxDecompressedSize > 0 && int64(len(out)) > p.limits.MaxDecompressedSize {
			return nil, errors.New("decompressed size exceeds limit")
		}
		data = out
	}
	return data, nil
}

type flateDecoder struct{}

func NewFlateDecoder() Decoder { return flateDecoder{} }

func (flateDecoder) Name() string { return "FlateDecode" }

func (flateDecoder) Decode(ctx context.Context, in []byte, params raw.Dictionary) ([]byte, error) {
	// Streams are zlib-wrapped deflate, but broken producers emit raw
	// deflate without the two-byte header. Accept both.
	var r io.ReadCloser
	zr, err := zlib.NewReader(bytes.NewReader(in))
	if err == nil {
		r = zr
	} else {
		r = flate.NewReader(bytes.NewReader(in))
	}
	defer r.Close()

	var out bytes.Buffer
	if _, err := io.Copy(&out, r); err != nil {
		return nil, err
	}
	return applyPredictor(out.Bytes(), params)
}

type lzwDecoder struct{}

func NewLZWDecoder() Decoder { return lzwDecoder{} }

func (lzwDecoder) Name() string { return "LZWDecode" }

func (lzwDecoder) Decode(ctx context.Context, in []byte, params raw.Dictionary) ([]byte, error) {
	// PDF LZW defaults to EarlyChange 1, the TIFF variant. EarlyChange 0
	// matches the plain MSB LZW of compress/lzw.
	var r io.ReadCloser
	if paramInt(params, "EarlyChange", 1) == 0 {
		r = stdlzw.NewReader(bytes.NewReader(in), stdlzw.MSB, 8)
	} else {
		r = tifflzw.NewReader(bytes.NewReader(in), tifflzw.MSB, 8)
	}
	defer r.Close()

	var out bytes.Buffer
	if _, err := io.Copy(&out, r); err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	return applyPredictor(out.Bytes(), params)
}

type runLengthDecoder struct{}

func NewRunLengthDecoder() Decoder { return runLengthDecoder{} }

func (runLengthDecoder) Name() string { return "RunLengthDecode" }

func (runLengthDecoder) Decode(ctx context.Context, in []byte, params raw.Dictionary) ([]byte, error) {
	var out bytes.Buffer
	for i := 0; i < len(in); {
		n := int(in[i])
		i++
		switch {
		case n == 128: // EOD
			return out.Bytes(), nil
		case n < 128:
			end := i + n + 1
			if end > len(in) {
				return nil, errors.New("run length literal overruns data")
			}
			out.Write(in[i:end])
			i = end
		default:
			if i >= len(in) {
				return nil, errors.New("run length repeat overruns data")
			}
			out.Write(bytes.Repeat(in[i:i+1], 257-n))
			i++
		}
	}
	return out.Bytes(), nil
}

type ascii85Decoder struct{}

func NewASCII85Decoder() Decoder { return ascii85Decoder{} }

func (ascii85Decoder) Name() string { return "ASCII85Decode" }

func (ascii85Decoder) Decode(ctx context.Context, in []byte, params raw.Dictionary) ([]byte, error) {
	trimmed := bytes.TrimSpace(in)
	if bytes.HasPrefix(trimmed, []byte("<~")) {
		trimmed = trimmed[2:]
	}
	if i := bytes.Index(trimmed, []byte("~>")); i >= 0 {
		trimmed = trimmed[:i]
	}
	out := make([]byte, len(trimmed)*2)
	n, _, err := stdascii85.Decode(out, trimmed, true)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

type asciiHexDecoder struct{}

func NewASCIIHexDecoder() Decoder { return asciiHexDecoder{} }

func (asciiHexDecoder) Name() string { return "ASCIIHexDecode" }

func (asciiHexDecoder) Decode(ctx context.Context, in []byte, params raw.Dictionary) ([]byte, error) {
	compact := make([]byte, 0, len(in))
	for _, c := range in {
		switch {
		case c == '>':
			goto done
		case c == 0x00 || c == 0x09 || c == 0x0A || c == 0x0C || c == 0x0D || c == 0x20:
		default:
			compact = append(compact, c)
		}
	}
done:
	// odd length is padded with 0 per spec
	if len(compact)%2 == 1 {
		compact = append(compact, '0')
	}
	result := make([]byte, hex.DecodedLen(len(compact)))
	n, err := hex.Decode(result, compact)
	if err != nil {
		return nil, err
	}
	return result[:n], nil
}

func paramInt(params raw.Dictionary, key string, def int) int {
	if params == nil {
		return def
	}
	obj, ok := params.Get(raw.NameLiteral(key))
	if !ok {
		return def
	}
	if num, ok := obj.(raw.Number); ok {
		return int(num.Int())
	}
	return def
}
