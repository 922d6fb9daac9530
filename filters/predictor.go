package filters

import (
	"fmt"

	"github.com/TimoteoRJanzen/Tradutor-PDF/ir/raw"
)

// applyPredictor reverses the TIFF or PNG predictor named in the
// DecodeParms of a Flate or LZW filter. Cross-reference streams in
// particular are almost always written with the PNG Up predictor.
func applyPredictor(data []byte, params raw.Dictionary) ([]byte, error) {
	pred := paramInt(params, "Predictor", 1)
	if pred <= 1 {
		return data, nil
	}
	colors := paramInt(params, "Colors", 1)
	bpc := paramInt(params, "BitsPerComponent", 8)
	columns := paramInt(params, "Columns", 1)

	bpp := (colors*bpc + 7) / 8 // bytes per pixel
	rowLen := (colors*bpc*columns + 7) / 8
	if bpp <= 0 || rowLen <= 0 {
		return nil, fmt.Errorf("invalid predictor parameters (colors %d bpc %d columns %d)", colors, bpc, columns)
	}

	if pred == 2 {
		return applyTIFFPredictor(data, bpp, rowLen)
	}
	if pred >= 10 && pred <= 15 {
		return applyPNGPredictor(data, bpp, rowLen)
	}
	return nil, fmt.Errorf("unknown predictor %d", pred)
}

func applyTIFFPredictor(data []byte, bpp, rowLen int) ([]byte, error) {
	if len(data)%rowLen != 0 {
		return nil, fmt.Errorf("data length %d not a multiple of row length %d", len(data), rowLen)
	}
	out := make([]byte, len(data))
	copy(out, data)
	for row := 0; row < len(out); row += rowLen {
		for i := bpp; i < rowLen; i++ {
			out[row+i] += out[row+i-bpp]
		}
	}
	return out, nil
}

// applyPNGPredictor reverses per-row PNG filters (None, Sub, Up,
// Average, Paeth). Each encoded row carries a leading filter byte.
func applyPNGPredictor(data []byte, bpp, rowLen int) ([]byte, error) {
	encRowLen := rowLen + 1
	if len(data)%encRowLen != 0 {
		return nil, fmt.Errorf("data length %d not a multiple of encoded row length %d", len(data), encRowLen)
	}
	rows := len(data) / encRowLen
	out := make([]byte, 0, rows*rowLen)
	prev := make([]byte, rowLen)
	cur := make([]byte, rowLen)
	for r := 0; r < rows; r++ {
		ft := data[r*encRowLen]
		copy(cur, data[r*encRowLen+1:(r+1)*encRowLen])
		switch ft {
		case 0: // None
		case 1: // Sub
			for i := bpp; i < rowLen; i++ {
				cur[i] += cur[i-bpp]
			}
		case 2: // Up
			for i := 0; i < rowLen; i++ {
				cur[i] += prev[i]
			}
		case 3: // Average
			for i := 0; i < rowLen; i++ {
				var left byte
				if i >= bpp {
					left = cur[i-bpp]
				}
				cur[i] += byte((int(left) + int(prev[i])) / 2)
			}
		case 4: // Paeth
			for i := 0; i < rowLen; i++ {
				var left, upLeft byte
				if i >= bpp {
					left = cur[i-bpp]
					upLeft = prev[i-bpp]
				}
				cur[i] += paeth(left, prev[i], upLeft)
			}
		default:
			return nil, fmt.Errorf("invalid PNG filter type %d", ft)
		}
		out = append(out, cur...)
		prev, cur = cur, prev
	}
	return out, nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
