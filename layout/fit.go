// Package layout fits translated text back into the box left by the
// original run and renders it as content stream operations.
package layout

import (
	"strings"

	"github.com/TimoteoRJanzen/Tradutor-PDF/coords"
	"github.com/TimoteoRJanzen/Tradutor-PDF/fonts"
)

const (
	// DefaultMinSize is the smallest font size the shrink step may
	// reach before wrapping takes over.
	DefaultMinSize = 6.0
	// DefaultStep is the shrink decrement per iteration.
	DefaultStep = 0.5
	// DefaultLeading multiplies font size into line height.
	DefaultLeading = 1.2
)

// Config tunes the fitter. Zero values get defaults.
type Config struct {
	MinSize float64
	Step    float64
	Leading float64
}

func (c Config) withDefaults() Config {
	if c.MinSize <= 0 {
		c.MinSize = DefaultMinSize
	}
	if c.Step <= 0 {
		c.Step = DefaultStep
	}
	if c.Leading <= 0 {
		c.Leading = DefaultLeading
	}
	return c
}

// Line is one laid-out line of text with its measured width in points.
type Line struct {
	Text  string
	Width float64
}

// Fit is the result of fitting a string into a box: the final font
// size, the wrapped lines, and how far past the box bottom the last
// line reaches (0 when everything fits vertically).
type Fit struct {
	Size     float64
	Lines    []Line
	Overflow float64
}

// LineHeight is the baseline-to-baseline distance for the fit.
func (f Fit) LineHeight(cfg Config) float64 {
	return f.Size * cfg.withDefaults().Leading
}

// FitText fits text into box starting at origSize. The size shrinks
// in fixed steps until the text fits on one line or the minimum is
// reached; at the minimum the text word-wraps, splitting single
// over-wide words by character. Vertical overflow is measured, never
// truncated.
func FitText(face *fonts.Face, text string, box coords.Rect, origSize float64, cfg Config) Fit {
	cfg = cfg.withDefaults()
	text = strings.TrimRight(text, " \t\n")
	if text == "" {
		return Fit{Size: origSize}
	}

	maxWidth := box.Width()
	size := origSize
	for textWidth(face, text, size) > maxWidth && size-cfg.Step >= cfg.MinSize {
		size -= cfg.Step
	}

	if w := textWidth(face, text, size); w <= maxWidth {
		return Fit{Size: size, Lines: []Line{{Text: text, Width: w}}}
	}

	lines := wrap(face, text, size, maxWidth)
	fit := Fit{Size: size, Lines: lines}

	height := float64(len(lines)) * size * cfg.Leading
	if height > box.Height() {
		fit.Overflow = height - box.Height()
	}
	return fit
}

// textWidth measures text in points at the given size.
func textWidth(face *fonts.Face, text string, size float64) float64 {
	return face.TextWidthEm(text) / 1000 * size
}

// wrap is a greedy word wrapper. Words longer than the line break at
// character boundaries.
func wrap(face *fonts.Face, text string, size, maxWidth float64) []Line {
	var lines []Line
	var cur strings.Builder
	curWidth := 0.0

	flush := func() {
		if cur.Len() == 0 {
			return
		}
		lines = append(lines, Line{Text: strings.TrimRight(cur.String(), " "), Width: curWidth})
		cur.Reset()
		curWidth = 0
	}

	spaceWidth := textWidth(face, " ", size)

	for _, word := range strings.Fields(text) {
		w := textWidth(face, word, size)
		sep := 0.0
		if cur.Len() > 0 {
			sep = spaceWidth
		}

		switch {
		case curWidth+sep+w <= maxWidth:
			if sep > 0 {
				cur.WriteByte(' ')
				curWidth += sep
			}
			cur.WriteString(word)
			curWidth += w
		case w > maxWidth:
			flush()
			for _, r := range word {
				rw := textWidth(face, string(r), size)
				if curWidth+rw > maxWidth && cur.Len() > 0 {
					flush()
				}
				cur.WriteRune(r)
				curWidth += rw
			}
		default:
			flush()
			cur.WriteString(word)
			curWidth = w
		}
	}
	flush()
	return lines
}
