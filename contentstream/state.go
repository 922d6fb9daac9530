package contentstream

import (
	"errors"

	"github.com/TimoteoRJanzen/Tradutor-PDF/coords"
	"github.com/TimoteoRJanzen/Tradutor-PDF/ir/semantic"
)

// TextRenderMode matches PDF text rendering modes set via Tr.
type TextRenderMode int

const (
	TextFill TextRenderMode = iota
	TextStroke
	TextFillStroke
	TextInvisible
	TextFillClip
	TextStrokeClip
	TextFillStrokeClip
	TextClip
)

// RGB is a device color reduced to RGB components in [0, 1].
type RGB struct {
	R, G, B float64
}

// GraphicsState carries the subset of PDF graphics state that affects
// text placement and appearance.
type GraphicsState struct {
	CTM         coords.Matrix
	FillColor   RGB
	StrokeColor RGB
	Text        TextState
	stack       []savedState
}

type savedState struct {
	ctm         coords.Matrix
	fillColor   RGB
	strokeColor RGB
	text        TextState
}

// TextState groups the text-specific parameters (PDF 9.3).
type TextState struct {
	Font         *semantic.Font
	FontName     string
	FontSize     float64
	CharSpacing  float64 // Tc
	WordSpacing  float64 // Tw
	HorizScale   float64 // Tz, percent
	Leading      float64 // TL
	Rise         float64 // Ts
	RenderMode   TextRenderMode
	Matrix       coords.Matrix // Tm
	LineMatrix   coords.Matrix // Tlm
}

// NewGraphicsState returns a state with PDF defaults.
func NewGraphicsState() *GraphicsState {
	return &GraphicsState{
		CTM: coords.Identity(),
		Text: TextState{
			HorizScale: 100,
			Matrix:     coords.Identity(),
			LineMatrix: coords.Identity(),
		},
	}
}

// Save pushes a copy of the current state (q).
func (gs *GraphicsState) Save() {
	gs.stack = append(gs.stack, savedState{
		ctm:         gs.CTM,
		fillColor:   gs.FillColor,
		strokeColor: gs.StrokeColor,
		text:        gs.Text,
	})
}

// Restore pops the last saved state (Q).
func (gs *GraphicsState) Restore() error {
	n := len(gs.stack)
	if n == 0 {
		return errors.New("graphics state stack empty")
	}
	top := gs.stack[n-1]
	gs.stack = gs.stack[:n-1]
	gs.CTM = top.ctm
	gs.FillColor = top.fillColor
	gs.StrokeColor = top.strokeColor
	gs.Text = top.text
	return nil
}

// BeginText resets the text matrices (BT).
func (gs *GraphicsState) BeginText() {
	gs.Text.Matrix = coords.Identity()
	gs.Text.LineMatrix = coords.Identity()
}

// NextLine moves to the start of the next line offset by (tx, ty)
// relative to the current line start (Td).
func (gs *GraphicsState) NextLine(tx, ty float64) {
	m := coords.Translate(tx, ty).Multiply(gs.Text.LineMatrix)
	gs.Text.LineMatrix = m
	gs.Text.Matrix = m
}
