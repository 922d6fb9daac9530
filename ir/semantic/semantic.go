// Package semantic lifts the raw object graph into document structure:
// the page tree with inherited attributes, per-page resources, and
// decoded content streams. It keeps references back into the raw graph
// so a writer can update objects in place.
package semantic

import (
	"context"
	"fmt"

	"github.com/TimoteoRJanzen/Tradutor-PDF/ir/raw"
)

// Document is the structured view of a parsed PDF.
type Document struct {
	Pages []*Page
	Lang  string
	Raw   *raw.Document
}

// Page models a single page with attributes resolved through the
// page-tree inheritance rules.
type Page struct {
	Index     int
	MediaBox  Rectangle
	CropBox   Rectangle
	Rotate    int // degrees: 0/90/180/270
	Resources *Resources
	Contents  []ContentStream
	Ref       raw.ObjectRef
	Dict      *raw.DictObj
}

// ContentStream carries the decoded bytes of one page content stream
// and the reference of the stream object it came from.
type ContentStream struct {
	RawBytes []byte
	Ref      raw.ObjectRef
}

// Rectangle represents a PDF rectangle in default user space.
type Rectangle struct {
	LLX, LLY, URX, URY float64
}

func (r Rectangle) Width() float64  { return r.URX - r.LLX }
func (r Rectangle) Height() float64 { return r.URY - r.LLY }

// Resources holds the subset of page resources the translator needs:
// fonts by resource name, plus the raw dictionary for pass-through.
type Resources struct {
	Fonts map[string]*Font
	Dict  *raw.DictObj
	Ref   raw.ObjectRef
}

// Font represents a font resource.
type Font struct {
	Subtype        string // Type1, TrueType, Type0, Type3, MMType1
	BaseFont       string
	Encoding       string
	EncodingDict   *EncodingDict
	ToUnicodeCMap  []byte // decoded ToUnicode CMap stream
	FirstChar      int
	Widths         map[int]float64 // character code -> width in glyph space
	DescendantFont *CIDFont
	Descriptor     *FontDescriptor
	Ref            raw.ObjectRef
}

// Composite reports whether codes in strings shown with this font are
// multi-byte CIDs rather than single-byte character codes.
func (f *Font) Composite() bool { return f.Subtype == "Type0" }

// WidthOf returns the advance width of a character code in glyph space
// units (1000 per em), falling back to the descendant default width.
func (f *Font) WidthOf(code int) (float64, bool) {
	if w, ok := f.Widths[code]; ok {
		return w, true
	}
	if f.DescendantFont != nil {
		if w, ok := f.DescendantFont.W[code]; ok {
			return w, true
		}
		if f.DescendantFont.DW > 0 {
			return f.DescendantFont.DW, true
		}
	}
	return 0, false
}

// EncodingDict represents a custom encoding dictionary.
type EncodingDict struct {
	BaseEncoding string
	Differences  []EncodingDifference
}

// EncodingDifference maps one character code to a glyph name.
type EncodingDifference struct {
	Code int
	Name string
}

// CIDSystemInfo describes the registry/ordering of a CID font.
type CIDSystemInfo struct {
	Registry   string
	Ordering   string
	Supplement int
}

// CIDFont describes the descendant font of a Type0 font.
type CIDFont struct {
	Subtype       string // CIDFontType0 or CIDFontType2
	BaseFont      string
	CIDSystemInfo CIDSystemInfo
	DW            float64
	W             map[int]float64 // CID -> width
	Descriptor    *FontDescriptor
}

// FontDescriptor carries metrics and font file embedding details.
type FontDescriptor struct {
	FontName     string
	Flags        int
	ItalicAngle  float64
	Ascent       float64
	Descent      float64
	CapHeight    float64
	StemV        int
	FontBBox     [4]float64
	FontFile     []byte
	FontFileType string // FontFile, FontFile2 or FontFile3
}

type rawResolver interface {
	Resolve(ref raw.ObjectRef) (raw.Object, error)
}

type docResolver struct {
	doc *raw.Document
}

func (r *docResolver) Resolve(ref raw.ObjectRef) (raw.Object, error) {
	if obj, ok := r.doc.Objects[ref]; ok {
		return obj, nil
	}
	return nil, fmt.Errorf("object %v not found", ref)
}

// Build lifts a raw document into its semantic form. Pages that fail
// to parse are dropped rather than failing the whole document.
func Build(ctx context.Context, rawDoc *raw.Document) (*Document, error) {
	doc := &Document{Raw: rawDoc}
	if rawDoc == nil || rawDoc.Trailer == nil {
		return nil, fmt.Errorf("document has no trailer")
	}
	resolver := &docResolver{doc: rawDoc}

	rootObj, ok := rawDoc.Trailer.Get(raw.NameLiteral("Root"))
	if !ok {
		return nil, fmt.Errorf("trailer has no Root")
	}
	catalog, ok := resolveDict(rootObj, resolver)
	if !ok {
		return nil, fmt.Errorf("catalog is not a dictionary")
	}

	if langObj, ok := catalog.Get(raw.NameLiteral("Lang")); ok {
		if s, ok := langObj.(raw.StringObj); ok {
			doc.Lang = string(s.Value())
		}
	}

	pagesObj, ok := catalog.Get(raw.NameLiteral("Pages"))
	if !ok {
		return nil, fmt.Errorf("catalog has no Pages")
	}
	pages, err := parsePages(pagesObj, resolver, inheritedPageProps{})
	if err != nil {
		return nil, err
	}
	for i, p := range pages {
		p.Index = i
	}
	doc.Pages = pages
	return doc, nil
}

func resolveDict(obj raw.Object, resolver rawResolver) (*raw.DictObj, bool) {
	if ref, ok := obj.(raw.Reference); ok {
		resolved, err := resolver.Resolve(ref.Ref())
		if err != nil {
			return nil, false
		}
		obj = resolved
	}
	dict, ok := obj.(*raw.DictObj)
	return dict, ok
}
