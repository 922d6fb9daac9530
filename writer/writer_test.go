package writer

import (
	"bytes"
	"context"
	"testing"

	"github.com/TimoteoRJanzen/Tradutor-PDF/ir/raw"
	"github.com/TimoteoRJanzen/Tradutor-PDF/ir/semantic"
	"github.com/TimoteoRJanzen/Tradutor-PDF/parser"
)

// testDocument builds a one-page raw document by hand: catalog,
// page tree, page and an uncompressed content stream.
func testDocument(content []byte) *raw.Document {
	catalog := raw.Dict()
	catalog.Set(raw.NameLiteral("Type"), raw.NameLiteral("Catalog"))
	catalog.Set(raw.NameLiteral("Pages"), raw.Ref(2, 0))

	pages := raw.Dict()
	pages.Set(raw.NameLiteral("Type"), raw.NameLiteral("Pages"))
	pages.Set(raw.NameLiteral("Count"), raw.NumberInt(1))
	pages.Set(raw.NameLiteral("Kids"), raw.NewArray(raw.Ref(3, 0)))

	page := raw.Dict()
	page.Set(raw.NameLiteral("Type"), raw.NameLiteral("Page"))
	page.Set(raw.NameLiteral("Parent"), raw.Ref(2, 0))
	page.Set(raw.NameLiteral("MediaBox"), raw.NewArray(
		raw.NumberInt(0), raw.NumberInt(0), raw.NumberInt(612), raw.NumberInt(792)))
	page.Set(raw.NameLiteral("Contents"), raw.Ref(4, 0))

	streamDict := raw.Dict()
	streamDict.Set(raw.NameLiteral("Length"), raw.NumberInt(int64(len(content))))

	trailer := raw.Dict()
	trailer.Set(raw.NameLiteral("Root"), raw.Ref(1, 0))

	return &raw.Document{
		Objects: map[raw.ObjectRef]raw.Object{
			{Num: 1}: catalog,
			{Num: 2}: pages,
			{Num: 3}: page,
			{Num: 4}: raw.NewStream(streamDict, content),
		},
		Trailer: trailer,
		Version: "1.7",
	}
}

func reparse(t *testing.T, data []byte) *semantic.Document {
	t.Helper()
	ctx := context.Background()
	rawDoc, err := parser.NewDocumentParser(parser.Config{}).Parse(ctx, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	doc, err := semantic.Build(ctx, rawDoc)
	if err != nil {
		t.Fatalf("semantic build: %v", err)
	}
	return doc
}

func TestWriterRoundTrip(t *testing.T) {
	content := []byte("BT /F1 12 Tf (oi) Tj ET")
	w := New(testDocument(content))
	out, err := w.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF-1.7")) {
		t.Errorf("missing header: %.20q", out)
	}

	doc := reparse(t, out)
	if len(doc.Pages) != 1 {
		t.Fatalf("pages = %d, want 1", len(doc.Pages))
	}
	if got := doc.Pages[0].Contents[0].RawBytes; !bytes.Equal(got, content) {
		t.Errorf("content = %q, want %q", got, content)
	}
}

func TestReplaceContentDropsFilters(t *testing.T) {
	rawDoc := testDocument([]byte("old"))
	stream := rawDoc.Objects[raw.ObjectRef{Num: 4}].(*raw.StreamObj)
	stream.Dict.Set(raw.NameLiteral("Filter"), raw.NameLiteral("FlateDecode"))

	w := New(rawDoc)
	replacement := []byte("q 1 0 0 1 0 0 cm Q")
	if err := w.ReplaceContent(raw.ObjectRef{Num: 4}, replacement); err != nil {
		t.Fatalf("ReplaceContent: %v", err)
	}
	out, err := w.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}

	doc := reparse(t, out)
	if got := doc.Pages[0].Contents[0].RawBytes; !bytes.Equal(got, replacement) {
		t.Errorf("content = %q, want %q", got, replacement)
	}
}

func TestReplaceContentRejectsNonStream(t *testing.T) {
	w := New(testDocument([]byte("x")))
	if err := w.ReplaceContent(raw.ObjectRef{Num: 1}, []byte("y")); err == nil {
		t.Error("expected error replacing a dictionary")
	}
	if err := w.ReplaceContent(raw.ObjectRef{Num: 99}, []byte("y")); err == nil {
		t.Error("expected error for missing object")
	}
}

func TestSetPageContentsAndFont(t *testing.T) {
	rawDoc := testDocument([]byte("old"))
	w := New(rawDoc)

	doc, err := semantic.Build(context.Background(), rawDoc)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	page := doc.Pages[0]

	newContent := []byte("BT /TF0 10 Tf <0041> Tj ET")
	if err := w.SetPageContents(page, newContent); err != nil {
		t.Fatalf("SetPageContents: %v", err)
	}

	font := &semantic.Font{
		Subtype:  "Type0",
		BaseFont: "TestSans",
		Encoding: "Identity-H",
		DescendantFont: &semantic.CIDFont{
			Subtype:       "CIDFontType2",
			BaseFont:      "TestSans",
			CIDSystemInfo: semantic.CIDSystemInfo{Registry: "Adobe", Ordering: "Identity"},
			DW:            1000,
			W:             map[int]float64{65: 600, 66: 610, 70: 550},
		},
		Descriptor: &semantic.FontDescriptor{
			FontName:     "TestSans",
			Flags:        4,
			Ascent:       800,
			Descent:      -200,
			StemV:        80,
			FontFile:     []byte("not a real sfnt, writer does not parse it"),
			FontFileType: "FontFile2",
		},
		ToUnicodeCMap: []byte("begincmap endcmap"),
	}
	fontRef, err := w.AddFont(font)
	if err != nil {
		t.Fatalf("AddFont: %v", err)
	}
	if err := w.AddPageFont(page, "TF0", fontRef); err != nil {
		t.Fatalf("AddPageFont: %v", err)
	}

	out, err := w.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	redone := reparse(t, out)
	got := redone.Pages[0]
	if !bytes.Equal(got.Contents[0].RawBytes, newContent) {
		t.Errorf("content = %q", got.Contents[0].RawBytes)
	}
	f, ok := got.Resources.Fonts["TF0"]
	if !ok {
		t.Fatalf("font TF0 missing from resources: %v", got.Resources.Fonts)
	}
	if f.Subtype != "Type0" || f.Encoding != "Identity-H" {
		t.Errorf("font = %s/%s", f.Subtype, f.Encoding)
	}
	if f.DescendantFont == nil || f.DescendantFont.W[65] != 600 {
		t.Errorf("descendant widths not round-tripped: %+v", f.DescendantFont)
	}
	if len(f.ToUnicodeCMap) == 0 {
		t.Errorf("ToUnicode stream missing")
	}
	if f.Descriptor.StemV != 80 {
		t.Errorf("StemV = %d, want 80", f.Descriptor.StemV)
	}
	if len(f.Descriptor.FontFile) == 0 {
		t.Errorf("embedded font program missing")
	}
}

func TestWidthsArrayMergesRuns(t *testing.T) {
	arr := widthsArray(map[int]float64{10: 500, 11: 510, 12: 520, 20: 600})
	// Two runs: "10 [500 510 520] 20 [600]".
	if arr.Len() != 4 {
		t.Fatalf("len = %d, want 4", arr.Len())
	}
	first, _ := arr.Get(0)
	if first.(raw.NumberObj).Int() != 10 {
		t.Errorf("first run start = %v", first)
	}
	run, _ := arr.Get(1)
	if run.(*raw.ArrayObj).Len() != 3 {
		t.Errorf("first run len = %d, want 3", run.(*raw.ArrayObj).Len())
	}
}

func TestSupersededStreamsDropped(t *testing.T) {
	rawDoc := testDocument([]byte("x"))
	objStmDict := raw.Dict()
	objStmDict.Set(raw.NameLiteral("Type"), raw.NameLiteral("ObjStm"))
	objStmDict.Set(raw.NameLiteral("Length"), raw.NumberInt(4))
	rawDoc.Objects[raw.ObjectRef{Num: 9}] = raw.NewStream(objStmDict, []byte("junk"))

	out, err := New(rawDoc).Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	if bytes.Contains(out, []byte("ObjStm")) {
		t.Errorf("output still carries an object stream")
	}
}
