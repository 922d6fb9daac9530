// Package writer serializes a transformed raw.Document back to PDF
// bytes. Untouched objects round-trip from the parse; content streams
// can be replaced and new objects (fonts, streams) appended. The
// output always carries a fresh classic xref table, so stale object
// and cross-reference streams from the source are dropped.
package writer

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"sort"

	"github.com/TimoteoRJanzen/Tradutor-PDF/ir/raw"
	"github.com/TimoteoRJanzen/Tradutor-PDF/ir/semantic"
)

// Writer accumulates edits against a parsed document and serializes
// the result. Not safe for concurrent use.
type Writer struct {
	objects map[raw.ObjectRef]raw.Object
	trailer raw.Dictionary
	version string
	nextNum int
}

// New shallow-copies the document's object map so edits never touch
// the parse result.
func New(doc *raw.Document) *Writer {
	objects := make(map[raw.ObjectRef]raw.Object, len(doc.Objects))
	maxNum := 0
	for ref, obj := range doc.Objects {
		objects[ref] = obj
		if ref.Num > maxNum {
			maxNum = ref.Num
		}
	}
	version := doc.Version
	if version == "" {
		version = "1.7"
	}
	return &Writer{
		objects: objects,
		trailer: doc.Trailer,
		version: version,
		nextNum: maxNum + 1,
	}
}

// AddObject appends obj under a freshly allocated object number.
func (w *Writer) AddObject(obj raw.Object) raw.ObjectRef {
	ref := raw.ObjectRef{Num: w.nextNum}
	w.nextNum++
	w.objects[ref] = obj
	return ref
}

// ReplaceContent swaps the stream object at ref for an uncompressed
// stream holding data. Any source filters are dropped with the old
// dictionary.
func (w *Writer) ReplaceContent(ref raw.ObjectRef, data []byte) error {
	old, ok := w.objects[ref]
	if !ok {
		return fmt.Errorf("replace content: object %s not found", ref)
	}
	if _, isStream := old.(*raw.StreamObj); !isStream {
		return fmt.Errorf("replace content: object %s is not a stream", ref)
	}
	dict := raw.Dict()
	dict.Set(raw.NameLiteral("Length"), raw.NumberInt(int64(len(data))))
	w.objects[ref] = raw.NewStream(dict, data)
	return nil
}

// SetPageContents points the page dictionary at a single new content
// stream holding data, replacing whatever /Contents it had.
func (w *Writer) SetPageContents(page *semantic.Page, data []byte) error {
	pageDict, err := w.pageDict(page)
	if err != nil {
		return err
	}
	dict := raw.Dict()
	dict.Set(raw.NameLiteral("Length"), raw.NumberInt(int64(len(data))))
	ref := w.AddObject(raw.NewStream(dict, data))
	pageDict.Set(raw.NameLiteral("Contents"), raw.Ref(ref.Num, ref.Gen))
	return nil
}

// AddPageFont registers fontRef under resName in the page's font
// resources, creating the intermediate dictionaries when absent.
func (w *Writer) AddPageFont(page *semantic.Page, resName string, fontRef raw.ObjectRef) error {
	pageDict, err := w.pageDict(page)
	if err != nil {
		return err
	}

	resources, err := w.resolveDictEntry(pageDict, "Resources")
	if err != nil {
		return err
	}
	if resources == nil {
		resources = raw.Dict()
		pageDict.Set(raw.NameLiteral("Resources"), resources)
	}
	fontDict, err := w.resolveDictEntry(resources, "Font")
	if err != nil {
		return err
	}
	if fontDict == nil {
		fontDict = raw.Dict()
		resources.Set(raw.NameLiteral("Font"), fontDict)
	}
	fontDict.Set(raw.NameLiteral(resName), raw.Ref(fontRef.Num, fontRef.Gen))
	return nil
}

func (w *Writer) pageDict(page *semantic.Page) (*raw.DictObj, error) {
	obj, ok := w.objects[page.Ref]
	if !ok {
		return nil, fmt.Errorf("page %d: object %s not found", page.Index, page.Ref)
	}
	dict, ok := obj.(*raw.DictObj)
	if !ok {
		return nil, fmt.Errorf("page %d: object %s is not a dictionary", page.Index, page.Ref)
	}
	return dict, nil
}

// resolveDictEntry returns the dictionary under key, following one
// level of indirection. A missing key returns nil without error.
func (w *Writer) resolveDictEntry(dict *raw.DictObj, key string) (*raw.DictObj, error) {
	obj, ok := dict.Get(raw.NameLiteral(key))
	if !ok {
		return nil, nil
	}
	if ref, isRef := obj.(raw.RefObj); isRef {
		obj, ok = w.objects[ref.Ref()]
		if !ok {
			return nil, fmt.Errorf("%s: dangling reference %s", key, ref.Ref())
		}
	}
	d, ok := obj.(*raw.DictObj)
	if !ok {
		return nil, fmt.Errorf("%s: not a dictionary", key)
	}
	return d, nil
}

// AddFont serializes a Type0 font built by the fonts package into the
// object graph and returns the reference for resource dictionaries.
func (w *Writer) AddFont(font *semantic.Font) (raw.ObjectRef, error) {
	if font.DescendantFont == nil || font.Descriptor == nil {
		return raw.ObjectRef{}, fmt.Errorf("add font %s: incomplete composite font", font.BaseFont)
	}

	fileRef, err := w.addFontFile(font.Descriptor)
	if err != nil {
		return raw.ObjectRef{}, err
	}

	descRef := w.AddObject(descriptorDict(font.Descriptor, fileRef))
	cidRef := w.AddObject(cidFontDict(font.DescendantFont, descRef))

	fontDict := raw.Dict()
	fontDict.Set(raw.NameLiteral("Type"), raw.NameLiteral("Font"))
	fontDict.Set(raw.NameLiteral("Subtype"), raw.NameLiteral("Type0"))
	fontDict.Set(raw.NameLiteral("BaseFont"), raw.NameLiteral(font.BaseFont))
	fontDict.Set(raw.NameLiteral("Encoding"), raw.NameLiteral(font.Encoding))
	fontDict.Set(raw.NameLiteral("DescendantFonts"), raw.NewArray(raw.Ref(cidRef.Num, cidRef.Gen)))
	if len(font.ToUnicodeCMap) > 0 {
		tuRef := w.addFlateStream(font.ToUnicodeCMap)
		fontDict.Set(raw.NameLiteral("ToUnicode"), raw.Ref(tuRef.Num, tuRef.Gen))
	}
	return w.AddObject(fontDict), nil
}

func (w *Writer) addFontFile(desc *semantic.FontDescriptor) (raw.ObjectRef, error) {
	if len(desc.FontFile) == 0 {
		return raw.ObjectRef{}, fmt.Errorf("font %s: no font program to embed", desc.FontName)
	}
	compressed, err := flateCompress(desc.FontFile)
	if err != nil {
		return raw.ObjectRef{}, err
	}
	dict := raw.Dict()
	dict.Set(raw.NameLiteral("Length"), raw.NumberInt(int64(len(compressed))))
	dict.Set(raw.NameLiteral("Length1"), raw.NumberInt(int64(len(desc.FontFile))))
	dict.Set(raw.NameLiteral("Filter"), raw.NameLiteral("FlateDecode"))
	return w.AddObject(raw.NewStream(dict, compressed)), nil
}

func (w *Writer) addFlateStream(data []byte) raw.ObjectRef {
	compressed, err := flateCompress(data)
	if err != nil {
		// zlib over a buffer cannot fail; keep raw data if it ever does.
		compressed = data
	}
	dict := raw.Dict()
	dict.Set(raw.NameLiteral("Length"), raw.NumberInt(int64(len(compressed))))
	if err == nil {
		dict.Set(raw.NameLiteral("Filter"), raw.NameLiteral("FlateDecode"))
	}
	return w.AddObject(raw.NewStream(dict, compressed))
}

func descriptorDict(desc *semantic.FontDescriptor, fileRef raw.ObjectRef) *raw.DictObj {
	d := raw.Dict()
	d.Set(raw.NameLiteral("Type"), raw.NameLiteral("FontDescriptor"))
	d.Set(raw.NameLiteral("FontName"), raw.NameLiteral(desc.FontName))
	d.Set(raw.NameLiteral("Flags"), raw.NumberInt(int64(desc.Flags)))
	d.Set(raw.NameLiteral("ItalicAngle"), raw.NumberFloat(desc.ItalicAngle))
	d.Set(raw.NameLiteral("Ascent"), raw.NumberFloat(desc.Ascent))
	d.Set(raw.NameLiteral("Descent"), raw.NumberFloat(desc.Descent))
	d.Set(raw.NameLiteral("CapHeight"), raw.NumberFloat(desc.CapHeight))
	d.Set(raw.NameLiteral("StemV"), raw.NumberInt(int64(desc.StemV)))
	d.Set(raw.NameLiteral("FontBBox"), raw.NewArray(
		raw.NumberFloat(desc.FontBBox[0]),
		raw.NumberFloat(desc.FontBBox[1]),
		raw.NumberFloat(desc.FontBBox[2]),
		raw.NumberFloat(desc.FontBBox[3]),
	))
	name := desc.FontFileType
	if name == "" {
		name = "FontFile2"
	}
	d.Set(raw.NameLiteral(name), raw.Ref(fileRef.Num, fileRef.Gen))
	return d
}

func cidFontDict(cid *semantic.CIDFont, descRef raw.ObjectRef) *raw.DictObj {
	d := raw.Dict()
	d.Set(raw.NameLiteral("Type"), raw.NameLiteral("Font"))
	d.Set(raw.NameLiteral("Subtype"), raw.NameLiteral(cid.Subtype))
	d.Set(raw.NameLiteral("BaseFont"), raw.NameLiteral(cid.BaseFont))

	info := raw.Dict()
	info.Set(raw.NameLiteral("Registry"), raw.Str([]byte(cid.CIDSystemInfo.Registry)))
	info.Set(raw.NameLiteral("Ordering"), raw.Str([]byte(cid.CIDSystemInfo.Ordering)))
	info.Set(raw.NameLiteral("Supplement"), raw.NumberInt(int64(cid.CIDSystemInfo.Supplement)))
	d.Set(raw.NameLiteral("CIDSystemInfo"), info)

	d.Set(raw.NameLiteral("DW"), raw.NumberInt(int64(cid.DW)))
	if len(cid.W) > 0 {
		d.Set(raw.NameLiteral("W"), widthsArray(cid.W))
	}
	d.Set(raw.NameLiteral("CIDToGIDMap"), raw.NameLiteral("Identity"))
	d.Set(raw.NameLiteral("FontDescriptor"), raw.Ref(descRef.Num, descRef.Gen))
	return d
}

// widthsArray emits the "c [w]" form of the W array, merging
// consecutive CIDs into one bracket run.
func widthsArray(w map[int]float64) *raw.ArrayObj {
	cids := make([]int, 0, len(w))
	for cid := range w {
		cids = append(cids, cid)
	}
	sort.Ints(cids)

	arr := raw.NewArray()
	for i := 0; i < len(cids); {
		j := i
		for j+1 < len(cids) && cids[j+1] == cids[j]+1 {
			j++
		}
		arr.Append(raw.NumberInt(int64(cids[i])))
		run := raw.NewArray()
		for k := i; k <= j; k++ {
			run.Append(raw.NumberInt(int64(w[cids[k]])))
		}
		arr.Append(run)
		i = j + 1
	}
	return arr
}

func flateCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
