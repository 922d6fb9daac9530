package writer

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"

	"github.com/TimoteoRJanzen/Tradutor-PDF/ir/raw"
)

// Bytes serializes the edited document as a complete PDF file with a
// classic xref table.
func (w *Writer) Bytes() ([]byte, error) {
	ordered := make([]raw.ObjectRef, 0, len(w.objects))
	for ref := range w.objects {
		if ref.Num == 0 || isSuperseded(w.objects[ref]) {
			continue
		}
		ordered = append(ordered, ref)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Num < ordered[j].Num })
	if len(ordered) == 0 {
		return nil, fmt.Errorf("write: document has no objects")
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%%PDF-%s\n", w.version)
	buf.WriteString("%\xE2\xE3\xCF\xD3\n")

	offsets := make(map[int]int64, len(ordered))
	gens := make(map[int]int, len(ordered))
	for _, ref := range ordered {
		offsets[ref.Num] = int64(buf.Len())
		gens[ref.Num] = ref.Gen
		fmt.Fprintf(&buf, "%d %d obj\n", ref.Num, ref.Gen)
		serializeObject(&buf, w.objects[ref])
		buf.WriteString("\nendobj\n")
	}

	maxNum := ordered[len(ordered)-1].Num
	xrefOffset := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", maxNum+1)
	buf.WriteString("0000000000 65535 f \n")
	for num := 1; num <= maxNum; num++ {
		if off, ok := offsets[num]; ok {
			fmt.Fprintf(&buf, "%010d %05d n \n", off, gens[num])
		} else {
			buf.WriteString("0000000000 65535 f \n")
		}
	}

	trailer := w.buildTrailer(maxNum + 1)
	buf.WriteString("trailer\n")
	serializeObject(&buf, trailer)
	fmt.Fprintf(&buf, "\nstartxref\n%d\n%%%%EOF\n", xrefOffset)
	return buf.Bytes(), nil
}

// buildTrailer carries /Root and /Info over from the source trailer
// and recomputes /Size. Stream-xref keys (/Type, /W, /Index, /Filter,
// /Length, /Prev, /XRefStm) do not apply to a rewritten classic table.
func (w *Writer) buildTrailer(size int) *raw.DictObj {
	trailer := raw.Dict()
	trailer.Set(raw.NameLiteral("Size"), raw.NumberInt(int64(size)))
	if w.trailer != nil {
		for _, key := range []string{"Root", "Info", "ID"} {
			if obj, ok := w.trailer.Get(raw.NameLiteral(key)); ok {
				trailer.Set(raw.NameLiteral(key), obj)
			}
		}
	}
	return trailer
}

// isSuperseded reports streams whose only job was cross-referencing
// in the source file. Their members are written as regular objects.
func isSuperseded(obj raw.Object) bool {
	stream, ok := obj.(*raw.StreamObj)
	if !ok {
		return false
	}
	t, ok := stream.Dict.Get(raw.NameLiteral("Type"))
	if !ok {
		return false
	}
	name, ok := t.(raw.NameObj)
	if !ok {
		return false
	}
	return name.Value() == "ObjStm" || name.Value() == "XRef"
}

func serializeObject(buf *bytes.Buffer, obj raw.Object) {
	switch v := obj.(type) {
	case raw.NameObj:
		buf.WriteByte('/')
		buf.WriteString(v.Value())
	case raw.NumberObj:
		if v.IsInteger() {
			fmt.Fprintf(buf, "%d", v.Int())
		} else {
			buf.WriteString(strconv.FormatFloat(v.Float(), 'f', -1, 64))
		}
	case raw.BoolObj:
		if v.Value() {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case raw.NullObj:
		buf.WriteString("null")
	case raw.StringObj:
		serializeString(buf, v.Value())
	case raw.RefObj:
		fmt.Fprintf(buf, "%d %d R", v.Ref().Num, v.Ref().Gen)
	case *raw.ArrayObj:
		buf.WriteByte('[')
		for i, item := range v.Items {
			if i > 0 {
				buf.WriteByte(' ')
			}
			serializeObject(buf, item)
		}
		buf.WriteByte(']')
	case *raw.DictObj:
		serializeDict(buf, v)
	case *raw.StreamObj:
		serializeDict(buf, v.Dict)
		buf.WriteString("\nstream\n")
		buf.Write(v.Data)
		buf.WriteString("\nendstream")
	default:
		buf.WriteString("null")
	}
}

func serializeDict(buf *bytes.Buffer, dict *raw.DictObj) {
	keys := make([]string, 0, len(dict.KV))
	for k := range dict.KV {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	buf.WriteString("<<")
	for _, k := range keys {
		buf.WriteByte('/')
		buf.WriteString(k)
		buf.WriteByte(' ')
		serializeObject(buf, dict.KV[k])
	}
	buf.WriteString(">>")
}

// serializeString writes a literal string with the three characters
// that need escaping.
func serializeString(buf *bytes.Buffer, data []byte) {
	buf.WriteByte('(')
	for _, b := range data {
		switch b {
		case '(', ')', '\\':
			buf.WriteByte('\\')
			buf.WriteByte(b)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		default:
			buf.WriteByte(b)
		}
	}
	buf.WriteByte(')')
}
