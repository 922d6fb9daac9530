package semantic

import (
	"fmt"

	"github.com/TimoteoRJanzen/Tradutor-PDF/ir/raw"
)

func parseResources(obj raw.Object, resolver rawResolver) (*Resources, error) {
	var resRef raw.ObjectRef
	if ref, ok := obj.(raw.Reference); ok {
		resRef = ref.Ref()
	}
	dict, ok := resolveDict(obj, resolver)
	if !ok {
		return nil, fmt.Errorf("resources is not a dict")
	}

	res := &Resources{
		Fonts: make(map[string]*Font),
		Dict:  dict,
		Ref:   resRef,
	}

	if fontObj, ok := dict.Get(raw.NameLiteral("Font")); ok {
		if fontDict, ok := resolveDict(fontObj, resolver); ok {
			for name, v := range fontDict.KV {
				font, err := parseFont(v, resolver)
				if err != nil {
					continue
				}
				res.Fonts[name] = font
			}
		}
	}

	return res, nil
}

func parseFont(obj raw.Object, resolver rawResolver) (*Font, error) {
	var fontRef raw.ObjectRef
	if ref, ok := obj.(raw.Reference); ok {
		fontRef = ref.Ref()
	}
	dict, ok := resolveDict(obj, resolver)
	if !ok {
		return nil, fmt.Errorf("font is not a dict")
	}

	font := &Font{Ref: fontRef}

	if v, ok := dict.Get(raw.NameLiteral("Subtype")); ok {
		if n, ok := v.(raw.NameObj); ok {
			font.Subtype = n.Value()
		}
	}
	if v, ok := dict.Get(raw.NameLiteral("BaseFont")); ok {
		if n, ok := v.(raw.NameObj); ok {
			font.BaseFont = n.Value()
		}
	}
	if v, ok := dict.Get(raw.NameLiteral("Encoding")); ok {
		switch enc := resolveObj(v, resolver).(type) {
		case raw.NameObj:
			font.Encoding = enc.Value()
		case *raw.DictObj:
			font.EncodingDict = parseEncodingDict(enc)
			if font.EncodingDict != nil {
				font.Encoding = font.EncodingDict.BaseEncoding
			}
		}
	}

	if v, ok := dict.Get(raw.NameLiteral("ToUnicode")); ok {
		if stream, ok := resolveObj(v, resolver).(*raw.StreamObj); ok {
			if data, err := decodeStream(stream); err == nil {
				font.ToUnicodeCMap = data
			}
		}
	}

	if v, ok := dict.Get(raw.NameLiteral("FirstChar")); ok {
		if n, ok := v.(raw.NumberObj); ok {
			font.FirstChar = int(n.Int())
		}
	}
	if v, ok := dict.Get(raw.NameLiteral("Widths")); ok {
		if arr, ok := resolveArray(v, resolver); ok {
			font.Widths = make(map[int]float64, len(arr.Items))
			for i, item := range arr.Items {
				if n, ok := resolveObj(item, resolver).(raw.NumberObj); ok {
					font.Widths[font.FirstChar+i] = n.Float()
				}
			}
		}
	}

	if v, ok := dict.Get(raw.NameLiteral("FontDescriptor")); ok {
		if fd, err := parseFontDescriptor(v, resolver); err == nil {
			font.Descriptor = fd
		}
	}

	if v, ok := dict.Get(raw.NameLiteral("DescendantFonts")); ok {
		if arr, ok := resolveArray(v, resolver); ok && len(arr.Items) > 0 {
			if cid, err := parseCIDFont(arr.Items[0], resolver); err == nil {
				font.DescendantFont = cid
				if font.Descriptor == nil {
					font.Descriptor = cid.Descriptor
				}
			}
		}
	}

	return font, nil
}

func parseEncodingDict(dict *raw.DictObj) *EncodingDict {
	ed := &EncodingDict{}
	if v, ok := dict.Get(raw.NameLiteral("BaseEncoding")); ok {
		if n, ok := v.(raw.NameObj); ok {
			ed.BaseEncoding = n.Value()
		}
	}
	if v, ok := dict.Get(raw.NameLiteral("Differences")); ok {
		if arr, ok := v.(*raw.ArrayObj); ok {
			code := 0
			for _, item := range arr.Items {
				switch t := item.(type) {
				case raw.NumberObj:
					code = int(t.Int())
				case raw.NameObj:
					ed.Differences = append(ed.Differences, EncodingDifference{Code: code, Name: t.Value()})
					code++
				}
			}
		}
	}
	return ed
}

func parseCIDFont(obj raw.Object, resolver rawResolver) (*CIDFont, error) {
	dict, ok := resolveDict(obj, resolver)
	if !ok {
		return nil, fmt.Errorf("descendant font is not a dict")
	}
	cid := &CIDFont{DW: 1000}

	if v, ok := dict.Get(raw.NameLiteral("Subtype")); ok {
		if n, ok := v.(raw.NameObj); ok {
			cid.Subtype = n.Value()
		}
	}
	if v, ok := dict.Get(raw.NameLiteral("BaseFont")); ok {
		if n, ok := v.(raw.NameObj); ok {
			cid.BaseFont = n.Value()
		}
	}
	if v, ok := dict.Get(raw.NameLiteral("CIDSystemInfo")); ok {
		if csi, ok := resolveDict(v, resolver); ok {
			if r, ok := csi.Get(raw.NameLiteral("Registry")); ok {
				if s, ok := r.(raw.StringObj); ok {
					cid.CIDSystemInfo.Registry = string(s.Value())
				}
			}
			if o, ok := csi.Get(raw.NameLiteral("Ordering")); ok {
				if s, ok := o.(raw.StringObj); ok {
					cid.CIDSystemInfo.Ordering = string(s.Value())
				}
			}
			if s, ok := csi.Get(raw.NameLiteral("Supplement")); ok {
				if n, ok := s.(raw.NumberObj); ok {
					cid.CIDSystemInfo.Supplement = int(n.Int())
				}
			}
		}
	}
	if v, ok := dict.Get(raw.NameLiteral("DW")); ok {
		if n, ok := v.(raw.NumberObj); ok {
			cid.DW = n.Float()
		}
	}
	if v, ok := dict.Get(raw.NameLiteral("W")); ok {
		if arr, ok := resolveArray(v, resolver); ok {
			cid.W = parseCIDWidths(arr, resolver)
		}
	}
	if v, ok := dict.Get(raw.NameLiteral("FontDescriptor")); ok {
		if fd, err := parseFontDescriptor(v, resolver); err == nil {
			cid.Descriptor = fd
		}
	}
	return cid, nil
}

// parseCIDWidths expands the two W array forms:
//
//	c [w1 w2 ...]   widths for consecutive CIDs starting at c
//	c1 c2 w         the same width for every CID in c1..c2
func parseCIDWidths(arr *raw.ArrayObj, resolver rawResolver) map[int]float64 {
	widths := make(map[int]float64)
	i := 0
	for i < len(arr.Items) {
		start, ok := resolveObj(arr.Items[i], resolver).(raw.NumberObj)
		if !ok {
			break
		}
		i++
		if i >= len(arr.Items) {
			break
		}
		switch next := resolveObj(arr.Items[i], resolver).(type) {
		case *raw.ArrayObj:
			for j, item := range next.Items {
				if n, ok := item.(raw.NumberObj); ok {
					widths[int(start.Int())+j] = n.Float()
				}
			}
			i++
		case raw.NumberObj:
			if i+1 >= len(arr.Items) {
				return widths
			}
			w, ok := resolveObj(arr.Items[i+1], resolver).(raw.NumberObj)
			if !ok {
				return widths
			}
			for c := int(start.Int()); c <= int(next.Int()); c++ {
				widths[c] = w.Float()
			}
			i += 2
		default:
			return widths
		}
	}
	return widths
}

func parseFontDescriptor(obj raw.Object, resolver rawResolver) (*FontDescriptor, error) {
	dict, ok := resolveDict(obj, resolver)
	if !ok {
		return nil, fmt.Errorf("font descriptor is not a dict")
	}
	fd := &FontDescriptor{}

	if v, ok := dict.Get(raw.NameLiteral("FontName")); ok {
		if n, ok := v.(raw.NameObj); ok {
			fd.FontName = n.Value()
		}
	}
	num := func(key string) float64 {
		if v, ok := dict.Get(raw.NameLiteral(key)); ok {
			if n, ok := v.(raw.NumberObj); ok {
				return n.Float()
			}
		}
		return 0
	}
	fd.ItalicAngle = num("ItalicAngle")
	fd.Ascent = num("Ascent")
	fd.Descent = num("Descent")
	fd.CapHeight = num("CapHeight")
	fd.Flags = int(num("Flags"))
	fd.StemV = int(num("StemV"))

	if v, ok := dict.Get(raw.NameLiteral("FontBBox")); ok {
		nums := parseNumberArray(v, resolver)
		if len(nums) >= 4 {
			copy(fd.FontBBox[:], nums[:4])
		}
	}

	for _, key := range []string{"FontFile", "FontFile2", "FontFile3"} {
		if v, ok := dict.Get(raw.NameLiteral(key)); ok {
			if stream, ok := resolveObj(v, resolver).(*raw.StreamObj); ok {
				if data, err := decodeStream(stream); err == nil {
					fd.FontFile = data
					fd.FontFileType = key
				}
			}
			break
		}
	}

	return fd, nil
}

func resolveObj(obj raw.Object, resolver rawResolver) raw.Object {
	if ref, ok := obj.(raw.Reference); ok {
		resolved, err := resolver.Resolve(ref.Ref())
		if err != nil {
			return nil
		}
		return resolved
	}
	return obj
}
