package semantic

import (
	"context"
	"fmt"

	"github.com/TimoteoRJanzen/Tradutor-PDF/filters"
	"github.com/TimoteoRJanzen/Tradutor-PDF/ir/raw"
)

type inheritedPageProps struct {
	MediaBox  *Rectangle
	CropBox   *Rectangle
	Rotate    *int
	Resources raw.Object
}

// parsePages traverses the page tree and returns a flat list of pages.
func parsePages(obj raw.Object, resolver rawResolver, inherited inheritedPageProps) ([]*Page, error) {
	var pageRef raw.ObjectRef
	if ref, ok := obj.(raw.Reference); ok {
		pageRef = ref.Ref()
		resolved, err := resolver.Resolve(pageRef)
		if err != nil {
			return nil, err
		}
		obj = resolved
	}

	dict, ok := obj.(*raw.DictObj)
	if !ok {
		return nil, fmt.Errorf("pages object is not a dictionary")
	}

	newInherited := inherited
	if mbObj, ok := dict.Get(raw.NameLiteral("MediaBox")); ok {
		if mb := parseRectangleFromObj(mbObj, resolver); mb != nil {
			newInherited.MediaBox = mb
		}
	}
	if cbObj, ok := dict.Get(raw.NameLiteral("CropBox")); ok {
		if cb := parseRectangleFromObj(cbObj, resolver); cb != nil {
			newInherited.CropBox = cb
		}
	}
	if rotObj, ok := dict.Get(raw.NameLiteral("Rotate")); ok {
		if r, ok := rotObj.(raw.NumberObj); ok {
			val := int(r.Int())
			newInherited.Rotate = &val
		}
	}
	if resObj, ok := dict.Get(raw.NameLiteral("Resources")); ok {
		newInherited.Resources = resObj
	}

	isPage := false
	if typeVal, ok := dict.Get(raw.NameLiteral("Type")); ok {
		if name, ok := typeVal.(raw.NameObj); ok && name.Value() == "Page" {
			isPage = true
		}
	} else if _, hasKids := dict.Get(raw.NameLiteral("Kids")); !hasKids {
		isPage = true
	}

	if isPage {
		page, err := parsePage(dict, resolver, newInherited)
		if err != nil {
			return nil, err
		}
		page.Ref = pageRef
		return []*Page{page}, nil
	}

	kidsObj, ok := dict.Get(raw.NameLiteral("Kids"))
	if !ok {
		return nil, fmt.Errorf("pages node missing Kids")
	}
	kidsArr, ok := resolveArray(kidsObj, resolver)
	if !ok {
		return nil, fmt.Errorf("Kids is not an array")
	}

	var pages []*Page
	for _, kid := range kidsArr.Items {
		subPages, err := parsePages(kid, resolver, newInherited)
		if err != nil {
			// Damaged kids drop out; the siblings still parse.
			continue
		}
		pages = append(pages, subPages...)
	}
	return pages, nil
}

func parsePage(dict *raw.DictObj, resolver rawResolver, inherited inheritedPageProps) (*Page, error) {
	page := &Page{Dict: dict}

	if mbObj, ok := dict.Get(raw.NameLiteral("MediaBox")); ok {
		if mb := parseRectangleFromObj(mbObj, resolver); mb != nil {
			page.MediaBox = *mb
		}
	} else if inherited.MediaBox != nil {
		page.MediaBox = *inherited.MediaBox
	} else {
		page.MediaBox = Rectangle{0, 0, 612, 792} // Letter default
	}

	if cbObj, ok := dict.Get(raw.NameLiteral("CropBox")); ok {
		if cb := parseRectangleFromObj(cbObj, resolver); cb != nil {
			page.CropBox = *cb
		}
	} else if inherited.CropBox != nil {
		page.CropBox = *inherited.CropBox
	} else {
		page.CropBox = page.MediaBox
	}

	if rotObj, ok := dict.Get(raw.NameLiteral("Rotate")); ok {
		if r, ok := rotObj.(raw.NumberObj); ok {
			page.Rotate = int(r.Int())
		}
	} else if inherited.Rotate != nil {
		page.Rotate = *inherited.Rotate
	}

	resObj, ok := dict.Get(raw.NameLiteral("Resources"))
	if !ok {
		resObj = inherited.Resources
	}
	if resObj != nil {
		res, err := parseResources(resObj, resolver)
		if err == nil {
			page.Resources = res
		}
	}

	if contentsObj, ok := dict.Get(raw.NameLiteral("Contents")); ok {
		streams, err := parseContentStreams(contentsObj, resolver)
		if err == nil {
			page.Contents = streams
		}
	}

	return page, nil
}

func resolveArray(obj raw.Object, resolver rawResolver) (*raw.ArrayObj, bool) {
	if ref, ok := obj.(raw.Reference); ok {
		resolved, err := resolver.Resolve(ref.Ref())
		if err != nil {
			return nil, false
		}
		obj = resolved
	}
	arr, ok := obj.(*raw.ArrayObj)
	return arr, ok
}

func parseNumberArray(obj raw.Object, resolver rawResolver) []float64 {
	arr, ok := resolveArray(obj, resolver)
	if !ok {
		return nil
	}
	var nums []float64
	for _, item := range arr.Items {
		if n, ok := item.(raw.NumberObj); ok {
			nums = append(nums, n.Float())
		}
	}
	return nums
}

func parseRectangleFromObj(obj raw.Object, resolver rawResolver) *Rectangle {
	nums := parseNumberArray(obj, resolver)
	if len(nums) < 4 {
		return nil
	}
	r := Rectangle{LLX: nums[0], LLY: nums[1], URX: nums[2], URY: nums[3]}
	// Normalize: some producers emit the corners swapped.
	if r.LLX > r.URX {
		r.LLX, r.URX = r.URX, r.LLX
	}
	if r.LLY > r.URY {
		r.LLY, r.URY = r.URY, r.LLY
	}
	return &r
}

func parseContentStreams(obj raw.Object, resolver rawResolver) ([]ContentStream, error) {
	var streamRef raw.ObjectRef
	if ref, ok := obj.(raw.Reference); ok {
		streamRef = ref.Ref()
		resolved, err := resolver.Resolve(streamRef)
		if err != nil {
			return nil, err
		}
		obj = resolved
	}

	if stream, ok := obj.(*raw.StreamObj); ok {
		data, err := decodeStream(stream)
		if err != nil {
			data = stream.Data
		}
		return []ContentStream{{RawBytes: data, Ref: streamRef}}, nil
	}

	if arr, ok := obj.(*raw.ArrayObj); ok {
		var streams []ContentStream
		for _, item := range arr.Items {
			var itemRef raw.ObjectRef
			if ref, ok := item.(raw.Reference); ok {
				itemRef = ref.Ref()
				resolved, err := resolver.Resolve(itemRef)
				if err != nil {
					continue
				}
				item = resolved
			}
			if stream, ok := item.(*raw.StreamObj); ok {
				data, err := decodeStream(stream)
				if err != nil {
					data = stream.Data
				}
				streams = append(streams, ContentStream{RawBytes: data, Ref: itemRef})
			}
		}
		return streams, nil
	}

	return nil, fmt.Errorf("Contents is not a stream or array, got %T", obj)
}

func decodeStream(stream *raw.StreamObj) ([]byte, error) {
	names, params := filters.ExtractFilters(stream.Dict)
	if len(names) == 0 {
		return stream.Data, nil
	}
	pipeline := filters.NewStandardPipeline(filters.Limits{MaxDecompressedSize: 100 * 1024 * 1024})
	return pipeline.Decode(context.Background(), stream.Data, names, params)
}
