// Package raw defines the object model for a parsed PDF file: the
// eight object types of PDF 7.3 and the Document container that maps
// indirect references to their objects.
package raw

import "fmt"

// ObjectRef uniquely identifies an indirect PDF object.
type ObjectRef struct {
	Num int
	Gen int
}

func (r ObjectRef) String() string { return fmt.Sprintf("%d %d R", r.Num, r.Gen) }

// Object is the base interface for all raw PDF objects.
type Object interface {
	Type() string
	IsIndirect() bool
}

// Dictionary represents a PDF dictionary object.
type Dictionary interface {
	Object
	Get(key Name) (Object, bool)
	Set(key Name, value Object)
	Keys() []Name
	Len() int
}

// Array represents a PDF array object.
type Array interface {
	Object
	Get(index int) (Object, bool)
	Len() int
	Append(obj Object)
}

// Stream represents a raw (undecoded) PDF stream.
type Stream interface {
	Object
	Dictionary() Dictionary
	RawData() []byte
	Length() int64
}

// Name represents a PDF name object.
type Name interface {
	Object
	Value() string
}

// String represents a PDF string (literal or hex).
type String interface {
	Object
	Value() []byte
	IsHex() bool
}

// Number represents a PDF numeric value.
type Number interface {
	Object
	Int() int64
	Float() float64
	IsInteger() bool
}

// Boolean represents a PDF boolean.
type Boolean interface {
	Object
	Value() bool
}

// Null represents the PDF null object.
type Null interface{ Object }

// Reference represents an indirect object reference.
type Reference interface {
	Object
	Ref() ObjectRef
}

// DocumentMetadata contains common PDF info fields.
type DocumentMetadata struct {
	Producer string
	Creator  string
	Title    string
	Author   string
	Subject  string
}

// Document is the root container for raw PDF objects.
type Document struct {
	Objects   map[ObjectRef]Object
	Trailer   Dictionary
	Version   string // e.g., "1.7"
	Metadata  DocumentMetadata
	Encrypted bool
}

// Resolve follows reference chains until a non-reference object is
// reached. Missing targets resolve to nil.
func (d *Document) Resolve(obj Object) Object {
	for i := 0; i < 32; i++ {
		ref, ok := obj.(Reference)
		if !ok {
			return obj
		}
		obj, ok = d.Objects[ref.Ref()]
		if !ok {
			return nil
		}
	}
	return nil
}

// ResolveKey looks up key in dict and resolves the result.
func (d *Document) ResolveKey(dict Dictionary, key string) (Object, bool) {
	if dict == nil {
		return nil, false
	}
	obj, ok := dict.Get(NameLiteral(key))
	if !ok {
		return nil, false
	}
	resolved := d.Resolve(obj)
	if resolved == nil {
		return nil, false
	}
	return resolved, true
}
