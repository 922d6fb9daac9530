package raw

import "testing"

func TestResolveChain(t *testing.T) {
	doc := &Document{Objects: map[ObjectRef]Object{
		{Num: 1, Gen: 0}: Ref(2, 0),
		{Num: 2, Gen: 0}: NumberInt(42),
	}}
	obj := doc.Resolve(Ref(1, 0))
	num, ok := obj.(Number)
	if !ok || num.Int() != 42 {
		t.Fatalf("Resolve = %v, want number 42", obj)
	}
}

func TestResolveMissing(t *testing.T) {
	doc := &Document{Objects: map[ObjectRef]Object{}}
	if got := doc.Resolve(Ref(9, 0)); got != nil {
		t.Fatalf("Resolve missing = %v, want nil", got)
	}
}

func TestResolveCycle(t *testing.T) {
	doc := &Document{Objects: map[ObjectRef]Object{
		{Num: 1, Gen: 0}: Ref(2, 0),
		{Num: 2, Gen: 0}: Ref(1, 0),
	}}
	if got := doc.Resolve(Ref(1, 0)); got != nil {
		t.Fatalf("Resolve cycle = %v, want nil", got)
	}
}

func TestResolveKey(t *testing.T) {
	d := Dict()
	d.Set(NameLiteral("Length"), Ref(3, 0))
	doc := &Document{Objects: map[ObjectRef]Object{
		{Num: 3, Gen: 0}: NumberInt(512),
	}}
	obj, ok := doc.ResolveKey(d, "Length")
	if !ok {
		t.Fatal("ResolveKey returned not found")
	}
	if num := obj.(Number); num.Int() != 512 {
		t.Fatalf("ResolveKey = %v, want 512", num.Int())
	}
	if _, ok := doc.ResolveKey(d, "Missing"); ok {
		t.Fatal("expected not found for missing key")
	}
}

func TestDictSetGet(t *testing.T) {
	d := Dict()
	d.Set(NameLiteral("Type"), NameLiteral("Page"))
	got, ok := d.Get(NameLiteral("Type"))
	if !ok {
		t.Fatal("Get returned not found")
	}
	if name := got.(Name); name.Value() != "Page" {
		t.Fatalf("Get = %q, want Page", name.Value())
	}
	if d.Len() != 1 {
		t.Fatalf("Len = %d, want 1", d.Len())
	}
}
