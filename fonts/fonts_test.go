package fonts

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/TimoteoRJanzen/Tradutor-PDF/ir/semantic"
)

const dejaVuSans = "/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf"

func loadTestFont(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile(dejaVuSans)
	if err != nil {
		t.Skip("DejaVuSans.ttf not found, skipping test")
	}
	return data
}

func TestFaceCoverage(t *testing.T) {
	face, err := NewFace("DejaVuSans", loadTestFont(t))
	if err != nil {
		t.Fatalf("NewFace: %v", err)
	}
	if !face.Covers("Relatório de operações 2026") {
		t.Errorf("expected coverage for Portuguese text")
	}
	// DejaVu carries no CJK repertoire.
	missing := face.Missing("abc中")
	if len(missing) != 1 || missing[0] != '中' {
		t.Errorf("Missing = %q, want the ideograph only", string(missing))
	}
}

func TestFaceMetrics(t *testing.T) {
	face, err := NewFace("DejaVuSans", loadTestFont(t))
	if err != nil {
		t.Fatalf("NewFace: %v", err)
	}
	w := face.TextWidthEm("Hello")
	if w <= 0 {
		t.Errorf("TextWidthEm = %v, want positive", w)
	}
	ascent, descent := face.Extents()
	if ascent <= 0 || descent >= 0 {
		t.Errorf("Extents = %v, %v, want positive ascent and negative descent", ascent, descent)
	}
	if face.GlyphIndex('A') == 0 {
		t.Errorf("GlyphIndex('A') = 0, want real glyph")
	}
}

func TestNormalizeName(t *testing.T) {
	cases := []struct{ in, want string }{
		{"ABCDEF+TimesNewRoman", "TimesNewRoman"},
		{"Helvetica-Bold", "Helvetica"},
		{"Arial,BoldItalic", "Arial"},
		{"Courier", "Courier"},
	}
	for _, c := range cases {
		if got := NormalizeName(c.in); got != c.want {
			t.Errorf("NormalizeName(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestStyleDetection(t *testing.T) {
	if b, i := Style("Helvetica-BoldOblique", 0); !b || !i {
		t.Errorf("BoldOblique: got bold=%v italic=%v", b, i)
	}
	if b, i := Style("Times-Roman", -12); b || !i {
		t.Errorf("italic angle: got bold=%v italic=%v", b, i)
	}
	if b, i := Style("Arial", 0); b || i {
		t.Errorf("plain: got bold=%v italic=%v", b, i)
	}
}

func TestResolverEmbeddedTier(t *testing.T) {
	data := loadTestFont(t)
	r := NewResolver(Config{FallbackPaths: []string{dejaVuSans}})
	docFont := &semantic.Font{
		BaseFont: "SUBSET+DejaVuSans",
		Descriptor: &semantic.FontDescriptor{
			FontName:     "DejaVuSans",
			FontFile:     data,
			FontFileType: "FontFile2",
		},
	}
	res, err := r.Resolve(context.Background(), docFont, "Olá mundo")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Tier != TierEmbedded {
		t.Errorf("Tier = %v, want embedded", res.Tier)
	}
	if len(res.Missing) != 0 {
		t.Errorf("Missing = %q, want none", string(res.Missing))
	}
}

func TestResolverLocalTier(t *testing.T) {
	data := loadTestFont(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "MyFamily-Regular.ttf"), data, 0o644); err != nil {
		t.Fatal(err)
	}
	r := NewResolver(Config{
		Local:         NewLocalDir(dir),
		FallbackPaths: []string{dejaVuSans},
	})
	docFont := &semantic.Font{BaseFont: "MyFamily"}
	res, err := r.Resolve(context.Background(), docFont, "texto")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Tier != TierLocal {
		t.Errorf("Tier = %v, want local", res.Tier)
	}
}

func TestResolverCatalogTier(t *testing.T) {
	data := loadTestFont(t)
	fetches := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		fetches++
		if req.URL.Query().Get("family") != "RareFamily" {
			http.NotFound(w, req)
			return
		}
		w.Write(data)
	}))
	defer srv.Close()

	r := NewResolver(Config{
		Catalog:       NewHTTPCatalog(srv.URL, "test-key"),
		FallbackPaths: []string{dejaVuSans},
	})
	docFont := &semantic.Font{BaseFont: "RareFamily"}
	for i := 0; i < 3; i++ {
		res, err := r.Resolve(context.Background(), docFont, "texto")
		if err != nil {
			t.Fatalf("Resolve %d: %v", i, err)
		}
		if res.Tier != TierCatalog {
			t.Errorf("Tier = %v, want catalog", res.Tier)
		}
	}
	if fetches != 1 {
		t.Errorf("catalog fetched %d times, want 1 (cached)", fetches)
	}
}

func TestResolverCatalogWritesThroughToLocalDir(t *testing.T) {
	data := loadTestFont(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Write(data)
	}))
	defer srv.Close()

	dir := t.TempDir()
	local := NewLocalDir(dir)
	r := NewResolver(Config{
		Local:         local,
		Catalog:       NewHTTPCatalog(srv.URL, "test-key"),
		FallbackPaths: []string{dejaVuSans},
	})
	docFont := &semantic.Font{BaseFont: "RareFamily-Bold"}
	res, err := r.Resolve(context.Background(), docFont, "texto")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Tier != TierCatalog {
		t.Fatalf("Tier = %v, want catalog", res.Tier)
	}

	path := local.Find("RareFamily", true, false)
	if path == "" {
		t.Fatal("download not written through to the local dir")
	}
	if got, err := os.ReadFile(path); err != nil || !bytes.Equal(got, data) {
		t.Errorf("persisted font differs from the download (err %v)", err)
	}

	// A fresh resolver over the same directory resolves at tier 2.
	r2 := NewResolver(Config{Local: NewLocalDir(dir), FallbackPaths: []string{dejaVuSans}})
	res2, err := r2.Resolve(context.Background(), docFont, "texto")
	if err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	if res2.Tier != TierLocal {
		t.Errorf("Tier = %v, want local after write-through", res2.Tier)
	}
}

func TestResolverFallbackReportsMissing(t *testing.T) {
	loadTestFont(t)
	r := NewResolver(Config{FallbackPaths: []string{dejaVuSans}})
	docFont := &semantic.Font{BaseFont: "NoSuchFamily"}
	res, err := r.Resolve(context.Background(), docFont, "ok中")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Tier != TierFallback {
		t.Errorf("Tier = %v, want fallback", res.Tier)
	}
	if len(res.Missing) != 1 {
		t.Errorf("Missing = %q, want the ideograph", string(res.Missing))
	}
}

func TestResolverUnavailable(t *testing.T) {
	r := NewResolver(Config{FallbackPaths: []string{"/nonexistent/font.ttf"}})
	_, err := r.Resolve(context.Background(), &semantic.Font{BaseFont: "X"}, "abc")
	if !errors.Is(err, ErrFontUnavailable) {
		t.Errorf("err = %v, want ErrFontUnavailable", err)
	}
}

func TestEmbeddedFontEncoding(t *testing.T) {
	face, err := NewFace("DejaVuSans", loadTestFont(t))
	if err != nil {
		t.Fatalf("NewFace: %v", err)
	}
	ef, err := NewEmbeddedFont(face)
	if err != nil {
		t.Fatalf("NewEmbeddedFont: %v", err)
	}
	if ef.Font.Subtype != "Type0" || ef.Font.Encoding != "Identity-H" {
		t.Errorf("font = %s/%s, want Type0/Identity-H", ef.Font.Subtype, ef.Font.Encoding)
	}

	codes := ef.Encode("Ab")
	if len(codes) != 4 {
		t.Fatalf("Encode returned %d bytes, want 4", len(codes))
	}
	gidA := ef.Face.GlyphIndex('A')
	if got := uint16(codes[0])<<8 | uint16(codes[1]); got != gidA {
		t.Errorf("first code = %d, want gid %d", got, gidA)
	}
	if _, ok := ef.Font.DescendantFont.W[int(gidA)]; !ok {
		t.Errorf("width for gid %d not recorded", gidA)
	}

	ef.Finish()
	cmap := ef.Font.ToUnicodeCMap
	if !bytes.Contains(cmap, []byte("beginbfchar")) {
		t.Errorf("ToUnicode CMap missing bfchar section")
	}
	if !bytes.Contains(cmap, []byte("<0041>")) {
		t.Errorf("ToUnicode CMap missing mapping to U+0041")
	}
}

func TestEmbeddedFontSubstitutesMissingRunes(t *testing.T) {
	face, err := NewFace("DejaVuSans", loadTestFont(t))
	if err != nil {
		t.Fatalf("NewFace: %v", err)
	}
	ef, err := NewEmbeddedFont(face)
	if err != nil {
		t.Fatalf("NewEmbeddedFont: %v", err)
	}
	codes := ef.Encode("中")
	if len(codes) != 2 {
		t.Fatalf("Encode returned %d bytes, want 2", len(codes))
	}
	want := face.GlyphIndex('?')
	if got := uint16(codes[0])<<8 | uint16(codes[1]); got != want {
		t.Errorf("missing rune encoded as gid %d, want '?' gid %d", got, want)
	}
}

func TestLocalDirStyleMatch(t *testing.T) {
	data := loadTestFont(t)
	dir := t.TempDir()
	for _, name := range []string{"Fam-Regular.ttf", "Fam-Bold.ttf", "Fam-Italic.ttf"} {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	ld := NewLocalDir(dir)
	if p := ld.Find("Fam", true, false); filepath.Base(p) != "Fam-Bold.ttf" {
		t.Errorf("bold match = %q", p)
	}
	if p := ld.Find("Fam", false, true); filepath.Base(p) != "Fam-Italic.ttf" {
		t.Errorf("italic match = %q", p)
	}
	if p := ld.Find("Other", false, false); p != "" {
		t.Errorf("unknown family = %q, want empty", p)
	}
}
