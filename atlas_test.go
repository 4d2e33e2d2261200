package vkr

import (
	"image"
	"testing"

	"golang.org/x/image/font/gofont/goregular"
)

func TestOpenTypeBackendRasterize(t *testing.T) {
	backend, err := NewOpenTypeBackend(goregular.TTF)
	if err != nil {
		t.Fatalf("unable to parse goregular: %v", err)
	}

	bitmap, ok := backend.Rasterize('A', 32)
	if !ok {
		t.Fatal("font has no glyph for 'A'")
	}
	if bitmap.Width <= 0 || bitmap.Height <= 0 {
		t.Fatalf("expected nonzero bitmap, got %dx%d", bitmap.Width, bitmap.Height)
	}
	if len(bitmap.Alpha) != bitmap.Width*bitmap.Height {
		t.Fatalf("alpha length %d does not match %dx%d", len(bitmap.Alpha), bitmap.Width, bitmap.Height)
	}
	if bitmap.Advance <= 0 {
		t.Errorf("expected positive advance, got %f", bitmap.Advance)
	}

	var coverage int
	for _, a := range bitmap.Alpha {
		if a > 0 {
			coverage++
		}
	}
	if coverage == 0 {
		t.Error("rasterized 'A' has no coverage")
	}
}

func TestOpenTypeBackendMetrics(t *testing.T) {
	backend, err := NewOpenTypeBackend(goregular.TTF)
	if err != nil {
		t.Fatalf("unable to parse goregular: %v", err)
	}

	m := backend.Metrics(32)
	if m.Ascent <= 0 {
		t.Errorf("expected positive ascent, got %f", m.Ascent)
	}
	if m.LineHeight < m.Ascent {
		t.Errorf("line height %f below ascent %f", m.LineHeight, m.Ascent)
	}
}

func TestNewOpenTypeBackendRejectsGarbage(t *testing.T) {
	if _, err := NewOpenTypeBackend([]byte("not a font")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestPackGlyphs(t *testing.T) {
	bitmaps := []GlyphBitmap{
		{Rune: 'a', Width: 20, Height: 24},
		{Rune: 'b', Width: 300, Height: 40},
		{Rune: 'c', Width: 250, Height: 38},
		{Rune: 'd', Width: 10, Height: 12},
		{Rune: 'e', Width: 0, Height: 0},
	}

	positions, used, err := packGlyphs(bitmaps)
	if err != nil {
		t.Fatalf("packGlyphs failed: %v", err)
	}
	if len(positions) != len(bitmaps) {
		t.Fatalf("expected %d positions, got %d", len(bitmaps), len(positions))
	}

	rects := make([]image.Rectangle, len(bitmaps))
	for i, b := range bitmaps {
		r := image.Rect(positions[i].X, positions[i].Y,
			positions[i].X+b.Width, positions[i].Y+b.Height)
		if r.Min.X < 0 || r.Min.Y < 0 || r.Max.X > AtlasWidth || r.Max.Y > used {
			t.Errorf("glyph %q at %v escapes the %dx%d atlas", b.Rune, r, AtlasWidth, used)
		}
		rects[i] = r
	}

	for i := range rects {
		for j := i + 1; j < len(rects); j++ {
			if rects[i].Overlaps(rects[j]) {
				t.Errorf("glyphs %q and %q overlap: %v vs %v",
					bitmaps[i].Rune, bitmaps[j].Rune, rects[i], rects[j])
			}
		}
	}
}

func TestPackGlyphsWrapsShelves(t *testing.T) {
	// Three 200px glyphs cannot share one 512px shelf.
	bitmaps := []GlyphBitmap{
		{Rune: 'a', Width: 200, Height: 30},
		{Rune: 'b', Width: 200, Height: 30},
		{Rune: 'c', Width: 200, Height: 30},
	}

	positions, used, err := packGlyphs(bitmaps)
	if err != nil {
		t.Fatalf("packGlyphs failed: %v", err)
	}

	var secondShelf bool
	for _, p := range positions {
		if p.Y > glyphPadding {
			secondShelf = true
		}
	}
	if !secondShelf {
		t.Error("expected a glyph on a second shelf")
	}
	if used < 2*30 {
		t.Errorf("used height %d too small for two shelves", used)
	}
}

func TestPackGlyphsTooWide(t *testing.T) {
	if _, _, err := packGlyphs([]GlyphBitmap{{Rune: 'x', Width: AtlasWidth, Height: 10}}); err == nil {
		t.Fatal("expected error for glyph wider than atlas")
	}
}
