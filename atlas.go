package vkr

import (
	"fmt"
	"image"
	"image/draw"
	"sort"

	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"

	vk "github.com/vulkan-go/vulkan"
)

// AtlasWidth is the fixed width of generated font atlases. Height grows
// to the next power of two that fits the packed glyphs.
const AtlasWidth = 512

const glyphPadding = 1

// GlyphBitmap is a rasterized glyph as produced by a FontBackend:
// coverage values with metrics in pixels, bearings relative to the pen
// position on the baseline.
type GlyphBitmap struct {
	Rune          rune
	Alpha         []byte
	Width, Height int
	BearingX      int
	BearingY      int
	Advance       float32
}

// FontMetrics are the vertical metrics of a font at a given pixel
// height.
type FontMetrics struct {
	Ascent     float32
	Descent    float32
	LineHeight float32
}

// FontBackend rasterizes glyphs for atlas construction. Implementations
// are explicit values handed to BuildFontAtlas; nothing in this package
// holds global font state.
type FontBackend interface {
	// Rasterize renders one glyph at the given pixel height. ok is
	// false when the font has no glyph for the rune.
	Rasterize(r rune, heightPx int) (GlyphBitmap, bool)

	// Kerning returns the pen adjustment between two runes in pixels.
	Kerning(heightPx int, r0, r1 rune) float32

	// Metrics returns the font's vertical metrics at the given pixel
	// height.
	Metrics(heightPx int) FontMetrics
}

// OpenTypeBackend implements FontBackend on top of the x/image opentype
// rasterizer.
type OpenTypeBackend struct {
	Font *sfnt.Font

	faces map[int]font.Face
}

// NewOpenTypeBackend parses TTF or OTF bytes into a backend.
func NewOpenTypeBackend(data []byte) (*OpenTypeBackend, error) {
	parsed, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("unable to parse font: %w", err)
	}
	return &OpenTypeBackend{Font: parsed, faces: make(map[int]font.Face)}, nil
}

// face returns a cached face for the pixel height. At 72 DPI point size
// equals pixel size.
func (b *OpenTypeBackend) face(heightPx int) (font.Face, error) {
	if face, ok := b.faces[heightPx]; ok {
		return face, nil
	}
	face, err := opentype.NewFace(b.Font, &opentype.FaceOptions{
		Size:    float64(heightPx),
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create %dpx face: %w", heightPx, err)
	}
	b.faces[heightPx] = face
	return face, nil
}

func (b *OpenTypeBackend) Rasterize(r rune, heightPx int) (GlyphBitmap, bool) {
	face, err := b.face(heightPx)
	if err != nil {
		return GlyphBitmap{}, false
	}

	dr, mask, maskp, advance, ok := face.Glyph(fixed.Point26_6{}, r)
	if !ok {
		return GlyphBitmap{}, false
	}

	width, height := dr.Dx(), dr.Dy()
	bitmap := GlyphBitmap{
		Rune:     r,
		Width:    width,
		Height:   height,
		BearingX: dr.Min.X,
		BearingY: -dr.Min.Y,
		Advance:  float32(advance) / 64,
	}

	if width > 0 && height > 0 {
		dst := image.NewAlpha(image.Rect(0, 0, width, height))
		draw.Draw(dst, dst.Bounds(), mask, maskp, draw.Src)
		bitmap.Alpha = dst.Pix
	}

	return bitmap, true
}

func (b *OpenTypeBackend) Kerning(heightPx int, r0, r1 rune) float32 {
	face, err := b.face(heightPx)
	if err != nil {
		return 0
	}
	return float32(face.Kern(r0, r1)) / 64
}

func (b *OpenTypeBackend) Metrics(heightPx int) FontMetrics {
	face, err := b.face(heightPx)
	if err != nil {
		return FontMetrics{}
	}
	m := face.Metrics()
	return FontMetrics{
		Ascent:     float32(m.Ascent) / 64,
		Descent:    float32(m.Descent) / 64,
		LineHeight: float32(m.Height) / 64,
	}
}

// Glyph is one atlas entry. UV is the glyph's rectangle in normalized
// atlas coordinates {u0, v0, u1, v1}; Bearing is the offset from the
// pen position on the baseline to the glyph's top left in pixels.
type Glyph struct {
	Rune    rune
	Size    [2]float32
	Bearing [2]float32
	Advance float32
	UV      [4]float32
}

// FontAtlas packs rasterized glyphs into one texture for text
// rendering. Pixels are white with glyph coverage in alpha, so text
// color comes from vertex color or a push constant.
type FontAtlas struct {
	Texture *Texture
	Glyphs  map[rune]Glyph
	Metrics FontMetrics

	backend  FontBackend
	heightPx int
}

// packGlyphs shelf-packs the bitmaps into an AtlasWidth wide area and
// returns each bitmap's top-left position plus the total height used.
// Bitmaps are packed tallest first to keep shelves dense.
func packGlyphs(bitmaps []GlyphBitmap) ([]image.Point, int, error) {
	order := make([]int, len(bitmaps))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return bitmaps[order[a]].Height > bitmaps[order[b]].Height
	})

	positions := make([]image.Point, len(bitmaps))

	x, y, shelfHeight := glyphPadding, glyphPadding, 0
	for _, idx := range order {
		b := &bitmaps[idx]
		if b.Width+2*glyphPadding > AtlasWidth {
			return nil, 0, fmt.Errorf("glyph %q is wider than the atlas", b.Rune)
		}

		if x+b.Width+glyphPadding > AtlasWidth {
			x = glyphPadding
			y += shelfHeight + glyphPadding
			shelfHeight = 0
		}

		positions[idx] = image.Point{X: x, Y: y}
		x += b.Width + glyphPadding
		if b.Height > shelfHeight {
			shelfHeight = b.Height
		}
	}

	return positions, y + shelfHeight + glyphPadding, nil
}

// BuildFontAtlas rasterizes the given runes at heightPx through the
// backend and uploads them as a single texture. Runes the font cannot
// render are skipped.
func (t *TransferContext) BuildFontAtlas(backend FontBackend, heightPx int, runes []rune) (*FontAtlas, error) {
	if heightPx <= 0 {
		return nil, fmt.Errorf("invalid atlas glyph height %d", heightPx)
	}

	bitmaps := make([]GlyphBitmap, 0, len(runes))
	for _, r := range runes {
		bitmap, ok := backend.Rasterize(r, heightPx)
		if !ok {
			continue
		}
		bitmaps = append(bitmaps, bitmap)
	}
	if len(bitmaps) == 0 {
		return nil, fmt.Errorf("no renderable glyphs among %d runes", len(runes))
	}

	positions, usedHeight, err := packGlyphs(bitmaps)
	if err != nil {
		return nil, err
	}
	atlasHeight := nextPow2(usedHeight)

	pixels := image.NewRGBA(image.Rect(0, 0, AtlasWidth, atlasHeight))
	glyphs := make(map[rune]Glyph, len(bitmaps))

	for i := range bitmaps {
		b := &bitmaps[i]
		pos := positions[i]

		for row := 0; row < b.Height; row++ {
			for col := 0; col < b.Width; col++ {
				a := b.Alpha[row*b.Width+col]
				offset := pixels.PixOffset(pos.X+col, pos.Y+row)
				pixels.Pix[offset+0] = 0xff
				pixels.Pix[offset+1] = 0xff
				pixels.Pix[offset+2] = 0xff
				pixels.Pix[offset+3] = a
			}
		}

		glyphs[b.Rune] = Glyph{
			Rune:    b.Rune,
			Size:    [2]float32{float32(b.Width), float32(b.Height)},
			Bearing: [2]float32{float32(b.BearingX), float32(b.BearingY)},
			Advance: b.Advance,
			UV: [4]float32{
				float32(pos.X) / AtlasWidth,
				float32(pos.Y) / float32(atlasHeight),
				float32(pos.X+b.Width) / AtlasWidth,
				float32(pos.Y+b.Height) / float32(atlasHeight),
			},
		}
	}

	texture, err := t.CreateTexture(pixels, &TextureCreateInfo{
		AddressMode: vk.SamplerAddressModeClampToEdge,
		NoMipMaps:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to upload font atlas: %w", err)
	}

	return &FontAtlas{
		Texture:  texture,
		Glyphs:   glyphs,
		Metrics:  backend.Metrics(heightPx),
		backend:  backend,
		heightPx: heightPx,
	}, nil
}

// Kern returns the pen adjustment between two runes in pixels.
func (a *FontAtlas) Kern(r0, r1 rune) float32 {
	return a.backend.Kerning(a.heightPx, r0, r1)
}

// MeasureString returns the pen advance of drawing s, including
// kerning.
func (a *FontAtlas) MeasureString(s string) float32 {
	var width float32
	var prev rune
	for i, r := range s {
		if i > 0 {
			width += a.Kern(prev, r)
		}
		if g, ok := a.Glyphs[r]; ok {
			width += g.Advance
		}
		prev = r
	}
	return width
}

func (a *FontAtlas) Destroy() {
	a.Texture.Destroy()
}
