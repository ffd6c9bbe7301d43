package pdf

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"

	"pdf-translator/internal/logger"
	"pdf-translator/internal/types"
)

// Resource names under which the two output fonts are injected into every
// page. Chosen to be unlikely to collide with source document font ids.
const (
	LatinFontRes  = "PTlat"
	TargetFontRes = "PTtgt"
)

// glyphQuantum is the ppem at which glyph advances are measured, so raw
// advances come back in thousandths of an em.
const glyphQuantum = 1000

// OutputFont wraps a parsed TrueType font used for regenerated text. The
// Latin font is embedded as a simple one-byte font, the target script font
// as a CID keyed font addressed by glyph id.
type OutputFont struct {
	name string
	data []byte
	fnt  *sfnt.Font
	cid  bool

	mu  sync.Mutex
	buf sfnt.Buffer
}

// LoadOutputFont parses the font program at path. cid selects two-byte
// glyph-id addressing for the embedded font.
func LoadOutputFont(path string, cid bool) (*OutputFont, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.NewAppError(types.ErrResource, "cannot read font file", err)
	}
	fnt, err := sfnt.Parse(data)
	if err != nil {
		return nil, types.NewAppError(types.ErrResource, "cannot parse font file", err)
	}
	f := &OutputFont{data: data, fnt: fnt, cid: cid}
	name, err := fnt.Name(&f.buf, sfnt.NameIDPostScript)
	if err != nil || name == "" {
		name = strings.TrimSuffix(strings.ReplaceAll(path, "/", "-"), ".ttf")
	}
	f.name = sanitizeFontName(name)
	return f, nil
}

// Name returns the PostScript name used as BaseFont.
func (f *OutputFont) Name() string { return f.name }

// IsCID reports whether the embedded font uses two-byte codes.
func (f *OutputFont) IsCID() bool { return f.cid }

// Data returns the raw font program bytes.
func (f *OutputFont) Data() []byte { return f.data }

// GlyphIndex returns the glyph id for r, or 0 when the font has no glyph.
func (f *OutputFont) GlyphIndex(r rune) uint16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	gi, err := f.fnt.GlyphIndex(&f.buf, r)
	if err != nil {
		return 0
	}
	return uint16(gi)
}

// AdvanceEm returns r's advance width as a fraction of the em square, and
// whether the font can render r at all.
func (f *OutputFont) AdvanceEm(r rune) (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	gi, err := f.fnt.GlyphIndex(&f.buf, r)
	if err != nil || gi == 0 {
		return 0, false
	}
	adv, err := f.fnt.GlyphAdvance(&f.buf, gi, fixed.I(glyphQuantum), font.HintingNone)
	if err != nil {
		return 0, false
	}
	return float64(adv) / 64 / glyphQuantum, true
}

// GlyphAdvanceUnits returns the advance of glyph id gid in thousandths of
// an em, the unit PDF width arrays use.
func (f *OutputFont) GlyphAdvanceUnits(gid uint16) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	adv, err := f.fnt.GlyphAdvance(&f.buf, sfnt.GlyphIndex(gid), fixed.I(glyphQuantum), font.HintingNone)
	if err != nil {
		return 0
	}
	return int(adv) / 64
}

// Metrics returns ascent and descent in thousandths of an em.
func (f *OutputFont) Metrics() (ascent, descent int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, err := f.fnt.Metrics(&f.buf, fixed.I(glyphQuantum), font.HintingNone)
	if err != nil {
		return 800, -200
	}
	return int(m.Ascent) / 64, -int(m.Descent) / 64
}

func sanitizeFontName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if r > 32 && r < 127 && r != '/' && r != '(' && r != ')' && r != '<' && r != '>' && r != '[' && r != ']' && r != '#' && r != '%' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "EmbeddedFont"
	}
	return b.String()
}

// latinEncodable reports whether r maps to a single WinAnsi byte equal to
// its code point. The 0x80-0x9F window differs between WinAnsi and Unicode
// and is excluded so codes always round-trip.
func latinEncodable(r rune) bool {
	return r <= 0xFF && (r < 0x80 || r > 0x9F)
}

// FontSelector resolves each output character to one of the two embedded
// fonts, preferring the Latin font whenever it can render the character and
// the character survives the one-byte encoding round trip. It also records
// which target-font glyphs were actually used so the CID width array can be
// finalized at document write time.
type FontSelector struct {
	Latin  *OutputFont
	Target *OutputFont

	mu   sync.Mutex
	used map[uint16]int // gid -> advance in thousandths of an em
}

// NewFontSelector builds a selector over the two output fonts.
func NewFontSelector(latin, target *OutputFont) *FontSelector {
	return &FontSelector{Latin: latin, Target: target, used: make(map[uint16]int)}
}

// Resolved is the outcome of resolving one character.
type Resolved struct {
	Font    *OutputFont
	ResName string
	Code    uint16  // byte code for the Latin font, glyph id otherwise
	AdvEm   float64 // advance as a fraction of the em square
}

// Resolve picks an output font for r. Characters neither font can render
// fall back to the target font's notdef glyph so no character is dropped.
func (s *FontSelector) Resolve(r rune) Resolved {
	if latinEncodable(r) {
		if adv, ok := s.Latin.AdvanceEm(r); ok {
			return Resolved{Font: s.Latin, ResName: LatinFontRes, Code: uint16(r), AdvEm: adv}
		}
	}
	gid := s.Target.GlyphIndex(r)
	adv, ok := s.Target.AdvanceEm(r)
	if !ok {
		logger.Debug("no glyph for character, using notdef",
			logger.String("char", string(r)))
		gid = 0
		adv = 0.5
	}
	units := int(adv * glyphQuantum)
	s.mu.Lock()
	s.used[gid] = units
	s.mu.Unlock()
	return Resolved{Font: s.Target, ResName: TargetFontRes, Code: gid, AdvEm: adv}
}

// UsedGlyphs snapshots the target-font glyphs recorded so far, keyed by
// glyph id with advances in thousandths of an em.
func (s *FontSelector) UsedGlyphs() map[uint16]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uint16]int, len(s.used))
	for gid, w := range s.used {
		out[gid] = w
	}
	return out
}

// EncodeCode renders one resolved code as hex for a TJ string literal,
// two digits for the simple Latin font and four for the CID target font.
func EncodeCode(f *OutputFont, code uint16) string {
	if f.IsCID() {
		return fmt.Sprintf("%04x", code)
	}
	return fmt.Sprintf("%02x", code)
}
