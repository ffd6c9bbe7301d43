package pdf

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubResolver maps every rune onto a half em advance in the simple
// output font, so layout math is easy to verify by hand.
type stubResolver struct{ font *OutputFont }

func (s stubResolver) Resolve(r rune) Resolved {
	return Resolved{Font: s.font, ResName: LatinFontRes, Code: uint16(r), AdvEm: 0.5}
}

func newTestRegenerator(lineHeight float64) *Regenerator {
	return NewRegenerator(stubResolver{font: &OutputFont{}}, lineHeight, 1.0)
}

func singleParagraphLayout(p Paragraph, groups ...VariableGroup) *PageLayout {
	return &PageLayout{
		Paragraphs: []Paragraph{p},
		Groups:     groups,
		HasText:    true,
	}
}

func TestRenderPageWrapsLongTranslation(t *testing.T) {
	// the original box holds two lines of the translation; each stub glyph
	// advances 5pt, the right margin sits at 60
	p := Paragraph{
		X: 10, Y: 100, X0: 10, X1: 60, Y0: 90, Y1: 112,
		Size: 10, Brk: true, Text: "Hello world",
	}
	r := newTestRegenerator(1.2)

	out := r.RenderPage(singleParagraphLayout(p), []string{"Bonjour le monde"})

	assert.True(t, strings.HasPrefix(out, "BT 0 g 0 G "))
	assert.True(t, strings.HasSuffix(out, "ET "))

	// first line starts at the paragraph anchor
	assert.Contains(t, out, "1 0 0 1 10.000000 100.000000 Tm [<426f6e6a6f7572206c65>] TJ")
	// the box is 22pt tall, so 1.2 interline shrinks to 1.1 and the second
	// line drops by exactly size*1.1; its leading space collapses
	assert.Contains(t, out, "1 0 0 1 10.000000 89.000000 Tm [<6d6f6e6465>] TJ")
	assert.Contains(t, out, "/"+LatinFontRes+" 10.000000 Tf")
}

func TestRenderPageLineHeightFloor(t *testing.T) {
	// the box is far too short for two lines; the shrink loop must stop at
	// the floor and emit there rather than overlap-compress further
	p := Paragraph{
		X: 10, Y: 100, X0: 10, X1: 60, Y0: 90, Y1: 95,
		Size: 10, Brk: true, Text: "Hello world",
	}
	r := newTestRegenerator(1.1)

	out := r.RenderPage(singleParagraphLayout(p), []string{"Bonjour le monde"})

	// floor of 1.0 means the second line sits exactly one font size lower
	assert.Contains(t, out, "1 0 0 1 10.000000 90.000000 Tm [<6d6f6e6465>] TJ")
}

func TestRenderPageTokenSpliceKeepsOffsets(t *testing.T) {
	group := VariableGroup{
		Glyphs: []GlyphRecord{
			{FontID: "F3", CID: 0x12, Text: "x", Size: 8, X0: 50, Y0: 200, X1: 54, Adv: 4},
			{FontID: "F3", CID: 0x34, Text: "y", Size: 8, X0: 57, Y0: 202, X1: 61, Adv: 4},
		},
		FixDY: -3,
		Width: 12,
	}
	p := Paragraph{
		X: 10, Y: 100, X0: 10, X1: 100, Y0: 90, Y1: 112,
		Size: 10, Text: "a{v0}b",
	}
	r := newTestRegenerator(1.2)

	out := r.RenderPage(singleParagraphLayout(p, group), []string{"a{v0}b"})

	// the group re-anchors after the 'a' run with the recorded vertical
	// correction, original glyph codes and internal offsets intact
	assert.Contains(t, out, "/F3 8.000000 Tf 1 0 0 1 15.000000 97.000000 Tm [<12>] TJ")
	assert.Contains(t, out, "/F3 8.000000 Tf 1 0 0 1 22.000000 99.000000 Tm [<34>] TJ")
	// prose resumes after the group's width
	assert.Contains(t, out, "1 0 0 1 27.000000 100.000000 Tm [<62>] TJ")
}

func TestRenderPageUnknownTokenDropped(t *testing.T) {
	p := Paragraph{
		X: 10, Y: 100, X0: 10, X1: 100, Y0: 90, Y1: 112,
		Size: 10, Text: "{v0}",
	}
	r := newTestRegenerator(1.2)

	out := r.RenderPage(singleParagraphLayout(p), []string{"{v9}"})

	assert.NotContains(t, out, "TJ")
}

func TestRenderPageUnreferencedGroupKeptAtAnchor(t *testing.T) {
	group := VariableGroup{
		Glyphs: []GlyphRecord{
			{FontID: "F3", CID: 0x12, Size: 8, X0: 50, Y0: 200, X1: 54, Adv: 4},
		},
		Width: 4,
	}
	p := Paragraph{
		X: 10, Y: 100, X0: 10, X1: 100, Y0: 90, Y1: 112,
		Size: 10, Text: "{v0}",
	}
	r := newTestRegenerator(1.2)

	// the translation lost the token entirely; the group must still appear
	// at its original position
	out := r.RenderPage(singleParagraphLayout(p, group), []string{""})

	assert.Contains(t, out, "/F3 8.000000 Tf 1 0 0 1 50.000000 200.000000 Tm [<12>] TJ")
}

func TestRenderPageWithoutBodyText(t *testing.T) {
	pl := &PageLayout{
		Lines: []LineSegment{
			{X0: 10, Y0: 20, X1: 40, Y1: 20, Width: 1},
			{X0: 10, Y0: 60, X1: 40, Y1: 60, Width: 6},
		},
	}
	r := newTestRegenerator(1.2)

	out := r.RenderPage(pl, nil)

	require.True(t, strings.HasPrefix(out, "BT "))
	require.True(t, strings.HasSuffix(out, "ET "))
	// only the thin stroke survives; borders and table rules do not
	assert.Contains(t, out, "1 0 0 1 10.000000 20.000000 cm")
	assert.NotContains(t, out, "60.000000 cm")
	assert.Contains(t, out, "1.000000 w 0 0 m 30.000000 0.000000 l S")
}

func TestSourceHexWidths(t *testing.T) {
	assert.Equal(t, "1234", sourceHex(&GlyphRecord{IsCID: true, CID: 0x1234}))
	assert.Equal(t, "12", sourceHex(&GlyphRecord{CID: 0x12}))
	// codes are masked to their encoding width
	assert.Equal(t, "34", sourceHex(&GlyphRecord{CID: 0x1234}))
}
