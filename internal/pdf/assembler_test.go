package pdf

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf-translator/internal/layout"
)

const (
	testPageW = 400.0
	testPageH = 400.0
)

// bodyMask classifies the whole page as body text.
func bodyMask() *layout.RegionMask {
	return layout.BuildMask(nil, int(testPageW), int(testPageH), testPageW, testPageH)
}

// formulaMask paints one full-height vertical band [x0, x1) as an
// isolated formula region.
func formulaMask(x0, x1 float64) *layout.RegionMask {
	dets := []layout.Detection{{
		Box:        layout.Box{X0: x0, Y0: 0, X1: x1, Y1: testPageH},
		Class:      8,
		Label:      "isolate_formula",
		Confidence: 0.9,
	}}
	return layout.BuildMask(dets, int(testPageW), int(testPageH), testPageW, testPageH)
}

func glyph(text string, x, y, size float64) StreamItem {
	adv := size * 0.5
	cid := 0
	if text != "" {
		cid = int([]rune(text)[0])
	}
	return StreamItem{Glyph: &GlyphRecord{
		PageID:   1,
		FontID:   "F1",
		FontName: "Times-Roman",
		CID:      cid,
		Text:     text,
		Size:     size,
		X0:       x,
		Y0:       y,
		X1:       x + adv,
		Y1:       y + size,
		Adv:      adv,
	}}
}

func assemble(mask *layout.RegionMask, items ...StreamItem) *PageLayout {
	a := NewAssembler(mask, testPageW, nil)
	for _, it := range items {
		a.Observe(it)
	}
	return a.Finish()
}

func TestAssemblerSimpleParagraph(t *testing.T) {
	pl := assemble(bodyMask(),
		glyph("H", 10, 100, 10),
		glyph("i", 15, 100, 10),
	)

	require.Len(t, pl.Paragraphs, 1)
	assert.Equal(t, "Hi", pl.Paragraphs[0].Text)
	assert.Empty(t, pl.Groups)
	assert.True(t, pl.HasText)
	assert.Equal(t, 10.0, pl.Paragraphs[0].X)
	assert.Equal(t, 100.0, pl.Paragraphs[0].Y)
}

func TestAssemblerWordSpacingAndHardBreak(t *testing.T) {
	pl := assemble(bodyMask(),
		glyph("a", 10, 100, 10),
		// gap larger than one point synthesizes a space
		glyph("b", 30, 100, 10),
		// leftward jump: wrapped line, sets the hard break flag
		glyph("c", 10, 88, 10),
	)

	require.Len(t, pl.Paragraphs, 1)
	assert.Equal(t, "a b c", pl.Paragraphs[0].Text)
	assert.True(t, pl.Paragraphs[0].Brk)
}

func TestAssemblerFormulaRegionGrouping(t *testing.T) {
	// "E = m c 2" where "m c 2" sits in a formula region; "=" is grouped
	// by its symbol category
	pl := assemble(formulaMask(100, 200),
		glyph("E", 10, 100, 10),
		glyph("=", 20, 100, 10),
		glyph("m", 110, 100, 10),
		glyph("c", 120, 100, 10),
		glyph("2", 130, 100, 10),
	)

	require.Len(t, pl.Groups, 2)
	assert.Equal(t, "=", pl.Groups[0].Glyphs[0].Text)
	require.Len(t, pl.Groups[1].Glyphs, 3)
	assert.Equal(t, "m", pl.Groups[1].Glyphs[0].Text)
	assert.Equal(t, "2", pl.Groups[1].Glyphs[2].Text)

	// relative offsets inside the group are the original ones
	assert.InDelta(t, 10.0, pl.Groups[1].Glyphs[1].X0-pl.Groups[1].Glyphs[0].X0, 1e-9)
	assert.InDelta(t, 20.0, pl.Groups[1].Glyphs[2].X0-pl.Groups[1].Glyphs[0].X0, 1e-9)

	// the paragraphs reference both groups by token
	all := strings.Join([]string{pl.Paragraphs[0].Text, pl.Paragraphs[len(pl.Paragraphs)-1].Text}, " ")
	assert.Contains(t, all, "{v0}")
	assert.Contains(t, all, "{v1}")
}

func TestAssemblerEveryGlyphAccountedFor(t *testing.T) {
	items := []StreamItem{
		glyph("a", 10, 100, 10),
		glyph("b", 15, 100, 10),
		glyph("∑", 20, 100, 10), // math symbol, grouped
		glyph("c", 25, 100, 10),
		glyph("x", 110, 100, 10), // formula region, grouped
		glyph("d", 210, 100, 10),
	}
	pl := assemble(formulaMask(100, 200), items...)

	grouped := 0
	for _, g := range pl.Groups {
		grouped += len(g.Glyphs)
	}
	tokenRe := regexp.MustCompile(`\{\s*v[\d\s]+\}`)
	textChars := 0
	for _, p := range pl.Paragraphs {
		stripped := tokenRe.ReplaceAllString(p.Text, "")
		textChars += len([]rune(strings.ReplaceAll(stripped, " ", "")))
	}
	assert.Equal(t, len(items), grouped+textChars,
		"each glyph belongs to exactly one paragraph or one group")
}

func TestAssemblerSubscriptRouting(t *testing.T) {
	pl := assemble(bodyMask(),
		glyph("a", 10, 100, 10),
		glyph("b", 15, 100, 10),
		glyph("c", 20, 100, 10),
		// much smaller than the dominant size: subscript
		glyph("i", 25, 98, 6),
		glyph("d", 28, 100, 10),
	)

	require.Len(t, pl.Groups, 1)
	assert.Equal(t, "i", pl.Groups[0].Glyphs[0].Text)
	require.Len(t, pl.Paragraphs, 1)
	assert.Equal(t, "abc{v0}d", pl.Paragraphs[0].Text)
}

func TestAssemblerFormulaFontRouting(t *testing.T) {
	it := glyph("x", 10, 100, 10)
	it.Glyph.FontName = "ABCDEF+CMMI10"
	pl := assemble(bodyMask(), it, glyph("y", 15, 100, 10))

	require.Len(t, pl.Groups, 1)
	assert.Equal(t, "x", pl.Groups[0].Glyphs[0].Text)
}

func TestAssemblerBulletStaysBody(t *testing.T) {
	// bullets land in margins the classifier often marks non-body, and
	// their category is symbol-like; both must be overridden
	pl := assemble(formulaMask(0, 50),
		glyph("•", 10, 100, 10),
		glyph("a", 60, 100, 10),
	)

	assert.Empty(t, pl.Groups)
	require.NotEmpty(t, pl.Paragraphs)
}

func TestAssemblerBracketDepthKeepsInnerParens(t *testing.T) {
	items := []StreamItem{
		glyph("f", 10, 100, 10),
		glyph("∑", 15, 100, 10), // opens a group
		glyph("(", 20, 100, 10), // continues it, depth 1
		glyph(")", 25, 100, 10), // closes bracket, still grouped
		glyph("g", 30, 100, 10),
	}
	pl := assemble(bodyMask(), items...)

	require.Len(t, pl.Groups, 1)
	texts := make([]string, 0, len(pl.Groups[0].Glyphs))
	for _, g := range pl.Groups[0].Glyphs {
		texts = append(texts, g.Text)
	}
	assert.Equal(t, []string{"∑", "(", ")"}, texts)
}

func TestAssemblerUndecodableGlyphGrouped(t *testing.T) {
	pl := assemble(bodyMask(),
		glyph("a", 10, 100, 10),
		glyph("", 15, 100, 10), // no Unicode mapping
		glyph("b", 20, 100, 10),
	)

	require.Len(t, pl.Groups, 1)
	assert.Equal(t, "a{v0}b", pl.Paragraphs[0].Text)
}

func TestAssemblerParagraphSplitOnVerticalJump(t *testing.T) {
	pl := assemble(bodyMask(),
		glyph("a", 10, 300, 10),
		glyph("b", 15, 300, 10),
		// far below the previous run: a new paragraph, not a wrap
		glyph("c", 10, 200, 10),
	)

	require.Len(t, pl.Paragraphs, 2)
	assert.Equal(t, "ab", pl.Paragraphs[0].Text)
	assert.Equal(t, "c", pl.Paragraphs[1].Text)
}

func TestAssemblerTrailingGroupClosedAtFinish(t *testing.T) {
	pl := assemble(bodyMask(),
		glyph("a", 10, 100, 10),
		glyph("∑", 15, 100, 10),
	)

	require.Len(t, pl.Groups, 1)
	assert.Equal(t, "a{v0}", pl.Paragraphs[0].Text)
	assert.Greater(t, pl.Groups[0].Width, 0.0)
}

func TestAssemblerLineAttachment(t *testing.T) {
	line := StreamItem{Line: &LineSegment{PageID: 1, X0: 16, Y0: 99, X1: 26, Y1: 99, Width: 1}}
	farLine := StreamItem{Line: &LineSegment{PageID: 1, X0: 300, Y0: 50, X1: 340, Y1: 50, Width: 1}}

	pl := assemble(bodyMask(),
		glyph("∑", 15, 100, 10),
		line,    // same region while a group is open: attached
		farLine, // observed while group still open and same class: attached too
	)
	require.Len(t, pl.Groups, 1)
	assert.Len(t, pl.Groups[0].Lines, 2)

	pl = assemble(bodyMask(),
		glyph("a", 15, 100, 10),
		line, // no open group: page level decoration
	)
	assert.Empty(t, pl.Groups)
	assert.Len(t, pl.Lines, 1)
}

func TestAssemblerEmptyPage(t *testing.T) {
	pl := assemble(bodyMask())
	assert.False(t, pl.HasText)
	assert.Empty(t, pl.Paragraphs)
}
