package pdf

import (
	"fmt"
	"math"
	"strings"

	"pdf-translator/internal/layout"
)

// smallSizeRatio flags glyphs visually much smaller than the paragraph's
// dominant size as subscript or superscript content.
const smallSizeRatio = 0.79

// paragraphGapRatio is the vertical jump, relative to the larger of the
// two glyph sizes, beyond which a glyph no longer continues the previous
// paragraph. Wrapped lines stay well under it.
const paragraphGapRatio = 1.9

// Assembler routes a page's primitives, in stream order, into paragraphs
// and variable groups. All routing state lives in named fields and every
// primitive passes through Observe exactly once, so at most one group
// accumulator is ever open.
type Assembler struct {
	mask   *layout.RegionMask
	policy FormulaPolicy
	vmax   float64 // column jump threshold, a quarter of the page width

	sstk []string    // paragraph text accumulators
	pstk []Paragraph // paragraph geometry, parallel to sstk

	vstk  []GlyphRecord // open variable group
	vlstk []LineSegment // lines attached to the open group
	vbkt  int           // bracket depth inside the open group
	vfix  float64       // vertical anchor correction for the open group

	groups []VariableGroup
	lines  []LineSegment // page level decorative lines

	xt      *GlyphRecord // previous glyph
	xtCls   int          // previous glyph's region class
	hasText bool
}

// NewAssembler builds an assembler for one page.
func NewAssembler(mask *layout.RegionMask, pageWidth float64, policy FormulaPolicy) *Assembler {
	if policy == nil {
		policy = DefaultFormulaPolicy{}
	}
	return &Assembler{
		mask:   mask,
		policy: policy,
		vmax:   pageWidth / 4,
		xtCls:  -1,
	}
}

// Observe feeds one primitive through the state machine.
func (a *Assembler) Observe(item StreamItem) {
	if item.Glyph != nil {
		a.observeGlyph(item.Glyph)
	} else if item.Line != nil {
		a.observeLine(item.Line)
	}
}

func (a *Assembler) observeGlyph(g *GlyphRecord) {
	a.hasText = true

	cls := a.mask.ClassAt(g.X0, g.Y0)
	// bullets sit in list margins the classifier often mislabels
	if g.Text == "•" {
		cls = layout.BodyRegion
	}

	curV := cls != layout.BodyRegion ||
		(cls == a.xtCls && len(a.pstk) > 0 &&
			len(strings.TrimSpace(a.sstk[len(a.sstk)-1])) > 1 &&
			g.Size < a.pstk[len(a.pstk)-1].Size*smallSizeRatio) ||
		a.policy.FormulaFont(g.FontName) ||
		a.formulaText(g.Text) ||
		g.Degenerate

	// parentheses opened inside a formula keep their closing halves in
	// the same group
	if !curV {
		if len(a.vstk) > 0 && g.Text == "(" {
			curV = true
			a.vbkt++
		}
		if a.vbkt > 0 && g.Text == ")" {
			curV = true
			a.vbkt--
		}
	}

	if !curV || cls != a.xtCls ||
		(len(a.sstk) > 0 && a.sstk[len(a.sstk)-1] != "" && a.xt != nil &&
			math.Abs(g.X0-a.xt.X0) > a.vmax) {
		a.closeGroup(g, curV, cls)
	}

	if len(a.vstk) == 0 {
		if cls == a.xtCls && a.xt != nil && !a.paragraphJump(g) {
			// same run: synthesize word spacing for gaps and mark
			// wrapped lines as hard break paragraphs
			if g.X0 > a.xt.X1+1 {
				a.sstk[len(a.sstk)-1] += " "
			} else if g.X1 < a.xt.X0 {
				a.sstk[len(a.sstk)-1] += " "
				a.pstk[len(a.pstk)-1].Brk = true
			}
		} else {
			a.sstk = append(a.sstk, "")
			a.pstk = append(a.pstk, Paragraph{
				Y: g.Y0, X: g.X0,
				X0: g.X0, X1: g.X0, Y0: g.Y0, Y1: g.Y1,
				Size: g.Size,
			})
		}
	}

	if !curV {
		p := &a.pstk[len(a.pstk)-1]
		if (g.Size > p.Size || len(strings.TrimSpace(a.sstk[len(a.sstk)-1])) == 1) &&
			g.Text != " " {
			p.Y -= g.Size - p.Size
			p.Size = g.Size
		}
		a.sstk[len(a.sstk)-1] += g.Text
	} else {
		if len(a.vstk) == 0 && cls == a.xtCls && a.xt != nil && g.X0 > a.xt.X0 {
			a.vfix = g.Y0 - a.xt.Y0
		}
		a.vstk = append(a.vstk, *g)
	}

	if len(a.pstk) > 0 {
		p := &a.pstk[len(a.pstk)-1]
		p.X0 = math.Min(p.X0, g.X0)
		p.X1 = math.Max(p.X1, g.X1)
		p.Y0 = math.Min(p.Y0, g.Y0)
		p.Y1 = math.Max(p.Y1, g.Y1)
	}

	a.xt = g
	a.xtCls = cls
}

// closeGroup finalizes the open variable group, appending its reference
// token to the current paragraph.
func (a *Assembler) closeGroup(g *GlyphRecord, curV bool, cls int) {
	if len(a.vstk) == 0 {
		return
	}
	if !curV && cls == a.xtCls && g.X0 > maxGroupX0(a.vstk) {
		// returning from a sub/superscript run: re-anchor the group at
		// the incoming baseline
		a.vfix = a.vstk[0].Y0 - g.Y0
	}
	if len(a.sstk) > 0 {
		if a.sstk[len(a.sstk)-1] == "" {
			a.xtCls = -1
		}
		a.sstk[len(a.sstk)-1] += fmt.Sprintf("{v%d}", len(a.groups))
	}
	a.groups = append(a.groups, VariableGroup{
		Glyphs: append([]GlyphRecord(nil), a.vstk...),
		Lines:  append([]LineSegment(nil), a.vlstk...),
		FixDY:  a.vfix,
	})
	a.vstk = a.vstk[:0]
	a.vlstk = a.vlstk[:0]
	a.vfix = 0
}

func (a *Assembler) observeLine(l *LineSegment) {
	cls := a.mask.ClassAt(l.X0, l.Y0)
	if len(a.vstk) > 0 && cls == a.xtCls {
		a.vlstk = append(a.vlstk, *l)
	} else {
		a.lines = append(a.lines, *l)
	}
}

// formulaText reports whether decoded text routes a glyph into a group.
// Undecodable glyphs are grouped too, since they cannot be translated but
// must still be reproduced.
func (a *Assembler) formulaText(text string) bool {
	if text == "" {
		return true
	}
	r := []rune(text)[0]
	return a.policy.FormulaRune(r)
}

// paragraphJump reports a vertical discontinuity too large for the glyph
// to continue the current paragraph.
func (a *Assembler) paragraphJump(g *GlyphRecord) bool {
	size := math.Max(g.Size, a.xt.Size)
	return math.Abs(g.Y0-a.xt.Y0) > paragraphGapRatio*size
}

// Finish closes any trailing group and returns the page layout. The
// assembler must not be reused afterwards.
func (a *Assembler) Finish() *PageLayout {
	if len(a.vstk) > 0 {
		if len(a.sstk) > 0 {
			a.sstk[len(a.sstk)-1] += fmt.Sprintf("{v%d}", len(a.groups))
		}
		a.groups = append(a.groups, VariableGroup{
			Glyphs: append([]GlyphRecord(nil), a.vstk...),
			Lines:  append([]LineSegment(nil), a.vlstk...),
			FixDY:  a.vfix,
		})
		a.vstk = nil
		a.vlstk = nil
	}

	for i := range a.groups {
		g := &a.groups[i]
		maxX1 := g.Glyphs[0].X1
		for _, vch := range g.Glyphs {
			maxX1 = math.Max(maxX1, vch.X1)
		}
		g.Width = maxX1 - g.Glyphs[0].X0
	}

	for i := range a.pstk {
		a.pstk[i].Text = a.sstk[i]
	}

	return &PageLayout{
		Paragraphs: a.pstk,
		Groups:     a.groups,
		Lines:      a.lines,
		HasText:    a.hasText && len(a.pstk) > 0,
	}
}

func maxGroupX0(glyphs []GlyphRecord) float64 {
	m := glyphs[0].X0
	for _, g := range glyphs {
		m = math.Max(m, g.X0)
	}
	return m
}
