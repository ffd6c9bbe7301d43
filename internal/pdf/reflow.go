package pdf

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"pdf-translator/internal/logger"
)

// thinLineMax is the stroke width below which a preserved line is treated
// as a formula underline rather than a border.
const thinLineMax = 5

// wrapSlack lets a line run marginally past the right margin, as a
// fraction of the font size, before wrapping.
const wrapSlack = 0.1

// lineHeightStep is the decrement applied while shrinking the interline
// spacing of an overflowing paragraph.
const lineHeightStep = 0.05

// tokenAt matches a formula reference token at the start of a string.
// Translators occasionally pad the digits with spaces.
var tokenAt = regexp.MustCompile(`^\{\s*v([\d\s]+)\}`)

// GlyphResolver picks an output font and advance for each character.
// *FontSelector is the production implementation.
type GlyphResolver interface {
	Resolve(r rune) Resolved
}

// Regenerator lays translated paragraph text back into the original
// geometry and emits the replacement text layer.
type Regenerator struct {
	fonts GlyphResolver
	// lineHeight is the language dependent interline factor; minLineHeight
	// is the floor the adaptive shrink never crosses.
	lineHeight    float64
	minLineHeight float64
}

// NewRegenerator builds a regenerator over the output font pair.
func NewRegenerator(fonts GlyphResolver, lineHeight, minLineHeight float64) *Regenerator {
	if minLineHeight <= 0 {
		minLineHeight = 1.0
	}
	return &Regenerator{fonts: fonts, lineHeight: lineHeight, minLineHeight: minLineHeight}
}

// opsVal is one collected drawing operation, buffered so the adaptive line
// height can be decided after the whole paragraph is measured.
type opsVal struct {
	line bool

	font string
	size float64
	x    float64
	dy   float64
	hex  string
	lidx int

	width, xlen, ylen float64
}

// RenderPage emits the text layer for one page. translated holds one
// string per paragraph, tokens intact; pages without body text emit only
// their preserved thin lines.
func (r *Regenerator) RenderPage(pl *PageLayout, translated []string) string {
	if !pl.HasText {
		var b strings.Builder
		b.WriteString("BT ")
		for _, l := range pl.Lines {
			if l.Width < thinLineMax {
				b.WriteString(lineOp(l.X0, l.Y0, l.Width, l.X1-l.X0, l.Y1-l.Y0))
			}
		}
		b.WriteString("ET ")
		return b.String()
	}

	referenced := make([]bool, len(pl.Groups))
	var ops strings.Builder
	ops.WriteString("BT 0 g 0 G ")

	for id, p := range pl.Paragraphs {
		text := p.Text
		if id < len(translated) {
			text = translated[id]
		}
		r.renderParagraph(&ops, &p, text, pl.Groups, referenced)
	}

	// groups never referenced by any translated text (dropped tokens,
	// empty translations, orphan formulas) are re-emitted at their
	// original anchors so no glyph is lost
	for vid, ref := range referenced {
		if ref {
			continue
		}
		logger.Debug("emitting unreferenced formula group at original anchor",
			logger.Int("group", vid))
		for _, vch := range pl.Groups[vid].Glyphs {
			ops.WriteString(textOp(vch.FontID, vch.Size, vch.X0, vch.Y0, sourceHex(&vch)))
		}
		for _, l := range pl.Groups[vid].Lines {
			if l.Width < thinLineMax {
				ops.WriteString(lineOp(l.X0, l.Y0, l.Width, l.X1-l.X0, l.Y1-l.Y0))
			}
		}
	}

	for _, l := range pl.Lines {
		if l.Width < thinLineMax {
			ops.WriteString(lineOp(l.X0, l.Y0, l.Width, l.X1-l.X0, l.Y1-l.Y0))
		}
	}

	ops.WriteString("ET ")
	return ops.String()
}

func (r *Regenerator) renderParagraph(out *strings.Builder, p *Paragraph, text string,
	groups []VariableGroup, referenced []bool) {

	x := p.X
	y := p.Y
	x0 := p.X0
	x1 := p.X1
	height := p.Y1 - p.Y0
	size := p.Size
	lidx := 0
	tx := x

	var run []uint16
	var runFont *OutputFont
	curRes := ""

	var vals []opsVal

	flush := func() {
		if len(run) == 0 {
			return
		}
		var hex strings.Builder
		for _, c := range run {
			hex.WriteString(EncodeCode(runFont, c))
		}
		vals = append(vals, opsVal{
			font: curRes, size: size, x: tx, dy: 0,
			hex: hex.String(), lidx: lidx,
		})
		run = run[:0]
	}

	ptr := 0
	for ptr < len(text) {
		var adv, mod float64
		var res Resolved
		var ch rune
		vid := -1

		if m := tokenAt.FindStringSubmatch(text[ptr:]); m != nil {
			ptr += len(m[0])
			n, err := strconv.Atoi(strings.ReplaceAll(m[1], " ", ""))
			if err != nil || n < 0 || n >= len(groups) {
				logger.Debug("translated text references unknown formula token",
					logger.String("token", m[0]))
				continue
			}
			vid = n
			adv = groups[vid].Width
			last := groups[vid].Glyphs[len(groups[vid].Glyphs)-1]
			if last.Text != "" && isAnchorRune([]rune(last.Text)[0]) {
				mod = last.Adv
			}
		} else {
			var w int
			ch, w = utf8.DecodeRuneInString(text[ptr:])
			ptr += w
			res = r.fonts.Resolve(ch)
			adv = res.AdvEm * size
		}

		if vid >= 0 || res.ResName != curRes || x+adv > x1+wrapSlack*size {
			flush()
		}
		if p.Brk && x+adv > x1+wrapSlack*size {
			x = x0
			lidx++
		}

		if vid >= 0 {
			fix := 0.0
			if curRes != "" {
				fix = groups[vid].FixDY
			}
			g0 := groups[vid].Glyphs[0]
			for _, vch := range groups[vid].Glyphs {
				vals = append(vals, opsVal{
					font: vch.FontID, size: vch.Size,
					x:  x + vch.X0 - g0.X0,
					dy: fix + vch.Y0 - g0.Y0,
					hex: sourceHex(&vch), lidx: lidx,
				})
			}
			for _, l := range groups[vid].Lines {
				if l.Width < thinLineMax {
					vals = append(vals, opsVal{
						line: true,
						x:    l.X0 + x - g0.X0,
						dy:   l.Y0 + fix - g0.Y0,
						width: l.Width, xlen: l.X1 - l.X0, ylen: l.Y1 - l.Y0,
						lidx: lidx,
					})
				}
			}
			referenced[vid] = true
			curRes = ""
			runFont = nil
		} else {
			if len(run) == 0 {
				tx = x
				if x == x0 && ch == ' ' {
					adv = 0
				} else {
					run = append(run, res.Code)
				}
			} else {
				run = append(run, res.Code)
			}
			curRes = res.ResName
			runFont = res.Font
		}

		x += adv - mod
	}
	flush()

	// shrink the interline spacing until the paragraph fits its original
	// box, never below the configured floor
	lh := r.lineHeight
	for float64(lidx+1)*size*lh > height && lh-lineHeightStep >= r.minLineHeight {
		lh -= lineHeightStep
	}

	for _, v := range vals {
		drop := float64(v.lidx) * size * lh
		if v.line {
			out.WriteString(lineOp(v.x, v.dy-drop, v.width, v.xlen, v.ylen))
		} else {
			out.WriteString(textOp(v.font, v.size, v.x, v.dy+y-drop, v.hex))
		}
	}
}

// sourceHex re-encodes a preserved glyph with its original character code,
// two hex digits for simple fonts and four for CID fonts.
func sourceHex(g *GlyphRecord) string {
	if g.IsCID {
		return fmt.Sprintf("%04x", g.CID&0xFFFF)
	}
	return fmt.Sprintf("%02x", g.CID&0xFF)
}

func textOp(font string, size, x, y float64, hex string) string {
	return fmt.Sprintf("/%s %f Tf 1 0 0 1 %f %f Tm [<%s>] TJ ", font, size, x, y, hex)
}

// lineOp draws one preserved stroke. The text object is closed around it
// so the line never leaks text state.
func lineOp(x, y, width, xlen, ylen float64) string {
	return fmt.Sprintf("ET q 1 0 0 1 %f %f cm [] 0 d 0 J %f w 0 0 m %f %f l S Q BT ",
		x, y, width, xlen, ylen)
}
