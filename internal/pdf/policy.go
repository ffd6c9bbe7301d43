package pdf

import (
	"regexp"
	"strings"
	"unicode"
)

// FormulaPolicy decides whether a glyph belongs to mathematical or
// otherwise untranslatable content based on its font and character. The
// boundary heuristics are tunable per target language, so the policy is
// swappable rather than baked into the assembler.
type FormulaPolicy interface {
	// FormulaFont reports whether a base font name indicates math or
	// vertical script content.
	FormulaFont(baseFont string) bool
	// FormulaRune reports whether a character is treated as a symbol
	// that must not be sent to the translator.
	FormulaRune(r rune) bool
}

// formulaFontPattern matches TeX math fonts, symbol fonts and monospace
// families whose glyphs carry semantic spacing.
var formulaFontPattern = regexp.MustCompile(
	`^(CM[^R]|MS.M|XY|MT|BL|RM|EU|LA|RS|LINE|LCIRCLE|TeX-|rsfs|txsy|wasy|stmary|.*Mono|.*Code|.*Ital|.*Sym|.*Math)`)

// DefaultFormulaPolicy is the stock heuristic: font name pattern matching
// plus Unicode categories for modifiers, marks and symbols, plus the
// Greek and Coptic block heavily used in formulas.
type DefaultFormulaPolicy struct{}

func (DefaultFormulaPolicy) FormulaFont(baseFont string) bool {
	// subset prefixes like "ABCDEF+CMMI10" are stripped first
	if i := strings.LastIndexByte(baseFont, '+'); i >= 0 {
		baseFont = baseFont[i+1:]
	}
	return formulaFontPattern.MatchString(baseFont)
}

var formulaCategories = []*unicode.RangeTable{
	unicode.Lm, unicode.Mn, unicode.Sk, unicode.Sm,
	unicode.Zl, unicode.Zp, unicode.Zs,
}

func (DefaultFormulaPolicy) FormulaRune(r rune) bool {
	if r == ' ' {
		return false
	}
	if r >= 0x370 && r < 0x400 {
		return true
	}
	return unicode.In(r, formulaCategories...)
}

// anchorCategories mark combining glyphs whose trailing width must not be
// counted twice when a formula group is spliced back into a line.
var anchorCategories = []*unicode.RangeTable{unicode.Lm, unicode.Mn, unicode.Sk}

func isAnchorRune(r rune) bool {
	return unicode.In(r, anchorCategories...)
}
