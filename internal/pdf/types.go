// Package pdf implements the layout preserving PDF translation pipeline:
// content stream interpretation, paragraph and formula grouping, text reflow
// and document assembly.
package pdf

// Matrix is a PDF transformation matrix [a b c d e f].
type Matrix [6]float64

// IdentityMatrix is the no-op transform.
var IdentityMatrix = Matrix{1, 0, 0, 1, 0, 0}

// Mul returns m applied before n, i.e. the matrix product m x n in PDF
// row-vector convention.
func (m Matrix) Mul(n Matrix) Matrix {
	return Matrix{
		m[0]*n[0] + m[1]*n[2],
		m[0]*n[1] + m[1]*n[3],
		m[2]*n[0] + m[3]*n[2],
		m[2]*n[1] + m[3]*n[3],
		m[4]*n[0] + m[5]*n[2] + n[4],
		m[4]*n[1] + m[5]*n[3] + n[5],
	}
}

// Translated returns m pre-translated by (tx, ty).
func (m Matrix) Translated(tx, ty float64) Matrix {
	return Matrix{1, 0, 0, 1, tx, ty}.Mul(m)
}

// Apply transforms the point (x, y) by m.
func (m Matrix) Apply(x, y float64) (float64, float64) {
	return m[0]*x + m[2]*y + m[4], m[1]*x + m[3]*y + m[5]
}

// GlyphRecord is a single positioned glyph produced by the interpreter.
// Coordinates are in page space with the crop box origin at (0, 0).
// Records are immutable once emitted.
type GlyphRecord struct {
	PageID   int
	FontID   string // resource name of the source font, e.g. "F1"
	FontName string // BaseFont, used for formula font matching
	CID      int    // character code as it appeared in the stream
	Text     string // decoded text, may be empty for unmapped codes
	IsCID    bool   // source font uses two-byte codes

	Size float64 // effective font size in page units
	X0   float64 // baseline origin
	Y0   float64
	X1   float64 // origin after the glyph advance
	Y1   float64 // Y0 + Size, descent is folded into the baseline
	Adv  float64 // horizontal advance in page units

	// Degenerate is set when the text rendering matrix has collapsed
	// horizontal and vertical axes (rotated or decorative glyphs).
	Degenerate bool
}

// LineSegment is a thin stroked line kept for formula underlines and
// overlines. Coordinates are in page space.
type LineSegment struct {
	PageID         int
	X0, Y0, X1, Y1 float64
	Width          float64
}

// StreamItem is one typed primitive in interpretation order. Exactly one
// field is set.
type StreamItem struct {
	Glyph *GlyphRecord
	Line  *LineSegment
}

// SourceFont describes a font referenced by the source page, as needed when
// re-emitting formula glyphs with their original resource names.
type SourceFont struct {
	ResName  string
	BaseFont string
	IsCID    bool
}

// InterpretedPage is the interpreter output for one page.
type InterpretedPage struct {
	PageID int

	// Width and Height are the crop box dimensions in points.
	Width  float64
	Height float64
	// CropX0 and CropY0 restore the page coordinate origin when the
	// regenerated stream is spliced back into the document.
	CropX0 float64
	CropY0 float64

	Items   []StreamItem
	BaseOps string
	Fonts   map[string]*SourceFont

	// SkippedOps counts malformed operators that were dropped.
	SkippedOps int
}

// Paragraph is a visually contiguous run of translatable glyphs. Text holds
// the accumulated characters with formula references embedded as {v<n>}
// tokens.
type Paragraph struct {
	Y    float64 // baseline of the first line
	X    float64 // origin of the first glyph
	X0   float64 // bounding box
	X1   float64
	Y0   float64
	Y1   float64
	Size float64 // dominant font size
	Brk  bool    // wrap at X1 instead of flowing past it
	Text string
}

// VariableGroup is a run of glyphs excluded from translation and reproduced
// with unchanged relative metrics. Lines are attached underline strokes.
type VariableGroup struct {
	Glyphs []GlyphRecord
	Lines  []LineSegment
	// FixDY corrects the vertical anchor for groups entered from a
	// subscript or superscript position.
	FixDY float64
	// Width is the horizontal extent used as the group's advance.
	Width float64
}

// PageLayout is the assembler output for one page.
type PageLayout struct {
	Paragraphs []Paragraph
	Groups     []VariableGroup
	// Lines are page level decorative strokes outside any group.
	Lines []LineSegment
	// HasText is false for pages without classified body text; such pages
	// skip translation entirely.
	HasText bool
}

// PagePatch maps a page number (1-based) to its replacement content stream.
type PagePatch struct {
	PageNumber int
	Content    []byte
}
