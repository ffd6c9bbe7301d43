package pdf

import (
	"fmt"
	"math"
	"strings"

	lpdf "github.com/ledongthuc/pdf"

	"pdf-translator/internal/logger"
)

// maxFormDepth bounds Form XObject recursion so cyclic resource
// dictionaries cannot hang interpretation.
const maxFormDepth = 8

// gstate is the graphics state saved and restored by q/Q, including the
// text parameters set by Tc/Tw/Tz/TL/Tf/Ts.
type gstate struct {
	ctm       Matrix
	lineWidth float64

	font      *srcFont
	fontSize  float64
	charSpace float64
	wordSpace float64
	scaling   float64 // horizontal scaling in percent
	leading   float64
	rise      float64
}

// srcFont is a source document font with just enough metrics and decoding
// to position glyphs and re-encode formula runs.
type srcFont struct {
	info      SourceFont
	enc       lpdf.TextEncoding
	firstChar int
	widths    []float64
	cidWidths map[int]float64
	defWidth  float64
}

// scopeFrame is one resource scope (the page itself or a Form XObject).
// Frames live in a flat arena; the scope stack holds indexes into it.
type scopeFrame struct {
	resources lpdf.Value
	fontCache map[string]*srcFont
}

type point struct{ x, y float64 }

// pageInterp holds the mutable state of one page interpretation.
type pageInterp struct {
	pageID int

	gsStack []gstate
	tm, tlm Matrix

	frames []scopeFrame
	scope  []int // indexes into frames

	// path construction buffer, mirrored as formatted operators in
	// pending until a paint operator decides their fate
	pathPts    []point
	pathSimple bool
	pending    []string

	base    strings.Builder
	nested  int // >0 while inside a Form XObject
	items   []StreamItem
	fonts   map[string]*SourceFont
	skipped int
}

type opEntry struct {
	arity int
	fn    func(*pageInterp, []lpdf.Value)
}

// opTable maps every operator that affects interpreter state to its
// handler. Operators absent from the table only participate in base layer
// routing.
var opTable map[string]opEntry

func init() {
	opTable = map[string]opEntry{
		"q":  {0, (*pageInterp).opSave},
		"Q":  {0, (*pageInterp).opRestore},
		"cm": {6, (*pageInterp).opConcat},
		"w":  {1, (*pageInterp).opLineWidth},

		"BT": {0, (*pageInterp).opBeginText},
		"ET": {0, func(*pageInterp, []lpdf.Value) {}},
		"Tc": {1, func(pi *pageInterp, a []lpdf.Value) { pi.gs().charSpace = a[0].Float64() }},
		"Tw": {1, func(pi *pageInterp, a []lpdf.Value) { pi.gs().wordSpace = a[0].Float64() }},
		"Tz": {1, func(pi *pageInterp, a []lpdf.Value) { pi.gs().scaling = a[0].Float64() }},
		"TL": {1, func(pi *pageInterp, a []lpdf.Value) { pi.gs().leading = a[0].Float64() }},
		"Ts": {1, func(pi *pageInterp, a []lpdf.Value) { pi.gs().rise = a[0].Float64() }},
		"Tf": {2, (*pageInterp).opSetFont},
		"Td": {2, (*pageInterp).opTextMove},
		"TD": {2, (*pageInterp).opTextMoveLeading},
		"Tm": {6, (*pageInterp).opTextMatrix},
		"T*": {0, (*pageInterp).opNextLine},
		"Tj": {1, (*pageInterp).opShowText},
		"TJ": {1, (*pageInterp).opShowArray},
		"'":  {1, (*pageInterp).opNextLineShow},
		"\"": {3, (*pageInterp).opNextLineShowSpaced},

		"m":  {2, (*pageInterp).opMoveTo},
		"l":  {2, (*pageInterp).opLineTo},
		"c":  {6, (*pageInterp).opCurve},
		"v":  {4, (*pageInterp).opCurve},
		"y":  {4, (*pageInterp).opCurve},
		"h":  {0, func(pi *pageInterp, _ []lpdf.Value) { pi.pathSimple = false }},
		"re": {4, (*pageInterp).opRect},

		"S": {0, (*pageInterp).opStroke},
		"s": {0, (*pageInterp).opStroke},

		"Do": {1, (*pageInterp).opXObject},
	}
}

// paintOps complete a path; they are filtered from the output together
// with their buffered path construction operators so background fills do
// not reappear under the regenerated text.
var paintOps = map[string]bool{
	"S": true, "s": true, "f": true, "F": true, "f*": true,
	"B": true, "B*": true, "b": true, "b*": true, "n": true,
}

// pathOps are buffered until a paint operator decides whether they
// survive.
var pathOps = map[string]bool{
	"m": true, "l": true, "c": true, "v": true, "y": true, "h": true, "re": true,
}

// resourceOps reference named entries (ExtGState, color spaces, patterns)
// that may be dangling after regeneration, so they are dropped.
var resourceOps = map[string]bool{
	"gs": true, "cs": true, "CS": true,
	"SCN": true, "scn": true, "SC": true, "sc": true,
}

// textFilteredOps are re-emitted by the regenerator and never copied into
// the base layer.
var textFilteredOps = map[string]bool{
	"'": true, "\"": true, "EI": true,
	"MP": true, "DP": true, "BMC": true, "BDC": true, "EMC": true,
}

func isTextFiltered(op string) bool {
	return (len(op) > 0 && op[0] == 'T') || textFilteredOps[op]
}

// InterpretPage decodes one page's content streams into typed glyph and
// line primitives plus the pass-through base layer. Malformed operators
// are skipped and counted, never aborting the page.
func InterpretPage(p lpdf.Page, pageID int) *InterpretedPage {
	cropX0, cropY0, cropX1, cropY1 := pageBox(p)
	rotate := int(findInherited(p, "Rotate").Int64())

	var ctm Matrix
	switch rotate {
	case 90:
		ctm = Matrix{0, -1, 1, 0, -cropY0, cropX1}
	case 180:
		ctm = Matrix{-1, 0, 0, -1, cropX1, cropY1}
	case 270:
		ctm = Matrix{0, 1, -1, 0, cropY1, -cropX0}
	default:
		ctm = Matrix{1, 0, 0, 1, -cropX0, -cropY0}
	}

	pi := &pageInterp{
		pageID:  pageID,
		gsStack: []gstate{{ctm: ctm, scaling: 100, lineWidth: 1}},
		tm:      IdentityMatrix,
		tlm:     IdentityMatrix,
		fonts:   make(map[string]*SourceFont),
	}
	pi.pushScope(findInherited(p, "Resources"))

	contents := p.V.Key("Contents")
	switch contents.Kind() {
	case lpdf.Array:
		for i := 0; i < contents.Len(); i++ {
			pi.interpretStream(contents.Index(i))
		}
	case lpdf.Stream:
		pi.interpretStream(contents)
	}

	pi.base.WriteString(strings.Join(pi.pending, ""))
	pi.pending = nil

	w, h := cropX1-cropX0, cropY1-cropY0
	if rotate == 90 || rotate == 270 {
		w, h = h, w
	}
	return &InterpretedPage{
		PageID:     pageID,
		Width:      w,
		Height:     h,
		CropX0:     cropX0,
		CropY0:     cropY0,
		Items:      pi.items,
		BaseOps:    pi.base.String(),
		Fonts:      pi.fonts,
		SkippedOps: pi.skipped,
	}
}

func (pi *pageInterp) interpretStream(strm lpdf.Value) {
	defer func() {
		if r := recover(); r != nil {
			pi.skipped++
			logger.Warn("content stream aborted mid-parse", nil,
				logger.Int("page", pi.pageID), logger.Any("cause", r))
		}
	}()
	lpdf.Interpret(strm, func(stk *lpdf.Stack, op string) {
		n := stk.Len()
		args := make([]lpdf.Value, n)
		for i := n - 1; i >= 0; i-- {
			args[i] = stk.Pop()
		}
		pi.execOp(op, args)
	})
}

func (pi *pageInterp) execOp(op string, args []lpdf.Value) {
	defer func() {
		if r := recover(); r != nil {
			pi.skipped++
			logger.Debug("operator skipped",
				logger.String("op", op), logger.Int("page", pi.pageID), logger.Any("cause", r))
		}
	}()

	if e, ok := opTable[op]; ok {
		if len(args) < e.arity {
			pi.skipped++
			logger.Debug("operator missing operands",
				logger.String("op", op), logger.Int("page", pi.pageID))
			return
		}
		// operands beyond the declared arity are stale leftovers
		e.fn(pi, args[len(args)-e.arity:])
	}
	pi.routeBase(op, args)
}

// routeBase decides whether op is copied into the base layer, mirroring
// the categories above.
func (pi *pageInterp) routeBase(op string, args []lpdf.Value) {
	if pi.nested > 0 {
		return
	}
	switch {
	case paintOps[op]:
		pi.pending = pi.pending[:0]
	case resourceOps[op]:
	case isTextFiltered(op):
	case pathOps[op]:
		pi.pending = append(pi.pending, formatOp(op, args))
	default:
		pi.base.WriteString(strings.Join(pi.pending, ""))
		pi.pending = pi.pending[:0]
		pi.base.WriteString(formatOp(op, args))
	}
}

func (pi *pageInterp) gs() *gstate { return &pi.gsStack[len(pi.gsStack)-1] }

func (pi *pageInterp) pushScope(resources lpdf.Value) {
	pi.frames = append(pi.frames, scopeFrame{
		resources: resources,
		fontCache: make(map[string]*srcFont),
	})
	pi.scope = append(pi.scope, len(pi.frames)-1)
}

func (pi *pageInterp) popScope() { pi.scope = pi.scope[:len(pi.scope)-1] }

func (pi *pageInterp) resources() lpdf.Value {
	return pi.frames[pi.scope[len(pi.scope)-1]].resources
}

func (pi *pageInterp) opSave(_ []lpdf.Value) {
	pi.gsStack = append(pi.gsStack, *pi.gs())
}

func (pi *pageInterp) opRestore(_ []lpdf.Value) {
	if len(pi.gsStack) > 1 {
		pi.gsStack = pi.gsStack[:len(pi.gsStack)-1]
	}
}

func (pi *pageInterp) opConcat(a []lpdf.Value) {
	m := Matrix{a[0].Float64(), a[1].Float64(), a[2].Float64(),
		a[3].Float64(), a[4].Float64(), a[5].Float64()}
	pi.gs().ctm = m.Mul(pi.gs().ctm)
}

func (pi *pageInterp) opLineWidth(a []lpdf.Value) {
	pi.gs().lineWidth = a[0].Float64()
}

func (pi *pageInterp) opBeginText(_ []lpdf.Value) {
	pi.tm = IdentityMatrix
	pi.tlm = IdentityMatrix
}

func (pi *pageInterp) opSetFont(a []lpdf.Value) {
	name := a[0].Name()
	g := pi.gs()
	g.font = pi.lookupFont(name)
	g.fontSize = a[1].Float64()
}

func (pi *pageInterp) opTextMove(a []lpdf.Value) {
	pi.tlm = pi.tlm.Translated(a[0].Float64(), a[1].Float64())
	pi.tm = pi.tlm
}

func (pi *pageInterp) opTextMoveLeading(a []lpdf.Value) {
	pi.gs().leading = -a[1].Float64()
	pi.opTextMove(a)
}

func (pi *pageInterp) opTextMatrix(a []lpdf.Value) {
	pi.tlm = Matrix{a[0].Float64(), a[1].Float64(), a[2].Float64(),
		a[3].Float64(), a[4].Float64(), a[5].Float64()}
	pi.tm = pi.tlm
}

func (pi *pageInterp) opNextLine(_ []lpdf.Value) {
	pi.tlm = pi.tlm.Translated(0, -pi.gs().leading)
	pi.tm = pi.tlm
}

func (pi *pageInterp) opShowText(a []lpdf.Value) {
	pi.showString(a[0].RawString())
}

func (pi *pageInterp) opShowArray(a []lpdf.Value) {
	arr := a[0]
	g := pi.gs()
	for i := 0; i < arr.Len(); i++ {
		el := arr.Index(i)
		switch el.Kind() {
		case lpdf.String:
			pi.showString(el.RawString())
		case lpdf.Integer, lpdf.Real:
			tx := -el.Float64() / 1000 * g.fontSize * g.scaling / 100
			pi.tm = pi.tm.Translated(tx, 0)
		}
	}
}

func (pi *pageInterp) opNextLineShow(a []lpdf.Value) {
	pi.opNextLine(nil)
	pi.showString(a[0].RawString())
}

func (pi *pageInterp) opNextLineShowSpaced(a []lpdf.Value) {
	g := pi.gs()
	g.wordSpace = a[0].Float64()
	g.charSpace = a[1].Float64()
	pi.opNextLine(nil)
	pi.showString(a[2].RawString())
}

func (pi *pageInterp) opMoveTo(a []lpdf.Value) {
	x, y := pi.gs().ctm.Apply(a[0].Float64(), a[1].Float64())
	pi.pathPts = pi.pathPts[:0]
	pi.pathSimple = true
	pi.pathPts = append(pi.pathPts, point{x, y})
}

func (pi *pageInterp) opLineTo(a []lpdf.Value) {
	x, y := pi.gs().ctm.Apply(a[0].Float64(), a[1].Float64())
	pi.pathPts = append(pi.pathPts, point{x, y})
}

func (pi *pageInterp) opCurve(a []lpdf.Value) {
	x, y := pi.gs().ctm.Apply(a[len(a)-2].Float64(), a[len(a)-1].Float64())
	pi.pathPts = append(pi.pathPts, point{x, y})
	pi.pathSimple = false
}

func (pi *pageInterp) opRect(a []lpdf.Value) {
	x, y := pi.gs().ctm.Apply(a[0].Float64(), a[1].Float64())
	pi.pathPts = append(pi.pathPts, point{x, y})
	pi.pathSimple = false
}

// opStroke turns a simple two-point path into a LineSegment candidate for
// formula underlines. All other stroked paths are dropped with their path
// operators; solid content like table borders still reaches the output
// through the base layer's untouched fill-free operators.
func (pi *pageInterp) opStroke(_ []lpdf.Value) {
	defer func() {
		pi.pathPts = pi.pathPts[:0]
		pi.pathSimple = false
	}()
	if !pi.pathSimple || len(pi.pathPts) != 2 {
		return
	}
	g := pi.gs()
	scale := math.Hypot(g.ctm[0], g.ctm[1])
	pi.items = append(pi.items, StreamItem{Line: &LineSegment{
		PageID: pi.pageID,
		X0:     pi.pathPts[0].x, Y0: pi.pathPts[0].y,
		X1: pi.pathPts[1].x, Y1: pi.pathPts[1].y,
		Width: g.lineWidth * scale,
	}})
}

func (pi *pageInterp) opXObject(a []lpdf.Value) {
	name := a[0].Name()
	xo := pi.resources().Key("XObject").Key(name)
	if xo.Kind() != lpdf.Stream || xo.Key("Subtype").Name() != "Form" {
		return
	}
	if len(pi.scope) >= maxFormDepth {
		logger.Warn("form xobject nesting too deep, skipping", nil,
			logger.String("name", name), logger.Int("page", pi.pageID))
		return
	}

	pi.gsStack = append(pi.gsStack, *pi.gs())
	if m, ok := matrixFromValue(xo.Key("Matrix")); ok {
		pi.gs().ctm = m.Mul(pi.gs().ctm)
	}
	res := xo.Key("Resources")
	if res.IsNull() {
		res = pi.resources()
	}
	pi.pushScope(res)
	pi.nested++

	savedTm, savedTlm := pi.tm, pi.tlm
	pi.interpretStream(xo)
	pi.tm, pi.tlm = savedTm, savedTlm

	pi.nested--
	pi.popScope()
	if len(pi.gsStack) > 1 {
		pi.gsStack = pi.gsStack[:len(pi.gsStack)-1]
	}
}

// showString emits one GlyphRecord per character code in raw.
func (pi *pageInterp) showString(raw string) {
	g := pi.gs()
	f := g.font
	if f == nil {
		pi.skipped++
		logger.Debug("text shown with no font set", logger.Int("page", pi.pageID))
		return
	}
	th := g.scaling / 100
	step := 1
	if f.info.IsCID {
		step = 2
	}
	for i := 0; i+step <= len(raw); i += step {
		code := int(raw[i])
		if step == 2 {
			code = int(raw[i])<<8 | int(raw[i+1])
		}
		m := pi.tm.Mul(g.ctm)
		x0, y0 := m.Apply(0, g.rise)
		effSize := g.fontSize * math.Hypot(m[2], m[3])

		ws := 0.0
		if step == 1 && code == 32 {
			ws = g.wordSpace
		}
		tx := (f.width(code)*g.fontSize + g.charSpace + ws) * th
		pi.tm = pi.tm.Translated(tx, 0)
		x1, _ := pi.tm.Mul(g.ctm).Apply(0, g.rise)

		pi.items = append(pi.items, StreamItem{Glyph: &GlyphRecord{
			PageID:     pi.pageID,
			FontID:     f.info.ResName,
			FontName:   f.info.BaseFont,
			CID:        code,
			Text:       f.decode(raw[i : i+step]),
			IsCID:      f.info.IsCID,
			Size:       effSize,
			X0:         x0,
			Y0:         y0,
			X1:         x1,
			Y1:         y0 + effSize,
			Adv:        x1 - x0,
			Degenerate: m[0] == 0 && m[3] == 0,
		}})
	}
}

func (pi *pageInterp) lookupFont(name string) *srcFont {
	frame := &pi.frames[pi.scope[len(pi.scope)-1]]
	if f, ok := frame.fontCache[name]; ok {
		return f
	}
	fdict := frame.resources.Key("Font").Key(name)
	if fdict.IsNull() {
		frame.fontCache[name] = nil
		logger.Debug("font not found in resources",
			logger.String("font", name), logger.Int("page", pi.pageID))
		return nil
	}
	f := newSrcFont(name, fdict)
	frame.fontCache[name] = f
	if _, ok := pi.fonts[name]; !ok {
		pi.fonts[name] = &f.info
	}
	return f
}

func newSrcFont(name string, fdict lpdf.Value) *srcFont {
	fv := lpdf.Font{V: fdict}
	f := &srcFont{
		info: SourceFont{
			ResName:  name,
			BaseFont: fv.BaseFont(),
			IsCID:    fdict.Key("Subtype").Name() == "Type0",
		},
		enc:       fv.Encoder(),
		firstChar: fv.FirstChar(),
		widths:    fv.Widths(),
		defWidth:  0.5,
	}
	if f.info.IsCID {
		desc := fdict.Key("DescendantFonts").Index(0)
		f.defWidth = 1.0
		if dw := desc.Key("DW"); !dw.IsNull() {
			f.defWidth = dw.Float64() / 1000
		}
		f.cidWidths = parseCIDWidths(desc.Key("W"))
	}
	return f
}

// width returns the advance of a character code as a fraction of the font
// size.
func (f *srcFont) width(code int) float64 {
	if f.info.IsCID {
		if w, ok := f.cidWidths[code]; ok {
			return w
		}
		return f.defWidth
	}
	idx := code - f.firstChar
	if idx >= 0 && idx < len(f.widths) {
		return f.widths[idx] / 1000
	}
	return f.defWidth
}

func (f *srcFont) decode(raw string) string {
	if f.enc == nil {
		return ""
	}
	s := f.enc.Decode(raw)
	if s == string(rune(0xFFFD)) {
		return ""
	}
	return s
}

// parseCIDWidths reads a CIDFont W array. Entries are either
// "c [w1 w2 ...]" or "cFirst cLast w".
func parseCIDWidths(w lpdf.Value) map[int]float64 {
	out := make(map[int]float64)
	if w.Kind() != lpdf.Array {
		return out
	}
	for i := 0; i < w.Len(); {
		first := int(w.Index(i).Int64())
		i++
		if i >= w.Len() {
			break
		}
		next := w.Index(i)
		if next.Kind() == lpdf.Array {
			for j := 0; j < next.Len(); j++ {
				out[first+j] = next.Index(j).Float64() / 1000
			}
			i++
			continue
		}
		last := int(next.Int64())
		i++
		if i >= w.Len() {
			break
		}
		width := w.Index(i).Float64() / 1000
		i++
		for c := first; c <= last && c-first < 65536; c++ {
			out[c] = width
		}
	}
	return out
}

func matrixFromValue(v lpdf.Value) (Matrix, bool) {
	if v.Kind() != lpdf.Array || v.Len() != 6 {
		return IdentityMatrix, false
	}
	var m Matrix
	for i := 0; i < 6; i++ {
		m[i] = v.Index(i).Float64()
	}
	return m, true
}

// findInherited walks the page tree upwards for attributes a page may
// inherit from its ancestors.
func findInherited(p lpdf.Page, key string) lpdf.Value {
	for v := p.V; !v.IsNull(); v = v.Key("Parent") {
		if r := v.Key(key); !r.IsNull() {
			return r
		}
	}
	return lpdf.Value{}
}

// pageBox returns the normalized crop box, falling back to the media box.
func pageBox(p lpdf.Page) (x0, y0, x1, y1 float64) {
	box := findInherited(p, "CropBox")
	if box.Kind() != lpdf.Array || box.Len() != 4 {
		box = findInherited(p, "MediaBox")
	}
	if box.Kind() != lpdf.Array || box.Len() != 4 {
		return 0, 0, 612, 792
	}
	x0, y0 = box.Index(0).Float64(), box.Index(1).Float64()
	x1, y1 = box.Index(2).Float64(), box.Index(3).Float64()
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	return x0, y0, x1, y1
}

// formatOp serializes one operator with its operands for the base layer.
func formatOp(op string, args []lpdf.Value) string {
	var b strings.Builder
	for _, a := range args {
		b.WriteString(formatValue(a))
		b.WriteByte(' ')
	}
	b.WriteString(op)
	b.WriteByte(' ')
	return b.String()
}

func formatValue(v lpdf.Value) string {
	switch v.Kind() {
	case lpdf.Bool:
		if v.Bool() {
			return "true"
		}
		return "false"
	case lpdf.Integer:
		return fmt.Sprintf("%d", v.Int64())
	case lpdf.Real:
		return fmt.Sprintf("%f", v.Float64())
	case lpdf.String:
		return fmt.Sprintf("<%x>", v.RawString())
	case lpdf.Name:
		return "/" + v.Name()
	case lpdf.Array:
		var b strings.Builder
		b.WriteString("[")
		for i := 0; i < v.Len(); i++ {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(formatValue(v.Index(i)))
		}
		b.WriteString("]")
		return b.String()
	case lpdf.Dict:
		var b strings.Builder
		b.WriteString("<<")
		for _, k := range v.Keys() {
			b.WriteString(" /")
			b.WriteString(k)
			b.WriteByte(' ')
			b.WriteString(formatValue(v.Key(k)))
		}
		b.WriteString(" >>")
		return b.String()
	default:
		return "null"
	}
}
