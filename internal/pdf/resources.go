package pdf

import (
	"sort"

	"github.com/pdfcpu/pdfcpu/pkg/filter"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"pdf-translator/internal/logger"
	apptypes "pdf-translator/internal/types"
)

// FontInjector embeds the two output fonts into the document and wires
// them into every page's resource dictionary before any page is
// regenerated. Injection runs once, up front, and is idempotent: existing
// same-named entries are never overwritten.
type FontInjector struct {
	ctx   *model.Context
	fonts *FontSelector

	latinRef  *types.IndirectRef
	targetRef *types.IndirectRef
	widthsRef *types.IndirectRef

	// Failures counts pages whose resource dictionary could not be
	// patched; those pages fall back to source fonts only.
	Failures int
}

// NewFontInjector builds an injector over an open document context.
func NewFontInjector(ctx *model.Context, fonts *FontSelector) *FontInjector {
	return &FontInjector{ctx: ctx, fonts: fonts}
}

// Embed creates the font program, descriptor and font dictionary objects
// for both output fonts.
func (fi *FontInjector) Embed() error {
	var err error
	if fi.latinRef, err = fi.embedSimpleFont(fi.fonts.Latin); err != nil {
		return apptypes.NewAppError(apptypes.ErrResource, "cannot embed latin font", err)
	}
	if fi.targetRef, err = fi.embedCIDFont(fi.fonts.Target); err != nil {
		return apptypes.NewAppError(apptypes.ErrResource, "cannot embed target font", err)
	}
	return nil
}

// InjectAll walks every page and adds the two font references to its
// resource dictionary. Pages without a resource dictionary are skipped
// silently; per-page failures are counted and never abort the document.
func (fi *FontInjector) InjectAll() {
	for pageNr := 1; pageNr <= fi.ctx.PageCount; pageNr++ {
		if err := fi.injectPage(pageNr); err != nil {
			fi.Failures++
			logger.Warn("font injection failed, page keeps source fonts only", err,
				logger.Int("page", pageNr))
		}
	}
}

func (fi *FontInjector) injectPage(pageNr int) error {
	pageDict, _, _, err := fi.ctx.PageDict(pageNr, false)
	if err != nil {
		return err
	}
	if pageDict == nil {
		return nil
	}
	resObj, found := pageDict.Find("Resources")
	if !found {
		// a page with no resources has no text and needs no fonts
		return nil
	}
	resDict, err := fi.ctx.DereferenceDict(resObj)
	if err != nil {
		return err
	}
	if resDict == nil {
		return nil
	}

	var fontDict types.Dict
	if fontObj, ok := resDict.Find("Font"); ok {
		fontDict, err = fi.ctx.DereferenceDict(fontObj)
		if err != nil {
			return err
		}
		if fontDict == nil {
			fontDict = types.Dict{}
			resDict["Font"] = fontDict
		}
	} else {
		fontDict = types.Dict{}
		resDict["Font"] = fontDict
	}

	if _, ok := fontDict.Find(LatinFontRes); !ok {
		fontDict[LatinFontRes] = *fi.latinRef
	}
	if _, ok := fontDict.Find(TargetFontRes); !ok {
		fontDict[TargetFontRes] = *fi.targetRef
	}
	return nil
}

// PromoteNestedFonts copies fonts that interpretation resolved inside Form
// XObject scopes into the page's own Font dictionary. Formula runs are
// re-emitted in the page content stream under the resource name of the
// scope that resolved them, so every such name must resolve at page level
// too. A page-level entry with the same name always wins.
func (fi *FontInjector) PromoteNestedFonts(pageNr int, fonts map[string]*SourceFont) {
	if len(fonts) == 0 {
		return
	}
	pageDict, _, _, err := fi.ctx.PageDict(pageNr, false)
	if err != nil || pageDict == nil {
		return
	}
	resObj, found := pageDict.Find("Resources")
	if !found {
		return
	}
	resDict, err := fi.ctx.DereferenceDict(resObj)
	if err != nil || resDict == nil {
		return
	}
	fontObj, found := resDict.Find("Font")
	if !found {
		return
	}
	fontDict, err := fi.ctx.DereferenceDict(fontObj)
	if err != nil || fontDict == nil {
		return
	}

	want := make(map[string]bool, len(fonts))
	for name := range fonts {
		if _, ok := fontDict.Find(name); !ok {
			want[name] = true
		}
	}
	if len(want) == 0 {
		return
	}
	fi.hoistFonts(resDict, fontDict, want, make(map[int]bool), 0)
	for name := range want {
		logger.Warn("nested font unreachable at page level, formula run keeps dangling name", nil,
			logger.String("font", name), logger.Int("page", pageNr))
	}
}

// hoistFonts walks the Form XObject tree under resDict and copies Font
// entries named in want into pageFonts. Visited object numbers guard
// against resource cycles.
func (fi *FontInjector) hoistFonts(resDict, pageFonts types.Dict, want map[string]bool, seen map[int]bool, depth int) {
	if depth >= maxFormDepth || len(want) == 0 {
		return
	}
	xObj, found := resDict.Find("XObject")
	if !found {
		return
	}
	xDict, err := fi.ctx.DereferenceDict(xObj)
	if err != nil || xDict == nil {
		return
	}
	for _, obj := range xDict {
		if ref, ok := obj.(types.IndirectRef); ok {
			nr := ref.ObjectNumber.Value()
			if seen[nr] {
				continue
			}
			seen[nr] = true
		}
		sd, _, err := fi.ctx.DereferenceStreamDict(obj)
		if err != nil || sd == nil {
			continue
		}
		if sub := sd.Dict.Subtype(); sub == nil || *sub != "Form" {
			continue
		}
		nestedObj, found := sd.Dict.Find("Resources")
		if !found {
			continue
		}
		nested, err := fi.ctx.DereferenceDict(nestedObj)
		if err != nil || nested == nil {
			continue
		}
		if fObj, ok := nested.Find("Font"); ok {
			if fDict, err := fi.ctx.DereferenceDict(fObj); err == nil {
				for name := range want {
					if entry, ok := fDict.Find(name); ok {
						pageFonts[name] = entry
						delete(want, name)
					}
				}
			}
		}
		fi.hoistFonts(nested, pageFonts, want, seen, depth+1)
	}
}

// FinalizeWidths replaces the CID width array placeholder with the widths
// of the glyphs actually used during regeneration. Must run after all
// pages have been regenerated and before the document is written.
func (fi *FontInjector) FinalizeWidths() {
	if fi.widthsRef == nil {
		return
	}
	entry, ok := fi.ctx.FindTableEntryForIndRef(fi.widthsRef)
	if !ok {
		logger.Warn("width array object vanished, output keeps default widths", nil)
		return
	}
	entry.Object = buildWidthArray(fi.fonts.UsedGlyphs())
}

// newStreamRef stores data as a new flate encoded stream object.
func newStreamRef(ctx *model.Context, data []byte, extra types.Dict) (*types.IndirectRef, error) {
	d := types.Dict{}
	for k, v := range extra {
		d[k] = v
	}
	sd := types.StreamDict{
		Dict:           d,
		Content:        data,
		FilterPipeline: []types.PDFFilter{{Name: filter.Flate}},
	}
	sd.InsertName("Filter", filter.Flate)
	if err := sd.Encode(); err != nil {
		return nil, err
	}
	sd.Dict["Length"] = types.Integer(len(sd.Raw))
	return ctx.IndRefForNewObject(sd)
}

func (fi *FontInjector) descriptorRef(f *OutputFont, flags int) (*types.IndirectRef, error) {
	ffRef, err := newStreamRef(fi.ctx, f.Data(), types.Dict{"Length1": types.Integer(len(f.Data()))})
	if err != nil {
		return nil, err
	}
	ascent, descent := f.Metrics()
	fd := types.Dict{
		"Type":        types.Name("FontDescriptor"),
		"FontName":    types.Name(f.Name()),
		"Flags":       types.Integer(flags),
		"FontBBox":    types.NewNumberArray(-1000, float64(descent), 2000, float64(ascent)),
		"ItalicAngle": types.Integer(0),
		"Ascent":      types.Integer(ascent),
		"Descent":     types.Integer(descent),
		"CapHeight":   types.Integer(ascent),
		"StemV":       types.Integer(80),
		"FontFile2":   *ffRef,
	}
	return fi.ctx.IndRefForNewObject(fd)
}

// embedSimpleFont builds a one-byte TrueType font with WinAnsi encoding.
// Codes in the 0x80-0x9F window are never emitted and get zero widths.
func (fi *FontInjector) embedSimpleFont(f *OutputFont) (*types.IndirectRef, error) {
	fdRef, err := fi.descriptorRef(f, 32)
	if err != nil {
		return nil, err
	}

	widths := types.Array{}
	for code := 32; code <= 255; code++ {
		w := 0
		if latinEncodable(rune(code)) {
			if adv, ok := f.AdvanceEm(rune(code)); ok {
				w = int(adv * glyphQuantum)
			}
		}
		widths = append(widths, types.Integer(w))
	}

	return fi.ctx.IndRefForNewObject(types.Dict{
		"Type":           types.Name("Font"),
		"Subtype":        types.Name("TrueType"),
		"BaseFont":       types.Name(f.Name()),
		"FirstChar":      types.Integer(32),
		"LastChar":       types.Integer(255),
		"Widths":         widths,
		"Encoding":       types.Name("WinAnsiEncoding"),
		"FontDescriptor": *fdRef,
	})
}

// embedCIDFont builds a Type0 font with Identity-H encoding addressed by
// glyph id. The width array starts empty and is finalized once the used
// glyph set is known.
func (fi *FontInjector) embedCIDFont(f *OutputFont) (*types.IndirectRef, error) {
	fdRef, err := fi.descriptorRef(f, 4)
	if err != nil {
		return nil, err
	}

	fi.widthsRef, err = fi.ctx.IndRefForNewObject(types.Array{})
	if err != nil {
		return nil, err
	}

	descRef, err := fi.ctx.IndRefForNewObject(types.Dict{
		"Type":     types.Name("Font"),
		"Subtype":  types.Name("CIDFontType2"),
		"BaseFont": types.Name(f.Name()),
		"CIDSystemInfo": types.Dict{
			"Registry":   types.StringLiteral("Adobe"),
			"Ordering":   types.StringLiteral("Identity"),
			"Supplement": types.Integer(0),
		},
		"FontDescriptor": *fdRef,
		"DW":             types.Integer(1000),
		"W":              *fi.widthsRef,
		"CIDToGIDMap":    types.Name("Identity"),
	})
	if err != nil {
		return nil, err
	}

	return fi.ctx.IndRefForNewObject(types.Dict{
		"Type":            types.Name("Font"),
		"Subtype":         types.Name("Type0"),
		"BaseFont":        types.Name(f.Name()),
		"Encoding":        types.Name("Identity-H"),
		"DescendantFonts": types.Array{*descRef},
	})
}

// buildWidthArray renders used glyph widths as runs of consecutive glyph
// ids, the "c [w1 w2 ...]" form of a CIDFont W array.
func buildWidthArray(used map[uint16]int) types.Array {
	gids := make([]int, 0, len(used))
	for gid := range used {
		gids = append(gids, int(gid))
	}
	sort.Ints(gids)

	arr := types.Array{}
	for i := 0; i < len(gids); {
		j := i
		for j+1 < len(gids) && gids[j+1] == gids[j]+1 {
			j++
		}
		run := types.Array{}
		for k := i; k <= j; k++ {
			run = append(run, types.Integer(used[uint16(gids[k])]))
		}
		arr = append(arr, types.Integer(gids[i]), run)
		i = j + 1
	}
	return arr
}
