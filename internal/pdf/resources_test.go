package pdf

import (
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildWidthArrayGroupsConsecutiveGlyphs(t *testing.T) {
	used := map[uint16]int{
		10: 500,
		11: 520,
		12: 480,
		40: 1000,
	}

	arr := buildWidthArray(used)

	// two runs: 10 [500 520 480] and 40 [1000]
	require.Len(t, arr, 4)
	assert.Equal(t, types.Integer(10), arr[0])
	assert.Equal(t, types.Array{types.Integer(500), types.Integer(520), types.Integer(480)}, arr[1])
	assert.Equal(t, types.Integer(40), arr[2])
	assert.Equal(t, types.Array{types.Integer(1000)}, arr[3])
}

func TestBuildWidthArrayEmpty(t *testing.T) {
	assert.Empty(t, buildWidthArray(nil))
}

func newTestFontRef(t *testing.T, ctx *model.Context, base string) types.IndirectRef {
	t.Helper()
	ref, err := ctx.IndRefForNewObject(types.Dict{
		"Type":     types.Name("Font"),
		"Subtype":  types.Name("Type1"),
		"BaseFont": types.Name(base),
	})
	require.NoError(t, err)
	return *ref
}

func newTestFormRef(t *testing.T, ctx *model.Context, res types.Dict) types.IndirectRef {
	t.Helper()
	sd, err := ctx.NewStreamDictForBuf(nil)
	require.NoError(t, err)
	sd.Dict["Subtype"] = types.Name("Form")
	sd.Dict["Resources"] = res
	ref, err := ctx.IndRefForNewObject(*sd)
	require.NoError(t, err)
	return *ref
}

// newTestPageContext builds a one page document whose Resources dict is
// returned for inspection.
func newTestPageContext(t *testing.T, resources types.Dict) *model.Context {
	t.Helper()
	ctx, err := pdfcpu.CreateContextWithXRefTable(nil, types.PaperSize["A4"])
	require.NoError(t, err)

	pagesRef, err := ctx.Pages()
	require.NoError(t, err)
	pagesDict, err := ctx.DereferenceDict(*pagesRef)
	require.NoError(t, err)

	pageRef, err := ctx.IndRefForNewObject(types.Dict{
		"Type":      types.Name("Page"),
		"Parent":    *pagesRef,
		"Resources": resources,
	})
	require.NoError(t, err)
	pagesDict["Kids"] = types.Array{*pageRef}
	pagesDict["Count"] = types.Integer(1)
	ctx.PageCount = 1
	return ctx
}

func TestPromoteNestedFontsHoistsFormScopeFonts(t *testing.T) {
	pageRes := types.Dict{}
	ctx := newTestPageContext(t, pageRes)

	pageFont := newTestFontRef(t, ctx, "Helvetica")
	innerFont := newTestFontRef(t, ctx, "CMSY7")
	nestedFont := newTestFontRef(t, ctx, "CMMI10")
	shadowed := newTestFontRef(t, ctx, "Times-Roman")

	inner := newTestFormRef(t, ctx, types.Dict{
		"Font": types.Dict{"F8": innerFont},
	})
	form := newTestFormRef(t, ctx, types.Dict{
		"Font":    types.Dict{"F9": nestedFont, "F1": shadowed},
		"XObject": types.Dict{"Fm1": inner},
	})
	pageRes["Font"] = types.Dict{"F1": pageFont}
	pageRes["XObject"] = types.Dict{"Fm0": form}

	fi := NewFontInjector(ctx, nil)
	fi.PromoteNestedFonts(1, map[string]*SourceFont{
		"F1": {ResName: "F1"},
		"F8": {ResName: "F8"},
		"F9": {ResName: "F9"},
	})

	fonts := pageRes["Font"].(types.Dict)
	assert.Equal(t, nestedFont, fonts["F9"])
	assert.Equal(t, innerFont, fonts["F8"])
	// a page level entry always wins over a same named nested font
	assert.Equal(t, pageFont, fonts["F1"])
}

func TestPromoteNestedFontsLeavesPageWithoutFormsAlone(t *testing.T) {
	pageRes := types.Dict{"Font": types.Dict{}}
	ctx := newTestPageContext(t, pageRes)

	fi := NewFontInjector(ctx, nil)
	fi.PromoteNestedFonts(1, map[string]*SourceFont{"F9": {ResName: "F9"}})

	assert.Empty(t, pageRes["Font"].(types.Dict))
}
