package pdf

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"pdf-translator/internal/logger"
	apptypes "pdf-translator/internal/types"
)

// ComposePage joins the base layer with the regenerated text layer. The
// base layer is bracketed in a state save/restore and the crop box origin
// is re-established before the text layer, then the graphics state
// nesting is repaired if the source stream left it unbalanced.
func ComposePage(baseOps, textOps string, cropX0, cropY0 float64) string {
	content := fmt.Sprintf("q %sQ 1 0 0 1 %g %g cm %s", baseOps, cropX0, cropY0, textOps)
	return BalanceOps(content)
}

// BalanceOps counts state push and pop operators and appends compensating
// pops, before a trailing end-of-text marker when present. Extra pushes
// are never inserted; a pop surplus is left alone and logged.
func BalanceOps(content string) string {
	pushes, pops := 0, 0
	for _, tok := range strings.Fields(content) {
		switch tok {
		case "q":
			pushes++
		case "Q":
			pops++
		}
	}
	if pushes == pops {
		return content
	}
	if pushes < pops {
		logger.Warn("content stream pops more state than it pushes",
			nil, logger.Int("pushes", pushes), logger.Int("pops", pops))
		return content
	}

	logger.Debug("repairing graphics state balance",
		logger.Int("pushes", pushes), logger.Int("pops", pops))
	fix := strings.Repeat("Q ", pushes-pops)
	if strings.HasSuffix(content, "ET ") {
		return content[:len(content)-3] + fix + "ET "
	}
	return content + fix
}

// DocumentAssembler patches page content objects and writes the mono and
// dual outputs.
type DocumentAssembler struct {
	ctx  *model.Context
	conf *model.Configuration
}

// NewDocumentAssembler wraps an open document context.
func NewDocumentAssembler(ctx *model.Context) *DocumentAssembler {
	return &DocumentAssembler{ctx: ctx, conf: model.NewDefaultConfiguration()}
}

// ApplyPatches replaces each patched page's content object with a fresh
// stream. Patches are applied in page order regardless of the order pages
// finished translating.
func (d *DocumentAssembler) ApplyPatches(patches []PagePatch) error {
	sort.Slice(patches, func(i, j int) bool {
		return patches[i].PageNumber < patches[j].PageNumber
	})
	for _, p := range patches {
		pageDict, _, _, err := d.ctx.PageDict(p.PageNumber, false)
		if err != nil {
			return apptypes.NewAppErrorWithDetails(apptypes.ErrAssemble,
				"cannot locate page for patching",
				fmt.Sprintf("page %d", p.PageNumber), err)
		}
		ref, err := newStreamRef(d.ctx, p.Content, nil)
		if err != nil {
			return apptypes.NewAppErrorWithDetails(apptypes.ErrAssemble,
				"cannot store replacement content stream",
				fmt.Sprintf("page %d", p.PageNumber), err)
		}
		pageDict["Contents"] = *ref
	}
	return nil
}

// WriteMono writes the translated-only document. Compression and font
// subsetting run as a best effort pass; on failure the uncompressed
// output stands.
func (d *DocumentAssembler) WriteMono(path string) error {
	if err := api.WriteContextFile(d.ctx, path); err != nil {
		return apptypes.NewAppError(apptypes.ErrAssemble, "cannot write mono output", err)
	}
	if err := api.OptimizeFile(path, "", d.conf); err != nil {
		logger.Warn("output optimization failed, keeping uncompressed result", err,
			logger.String("path", path))
	}
	return nil
}

// WriteDual builds the side-by-side document: every original page at an
// even position, its translation immediately after.
func (d *DocumentAssembler) WriteDual(origPath, monoPath, dualPath string, pageCount int) error {
	merged := dualPath + ".merged.tmp"
	defer os.Remove(merged)

	if err := api.MergeCreateFile([]string{origPath, monoPath}, merged, false, d.conf); err != nil {
		return apptypes.NewAppError(apptypes.ErrAssemble, "cannot merge original with translation", err)
	}

	order := make([]string, 0, 2*pageCount)
	for i := 1; i <= pageCount; i++ {
		order = append(order, strconv.Itoa(i), strconv.Itoa(pageCount+i))
	}
	if err := api.CollectFile(merged, dualPath, order, d.conf); err != nil {
		return apptypes.NewAppError(apptypes.ErrAssemble, "cannot interleave dual output", err)
	}

	if err := api.OptimizeFile(dualPath, "", d.conf); err != nil {
		logger.Warn("output optimization failed, keeping uncompressed result", err,
			logger.String("path", dualPath))
	}
	return nil
}
