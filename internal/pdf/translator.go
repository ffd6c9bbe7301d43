package pdf

import (
	"context"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	lpdf "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"pdf-translator/internal/config"
	"pdf-translator/internal/layout"
	"pdf-translator/internal/logger"
	"pdf-translator/internal/translator"
	"pdf-translator/internal/types"
)

// PageRasterizer renders document pages to images for layout
// classification.
type PageRasterizer interface {
	RenderPage(pdfPath string, pageNum int) (image.Image, error)
}

// DocumentTranslator runs the whole pipeline for one document: font
// injection barrier, then per-page interpretation, classification,
// assembly, translation and regeneration in parallel, then patching and
// output assembly in page order.
type DocumentTranslator struct {
	cfg        *types.Config
	model      layout.Model
	translator translator.Translator
	fonts      *FontSelector

	policy     FormulaPolicy
	cache      *TranslationCache
	progress   types.ProgressCallback
	rasterizer PageRasterizer
}

// NewDocumentTranslator wires the external capabilities into a document
// translator. model and trans are required; there is no fallback path
// when the layout model is unavailable.
func NewDocumentTranslator(cfg *types.Config, model layout.Model, trans translator.Translator, fonts *FontSelector) *DocumentTranslator {
	return &DocumentTranslator{
		cfg:        cfg,
		model:      model,
		translator: trans,
		fonts:      fonts,
		policy:     DefaultFormulaPolicy{},
	}
}

// SetProgressCallback registers a progress reporter. It may be invoked
// from multiple page workers concurrently.
func (t *DocumentTranslator) SetProgressCallback(cb types.ProgressCallback) { t.progress = cb }

// SetCache enables the paragraph translation cache.
func (t *DocumentTranslator) SetCache(c *TranslationCache) { t.cache = c }

// SetFormulaPolicy swaps the formula boundary heuristic.
func (t *DocumentTranslator) SetFormulaPolicy(p FormulaPolicy) {
	if p != nil {
		t.policy = p
	}
}

// SetRasterizer swaps the page rasterizer. The caller owns its lifecycle;
// without one a pdftoppm backed rasterizer is created per document.
func (t *DocumentTranslator) SetRasterizer(r PageRasterizer) { t.rasterizer = r }

func (t *DocumentTranslator) report(percent int, message string) {
	if t.progress != nil {
		t.progress(percent, message)
	}
}

// pageOutcome aggregates per-page counters, written once per page worker.
type pageOutcome struct {
	paragraphs int
	skipped    int
	stats      DispatchStats
	fonts      map[string]*SourceFont
}

// Translate produces the mono and dual outputs for inputPath in
// outputDir. Only a layout model failure aborts the document; every other
// error class degrades to keeping the original content.
func (t *DocumentTranslator) Translate(ctx context.Context, inputPath, outputDir string) (*types.TranslateResult, error) {
	if _, err := os.Stat(inputPath); err != nil {
		return nil, types.NewAppError(types.ErrFileNotFound, "input document not found", err)
	}
	t.report(2, "opening document")

	pctx, err := api.ReadContextFile(inputPath)
	if err != nil {
		return nil, types.NewAppError(types.ErrParse, "cannot read input document", err)
	}
	pageCount := pctx.PageCount

	// barrier: both output fonts must be reachable from every page's
	// resources before any page is regenerated
	injector := NewFontInjector(pctx, t.fonts)
	if err := injector.Embed(); err != nil {
		return nil, err
	}
	injector.InjectAll()
	t.report(8, "fonts embedded")

	rasterizer := t.rasterizer
	if rasterizer == nil {
		r, err := layout.NewRasterizer(layout.DefaultDPI)
		if err != nil {
			return nil, err
		}
		defer r.Cleanup()
		rasterizer = r
	}

	f, reader, err := lpdf.Open(inputPath)
	if err != nil {
		return nil, types.NewAppError(types.ErrParse, "cannot parse input document", err)
	}
	defer f.Close()
	if n := reader.NumPage(); n < pageCount {
		pageCount = n
	}

	lineHeight := config.LineHeightFor(t.cfg.TargetLanguage, t.cfg.LineHeights)
	regen := NewRegenerator(t.fonts, lineHeight, 1.0)

	pagesInFlight, perPage := splitWorkerBudget(t.cfg.WorkerBudget, pageCount)
	logger.Info("translating document",
		logger.String("input", inputPath),
		logger.Int("pages", pageCount),
		logger.Int("pages_in_flight", pagesInFlight),
		logger.Int("workers_per_page", perPage))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	patches := make([]PagePatch, pageCount)
	outcomes := make([]pageOutcome, pageCount)

	var firstErr error
	var errMu sync.Mutex
	fail := func(err error) {
		errMu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		errMu.Unlock()
	}

	var done int
	var doneMu sync.Mutex
	sem := make(chan struct{}, pagesInFlight)
	var wg sync.WaitGroup

	for pageNum := 1; pageNum <= pageCount; pageNum++ {
		wg.Add(1)
		go func(pageNum int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			if runCtx.Err() != nil {
				return
			}

			if err := t.translatePage(runCtx, reader, rasterizer, regen, perPage,
				inputPath, pageNum, &patches[pageNum-1], &outcomes[pageNum-1]); err != nil {
				fail(err)
				return
			}

			doneMu.Lock()
			done++
			pct := 10 + 85*done/pageCount
			doneMu.Unlock()
			t.report(pct, fmt.Sprintf("page %d/%d translated", done, pageCount))
		}(pageNum)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, types.NewAppError(types.ErrInternal, "translation canceled", err)
	}

	// page workers only read the document context; resource dictionaries
	// are mutated here, after all workers have finished
	for i, o := range outcomes {
		injector.PromoteNestedFonts(i+1, o.fonts)
	}
	injector.FinalizeWidths()

	assembler := NewDocumentAssembler(pctx)
	applied := make([]PagePatch, 0, len(patches))
	for _, p := range patches {
		if p.PageNumber > 0 {
			applied = append(applied, p)
		}
	}
	if err := assembler.ApplyPatches(applied); err != nil {
		return nil, err
	}

	if outputDir == "" {
		outputDir = filepath.Dir(inputPath)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, types.NewAppError(types.ErrResource, "cannot create output directory", err)
	}
	stem := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	monoPath := filepath.Join(outputDir, stem+"-mono.pdf")
	dualPath := filepath.Join(outputDir, stem+"-dual.pdf")

	t.report(96, "writing outputs")
	if err := assembler.WriteMono(monoPath); err != nil {
		return nil, err
	}
	if err := assembler.WriteDual(inputPath, monoPath, dualPath, pageCount); err != nil {
		return nil, err
	}

	if t.cache != nil {
		if err := t.cache.Save(); err != nil {
			logger.Warn("could not persist translation cache", err)
		}
	}

	result := &types.TranslateResult{
		InputPath:        inputPath,
		MonoPath:         monoPath,
		DualPath:         dualPath,
		PageCount:        pageCount,
		ResourceFailures: injector.Failures,
	}
	for _, o := range outcomes {
		result.ParagraphCount += o.paragraphs
		result.SkippedOperators += o.skipped
		result.FallbackParagraphs += o.stats.Fallbacks
		result.CachedParagraphs += o.stats.Cached
	}

	t.report(100, "done")
	logger.Info("document translated",
		logger.String("mono", monoPath),
		logger.String("dual", dualPath),
		logger.Int("paragraphs", result.ParagraphCount),
		logger.Int("fallbacks", result.FallbackParagraphs))
	return result, nil
}

// translatePage runs interpretation, classification, assembly, dispatch
// and regeneration for one page. Only layout model failures return an
// error.
func (t *DocumentTranslator) translatePage(ctx context.Context, reader *lpdf.Reader,
	rasterizer PageRasterizer, regen *Regenerator, perPage int,
	inputPath string, pageNum int, patch *PagePatch, outcome *pageOutcome) error {

	img, err := rasterizer.RenderPage(inputPath, pageNum)
	if err != nil {
		return types.NewAppErrorWithDetails(types.ErrLayoutModel,
			"cannot rasterize page for layout classification",
			fmt.Sprintf("page %d", pageNum), err)
	}
	dets, err := t.model.Detect(img)
	if err != nil {
		return types.NewAppErrorWithDetails(types.ErrLayoutModel,
			"layout model unavailable",
			fmt.Sprintf("page %d", pageNum), err)
	}

	page := reader.Page(pageNum)
	if page.V.IsNull() {
		logger.Warn("page object missing, keeping original content", nil,
			logger.Int("page", pageNum))
		return nil
	}

	ip := InterpretPage(page, pageNum)
	outcome.skipped = ip.SkippedOps
	outcome.fonts = ip.Fonts

	mask := layout.BuildMask(dets, img.Bounds().Dx(), img.Bounds().Dy(), ip.Width, ip.Height)
	asm := NewAssembler(mask, ip.Width, t.policy)
	for _, item := range ip.Items {
		asm.Observe(item)
	}
	pl := asm.Finish()
	outcome.paragraphs = len(pl.Paragraphs)

	var translated []string
	if pl.HasText {
		dispatcher := NewDispatcher(t.translator, t.cache, perPage)
		translated, outcome.stats = dispatcher.TranslateParagraphs(ctx, pl.Paragraphs)
	}

	textOps := regen.RenderPage(pl, translated)
	content := ComposePage(ip.BaseOps, textOps, ip.CropX0, ip.CropY0)
	*patch = PagePatch{PageNumber: pageNum, Content: []byte(content)}
	return nil
}

// splitWorkerBudget divides the global worker budget into the two
// concurrency axes so pages in flight times workers per page never
// exceeds it.
func splitWorkerBudget(budget, pages int) (pagesInFlight, perPage int) {
	if budget < 1 {
		budget = 1
	}
	pagesInFlight = int(math.Sqrt(float64(budget)))
	if pagesInFlight < 1 {
		pagesInFlight = 1
	}
	if pages > 0 && pagesInFlight > pages {
		pagesInFlight = pages
	}
	perPage = budget / pagesInFlight
	if perPage < 1 {
		perPage = 1
	}
	return pagesInFlight, perPage
}
