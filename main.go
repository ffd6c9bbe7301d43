// Command pdf-translator translates PDF documents while preserving their
// layout. For every input it writes a translated-only copy and a
// side-by-side bilingual copy next to the original.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"pdf-translator/internal/config"
	"pdf-translator/internal/downloader"
	"pdf-translator/internal/layout"
	"pdf-translator/internal/logger"
	"pdf-translator/internal/parser"
	"pdf-translator/internal/pdf"
	"pdf-translator/internal/results"
	"pdf-translator/internal/translator"
	"pdf-translator/internal/types"
)

var (
	configFlag = flag.String("config", "", "path to the configuration file")
	outputFlag = flag.String("output", "", "output directory (default: next to each input)")
	sourceFlag = flag.String("source", "", "source language code, e.g. en")
	targetFlag = flag.String("target", "", "target language code, e.g. zh")
	modelFlag  = flag.String("model", "", "chat model used for translation")
	budgetFlag = flag.Int("workers", 0, "total worker budget shared by pages and paragraphs")
	forceFlag  = flag.Bool("force", false, "retranslate documents with existing outputs")
	listFlag   = flag.Bool("list", false, "list previous translation runs and exit")
	debugFlag  = flag.Bool("debug", false, "enable debug logging")
)

func main() {
	flag.Usage = printUsage
	flag.Parse()

	logger.Init(*debugFlag)
	defer logger.Sync()

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `pdf-translator - layout preserving PDF translation

Usage:
  pdf-translator [flags] <input.pdf | directory>

Flags:
`)
	flag.PrintDefaults()
}

func run() error {
	cfgMgr, err := config.NewConfigManager(*configFlag)
	if err != nil {
		return err
	}
	if err := cfgMgr.Load(); err != nil {
		return err
	}
	cfg := cfgMgr.GetConfig()
	applyFlags(cfg)
	cfg.OpenAIAPIKey = cfgMgr.GetAPIKey()
	cfg.OpenAIBaseURL = cfgMgr.GetBaseURL()

	cacheDir := cfg.CacheDir
	if cacheDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return types.NewAppError(types.ErrConfig, "cannot resolve home directory", err)
		}
		cacheDir = filepath.Join(home, ".cache", "pdf-translator")
	}

	if *listFlag {
		return listRuns(cacheDir)
	}

	if flag.NArg() != 1 {
		printUsage()
		return types.NewAppError(types.ErrInvalidInput, "exactly one input path is required", nil)
	}
	docs, err := parser.ResolveDocuments(flag.Arg(0))
	if err != nil {
		return err
	}

	ctx := context.Background()
	if err := ensureAssets(ctx, cfg, cacheDir); err != nil {
		return err
	}

	model, err := layout.NewDocLayoutModel(cfg.LayoutModelPath, cfg.OnnxRuntimePath)
	if err != nil {
		return err
	}
	defer model.Close()

	engine, err := translator.NewEngine(ctx, translator.EngineConfig{
		APIKey:     cfg.OpenAIAPIKey,
		BaseURL:    cfg.OpenAIBaseURL,
		Model:      cfg.OpenAIModel,
		SourceLang: cfg.SourceLanguage,
		TargetLang: cfg.TargetLanguage,
		MaxRetries: cfg.MaxRetries,
		Timeout:    2 * time.Minute,
	})
	if err != nil {
		return err
	}

	latin, err := pdf.LoadOutputFont(cfg.LatinFontPath, false)
	if err != nil {
		return err
	}
	target, err := pdf.LoadOutputFont(cfg.TargetFontPath, true)
	if err != nil {
		return err
	}

	dt := pdf.NewDocumentTranslator(cfg, model, engine, pdf.NewFontSelector(latin, target))

	cache := pdf.NewTranslationCache(
		filepath.Join(cacheDir, "translations.json"),
		cfg.SourceLanguage, cfg.TargetLanguage, cfg.OpenAIModel)
	if err := cache.Load(); err != nil {
		logger.Warn("translation cache unavailable, starting empty", err)
	}
	dt.SetCache(cache)

	history, err := results.NewManager(cacheDir)
	if err != nil {
		return err
	}

	failed := 0
	for _, doc := range docs {
		if !*forceFlag && history.IsComplete(doc) {
			fmt.Printf("skip  %s (already translated, use -force to redo)\n", doc)
			continue
		}
		if err := translateOne(ctx, dt, history, cfg, doc); err != nil {
			logger.Error("document translation failed", err, logger.String("input", doc))
			fmt.Fprintf(os.Stderr, "fail  %s: %v\n", doc, err)
			failed++
		}
	}
	if failed > 0 {
		return types.NewAppError(types.ErrTranslation,
			fmt.Sprintf("%d of %d documents failed", failed, len(docs)), nil)
	}
	return nil
}

func applyFlags(cfg *types.Config) {
	if *sourceFlag != "" {
		cfg.SourceLanguage = *sourceFlag
	}
	if *targetFlag != "" {
		cfg.TargetLanguage = *targetFlag
	}
	if *modelFlag != "" {
		cfg.OpenAIModel = *modelFlag
	}
	if *budgetFlag > 0 {
		cfg.WorkerBudget = *budgetFlag
	}
}

// ensureAssets fills in any unset model or font path by downloading the
// stock assets into the cache directory.
func ensureAssets(ctx context.Context, cfg *types.Config, cacheDir string) error {
	d := downloader.NewAssetDownloader(filepath.Join(cacheDir, "assets"))
	d.SetProgressFunc(func(name string, received, total int64) {
		if total > 0 {
			fmt.Printf("\rdownloading %s... %d%%", name, received*100/total)
			if received == total {
				fmt.Println()
			}
		}
	})

	if !fileExists(cfg.LayoutModelPath) {
		p, err := d.Ensure(ctx, downloader.ModelAsset)
		if err != nil {
			return err
		}
		cfg.LayoutModelPath = p
	}
	if !fileExists(cfg.LatinFontPath) {
		p, err := d.Ensure(ctx, downloader.LatinFontAsset)
		if err != nil {
			return err
		}
		cfg.LatinFontPath = p
	}
	if !fileExists(cfg.TargetFontPath) {
		p, err := d.Ensure(ctx, downloader.TargetFontAsset)
		if err != nil {
			return err
		}
		cfg.TargetFontPath = p
	}
	return nil
}

func translateOne(ctx context.Context, dt *pdf.DocumentTranslator,
	history *results.Manager, cfg *types.Config, doc string) error {

	rec, err := history.Begin(doc, cfg.SourceLanguage, cfg.TargetLanguage)
	if err != nil {
		return err
	}

	fmt.Printf("translating %s\n", doc)
	dt.SetProgressCallback(func(percent int, message string) {
		fmt.Printf("\r  %3d%% %-40s", percent, message)
	})

	result, err := dt.Translate(ctx, doc, *outputFlag)
	fmt.Println()
	if err != nil {
		if ferr := history.Fail(rec, err); ferr != nil {
			logger.Warn("cannot record failed run", ferr)
		}
		return err
	}
	if err := history.Complete(rec, result); err != nil {
		logger.Warn("cannot record finished run", err)
	}

	fmt.Printf("  mono: %s\n  dual: %s\n", result.MonoPath, result.DualPath)
	if result.FallbackParagraphs > 0 {
		fmt.Printf("  note: %d paragraphs kept their original text\n", result.FallbackParagraphs)
	}
	return nil
}

func listRuns(cacheDir string) error {
	history, err := results.NewManager(cacheDir)
	if err != nil {
		return err
	}
	recs, err := history.List()
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Println("no translation runs recorded")
		return nil
	}
	for _, r := range recs {
		fmt.Printf("%-10s %s -> %s  %s\n", r.Status, r.SourceLang, r.TargetLang, r.InputPath)
	}
	return nil
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
