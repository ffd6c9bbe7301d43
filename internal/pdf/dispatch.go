package pdf

import (
	"context"
	"strings"
	"sync"

	"pdf-translator/internal/logger"
	"pdf-translator/internal/translator"
)

// DispatchStats summarizes one page's translation phase.
type DispatchStats struct {
	// Fallbacks counts paragraphs that kept their original text after
	// the translator's retry budget ran out.
	Fallbacks int
	// Cached counts paragraphs served from the translation cache.
	Cached int
}

// Dispatcher sends paragraph texts to the translator, at most workers at
// a time. Failures are isolated per paragraph: the original text is
// substituted and the page continues.
type Dispatcher struct {
	translator translator.Translator
	cache      *TranslationCache // nil disables caching
	workers    int
}

// NewDispatcher builds a dispatcher with a per-page worker cap.
func NewDispatcher(t translator.Translator, cache *TranslationCache, workers int) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{translator: t, cache: cache, workers: workers}
}

// TranslateParagraphs translates every paragraph concurrently and returns
// the results in paragraph order.
func (d *Dispatcher) TranslateParagraphs(ctx context.Context, paras []Paragraph) ([]string, DispatchStats) {
	out := make([]string, len(paras))
	var stats DispatchStats
	var mu sync.Mutex
	sem := make(chan struct{}, d.workers)
	var wg sync.WaitGroup

	for i := range paras {
		text := paras[i].Text
		if strings.TrimSpace(text) == "" {
			out[i] = text
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(i int, text string) {
			defer wg.Done()
			defer func() { <-sem }()

			if d.cache != nil {
				if cached, ok := d.cache.Get(text); ok {
					out[i] = cached
					mu.Lock()
					stats.Cached++
					mu.Unlock()
					return
				}
			}

			translated, err := d.translator.Translate(ctx, text)
			if err != nil {
				logger.Warn("paragraph translation failed, keeping original text", err,
					logger.Int("paragraph", i))
				out[i] = text
				mu.Lock()
				stats.Fallbacks++
				mu.Unlock()
				return
			}
			out[i] = translated
			if d.cache != nil {
				d.cache.Set(text, translated)
			}
		}(i, text)
	}

	wg.Wait()
	return out, stats
}
