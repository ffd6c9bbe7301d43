package pdf

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"pdf-translator/internal/types"
)

// CacheEntry is one cached paragraph translation.
type CacheEntry struct {
	Hash        string    `json:"hash"`
	Original    string    `json:"original"`
	Translation string    `json:"translation"`
	CreatedAt   time.Time `json:"created_at"`
}

// TranslationCache stores paragraph translations keyed by a hash of the
// text together with the language pair and model, so switching either
// never serves stale entries. Safe for concurrent use by paragraph
// workers.
type TranslationCache struct {
	cachePath string
	scope     string // "<source>|<target>|<model>|"
	cache     map[string]CacheEntry
	mu        sync.RWMutex
}

// NewTranslationCache creates a cache persisted at cachePath. An empty
// path keeps the cache in memory only.
func NewTranslationCache(cachePath, sourceLang, targetLang, model string) *TranslationCache {
	return &TranslationCache{
		cachePath: cachePath,
		scope:     sourceLang + "|" + targetLang + "|" + model + "|",
		cache:     make(map[string]CacheEntry),
	}
}

// ComputeHash hashes a paragraph within the cache's language/model scope.
func (c *TranslationCache) ComputeHash(text string) string {
	hash := sha256.Sum256([]byte(c.scope + text))
	return hex.EncodeToString(hash[:])
}

// Get returns the cached translation for text, if any.
func (c *TranslationCache) Get(text string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.cache[c.ComputeHash(text)]
	if !ok {
		return "", false
	}
	return entry.Translation, true
}

// Set stores a translation.
func (c *TranslationCache) Set(text, translation string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	hash := c.ComputeHash(text)
	c.cache[hash] = CacheEntry{
		Hash:        hash,
		Original:    text,
		Translation: translation,
		CreatedAt:   time.Now(),
	}
}

// Size returns the number of cached entries.
func (c *TranslationCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

// Load reads previously persisted entries. A missing file starts empty.
func (c *TranslationCache) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cachePath == "" {
		return nil
	}
	if _, err := os.Stat(c.cachePath); os.IsNotExist(err) {
		return nil
	}
	data, err := os.ReadFile(c.cachePath)
	if err != nil {
		return types.NewAppError(types.ErrResource, "failed to read translation cache", err)
	}
	var entries map[string]CacheEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return types.NewAppError(types.ErrResource, "translation cache is corrupt", err)
	}
	c.cache = entries
	return nil
}

// Save persists the cache to disk.
func (c *TranslationCache) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.cachePath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(c.cachePath), 0o755); err != nil {
		return types.NewAppError(types.ErrResource, "failed to create cache directory", err)
	}
	data, err := json.MarshalIndent(c.cache, "", "  ")
	if err != nil {
		return types.NewAppError(types.ErrResource, "failed to encode translation cache", err)
	}
	if err := os.WriteFile(c.cachePath, data, 0o644); err != nil {
		return types.NewAppError(types.ErrResource, "failed to write translation cache", err)
	}
	return nil
}
