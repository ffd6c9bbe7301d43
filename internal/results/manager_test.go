package results

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf-translator/internal/types"
)

func TestManagerLifecycle(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	rec, err := m.Begin("/papers/attention.pdf", "en", "zh")
	require.NoError(t, err)
	assert.Equal(t, StatusTranslating, rec.Status)

	got, err := m.Get("/papers/attention.pdf")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.ID, got.ID)

	result := &types.TranslateResult{
		InputPath: "/papers/attention.pdf",
		MonoPath:  "/papers/attention-mono.pdf",
		DualPath:  "/papers/attention-dual.pdf",
		PageCount: 15,
	}
	require.NoError(t, m.Complete(rec, result))

	got, err = m.Get("/papers/attention.pdf")
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, got.Status)
	assert.Equal(t, 15, got.Result.PageCount)
	assert.False(t, got.FinishedAt.IsZero())
}

func TestManagerFail(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	rec, err := m.Begin("/papers/a.pdf", "en", "ja")
	require.NoError(t, err)
	require.NoError(t, m.Fail(rec, errors.New("layout model unavailable")))

	got, err := m.Get("/papers/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, StatusError, got.Status)
	assert.Equal(t, "layout model unavailable", got.Error)
}

func TestManagerListAndDelete(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	_, err = m.Begin("/papers/a.pdf", "en", "zh")
	require.NoError(t, err)
	_, err = m.Begin("/papers/b.pdf", "en", "zh")
	require.NoError(t, err)

	recs, err := m.List()
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	require.NoError(t, m.Delete("/papers/a.pdf"))
	recs, err = m.List()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "/papers/b.pdf", recs[0].InputPath)

	// deleting a record twice stays silent
	assert.NoError(t, m.Delete("/papers/a.pdf"))
}

func TestManagerIsComplete(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir)
	require.NoError(t, err)

	input := filepath.Join(dir, "paper.pdf")
	mono := filepath.Join(dir, "paper-mono.pdf")
	dual := filepath.Join(dir, "paper-dual.pdf")

	rec, err := m.Begin(input, "en", "zh")
	require.NoError(t, err)
	assert.False(t, m.IsComplete(input), "a running record is never complete")

	require.NoError(t, m.Complete(rec, &types.TranslateResult{
		InputPath: input, MonoPath: mono, DualPath: dual,
	}))
	assert.False(t, m.IsComplete(input), "outputs missing on disk")

	require.NoError(t, os.WriteFile(mono, []byte("%PDF"), 0o644))
	require.NoError(t, os.WriteFile(dual, []byte("%PDF"), 0o644))
	assert.True(t, m.IsComplete(input))
}

func TestManagerSurvivesReload(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir)
	require.NoError(t, err)
	_, err = m.Begin("/papers/a.pdf", "en", "zh")
	require.NoError(t, err)

	reopened, err := NewManager(dir)
	require.NoError(t, err)
	got, err := reopened.Get("/papers/a.pdf")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "/papers/a.pdf", got.InputPath)
}
