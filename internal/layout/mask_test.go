package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func classID(label string) int {
	for i, name := range ClassNames {
		if name == label {
			return i
		}
	}
	return -1
}

func TestBuildMaskDefaultsToBody(t *testing.T) {
	mask := BuildMask(nil, 612, 792, 612, 792)

	assert.Equal(t, BodyRegion, mask.ClassAt(10, 10))
	assert.Equal(t, BodyRegion, mask.ClassAt(300, 400))
}

func TestBuildMaskPaintsNonBodyRegions(t *testing.T) {
	figure := classID("figure")
	dets := []Detection{
		{Box: Box{X0: 100, Y0: 100, X1: 200, Y1: 200}, Class: figure, Label: "figure", Confidence: 0.9},
	}
	mask := BuildMask(dets, 612, 792, 612, 792)

	// Image row 150 maps to page y = 792-150 = 642.
	assert.Equal(t, figure+1, mask.ClassAt(150, 642))
	assert.Equal(t, BodyRegion, mask.ClassAt(400, 642))
}

func TestBuildMaskIgnoresBodyClasses(t *testing.T) {
	dets := []Detection{
		{Box: Box{X0: 0, Y0: 0, X1: 600, Y1: 780}, Class: classID("plain text"), Label: "plain text", Confidence: 0.99},
	}
	mask := BuildMask(dets, 612, 792, 612, 792)

	assert.Equal(t, BodyRegion, mask.ClassAt(300, 400))
}

func TestBuildMaskHigherConfidenceWinsOnOverlap(t *testing.T) {
	table := classID("table")
	formula := classID("isolate_formula")
	// Confidence-descending input; both cover the same area. The higher
	// confidence detection must be painted last and win.
	dets := []Detection{
		{Box: Box{X0: 100, Y0: 100, X1: 300, Y1: 300}, Class: table, Label: "table", Confidence: 0.95},
		{Box: Box{X0: 100, Y0: 100, X1: 300, Y1: 300}, Class: formula, Label: "isolate_formula", Confidence: 0.40},
	}
	mask := BuildMask(dets, 612, 792, 612, 792)

	assert.Equal(t, table+1, mask.ClassAt(200, 792-200))
}

func TestBuildMaskScalesFromImageResolution(t *testing.T) {
	figure := classID("figure")
	// Image rendered at 2x the page size.
	dets := []Detection{
		{Box: Box{X0: 200, Y0: 200, X1: 400, Y1: 400}, Class: figure, Label: "figure", Confidence: 0.9},
	}
	mask := BuildMask(dets, 1224, 1584, 612, 792)

	// Image (300, 300) -> page (150, 792-150).
	assert.Equal(t, figure+1, mask.ClassAt(150, 792-150))
	assert.Equal(t, BodyRegion, mask.ClassAt(500, 100))
}

func TestClassAtClampsOutOfRange(t *testing.T) {
	figure := classID("figure")
	dets := []Detection{
		{Box: Box{X0: 0, Y0: 780, X1: 20, Y1: 792}, Class: figure, Label: "figure", Confidence: 0.9},
	}
	mask := BuildMask(dets, 612, 792, 612, 792)

	assert.Equal(t, figure+1, mask.ClassAt(-5, 3))
	assert.NotPanics(t, func() { mask.ClassAt(10000, 10000) })
}

func TestDecodePredictionsFiltersAndRescales(t *testing.T) {
	// Two rows: one above threshold, one below.
	data := []float32{
		110, 120, 210, 220, 0.8, 3,
		50, 50, 60, 60, 0.1, 5,
	}
	dets := decodePredictions(data, []int64{1, 2, 6}, 2.0, 10, 20, 400, 400)

	assert.Len(t, dets, 1)
	assert.Equal(t, 3, dets[0].Class)
	assert.Equal(t, "figure", dets[0].Label)
	assert.InDelta(t, 50.0, dets[0].Box.X0, 0.01)
	assert.InDelta(t, 50.0, dets[0].Box.Y0, 0.01)
	assert.InDelta(t, 100.0, dets[0].Box.X1, 0.01)
	assert.InDelta(t, 100.0, dets[0].Box.Y1, 0.01)
}
