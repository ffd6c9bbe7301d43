package layout

// BodyRegion is the reserved region id for translatable body text. Pixels
// not covered by any non-body detection default to it.
const BodyRegion = 0

// RegionMask is a per-page classification grid in PDF coordinate space
// (one cell per point, origin bottom-left). Cell values are BodyRegion for
// prose and class id + 1 for non-body regions.
type RegionMask struct {
	width  int
	height int
	cells  []uint8
}

// NewRegionMask creates an all-body mask of the given page dimensions in
// points.
func NewRegionMask(pageWidth, pageHeight float64) *RegionMask {
	w := int(pageWidth + 0.5)
	h := int(pageHeight + 0.5)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return &RegionMask{width: w, height: h, cells: make([]uint8, w*h)}
}

// Width returns the mask width in cells.
func (m *RegionMask) Width() int { return m.width }

// Height returns the mask height in cells.
func (m *RegionMask) Height() int { return m.height }

// ClassAt returns the region id at a PDF coordinate. Coordinates outside
// the page are clamped to the nearest cell.
func (m *RegionMask) ClassAt(x, y float64) int {
	cx := clampi(int(x), 0, m.width-1)
	cy := clampi(int(y), 0, m.height-1)
	return int(m.cells[cy*m.width+cx])
}

// paint fills a rectangle given in PDF coordinates (bottom-left origin).
func (m *RegionMask) paint(x0, y0, x1, y1 float64, id uint8) {
	ix0 := clampi(int(x0-1), 0, m.width-1)
	ix1 := clampi(int(x1+1), 0, m.width-1)
	iy0 := clampi(int(y0-1), 0, m.height-1)
	iy1 := clampi(int(y1+1), 0, m.height-1)
	for cy := iy0; cy <= iy1; cy++ {
		row := m.cells[cy*m.width : (cy+1)*m.width]
		for cx := ix0; cx <= ix1; cx++ {
			row[cx] = id
		}
	}
}

// BuildMask rasterizes detections into a region mask. Detections are given
// in image pixel coordinates (origin top-left) at the supplied image
// dimensions; the mask is built in page points with a bottom-left origin.
// Only non-body classes are painted, lowest confidence first, so that
// higher-confidence detections win on overlap.
func BuildMask(dets []Detection, imgW, imgH int, pageWidth, pageHeight float64) *RegionMask {
	mask := NewRegionMask(pageWidth, pageHeight)
	if imgW <= 0 || imgH <= 0 {
		return mask
	}
	sx := pageWidth / float64(imgW)
	sy := pageHeight / float64(imgH)

	// Walk from the lowest confidence up; input is confidence-descending.
	for i := len(dets) - 1; i >= 0; i-- {
		d := dets[i]
		if !NonBodyClasses[d.Label] {
			continue
		}
		id := uint8(d.Class + 1)
		// Flip Y: image rows grow downward, page coordinates grow upward.
		px0 := d.Box.X0 * sx
		px1 := d.Box.X1 * sx
		py0 := (float64(imgH) - d.Box.Y1) * sy
		py1 := (float64(imgH) - d.Box.Y0) * sy
		mask.paint(px0, py0, px1, py1, id)
	}
	return mask
}

func clampi(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
