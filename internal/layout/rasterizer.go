package layout

import (
	"fmt"
	"image"
	_ "image/png"
	"os"
	"os/exec"
	"path/filepath"

	"pdf-translator/internal/logger"
	"pdf-translator/internal/types"
)

// DefaultDPI renders one pixel per PDF point so mask coordinates line up
// with page coordinates without scaling.
const DefaultDPI = 72

// Rasterizer converts PDF pages to images using pdftoppm.
type Rasterizer struct {
	dpi     int
	tempDir string
}

// NewRasterizer creates a page rasterizer. It fails when pdftoppm is not
// installed, which makes layout classification unavailable for the whole
// document.
func NewRasterizer(dpi int) (*Rasterizer, error) {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	if err := exec.Command("pdftoppm", "-v").Run(); err != nil {
		return nil, types.NewAppErrorWithDetails(types.ErrLayoutModel,
			"pdftoppm not available",
			"install poppler-utils (apt-get install poppler-utils / brew install poppler)", err)
	}
	// created eagerly so concurrent page workers never race on it
	tempDir, err := os.MkdirTemp("", "pdfraster_*")
	if err != nil {
		return nil, types.NewAppError(types.ErrLayoutModel, "failed to create render temp dir", err)
	}
	return &Rasterizer{dpi: dpi, tempDir: tempDir}, nil
}

// RenderPage renders one page (1-based) of the document to an image.
func (r *Rasterizer) RenderPage(pdfPath string, pageNum int) (image.Image, error) {
	outputPrefix := filepath.Join(r.tempDir, fmt.Sprintf("page_%d", pageNum))
	args := []string{
		"-f", fmt.Sprintf("%d", pageNum),
		"-l", fmt.Sprintf("%d", pageNum),
		"-png",
		"-r", fmt.Sprintf("%d", r.dpi),
		"-singlefile",
		pdfPath,
		outputPrefix,
	}

	output, err := exec.Command("pdftoppm", args...).CombinedOutput()
	if err != nil {
		return nil, types.NewAppErrorWithDetails(types.ErrLayoutModel,
			"page rasterization failed", string(output), err)
	}

	imgPath := outputPrefix + ".png"
	img, err := loadImage(imgPath)
	os.Remove(imgPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load rendered page: %w", err)
	}

	logger.Debug("page rasterized",
		logger.String("pdf", filepath.Base(pdfPath)),
		logger.Int("page", pageNum),
		logger.Int("width", img.Bounds().Dx()),
		logger.Int("height", img.Bounds().Dy()))
	return img, nil
}

// Cleanup removes temporary render files.
func (r *Rasterizer) Cleanup() {
	if r.tempDir != "" {
		os.RemoveAll(r.tempDir)
		r.tempDir = ""
	}
}

func loadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, err
	}
	return img, nil
}
