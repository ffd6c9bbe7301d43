// Package layout provides visual layout classification for PDF pages. It
// rasterizes a page, runs the DocLayout-YOLO ONNX model over the image and
// converts the detections into a per-pixel region mask consumed by the
// paragraph assembler.
package layout

import (
	"image"
	"os"
	"sort"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"pdf-translator/internal/logger"
	"pdf-translator/internal/types"
)

// ClassNames is the DocLayout-YOLO DocStructBench label vocabulary. The
// index of a label is its class id in model output.
var ClassNames = []string{
	"title",
	"plain text",
	"abandon",
	"figure",
	"figure_caption",
	"table",
	"table_caption",
	"table_footnote",
	"isolate_formula",
	"formula_caption",
}

// NonBodyClasses are region labels whose content is never translated.
// Glyphs inside these regions are routed to formula groups.
var NonBodyClasses = map[string]bool{
	"abandon":         true,
	"figure":          true,
	"table":           true,
	"isolate_formula": true,
	"formula_caption": true,
}

const (
	// DefaultImageSize is the model input resolution.
	DefaultImageSize = 1024
	// DefaultStride is the model's downsampling stride; padded input
	// dimensions must be multiples of it.
	DefaultStride = 32
	// ConfidenceThreshold filters raw model predictions.
	ConfidenceThreshold = 0.25
)

// Box is an axis-aligned detection rectangle in image pixel coordinates.
type Box struct {
	X0, Y0, X1, Y1 float64
}

// Detection is one classified page region.
type Detection struct {
	Box        Box
	Class      int
	Label      string
	Confidence float64
}

// Model is the visual layout model capability. Detect returns detections
// sorted by confidence descending.
type Model interface {
	Detect(img image.Image) ([]Detection, error)
}

// DocLayoutModel runs DocLayout-YOLO through onnxruntime.
type DocLayoutModel struct {
	modelPath string
	imageSize int

	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
}

var ortInitOnce sync.Once

func initRuntime(libraryPath string) error {
	var err error
	ortInitOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		err = ort.InitializeEnvironment()
	})
	return err
}

// NewDocLayoutModel loads the ONNX model at modelPath. libraryPath
// optionally locates the onnxruntime shared library. A missing model or a
// runtime initialization failure is fatal for document translation: there
// is no safe fallback for separating prose from formulas.
func NewDocLayoutModel(modelPath, libraryPath string) (*DocLayoutModel, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, types.NewAppError(types.ErrLayoutModel, "layout model file not found", err)
	}
	if err := initRuntime(libraryPath); err != nil {
		return nil, types.NewAppError(types.ErrLayoutModel, "failed to initialize onnxruntime", err)
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{"images"}, []string{"output0"}, nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrLayoutModel, "failed to create inference session", err)
	}

	logger.Info("layout model loaded", logger.String("path", modelPath))
	return &DocLayoutModel{
		modelPath: modelPath,
		imageSize: DefaultImageSize,
		session:   session,
	}, nil
}

// Close releases the inference session.
func (m *DocLayoutModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != nil {
		err := m.session.Destroy()
		m.session = nil
		return err
	}
	return nil
}

// Detect runs the model on a rasterized page and returns detections in the
// image's pixel coordinate system, sorted by confidence descending.
func (m *DocLayoutModel) Detect(img image.Image) ([]Detection, error) {
	tensor, scale, padX, padY := letterbox(img, m.imageSize, DefaultStride)

	input, err := ort.NewTensor(ort.NewShape(1, 3, int64(tensor.height), int64(tensor.width)), tensor.data)
	if err != nil {
		return nil, types.NewAppError(types.ErrLayoutModel, "failed to build input tensor", err)
	}
	defer input.Destroy()

	outputs := []ort.Value{nil}
	m.mu.Lock()
	err = m.session.Run([]ort.Value{input}, outputs)
	m.mu.Unlock()
	if err != nil {
		return nil, types.NewAppError(types.ErrLayoutModel, "layout inference failed", err)
	}
	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, types.NewAppError(types.ErrLayoutModel, "unexpected output tensor type", nil)
	}
	defer out.Destroy()

	dets := decodePredictions(out.GetData(), out.GetShape(), scale, padX, padY,
		img.Bounds().Dx(), img.Bounds().Dy())

	sort.SliceStable(dets, func(i, j int) bool {
		return dets[i].Confidence > dets[j].Confidence
	})

	logger.Debug("layout detection complete",
		logger.Int("detections", len(dets)),
		logger.Int("imageWidth", img.Bounds().Dx()),
		logger.Int("imageHeight", img.Bounds().Dy()))
	return dets, nil
}

// decodePredictions converts the raw [1, N, 6] output rows
// (x0, y0, x1, y1, confidence, class) back into original image coordinates.
func decodePredictions(data []float32, shape ort.Shape, scale, padX, padY float64, imgW, imgH int) []Detection {
	if len(shape) == 0 {
		return nil
	}
	cols := int(shape[len(shape)-1])
	if cols < 6 {
		return nil
	}

	var dets []Detection
	for off := 0; off+cols <= len(data); off += cols {
		conf := float64(data[off+4])
		if conf <= ConfidenceThreshold {
			continue
		}
		cls := int(data[off+5])
		label := ""
		if cls >= 0 && cls < len(ClassNames) {
			label = ClassNames[cls]
		}
		box := Box{
			X0: clampf((float64(data[off+0])-padX)/scale, 0, float64(imgW-1)),
			Y0: clampf((float64(data[off+1])-padY)/scale, 0, float64(imgH-1)),
			X1: clampf((float64(data[off+2])-padX)/scale, 0, float64(imgW-1)),
			Y1: clampf((float64(data[off+3])-padY)/scale, 0, float64(imgH-1)),
		}
		dets = append(dets, Detection{Box: box, Class: cls, Label: label, Confidence: conf})
	}
	return dets
}

func clampf(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
