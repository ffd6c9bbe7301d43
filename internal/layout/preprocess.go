package layout

import (
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"
)

// inputTensor is a CHW float32 image tensor scaled to [0, 1].
type inputTensor struct {
	data   []float32
	width  int
	height int
}

// letterbox resizes img to fit within size×size preserving aspect ratio,
// pads the result to a multiple of stride with neutral gray, and converts
// it to a CHW tensor. It returns the tensor plus the scale factor and the
// left/top padding needed to map detections back to image coordinates.
func letterbox(img image.Image, size, stride int) (inputTensor, float64, float64, float64) {
	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()

	scale := min(float64(size)/float64(srcW), float64(size)/float64(srcH))
	resizedW := int(float64(srcW)*scale + 0.5)
	resizedH := int(float64(srcH)*scale + 0.5)

	padW := (size - resizedW) % stride
	padH := (size - resizedH) % stride
	outW := resizedW + padW
	outH := resizedH + padH
	left := padW / 2
	top := padH / 2

	dst := image.NewRGBA(image.Rect(0, 0, outW, outH))
	gray := color.RGBA{114, 114, 114, 255}
	xdraw.Draw(dst, dst.Bounds(), &image.Uniform{gray}, image.Point{}, xdraw.Src)
	xdraw.ApproxBiLinear.Scale(dst,
		image.Rect(left, top, left+resizedW, top+resizedH),
		img, bounds, xdraw.Src, nil)

	return toCHW(dst), scale, float64(left), float64(top)
}

// toCHW converts an RGBA image to a CHW float32 tensor scaled to [0, 1].
func toCHW(img *image.RGBA) inputTensor {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	plane := w * h
	data := make([]float32, 3*plane)

	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			idx := y*w + x
			data[idx] = float32(row[x*4]) / 255.0
			data[plane+idx] = float32(row[x*4+1]) / 255.0
			data[2*plane+idx] = float32(row[x*4+2]) / 255.0
		}
	}
	return inputTensor{data: data, width: w, height: h}
}
