package weightfn

import (
	"image"
	"math"
)

// HessianSigma is the Gaussian scale used by HessianResponse
const HessianSigma = 1.6

// HessianResponse computes the scale-normalized determinant of the Hessian of img after
// Gaussian smoothing. The result has one value per pixel, row-major.
func HessianResponse(img *image.Gray) []float32 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	src := make([]float64, w*h)
	for y := 0; y < h; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):]
		for x := 0; x < w; x++ {
			src[y*w+x] = float64(row[x]) / 255
		}
	}
	return HessianResponseOf(src, w, h)
}

// HessianResponseOf is HessianResponse over a float image of size w×h
func HessianResponseOf(src []float64, w, h int) []float32 {
	sm := blur(src, w, h, HessianSigma)
	at := func(x, y int) float64 {
		x = clampInt(x, 0, w-1)
		y = clampInt(y, 0, h-1)
		return sm[y*w+x]
	}
	norm := HessianSigma * HessianSigma * HessianSigma * HessianSigma
	out := make([]float32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := at(x, y)
			dxx := at(x+1, y) - 2*c + at(x-1, y)
			dyy := at(x, y+1) - 2*c + at(x, y-1)
			dxy := (at(x+1, y+1) - at(x+1, y-1) - at(x-1, y+1) + at(x-1, y-1)) / 4
			out[y*w+x] = float32(norm * (dxx*dyy - dxy*dxy))
		}
	}
	return out
}

// blur is a separable Gaussian filter with clamped borders
func blur(src []float64, w, h int, sigma float64) []float64 {
	radius := int(math.Ceil(3 * sigma))
	kernel := make([]float64, 2*radius+1)
	var sum float64
	for i := range kernel {
		d := float64(i - radius)
		kernel[i] = math.Exp(-d * d / (2 * sigma * sigma))
		sum += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= sum
	}

	tmp := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc float64
			for k, kv := range kernel {
				acc += kv * src[y*w+clampInt(x+k-radius, 0, w-1)]
			}
			tmp[y*w+x] = acc
		}
	}
	out := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc float64
			for k, kv := range kernel {
				acc += kv * tmp[clampInt(y+k-radius, 0, h-1)*w+x]
			}
			out[y*w+x] = acc
		}
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
