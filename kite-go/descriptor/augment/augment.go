package augment

import (
	"image"
	"math"
	"math/rand"

	"github.com/kiteco/patchdesc/kite-go/descriptor/patches"
	"github.com/nfnt/resize"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Params bound the random draws of the training pipelines
type Params struct {
	// MaxRotation is in degrees, drawn from [-MaxRotation, MaxRotation]
	MaxRotation float64
	MinScale    float64
	MaxScale    float64
	// MaxShear is in degrees, drawn from [-MaxShear, MaxShear]
	MaxShear float64

	CropMinScale float64
	CropMaxScale float64
	CropMinRatio float64
	CropMaxRatio float64

	// CenterCrop is applied between the warp and the resized crop by the Webcam pipeline
	CenterCrop int
	Output     int
}

// DefaultParams are the ranges used for every training dataset
var DefaultParams = Params{
	MaxRotation:  25,
	MinScale:     0.8,
	MaxScale:     1.4,
	MaxShear:     25,
	CropMinScale: 0.7,
	CropMaxScale: 1.0,
	CropMinRatio: 0.9,
	CropMaxRatio: 1.10,
	CenterCrop:   patches.RawSize,
	Output:       patches.Size,
}

// Kind selects a pipeline
type Kind int

const (
	// Test resizes to the output size without randomness
	Test Kind = iota
	// Train warps then takes a random resized crop
	Train
	// Webcam warps, center crops, then takes a random resized crop
	Webcam
)

func (k Kind) String() string {
	switch k {
	case Train:
		return "train"
	case Webcam:
		return "webcam"
	default:
		return "test"
	}
}

// Pipeline turns a raw tile into a model-sized patch
type Pipeline struct {
	Kind   Kind
	Params Params
}

// New returns a pipeline of the given kind with DefaultParams
func New(kind Kind) Pipeline {
	return Pipeline{Kind: kind, Params: DefaultParams}
}

// Apply transforms one tile. rng may be nil for the Test pipeline.
func (p Pipeline) Apply(img *image.Gray, rng *rand.Rand) patches.Patch {
	switch p.Kind {
	case Train:
		img = p.randomAffine(img, rng)
		img = p.randomResizedCrop(img, rng)
	case Webcam:
		img = p.randomAffine(img, rng)
		img = centerCrop(img, p.Params.CenterCrop)
		img = p.randomResizedCrop(img, rng)
	default:
		img = resizeTo(img, p.Params.Output, p.Params.Output)
	}
	return patches.FromGray(img)
}

// ApplyPair transforms both views of a pair with independent draws from the same pipeline
func (p Pipeline) ApplyPair(a, b *image.Gray, rng *rand.Rand) patches.Pair {
	return patches.Pair{
		Anchor:   p.Apply(a, rng),
		Positive: p.Apply(b, rng),
	}
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + (hi-lo)*rng.Float64()
}

func (p Pipeline) randomAffine(img *image.Gray, rng *rand.Rand) *image.Gray {
	angle := uniform(rng, -p.Params.MaxRotation, p.Params.MaxRotation) * math.Pi / 180
	scale := uniform(rng, p.Params.MinScale, p.Params.MaxScale)
	shear := uniform(rng, -p.Params.MaxShear, p.Params.MaxShear) * math.Pi / 180
	return Affine(img, angle, scale, shear)
}

// Affine warps img about its center: shear along x by shear radians, rotate by angle radians,
// then scale. The output has the input's size; uncovered pixels are black.
func Affine(img *image.Gray, angle, scale, shear float64) *image.Gray {
	b := img.Bounds()
	cx := float64(b.Min.X) + float64(b.Dx())/2
	cy := float64(b.Min.Y) + float64(b.Dy())/2

	cos, sin := math.Cos(angle), math.Sin(angle)
	tan := math.Tan(shear)
	// L = scale * R * Sh, with Sh = [1 tan; 0 1]
	a := scale * cos
	bb := scale * (cos*tan - sin)
	d := scale * sin
	e := scale * (sin*tan + cos)

	ox := float64(b.Dx()) / 2
	oy := float64(b.Dy()) / 2
	s2d := f64.Aff3{
		a, bb, ox - (a*cx + bb*cy),
		d, e, oy - (d*cx + e*cy),
	}
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.CatmullRom.Transform(dst, s2d, img, b, draw.Src, nil)
	return dst
}

// randomResizedCrop draws a crop covering a random fraction of the area with a random aspect
// ratio and resizes it to the output size; after 10 failed draws it falls back to a center crop.
func (p Pipeline) randomResizedCrop(img *image.Gray, rng *rand.Rand) *image.Gray {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	area := float64(width * height)
	logLo, logHi := math.Log(p.Params.CropMinRatio), math.Log(p.Params.CropMaxRatio)

	for attempt := 0; attempt < 10; attempt++ {
		target := area * uniform(rng, p.Params.CropMinScale, p.Params.CropMaxScale)
		ratio := math.Exp(uniform(rng, logLo, logHi))
		w := int(math.Round(math.Sqrt(target * ratio)))
		h := int(math.Round(math.Sqrt(target / ratio)))
		if w > 0 && w <= width && h > 0 && h <= height {
			x := b.Min.X + rng.Intn(width-w+1)
			y := b.Min.Y + rng.Intn(height-h+1)
			return resizeTo(crop(img, image.Rect(x, y, x+w, y+h)), p.Params.Output, p.Params.Output)
		}
	}

	// fallback: whole image clamped to the ratio bounds
	w, h := width, height
	inRatio := float64(w) / float64(h)
	if inRatio < p.Params.CropMinRatio {
		h = int(math.Round(float64(w) / p.Params.CropMinRatio))
	} else if inRatio > p.Params.CropMaxRatio {
		w = int(math.Round(float64(h) * p.Params.CropMaxRatio))
	}
	x := b.Min.X + (width-w)/2
	y := b.Min.Y + (height-h)/2
	return resizeTo(crop(img, image.Rect(x, y, x+w, y+h)), p.Params.Output, p.Params.Output)
}

func centerCrop(img *image.Gray, side int) *image.Gray {
	b := img.Bounds()
	if side <= 0 || (b.Dx() <= side && b.Dy() <= side) {
		return img
	}
	w, h := side, side
	if b.Dx() < w {
		w = b.Dx()
	}
	if b.Dy() < h {
		h = b.Dy()
	}
	x := b.Min.X + (b.Dx()-w)/2
	y := b.Min.Y + (b.Dy()-h)/2
	return crop(img, image.Rect(x, y, x+w, y+h))
}

// crop copies r out of img into a new image anchored at the origin
func crop(img *image.Gray, r image.Rectangle) *image.Gray {
	r = r.Intersect(img.Bounds())
	out := image.NewGray(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := 0; y < r.Dy(); y++ {
		copy(out.Pix[y*out.Stride:y*out.Stride+r.Dx()], img.Pix[img.PixOffset(r.Min.X, r.Min.Y+y):])
	}
	return out
}

// Crop is the exported form of crop, used to cut patches out of frames
func Crop(img *image.Gray, r image.Rectangle) *image.Gray {
	return crop(img, r)
}

func resizeTo(img *image.Gray, w, h int) *image.Gray {
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return img
	}
	return toGray(resize.Resize(uint(w), uint(h), img, resize.Bilinear))
}

// Resize scales img to w×h with bilinear interpolation
func Resize(img *image.Gray, w, h int) *image.Gray {
	return resizeTo(img, w, h)
}

func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Bounds().Min == (image.Point{}) {
		return g
	}
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}
