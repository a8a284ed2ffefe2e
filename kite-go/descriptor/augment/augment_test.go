package augment

import (
	"image"
	"math/rand"
	"testing"

	"github.com/kiteco/patchdesc/kite-go/descriptor/patches"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gradient(side int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, side, side))
	for y := 0; y < side; y++ {
		for x := 0; x < side; x++ {
			img.Pix[y*side+x] = byte((x*255/side + y*3) % 256)
		}
	}
	return img
}

func TestTestPipelineIsDeterministic(t *testing.T) {
	p := New(Test)
	img := gradient(64)
	a := p.Apply(img, nil)
	b := p.Apply(img, nil)
	require.Equal(t, patches.Size, a.Side)
	require.Equal(t, a, b)
}

func TestTrainPipelineOutput(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	img := gradient(64)
	for _, kind := range []Kind{Train, Webcam} {
		p := New(kind)
		for i := 0; i < 20; i++ {
			out := p.Apply(img, rng)
			require.Equal(t, patches.Size, out.Side, kind.String())
			require.Len(t, out.Pix, patches.Size*patches.Size)
			for _, v := range out.Pix {
				require.True(t, v >= 0 && v <= 1)
			}
		}
	}
}

func TestPairDrawsAreIndependent(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	img := gradient(64)
	pair := New(Train).ApplyPair(img, img, rng)
	require.NotEqual(t, pair.Anchor.Pix, pair.Positive.Pix)
}

func TestWebcamCentersLargeTiles(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	out := New(Webcam).Apply(gradient(96), rng)
	require.Equal(t, patches.Size, out.Side)
}

func TestAffineIdentity(t *testing.T) {
	img := gradient(32)
	out := Affine(img, 0, 1, 0)
	require.Equal(t, img.Bounds(), out.Bounds())
	// interior pixels are reproduced up to interpolation rounding
	for y := 4; y < 28; y++ {
		for x := 4; x < 28; x++ {
			assert.InDelta(t, float64(img.GrayAt(x, y).Y), float64(out.GrayAt(x, y).Y), 2)
		}
	}
}

func TestCropAndResize(t *testing.T) {
	img := gradient(64)
	c := Crop(img, image.Rect(10, 20, 30, 50))
	require.Equal(t, image.Rect(0, 0, 20, 30), c.Bounds())
	require.Equal(t, img.GrayAt(10, 20), c.GrayAt(0, 0))

	r := Resize(c, 32, 32)
	require.Equal(t, image.Rect(0, 0, 32, 32), r.Bounds())
}

func TestFlipRotIsConsistentPerPair(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	var pairs []patches.Pair
	for i := 0; i < 16; i++ {
		p := patches.FromGray(gradient(8))
		pairs = append(pairs, patches.Pair{Anchor: p, Positive: p})
	}
	out := FlipRot(patches.NewBatch(pairs), rng)
	require.Equal(t, 16, out.Len())

	distinct := make(map[float32]bool)
	for i := range out.Anchors {
		require.Equal(t, out.Anchors[i].Pix, out.Positives[i].Pix)
		distinct[out.Anchors[i].Pix[0]*1000+out.Anchors[i].Pix[1]] = true
	}
	require.True(t, len(distinct) > 1)
}
