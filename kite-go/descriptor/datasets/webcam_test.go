package datasets

import (
	"fmt"
	"image"
	"image/png"
	"io/ioutil"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/kiteco/patchdesc/kite-go/descriptor/augment"
	"github.com/kiteco/patchdesc/kite-go/descriptor/patches"
	"github.com/kiteco/patchdesc/kite-go/descriptor/weightfn"
	"github.com/kiteco/patchdesc/kite-golib/errors"
	"github.com/kiteco/patchdesc/kite-golib/serialization"
	"github.com/stretchr/testify/require"
)

const frameSide = 100

func writePNG(t *testing.T, path string, img *image.Gray) {
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func noiseFrame(rng *rand.Rand) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, frameSide, frameSide))
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.Intn(256))
	}
	return img
}

func flatFrame() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, frameSide, frameSide))
	for i := range img.Pix {
		img.Pix[i] = 40
	}
	return img
}

// makeCameras writes frames per camera under root; flat[i] frames of camera i are flat
func makeCameras(t *testing.T, root string, frames []int, flat []int) {
	rng := rand.New(rand.NewSource(5))
	for c, n := range frames {
		for f := 0; f < n; f++ {
			img := noiseFrame(rng)
			if flat != nil && f < flat[c] {
				img = flatFrame()
			}
			writePNG(t, filepath.Join(root, fmt.Sprintf("cam%d", c), fmt.Sprintf("%04d.png", f)), img)
		}
	}
}

func testOptions() WebcamOptions {
	opts := DefaultWebcamOptions
	opts.MaxRetries = 5
	opts.MaxResamples = 3
	opts.CacheFrames = 8
	opts.PatchSets = 0
	opts.BatchSize = 5
	return opts
}

func tempDir(t *testing.T) string {
	dir, err := ioutil.TempDir("", "webcam")
	require.NoError(t, err)
	return dir
}

func TestWebcamPairs(t *testing.T) {
	root := tempDir(t)
	defer os.RemoveAll(root)
	makeCameras(t, root, []int{3, 3}, nil)

	w, err := NewWebcam("amos", root, testOptions(), augment.New(augment.Webcam), nil)
	require.NoError(t, err)
	require.Equal(t, []string{"cam0", "cam1"}, w.Cameras())

	require.NoError(t, w.Prepare(0, 20))
	require.Len(t, w.specs, 20)
	for _, s := range w.specs {
		require.NotEqual(t, s.a, s.b)
		require.True(t, s.x >= 32 && s.x < frameSide-32)
		require.True(t, s.y >= 32 && s.y < frameSide-32)
	}

	a, b, err := w.Tile(3)
	require.NoError(t, err)
	require.Equal(t, patches.RawSize, a.Bounds().Dx())
	require.Equal(t, patches.RawSize, b.Bounds().Dy())
	for _, i := range []int{-1, 20} {
		_, _, err = w.Tile(i)
		require.Error(t, err)
	}

	p, err := w.Pair(3, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	require.Equal(t, patches.Size, p.Anchor.Side)
	require.Equal(t, patches.Size, p.Positive.Side)
}

func TestWebcamReproducible(t *testing.T) {
	root := tempDir(t)
	defer os.RemoveAll(root)
	makeCameras(t, root, []int{3, 4}, nil)

	a, err := NewWebcam("amos", root, testOptions(), augment.New(augment.Webcam), nil)
	require.NoError(t, err)
	b, err := NewWebcam("amos", root, testOptions(), augment.New(augment.Webcam), nil)
	require.NoError(t, err)

	require.NoError(t, a.Prepare(2, 15))
	require.NoError(t, b.Prepare(2, 15))
	require.Equal(t, a.specs, b.specs)
}

func TestWebcamCamsInBatch(t *testing.T) {
	root := tempDir(t)
	defer os.RemoveAll(root)
	makeCameras(t, root, []int{2, 2, 2, 2}, nil)

	opts := testOptions()
	opts.CamsInBatch = 1
	w, err := NewWebcam("amos", root, opts, augment.New(augment.Webcam), nil)
	require.NoError(t, err)

	require.NoError(t, w.Prepare(0, 20))
	for g := 0; g < 20; g += opts.BatchSize {
		for i := g; i < g+opts.BatchSize; i++ {
			require.Equal(t, w.specs[g].cam, w.specs[i].cam)
		}
	}

	// explicit groups override BatchSize
	groups := []int{3, 6, 1, 4}
	require.NoError(t, w.PrepareGroups(1, groups))
	require.Len(t, w.specs, 14)
	var start int
	for _, g := range groups {
		for i := start; i < start+g; i++ {
			require.Equal(t, w.specs[start].cam, w.specs[i].cam)
		}
		start += g
	}
	require.Error(t, w.PrepareGroups(1, []int{2, -1}))
}

func TestWebcamPatchSets(t *testing.T) {
	root := tempDir(t)
	defer os.RemoveAll(root)
	makeCameras(t, root, []int{3}, nil)

	opts := testOptions()
	opts.PatchSets = 4
	w, err := NewWebcam("amos", root, opts, augment.New(augment.Webcam), nil)
	require.NoError(t, err)
	require.Equal(t, 4, w.Available())

	require.NoError(t, w.Prepare(0, 40))
	sets := make(map[patchSet]bool)
	for _, s := range w.specs {
		sets[s.patchSet] = true
	}
	require.True(t, len(sets) <= 4)
}

func TestWebcamMask(t *testing.T) {
	root := tempDir(t)
	defer os.RemoveAll(root)
	makeCameras(t, root, []int{3}, nil)

	masks := tempDir(t)
	defer os.RemoveAll(masks)
	mask := image.NewGray(image.Rect(0, 0, frameSide, frameSide))
	for y := 40; y < 45; y++ {
		for x := 50; x < 55; x++ {
			mask.Pix[y*mask.Stride+x] = 255
		}
	}
	writePNG(t, filepath.Join(masks, "cam0.png"), mask)

	opts := testOptions()
	opts.MasksDir = masks
	w, err := NewWebcam("amos", root, opts, augment.New(augment.Webcam), nil)
	require.NoError(t, err)

	require.NoError(t, w.Prepare(0, 30))
	for _, s := range w.specs {
		require.True(t, s.x >= 50 && s.x < 55 && s.y >= 40 && s.y < 45, "(%d, %d)", s.x, s.y)
	}
}

func TestWebcamSumImg(t *testing.T) {
	root := tempDir(t)
	defer os.RemoveAll(root)
	makeCameras(t, root, []int{2}, nil)

	opts := testOptions()
	opts.PatchGen = SumImg
	opts.Scales = []float64{1, 1.5}
	w, err := NewWebcam("amos", root, opts, augment.New(augment.Webcam), nil)
	require.NoError(t, err)

	require.NoError(t, w.Prepare(0, 5))
	for _, s := range w.specs {
		require.True(t, s.x >= 48 && s.x < frameSide-48)
	}
	a, _, err := w.Tile(0)
	require.NoError(t, err)
	require.Equal(t, patches.RawSize, a.Bounds().Dx())
}

func TestWebcamRetryExhaustion(t *testing.T) {
	root := tempDir(t)
	defer os.RemoveAll(root)
	// only one of the three frames has texture, so no draw can find two valid views
	makeCameras(t, root, []int{3}, []int{2})

	w, err := NewWebcam("amos", root, testOptions(), augment.New(augment.Webcam), nil)
	require.NoError(t, err)

	err = w.Prepare(0, 5)
	require.True(t, errors.IsKind(err, errors.DataUnavailable))
	require.Equal(t, 4, w.Exhausted())
}

func TestWebcamUnavailable(t *testing.T) {
	_, err := NewWebcam("amos", "/nonexistent/webcam", testOptions(), augment.New(augment.Webcam), nil)
	require.True(t, errors.IsKind(err, errors.DataUnavailable))

	root := tempDir(t)
	defer os.RemoveAll(root)
	makeCameras(t, root, []int{1}, nil)
	_, err = NewWebcam("amos", root, testOptions(), augment.New(augment.Webcam), nil)
	require.True(t, errors.IsKind(err, errors.DataUnavailable))
}

func TestWebcamFrameWeightMaps(t *testing.T) {
	root := tempDir(t)
	defer os.RemoveAll(root)
	makeCameras(t, root, []int{2}, nil)

	// all the weight sits on one pixel
	values := make([]float32, frameSide*frameSide)
	values[60*frameSide+40] = 5
	wm := WeightMap{Width: frameSide, Height: frameSide, Values: values}
	require.NoError(t, serialization.Encode(filepath.Join(root, "cam0", "0000"+FrameWeightSuffix), wm))

	w, err := NewWebcam("amos", root, testOptions(), augment.New(augment.Webcam), nil)
	require.NoError(t, err)
	require.NoError(t, w.Prepare(0, 10))
	for _, s := range w.specs {
		require.Equal(t, 40, s.x)
		require.Equal(t, 60, s.y)
	}

	bad := WeightMap{Width: 3, Height: 3, Values: make([]float32, 9)}
	require.NoError(t, serialization.Encode(filepath.Join(root, "cam0", WeightMapFile), bad))
	_, err = NewWebcam("amos", root, testOptions(), augment.New(augment.Webcam), nil)
	require.True(t, errors.IsKind(err, errors.DataUnavailable))
}

func TestWebcamNestedFrames(t *testing.T) {
	root := tempDir(t)
	defer os.RemoveAll(root)
	rng := rand.New(rand.NewSource(9))
	writePNG(t, filepath.Join(root, "cam0", "0000.png"), noiseFrame(rng))
	writePNG(t, filepath.Join(root, "cam0", "2016-05-01", "0001.png"), noiseFrame(rng))
	writePNG(t, filepath.Join(root, "cam0", "2016-05-02", "0002.png"), noiseFrame(rng))

	w, err := NewWebcam("amos", root, testOptions(), augment.New(augment.Webcam), nil)
	require.NoError(t, err)
	require.Len(t, w.cams, 1)
	require.Len(t, w.cams[0].frames, 3)
}

func TestWebcamAvailableCountsValidLocations(t *testing.T) {
	root := tempDir(t)
	defer os.RemoveAll(root)
	makeCameras(t, root, []int{2, 2}, nil)

	opts := testOptions()
	opts.WeightFn = weightfn.None
	w, err := NewWebcam("amos", root, opts, augment.New(augment.Webcam), nil)
	require.NoError(t, err)
	// the border where the window would leave the frame is excluded
	side := frameSide - 2*32
	require.Equal(t, 2*side*side, w.Available())

	masks := tempDir(t)
	defer os.RemoveAll(masks)
	mask := image.NewGray(image.Rect(0, 0, frameSide, frameSide))
	for y := 40; y < 45; y++ {
		for x := 50; x < 55; x++ {
			mask.Pix[y*mask.Stride+x] = 255
		}
	}
	writePNG(t, filepath.Join(masks, "cam1.png"), mask)

	opts.MasksDir = masks
	w, err = NewWebcam("amos", root, opts, augment.New(augment.Webcam), nil)
	require.NoError(t, err)
	require.Equal(t, side*side+25, w.Available())
}
