package datasets

import (
	"image"
	"image/png"
	"io/ioutil"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru"
	"github.com/kiteco/patchdesc/kite-go/descriptor/augment"
	"github.com/kiteco/patchdesc/kite-go/descriptor/patches"
	"github.com/kiteco/patchdesc/kite-go/descriptor/weightfn"
	"github.com/kiteco/patchdesc/kite-golib/errors"
	"github.com/kiteco/patchdesc/kite-golib/kitelog"
	"github.com/kiteco/patchdesc/kite-golib/serialization"
	zglob "github.com/mattn/go-zglob"
	"golang.org/x/image/draw"
)

const (
	// WeightMapFile is the optional per-camera response map, a gob encoded WeightMap
	WeightMapFile = "weights.gob"
	// FrameWeightSuffix names optional per-frame response maps, <frame>.weight.gob
	FrameWeightSuffix = ".weight.gob"
)

// WeightMap is a precomputed response map for one camera
type WeightMap struct {
	Width  int
	Height int
	Values []float32
}

// WebcamOptions configure the dynamic webcam adapter
type WebcamOptions struct {
	WeightFn weightfn.Policy
	PatchGen PatchGen
	// Scales are the crop scale factors averaged by SumImg
	Scales []float64
	// MasksDir optionally holds <camera>.png masks, white where locations may be sampled
	MasksDir string
	// CamsInBatch restricts the draws that share a batch to this many cameras, 0 disables
	CamsInBatch int
	// BatchSize groups the draws of Prepare when the caller does not supply groups
	BatchSize int
	// PatchSets caps the distinct (camera, location) sets drawn per epoch, 0 disables
	PatchSets int
	// MaxRetries bounds the attempts to find a valid frame pair for one draw
	MaxRetries int
	// MaxResamples bounds how many exhausted draws in a row are replaced before giving up
	MaxResamples int
	// MinContrast is the minimum standard deviation of a tile for it to count as a valid view
	MinContrast float64
	// MeanFrames is how many frames are averaged to compute the response when no weight map exists
	MeanFrames  int
	CacheFrames int
	Seed        int64
}

// DefaultWebcamOptions are used for the webcam dataset unless overridden
var DefaultWebcamOptions = WebcamOptions{
	WeightFn:     weightfn.Hessian,
	PatchGen:     OneRes,
	Scales:       []float64{1, 1.5, 2},
	BatchSize:    1024,
	PatchSets:    30000,
	MaxRetries:   20,
	MaxResamples: 100,
	MinContrast:  2,
	MeanFrames:   8,
	CacheFrames:  256,
}

type camera struct {
	name    string
	frames  []string
	w, h    int
	surface weightfn.Surface
}

type patchSet struct {
	cam  int
	x, y int
}

type pairSpec struct {
	patchSet
	a, b int
}

// Webcam generates pairs from sequences of frames taken by static cameras. A pair is the same
// location seen in two different frames of one camera.
type Webcam struct {
	name     string
	root     string
	opts     WebcamOptions
	pipeline augment.Pipeline
	log      *kitelog.Logger

	cams   []camera
	margin int
	frames *lru.Cache

	specs     []pairSpec
	exhausted int64
}

// NewWebcam scans root for camera directories, each holding at least two PNG frames of the same size
func NewWebcam(name, root string, opts WebcamOptions, pipeline augment.Pipeline, log *kitelog.Logger) (*Webcam, error) {
	if log == nil {
		log = kitelog.Nop
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 1
	}
	if opts.CacheFrames <= 0 {
		opts.CacheFrames = 1
	}
	if opts.PatchGen == SumImg && len(opts.Scales) == 0 {
		opts.Scales = DefaultWebcamOptions.Scales
	}
	cache, err := lru.New(opts.CacheFrames)
	if err != nil {
		return nil, err
	}

	w := &Webcam{
		name:     name,
		root:     root,
		opts:     opts,
		pipeline: pipeline,
		log:      log.With("dataset", name),
		margin:   int(math.Ceil(float64(patches.RawSize) * maxScale(opts) / 2)),
		frames:   cache,
	}

	entries, err := ioutil.ReadDir(root)
	if err != nil {
		return nil, errors.WithKind(errors.DataUnavailable, errors.Wrapf(err, "webcam dataset %s", name))
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		cam, ok, err := w.scanCamera(e.Name())
		if err != nil {
			return nil, err
		}
		if ok {
			w.cams = append(w.cams, cam)
		}
	}
	if len(w.cams) == 0 {
		return nil, errors.Kindf(errors.DataUnavailable, "webcam dataset %s: no usable camera under %s", name, root)
	}
	return w, nil
}

func maxScale(opts WebcamOptions) float64 {
	if opts.PatchGen != SumImg {
		return 1
	}
	m := 1.0
	for _, s := range opts.Scales {
		m = math.Max(m, s)
	}
	return m
}

func (w *Webcam) scanCamera(name string) (camera, bool, error) {
	dir := filepath.Join(w.root, name)
	// frames may sit directly under the camera or in dated subdirectories
	frames, err := zglob.Glob(filepath.Join(dir, "**", "*.png"))
	if err != nil {
		return camera{}, false, errors.WithKind(errors.DataUnavailable, errors.Wrapf(err, "camera %s", name))
	}
	sort.Strings(frames)
	if len(frames) < 2 {
		w.log.Warnf("skipping camera %s: %d frames", name, len(frames))
		return camera{}, false, nil
	}

	cfg, err := decodeConfig(frames[0])
	if err != nil {
		return camera{}, false, errors.WithKind(errors.DataUnavailable, err)
	}
	cam := camera{name: name, frames: frames, w: cfg.Width, h: cfg.Height}
	if cam.w < 2*w.margin+1 || cam.h < 2*w.margin+1 {
		w.log.Warnf("skipping camera %s: frames of %dx%d are too small", name, cam.w, cam.h)
		return camera{}, false, nil
	}

	valid, err := w.validRegion(cam)
	if err != nil {
		return camera{}, false, err
	}

	var response []float32
	if w.opts.WeightFn.UsesResponse() {
		response, err = w.response(cam)
		if err != nil {
			return camera{}, false, err
		}
	} else {
		response = make([]float32, cam.w*cam.h)
	}

	cam.surface = w.opts.WeightFn.Apply(response, valid)
	if cam.surface.Total() <= 0 {
		w.log.Warnf("skipping camera %s: mask leaves no valid location", name)
		return camera{}, false, nil
	}
	return cam, true, nil
}

// validRegion excludes the border where the extraction window would leave the frame, and applies
// the camera mask if there is one
func (w *Webcam) validRegion(cam camera) ([]bool, error) {
	valid := make([]bool, cam.w*cam.h)
	for y := w.margin; y < cam.h-w.margin; y++ {
		for x := w.margin; x < cam.w-w.margin; x++ {
			valid[y*cam.w+x] = true
		}
	}
	if w.opts.MasksDir == "" {
		return valid, nil
	}

	path := filepath.Join(w.opts.MasksDir, cam.name+".png")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return valid, nil
	}
	mask, err := loadGray(path)
	if err != nil {
		return nil, errors.WithKind(errors.DataUnavailable, err)
	}
	if b := mask.Bounds(); b.Dx() != cam.w || b.Dy() != cam.h {
		return nil, errors.Kindf(errors.DataUnavailable, "mask %s is %dx%d, frames are %dx%d",
			path, b.Dx(), b.Dy(), cam.w, cam.h)
	}
	for i := range valid {
		if mask.Pix[(i/cam.w)*mask.Stride+i%cam.w] < 128 {
			valid[i] = false
		}
	}
	return valid, nil
}

// response returns the camera's response map: weights.gob if present, else the mean of the
// per-frame <frame>.weight.gob maps, else the Hessian response of the mean frame
func (w *Webcam) response(cam camera) ([]float32, error) {
	dir := filepath.Join(w.root, cam.name)
	path := filepath.Join(dir, WeightMapFile)
	if _, err := os.Stat(path); err == nil {
		return readWeightMap(path, cam)
	}

	perFrame, err := filepath.Glob(filepath.Join(dir, "*"+FrameWeightSuffix))
	if err != nil {
		return nil, err
	}
	if len(perFrame) > 0 {
		sort.Strings(perFrame)
		mean := make([]float32, cam.w*cam.h)
		for _, p := range perFrame {
			values, err := readWeightMap(p, cam)
			if err != nil {
				return nil, err
			}
			for i, v := range values {
				mean[i] += v / float32(len(perFrame))
			}
		}
		return mean, nil
	}

	n := w.opts.MeanFrames
	if n <= 0 || n > len(cam.frames) {
		n = len(cam.frames)
	}
	mean := make([]float64, cam.w*cam.h)
	for i := 0; i < n; i++ {
		// spread the averaged frames over the whole sequence
		img, err := w.frame(cam, i*len(cam.frames)/n)
		if err != nil {
			return nil, err
		}
		for y := 0; y < cam.h; y++ {
			row := img.Pix[y*img.Stride : y*img.Stride+cam.w]
			for x, v := range row {
				mean[y*cam.w+x] += float64(v) / float64(n)
			}
		}
	}
	return weightfn.HessianResponseOf(mean, cam.w, cam.h), nil
}

func readWeightMap(path string, cam camera) ([]float32, error) {
	var wm WeightMap
	if err := serialization.Decode(path, &wm); err != nil {
		return nil, errors.WithKind(errors.DataUnavailable, err)
	}
	if wm.Width != cam.w || wm.Height != cam.h || len(wm.Values) != cam.w*cam.h {
		return nil, errors.Kindf(errors.DataUnavailable, "weight map %s does not match %dx%d frames", path, cam.w, cam.h)
	}
	return wm.Values, nil
}

// frame returns frame i of cam through the cache
func (w *Webcam) frame(cam camera, i int) (*image.Gray, error) {
	path := cam.frames[i]
	if img, ok := w.frames.Get(path); ok {
		return img.(*image.Gray), nil
	}
	img, err := loadGray(path)
	if err != nil {
		return nil, errors.WithKind(errors.DataUnavailable, err)
	}
	if b := img.Bounds(); b.Dx() != cam.w || b.Dy() != cam.h {
		return nil, errors.Kindf(errors.DataUnavailable, "frame %s is %dx%d, camera %s is %dx%d",
			path, b.Dx(), b.Dy(), cam.name, cam.w, cam.h)
	}
	w.frames.Add(path, img)
	return img, nil
}

// Name implements Adapter
func (w *Webcam) Name() string {
	return w.name
}

// Available implements Adapter, counting distinct patch sets per epoch
func (w *Webcam) Available() int {
	if w.opts.PatchSets > 0 {
		return w.opts.PatchSets
	}
	var n int
	for _, c := range w.cams {
		n += c.surface.Support()
	}
	return n
}

// Cameras lists the usable camera names
func (w *Webcam) Cameras() []string {
	var names []string
	for _, c := range w.cams {
		names = append(names, c.name)
	}
	return names
}

// Exhausted is the number of draws dropped during the last Prepare because no valid frame
// pair was found within MaxRetries
func (w *Webcam) Exhausted() int {
	return int(atomic.LoadInt64(&w.exhausted))
}

// Prepare implements Adapter, treating every BatchSize consecutive draws as one batch
func (w *Webcam) Prepare(epoch, n int) error {
	if n < 0 {
		return errors.Errorf("negative pair count %d", n)
	}
	return w.PrepareGroups(epoch, chunks(n, w.opts.BatchSize))
}

// PrepareGroups implements Grouped. It draws one pair spec per local index; with CamsInBatch set,
// the draws of each group come from a fresh random subset of CamsInBatch cameras. Frames are only
// read when they are needed to validate a draw or to serve a pair.
func (w *Webcam) PrepareGroups(epoch int, groups []int) error {
	var n int
	for _, g := range groups {
		if g < 0 {
			return errors.Errorf("negative group size %d", g)
		}
		n += g
	}
	rng := epochSource(w.opts.Seed, w.name, epoch)
	atomic.StoreInt64(&w.exhausted, 0)

	var sets []patchSet
	if w.opts.PatchSets > 0 && w.opts.CamsInBatch <= 0 {
		count := w.opts.PatchSets
		if count > n {
			count = n
		}
		for i := 0; i < count; i++ {
			sets = append(sets, w.drawSet(rng, nil))
		}
	}

	specs := make([]pairSpec, 0, n)
	for _, g := range groups {
		var allowed []int
		if w.opts.CamsInBatch > 0 {
			allowed = w.chooseCameras(rng)
		}
		for j := 0; j < g; j++ {
			spec, err := w.drawSpec(rng, allowed, sets, len(specs))
			if err != nil {
				return err
			}
			specs = append(specs, spec)
		}
	}
	if ex := w.Exhausted(); ex > 0 {
		w.log.Infof("epoch %d: replaced %d draws without a valid frame pair", epoch, ex)
	}
	w.specs = specs
	return nil
}

func (w *Webcam) chooseCameras(rng *rand.Rand) []int {
	k := w.opts.CamsInBatch
	if k >= len(w.cams) {
		return nil
	}
	return rng.Perm(len(w.cams))[:k]
}

func (w *Webcam) drawSet(rng *rand.Rand, allowed []int) patchSet {
	var cam int
	if len(allowed) > 0 {
		cam = allowed[rng.Intn(len(allowed))]
	} else {
		cam = rng.Intn(len(w.cams))
	}
	c := w.cams[cam]
	px := c.surface.Sample(rng)
	return patchSet{cam: cam, x: px % c.w, y: px / c.w}
}

// drawSpec finds a frame pair with both views valid. A set that keeps failing is dropped and
// replaced by a fresh draw, up to MaxResamples times.
func (w *Webcam) drawSpec(rng *rand.Rand, allowed []int, sets []patchSet, i int) (pairSpec, error) {
	for resample := 0; resample <= w.opts.MaxResamples; resample++ {
		var set patchSet
		if len(sets) > 0 && resample == 0 {
			set = sets[i%len(sets)]
		} else {
			set = w.drawSet(rng, allowed)
		}
		spec, err := w.matchFrames(rng, set)
		if err == nil {
			return spec, nil
		}
		if !errors.IsKind(err, errors.SamplingRetryExhausted) {
			return pairSpec{}, err
		}
		atomic.AddInt64(&w.exhausted, 1)
		w.log.Debugf("%v", err)
	}
	return pairSpec{}, errors.Kindf(errors.DataUnavailable,
		"webcam dataset %s: no valid frame pair after %d resamples", w.name, w.opts.MaxResamples)
}

func (w *Webcam) matchFrames(rng *rand.Rand, set patchSet) (pairSpec, error) {
	c := w.cams[set.cam]
	for attempt := 0; attempt < w.opts.MaxRetries; attempt++ {
		a := rng.Intn(len(c.frames))
		b := rng.Intn(len(c.frames) - 1)
		if b >= a {
			b++
		}
		okA, err := w.validView(c, a, set)
		if err != nil {
			return pairSpec{}, err
		}
		if !okA {
			continue
		}
		okB, err := w.validView(c, b, set)
		if err != nil {
			return pairSpec{}, err
		}
		if okB {
			return pairSpec{patchSet: set, a: a, b: b}, nil
		}
	}
	return pairSpec{}, errors.Kindf(errors.SamplingRetryExhausted,
		"camera %s at (%d, %d): no valid frame pair in %d attempts", c.name, set.x, set.y, w.opts.MaxRetries)
}

// validView rejects views whose tile is flat, such as night frames or occlusions
func (w *Webcam) validView(c camera, frame int, set patchSet) (bool, error) {
	if w.opts.MinContrast <= 0 {
		return true, nil
	}
	img, err := w.frame(c, frame)
	if err != nil {
		return false, err
	}
	half := patches.RawSize / 2
	var sum, sq float64
	for y := set.y - half; y < set.y+half; y++ {
		for x := set.x - half; x < set.x+half; x++ {
			v := float64(img.Pix[y*img.Stride+x])
			sum += v
			sq += v * v
		}
	}
	n := float64(patches.RawSize * patches.RawSize)
	mean := sum / n
	return math.Sqrt(math.Max(sq/n-mean*mean, 0)) >= w.opts.MinContrast, nil
}

// Pair implements Adapter
func (w *Webcam) Pair(i int, rng *rand.Rand) (patches.Pair, error) {
	if i < 0 || i >= len(w.specs) {
		return patches.Pair{}, errors.Errorf("%s: pair %d outside prepared range [0, %d)", w.name, i, len(w.specs))
	}
	spec := w.specs[i]
	c := w.cams[spec.cam]
	a, err := w.extract(c, spec.a, spec.patchSet)
	if err != nil {
		return patches.Pair{}, err
	}
	b, err := w.extract(c, spec.b, spec.patchSet)
	if err != nil {
		return patches.Pair{}, err
	}
	return w.pipeline.ApplyPair(a, b, rng), nil
}

// Tile returns the raw tile for local index i, one for each view
func (w *Webcam) Tile(i int) (*image.Gray, *image.Gray, error) {
	if i < 0 || i >= len(w.specs) {
		return nil, nil, errors.Errorf("%s: tile %d outside prepared range [0, %d)", w.name, i, len(w.specs))
	}
	spec := w.specs[i]
	c := w.cams[spec.cam]
	a, err := w.extract(c, spec.a, spec.patchSet)
	if err != nil {
		return nil, nil, err
	}
	b, err := w.extract(c, spec.b, spec.patchSet)
	return a, b, err
}

func (w *Webcam) extract(c camera, frame int, set patchSet) (*image.Gray, error) {
	img, err := w.frame(c, frame)
	if err != nil {
		return nil, err
	}
	if w.opts.PatchGen == OneRes {
		return augment.Crop(img, window(set, patches.RawSize)), nil
	}

	acc := make([]float64, patches.RawSize*patches.RawSize)
	for _, s := range w.opts.Scales {
		side := int(math.Round(float64(patches.RawSize) * s))
		tile := augment.Resize(augment.Crop(img, window(set, side)), patches.RawSize, patches.RawSize)
		for y := 0; y < patches.RawSize; y++ {
			for x := 0; x < patches.RawSize; x++ {
				acc[y*patches.RawSize+x] += float64(tile.Pix[y*tile.Stride+x])
			}
		}
	}
	out := image.NewGray(image.Rect(0, 0, patches.RawSize, patches.RawSize))
	for i, v := range acc {
		out.Pix[i] = uint8(math.Round(v / float64(len(w.opts.Scales))))
	}
	return out, nil
}

func window(set patchSet, side int) image.Rectangle {
	x0 := set.x - side/2
	y0 := set.y - side/2
	return image.Rect(x0, y0, x0+side, y0+side)
}

// Describe implements Adapter
func (w *Webcam) Describe() map[string]interface{} {
	return map[string]interface{}{
		"kind":          "webcam",
		"name":          w.name,
		"root":          w.root,
		"cameras":       len(w.cams),
		"weight_fn":     w.opts.WeightFn.String(),
		"patch_gen":     w.opts.PatchGen.String(),
		"cams_in_batch": w.opts.CamsInBatch,
		"n_patch_sets":  w.opts.PatchSets,
		"masks_dir":     w.opts.MasksDir,
		"transform":     w.pipeline.Kind.String(),
	}
}

func decodeConfig(path string) (image.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return image.Config{}, err
	}
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	if err != nil {
		return image.Config{}, errors.Wrapf(err, "decoding %s", path)
	}
	return cfg, nil
}

func loadGray(path string) (*image.Gray, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %s", path)
	}
	if g, ok := img.(*image.Gray); ok && g.Bounds().Min == (image.Point{}) {
		return g, nil
	}
	b := img.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(g, g.Bounds(), img, b.Min, draw.Src)
	return g, nil
}
