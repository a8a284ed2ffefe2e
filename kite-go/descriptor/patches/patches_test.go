package patches

import (
	"image"
	"io/ioutil"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/kiteco/patchdesc/kite-golib/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ramp(side int) Patch {
	p := New(side)
	for i := range p.Pix {
		p.Pix[i] = float32(i)
	}
	return p
}

func TestDihedralGroup(t *testing.T) {
	p := ramp(5)

	require.Equal(t, p, Dihedral(p, 0))

	// four quarter turns are the identity
	q := p
	for i := 0; i < 4; i++ {
		q = Dihedral(q, 1)
	}
	require.Equal(t, p.Pix, q.Pix)

	// a flip is an involution
	require.Equal(t, p.Pix, Dihedral(Dihedral(p, 4), 4).Pix)

	// all eight transforms of an asymmetric patch are distinct
	seen := make(map[float32]int)
	for k := 0; k < NumDihedral; k++ {
		d := Dihedral(p, k)
		seen[d.Pix[0]*100+d.Pix[1]]++
	}
	require.Len(t, seen, NumDihedral)
}

func TestDihedralQuarterTurn(t *testing.T) {
	// 0 1
	// 2 3
	p := Patch{Side: 2, Pix: []float32{0, 1, 2, 3}}
	r := Dihedral(p, 1)
	// counter-clockwise: 1 3 / 0 2
	require.Equal(t, []float32{1, 3, 0, 2}, r.Pix)
}

func TestFromGray(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 2, 2))
	img.Pix = []byte{0, 255, 51, 102}
	p := FromGray(img)
	require.Equal(t, 2, p.Side)
	assert.InDelta(t, 1.0, p.At(1, 0), 1e-6)
	assert.InDelta(t, 0.2, p.At(0, 1), 1e-6)
}

func TestNewBatchAligned(t *testing.T) {
	var pairs []Pair
	for i := 0; i < 4; i++ {
		pairs = append(pairs, Pair{Anchor: Patch{Side: 1, Pix: []float32{float32(i)}}, Positive: Patch{Side: 1, Pix: []float32{float32(10 + i)}}})
	}
	b := NewBatch(pairs)
	require.Equal(t, 4, b.Len())
	for i := range pairs {
		require.Equal(t, b.Anchors[i].Pix[0]+10, b.Positives[i].Pix[0])
	}
}

func TestSynthesize(t *testing.T) {
	b := Synthesize(SynthOptions{Name: "synth", Points: 10, Views: 3, Side: 16, Negatives: 7, Noise: 2}, rand.New(rand.NewSource(1)))
	require.NoError(t, b.Validate())

	s := b.Stats()
	require.Equal(t, 30, s.Patches)
	require.Equal(t, 30, s.Positives) // 3 pairs per point
	require.Equal(t, 7, s.Negatives)
	require.Len(t, b.Positives(), 30)
	require.Equal(t, 16, b.Gray(0).Bounds().Dx())
}

func TestLoadBank(t *testing.T) {
	dir, err := ioutil.TempDir("", "bank")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	b := Synthesize(SynthOptions{Name: "liberty", Points: 4, Views: 2, Side: 8}, rand.New(rand.NewSource(2)))
	path := filepath.Join(dir, "liberty.gob.gz")
	require.NoError(t, b.Save(path))

	loaded, err := LoadBank(path)
	require.NoError(t, err)
	require.Equal(t, b.Matches, loaded.Matches)
	require.Equal(t, "liberty", loaded.Name)

	_, err = LoadBank(filepath.Join(dir, "missing.gob"))
	require.True(t, errors.IsKind(err, errors.DataUnavailable))
}

func TestValidateRejectsBadMatch(t *testing.T) {
	b := &Bank{PatchSide: 1, Patches: [][]byte{{0}}, Matches: []Match{{A: 0, B: 3, Label: 1}}}
	require.Error(t, b.Validate())
}
