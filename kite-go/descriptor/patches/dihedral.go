package patches

// NumDihedral is the number of flip/rot90 transforms of a square
const NumDihedral = 8

// Dihedral applies one of the 8 symmetries of the square: k%4 counter-clockwise quarter
// turns, followed by a horizontal flip when k >= 4.
func Dihedral(p Patch, k int) Patch {
	if k < 0 || k >= NumDihedral {
		panic("patches: dihedral index out of range")
	}
	if k == 0 {
		return p
	}
	n := p.Side
	out := New(n)
	rot := k % 4
	flip := k >= 4
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			sx, sy := x, y
			if flip {
				sx = n - 1 - sx
			}
			// invert the rotation: find the source of (sx, sy) after rot quarter turns
			for r := 0; r < rot; r++ {
				sx, sy = n-1-sy, sx
			}
			out.Pix[y*n+x] = p.Pix[sy*n+sx]
		}
	}
	return out
}
