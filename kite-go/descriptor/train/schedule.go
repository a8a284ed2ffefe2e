package train

// Schedule decays the learning rate linearly to zero over the whole pair budget:
//
//   lr = lr0 * (1 - step*batch/(triplets*epochs))
//
// where step counts the calls to Next, starting at 0.
type Schedule struct {
	LR0      float64
	Batch    int
	Triplets int
	Epochs   int
	calls    int
}

// NewSchedule returns a schedule that has not been stepped yet
func NewSchedule(lr0 float64, batch, triplets, epochs int) *Schedule {
	return &Schedule{LR0: lr0, Batch: batch, Triplets: triplets, Epochs: epochs}
}

// Next advances the schedule and returns the rate for the following step. It returns false
// once the rate would not be positive; that rate must never be applied.
func (s *Schedule) Next() (float64, bool) {
	step := s.calls
	s.calls++
	lr := s.LR0 * (1 - float64(step)*float64(s.Batch)/(float64(s.Triplets)*float64(s.Epochs)))
	if lr <= 0 {
		return 0, false
	}
	return lr, true
}

// Calls is the number of times Next was called, saved with checkpoints
func (s *Schedule) Calls() int {
	return s.calls
}

// Restore continues a schedule saved after calls calls to Next
func (s *Schedule) Restore(calls int) {
	s.calls = calls
}
