// Package actuation turns detection centres into relay pulses.
package actuation

import "math"

// Lane is a horizontal band of the frame owned by a single relay. Start is
// floored, End is not, so neighbouring lanes can overlap or leave a gap of
// less than a pixel when the frame does not divide evenly.
type Lane struct {
	Relay int
	Start int
	End   float64
}

// Contains reports whether column x falls in the lane.
func (l Lane) Contains(x int) bool {
	fx := float64(x)
	return float64(l.Start) <= fx && fx < l.End
}

// LaneTable partitions a frame of the given width into one lane per relay.
type LaneTable []Lane

func NewLaneTable(width, relays int) LaneTable {
	if relays <= 0 || width <= 0 {
		return nil
	}

	laneWidth := float64(width) / float64(relays)
	table := make(LaneTable, relays)
	for i := range table {
		start := int(math.Floor(float64(i) * laneWidth))
		table[i] = Lane{
			Relay: i,
			Start: start,
			End:   float64(start) + laneWidth,
		}
	}
	return table
}

// Match returns the first lane containing x.
func (t LaneTable) Match(x int) (Lane, bool) {
	for _, l := range t {
		if l.Contains(x) {
			return l, true
		}
	}
	return Lane{}, false
}

// Starts lists the lane start columns in relay order.
func (t LaneTable) Starts() []int {
	s := make([]int, len(t))
	for i, l := range t {
		s[i] = l.Start
	}
	return s
}

// ActivationLine is the row a detection must pass before it fires a relay.
func ActivationLine(height int) int {
	return int(0.01 * float64(height))
}
