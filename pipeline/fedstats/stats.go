package fedstats

import (
	"math"
)

// Stats are the additive moments of a value column.
type Stats struct {
	Count      int     `json:"count"`
	Sum        float64 `json:"sum"`
	SumSquares float64 `json:"sum_squares"`
}

// Compute returns the moments of values.
func Compute(values []float64) Stats {
	var s Stats
	for _, v := range values {
		s.Count++
		s.Sum += v
		s.SumSquares += v * v
	}
	return s
}

// Merge adds o into s.
func (s Stats) Merge(o Stats) Stats {
	return Stats{
		Count:      s.Count + o.Count,
		Sum:        s.Sum + o.Sum,
		SumSquares: s.SumSquares + o.SumSquares,
	}
}

// Mean is zero for an empty column.
func (s Stats) Mean() float64 {
	if s.Count == 0 {
		return 0
	}
	return s.Sum / float64(s.Count)
}

// Variance is the population variance.
func (s Stats) Variance() float64 {
	if s.Count == 0 {
		return 0
	}
	m := s.Mean()
	return math.Max(0, s.SumSquares/float64(s.Count)-m*m)
}

// Std is the population standard deviation.
func (s Stats) Std() float64 {
	return math.Sqrt(s.Variance())
}

// Summary is the human-facing form written to the output.
type Summary struct {
	Count int     `json:"count"`
	Sum   float64 `json:"sum"`
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
}

// Summary derives mean and std.
func (s Stats) Summary() Summary {
	return Summary{Count: s.Count, Sum: s.Sum, Mean: s.Mean(), Std: s.Std()}
}
