package paramspace

import (
	"errors"
	"fmt"
	"math/rand"
)

var (
	// ErrOutOfBounds reports a parameter value outside a dimension's
	// half-open range [Lower, Upper). Values equal to Upper are rejected,
	// never clamped into a nonexistent bin.
	ErrOutOfBounds = errors.New("paramspace: parameter out of bounds")
	// ErrDimensionMismatch reports a tuple whose length does not match the
	// space's dimension count.
	ErrDimensionMismatch = errors.New("paramspace: dimension count mismatch")
)

// Dimension is one axis of the search space: a continuous range sliced into
// Bins equal-width bins.
type Dimension struct {
	Name  string  `json:"name"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Bins  int     `json:"bins"`
}

// Width returns the width of one bin.
func (d Dimension) Width() float64 {
	return (d.Upper - d.Lower) / float64(d.Bins)
}

// Interval is a half-open range [Lower, Upper).
type Interval struct {
	Lower float64
	Upper float64
}

// Coordinate addresses one bin, one index per dimension.
type Coordinate []int

// Space is an ordered, fixed sequence of dimensions. Insertion order defines
// tuple position everywhere. The dimension count never changes after New.
type Space struct {
	dims        []Dimension
	cardinality int
}

// New validates the dimensions and builds a space. Each dimension needs
// Lower < Upper and at least one bin.
func New(dims ...Dimension) (*Space, error) {
	if len(dims) == 0 {
		return nil, errors.New("paramspace: at least one dimension is required")
	}
	cardinality := 1
	for i, d := range dims {
		if d.Lower >= d.Upper {
			return nil, fmt.Errorf("paramspace: dimension %d (%s): lower bound %v is not below upper bound %v", i, d.Name, d.Lower, d.Upper)
		}
		if d.Bins < 1 {
			return nil, fmt.Errorf("paramspace: dimension %d (%s): bin count %d is below 1", i, d.Name, d.Bins)
		}
		cardinality *= d.Bins
	}
	return &Space{
		dims:        append([]Dimension(nil), dims...),
		cardinality: cardinality,
	}, nil
}

// Len returns the number of dimensions.
func (s *Space) Len() int {
	return len(s.dims)
}

// Cardinality returns the total number of bins.
func (s *Space) Cardinality() int {
	return s.cardinality
}

// Dimensions returns a copy of the dimension sequence.
func (s *Space) Dimensions() []Dimension {
	return append([]Dimension(nil), s.dims...)
}

// BinOf maps a concrete parameter tuple to its flat bin index. The flat
// index is mixed-radix with the first dimension least significant. A value
// outside [Lower, Upper) of its dimension yields ErrOutOfBounds.
func (s *Space) BinOf(params ...float64) (int, error) {
	if len(params) != len(s.dims) {
		return 0, fmt.Errorf("%w: got %d values for %d dimensions", ErrDimensionMismatch, len(params), len(s.dims))
	}
	flat := 0
	fact := 1
	for i, d := range s.dims {
		v := params[i]
		if v < d.Lower || v >= d.Upper {
			return 0, fmt.Errorf("%w: dimension %d (%s): %v not in [%v, %v)", ErrOutOfBounds, i, d.Name, v, d.Lower, d.Upper)
		}
		bin := int((v - d.Lower) / d.Width())
		if bin >= d.Bins {
			// float rounding right below Upper
			bin = d.Bins - 1
		}
		flat += fact * bin
		fact *= d.Bins
	}
	return flat, nil
}

// CoordinateOf expands a flat bin index into per-dimension bin indices.
func (s *Space) CoordinateOf(flat int) (Coordinate, error) {
	if flat < 0 || flat >= s.cardinality {
		return nil, fmt.Errorf("%w: flat index %d exceeds cardinality %d", ErrOutOfBounds, flat, s.cardinality)
	}
	coord := make(Coordinate, len(s.dims))
	for i, d := range s.dims {
		coord[i] = flat % d.Bins
		flat /= d.Bins
	}
	return coord, nil
}

// FlatOf is the inverse of CoordinateOf.
func (s *Space) FlatOf(coord Coordinate) (int, error) {
	if len(coord) != len(s.dims) {
		return 0, fmt.Errorf("%w: got %d indices for %d dimensions", ErrDimensionMismatch, len(coord), len(s.dims))
	}
	flat := 0
	fact := 1
	for i, d := range s.dims {
		if coord[i] < 0 || coord[i] >= d.Bins {
			return 0, fmt.Errorf("%w: dimension %d (%s): bin index %d not in [0, %d)", ErrOutOfBounds, i, d.Name, coord[i], d.Bins)
		}
		flat += fact * coord[i]
		fact *= d.Bins
	}
	return flat, nil
}

// BoundsOf returns the per-dimension interval covered by a coordinate.
func (s *Space) BoundsOf(coord Coordinate) ([]Interval, error) {
	if len(coord) != len(s.dims) {
		return nil, fmt.Errorf("%w: got %d indices for %d dimensions", ErrDimensionMismatch, len(coord), len(s.dims))
	}
	bounds := make([]Interval, len(s.dims))
	for i, d := range s.dims {
		if coord[i] < 0 || coord[i] >= d.Bins {
			return nil, fmt.Errorf("%w: dimension %d (%s): bin index %d not in [0, %d)", ErrOutOfBounds, i, d.Name, coord[i], d.Bins)
		}
		w := d.Width()
		bounds[i] = Interval{
			Lower: d.Lower + w*float64(coord[i]),
			Upper: d.Lower + w*float64(coord[i]+1),
		}
	}
	return bounds, nil
}

// Midpoint returns the center point of a bin.
func (s *Space) Midpoint(coord Coordinate) ([]float64, error) {
	bounds, err := s.BoundsOf(coord)
	if err != nil {
		return nil, err
	}
	point := make([]float64, len(bounds))
	for i, b := range bounds {
		point[i] = b.Lower + (b.Upper-b.Lower)/2
	}
	return point, nil
}

// PointIn returns a uniformly jittered point inside a bin. The point always
// satisfies BinOf(point) == FlatOf(coord).
func (s *Space) PointIn(coord Coordinate, rng *rand.Rand) ([]float64, error) {
	bounds, err := s.BoundsOf(coord)
	if err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, errors.New("paramspace: random source is required")
	}
	point := make([]float64, len(bounds))
	for i, b := range bounds {
		point[i] = b.Lower + rng.Float64()*(b.Upper-b.Lower)
	}
	return point, nil
}
