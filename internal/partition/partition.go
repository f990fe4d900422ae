// Package partition splits the star-count domain into search predicates small enough
// that each one stays under the search endpoint's 1,000 result window.
package partition

import (
	"errors"
	"fmt"
	"iter"
	"math"
	"sort"
	"strings"
)

// ResultWindow is the most results the search endpoint will ever return for one query.
const ResultWindow = 1000

// Band describes how one contiguous star range is cut into predicates.
// A closed band emits buckets of Width stars from Min to Max, multiplying the width by
// Growth after every bucket when Growth > 1. An Open band emits the single predicate stars:>=Min.
type Band struct {
	Min    int64
	Max    int64
	Width  int64
	Growth float64
	Open   bool
}

// RangePredicate is one star-count interval. Max is ignored when Open is set.
type RangePredicate struct {
	Min  int64
	Max  int64
	Open bool
}

func (p RangePredicate) String() string {
	switch {
	case p.Open:
		return fmt.Sprintf("stars:>=%d", p.Min)
	case p.Min == p.Max:
		return fmt.Sprintf("stars:%d", p.Min)
	default:
		return fmt.Sprintf("stars:%d..%d", p.Min, p.Max)
	}
}

// Query returns the full search string: fixed qualifiers followed by the star filter.
func (p RangePredicate) Query(qualifiers string) string {
	qualifiers = strings.TrimSpace(qualifiers)
	if qualifiers == "" {
		return p.String()
	}
	return qualifiers + " " + p.String()
}

func (p RangePredicate) Contains(stars int64) bool {
	if stars < p.Min {
		return false
	}
	return p.Open || stars <= p.Max
}

// Partitioner generates the ordered predicate sequence for one sweep.
type Partitioner struct {
	bands      []Band
	qualifiers string
}

// New validates bands and returns a Partitioner over them.
func New(bands []Band, qualifiers string) (*Partitioner, error) {
	if err := validate(bands); err != nil {
		return nil, err
	}
	cp := make([]Band, len(bands))
	copy(cp, bands)
	return &Partitioner{bands: cp, qualifiers: strings.TrimSpace(qualifiers)}, nil
}

func (p *Partitioner) Qualifiers() string {
	return p.qualifiers
}

// DomainMin is the lowest star count covered.
func (p *Partitioner) DomainMin() int64 {
	return p.bands[0].Min
}

// All yields predicates lazily in ascending star order. Each call starts over.
func (p *Partitioner) All() iter.Seq[RangePredicate] {
	return func(yield func(RangePredicate) bool) {
		for _, band := range p.bands {
			if band.Open {
				if !yield(RangePredicate{Min: band.Min, Open: true}) {
					return
				}
				continue
			}
			width := band.Width
			for lo := band.Min; lo <= band.Max; {
				hi := band.Max
				if width <= band.Max-lo {
					hi = lo + width - 1
				}
				if !yield(RangePredicate{Min: lo, Max: hi}) {
					return
				}
				lo = hi + 1
				width = grow(width, band.Growth)
			}
		}
	}
}

// Predicates materializes All.
func (p *Partitioner) Predicates() []RangePredicate {
	preds := make([]RangePredicate, 0, 64)
	for pred := range p.All() {
		preds = append(preds, pred)
	}
	return preds
}

func grow(width int64, growth float64) int64 {
	if growth <= 1 {
		return width
	}
	next := math.Ceil(float64(width) * growth)
	if next >= math.MaxInt64/2 {
		return math.MaxInt64 / 2
	}
	return int64(next)
}

func validate(bands []Band) error {
	if len(bands) == 0 {
		return errors.New("at least one band is required")
	}
	if bands[0].Min < 0 {
		return fmt.Errorf("band 0: min must not be negative, got %d", bands[0].Min)
	}
	for i, band := range bands {
		last := i == len(bands)-1
		if band.Open != last {
			if band.Open {
				return fmt.Errorf("band %d: only the last band may be open", i)
			}
			return fmt.Errorf("band %d: the last band must be open so the domain is covered", i)
		}
		if i > 0 {
			prev := bands[i-1]
			if band.Min != prev.Max+1 {
				return fmt.Errorf("band %d: min %d does not follow previous max %d", i, band.Min, prev.Max)
			}
		}
		if band.Open {
			continue
		}
		if band.Max < band.Min {
			return fmt.Errorf("band %d: max %d is below min %d", i, band.Max, band.Min)
		}
		if band.Width < 1 {
			return fmt.Errorf("band %d: width must be at least 1, got %d", i, band.Width)
		}
		if band.Growth != 0 && band.Growth < 1 {
			return fmt.Errorf("band %d: growth must be 0 or >= 1, got %v", i, band.Growth)
		}
	}
	return nil
}

// CheckCoverage verifies that preds cover [domainMin, +inf) with no gap and no overlap.
func CheckCoverage(preds []RangePredicate, domainMin int64) error {
	if len(preds) == 0 {
		return errors.New("no predicates")
	}
	sorted := make([]RangePredicate, len(preds))
	copy(sorted, preds)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Min < sorted[j].Min })

	next := domainMin
	for i, pred := range sorted {
		switch {
		case pred.Min > next:
			return fmt.Errorf("gap: stars %d..%d not covered", next, pred.Min-1)
		case pred.Min < next:
			return fmt.Errorf("overlap: %s starts below %d", pred, next)
		}
		if pred.Open {
			if i != len(sorted)-1 {
				return fmt.Errorf("overlap: %s is open but followed by %s", pred, sorted[i+1])
			}
			return nil
		}
		if pred.Max < pred.Min {
			return fmt.Errorf("empty predicate %s", pred)
		}
		next = pred.Max + 1
	}
	return fmt.Errorf("gap: stars >=%d not covered", next)
}
