package logger

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// ratioSampler lets numerator out of every denominator events through.
// The ratio is packed as numerator<<32 | denominator; zero disables sampling.
type ratioSampler struct {
	ratio atomic.Uint64
	seen  atomic.Uint64
}

func newRatioSampler(numerator, denominator int) *ratioSampler {
	s := &ratioSampler{}
	s.Set(numerator, denominator)
	return s
}

// Set replaces the ratio and restarts the cycle.
func (s *ratioSampler) Set(numerator, denominator int) {
	switch {
	case numerator <= 0 || denominator <= 0:
		s.ratio.Store(0)
	default:
		numerator = min(numerator, denominator)
		s.ratio.Store(uint64(numerator)<<32 | uint64(uint32(denominator)))
	}
	s.seen.Store(0)
}

// Allow reports whether the next event passes.
func (s *ratioSampler) Allow() bool {
	r := s.ratio.Load()
	if r == 0 {
		return true
	}
	num, den := r>>32, r&0xffffffff
	n := s.seen.Add(1) - 1
	return n%den < num
}

// parseRatioSpec accepts "n/d" or a bare "d" meaning 1/d.
func parseRatioSpec(spec string) (int, int) {
	spec = strings.TrimSpace(spec)
	if a, b, ok := strings.Cut(spec, "/"); ok {
		num, err1 := strconv.Atoi(strings.TrimSpace(a))
		den, err2 := strconv.Atoi(strings.TrimSpace(b))
		if err1 == nil && err2 == nil {
			return num, den
		}
		return 0, 0
	}
	if den, err := strconv.Atoi(spec); err == nil && den > 0 {
		return 1, den
	}
	return 0, 0
}
