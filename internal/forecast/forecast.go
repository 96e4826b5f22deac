package forecast

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"
)

// Series is a generated parameter series split into a historical segment
// (observed values) and a forecast segment (model predictions). Timestamps
// cover both segments: len(Timestamps) == len(Historical) + len(Forecast).
type Series struct {
	Parameter  string
	Timestamps []time.Time
	Historical []float64
	Forecast   []float64
}

// Generator produces synthetic environmental parameter series: a per-parameter
// base value plus a 24-hour sine cycle plus gaussian noise. Predicted values
// carry 30% of the drawn noise so the "model" partially tracks reality.
type Generator struct {
	Bases       map[string]float64
	DefaultBase float64
	// Rand is guarded by mu: one generator serves concurrent requests and
	// rand.Rand is not safe for concurrent use.
	Rand *rand.Rand
	Now  func() time.Time

	mu sync.Mutex
}

// New returns a generator over the given base values, seeded from the clock.
func New(bases map[string]float64, defaultBase float64) *Generator {
	return &Generator{
		Bases:       bases,
		DefaultBase: defaultBase,
		Rand:        rand.New(rand.NewSource(time.Now().UnixNano())),
		Now:         time.Now,
	}
}

// Generate builds a series of length hours starting at the current time.
// Unknown parameter names fall back to DefaultBase. hours must be positive.
func (g *Generator) Generate(parameter string, hours int) (Series, error) {
	if hours <= 0 {
		return Series{}, fmt.Errorf("invalid horizon %d: hours must be positive", hours)
	}
	base, ok := g.Bases[parameter]
	if !ok {
		base = g.DefaultBase
	}
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	start := now()

	s := Series{
		Parameter:  parameter,
		Timestamps: make([]time.Time, 0, hours),
	}
	split := int(float64(hours) * 0.7)

	g.mu.Lock()
	defer g.mu.Unlock()
	for i := 0; i < hours; i++ {
		s.Timestamps = append(s.Timestamps, start.Add(time.Duration(i)*time.Hour))

		dailyCycle := math.Sin(float64(i)*2*math.Pi/24) * 0.5
		noise := g.Rand.NormFloat64() * 0.1

		actual := round2(base + dailyCycle + noise)
		predicted := round2(base + dailyCycle + noise*0.3)

		if i < split {
			s.Historical = append(s.Historical, actual)
		} else {
			s.Forecast = append(s.Forecast, predicted)
		}
	}
	return s, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
