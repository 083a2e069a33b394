package signals

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// generator is a mutex-guarded rand source shared by the synthetic sources.
type generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newGenerator(seed int64) *generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &generator{rng: rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))}
}

func (g *generator) uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*g.rng.Float64()
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Attention derives the attention scalar from an emotion distribution and a
// jitter term, clamped to [0.1, 0.9].
func Attention(e Emotions, jitter float64) float64 {
	a := 0.7*e.Happy + 0.5*e.Neutral - 0.3*e.Sad - 0.4*e.Angry - 0.2*e.Disgusted
	return clamp(a+jitter, 0.1, 0.9)
}

// SyntheticFace simulates a facial-expression analyser.
type SyntheticFace struct{ g *generator }

func NewSyntheticFace(seed int64) *SyntheticFace { return &SyntheticFace{g: newGenerator(seed)} }

func (s *SyntheticFace) Kind() Kind { return KindFace }

func (s *SyntheticFace) Sample(ctx context.Context) (Observation, error) {
	if err := ctx.Err(); err != nil {
		return Observation{}, err
	}
	s.g.mu.Lock()
	raw := Emotions{
		Happy:     s.g.uniform(0.3, 0.8),
		Sad:       s.g.uniform(0.0, 0.3),
		Angry:     s.g.uniform(0.0, 0.2),
		Surprised: s.g.uniform(0.0, 0.2),
		Disgusted: s.g.uniform(0.0, 0.1),
		Neutral:   s.g.uniform(0.2, 0.6),
	}
	jitter := s.g.uniform(-0.1, 0.1)
	s.g.mu.Unlock()

	e := raw.Normalize()
	return Observation{
		Kind: KindFace,
		Face: &Face{Emotions: e, Attention: Attention(e, jitter)},
	}, nil
}

// SyntheticVoice simulates a microphone tone/volume analyser.
type SyntheticVoice struct{ g *generator }

func NewSyntheticVoice(seed int64) *SyntheticVoice { return &SyntheticVoice{g: newGenerator(seed)} }

func (s *SyntheticVoice) Kind() Kind { return KindVoice }

func (s *SyntheticVoice) Sample(ctx context.Context) (Observation, error) {
	if err := ctx.Err(); err != nil {
		return Observation{}, err
	}
	s.g.mu.Lock()
	defer s.g.mu.Unlock()
	return Observation{
		Kind:  KindVoice,
		Voice: &Voice{Tone: s.g.uniform(0.1, 0.7), Volume: s.g.uniform(0.3, 0.8)},
	}, nil
}

// SyntheticKeyboard simulates a keyboard activity hook.
type SyntheticKeyboard struct{ g *generator }

func NewSyntheticKeyboard(seed int64) *SyntheticKeyboard {
	return &SyntheticKeyboard{g: newGenerator(seed)}
}

func (s *SyntheticKeyboard) Kind() Kind { return KindKeyboard }

func (s *SyntheticKeyboard) Sample(ctx context.Context) (Observation, error) {
	if err := ctx.Err(); err != nil {
		return Observation{}, err
	}
	s.g.mu.Lock()
	defer s.g.mu.Unlock()
	return Observation{
		Kind:     KindKeyboard,
		Keyboard: &Keyboard{Activity: s.g.uniform(0.2, 0.9), TypingSpeed: s.g.uniform(0.3, 0.8)},
	}, nil
}

// SyntheticMouse simulates a pointer activity hook.
type SyntheticMouse struct{ g *generator }

func NewSyntheticMouse(seed int64) *SyntheticMouse { return &SyntheticMouse{g: newGenerator(seed)} }

func (s *SyntheticMouse) Kind() Kind { return KindMouse }

func (s *SyntheticMouse) Sample(ctx context.Context) (Observation, error) {
	if err := ctx.Err(); err != nil {
		return Observation{}, err
	}
	s.g.mu.Lock()
	defer s.g.mu.Unlock()
	return Observation{
		Kind:  KindMouse,
		Mouse: &Mouse{Movement: s.g.uniform(0.2, 0.9), Clicks: s.g.rng.IntN(6)},
	}, nil
}

// SyntheticSet returns one synthetic source per kind. Distinct seeds are
// derived from seed so the sources do not move in lockstep; seed 0 seeds
// from the clock.
func SyntheticSet(seed int64) []Source {
	derive := func(i int64) int64 {
		if seed == 0 {
			return 0
		}
		return seed*31 + i
	}
	return []Source{
		NewSyntheticFace(derive(1)),
		NewSyntheticVoice(derive(2)),
		NewSyntheticKeyboard(derive(3)),
		NewSyntheticMouse(derive(4)),
	}
}
