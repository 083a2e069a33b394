// Package signals defines the per-tick readings produced by the engagement
// signal sources and the synthetic sources that stand in for real sensors.
package signals

// Kind identifies which source produced an Observation.
type Kind string

const (
	KindFace     Kind = "face"
	KindVoice    Kind = "voice"
	KindKeyboard Kind = "keyboard"
	KindMouse    Kind = "mouse"
)

// Kinds lists every source kind in sampling order.
var Kinds = []Kind{KindFace, KindVoice, KindKeyboard, KindMouse}

// Emotions is the 6-way facial emotion distribution. Values sum to 1.0.
type Emotions struct {
	Happy     float64 `json:"happy"`
	Sad       float64 `json:"sad"`
	Angry     float64 `json:"angry"`
	Surprised float64 `json:"surprised"`
	Disgusted float64 `json:"disgusted"`
	Neutral   float64 `json:"neutral"`
}

// Sum returns the total mass of the distribution.
func (e Emotions) Sum() float64 {
	return e.Happy + e.Sad + e.Angry + e.Surprised + e.Disgusted + e.Neutral
}

// Normalize scales the distribution to sum to 1.0. A zero distribution
// becomes fully neutral.
func (e Emotions) Normalize() Emotions {
	total := e.Sum()
	if total <= 0 {
		return Emotions{Neutral: 1}
	}
	return Emotions{
		Happy:     e.Happy / total,
		Sad:       e.Sad / total,
		Angry:     e.Angry / total,
		Surprised: e.Surprised / total,
		Disgusted: e.Disgusted / total,
		Neutral:   e.Neutral / total,
	}
}

type Face struct {
	Emotions  Emotions `json:"emotions"`
	Attention float64  `json:"attention"`
}

type Voice struct {
	// Tone runs from 0 (calm) to 1 (agitated).
	Tone   float64 `json:"tone"`
	Volume float64 `json:"volume"`
}

type Keyboard struct {
	Activity    float64 `json:"activity"`
	TypingSpeed float64 `json:"typing_speed"`
}

type Mouse struct {
	Movement float64 `json:"movement"`
	// Clicks counted during the sampling period.
	Clicks int `json:"clicks"`
}

// Observation is one reading from one source. Exactly the field matching
// Kind is non-nil.
type Observation struct {
	Kind      Kind      `json:"kind"`
	Available bool      `json:"available"`
	Face      *Face     `json:"face,omitempty"`
	Voice     *Voice    `json:"voice,omitempty"`
	Keyboard  *Keyboard `json:"keyboard,omitempty"`
	Mouse     *Mouse    `json:"mouse,omitempty"`
}

// Unavailable returns the neutral reading used when a source cannot produce
// data: all channels zero, face emotions fully neutral.
func Unavailable(kind Kind) Observation {
	o := Observation{Kind: kind}
	switch kind {
	case KindFace:
		o.Face = &Face{Emotions: Emotions{Neutral: 1}}
	case KindVoice:
		o.Voice = &Voice{}
	case KindKeyboard:
		o.Keyboard = &Keyboard{}
	case KindMouse:
		o.Mouse = &Mouse{}
	}
	return o
}

// Valid reports whether the payload matches Kind.
func (o Observation) Valid() bool {
	switch o.Kind {
	case KindFace:
		return o.Face != nil
	case KindVoice:
		return o.Voice != nil
	case KindKeyboard:
		return o.Keyboard != nil
	case KindMouse:
		return o.Mouse != nil
	}
	return false
}

// Reading bundles one observation per source for a single tick.
type Reading struct {
	Face     Observation `json:"face"`
	Voice    Observation `json:"voice"`
	Keyboard Observation `json:"keyboard"`
	Mouse    Observation `json:"mouse"`
}

// Put stores o in the slot for its kind.
func (r *Reading) Put(o Observation) {
	switch o.Kind {
	case KindFace:
		r.Face = o
	case KindVoice:
		r.Voice = o
	case KindKeyboard:
		r.Keyboard = o
	case KindMouse:
		r.Mouse = o
	}
}

// Values returns the concrete channel values, substituting neutral readings
// for any slot that is empty or mismatched.
func (r Reading) Values() (Face, Voice, Keyboard, Mouse) {
	pick := func(o Observation, k Kind) Observation {
		if o.Kind != k || !o.Valid() {
			return Unavailable(k)
		}
		return o
	}
	return *pick(r.Face, KindFace).Face,
		*pick(r.Voice, KindVoice).Voice,
		*pick(r.Keyboard, KindKeyboard).Keyboard,
		*pick(r.Mouse, KindMouse).Mouse
}
