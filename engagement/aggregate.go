package engagement

import "github.com/maastricht-university/edmo-engagement/signals"

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Focus combines one reading per source into a focus score in [0,1].
// Face attention carries half the weight, keyboard/mouse activity 0.4 and
// voice volume 0.1. Clicks above 10 and attention jitter can overshoot, hence
// the clamp.
func Focus(face signals.Face, voice signals.Voice, kb signals.Keyboard, mouse signals.Mouse) float64 {
	faceFocus := face.Attention * 0.5
	activityFocus := kb.Activity*0.2 +
		mouse.Movement*0.1 +
		float64(mouse.Clicks)/10*0.1
	voiceFocus := voice.Volume * 0.1
	return clamp01(faceFocus + activityFocus + voiceFocus)
}

// Frustration combines one reading per source into a frustration score in
// [0,1]. The weights sum to 0.9; keep them as they are, stored history
// depends on them.
func Frustration(face signals.Face, voice signals.Voice, kb signals.Keyboard, mouse signals.Mouse) float64 {
	e := face.Emotions
	faceFrustration := e.Angry*0.3 + e.Sad*0.2 + e.Disgusted*0.1
	voiceFrustration := voice.Tone * 0.2
	activityFrustration := kb.TypingSpeed*0.1 + mouse.Movement*0.1
	return clamp01(faceFrustration + voiceFrustration + activityFrustration)
}

// Scores evaluates both aggregates over a tick's reading.
func Scores(r signals.Reading) (focus, frustration float64) {
	face, voice, kb, mouse := r.Values()
	return Focus(face, voice, kb, mouse), Frustration(face, voice, kb, mouse)
}
