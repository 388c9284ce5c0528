package effect

import "fmt"

// PlateParams configures the algorithmic plate.
type PlateParams struct {
	RoomSize float64 `yaml:"room_size"` // [0, 0.98], longer decay when larger
	Damping  float64 `yaml:"damping"`   // [0, 0.99], high-frequency absorption
	Gain     float64 `yaml:"gain"`      // [0, 0.1], input gain into the tank
}

// DefaultPlateParams returns a medium plate.
func DefaultPlateParams() PlateParams {
	return PlateParams{
		RoomSize: DefaultPlateRoomSize,
		Damping:  DefaultPlateDamping,
		Gain:     DefaultPlateGain,
	}
}

// PlateReverb is a Schroeder-Moorer reverberator: eight damped feedback
// combs in parallel followed by four allpasses in series, per channel.
type PlateReverb struct {
	params   PlateParams
	channels []plateChannel
}

// NewPlateReverb returns a plate with params clamped to their ranges.
func NewPlateReverb(params PlateParams) *PlateReverb {
	params.RoomSize = clamp(params.RoomSize, 0, maxPlateRoomSize)
	params.Damping = clamp(params.Damping, 0, maxPlateDamping)
	params.Gain = clamp(params.Gain, 0, maxPlateGain)
	return &PlateReverb{params: params}
}

// Params returns the effective parameters.
func (p *PlateReverb) Params() PlateParams {
	return p.params
}

// Prepare implements Reverb.
func (p *PlateReverb) Prepare(numChannels, sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSampleRate, sampleRate)
	}

	feedback := p.params.RoomSize*plateRoomScale + plateRoomOffset
	damp := p.params.Damping * plateDampScale
	ratio := float64(sampleRate) / plateReferenceRate

	p.channels = make([]plateChannel, numChannels)
	for c := range p.channels {
		spread := 0
		if c%2 == 1 {
			spread = plateStereoSpread
		}
		ch := &p.channels[c]
		ch.combs = make([]comb, len(plateCombTunings))
		for i, tuning := range plateCombTunings {
			ch.combs[i] = comb{
				buf:      make([]float64, scaledDelay(tuning+spread, ratio)),
				feedback: feedback,
				damp:     damp,
			}
		}
		ch.allpasses = make([]allpass, len(plateAllpassTunings))
		for i, tuning := range plateAllpassTunings {
			ch.allpasses[i] = allpass{buf: make([]float64, scaledDelay(tuning+spread, ratio))}
		}
	}
	return nil
}

// Render implements Reverb.
func (p *PlateReverb) Render(channel int, dst, src []float64) {
	ch := &p.channels[channel]
	for n, x := range src {
		in := x * p.params.Gain
		var out float64
		for i := range ch.combs {
			out += ch.combs[i].process(in)
		}
		for i := range ch.allpasses {
			out = ch.allpasses[i].process(out)
		}
		dst[n] = out * plateWetScale
	}
}

type plateChannel struct {
	combs     []comb
	allpasses []allpass
}

// comb is a feedback comb with a one-pole lowpass in the loop.
type comb struct {
	buf      []float64
	idx      int
	store    float64
	feedback float64
	damp     float64
}

func (c *comb) process(x float64) float64 {
	out := c.buf[c.idx]
	c.store = out*(1-c.damp) + c.store*c.damp
	c.buf[c.idx] = x + c.store*c.feedback
	c.idx++
	if c.idx == len(c.buf) {
		c.idx = 0
	}
	return out
}

type allpass struct {
	buf []float64
	idx int
}

func (a *allpass) process(x float64) float64 {
	delayed := a.buf[a.idx]
	a.buf[a.idx] = x + delayed*plateAllpassFeedback
	a.idx++
	if a.idx == len(a.buf) {
		a.idx = 0
	}
	return delayed - x
}

func scaledDelay(samples int, ratio float64) int {
	return max(int(float64(samples)*ratio+0.5), 1)
}

func clamp(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}
