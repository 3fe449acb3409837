package audio

import "math"

// Sample rates at the three edges of the gateway.
const (
	// ClientRate is the PCM16 rate spoken over the WebSocket, both directions.
	ClientRate = 24000
	// PipelineInputRate is the rate the speech recognizer expects.
	PipelineInputRate = 16000
	// DefaultTTSRate is assumed for synthesized audio when the pipeline event
	// carries no sample_rate metadata.
	DefaultTTSRate = 32000
)

// UplinkChunkSize is the fixed converter input size for microphone audio:
// 200 ms at 24 kHz.
const UplinkChunkSize = 4800

// InterpolationKind selects how the converter interpolates between filter
// phases.
type InterpolationKind int

const (
	InterpolationLinear InterpolationKind = iota
	InterpolationCubic
)

// WindowKind selects the window applied to the sinc filter.
type WindowKind int

const (
	WindowBlackman WindowKind = iota
	WindowBlackmanHarris
)

// SincParams parameterizes a band-limited sinc converter.
type SincParams struct {
	FilterLength  int
	Cutoff        float64
	Interpolation InterpolationKind
	Oversampling  int
	Window        WindowKind
}

// UplinkParams returns the high-quality parameters used for the continuous
// microphone stream.
func UplinkParams() SincParams {
	return SincParams{
		FilterLength:  256,
		Cutoff:        0.95,
		Interpolation: InterpolationCubic,
		Oversampling:  256,
		Window:        WindowBlackmanHarris,
	}
}

// DownlinkParams returns the faster parameters used for per-segment TTS
// audio, where latency matters more than stopband depth.
func DownlinkParams() SincParams {
	return SincParams{
		FilterLength:  64,
		Cutoff:        0.95,
		Interpolation: InterpolationLinear,
		Oversampling:  128,
		Window:        WindowBlackman,
	}
}

// Converter is a band-limited sample-rate converter built from an
// oversampled windowed-sinc filter bank. One converter handles one
// conversion ratio; Process is stateless across calls apart from the
// precomputed filters, so a converter may be reused chunk after chunk.
type Converter struct {
	ratio   float64
	params  SincParams
	filters [][]float64
}

// NewConverter builds a converter for the given output/input rate ratio.
func NewConverter(ratio float64, params SincParams) *Converter {
	c := &Converter{ratio: ratio, params: params}
	c.buildFilters()
	return c
}

// NewUplinkConverter builds the fixed 24 kHz -> 16 kHz microphone converter.
func NewUplinkConverter() *Converter {
	return NewConverter(float64(PipelineInputRate)/float64(ClientRate), UplinkParams())
}

// NewDownlinkConverter builds a srcRate -> 24 kHz converter for one TTS
// segment. srcRate values below 1 fall back to DefaultTTSRate.
func NewDownlinkConverter(srcRate int) *Converter {
	if srcRate < 1 {
		srcRate = DefaultTTSRate
	}
	return NewConverter(float64(ClientRate)/float64(srcRate), DownlinkParams())
}

// buildFilters precomputes one windowed-sinc filter per oversampling phase.
// Phase p holds the kernel sampled at fractional offset p/oversampling. When
// downsampling, the cutoff is scaled by the ratio to reject aliasing.
func (c *Converter) buildFilters() {
	length := c.params.FilterLength
	half := float64(length) / 2
	cutoff := c.params.Cutoff
	if c.ratio < 1 {
		cutoff *= c.ratio
	}

	c.filters = make([][]float64, c.params.Oversampling)
	for p := range c.filters {
		frac := float64(p) / float64(c.params.Oversampling)
		taps := make([]float64, length)
		for k := range taps {
			x := float64(k) - half - frac
			taps[k] = cutoff * sinc(cutoff*x) * c.window(x/half)
		}
		c.filters[p] = taps
	}
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	return math.Sin(math.Pi*x) / (math.Pi * x)
}

func (c *Converter) window(u float64) float64 {
	if u <= -1 || u >= 1 {
		return 0
	}
	switch c.params.Window {
	case WindowBlackmanHarris:
		return 0.35875 + 0.48829*math.Cos(math.Pi*u) + 0.14128*math.Cos(2*math.Pi*u) + 0.01168*math.Cos(3*math.Pi*u)
	default:
		return 0.42 + 0.5*math.Cos(math.Pi*u) + 0.08*math.Cos(2*math.Pi*u)
	}
}

// Process resamples one chunk. The output length is always
// ceil(len(in) * ratio); samples past the chunk edges are treated as
// silence.
func (c *Converter) Process(in []float32) []float32 {
	if len(in) == 0 {
		return nil
	}

	outLen := int(math.Ceil(float64(len(in)) * c.ratio))
	out := make([]float32, outLen)
	step := 1.0 / c.ratio

	for n := range out {
		pos := float64(n) * step
		i := int(math.Floor(pos))
		frac := pos - float64(i)
		phasePos := frac * float64(c.params.Oversampling)
		p := int(math.Floor(phasePos))
		pf := phasePos - float64(p)

		var v float64
		switch c.params.Interpolation {
		case InterpolationCubic:
			a := c.phaseValue(in, i, p-1)
			b := c.phaseValue(in, i, p)
			d := c.phaseValue(in, i, p+1)
			e := c.phaseValue(in, i, p+2)
			v = catmullRom(a, b, d, e, pf)
		default:
			v0 := c.phaseValue(in, i, p)
			v1 := c.phaseValue(in, i, p+1)
			v = v0*(1-pf) + v1*pf
		}
		out[n] = float32(v)
	}
	return out
}

// phaseValue evaluates the filter bank at input index i, phase q. Phases
// outside [0, oversampling) carry into the neighboring input sample.
func (c *Converter) phaseValue(in []float32, i, q int) float64 {
	for q >= c.params.Oversampling {
		q -= c.params.Oversampling
		i++
	}
	for q < 0 {
		q += c.params.Oversampling
		i--
	}

	taps := c.filters[q]
	halfLen := c.params.FilterLength / 2
	var acc float64
	for k, coeff := range taps {
		idx := i - halfLen + k
		if idx >= 0 && idx < len(in) {
			acc += coeff * float64(in[idx])
		}
	}
	return acc
}

// catmullRom interpolates between b and d (t in [0,1]) with a and e as the
// outer control points.
func catmullRom(a, b, d, e, t float64) float64 {
	return b + 0.5*t*(d-a+t*(2*a-5*b+4*d-e+t*(3*(b-d)+e-a)))
}
