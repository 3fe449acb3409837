package audio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPCM16RoundTrip(t *testing.T) {
	in := []float32{0, 0.5, -0.5, 1, -1, 0.123, -0.987}

	pcm := Float32ToPCM16(in)
	require.Len(t, pcm, len(in)*2)

	out := PCM16ToFloat32(pcm)
	require.Len(t, out, len(in))

	for i := range in {
		assert.InDelta(t, in[i], out[i], 1.0/32767.0, "sample %d", i)
	}
}

func TestFloat32ToPCM16Clamps(t *testing.T) {
	pcm := Float32ToPCM16([]float32{1.5, -2.0})
	out := PCM16ToFloat32(pcm)

	assert.InDelta(t, 1.0, out[0], 1e-6)
	assert.InDelta(t, -1.0, out[1], 1e-6)
}

func TestFloat32ToPCM16Extremes(t *testing.T) {
	pcm := Float32ToPCM16([]float32{1, -1})

	hi := int16(pcm[0]) | int16(pcm[1])<<8
	lo := int16(pcm[2]) | int16(pcm[3])<<8
	assert.Equal(t, int16(32767), hi)
	assert.Equal(t, int16(-32767), lo)
}

func TestFloat32ToPCM16Rounds(t *testing.T) {
	// 0.00003 * 32767 = 0.98, which must round to 1, not truncate to 0.
	pcm := Float32ToPCM16([]float32{0.00003})
	v := int16(pcm[0]) | int16(pcm[1])<<8
	assert.Equal(t, int16(1), v)
}

func TestPCM16ToFloat32IgnoresOddTrailingByte(t *testing.T) {
	out := PCM16ToFloat32([]byte{0x00, 0x40, 0xFF})
	require.Len(t, out, 1)
	assert.InDelta(t, float64(0x4000)/32767.0, float64(out[0]), 1e-6)
}

func TestPCM16ToFloat32Empty(t *testing.T) {
	assert.Empty(t, PCM16ToFloat32(nil))
	assert.Empty(t, Float32ToPCM16(nil))
}

func TestRoundTripIdempotent(t *testing.T) {
	// Quantize once; further round trips must be exact.
	in := []float32{0.3, -0.7, 0.001}
	first := PCM16ToFloat32(Float32ToPCM16(in))
	second := PCM16ToFloat32(Float32ToPCM16(first))

	for i := range first {
		assert.True(t, math.Abs(float64(first[i]-second[i])) < 1e-9, "sample %d drifted", i)
	}
}
