package audio

import (
	"encoding/binary"
	"math"
)

// PCM16ToFloat32 decodes little-endian signed 16-bit PCM into float samples
// scaled by 1/32767. A trailing odd byte is ignored.
func PCM16ToFloat32(data []byte) []float32 {
	samples := make([]float32, 0, len(data)/2)
	for i := 0; i+1 < len(data); i += 2 {
		s := int16(binary.LittleEndian.Uint16(data[i : i+2]))
		samples = append(samples, float32(s)/32767.0)
	}
	return samples
}

// Float32ToPCM16 encodes float samples as little-endian signed 16-bit PCM.
// Samples are clamped to [-1, 1] before scaling so out-of-range input can
// never wrap around the 16-bit range.
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		v := int16(math.Round(float64(s) * 32767.0))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}
