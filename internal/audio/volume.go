package audio

import (
	"encoding/binary"
	"math"
)

// ClampVolume limits a volume factor to [0, 1]
func ClampVolume(volume float64) float64 {
	if math.IsNaN(volume) || volume < 0 {
		return 0
	}
	if volume > 1 {
		return 1
	}
	return volume
}

// ScaleVolume returns a copy of data with every sample multiplied by volume.
// 8-bit PCM is unsigned and scaled around its midpoint; wider samples are signed.
func ScaleVolume(data []byte, sampleWidth int, volume float64) []byte {
	out := make([]byte, len(data))
	copy(out, data)

	volume = ClampVolume(volume)
	if volume == 1 {
		return out
	}

	switch sampleWidth {
	case 1:
		for i, b := range out {
			out[i] = byte(int(float64(int(b)-128)*volume) + 128)
		}
	case 2:
		for i := 0; i+1 < len(out); i += 2 {
			s := int16(binary.LittleEndian.Uint16(out[i:]))
			binary.LittleEndian.PutUint16(out[i:], uint16(int16(float64(s)*volume)))
		}
	case 3:
		for i := 0; i+2 < len(out); i += 3 {
			s := int32(out[i]) | int32(out[i+1])<<8 | int32(int8(out[i+2]))<<16
			s = int32(float64(s) * volume)
			out[i], out[i+1], out[i+2] = byte(s), byte(s>>8), byte(s>>16)
		}
	case 4:
		for i := 0; i+3 < len(out); i += 4 {
			s := int32(binary.LittleEndian.Uint32(out[i:]))
			binary.LittleEndian.PutUint32(out[i:], uint32(int32(float64(s)*volume)))
		}
	}

	return out
}
