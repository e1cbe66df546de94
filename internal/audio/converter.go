package audio

import (
	"encoding/binary"
	"math"
)

// PCMURate is the sample rate of G.711 cues sent over the wire
const PCMURate = 8000

// EncodePCMU resamples 16-bit samples from inputRate to PCMURate and encodes them as G.711 μ-law
func EncodePCMU(samples []int16, inputRate int) []byte {
	samples = resample(samples, inputRate, PCMURate)

	out := make([]byte, len(samples))
	for i, sample := range samples {
		out[i] = linearToMulaw(sample)
	}
	return out
}

// resample performs simple linear interpolation resampling
func resample(samples []int16, inputRate, outputRate int) []int16 {
	if inputRate == outputRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(outputRate) / float64(inputRate)
	outputLength := len(samples) * outputRate / inputRate
	output := make([]int16, outputLength)

	for i := 0; i < outputLength; i++ {
		srcPos := float64(i) / ratio

		idx0 := int(srcPos)
		if idx0 >= len(samples) {
			idx0 = len(samples) - 1
		}
		idx1 := idx0 + 1
		if idx1 >= len(samples) {
			idx1 = len(samples) - 1
		}

		fraction := srcPos - float64(idx0)
		output[i] = int16(float64(samples[idx0])*(1.0-fraction) + float64(samples[idx1])*fraction)
	}

	return output
}

// linearToMulaw converts a 16-bit linear PCM sample to 8-bit μ-law.
// G.711 operates on 14-bit magnitudes, so the two low bits are dropped first.
func linearToMulaw(sample int16) byte {
	const (
		clip = 8158 // Maximum 14-bit magnitude before bias
		bias = 0x21
	)

	var sign byte
	magnitude := int32(sample)
	if magnitude < 0 {
		sign = 0x80
		magnitude = -magnitude
	}
	magnitude >>= 2

	if magnitude > clip {
		magnitude = clip
	}
	magnitude += bias

	// Segment is the position of the highest set bit above 0x20
	var segment byte
	for temp := magnitude >> 6; temp > 0 && segment < 7; temp >>= 1 {
		segment++
	}

	mantissa := byte((magnitude >> (segment + 1)) & 0x0F)

	return ^(sign | (segment << 4) | mantissa)
}

// ToPCM16Mono converts interleaved PCM of any supported format to 16-bit mono samples,
// averaging stereo channels.
func ToPCM16Mono(data []byte, f Format) []int16 {
	frameSize := f.FrameSize()
	if frameSize == 0 {
		return nil
	}

	frames := len(data) / frameSize
	out := make([]int16, frames)

	for i := 0; i < frames; i++ {
		var sum int32
		for ch := 0; ch < f.Channels; ch++ {
			off := i*frameSize + ch*f.SampleWidth
			sum += int32(sampleToPCM16(data[off:off+f.SampleWidth], f.SampleWidth))
		}
		out[i] = int16(sum / int32(f.Channels))
	}

	return out
}

func sampleToPCM16(b []byte, width int) int16 {
	switch width {
	case 1:
		return int16(int(b[0])-128) << 8
	case 2:
		return int16(binary.LittleEndian.Uint16(b))
	case 3:
		return int16(b[1]) | int16(int8(b[2]))<<8
	case 4:
		return int16(binary.LittleEndian.Uint32(b) >> 16)
	}
	return 0
}

// PCM16Bytes serializes samples as little-endian 16-bit PCM
func PCM16Bytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// CalculateRMS calculates the root mean square (RMS) of audio samples
func CalculateRMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, sample := range samples {
		sum += float64(sample) * float64(sample)
	}

	return math.Sqrt(sum / float64(len(samples)))
}
