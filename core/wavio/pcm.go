package wavio

import (
	"encoding/binary"
	"fmt"
)

// Sample values travel through the system as int, centred on zero at every
// depth. 16/24/32-bit PCM is signed little-endian as stored; 8-bit WAV is
// unsigned on disk and shifted by 128 here so that 0 always means silence.

// MaxSampleValue returns the largest representable sample for a bit depth.
func MaxSampleValue(bits int) int {
	return (1 << (bits - 1)) - 1
}

// MinSampleValue returns the smallest representable sample for a bit depth.
func MinSampleValue(bits int) int {
	return -(1 << (bits - 1))
}

func clampSample(v, bits int) int {
	if max := MaxSampleValue(bits); v > max {
		return max
	}
	if min := MinSampleValue(bits); v < min {
		return min
	}
	return v
}

func decodeSamples(raw []byte, bits int) ([]int, error) {
	width := bits / 8
	if width == 0 || len(raw)%width != 0 {
		return nil, fmt.Errorf("%w: %d bits over %d bytes", ErrUnsupportedBitDepth, bits, len(raw))
	}
	out := make([]int, len(raw)/width)
	switch bits {
	case 8:
		for i, b := range raw {
			out[i] = int(b) - 128
		}
	case 16:
		for i := range out {
			out[i] = int(int16(binary.LittleEndian.Uint16(raw[i*2:])))
		}
	case 24:
		for i := range out {
			u := uint32(raw[i*3]) | uint32(raw[i*3+1])<<8 | uint32(raw[i*3+2])<<16
			if u&0x800000 != 0 {
				u |= 0xFF000000
			}
			out[i] = int(int32(u))
		}
	case 32:
		for i := range out {
			out[i] = int(int32(binary.LittleEndian.Uint32(raw[i*4:])))
		}
	default:
		return nil, fmt.Errorf("%w: %d bits", ErrUnsupportedBitDepth, bits)
	}
	return out, nil
}

func encodeSamples(samples []int, bits int) ([]byte, error) {
	width := bits / 8
	out := make([]byte, len(samples)*width)
	switch bits {
	case 8:
		for i, v := range samples {
			out[i] = byte(clampSample(v, 8) + 128)
		}
	case 16:
		for i, v := range samples {
			binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(clampSample(v, 16))))
		}
	case 24:
		for i, v := range samples {
			u := uint32(int32(clampSample(v, 24)))
			out[i*3] = byte(u)
			out[i*3+1] = byte(u >> 8)
			out[i*3+2] = byte(u >> 16)
		}
	case 32:
		for i, v := range samples {
			binary.LittleEndian.PutUint32(out[i*4:], uint32(int32(clampSample(v, 32))))
		}
	default:
		return nil, fmt.Errorf("%w: %d bits", ErrUnsupportedBitDepth, bits)
	}
	return out, nil
}
