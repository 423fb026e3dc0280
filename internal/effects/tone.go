// Package effects produces the audible and haptic side of notifications.
//
// Tones are synthesized as small WAV clips and handed to whatever playback
// binary the host has. Vibration drives a haptic device node when one is
// configured, which on desktops usually means it is absent and Available
// reports false.
package effects

import (
	"encoding/binary"
	"math"
	"time"
)

const (
	sampleRate = 44100
	fadeLen    = sampleRate / 200 // 5ms ramp against clicks
)

// Synthesize renders a mono 16-bit sine tone as a complete WAV clip.
func Synthesize(freqHz float64, d time.Duration) []byte {
	if freqHz <= 0 || d <= 0 {
		return nil
	}
	samples := int(float64(sampleRate) * d.Seconds())
	if samples <= 0 {
		return nil
	}

	dataLen := samples * 2
	buf := make([]byte, 44+dataLen)

	// RIFF header.
	copy(buf[0:], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:], uint32(36+dataLen))
	copy(buf[8:], "WAVE")
	copy(buf[12:], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:], 16)
	binary.LittleEndian.PutUint16(buf[20:], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:], sampleRate)
	binary.LittleEndian.PutUint32(buf[28:], sampleRate*2)
	binary.LittleEndian.PutUint16(buf[32:], 2)
	binary.LittleEndian.PutUint16(buf[34:], 16)
	copy(buf[36:], "data")
	binary.LittleEndian.PutUint32(buf[40:], uint32(dataLen))

	step := 2 * math.Pi * freqHz / sampleRate
	for i := 0; i < samples; i++ {
		v := math.Sin(step * float64(i))

		// Linear fade at both ends.
		if i < fadeLen {
			v *= float64(i) / fadeLen
		}
		if tail := samples - 1 - i; tail < fadeLen {
			v *= float64(tail) / fadeLen
		}

		s := int16(v * 0.6 * math.MaxInt16)
		binary.LittleEndian.PutUint16(buf[44+i*2:], uint16(s))
	}
	return buf
}
