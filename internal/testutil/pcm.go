package testutil

import "math"

// SineWavePCMS16LE generates numSamples of a mono 16-bit little-endian PCM
// sine wave at freqHz sampled at sampleRate, standing in for a real
// capture source in container/codec round-trip tests that need audio
// payload bytes shaped like real PCM rather than arbitrary filler.
func SineWavePCMS16LE(sampleRate, freqHz, numSamples int) []byte {
	buf := make([]byte, numSamples*2)
	for i := 0; i < numSamples; i++ {
		t := float64(i) / float64(sampleRate)
		sample := int16(math.Sin(2*math.Pi*float64(freqHz)*t) * 0.8 * math.MaxInt16)
		buf[2*i] = byte(sample)
		buf[2*i+1] = byte(sample >> 8)
	}
	return buf
}
