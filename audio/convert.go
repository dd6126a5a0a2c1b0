package audio

// Float32 converts 16-bit PCM samples to normalized float32 samples in
// [-1, 1], the format Whisper inference expects.
func Float32(pcm []int16) []float32 {
	out := make([]float32, len(pcm))
	for i, s := range pcm {
		out[i] = float32(s) / 32768.0
	}
	return out
}
