package audio

import "math"

// Headroom returns the gap below 0 dBFS kept when peak normalizing to
// targetDBFS: |targetDBFS|, or 0 for positive targets.
func Headroom(targetDBFS float64) float64 {
	if targetDBFS > 0 {
		return 0
	}
	return math.Abs(targetDBFS)
}

// NormalizePeak scales w so its loudest sample lands at -Headroom(targetDBFS)
// dBFS. Pure silence is returned unchanged. Samples are clipped to [-1, 1].
func NormalizePeak(w *Waveform, targetDBFS float64) *Waveform {
	peak := w.Peak()
	if peak == 0 {
		return w
	}
	gain := DBToRatio(-Headroom(targetDBFS)) / peak

	data := make([]float32, len(w.Data))
	for i, v := range w.Data {
		s := float64(v) * gain
		data[i] = float32(math.Max(-1, math.Min(1, s)))
	}
	return &Waveform{SampleRate: w.SampleRate, Channels: w.Channels, Data: data}
}
