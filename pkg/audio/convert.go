package audio

import "log/slog"

// Convert returns c re-encoded in target. Resampling happens before channel
// mapping so stereo input headed for mono is never resampled twice. If c
// already matches target, or target is invalid, c is returned as is.
//
// Only mono↔stereo channel mapping is supported; other layouts keep their
// channel count.
func Convert(c *Clip, target Format) *Clip {
	if c == nil || !target.Valid() || c.Format == target {
		return c
	}
	if len(c.PCM)%2 != 0 {
		slog.Warn("audio: odd byte count in PCM, dropping trailing byte",
			"bytes", len(c.PCM),
			"format", c.Format.String(),
		)
	}

	pcm := c.PCM[:len(c.PCM)&^1]
	cur := c.Format
	if cur.SampleRate != target.SampleRate {
		pcm = Resample16(pcm, cur.Channels, cur.SampleRate, target.SampleRate)
		cur.SampleRate = target.SampleRate
	}
	switch {
	case cur.Channels == 1 && target.Channels == 2:
		pcm = MonoToStereo(pcm)
		cur.Channels = 2
	case cur.Channels == 2 && target.Channels == 1:
		pcm = StereoToMono(pcm)
		cur.Channels = 1
	}
	return &Clip{Text: c.Text, PCM: pcm, Format: cur}
}

// MonoToStereo duplicates each mono sample into an L/R pair.
func MonoToStereo(pcm []byte) []byte {
	out := make([]byte, (len(pcm)/2)*4)
	for i := 0; i+1 < len(pcm); i += 2 {
		j := i * 2
		out[j], out[j+1] = pcm[i], pcm[i+1]
		out[j+2], out[j+3] = pcm[i], pcm[i+1]
	}
	return out
}

// StereoToMono averages each L/R pair.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		l := int32(sample(pcm, i*2))
		r := int32(sample(pcm, i*2+1))
		putSample(out, i, int16((l+r)/2))
	}
	return out
}

// Resample16 converts interleaved PCM with the given channel count from
// srcRate to dstRate by linear interpolation. Input is returned unchanged
// when the rates match or either is non-positive.
func Resample16(pcm []byte, channels, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || channels <= 0 || srcRate == dstRate {
		return pcm
	}
	srcFrames := len(pcm) / (2 * channels)
	if srcFrames == 0 {
		return pcm
	}
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	out := make([]byte, dstFrames*2*channels)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstFrames {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)
		next := min(idx+1, srcFrames-1)
		for ch := range channels {
			s0 := float64(sample(pcm, idx*channels+ch))
			s1 := float64(sample(pcm, next*channels+ch))
			putSample(out, i*channels+ch, int16(s0*(1-frac)+s1*frac))
		}
	}
	return out
}

func sample(pcm []byte, i int) int16 {
	return int16(pcm[2*i]) | int16(pcm[2*i+1])<<8
}

func putSample(pcm []byte, i int, s int16) {
	pcm[2*i] = byte(s)
	pcm[2*i+1] = byte(s >> 8)
}
