package model

// FFProbeStream is one entry of ffprobe's streams array
type FFProbeStream struct {
	CodecType  string `json:"codec_type"`
	CodecName  string `json:"codec_name"`
	SampleRate int    `json:"sample_rate,string"`
	Channels   int    `json:"channels"`
}

// FFProbeOutput is the subset of `ffprobe -print_format json` output the
// audio prober reads.
type FFProbeOutput struct {
	Streams []FFProbeStream `json:"streams"`
	Format  struct {
		Duration   float64 `json:"duration,string"`
		FormatName string  `json:"format_name"`
	} `json:"format"`
}

// HasAudio reports whether the probe found at least one audio stream
func (p FFProbeOutput) HasAudio() bool {
	for _, s := range p.Streams {
		if s.CodecType == "audio" {
			return true
		}
	}
	return false
}
