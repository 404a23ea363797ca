// Package audio describes the raw PCM format produced by capture devices and
// converts it to and from WAV containers.
package audio

import (
	"encoding/binary"
	"fmt"
	"mime"
	"strconv"
	"strings"
)

// MediaTypeL16 is 16-bit signed little-endian PCM as emitted by capture devices.
const MediaTypeL16 = "audio/L16"

// Format is the shape of interleaved 16-bit PCM.
type Format struct {
	SampleRate int
	Channels   int
}

// MIMEType renders f as audio/L16 with rate and channel parameters.
func (f Format) MIMEType() string {
	return fmt.Sprintf("%s;rate=%d;channels=%d", MediaTypeL16, f.SampleRate, f.Channels)
}

// BytesPerSecond is the PCM data rate for f.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * 2
}

// ParseL16 extracts the Format from an audio/L16 MIME type.
func ParseL16(mimeType string) (Format, bool) {
	mediaType, params, err := mime.ParseMediaType(mimeType)
	if err != nil || !strings.EqualFold(mediaType, MediaTypeL16) {
		return Format{}, false
	}

	rate, err := strconv.Atoi(params["rate"])
	if err != nil || rate <= 0 {
		return Format{}, false
	}

	channels := 1
	if c, ok := params["channels"]; ok {
		channels, err = strconv.Atoi(c)
		if err != nil || channels <= 0 {
			return Format{}, false
		}
	}

	return Format{SampleRate: rate, Channels: channels}, true
}

// BaseType returns the lowercased media type without parameters.
func BaseType(mimeType string) string {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0]))
	}
	return mediaType
}

// Extension maps a MIME type to the file extension providers expect.
func Extension(mimeType string) string {
	switch BaseType(mimeType) {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/ogg", "audio/opus":
		return ".ogg"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return ".m4a"
	case "audio/flac":
		return ".flac"
	case "audio/l16":
		return ".pcm"
	default:
		return ".webm"
	}
}

// PCM16Bytes packs samples into little-endian 16-bit PCM.
func PCM16Bytes(samples []int) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(s)))
	}
	return out
}

// PCM16Samples unpacks little-endian 16-bit PCM. A trailing odd byte is dropped.
func PCM16Samples(data []byte) []int {
	samples := make([]int, len(data)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(data[i*2:])))
	}
	return samples
}
