package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/hajimehoshi/go-mp3"
)

// ErrUnsupportedFormat is returned for payloads that are neither WAV nor MP3.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Decode turns an encoded payload (WAV or MP3) into a mono clip resampled
// to rate.
func Decode(data []byte, rate int) (*Clip, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("decode: empty payload")
	}

	if isWAV(data) {
		return decodeWAV(data, rate)
	}
	if looksLikeMP3(data) {
		return decodeMP3(data, rate)
	}
	return nil, ErrUnsupportedFormat
}

// LoadFile reads and decodes an audio file from disk. A missing file comes
// back as an error satisfying errors.Is(err, os.ErrNotExist).
func LoadFile(path string, rate int) (*Clip, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	clip, err := Decode(data, rate)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return clip, nil
}

func isWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

// looksLikeMP3 accepts an ID3 tag or an MPEG frame sync at offset zero.
func looksLikeMP3(data []byte) bool {
	if len(data) >= 3 && string(data[0:3]) == "ID3" {
		return true
	}
	return len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0
}

func decodeMP3(data []byte, rate int) (*Clip, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("mp3 decoder: %w", err)
	}
	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("mp3 decode: %w", err)
	}

	// go-mp3 always yields interleaved stereo 16-bit little endian.
	samples := bytesToInt16(raw)
	mono := toMono(samples, 2)
	return wrap(resampleLinear(mono, dec.SampleRate(), rate), rate), nil
}

func decodeWAV(data []byte, rate int) (*Clip, error) {
	var (
		format     uint16
		channels   int
		sampleRate int
		bits       int
		pcm        []byte
	)

	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		end := body + size
		if end > len(data) {
			// Streamed WAVs sometimes carry a bogus data size.
			end = len(data)
		}

		switch id {
		case "fmt ":
			if end-body < 16 {
				return nil, fmt.Errorf("wav: short fmt chunk")
			}
			format = binary.LittleEndian.Uint16(data[body : body+2])
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bits = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
		case "data":
			pcm = data[body:end]
		}

		pos = end + size%2
	}

	if format != 1 || bits != 16 {
		return nil, fmt.Errorf("wav: only PCM16 is supported (format=%d bits=%d)", format, bits)
	}
	if channels < 1 || sampleRate <= 0 {
		return nil, fmt.Errorf("wav: invalid header (channels=%d rate=%d)", channels, sampleRate)
	}

	mono := toMono(bytesToInt16(pcm), channels)
	return wrap(resampleLinear(mono, sampleRate, rate), rate), nil
}

func bytesToInt16(raw []byte) []int16 {
	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[i*2 : i*2+2]))
	}
	return samples
}

func toMono(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	mono := make([]int16, frames)
	for i := 0; i < frames; i++ {
		sum := 0
		for ch := 0; ch < channels; ch++ {
			sum += int(samples[i*channels+ch])
		}
		mono[i] = int16(sum / channels)
	}
	return mono
}

func resampleLinear(in []int16, inRate, outRate int) []int16 {
	if inRate == outRate || len(in) == 0 {
		return in
	}
	ratio := float64(outRate) / float64(inRate)
	outLen := int(math.Round(float64(len(in)) * ratio))
	if outLen <= 1 {
		return []int16{}
	}
	out := make([]int16, outLen)
	for i := 0; i < outLen; i++ {
		srcPos := float64(i) / ratio
		i0 := int(math.Floor(srcPos))
		if i0 >= len(in) {
			i0 = len(in) - 1
		}
		i1 := i0 + 1
		if i1 >= len(in) {
			i1 = len(in) - 1
		}
		f := srcPos - float64(i0)
		out[i] = clamp(float64(in[i0])*(1.0-f) + float64(in[i1])*f)
	}
	return out
}
