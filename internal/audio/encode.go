package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Encoder turns the final mix into a downloadable file.
type Encoder interface {
	Encode(ctx context.Context, clip *Clip) ([]byte, error)
	ContentType() string
	Extension() string
}

// WAVEncoder writes an uncompressed PCM16 mono WAV file.
type WAVEncoder struct{}

func (WAVEncoder) ContentType() string { return "audio/wav" }
func (WAVEncoder) Extension() string   { return "wav" }

func (WAVEncoder) Encode(_ context.Context, clip *Clip) ([]byte, error) {
	return EncodeWAV(clip), nil
}

// EncodeWAV wraps the clip's PCM in a 44-byte RIFF header.
func EncodeWAV(clip *Clip) []byte {
	const (
		channels       = 1
		bytesPerSample = 2
	)
	dataLen := len(clip.samples) * bytesPerSample

	buf := &bytes.Buffer{}
	buf.Grow(44 + dataLen)

	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(buf, binary.LittleEndian, uint32(clip.rate))
	_ = binary.Write(buf, binary.LittleEndian, uint32(clip.rate*channels*bytesPerSample))
	_ = binary.Write(buf, binary.LittleEndian, uint16(channels*bytesPerSample))
	_ = binary.Write(buf, binary.LittleEndian, uint16(bytesPerSample*8))

	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, uint32(dataLen))
	buf.Write(pcmBytes(clip.samples))

	return buf.Bytes()
}

func pcmBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// MP3Encoder pipes raw PCM through ffmpeg's libmp3lame.
type MP3Encoder struct {
	FFmpegPath string
	Bitrate    string
}

func (MP3Encoder) ContentType() string { return "audio/mpeg" }
func (MP3Encoder) Extension() string   { return "mp3" }

func (e MP3Encoder) Encode(ctx context.Context, clip *Clip) ([]byte, error) {
	bitrate := e.Bitrate
	if bitrate == "" {
		bitrate = "128k"
	}

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "s16le", "-ar", strconv.Itoa(clip.rate), "-ac", "1", "-i", "pipe:0",
		"-c:a", "libmp3lame", "-b:a", bitrate,
		"-f", "mp3", "pipe:1",
	}

	cmd := exec.CommandContext(ctx, e.FFmpegPath, args...)
	cmd.Stdin = bytes.NewReader(pcmBytes(clip.samples))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg mp3 encode: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg mp3 encode produced no output")
	}
	return stdout.Bytes(), nil
}

// NewEncoder picks the encoder for format. When mp3 is requested but ffmpeg
// is not on the path, it falls back to WAV and reports ok=false so the
// caller can log the downgrade.
func NewEncoder(format, ffmpegPath, bitrate string) (enc Encoder, ok bool) {
	if format != "mp3" {
		return WAVEncoder{}, true
	}
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	path, err := exec.LookPath(ffmpegPath)
	if err != nil {
		return WAVEncoder{}, false
	}
	return MP3Encoder{FFmpegPath: path, Bitrate: bitrate}, true
}
