// Package wav frames raw PCM fragments in a minimal RIFF/WAVE container and
// parses such containers back into PCM.
//
// Fragments arrive on the stream as base64 text. [DecodeFragment] turns that
// text into raw bytes, [BuildContainer] prepends the canonical 44-byte header
// describing mono 16-bit PCM, and [Parse] is the inverse used by the
// playback decoder. BuildContainer is pure: identical inputs always yield
// identical bytes.
package wav

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/earshot/pkg/audio"
)

// HeaderSize is the size of the canonical PCM WAVE header.
const HeaderSize = 44

const (
	fmtChunkSize = 16
	formatPCM    = 1
	numChannels  = audio.FragmentChannels
	bitsPerSamp  = audio.BitsPerSample
	blockAlign   = numChannels * bitsPerSamp / 8
)

var (
	// ErrEmptyFragment is returned by [DecodeFragment] when the payload is
	// empty or decodes to zero bytes.
	ErrEmptyFragment = errors.New("wav: empty fragment")

	// ErrInvalidContainer is returned by [Parse] for data that is not a
	// mono 16-bit PCM WAVE container.
	ErrInvalidContainer = errors.New("wav: invalid container")
)

// DecodeFragment decodes a base64 (standard alphabet, padded) audio payload.
func DecodeFragment(b64 string) ([]byte, error) {
	if b64 == "" {
		return nil, ErrEmptyFragment
	}
	pcm, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("wav: decode fragment: %w", err)
	}
	if len(pcm) == 0 {
		return nil, ErrEmptyFragment
	}
	return pcm, nil
}

// BuildContainer returns a WAVE file consisting of a 44-byte header for
// mono 16-bit PCM at sampleRate followed by pcm. The payload is copied.
func BuildContainer(pcm []byte, sampleRate int) []byte {
	dataSize := uint32(len(pcm))
	buf := make([]byte, HeaderSize+len(pcm))

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], 36+dataSize)
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], fmtChunkSize)
	binary.LittleEndian.PutUint16(buf[20:22], formatPCM)
	binary.LittleEndian.PutUint16(buf[22:24], numChannels)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate)*blockAlign)
	binary.LittleEndian.PutUint16(buf[32:34], blockAlign)
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSamp)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], dataSize)
	copy(buf[HeaderSize:], pcm)

	return buf
}

// Info is the header metadata of a parsed container.
type Info struct {
	SampleRate    uint32 `json:"sample_rate"`
	Channels      uint16 `json:"channels"`
	BitsPerSample uint16 `json:"bits_per_sample"`
	ByteRate      uint32 `json:"byte_rate"`
	BlockAlign    uint16 `json:"block_align"`
	DataSize      uint32 `json:"data_size_bytes"`
}

// Duration returns the playback length described by the header.
func (i Info) Duration() time.Duration {
	if i.ByteRate == 0 {
		return 0
	}
	return time.Duration(i.DataSize) * time.Second / time.Duration(i.ByteRate)
}

// Parse validates a canonical 44-byte-header container and returns its
// metadata and a slice of data aliasing the PCM payload. The declared data
// size must not exceed the bytes present; trailing bytes beyond it are
// ignored.
func Parse(data []byte) (Info, []byte, error) {
	if len(data) < HeaderSize {
		return Info{}, nil, fmt.Errorf("%w: need at least %d bytes, got %d", ErrInvalidContainer, HeaderSize, len(data))
	}
	switch {
	case string(data[0:4]) != "RIFF":
		return Info{}, nil, fmt.Errorf("%w: missing RIFF header", ErrInvalidContainer)
	case string(data[8:12]) != "WAVE":
		return Info{}, nil, fmt.Errorf("%w: missing WAVE format", ErrInvalidContainer)
	case string(data[12:16]) != "fmt ":
		return Info{}, nil, fmt.Errorf("%w: missing fmt chunk", ErrInvalidContainer)
	case string(data[36:40]) != "data":
		return Info{}, nil, fmt.Errorf("%w: missing data chunk", ErrInvalidContainer)
	}

	if f := binary.LittleEndian.Uint16(data[20:22]); f != formatPCM {
		return Info{}, nil, fmt.Errorf("%w: unsupported audio format %d", ErrInvalidContainer, f)
	}

	info := Info{
		Channels:      binary.LittleEndian.Uint16(data[22:24]),
		SampleRate:    binary.LittleEndian.Uint32(data[24:28]),
		ByteRate:      binary.LittleEndian.Uint32(data[28:32]),
		BlockAlign:    binary.LittleEndian.Uint16(data[32:34]),
		BitsPerSample: binary.LittleEndian.Uint16(data[34:36]),
		DataSize:      binary.LittleEndian.Uint32(data[40:44]),
	}
	if info.BitsPerSample != bitsPerSamp {
		return Info{}, nil, fmt.Errorf("%w: unsupported bit depth %d", ErrInvalidContainer, info.BitsPerSample)
	}
	if info.Channels != numChannels {
		return Info{}, nil, fmt.Errorf("%w: unsupported channel count %d", ErrInvalidContainer, info.Channels)
	}
	if info.SampleRate == 0 {
		return Info{}, nil, fmt.Errorf("%w: zero sample rate", ErrInvalidContainer)
	}
	if uint64(info.DataSize) > uint64(len(data)-HeaderSize) {
		return Info{}, nil, fmt.Errorf("%w: data chunk declares %d bytes, only %d present",
			ErrInvalidContainer, info.DataSize, len(data)-HeaderSize)
	}

	return info, data[HeaderSize : HeaderSize+int(info.DataSize)], nil
}

// Duration returns the playback length of pcmLen bytes of mono 16-bit PCM
// at sampleRate.
func Duration(pcmLen, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	frames := pcmLen / blockAlign
	return time.Duration(frames) * time.Second / time.Duration(sampleRate)
}
