package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	pcmFormatTag  = 1
	bitsPerSample = 16
	wavHeaderSize = 44
)

var ErrNotWAV = errors.New("not a PCM16 wav payload")

// wavHeader mirrors the canonical 44-byte RIFF/WAVE header for PCM data.
type wavHeader struct {
	RIFF          [4]byte
	ChunkSize     uint32
	WAVE          [4]byte
	FmtID         [4]byte
	FmtSize       uint32
	FormatTag     uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	DataID        [4]byte
	DataSize      uint32
}

// EncodeWAV wraps raw PCM16LE mono samples captured from the recorder in a
// WAV container so the voice backend can sniff the format.
func EncodeWAV(pcm []byte, sampleRate int) []byte {
	var buf bytes.Buffer
	buf.Grow(wavHeaderSize + len(pcm))
	// bytes.Buffer writes never fail.
	_ = WriteWAV(&buf, pcm, sampleRate)
	return buf.Bytes()
}

// WriteWAV streams the header followed by pcm to out.
func WriteWAV(out io.Writer, pcm []byte, sampleRate int) error {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	const channels = 1
	h := wavHeader{
		RIFF:          [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     uint32(36 + len(pcm)),
		WAVE:          [4]byte{'W', 'A', 'V', 'E'},
		FmtID:         [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		FormatTag:     pcmFormatTag,
		Channels:      channels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * channels * bitsPerSample / 8),
		BlockAlign:    channels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		DataID:        [4]byte{'d', 'a', 't', 'a'},
		DataSize:      uint32(len(pcm)),
	}
	if err := binary.Write(out, binary.LittleEndian, h); err != nil {
		return fmt.Errorf("write wav header: %w", err)
	}
	if _, err := out.Write(pcm); err != nil {
		return fmt.Errorf("write wav data: %w", err)
	}
	return nil
}

// DecodeWAV extracts mono PCM16LE samples and the sample rate. Stereo input
// is downmixed by averaging channels. Chunks other than fmt and data are
// skipped.
func DecodeWAV(data []byte) ([]byte, int, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, ErrNotWAV
	}
	var (
		channels   uint16
		sampleRate uint32
		bits       uint16
		haveFmt    bool
	)
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if size < 0 || body+size > len(data) {
			return nil, 0, fmt.Errorf("%w: truncated %q chunk", ErrNotWAV, id)
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, fmt.Errorf("%w: short fmt chunk", ErrNotWAV)
			}
			if tag := binary.LittleEndian.Uint16(data[body : body+2]); tag != pcmFormatTag {
				return nil, 0, fmt.Errorf("%w: format tag %d", ErrNotWAV, tag)
			}
			channels = binary.LittleEndian.Uint16(data[body+2 : body+4])
			sampleRate = binary.LittleEndian.Uint32(data[body+4 : body+8])
			bits = binary.LittleEndian.Uint16(data[body+14 : body+16])
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, 0, fmt.Errorf("%w: data before fmt", ErrNotWAV)
			}
			if bits != bitsPerSample || channels == 0 || channels > 2 {
				return nil, 0, fmt.Errorf("%w: %d-bit %d-channel", ErrNotWAV, bits, channels)
			}
			pcm := data[body : body+size]
			if channels == 1 {
				return append([]byte(nil), pcm...), int(sampleRate), nil
			}
			return downmixStereo(pcm), int(sampleRate), nil
		}
		// Chunks are word aligned.
		off = body + size + size%2
	}
	return nil, 0, fmt.Errorf("%w: no data chunk", ErrNotWAV)
}

func downmixStereo(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := 0; i < frames; i++ {
		l := int32(int16(binary.LittleEndian.Uint16(pcm[i*4:])))
		r := int32(int16(binary.LittleEndian.Uint16(pcm[i*4+2:])))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16((l+r)/2)))
	}
	return out
}
