package audio

import "bytes"

// Content types reported by Sniff.
const (
	TypeWAV     = "audio/wav"
	TypeMPEG    = "audio/mpeg"
	TypeWebM    = "audio/webm"
	TypeOgg     = "audio/ogg"
	TypeUnknown = "application/octet-stream"
)

var webmMagic = []byte{0x1A, 0x45, 0xDF, 0xA3}

// Sniff guesses the container of an audio payload from its leading bytes.
// The voice backend replies with MP3 today but nothing in the protocol
// promises that.
func Sniff(data []byte) string {
	switch {
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return TypeWAV
	case bytes.HasPrefix(data, []byte("ID3")):
		return TypeMPEG
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		// MPEG frame sync.
		return TypeMPEG
	case bytes.HasPrefix(data, webmMagic):
		return TypeWebM
	case bytes.HasPrefix(data, []byte("OggS")):
		return TypeOgg
	default:
		return TypeUnknown
	}
}
