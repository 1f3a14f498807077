package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const wavHeaderSize = 44

// EncodeWAV wraps the clip's PCM in a canonical 44-byte RIFF/WAVE header.
func EncodeWAV(c *Clip) []byte {
	dataLen := len(c.PCM)
	out := make([]byte, wavHeaderSize+dataLen)
	le := binary.LittleEndian

	copy(out[0:4], "RIFF")
	le.PutUint32(out[4:8], uint32(36+dataLen))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	le.PutUint32(out[16:20], 16)
	le.PutUint16(out[20:22], 1) // PCM
	le.PutUint16(out[22:24], uint16(c.Format.Channels))
	le.PutUint32(out[24:28], uint32(c.Format.SampleRate))
	le.PutUint32(out[28:32], uint32(c.Format.BytesPerSecond()))
	le.PutUint16(out[32:34], uint16(c.Format.Channels*2))
	le.PutUint16(out[34:36], 16)
	copy(out[36:40], "data")
	le.PutUint32(out[40:44], uint32(dataLen))
	copy(out[44:], c.PCM)
	return out
}

// DecodeWAV walks the RIFF chunks of a 16-bit PCM WAV file and returns its
// samples as a clip. Unknown chunks (LIST, fact, ...) are skipped. A data
// chunk whose declared size overruns the buffer, as written by streaming
// encoders, is truncated to what is present.
func DecodeWAV(wav []byte) (*Clip, error) {
	if len(wav) < 12 {
		return nil, errors.New("audio: WAV too short to be a RIFF file")
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return nil, errors.New("audio: not a RIFF/WAVE file")
	}

	var (
		f      Format
		bits   = 16
		hasFmt bool
	)
	for off := 12; off+8 <= len(wav); {
		id := string(wav[off : off+4])
		size := int(binary.LittleEndian.Uint32(wav[off+4 : off+8]))
		body := off + 8

		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(wav) {
				return nil, errors.New("audio: truncated fmt chunk")
			}
			if tag := binary.LittleEndian.Uint16(wav[body : body+2]); tag != 1 && tag != 0xFFFE {
				return nil, fmt.Errorf("audio: unsupported WAV encoding %d", tag)
			}
			f.Channels = int(binary.LittleEndian.Uint16(wav[body+2 : body+4]))
			f.SampleRate = int(binary.LittleEndian.Uint32(wav[body+4 : body+8]))
			bits = int(binary.LittleEndian.Uint16(wav[body+14 : body+16]))
			hasFmt = true
		case "data":
			if !hasFmt {
				return nil, errors.New("audio: data chunk before fmt chunk")
			}
			if bits != 16 {
				return nil, fmt.Errorf("audio: unsupported bit depth %d", bits)
			}
			end := min(body+size, len(wav))
			pcm := make([]byte, end-body)
			copy(pcm, wav[body:end])
			return &Clip{PCM: pcm, Format: f}, nil
		}

		// Chunks are word aligned.
		off = body + size + size%2
	}
	return nil, errors.New("audio: WAV missing data chunk")
}
