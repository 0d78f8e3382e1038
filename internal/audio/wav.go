// Package audio inspects captured WAV audio before it is sent for
// transcription.
package audio

import (
	"encoding/binary"
	"errors"
)

var (
	ErrUnsupportedWAV = errors.New("unsupported wav format")
	ErrInvalidWAV     = errors.New("invalid wav file")
)

const (
	formatPCM   = 1
	formatFloat = 3
)

// wavFormat is the part of the fmt chunk the analysis needs.
type wavFormat struct {
	encoding      uint16
	bitsPerSample uint16
}

func (f wavFormat) bytesPerSample() int {
	return int(f.bitsPerSample / 8)
}

func (f wavFormat) validate() error {
	switch {
	case f.encoding == formatPCM && (f.bitsPerSample == 8 || f.bitsPerSample == 16 || f.bitsPerSample == 24 || f.bitsPerSample == 32):
		return nil
	case f.encoding == formatFloat && (f.bitsPerSample == 32 || f.bitsPerSample == 64):
		return nil
	default:
		return ErrUnsupportedWAV
	}
}

// parseWAV walks the RIFF chunks of data and returns the sample format and
// the samples of the data chunk. A data chunk that claims more bytes than
// present is truncated to what was captured.
func parseWAV(data []byte) (wavFormat, []byte, error) {
	if len(data) < 12 || string(data[:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return wavFormat{}, nil, ErrInvalidWAV
	}

	var (
		format  wavFormat
		samples []byte
		hasFmt  bool
		hasData bool
	)

	for offset := 12; offset+8 <= len(data); {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		end := body + size
		if end > len(data) || end < body {
			end = len(data)
		}

		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(data) {
				return wavFormat{}, nil, ErrInvalidWAV
			}
			format.encoding = binary.LittleEndian.Uint16(data[body : body+2])
			format.bitsPerSample = binary.LittleEndian.Uint16(data[body+14 : body+16])
			hasFmt = true
		case "data":
			samples = data[body:end]
			hasData = true
		}

		offset = body + size + size%2
		if offset < body {
			break
		}
	}

	if !hasFmt || !hasData {
		return wavFormat{}, nil, ErrInvalidWAV
	}
	if err := format.validate(); err != nil {
		return wavFormat{}, nil, err
	}
	return format, samples, nil
}
