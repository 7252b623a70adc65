package capture

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrBadWAV is wrapped by [OpenWAV] when the file is not a readable
// 16-bit PCM WAV.
var ErrBadWAV = errors.New("capture: bad wav file")

// WAVReader streams 16-bit PCM samples from a WAV file. Multi-channel files
// are downmixed to mono by taking the first channel.
type WAVReader struct {
	file       *os.File
	SampleRate int
	Channels   int

	remaining int // bytes of sample data left
}

// OpenWAV opens a WAV file and positions the reader at the first sample.
// Only 16-bit PCM is supported.
func OpenWAV(path string) (*WAVReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("capture: open wav %q: %w", path, err)
	}

	r, err := parseHeader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %q: %v", ErrBadWAV, path, err)
	}
	return r, nil
}

func parseHeader(f *os.File) (*WAVReader, error) {
	var riff [12]byte
	if _, err := io.ReadFull(f, riff[:]); err != nil {
		return nil, err
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, errors.New("missing RIFF/WAVE header")
	}

	var (
		channels, sampleRate, bitsPerSample int
		dataSize                            int
		foundFmt, foundData                 bool
	)

	// Walk the chunk list until both fmt and data are found. The data chunk
	// is assumed to follow fmt, as written by every common encoder.
	for !foundFmt || !foundData {
		var header [8]byte
		if _, err := io.ReadFull(f, header[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, err
		}
		chunkID := string(header[0:4])
		chunkSize := binary.LittleEndian.Uint32(header[4:8])
		padding := int64(chunkSize % 2) // chunks are word-aligned

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return nil, errors.New("fmt chunk too small")
			}
			fmtData := make([]byte, chunkSize)
			if _, err := io.ReadFull(f, fmtData); err != nil {
				return nil, err
			}
			if padding > 0 {
				if _, err := f.Seek(padding, io.SeekCurrent); err != nil {
					return nil, err
				}
			}
			channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
			sampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
			bitsPerSample = int(binary.LittleEndian.Uint16(fmtData[14:16]))
			foundFmt = true

		case "data":
			dataSize = int(chunkSize)
			foundData = true

		default:
			if _, err := f.Seek(int64(chunkSize)+padding, io.SeekCurrent); err != nil {
				return nil, err
			}
		}
	}

	if !foundFmt || !foundData {
		return nil, errors.New("missing fmt or data chunk")
	}
	if bitsPerSample != 16 {
		return nil, fmt.Errorf("only 16-bit PCM is supported, got %d bits", bitsPerSample)
	}
	if channels < 1 {
		return nil, errors.New("no channels")
	}

	return &WAVReader{
		file:       f,
		SampleRate: sampleRate,
		Channels:   channels,
		remaining:  dataSize,
	}, nil
}

// ReadChunk reads the next count mono samples. At end of data it returns
// io.EOF; a trailing partial chunk is dropped, matching live capture
// behaviour.
func (r *WAVReader) ReadChunk(count int) ([]int16, error) {
	frameBytes := 2 * r.Channels
	want := count * frameBytes
	if r.remaining < want {
		return nil, io.EOF
	}

	buf := make([]byte, want)
	if _, err := io.ReadFull(r.file, buf); err != nil {
		return nil, err
	}
	r.remaining -= want

	out := make([]int16, count)
	for i := range out {
		offset := i * frameBytes
		out[i] = int16(binary.LittleEndian.Uint16(buf[offset : offset+2]))
	}
	return out, nil
}

// Duration returns the remaining audio duration in seconds.
func (r *WAVReader) Duration() float64 {
	frames := r.remaining / (2 * r.Channels)
	return float64(frames) / float64(r.SampleRate)
}

// Close closes the underlying file.
func (r *WAVReader) Close() error {
	return r.file.Close()
}
