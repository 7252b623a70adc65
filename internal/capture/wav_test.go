package capture_test

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/MrWong99/klaxon/internal/capture"
)

// writeWAV builds a minimal RIFF/WAVE file. extraChunks are inserted between
// the fmt and data chunks to exercise the chunk walker.
func writeWAV(t *testing.T, sampleRate, channels, bits int, samples []int16, extraChunks ...[]byte) string {
	t.Helper()

	var data []byte
	for _, s := range samples {
		data = binary.LittleEndian.AppendUint16(data, uint16(s))
	}

	var fmtChunk []byte
	fmtChunk = binary.LittleEndian.AppendUint16(fmtChunk, 1) // PCM
	fmtChunk = binary.LittleEndian.AppendUint16(fmtChunk, uint16(channels))
	fmtChunk = binary.LittleEndian.AppendUint32(fmtChunk, uint32(sampleRate))
	byteRate := sampleRate * channels * bits / 8
	fmtChunk = binary.LittleEndian.AppendUint32(fmtChunk, uint32(byteRate))
	fmtChunk = binary.LittleEndian.AppendUint16(fmtChunk, uint16(channels*bits/8))
	fmtChunk = binary.LittleEndian.AppendUint16(fmtChunk, uint16(bits))

	var body []byte
	body = append(body, "fmt "...)
	body = binary.LittleEndian.AppendUint32(body, uint32(len(fmtChunk)))
	body = append(body, fmtChunk...)
	for _, c := range extraChunks {
		body = append(body, c...)
	}
	body = append(body, "data"...)
	body = binary.LittleEndian.AppendUint32(body, uint32(len(data)))
	body = append(body, data...)

	var file []byte
	file = append(file, "RIFF"...)
	file = binary.LittleEndian.AppendUint32(file, uint32(4+len(body)))
	file = append(file, "WAVE"...)
	file = append(file, body...)

	path := filepath.Join(t.TempDir(), "test.wav")
	if err := os.WriteFile(path, file, 0o644); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	return path
}

func TestOpenWAVMono(t *testing.T) {
	t.Parallel()
	samples := []int16{100, -100, 32767, -32768, 0, 1, 2, 3}
	path := writeWAV(t, 44100, 1, 16, samples)

	r, err := capture.OpenWAV(path)
	if err != nil {
		t.Fatalf("OpenWAV: %v", err)
	}
	defer r.Close()

	if r.SampleRate != 44100 || r.Channels != 1 {
		t.Errorf("format = %d Hz / %d ch, want 44100/1", r.SampleRate, r.Channels)
	}
	want := float64(len(samples)) / 44100
	if math.Abs(r.Duration()-want) > 1e-9 {
		t.Errorf("Duration() = %v, want %v", r.Duration(), want)
	}

	got, err := r.ReadChunk(len(samples))
	if err != nil {
		t.Fatalf("ReadChunk: %v", err)
	}
	for i := range samples {
		if got[i] != samples[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], samples[i])
		}
	}
}

func TestWAVStereoDownmix(t *testing.T) {
	t.Parallel()
	// Interleaved L/R frames: the reader keeps the first channel.
	path := writeWAV(t, 48000, 2, 16, []int16{10, -99, 20, -99, 30, -99})

	r, err := capture.OpenWAV(path)
	if err != nil {
		t.Fatalf("OpenWAV: %v", err)
	}
	defer r.Close()

	got, err := r.ReadChunk(3)
	if err != nil {
		t.Fatalf("ReadChunk: %v", err)
	}
	for i, want := range []int16{10, 20, 30} {
		if got[i] != want {
			t.Errorf("sample %d = %d, want %d", i, got[i], want)
		}
	}
}

func TestWAVPartialTrailingChunkDropped(t *testing.T) {
	t.Parallel()
	path := writeWAV(t, 44100, 1, 16, make([]int16, 10))

	r, err := capture.OpenWAV(path)
	if err != nil {
		t.Fatalf("OpenWAV: %v", err)
	}
	defer r.Close()

	if _, err := r.ReadChunk(8); err != nil {
		t.Fatalf("first ReadChunk: %v", err)
	}
	// Two samples remain, fewer than a chunk: end of stream.
	if _, err := r.ReadChunk(8); err != io.EOF {
		t.Errorf("err = %v, want io.EOF", err)
	}
}

func TestWAVSkipsUnknownChunks(t *testing.T) {
	t.Parallel()
	// A LIST metadata chunk with an odd size exercises word-align padding.
	list := append([]byte("LIST"), 0, 0, 0, 0)
	binary.LittleEndian.PutUint32(list[4:8], 3)
	list = append(list, 'I', 'N', 'F', 0) // 3 bytes + 1 padding

	path := writeWAV(t, 44100, 1, 16, []int16{1, 2, 3, 4}, list)

	r, err := capture.OpenWAV(path)
	if err != nil {
		t.Fatalf("OpenWAV: %v", err)
	}
	defer r.Close()

	got, err := r.ReadChunk(4)
	if err != nil {
		t.Fatalf("ReadChunk: %v", err)
	}
	if got[0] != 1 || got[3] != 4 {
		t.Errorf("samples = %v", got)
	}
}

func TestOpenWAVRejectsNon16Bit(t *testing.T) {
	t.Parallel()
	path := writeWAV(t, 44100, 1, 8, []int16{1, 2})

	if _, err := capture.OpenWAV(path); !errors.Is(err, capture.ErrBadWAV) {
		t.Errorf("err = %v, want ErrBadWAV", err)
	}
}

func TestOpenWAVRejectsGarbage(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "garbage.wav")
	if err := os.WriteFile(path, []byte("this is not audio at all, honest"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := capture.OpenWAV(path); !errors.Is(err, capture.ErrBadWAV) {
		t.Errorf("err = %v, want ErrBadWAV", err)
	}
}

func TestOpenWAVMissingFile(t *testing.T) {
	t.Parallel()
	if _, err := capture.OpenWAV(filepath.Join(t.TempDir(), "nope.wav")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want ErrNotExist", err)
	}
}
