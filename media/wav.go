package media

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

var ErrNotWAV = errors.New("not a PCM WAV file")

// WAVFormat describes the PCM layout of a WAV file.
type WAVFormat struct {
	Channels      int
	SampleRate    int
	BitsPerSample int
}

// FrameSize is the byte size of one sample across all channels.
func (f WAVFormat) FrameSize() int { return f.Channels * f.BitsPerSample / 8 }

// WAVFile is an open WAV file positioned at the start of its PCM data.
type WAVFile struct {
	Format   WAVFormat
	DataSize int64

	f    *os.File
	data io.Reader
}

// OpenWAV parses the RIFF header of path. Only uncompressed PCM is accepted.
func OpenWAV(path string) (*WAVFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	format, size, err := readHeader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &WAVFile{Format: format, DataSize: size, f: f, data: io.LimitReader(f, size)}, nil
}

// ReadFrames reads up to n frames of PCM data. It returns io.EOF once the
// data chunk is exhausted.
func (w *WAVFile) ReadFrames(buf []byte, n int) ([]byte, error) {
	want := n * w.Format.FrameSize()
	if cap(buf) < want {
		buf = make([]byte, want)
	}
	buf = buf[:want]
	got, err := io.ReadFull(w.data, buf)
	if got > 0 {
		return buf[:got], nil
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	return nil, err
}

func (w *WAVFile) Close() error { return w.f.Close() }

// maxFmtChunk bounds the format chunk; WAVE_FORMAT_EXTENSIBLE needs 40 bytes.
const maxFmtChunk = 64

func readHeader(r io.Reader) (WAVFormat, int64, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return WAVFormat{}, 0, ErrNotWAV
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return WAVFormat{}, 0, ErrNotWAV
	}

	var (
		format    WAVFormat
		sawFormat bool
	)
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return WAVFormat{}, 0, ErrNotWAV
		}
		id := string(hdr[0:4])
		size := int64(binary.LittleEndian.Uint32(hdr[4:8]))

		switch id {
		case "fmt ":
			if size < 16 || size > maxFmtChunk {
				return WAVFormat{}, 0, ErrNotWAV
			}
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return WAVFormat{}, 0, ErrNotWAV
			}
			if binary.LittleEndian.Uint16(body[0:2]) != 1 {
				return WAVFormat{}, 0, ErrNotWAV
			}
			format = WAVFormat{
				Channels:      int(binary.LittleEndian.Uint16(body[2:4])),
				SampleRate:    int(binary.LittleEndian.Uint32(body[4:8])),
				BitsPerSample: int(binary.LittleEndian.Uint16(body[14:16])),
			}
			sawFormat = true
		case "data":
			if !sawFormat {
				return WAVFormat{}, 0, ErrNotWAV
			}
			return format, size, nil
		default:
			// Chunks are word aligned.
			if _, err := io.CopyN(io.Discard, r, size+size%2); err != nil {
				return WAVFormat{}, 0, ErrNotWAV
			}
			continue
		}
		if size%2 == 1 {
			if _, err := io.CopyN(io.Discard, r, 1); err != nil {
				return WAVFormat{}, 0, ErrNotWAV
			}
		}
	}
}

// WriteWAV wraps raw little-endian PCM in a canonical 44-byte WAV header.
func WriteWAV(w io.Writer, pcm []byte, f WAVFormat) error {
	blockAlign := f.FrameSize()
	hdr := make([]byte, 44)
	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(36+len(pcm)))
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16)
	binary.LittleEndian.PutUint16(hdr[20:22], 1)
	binary.LittleEndian.PutUint16(hdr[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(hdr[28:32], uint32(f.SampleRate*blockAlign))
	binary.LittleEndian.PutUint16(hdr[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(hdr[34:36], uint16(f.BitsPerSample))
	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], uint32(len(pcm)))

	if _, err := w.Write(hdr); err != nil {
		return err
	}
	_, err := w.Write(pcm)
	return err
}
