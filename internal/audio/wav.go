package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const wavHeaderSize = 44

var ErrNotWAV = errors.New("not a canonical PCM wav file")

// WAVWriter serializes takes as canonical PCM WAV files.
type WAVWriter struct{}

// Write concatenates frames in capture order and writes them to dest.
// With no frames it writes nothing and returns an empty path. The file is
// written to a temporary sibling and renamed into place, so dest either
// holds a complete file or is untouched.
func (WAVWriter) Write(frames [][]byte, format Format, dest string) (string, error) {
	dataSize := 0
	for _, f := range frames {
		dataSize += len(f)
	}
	if dataSize == 0 {
		return "", nil
	}
	if !format.valid() {
		return "", fmt.Errorf("invalid wav format %+v", format)
	}

	header, err := wavHeader(dataSize, format.SampleRate, format.Channels, format.BitDepth)
	if err != nil {
		return "", fmt.Errorf("build wav header: %w", err)
	}

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create wav directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("open wav output: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(header); err != nil {
		return "", fmt.Errorf("write wav header: %w", err)
	}
	for _, f := range frames {
		if _, err := tmp.Write(f); err != nil {
			return "", fmt.Errorf("write wav payload: %w", err)
		}
	}
	if err := tmp.Sync(); err != nil {
		return "", fmt.Errorf("sync wav output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close wav output: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return "", fmt.Errorf("finalize wav output: %w", err)
	}
	committed = true

	return dest, nil
}

func wavHeader(dataSize, sampleRate, channels, bitDepth int) ([]byte, error) {
	byteRate := sampleRate * channels * bitDepth / 8
	blockAlign := channels * bitDepth / 8
	chunkSize := 36 + dataSize

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize))
	buf.WriteString("RIFF")
	if err := binary.Write(buf, binary.LittleEndian, uint32(chunkSize)); err != nil {
		return nil, err
	}
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")

	fmtChunk := []any{
		uint32(16), // PCM fmt chunk size
		uint16(1),  // PCM
		uint16(channels),
		uint32(sampleRate),
		uint32(byteRate),
		uint16(blockAlign),
		uint16(bitDepth),
	}
	for _, v := range fmtChunk {
		if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
			return nil, err
		}
	}

	buf.WriteString("data")
	if err := binary.Write(buf, binary.LittleEndian, uint32(dataSize)); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// ReadWAV parses a PCM WAV file and returns its format and sample data.
// Chunks other than "fmt " and "data" are skipped.
func ReadWAV(path string) (Format, []byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Format{}, nil, fmt.Errorf("read wav: %w", err)
	}
	return decodeWAV(raw)
}

func decodeWAV(raw []byte) (Format, []byte, error) {
	if len(raw) < 12 || string(raw[0:4]) != "RIFF" || string(raw[8:12]) != "WAVE" {
		return Format{}, nil, ErrNotWAV
	}

	var format Format
	var data []byte
	haveFmt := false
	r := bytes.NewReader(raw[12:])

	for {
		var id [4]byte
		if _, err := io.ReadFull(r, id[:]); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Format{}, nil, fmt.Errorf("read chunk id: %w", err)
		}
		var size uint32
		if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
			return Format{}, nil, fmt.Errorf("read chunk size: %w", err)
		}
		if int64(size) > int64(r.Len()) {
			return Format{}, nil, fmt.Errorf("%q chunk of %d bytes overruns file: %w", string(id[:]), size, ErrNotWAV)
		}
		body := make([]byte, size)
		if _, err := io.ReadFull(r, body); err != nil {
			return Format{}, nil, fmt.Errorf("read %q chunk: %w", string(id[:]), err)
		}
		if size%2 == 1 {
			_, _ = r.ReadByte()
		}

		switch string(id[:]) {
		case "fmt ":
			if size < 16 || binary.LittleEndian.Uint16(body[0:2]) != 1 {
				return Format{}, nil, ErrNotWAV
			}
			format = Format{
				Channels:   int(binary.LittleEndian.Uint16(body[2:4])),
				SampleRate: int(binary.LittleEndian.Uint32(body[4:8])),
				BitDepth:   int(binary.LittleEndian.Uint16(body[14:16])),
			}
			haveFmt = true
		case "data":
			data = body
		}
	}

	if !haveFmt || data == nil {
		return Format{}, nil, ErrNotWAV
	}
	return format, data, nil
}
