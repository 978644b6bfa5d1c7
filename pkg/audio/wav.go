package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// PCMToWav encodes PCM samples as an in-memory WAV file: mono, 16-bit,
// at the given sample rate. Deterministic byte-for-byte output for
// identical input.
func PCMToWav(pcm []int16, sampleRate int) []byte {
	pcmBytes := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		binary.LittleEndian.PutUint16(pcmBytes[i*2:], uint16(s))
	}

	buf := new(bytes.Buffer)

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+len(pcmBytes)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(buf, binary.LittleEndian, uint16(2))
	binary.Write(buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(pcmBytes)))
	buf.Write(pcmBytes)

	return buf.Bytes()
}

// WavFormat describes the fmt chunk of a parsed WAV file.
type WavFormat struct {
	Channels      int
	SampleRate    int
	BitsPerSample int
	Float         bool
}

// WavToPCM parses a 16-bit mono WAV file and returns its samples. It
// rejects any other format — callers that need to accept arbitrary
// input should use ReadWav + downmix/resample instead.
func WavToPCM(wav []byte) ([]int16, error) {
	samples, format, err := ReadWav(wav)
	if err != nil {
		return nil, err
	}
	if format.Channels != 1 || format.BitsPerSample != 16 || format.Float {
		return nil, fmt.Errorf("wav: unsupported format: %d channel(s), %d-bit, float=%v", format.Channels, format.BitsPerSample, format.Float)
	}
	return samples, nil
}

// ReadWav parses an arbitrary-format RIFF/WAVE file (8/16/24-bit
// integer or 32-bit float PCM) and returns interleaved samples
// widened to int16, plus the format that was read. Multi-channel
// audio is returned interleaved; callers downmix explicitly.
func ReadWav(wav []byte) ([]int16, WavFormat, error) {
	var format WavFormat
	r := bytes.NewReader(wav)

	var riffHeader [12]byte
	if _, err := io.ReadFull(r, riffHeader[:]); err != nil {
		return nil, format, fmt.Errorf("wav: short file: %w", err)
	}
	if string(riffHeader[0:4]) != "RIFF" || string(riffHeader[8:12]) != "WAVE" {
		return nil, format, fmt.Errorf("wav: not a RIFF/WAVE file")
	}

	var sampleFormat uint16
	var dataBytes []byte
	haveFmt := false

	for {
		var chunkHeader [8]byte
		if _, err := io.ReadFull(r, chunkHeader[:]); err != nil {
			break // end of chunks
		}
		chunkID := string(chunkHeader[0:4])
		chunkSize := binary.LittleEndian.Uint32(chunkHeader[4:8])

		body := make([]byte, chunkSize)
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, format, fmt.Errorf("wav: truncated %s chunk: %w", chunkID, err)
		}
		if chunkSize%2 == 1 {
			var pad [1]byte
			io.ReadFull(r, pad[:])
		}

		switch chunkID {
		case "fmt ":
			if len(body) < 16 {
				return nil, format, fmt.Errorf("wav: fmt chunk too short")
			}
			sampleFormat = binary.LittleEndian.Uint16(body[0:2])
			format.Channels = int(binary.LittleEndian.Uint16(body[2:4]))
			format.SampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			format.BitsPerSample = int(binary.LittleEndian.Uint16(body[14:16]))
			format.Float = sampleFormat == 3
			haveFmt = true
		case "data":
			dataBytes = body
		}
	}

	if !haveFmt {
		return nil, format, fmt.Errorf("wav: missing fmt chunk")
	}
	if dataBytes == nil {
		return nil, format, fmt.Errorf("wav: missing data chunk")
	}

	samples, err := widenSamples(dataBytes, format)
	if err != nil {
		return nil, format, err
	}
	return samples, format, nil
}

func widenSamples(data []byte, format WavFormat) ([]int16, error) {
	switch {
	case format.Float && format.BitsPerSample == 32:
		n := len(data) / 4
		out := make([]int16, n)
		for i := 0; i < n; i++ {
			bits := binary.LittleEndian.Uint32(data[i*4:])
			f := float32FromBits(bits)
			out[i] = clampFloatToInt16(f)
		}
		return out, nil
	case format.BitsPerSample == 16:
		n := len(data) / 2
		out := make([]int16, n)
		for i := 0; i < n; i++ {
			out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
		}
		return out, nil
	case format.BitsPerSample == 24:
		n := len(data) / 3
		out := make([]int16, n)
		for i := 0; i < n; i++ {
			b := data[i*3 : i*3+3]
			v := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
			if v&0x800000 != 0 {
				v |= ^int32(0xFFFFFF)
			}
			out[i] = int16(v >> 8)
		}
		return out, nil
	case format.BitsPerSample == 8:
		n := len(data)
		out := make([]int16, n)
		for i := 0; i < n; i++ {
			// 8-bit WAV is unsigned, centered at 128.
			out[i] = int16(int32(data[i])-128) << 8
		}
		return out, nil
	default:
		return nil, fmt.Errorf("wav: unsupported bit depth %d", format.BitsPerSample)
	}
}

func clampFloatToInt16(f float32) int16 {
	v := f * 32767.0
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

func float32FromBits(bits uint32) float32 {
	return math.Float32frombits(bits)
}
