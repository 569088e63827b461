package audio

import (
	"encoding/binary"
	"strings"
)

// Encoding identifies the container/codec of captured audio
type Encoding string

const (
	EncodingOpusWebM Encoding = "audio/webm;codecs=opus"
	EncodingMP4      Encoding = "audio/mp4"
	EncodingWebM     Encoding = "audio/webm"
	EncodingWAV      Encoding = "audio/wav"
)

// encodingPreference is the fixed probe order used when negotiating the
// session encoding. Opus-in-webm gives the best size/quality; mp4 covers
// Safari-style encoders; wav covers raw PCM devices.
var encodingPreference = []Encoding{
	EncodingOpusWebM,
	EncodingMP4,
	EncodingWAV,
}

// NegotiateEncoding probes the device's supported encodings in preference
// order and returns the first match. Negotiation happens once per session;
// the result is reused for every segment. Falls back to plain webm.
func NegotiateEncoding(dev CaptureDevice) Encoding {
	for _, enc := range encodingPreference {
		if dev.Supports(enc) {
			return enc
		}
	}
	return EncodingWebM
}

// Ext returns the file extension for the encoding's container
func (e Encoding) Ext() string {
	switch {
	case strings.Contains(string(e), "mp4"):
		return "mp4"
	case strings.Contains(string(e), "wav"):
		return "wav"
	default:
		return "webm"
	}
}

// WrapWAV prepends a RIFF/WAVE header to raw 16-bit PCM data
func WrapWAV(pcm []byte, sampleRate, channels int) []byte {
	if sampleRate == 0 {
		sampleRate = 16000
	}
	if channels == 0 {
		channels = 1
	}

	const bitsPerSample = 16
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := len(pcm)

	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+dataSize))
	copy(header[8:12], "WAVE")

	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], bitsPerSample)

	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(dataSize))

	return append(header, pcm...)
}
