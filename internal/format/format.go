// Package format enumerates the media formats the engine understands.
package format

import "strings"

// Audio identifies a source audio container format.
type Audio string

const (
	AudioFlac Audio = "flac"
	AudioMp3  Audio = "mp3"
	AudioM4a  Audio = "m4a"
	AudioOgg  Audio = "ogg"
	AudioOpus Audio = "opus"
	AudioWav  Audio = "wav"
)

var audioByExtension = map[string]Audio{
	"flac": AudioFlac,
	"mp3":  AudioMp3,
	"m4a":  AudioM4a,
	"m4b":  AudioM4a,
	"ogg":  AudioOgg,
	"oga":  AudioOgg,
	"opus": AudioOpus,
	"wav":  AudioWav,
}

// AudioFromExtension maps a file extension (without dot, any case) to its
// audio format. The second return value is false for unsupported extensions.
func AudioFromExtension(ext string) (Audio, bool) {
	f, ok := audioByExtension[strings.ToLower(ext)]
	return f, ok
}

// MIME returns the content type served for this format.
func (a Audio) MIME() string {
	switch a {
	case AudioFlac:
		return "audio/flac"
	case AudioMp3:
		return "audio/mpeg"
	case AudioM4a:
		return "audio/mp4"
	case AudioOgg:
		return "audio/ogg"
	case AudioOpus:
		return "audio/opus"
	case AudioWav:
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}

// Extension returns the canonical file extension without dot.
func (a Audio) Extension() string {
	return string(a)
}

// Transcode identifies a target transcoding format.
type Transcode string

const (
	TranscodeAac  Transcode = "aac"
	TranscodeFlac Transcode = "flac"
	TranscodeMp3  Transcode = "mp3"
	TranscodeOpus Transcode = "opus"
	TranscodeWav  Transcode = "wav"
)

// TranscodeFromName maps a requested format name to a transcode target.
func TranscodeFromName(name string) (Transcode, bool) {
	switch strings.ToLower(name) {
	case "aac":
		return TranscodeAac, true
	case "flac":
		return TranscodeFlac, true
	case "mp3":
		return TranscodeMp3, true
	case "opus":
		return TranscodeOpus, true
	case "wav":
		return TranscodeWav, true
	default:
		return "", false
	}
}

// MIME returns the content type served for this format.
func (t Transcode) MIME() string {
	switch t {
	case TranscodeAac:
		return "audio/aac"
	case TranscodeFlac:
		return "audio/flac"
	case TranscodeMp3:
		return "audio/mpeg"
	case TranscodeOpus:
		return "audio/opus"
	case TranscodeWav:
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}

// Extension returns the canonical file extension without dot.
func (t Transcode) Extension() string {
	return string(t)
}

// FFmpegMuxer returns the ffmpeg output muxer name for this format.
func (t Transcode) FFmpegMuxer() string {
	switch t {
	case TranscodeAac:
		return "adts"
	case TranscodeOpus:
		return "opus"
	default:
		return string(t)
	}
}

// Image identifies a cover art format.
type Image string

const (
	ImagePng  Image = "png"
	ImageJpeg Image = "jpeg"
	ImageGif  Image = "gif"
)

// ImageFromMIME maps an embedded picture MIME type to its image format.
func ImageFromMIME(mime string) (Image, bool) {
	switch strings.ToLower(mime) {
	case "image/png":
		return ImagePng, true
	case "image/jpeg", "image/jpg":
		return ImageJpeg, true
	case "image/gif":
		return ImageGif, true
	default:
		return "", false
	}
}

// MIME returns the content type served for this format.
func (i Image) MIME() string {
	return "image/" + string(i)
}

// Extension returns the canonical file extension without dot.
func (i Image) Extension() string {
	if i == ImageJpeg {
		return "jpg"
	}
	return string(i)
}
