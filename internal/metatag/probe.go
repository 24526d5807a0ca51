package metatag

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/subsona/subsona/internal/errors"
)

// Properties are the audio stream properties of one file.
type Properties struct {
	Duration     float32
	Bitrate      int
	SampleRate   int
	ChannelCount int16
	BitDepth     *int16
}

// Prober reads audio properties by invoking ffprobe.
type Prober struct {
	Binary  string
	Timeout time.Duration
}

func NewProber(binary string) *Prober {
	if binary == "" {
		binary = "ffprobe"
	}
	return &Prober{Binary: binary, Timeout: 10 * time.Second}
}

type ffprobeOutput struct {
	Streams []struct {
		CodecType     string `json:"codec_type"`
		SampleRate    string `json:"sample_rate"`
		Channels      int    `json:"channels"`
		BitsPerSample string `json:"bits_per_raw_sample"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
}

// Probe runs ffprobe against one local file or an input the binary can read.
func (p *Prober) Probe(ctx context.Context, path string) (*Properties, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, p.Binary,
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "stream=codec_type,sample_rate,channels,bits_per_raw_sample",
		"-show_entries", "format=duration,bit_rate",
		"-print_format", "json",
		path)

	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, errors.New(err).
			Component("metatag").
			Category(errors.CategoryMediaParsing).
			Context("stderr", stderr.String()).
			FileContext(path, 0).
			Build()
	}
	return parseProbeOutput(out.Bytes(), path)
}

// ProbeBytes probes in-memory file content by staging it in a temporary
// file. Remote backends deliver whole files rather than paths.
func (p *Prober) ProbeBytes(ctx context.Context, data []byte, nameHint string) (*Properties, error) {
	tmp, err := os.CreateTemp("", "probe-*"+filepath.Ext(nameHint))
	if err != nil {
		return nil, errors.New(err).Component("metatag").Category(errors.CategoryFileIO).Build()
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()
	if _, err := tmp.Write(data); err != nil {
		return nil, errors.New(err).Component("metatag").Category(errors.CategoryFileIO).Build()
	}
	return p.Probe(ctx, tmp.Name())
}

func parseProbeOutput(data []byte, path string) (*Properties, error) {
	var parsed ffprobeOutput
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, errors.New(err).
			Component("metatag").
			Category(errors.CategoryMediaParsing).
			FileContext(path, 0).
			Build()
	}

	props := &Properties{}
	if d, err := strconv.ParseFloat(parsed.Format.Duration, 32); err == nil && d > 0 {
		props.Duration = float32(d)
	}
	if b, err := strconv.Atoi(parsed.Format.BitRate); err == nil && b > 0 {
		props.Bitrate = b
	}
	for _, stream := range parsed.Streams {
		if stream.CodecType != "audio" {
			continue
		}
		if sr, err := strconv.Atoi(stream.SampleRate); err == nil {
			props.SampleRate = sr
		}
		props.ChannelCount = int16(stream.Channels)
		if bits, err := strconv.Atoi(stream.BitsPerSample); err == nil && bits > 0 {
			depth := int16(bits)
			props.BitDepth = &depth
		}
		break
	}

	if props.Duration <= 0 || props.SampleRate <= 0 || props.ChannelCount <= 0 {
		return nil, errors.Newf("no usable audio stream in %s", path).
			Component("metatag").
			Category(errors.CategoryMediaParsing).
			Build()
	}
	return props, nil
}
