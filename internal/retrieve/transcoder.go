package retrieve

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"

	"github.com/subsona/subsona/internal/conf"
	"github.com/subsona/subsona/internal/errors"
	"github.com/subsona/subsona/internal/format"
	"github.com/subsona/subsona/internal/logging"
)

// TranscodeArgs describes one transcode invocation.
type TranscodeArgs struct {
	// Input is a local path or a URL ffmpeg can open.
	Input  string
	Format format.Transcode
	// BitrateK is the target bitrate in kbit/s.
	BitrateK int
	// TimeOffset skips this many seconds of output.
	TimeOffset int
}

// Transcoder produces a transcoded audio stream.
type Transcoder interface {
	Transcode(ctx context.Context, args TranscodeArgs) (io.ReadCloser, error)
}

// FFmpeg transcodes by spawning the configured ffmpeg binary and streaming
// its stdout.
type FFmpeg struct {
	cfg conf.TranscodeSettings
}

func NewFFmpeg(cfg conf.TranscodeSettings) *FFmpeg {
	if cfg.Binary == "" {
		cfg.Binary = "ffmpeg"
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 32 * 1024
	}
	if cfg.ChannelSize < 0 {
		cfg.ChannelSize = 0
	}
	return &FFmpeg{cfg: cfg}
}

func (f *FFmpeg) Transcode(ctx context.Context, args TranscodeArgs) (io.ReadCloser, error) {
	cmdArgs := []string{"-v", "error", "-nostdin"}
	if args.TimeOffset > 0 {
		cmdArgs = append(cmdArgs, "-ss", strconv.Itoa(args.TimeOffset))
	}
	cmdArgs = append(cmdArgs,
		"-i", args.Input,
		"-vn",
		"-map", "0:a:0",
		"-b:a", fmt.Sprintf("%dk", args.BitrateK),
		"-f", args.Format.FFmpegMuxer(),
		"pipe:1")

	cmd := exec.CommandContext(ctx, f.cfg.Binary, cmdArgs...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.New(err).Component("retrieve").Category(errors.CategoryTranscode).Build()
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.New(err).
			Component("retrieve").
			Category(errors.CategoryTranscode).
			Context("binary", f.cfg.Binary).
			Build()
	}
	kill := func() {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	}
	return newProcessStream(stdout, kill, cmd.Wait, f.cfg.BufferSize, f.cfg.ChannelSize), nil
}

// chunk is one buffer of transcoder output, or the error that ended it.
type chunk struct {
	data []byte
	err  error
}

// processStream pumps the transcoder's stdout into a bounded chunk channel
// so a slow or stalled producer never outruns the consumer by more than the
// configured window. An early Close kills the process and stops the pump so
// abandoned streams release their slot.
type processStream struct {
	stdout io.ReadCloser
	kill   func()
	waitFn func() error
	chunks chan chunk
	quit   chan struct{}

	current []byte
	err     error

	waitOnce  sync.Once
	waitErr   error
	closeOnce sync.Once
}

func newProcessStream(stdout io.ReadCloser, kill func(), wait func() error, bufferSize, channelSize int) *processStream {
	p := &processStream{
		stdout: stdout,
		kill:   kill,
		waitFn: wait,
		chunks: make(chan chunk, channelSize),
		quit:   make(chan struct{}),
	}
	go p.pump(bufferSize)
	return p
}

func (p *processStream) pump(bufferSize int) {
	defer close(p.chunks)
	for {
		buf := make([]byte, bufferSize)
		n, err := p.stdout.Read(buf)
		if n > 0 {
			select {
			case p.chunks <- chunk{data: buf[:n]}:
			case <-p.quit:
				return
			}
		}
		if err != nil {
			if err == io.EOF {
				p.wait()
				if err = p.waitErr; err == nil {
					return
				}
			}
			select {
			case p.chunks <- chunk{err: err}:
			case <-p.quit:
			}
			return
		}
	}
}

func (p *processStream) Read(buf []byte) (int, error) {
	for len(p.current) == 0 {
		if p.err != nil {
			return 0, p.err
		}
		c, ok := <-p.chunks
		if !ok {
			p.err = io.EOF
			return 0, io.EOF
		}
		if c.err != nil {
			p.err = c.err
			return 0, p.err
		}
		p.current = c.data
	}
	n := copy(buf, p.current)
	p.current = p.current[n:]
	return n, nil
}

func (p *processStream) Close() error {
	p.closeOnce.Do(func() {
		close(p.quit)
		p.kill()
		_ = p.stdout.Close()
		p.wait()
	})
	return nil
}

func (p *processStream) wait() {
	p.waitOnce.Do(func() {
		if err := p.waitFn(); err != nil {
			p.waitErr = errors.New(err).Component("retrieve").Category(errors.CategoryTranscode).Build()
			logging.ForService("retrieve").Warn("ffmpeg exited with error", "error", err)
		}
	})
}
