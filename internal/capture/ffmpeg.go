package capture

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

const (
	megabyte      = 1 << 20
	maxFrameBytes = 64 * megabyte

	maxCorruptFrames = 30
)

// FFmpegOptions configures an FFmpegDevice.
type FFmpegOptions struct {
	Binary      string
	Device      string
	InputFormat string
	FrameRate   int
	Width       int
	Height      int
}

// FFmpegDevice reads a camera through ffmpeg, which re-encodes every frame as
// a JPEG on stdout.
type FFmpegDevice struct {
	opts FFmpegOptions

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdout  io.ReadCloser
	scanner *bufio.Scanner
	stderr  *lockedBuffer
	cancel  context.CancelFunc
}

// lockedBuffer collects ffmpeg stderr written from the exec goroutine.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// NewFFmpegDevice constructs a device; nothing starts until Open.
func NewFFmpegDevice(opts FFmpegOptions) *FFmpegDevice {
	if strings.TrimSpace(opts.Binary) == "" {
		opts.Binary = "ffmpeg"
	}
	return &FFmpegDevice{opts: opts}
}

// Name returns the camera path.
func (d *FFmpegDevice) Name() string { return d.opts.Device }

// Args returns the ffmpeg argument list used by Open.
func (d *FFmpegDevice) Args() []string {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if d.opts.InputFormat != "" {
		args = append(args, "-f", d.opts.InputFormat)
	}
	if d.opts.FrameRate > 0 {
		args = append(args, "-framerate", strconv.Itoa(d.opts.FrameRate))
	}
	if d.opts.Width > 0 && d.opts.Height > 0 {
		args = append(args, "-video_size", fmt.Sprintf("%dx%d", d.opts.Width, d.opts.Height))
	}
	args = append(args, "-i", d.opts.Device, "-f", "image2pipe", "-vcodec", "mjpeg", "-")
	return args
}

// Open starts ffmpeg. The process lives until Close or until ctx ends.
func (d *FFmpegDevice) Open(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cmd != nil {
		return errors.New("ffmpeg device already open")
	}

	procCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(procCtx, d.opts.Binary, d.Args()...)
	stderr := &lockedBuffer{}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, megabyte), maxFrameBytes)
	scanner.Split(SplitJPEG)

	d.cmd = cmd
	d.stdout = stdout
	d.scanner = scanner
	d.stderr = stderr
	d.cancel = cancel
	return nil
}

// Read returns the next decoded frame. A frame that fails to decode is
// skipped; maxCorruptFrames in a row end the stream with an error.
func (d *FFmpegDevice) Read(ctx context.Context) (Frame, error) {
	d.mu.Lock()
	scanner := d.scanner
	d.mu.Unlock()
	if scanner == nil {
		return Frame{}, ErrDeviceClosed
	}

	corrupt := 0
	for {
		if err := ctx.Err(); err != nil {
			return Frame{}, err
		}
		if !scanner.Scan() {
			if err := ctx.Err(); err != nil {
				return Frame{}, err
			}
			if err := scanner.Err(); err != nil {
				return Frame{}, fmt.Errorf("read ffmpeg stream: %w", err)
			}
			if msg := d.stderrTail(); msg != "" {
				return Frame{}, fmt.Errorf("%w: %s", ErrDeviceClosed, msg)
			}
			return Frame{}, ErrDeviceClosed
		}
		img, err := jpeg.Decode(bytes.NewReader(scanner.Bytes()))
		if err == nil {
			return Frame{CapturedAt: time.Now(), Image: img}, nil
		}
		corrupt++
		if corrupt >= maxCorruptFrames {
			return Frame{}, fmt.Errorf("decode jpeg frame: %d consecutive failures: %w", corrupt, err)
		}
	}
}

// Close kills ffmpeg and releases the pipe.
func (d *FFmpegDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cmd == nil {
		return nil
	}
	d.cancel()
	_ = d.stdout.Close()
	_ = d.cmd.Wait()
	d.cmd = nil
	d.stdout = nil
	d.scanner = nil
	d.cancel = nil
	return nil
}

func (d *FFmpegDevice) stderrTail() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stderr == nil {
		return ""
	}
	msg := strings.TrimSpace(d.stderr.String())
	if len(msg) > 512 {
		msg = msg[len(msg)-512:]
	}
	return msg
}

// SplitJPEG is a bufio.SplitFunc yielding whole JPEG images delimited by the
// SOI and EOI markers. Bytes before an SOI are discarded.
func SplitJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	start := bytes.Index(data, jpegSOI)
	if start == -1 {
		if atEOF {
			return len(data), nil, nil
		}
		return 0, nil, nil
	}
	end := bytes.Index(data[start+len(jpegSOI):], jpegEOI)
	if end == -1 {
		if atEOF {
			return len(data), nil, nil
		}
		return 0, nil, nil
	}
	stop := start + len(jpegSOI) + end + len(jpegEOI)
	return stop, data[start:stop], nil
}
