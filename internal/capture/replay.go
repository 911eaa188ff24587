package capture

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

var replayExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
}

// ReplayOptions configures a ReplayDevice.
type ReplayOptions struct {
	Dir string
	// Loop restarts from the first image instead of ending the stream.
	Loop bool
	// Interval paces reads; zero returns frames as fast as they are requested.
	Interval time.Duration
}

// ReplayDevice plays image files from a directory in lexical order.
type ReplayDevice struct {
	opts ReplayOptions

	mu     sync.Mutex
	files  []string
	next   int
	open   bool
	lastAt time.Time
}

// NewReplayDevice constructs a replay device over opts.Dir.
func NewReplayDevice(opts ReplayOptions) *ReplayDevice {
	return &ReplayDevice{opts: opts}
}

// Name identifies the device in logs and lock files.
func (d *ReplayDevice) Name() string { return "replay:" + d.opts.Dir }

// Open lists the directory. An empty directory is an error.
func (d *ReplayDevice) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, err := os.ReadDir(d.opts.Dir)
	if err != nil {
		return fmt.Errorf("read replay dir: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := replayExtensions[strings.ToLower(filepath.Ext(entry.Name()))]; !ok {
			continue
		}
		files = append(files, filepath.Join(d.opts.Dir, entry.Name()))
	}
	if len(files) == 0 {
		return fmt.Errorf("replay dir %s contains no images", d.opts.Dir)
	}
	sort.Strings(files)

	d.mu.Lock()
	d.files = files
	d.next = 0
	d.open = true
	d.lastAt = time.Time{}
	d.mu.Unlock()
	return nil
}

// Read decodes the next image. The stream ends with ErrDeviceClosed unless Loop is set.
func (d *ReplayDevice) Read(ctx context.Context) (Frame, error) {
	d.mu.Lock()
	if !d.open {
		d.mu.Unlock()
		return Frame{}, ErrDeviceClosed
	}
	if d.next >= len(d.files) {
		if !d.opts.Loop {
			d.mu.Unlock()
			return Frame{}, ErrDeviceClosed
		}
		d.next = 0
	}
	path := d.files[d.next]
	d.next++
	wait := time.Duration(0)
	if d.opts.Interval > 0 && !d.lastAt.IsZero() {
		wait = d.opts.Interval - time.Since(d.lastAt)
	}
	d.mu.Unlock()

	if wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Frame{}, ctx.Err()
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	img, err := decodeImageFile(path)
	if err != nil {
		return Frame{}, err
	}
	now := time.Now()
	d.mu.Lock()
	d.lastAt = now
	d.mu.Unlock()
	return Frame{CapturedAt: now, Image: img}, nil
}

// Close ends the stream.
func (d *ReplayDevice) Close() error {
	d.mu.Lock()
	d.open = false
	d.mu.Unlock()
	return nil
}

func decodeImageFile(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open frame %s: %w", path, err)
	}
	defer file.Close()
	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode frame %s: %w", path, err)
	}
	return img, nil
}
