package imaging

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"

	"shelfscan/internal/bridge"
	"shelfscan/internal/fileutil"
	"shelfscan/internal/logging"
)

// DefaultMaxEdge bounds stored snapshots.
const DefaultMaxEdge = 640

// FrameSource yields the newest raw camera frame.
type FrameSource interface {
	LatestImage(ctx context.Context) (image.Image, error)
}

// ImagePathUpdater persists the snapshot location for an item.
type ImagePathUpdater interface {
	UpdateImagePath(ctx context.Context, id int64, path string) error
}

// HubSource reads frames from an in-process bridge hub.
type HubSource struct {
	Hub *bridge.Hub
}

// LatestImage implements FrameSource.
func (s HubSource) LatestImage(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Hub == nil {
		return nil, bridge.ErrNoFrame
	}
	v, err := s.Hub.LatestFrame(false)
	if err != nil {
		return nil, err
	}
	return v.Value.Image, nil
}

// Snapshotter stores item pictures taken from the live camera.
type Snapshotter struct {
	Source   FrameSource
	Store    ImagePathUpdater
	MediaDir string
	MaxEdge  int
	Logger   *slog.Logger
}

// Capture saves the newest frame for itemID and records its path. The
// returned path is absolute.
func (s *Snapshotter) Capture(ctx context.Context, itemID int64) (string, error) {
	if s.Source == nil || s.Store == nil {
		return "", errors.New("snapshotter requires a frame source and a store")
	}
	img, err := s.Source.LatestImage(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch frame: %w", err)
	}
	path, err := Save(img, s.MediaDir, s.maxEdge())
	if err != nil {
		return "", err
	}
	if err := s.Store.UpdateImagePath(ctx, itemID, path); err != nil {
		return "", fmt.Errorf("record image path: %w", err)
	}
	logger := s.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger.Info("item snapshot stored",
		logging.String(logging.FieldEventType, "item_snapshot_stored"),
		logging.ItemID(itemID),
		logging.String("path", path),
	)
	return path, nil
}

func (s *Snapshotter) maxEdge() int {
	if s.MaxEdge > 0 {
		return s.MaxEdge
	}
	return DefaultMaxEdge
}

// Save downscales img and writes it as <sha256>.png under dir.
func Save(img image.Image, dir string, maxEdge int) (string, error) {
	if img == nil {
		return "", errEmptyImage
	}
	data, err := EncodePNG(Downscale(img, maxEdge))
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	path := filepath.Join(abs, fileutil.ContentName(data, ".png"))
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return path, nil
}
