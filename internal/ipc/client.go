package ipc

import (
	"context"
	"errors"
	"image"
	"io"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"sync"
	"time"

	"shelfscan/internal/bridge"
	"shelfscan/internal/imaging"
)

const dialTimeout = 2 * time.Second

// Client provides RPC access to the daemon. A broken connection is dropped
// and redialed on the next call.
type Client struct {
	path string
	wait time.Duration

	mu     sync.Mutex
	conn   net.Conn
	client *rpc.Client
}

// NewClient returns a client that dials lazily.
func NewClient(path string) *Client {
	return &Client{path: path, wait: time.Second}
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	c := NewClient(path)
	if _, err := c.ensure(); err != nil {
		return nil, err
	}
	return c, nil
}

// SetWait sets the long-poll wait requested by Next.
func (c *Client) SetWait(wait time.Duration) {
	if wait > 0 {
		c.wait = wait
	}
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropLocked()
}

func (c *Client) ensure() (*rpc.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}
	conn, err := net.DialTimeout("unix", c.path, dialTimeout)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	c.client = rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return c.client, nil
}

func (c *Client) drop(stale *rpc.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == stale {
		_ = c.dropLocked()
	}
}

func (c *Client) dropLocked() error {
	var err error
	if c.client != nil {
		err = c.client.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.client = nil
	c.conn = nil
	if errors.Is(err, rpc.ErrShutdown) {
		return nil
	}
	return err
}

func (c *Client) call(ctx context.Context, method string, req, resp any) error {
	rc, err := c.ensure()
	if err != nil {
		return err
	}
	pending := rc.Go(ServiceName+"."+method, req, resp, make(chan *rpc.Call, 1))
	select {
	case <-ctx.Done():
		// the reply may still arrive; the connection cannot be reused safely
		c.drop(rc)
		return ctx.Err()
	case done := <-pending.Done:
		if done.Error != nil && isConnError(done.Error) {
			c.drop(rc)
		}
		return done.Error
	}
}

func isConnError(err error) bool {
	var serverErr rpc.ServerError
	if errors.As(err, &serverErr) {
		return false
	}
	return errors.Is(err, rpc.ErrShutdown) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || isNetError(err)
}

func isNetError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr)
}

// Start requests the daemon to start capture.
func (c *Client) Start(ctx context.Context) (*StartResponse, error) {
	var resp StartResponse
	if err := c.call(ctx, "Start", StartRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop requests the daemon to stop capture.
func (c *Client) Stop(ctx context.Context) (*StopResponse, error) {
	var resp StopResponse
	if err := c.call(ctx, "Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call(ctx, "Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CurrentScan returns the newest scan without waiting.
func (c *Client) CurrentScan(ctx context.Context) (*CurrentScanResponse, error) {
	var resp CurrentScanResponse
	if err := c.call(ctx, "CurrentScan", CurrentScanRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// WaitScan long-polls for a scan newer than req.Since.
func (c *Client) WaitScan(ctx context.Context, req WaitScanRequest) (*WaitScanResponse, error) {
	var resp WaitScanResponse
	if err := c.call(ctx, "WaitScan", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LatestFrame fetches the newest frame as JPEG.
func (c *Client) LatestFrame(ctx context.Context, annotated bool) (*LatestFrameResponse, error) {
	var resp LatestFrameResponse
	if err := c.call(ctx, "LatestFrame", LatestFrameRequest{Annotated: annotated}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LatestImage fetches and decodes the newest raw frame.
func (c *Client) LatestImage(ctx context.Context) (image.Image, error) {
	resp, err := c.LatestFrame(ctx, false)
	if err != nil {
		return nil, err
	}
	return imaging.Decode(resp.JPEG)
}

// LogTail returns daemon log events.
func (c *Client) LogTail(ctx context.Context, req LogTailRequest) (*LogTailResponse, error) {
	var resp LogTailResponse
	if err := c.call(ctx, "LogTail", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Current returns the cursor a late-attaching consumer starts from.
func (c *Client) Current(ctx context.Context) (bridge.Cursor, error) {
	resp, err := c.CurrentScan(ctx)
	if err != nil {
		return bridge.Cursor{}, err
	}
	return bridge.Cursor{RunID: resp.RunID, Seq: resp.Seq}, nil
}

// Next blocks until a scan newer than since arrives or ctx ends.
func (c *Client) Next(ctx context.Context, since bridge.Cursor) (bridge.ScanUpdate, error) {
	for {
		if err := ctx.Err(); err != nil {
			return bridge.ScanUpdate{}, err
		}
		resp, err := c.WaitScan(ctx, WaitScanRequest{
			RunID:      since.RunID,
			Since:      since.Seq,
			WaitMillis: int(c.wait / time.Millisecond),
		})
		if err != nil {
			return bridge.ScanUpdate{}, err
		}
		if resp.Fresh && resp.Event != nil {
			return bridge.ScanUpdate{RunID: resp.RunID, Seq: resp.Seq, Event: *resp.Event}, nil
		}
		if resp.RunID != since.RunID {
			// producer restarted without new scans; follow its sequence from zero
			since = bridge.Cursor{RunID: resp.RunID, Seq: 0}
		}
	}
}
