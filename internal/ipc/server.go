package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"shelfscan/internal/bridge"
	"shelfscan/internal/imaging"
	"shelfscan/internal/logging"
)

// Backend is the daemon surface the IPC server exposes.
type Backend interface {
	Hub() *bridge.Hub
	Logs() *logging.StreamHub
	StartCapture(ctx context.Context) error
	StopCapture() error
	Status() StatusResponse
}

// ServerOptions tunes request handling.
type ServerOptions struct {
	// DefaultWait applies to WaitScan and LogTail requests without a wait.
	DefaultWait time.Duration
	JPEGQuality int
}

// Server exposes the bridge via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	connMu sync.Mutex
	conns  map[net.Conn]struct{}
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, backend Backend, opts ServerOptions, logger *slog.Logger) (*Server, error) {
	if backend == nil || backend.Hub() == nil {
		return nil, errors.New("ipc server requires a backend with a bridge hub")
	}
	logger = logging.NewComponentLogger(logger, "ipc")
	if opts.DefaultWait <= 0 {
		opts.DefaultWait = time.Second
	}
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = imaging.DefaultJPEGQuality
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	srv := &service{backend: backend, opts: opts, logger: logger, ctx: serverCtx}
	if err := rpcServer.RegisterName(ServiceName, srv); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
		conns:     make(map[net.Conn]struct{}),
	}, nil
}

// Path returns the socket path.
func (s *Server) Path() string { return s.path }

// Serve starts accepting RPC connections until the context is canceled.
// Each connection is served on its own goroutine.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"),
				)
				continue
			}
			s.track(conn, true)
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				defer s.track(c, false)
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

func (s *Server) track(conn net.Conn, add bool) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
		return
	}
	delete(s.conns, conn)
}

// Close stops the server, drops open connections and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.connMu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.connMu.Unlock()
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually"),
		)
	}
}

type service struct {
	backend Backend
	opts    ServerOptions
	logger  *slog.Logger
	ctx     context.Context
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	s.logger.Debug("capture start requested")
	if err := s.backend.StartCapture(s.ctx); err != nil {
		resp.Started = false
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "capture started"
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.logger.Debug("capture stop requested")
	if err := s.backend.StopCapture(); err != nil {
		resp.Message = err.Error()
		return nil
	}
	resp.Stopped = true
	resp.Message = "capture stopped"
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	*resp = s.backend.Status()
	return nil
}

func (s *service) CurrentScan(_ CurrentScanRequest, resp *CurrentScanResponse) error {
	hub := s.backend.Hub()
	resp.RunID = hub.RunID()
	v, ok := hub.Events().Load()
	resp.Seq = v.Seq
	if ok {
		evt := v.Value
		resp.Event = &evt
	}
	return nil
}

func (s *service) WaitScan(req WaitScanRequest, resp *WaitScanResponse) error {
	hub := s.backend.Hub()
	since := req.Since
	if req.RunID != hub.RunID() {
		since = 0
	}
	wait := s.waitDuration(req.WaitMillis)

	ctx, cancel := context.WithTimeout(s.ctx, wait)
	defer cancel()

	resp.RunID = hub.RunID()
	v, err := hub.Events().Wait(ctx, since)
	if err != nil {
		if s.ctx.Err() != nil {
			return errors.New("daemon shutting down")
		}
		resp.Seq = hub.Events().Seq()
		return nil
	}
	evt := v.Value
	resp.Seq = v.Seq
	resp.Fresh = true
	resp.Event = &evt
	return nil
}

func (s *service) LatestFrame(req LatestFrameRequest, resp *LatestFrameResponse) error {
	v, err := s.backend.Hub().LatestFrame(req.Annotated)
	if err != nil {
		return err
	}
	quality := req.Quality
	if quality <= 0 || quality > 100 {
		quality = s.opts.JPEGQuality
	}
	data, err := imaging.EncodeJPEG(v.Value.Image, quality)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	bounds := v.Value.Image.Bounds()
	resp.Seq = v.Seq
	resp.CapturedAt = v.Value.CapturedAt
	resp.Width = bounds.Dx()
	resp.Height = bounds.Dy()
	resp.JPEG = data
	return nil
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	hub := s.backend.Logs()
	if hub == nil {
		resp.Next = req.Since
		return nil
	}
	ctx, cancel := context.WithTimeout(s.ctx, s.waitDuration(req.WaitMillis))
	defer cancel()

	if !req.Follow && req.Since == 0 {
		resp.Events, resp.Next = hub.Tail(req.Limit)
		return nil
	}
	events, next, err := hub.Fetch(ctx, req.Since, req.Limit, req.Follow)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	resp.Events = events
	resp.Next = next
	return nil
}

func (s *service) waitDuration(millis int) time.Duration {
	wait := time.Duration(millis) * time.Millisecond
	if wait <= 0 {
		wait = s.opts.DefaultWait
	}
	if wait > MaxWait {
		wait = MaxWait
	}
	return wait
}
