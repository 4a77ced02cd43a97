package transfer

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/junsooki/airdesk/internal/events"
	"github.com/junsooki/airdesk/internal/transport"
)

// DefaultPort is the well-known port of the direct-connection listener.
const DefaultPort = 7879

// DefaultTimeout bounds every read and write on a transfer connection.
const DefaultTimeout = 30 * time.Second

const (
	copyBufferSize = 32 * 1024
	progressEvery  = 1 << 20
)

// ServerConfig configures the direct-connection listener.
type ServerConfig struct {
	Addr    string
	Timeout time.Duration
}

// DefaultServerConfig listens on all interfaces at DefaultPort.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{Addr: fmt.Sprintf(":%d", DefaultPort), Timeout: DefaultTimeout}
}

// Server accepts direct-connection transfers one at a time and stores them
// through a Manager.
//
// Stop only sets a flag that the accept loop checks between connections, so
// a Server blocked in Accept keeps waiting until a peer connects or Close is
// called.
type Server struct {
	cfg     ServerConfig
	manager *Manager
	log     *zap.Logger
	events  events.Publisher

	mu       sync.Mutex
	ln       net.Listener
	running  atomic.Bool
	stopping atomic.Bool
}

// NewServer creates a Server. Call Listen then Serve.
func NewServer(m *Manager, cfg ServerConfig, opts ...Option) *Server {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	o := buildOptions(opts)
	return &Server{
		cfg:     cfg,
		manager: m,
		log:     o.log.Named("transfer.server"),
		events:  o.events,
	}
}

// Listen binds the listening socket.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return errors.New("transfer: server already listening")
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("transfer: listen %s: %w", s.cfg.Addr, err)
	}
	s.ln = ln
	s.stopping.Store(false)
	s.log.Info("transfer server listening", zap.Stringer("addr", ln.Addr()))
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Running reports whether Serve is in its accept loop.
func (s *Server) Running() bool { return s.running.Load() }

// Serve accepts and handles connections until Stop or Close.
func (s *Server) Serve() error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return errors.New("transfer: server not listening")
	}
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("transfer: server already running")
	}
	defer s.running.Store(false)

	for !s.stopping.Load() {
		conn, err := ln.Accept()
		if err != nil {
			if s.stopping.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Warn("accept failed", zap.Error(err))
			time.Sleep(100 * time.Millisecond)
			continue
		}
		if s.stopping.Load() {
			conn.Close()
			return nil
		}
		s.handle(conn)
	}
	return nil
}

// Stop asks Serve to return after the current or next connection.
func (s *Server) Stop() { s.stopping.Store(true) }

// Close stops the server and closes the listener, unblocking Accept.
func (s *Server) Close() error {
	s.stopping.Store(true)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	err := s.ln.Close()
	s.ln = nil
	return err
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	log := s.log.With(zap.Stringer("remote", conn.RemoteAddr()))

	id, path, err := s.receive(conn)
	switch {
	case err == nil:
		log.Info("direct transfer received", zap.String("transfer_id", id), zap.String("path", path))
	case id == "":
		log.Warn("direct transfer refused", zap.Error(err))
	default:
		resumable := IsResumable(err)
		log.Warn("direct transfer failed", zap.String("transfer_id", id), zap.Bool("resumable", resumable), zap.Error(err))
		if errors.Is(err, ErrHashMismatch) {
			// Finalize has already reported it.
			return
		}
		s.events.Publish(events.Event{Kind: events.KindTransferFailed, Payload: Failed{
			TransferID: id, Err: err, Resumable: resumable,
		}})
	}
}

func (s *Server) receive(conn net.Conn) (string, string, error) {
	_ = conn.SetDeadline(time.Now().Add(s.cfg.Timeout))
	hello, err := readControl(conn)
	if err != nil {
		return "", "", fmt.Errorf("transfer: read hello: %w", err)
	}
	if hello.Type != msgHello || hello.Offer == nil {
		_ = writeControl(conn, controlFrame{Type: msgReject, Error: "expected hello"})
		return "", "", fmt.Errorf("%w: unexpected %q frame", ErrInvalidOffer, hello.Type)
	}
	offer := *hello.Offer
	res, err := s.manager.Init(offer, ModeStream)
	if err != nil {
		_ = writeControl(conn, controlFrame{Type: msgReject, Error: err.Error()})
		return "", "", err
	}
	id := offer.TransferID
	if err := writeControl(conn, controlFrame{Type: msgAccept, ResumeOffset: res.ResumeOffset}); err != nil {
		_ = s.manager.Suspend(id)
		return id, "", classifyIO(err)
	}

	sess, err := s.manager.session(id)
	if err != nil {
		return id, "", err
	}
	if err := s.copyIn(conn, sess); err != nil {
		if serr := s.manager.Suspend(id); serr != nil {
			s.log.Warn("suspending session", zap.String("transfer_id", id), zap.Error(serr))
		}
		return id, "", err
	}

	path, err := s.manager.Finalize(id)
	_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.Timeout))
	if err != nil {
		res := controlFrame{Type: msgResult, Error: err.Error()}
		if errors.Is(err, ErrHashMismatch) {
			res.Code = codeHashMismatch
		}
		_ = writeControl(conn, res)
		_ = s.manager.Suspend(id)
		return id, "", err
	}
	if err := writeControl(conn, controlFrame{Type: msgResult, Path: path}); err != nil {
		s.log.Warn("sending result", zap.String("transfer_id", id), zap.Error(err))
	}
	return id, path, nil
}

// copyIn reads exactly the bytes still missing from sess.
func (s *Server) copyIn(conn net.Conn, sess *Session) error {
	buf := make([]byte, copyBufferSize)
	var sinceProgress int64
	for rem := sess.remaining(); rem > 0; rem = sess.remaining() {
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.Timeout))
		n, err := conn.Read(buf[:min(int64(len(buf)), rem)])
		if n > 0 {
			if werr := sess.writeNext(buf[:n]); werr != nil {
				return werr
			}
			sinceProgress += int64(n)
			if sinceProgress >= progressEvery {
				sinceProgress = 0
				s.publishProgress(sess)
			}
		}
		if err != nil {
			if sess.remaining() == 0 {
				break
			}
			return classifyIO(err)
		}
	}
	s.publishProgress(sess)
	return nil
}

func (s *Server) publishProgress(sess *Session) {
	st := sess.status()
	s.events.Publish(events.Event{Kind: events.KindTransferProgress, Payload: Progress{
		TransferID: st.TransferID, FileName: st.FileName, BytesDone: st.BytesDone, FileSize: st.FileSize,
	}})
}

// classifyIO maps a connection error onto the resumable error kinds.
func classifyIO(err error) error {
	switch {
	case err == nil:
		return nil
	case transport.IsTimeout(err):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: %w", ErrPrematureClose, err)
	default:
		return fmt.Errorf("%w: %w", ErrDisconnected, err)
	}
}
