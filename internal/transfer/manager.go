package transfer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/junsooki/airdesk/internal/events"
	"github.com/junsooki/airdesk/internal/logging"
)

// Option configures a Manager, Server or Client.
type Option func(*options)

type options struct {
	log    *zap.Logger
	events events.Publisher
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(o *options) { o.log = l } }

// WithEvents sets where progress and completion notifications go.
func WithEvents(p events.Publisher) Option { return func(o *options) { o.events = p } }

func buildOptions(opts []Option) options {
	o := options{events: events.Discard}
	for _, fn := range opts {
		fn(&o)
	}
	o.log = logging.OrNop(o.log)
	return o
}

// Progress is the payload of transfer-progress events.
type Progress struct {
	TransferID string
	FileName   string
	BytesDone  int64
	FileSize   int64
}

// Completed is the payload of transfer-complete events.
type Completed struct {
	TransferID string
	Path       string
	FileSize   int64
}

// Failed is the payload of transfer-failed events.
type Failed struct {
	TransferID string
	Err        error
	Resumable  bool
}

// InitResult tells the sender where to continue from.
type InitResult struct {
	ResumeOffset int64
	ResumeChunk  int
}

// Manager owns the receiver-side session table and the download directory.
type Manager struct {
	dir    string
	log    *zap.Logger
	events events.Publisher

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager stores received files under dir.
func NewManager(dir string, opts ...Option) *Manager {
	o := buildOptions(opts)
	return &Manager{
		dir:      dir,
		log:      o.log.Named("transfer.manager"),
		events:   o.events,
		sessions: make(map[string]*Session),
	}
}

// Dir returns the download directory.
func (m *Manager) Dir() string { return m.dir }

// Init opens (or reopens) the temp file for offer and returns the resume
// point. An existing temp file longer than the declared size is discarded.
// In chunked mode the resume point is rounded down to whole chunks so a
// partially written chunk is sent again.
func (m *Manager) Init(offer Offer, mode Mode) (InitResult, error) {
	if err := offer.validate(mode); err != nil {
		return InitResult{}, err
	}
	if mode == ModeStream && offer.ChunkSize <= 0 {
		offer.ChunkSize = DefaultChunkSize
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.sessions[offer.TransferID]; ok {
		if err := old.closeFile(StateResumable); err != nil {
			m.log.Warn("closing superseded session", zap.String("transfer_id", offer.TransferID), zap.Error(err))
		}
		delete(m.sessions, offer.TransferID)
	}

	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return InitResult{}, fmt.Errorf("transfer: create download dir: %w", err)
	}
	tmp := filepath.Join(m.dir, offer.TransferID+".tmp")
	f, err := os.OpenFile(tmp, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return InitResult{}, fmt.Errorf("transfer: open temp file: %w", err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return InitResult{}, fmt.Errorf("transfer: stat temp file: %w", err)
	}
	have := fi.Size()
	if have > offer.FileSize {
		if err := f.Truncate(0); err != nil {
			f.Close()
			return InitResult{}, fmt.Errorf("transfer: truncate temp file: %w", err)
		}
		have = 0
	}

	s := &Session{
		offer:     offer,
		mode:      mode,
		state:     StateInitialized,
		tmpPath:   tmp,
		finalPath: filepath.Join(m.dir, safeName(offer.FileName)),
		file:      f,
		written:   make([]bool, offer.TotalChunks()),
		gap:       -1,
	}
	var res InitResult
	switch mode {
	case ModeChunked:
		res.ResumeChunk = int(have / int64(offer.ChunkSize))
		if have == offer.FileSize {
			res.ResumeChunk = offer.TotalChunks()
		}
		res.ResumeOffset = min(int64(res.ResumeChunk)*int64(offer.ChunkSize), offer.FileSize)
		for i := 0; i < res.ResumeChunk; i++ {
			s.written[i] = true
		}
		s.chunksDone = res.ResumeChunk
	default:
		res.ResumeOffset = have
		res.ResumeChunk = int(have / int64(offer.ChunkSize))
	}
	s.bytesDone = res.ResumeOffset
	m.sessions[offer.TransferID] = s

	m.log.Info("transfer initialized",
		zap.String("transfer_id", offer.TransferID),
		zap.String("file", offer.FileName),
		zap.Int64("size", offer.FileSize),
		zap.Int64("resume_offset", res.ResumeOffset),
	)
	return res, nil
}

func (m *Manager) session(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// WriteChunk stores a chunked-mode chunk.
func (m *Manager) WriteChunk(id string, index int, data []byte) error {
	s, err := m.session(id)
	if err != nil {
		return err
	}
	if err := s.writeChunk(index, data); err != nil {
		return err
	}
	st := s.status()
	m.events.Publish(events.Event{Kind: events.KindTransferProgress, Payload: Progress{
		TransferID: id, FileName: st.FileName, BytesDone: st.BytesDone, FileSize: st.FileSize,
	}})
	return nil
}

// ApplyChunk decodes a side-channel chunk and stores it. A chunk that fails
// to decode is rejected: the temp file is cut back to its start, so the next
// Init with the same id resumes from it.
func (m *Manager) ApplyChunk(msg ChunkMessage) error {
	data, err := msg.Decode()
	if err != nil {
		s, serr := m.session(msg.TransferID)
		if serr != nil {
			return errors.Join(err, serr)
		}
		if rerr := s.reject(msg.Index); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}
	return m.WriteChunk(msg.TransferID, msg.Index, data)
}

// Status reports on an active session.
func (m *Manager) Status(id string) (Status, error) {
	s, err := m.session(id)
	if err != nil {
		return Status{}, err
	}
	return s.status(), nil
}

// Finalize verifies the temp file and moves it to its final name. On a hash
// mismatch the temp file stays and the session is marked failed.
func (m *Manager) Finalize(id string) (string, error) {
	s, err := m.session(id)
	if err != nil {
		return "", err
	}
	if err := s.verify(); err != nil {
		m.log.Warn("transfer verification failed", zap.String("transfer_id", id), zap.Error(err))
		m.events.Publish(events.Event{Kind: events.KindTransferFailed, Payload: Failed{TransferID: id, Err: err}})
		return "", err
	}
	if err := s.closeFile(StateVerifying); err != nil {
		return "", fmt.Errorf("transfer %s: close temp file: %w", id, err)
	}
	if err := os.Rename(s.tmpPath, s.finalPath); err != nil {
		return "", fmt.Errorf("transfer %s: rename: %w", id, err)
	}

	s.mu.Lock()
	s.state = StateCompleted
	size := s.offer.FileSize
	s.mu.Unlock()

	m.mu.Lock()
	if m.sessions[id] == s {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	m.log.Info("transfer complete", zap.String("transfer_id", id), zap.String("path", s.finalPath))
	m.events.Publish(events.Event{Kind: events.KindTransferComplete, Payload: Completed{
		TransferID: id, Path: s.finalPath, FileSize: size,
	}})
	return s.finalPath, nil
}

// Suspend closes the session's temp file and forgets the session. The temp
// file stays so a later Init with the same id resumes from it.
func (m *Manager) Suspend(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s.closeFile(StateResumable)
}

// Cancel abandons a session and deletes its temp file.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	cerr := s.closeFile(StateFailed)
	if err := os.Remove(s.tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	m.log.Info("transfer cancelled", zap.String("transfer_id", id))
	return cerr
}

// Close suspends every active session.
func (m *Manager) Close() error {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.closeFile(StateResumable); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func safeName(name string) string {
	base := filepath.Base(filepath.Clean(name))
	switch base {
	case "", ".", "..", string(filepath.Separator):
		return ""
	}
	return base
}
