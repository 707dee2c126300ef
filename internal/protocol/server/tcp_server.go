// Package server runs the GT06 device listener. A single event loop goroutine owns every session
// and pending command; connection goroutines only move bytes and post events to it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"gt06gateway/internal/core/model"
	"gt06gateway/internal/core/service"
	"gt06gateway/internal/core/session"
	"gt06gateway/internal/protocol/gt06"
)

var (
	ErrServerClosed    = errors.New("server closed")
	ErrConnClosed      = errors.New("connection closed")
	ErrOutboundFull    = errors.New("outbound queue full")
	errAlreadyStarted  = errors.New("server already started")
	errSupersededLogin = errors.New("superseded by a newer login")
)

// Recorder receives one record per processed frame. Record is called on the event loop and must
// not block.
type Recorder interface {
	Record(rec model.FrameRecord)
}

// LoginObserver is notified on the event loop when a device logs in. Implementations must not
// block and must not call back into the server synchronously.
type LoginObserver interface {
	DeviceLoggedIn(imei string)
}

type Options struct {
	Addr             string
	ReadBufferSize   int
	MaxBufferedBytes int
	OutboundQueue    int
	EventQueue       int
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	VerifyChecksum   bool
	BatteryLockDelay time.Duration
	Store            service.PendingStore
	Recorder         Recorder
}

func (o *Options) setDefaults() {
	if o.ReadBufferSize <= 0 {
		o.ReadBufferSize = 2048
	}
	if o.OutboundQueue <= 0 {
		o.OutboundQueue = 32
	}
	if o.EventQueue <= 0 {
		o.EventQueue = 1024
	}
}

type TCPServer struct {
	opts     Options
	listener net.Listener
	events   chan func()
	done     chan struct{}
	started  bool

	// owned by the event loop
	registry  *session.Registry
	commands  service.CommandService
	conns     map[uint64]*conn
	timers    map[*time.Timer]struct{}
	observers []LoginObserver

	decoder  *gt06.Decoder
	recorder Recorder
	now      func() time.Time
	wg       sync.WaitGroup
	log      *logrus.Entry
}

func NewTCPServer(opts Options) *TCPServer {
	opts.setDefaults()
	s := &TCPServer{
		opts:     opts,
		events:   make(chan func(), opts.EventQueue),
		done:     make(chan struct{}),
		registry: session.NewRegistry(),
		conns:    make(map[uint64]*conn),
		timers:   make(map[*time.Timer]struct{}),
		decoder:  gt06.NewDecoder(opts.VerifyChecksum),
		recorder: opts.Recorder,
		now:      time.Now,
		log:      logrus.WithField("component", "tcp"),
	}
	s.commands = service.NewCommandService(s.registry, s, s, service.CommandServiceOptions{
		BatteryLockDelay: opts.BatteryLockDelay,
		Store:            opts.Store,
	})
	return s
}

// RegisterFulfiller routes confirmations of commands from source to f. Call before Start.
func (s *TCPServer) RegisterFulfiller(source string, f service.Fulfiller) {
	s.commands.RegisterFulfiller(source, f)
}

// AddLoginObserver registers o for login notifications. Call before Start.
func (s *TCPServer) AddLoginObserver(o LoginObserver) {
	s.observers = append(s.observers, o)
}

// Restore loads pending commands persisted by an earlier run. Call before Start.
func (s *TCPServer) Restore(cmds []*model.PendingCommand) {
	s.commands.Restore(cmds)
}

// Start binds the device listener and runs the event loop until ctx is cancelled.
// Failing to bind is the only error it returns.
func (s *TCPServer) Start(ctx context.Context) error {
	if s.started {
		return errAlreadyStarted
	}
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("failed to start TCP server: %w", err)
	}
	s.listener = ln
	s.started = true

	s.log.WithField("addr", ln.Addr().String()).Info("GT06 server listening")

	s.wg.Add(2)
	go s.acceptConnections()
	go s.run(ctx)
	return nil
}

// Addr returns the bound listener address.
func (s *TCPServer) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Done is closed when the event loop has stopped.
func (s *TCPServer) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the event loop and the accept goroutine have exited.
func (s *TCPServer) Wait() {
	s.wg.Wait()
}

func (s *TCPServer) run(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.done)
	for {
		select {
		case fn := <-s.events:
			fn()
		case <-ctx.Done():
			s.shutdown()
			return
		}
	}
}

func (s *TCPServer) shutdown() {
	s.listener.Close()
	for t := range s.timers {
		t.Stop()
	}
	s.timers = nil
	for _, c := range s.conns {
		s.closeConn(c, ErrServerClosed)
	}
	s.log.Info("GT06 server stopped")
}

// post hands fn to the event loop. It returns false once the loop has stopped.
func (s *TCPServer) post(fn func()) bool {
	select {
	case s.events <- fn:
		return true
	case <-s.done:
		return false
	}
}

// call runs fn on the event loop and waits for it to finish.
func (s *TCPServer) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	wrapped := func() {
		fn()
		close(finished)
	}
	select {
	case s.events <- wrapped:
	case <-s.done:
		return ErrServerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-s.done:
		return ErrServerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// After implements service.Scheduler: fn runs on the event loop once d has elapsed.
func (s *TCPServer) After(d time.Duration, fn func()) {
	if s.timers == nil {
		return
	}
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		s.post(func() {
			if _, live := s.timers[t]; !live {
				return
			}
			delete(s.timers, t)
			fn()
		})
	})
	s.timers[t] = struct{}{}
}

// Submit implements service.Gateway: the request is dispatched on the event loop.
func (s *TCPServer) Submit(ctx context.Context, req model.CommandRequest) (*model.PendingCommand, error) {
	var (
		cmd *model.PendingCommand
		err error
	)
	if cerr := s.call(ctx, func() { cmd, err = s.commands.Submit(req) }); cerr != nil {
		return nil, cerr
	}
	return cmd, err
}

// Devices implements service.Gateway: a snapshot of every live connection.
func (s *TCPServer) Devices(ctx context.Context) ([]model.Device, error) {
	out := []model.Device{}
	err := s.call(ctx, func() {
		for _, sess := range s.registry.All() {
			d := sess.View()
			if d.IMEI != "" {
				if cmd, ok := s.commands.Pending(d.IMEI); ok {
					d.Pending = cmd
				}
			}
			out = append(out, d)
		}
	})
	return out, err
}

// PendingCommands returns every unconfirmed command.
func (s *TCPServer) PendingCommands(ctx context.Context) ([]model.PendingCommand, error) {
	var out []model.PendingCommand
	err := s.call(ctx, func() { out = s.commands.PendingAll() })
	return out, err
}

func (s *TCPServer) acceptConnections() {
	defer s.wg.Done()
	for {
		nc, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.WithError(err).Warn("error accepting connection")
			time.Sleep(50 * time.Millisecond)
			continue
		}
		if !s.post(func() { s.onAccept(nc) }) {
			nc.Close()
			return
		}
	}
}
