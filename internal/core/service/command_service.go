package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"gt06gateway/internal/core/model"
	"gt06gateway/internal/core/session"
	"gt06gateway/internal/protocol/gt06"
)

var (
	ErrDeviceOffline = errors.New("device not connected")
	ErrMissingIMEI   = errors.New("imei required")
)

// Transport queues an outbound frame on a live connection.
type Transport interface {
	Send(connID uint64, frame []byte) error
}

// Scheduler runs fn on the owning event loop after d.
type Scheduler interface {
	After(d time.Duration, fn func())
}

// Fulfiller is told when a command it submitted has been confirmed by the device.
type Fulfiller interface {
	Fulfill(ctx context.Context, cmd model.PendingCommand) error
}

// PendingStore persists pending commands without blocking the caller.
type PendingStore interface {
	Save(cmd model.PendingCommand)
	Delete(imei string)
}

// CommandService tracks relay commands per device: Idle until a command is sent, Sent until the
// device confirms it. It is driven from the connection engine loop and is not safe for
// concurrent use.
type CommandService interface {
	Submit(req model.CommandRequest) (*model.PendingCommand, error)
	HandleResponse(s *session.Session, text string) (*model.PendingCommand, bool)
	Pending(imei string) (*model.PendingCommand, bool)
	PendingAll() []model.PendingCommand
	Restore(cmds []*model.PendingCommand)
	RegisterFulfiller(source string, f Fulfiller)
}

type CommandServiceOptions struct {
	BatteryLockDelay time.Duration
	Store            PendingStore
	Now              func() time.Time
}

type commandService struct {
	sessions   *session.Registry
	transport  Transport
	scheduler  Scheduler
	store      PendingStore
	fulfillers map[string]Fulfiller
	pending    map[string]*model.PendingCommand
	lockDelay  time.Duration
	now        func() time.Time
	log        *logrus.Entry
}

func NewCommandService(sessions *session.Registry, transport Transport, scheduler Scheduler, opts CommandServiceOptions) CommandService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &commandService{
		sessions:   sessions,
		transport:  transport,
		scheduler:  scheduler,
		store:      opts.Store,
		fulfillers: make(map[string]Fulfiller),
		pending:    make(map[string]*model.PendingCommand),
		lockDelay:  opts.BatteryLockDelay,
		now:        opts.Now,
		log:        logrus.WithField("component", "commands"),
	}
}

func (s *commandService) RegisterFulfiller(source string, f Fulfiller) {
	s.fulfillers[source] = f
}

// Submit sends the command to the device's live connection and records it as pending, replacing
// any earlier unconfirmed command.
func (s *commandService) Submit(req model.CommandRequest) (*model.PendingCommand, error) {
	log := s.log.WithFields(logrus.Fields{"imei": req.IMEI, "source": req.Source, "ref": req.Ref})

	kind, err := model.ParseCommandKind(req.Token)
	if err != nil {
		log.WithError(err).Warn("command rejected")
		return nil, err
	}
	if req.IMEI == "" {
		return nil, ErrMissingIMEI
	}

	sess, ok := s.sessions.ByIMEI(req.IMEI)
	if !ok {
		log.Warn("command rejected, device offline")
		return nil, fmt.Errorf("%w: %s", ErrDeviceOffline, req.IMEI)
	}

	text := kind.Text()
	serial := sess.NextCommandSerial()
	frame, err := gt06.Command(text, serial)
	if err != nil {
		return nil, err
	}
	if err := s.transport.Send(sess.ID, frame); err != nil {
		return nil, fmt.Errorf("send command: %w", err)
	}

	cmd := &model.PendingCommand{
		IMEI:   req.IMEI,
		Kind:   kind,
		Text:   text,
		Serial: serial,
		Ref:    req.Ref,
		Source: req.Source,
		SentAt: s.now(),
	}
	if prev, ok := s.pending[req.IMEI]; ok {
		log.WithField("previous", prev.Kind).Info("replacing unconfirmed command")
	}
	s.pending[req.IMEI] = cmd
	if s.store != nil {
		s.store.Save(*cmd)
	}

	log.WithFields(logrus.Fields{
		"kind":   kind,
		"serial": serial,
		"frame":  fmt.Sprintf("%X", frame),
	}).Info("command sent")

	out := *cmd
	return &out, nil
}

// IsConfirmation reports whether a command response text acknowledges success.
func IsConfirmation(text string) bool {
	t := strings.ToLower(text)
	return strings.Contains(t, "success") || strings.Contains(t, "ok")
}

// HandleResponse processes a command response from a device. It returns the confirmed command
// when the response completes the pending one.
func (s *commandService) HandleResponse(sess *session.Session, text string) (*model.PendingCommand, bool) {
	imei := sess.IMEI()
	if imei == "" {
		return nil, false
	}
	cmd, ok := s.pending[imei]
	if !ok {
		return nil, false
	}
	log := s.log.WithFields(logrus.Fields{"imei": imei, "kind": cmd.Kind, "text": text})
	if !IsConfirmation(text) {
		log.Info("command response is not a confirmation")
		return nil, false
	}

	delete(s.pending, imei)
	if s.store != nil {
		s.store.Delete(imei)
	}
	log.Info("command confirmed")
	s.fulfill(*cmd)

	if cmd.Kind == model.CommandBatteryCheck {
		followUp := model.CommandRequest{IMEI: imei, Token: model.TokenLock, Ref: cmd.Ref, Source: cmd.Source}
		s.scheduler.After(s.lockDelay, func() {
			if _, err := s.Submit(followUp); err != nil {
				s.log.WithError(err).WithField("imei", imei).Warn("lock after battery check not sent")
			}
		})
	}

	out := *cmd
	return &out, true
}

func (s *commandService) fulfill(cmd model.PendingCommand) {
	f, ok := s.fulfillers[cmd.Source]
	if !ok {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := f.Fulfill(ctx, cmd); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{"imei": cmd.IMEI, "source": cmd.Source}).Warn("failed to report confirmation")
		}
	}()
}

func (s *commandService) Pending(imei string) (*model.PendingCommand, bool) {
	cmd, ok := s.pending[imei]
	if !ok {
		return nil, false
	}
	out := *cmd
	return &out, true
}

func (s *commandService) PendingAll() []model.PendingCommand {
	out := make([]model.PendingCommand, 0, len(s.pending))
	for _, cmd := range s.pending {
		out = append(out, *cmd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IMEI < out[j].IMEI })
	return out
}

// Restore loads pending commands persisted by an earlier run. They stay pending until the device
// reconnects and confirms.
func (s *commandService) Restore(cmds []*model.PendingCommand) {
	for _, cmd := range cmds {
		if cmd == nil || cmd.IMEI == "" {
			continue
		}
		c := *cmd
		s.pending[c.IMEI] = &c
	}
	if len(cmds) > 0 {
		s.log.WithField("count", len(s.pending)).Info("pending commands restored")
	}
}
