package recorder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"gt06gateway/internal/config"
	"gt06gateway/internal/core/model"
	"gt06gateway/internal/logger"
	"gt06gateway/internal/protocol/gt06"
)

// DeviceLogSink keeps one rotating log file per IMEI, named Log_<imei>.log.
// Frames from connections that have not logged in are skipped.
type DeviceLogSink struct {
	cfg       config.DeviceLogConfig
	formatter logrus.Formatter

	mu      sync.Mutex
	loggers map[string]*deviceLogger
}

type deviceLogger struct {
	log     *logrus.Logger
	rotator *lumberjack.Logger
}

func NewDeviceLogSink(cfg config.DeviceLogConfig, loc *time.Location) (*DeviceLogSink, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create device log directory: %w", err)
	}
	return &DeviceLogSink{
		cfg:       cfg,
		formatter: logger.NewFormatter("text", loc, false),
		loggers:   make(map[string]*deviceLogger),
	}, nil
}

func (s *DeviceLogSink) Name() string { return "device-log" }

// Path returns the log file of imei.
func (s *DeviceLogSink) Path(imei string) string {
	return filepath.Join(s.cfg.Dir, "Log_"+imei+".log")
}

func (s *DeviceLogSink) Write(_ context.Context, rec model.FrameRecord) error {
	imei := rec.DeviceIMEI()
	if imei == "" {
		return nil
	}
	entry := s.logger(imei).WithField("serial", rec.Serial)
	if rec.Error != "" {
		entry = entry.WithField("error", rec.Error)
	}
	entry.Info(describe(rec))
	return nil
}

// Note writes a free-form line to the device's log.
func (s *DeviceLogSink) Note(imei, msg string) {
	if imei == "" {
		return
	}
	s.logger(imei).Info(msg)
}

// Close flushes and closes every open file.
func (s *DeviceLogSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var first error
	for imei, l := range s.loggers {
		if err := l.rotator.Close(); err != nil && first == nil {
			first = err
		}
		delete(s.loggers, imei)
	}
	return first
}

func (s *DeviceLogSink) logger(imei string) *logrus.Logger {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.loggers[imei]; ok {
		return l.log
	}
	rotator := &lumberjack.Logger{
		Filename:   s.Path(imei),
		MaxSize:    s.cfg.MaxSizeMB,
		MaxBackups: s.cfg.MaxBackups,
		LocalTime:  true,
	}
	l := logrus.New()
	l.SetOutput(rotator)
	l.SetFormatter(s.formatter)
	l.SetLevel(logrus.InfoLevel)
	s.loggers[imei] = &deviceLogger{log: l, rotator: rotator}
	return l
}

func describe(rec model.FrameRecord) string {
	switch rec.Protocol {
	case gt06.LoginMsg:
		return fmt.Sprintf("login from %s", rec.Peer)
	case gt06.HeartbeatMsg:
		if st := rec.Status; st != nil && st.Known {
			return fmt.Sprintf("heartbeat: relay cut %t, ignition %t, alarm %s, voltage %s, gsm %s",
				st.RelayCut, st.Ignition, st.Alarm, gt06.VoltageName(st.Voltage), gt06.GSMName(st.GSM))
		}
		return "heartbeat"
	case gt06.LocationMsg, gt06.ExtLocationMsg:
		if p := rec.Position; p != nil {
			return fmt.Sprintf("location %s: lat %.6f lon %.6f speed %.0f course %.0f fixed %t sats %d",
				p.Timestamp.Format(logger.TimeFormat), p.Latitude, p.Longitude, p.Speed, p.Course, p.Valid, p.Satellites)
		}
		return "location"
	case gt06.CommandResponseMsg, gt06.CommandResponse2Msg:
		if r, ok := rec.Message.(*gt06.CommandResponse); ok {
			return fmt.Sprintf("command response: '%s'", r.Text)
		}
		return "command response"
	}
	return fmt.Sprintf("%s frame (protocol 0x%02X): %s", rec.Kind, rec.Protocol, rec.Raw)
}
