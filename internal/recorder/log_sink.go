package recorder

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"

	"gt06gateway/internal/core/model"
)

// LogSink writes every record as a JSON document to the process log at debug level.
type LogSink struct {
	log *logrus.Entry
}

func NewLogSink() *LogSink {
	return &LogSink{log: logrus.WithField("component", "frames")}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Write(_ context.Context, rec model.FrameRecord) error {
	if !s.log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		return nil
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"kind": rec.Kind, "imei": rec.DeviceIMEI()}).Debug(string(data))
	return nil
}
