package recorder

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"

	"gt06gateway/internal/core/model"
)

// NATSSink publishes each record on <prefix>.<kind> and <prefix>.all.
type NATSSink struct {
	nc     *nats.Conn
	prefix string
}

func NewNATSSink(nc *nats.Conn, prefix string) *NATSSink {
	return &NATSSink{nc: nc, prefix: prefix}
}

func (s *NATSSink) Name() string { return "nats" }

func (s *NATSSink) Write(_ context.Context, rec model.FrameRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.nc.Publish(s.prefix+"."+rec.Kind, data); err != nil {
		return err
	}
	return s.nc.Publish(s.prefix+".all", data)
}
