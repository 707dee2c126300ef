package recorder

import (
	"context"
	"strconv"
	"time"

	"gt06gateway/internal/cache"
	"gt06gateway/internal/core/model"
)

const (
	sessionKeyPrefix = "gt06:sess:"
	shadowKeyPrefix  = "gt06:shadow:"
)

// SessionEntry is stored under gt06:sess:<imei> while the device keeps sending frames.
type SessionEntry struct {
	ConnID   uint64    `json:"connId"`
	Peer     string    `json:"peer"`
	LastSeen time.Time `json:"lastSeen"`
}

// RedisSink mirrors live sessions and the latest reported state of each device into Redis.
// Session keys expire after sessionTTL without traffic, shadow hashes after shadowTTL.
type RedisSink struct {
	client     *cache.Client
	sessionTTL time.Duration
	shadowTTL  time.Duration
}

func NewRedisSink(client *cache.Client, sessionTTL, shadowTTL time.Duration) *RedisSink {
	return &RedisSink{client: client, sessionTTL: sessionTTL, shadowTTL: shadowTTL}
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Write(ctx context.Context, rec model.FrameRecord) error {
	imei := rec.DeviceIMEI()
	if imei == "" || !s.client.Enabled() {
		return nil
	}

	entry := SessionEntry{ConnID: rec.ConnID, Peer: rec.Peer, LastSeen: rec.ReceivedAt}
	if err := s.client.Set(ctx, sessionKeyPrefix+imei, entry, s.sessionTTL); err != nil {
		return err
	}

	fields := map[string]interface{}{
		"ts":   rec.ReceivedAt.Unix(),
		"peer": rec.Peer,
		"kind": rec.Kind,
	}
	if st := rec.Status; st != nil && st.Known {
		fields["relayCut"] = strconv.FormatBool(st.RelayCut)
		fields["ignition"] = strconv.FormatBool(st.Ignition)
		fields["alarm"] = st.Alarm
		fields["charging"] = strconv.FormatBool(st.Charging)
		fields["lowBattery"] = strconv.FormatBool(st.LowBattery)
		if st.Voltage != model.LevelUnknown {
			fields["voltage"] = int(st.Voltage)
		}
		if st.GSM != model.LevelUnknown {
			fields["gsm"] = int(st.GSM)
		}
	}
	if p := rec.Position; p != nil {
		fields["lat"] = p.Latitude
		fields["lon"] = p.Longitude
		fields["speed"] = p.Speed
		fields["course"] = p.Course
		fields["fixed"] = strconv.FormatBool(p.Valid)
		fields["fixTs"] = p.Timestamp.Unix()
	}
	return s.client.SetHash(ctx, shadowKeyPrefix+imei, fields, s.shadowTTL)
}

// Session reads the mirrored session of imei.
func (s *RedisSink) Session(ctx context.Context, imei string) (*SessionEntry, error) {
	var entry SessionEntry
	if err := s.client.Get(ctx, sessionKeyPrefix+imei, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Shadow reads the mirrored state hash of imei.
func (s *RedisSink) Shadow(ctx context.Context, imei string) (map[string]string, error) {
	return s.client.GetHash(ctx, shadowKeyPrefix+imei)
}
