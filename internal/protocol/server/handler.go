package server

import (
	"encoding/hex"

	"github.com/imroc/biu"
	"github.com/sirupsen/logrus"

	"gt06gateway/internal/core/model"
	"gt06gateway/internal/core/session"
	"gt06gateway/internal/protocol/gt06"
)

// onFrame processes one complete frame from connection id. It runs on the event loop.
func (s *TCPServer) onFrame(id uint64, frame []byte) {
	c, ok := s.conns[id]
	if !ok {
		return
	}
	sess, ok := s.registry.Get(id)
	if !ok {
		return
	}

	now := s.now()
	rec := model.FrameRecord{
		ConnID:     id,
		Peer:       sess.Peer,
		Raw:        hex.EncodeToString(frame),
		ReceivedAt: now,
	}
	log := s.log.WithFields(logrus.Fields{"conn_id": id, "peer": sess.Peer})
	if sess.LoggedIn() {
		log = log.WithField("imei", sess.IMEI())
	}

	msg, err := s.decoder.Decode(frame)
	if err != nil {
		log.WithError(err).WithField("raw", rec.Raw).Warn("frame dropped")
		if len(frame) > 3 {
			rec.Protocol = frame[3]
		}
		rec.Kind = "invalid"
		rec.Error = err.Error()
		s.record(sess, rec)
		return
	}

	proto := msg.Header.Protocol
	rec.Protocol = proto
	rec.Serial = msg.Header.Serial
	rec.Kind = gt06.MessageName(proto)
	rec.Message = msg.Body
	log = log.WithFields(logrus.Fields{"protocol": proto, "serial": msg.Header.Serial})

	var loggedIn string
	switch body := msg.Body.(type) {
	case *gt06.Login:
		if msg.Err == nil {
			s.login(c, sess, body.IMEI)
			loggedIn = body.IMEI
			log = log.WithField("imei", body.IMEI)
			log.Info("device logged in")
		}

	case *gt06.Heartbeat:
		if msg.Err == nil {
			sess.RefreshStatus(body.Terminal, body.Voltage, body.GSM, now)
		} else {
			sess.Touch(now)
		}
		log.WithFields(logrus.Fields{
			"terminal": biu.ToBinaryString(body.Terminal.Raw),
			"voltage":  gt06.VoltageName(body.Voltage),
			"gsm":      gt06.GSMName(body.GSM),
		}).Debug("heartbeat")

	case *gt06.Location:
		if body.Extended && body.Terminal != nil {
			sess.RefreshTerminal(*body.Terminal, body.Ignition, now)
		} else {
			sess.Touch(now)
		}
		rec.Position = position(sess, body)

	case *gt06.CommandResponse:
		sess.Touch(now)
		log.WithField("text", body.Text).Info("command response")
		s.commands.HandleResponse(sess, body.Text)

	case *gt06.Unhandled:
		log.Info("unhandled protocol")
	}

	if msg.Err != nil {
		log.WithError(msg.Err).Warn("partially decoded frame")
		rec.Error = msg.Err.Error()
	}

	if gt06.Acknowledged(proto) {
		if err := s.Send(id, gt06.Ack(proto, msg.Header.Serial)); err != nil {
			log.WithError(err).Warn("ack not sent")
		}
	}

	s.record(sess, rec)

	if loggedIn != "" {
		for _, o := range s.observers {
			o.DeviceLoggedIn(loggedIn)
		}
	}
}

// login binds the IMEI to the session. A live connection still holding the same IMEI is closed.
func (s *TCPServer) login(c *conn, sess *session.Session, imei string) {
	prev := s.registry.Login(sess, imei, s.now())
	if prev == nil {
		return
	}
	if old, ok := s.conns[prev.ID]; ok && old != c {
		s.closeConn(old, errSupersededLogin)
	}
}

func (s *TCPServer) record(sess *session.Session, rec model.FrameRecord) {
	if imei := sess.IMEI(); imei != "" {
		rec.IMEI = &imei
		status := sess.Status()
		rec.Status = &status
	}
	if s.recorder != nil {
		s.recorder.Record(rec)
	}
}

func position(sess *session.Session, loc *gt06.Location) *model.Position {
	return &model.Position{
		IMEI:       sess.IMEI(),
		Timestamp:  loc.Timestamp,
		Latitude:   loc.Latitude,
		Longitude:  loc.Longitude,
		Speed:      float64(loc.Speed),
		Course:     float64(loc.Course),
		Valid:      loc.GPSFixed,
		Satellites: loc.Satellites,
		Extended:   loc.Extended,
		Status:     sess.Status(),
	}
}
