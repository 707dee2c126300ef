// Package session holds per-connection device state. Sessions and the registry are owned by the
// connection engine loop and are not safe for concurrent use.
package session

import (
	"time"

	"gt06gateway/internal/core/model"
	"gt06gateway/internal/protocol/gt06"
)

// Session is the state of one device connection.
type Session struct {
	ID          uint64
	Peer        string
	ConnectedAt time.Time

	imei     string
	status   model.DeviceStatus
	lastSeen time.Time
	serial   uint16
}

func newSession(id uint64, peer string, now time.Time) *Session {
	return &Session{
		ID:          id,
		Peer:        peer,
		ConnectedAt: now,
		status:      model.UnknownStatus(),
		lastSeen:    now,
		serial:      1,
	}
}

// IMEI returns the identity announced at login, or "" before login.
func (s *Session) IMEI() string {
	return s.imei
}

// LoggedIn reports whether the device has sent a valid login.
func (s *Session) LoggedIn() bool {
	return s.imei != ""
}

// RefreshStatus replaces the whole status cache from a heartbeat.
func (s *Session) RefreshStatus(info gt06.TerminalInfo, voltage, gsm uint8, at time.Time) {
	s.status = model.DeviceStatus{
		Known:      true,
		Ignition:   info.Ignition,
		RelayCut:   info.RelayCut,
		Alarm:      info.Alarm,
		Charging:   info.Charging,
		LowBattery: info.LowBattery(),
		Voltage:    voltage,
		GSM:        gsm,
		UpdatedAt:  at,
	}
	s.lastSeen = at
}

// RefreshTerminal updates the status cache from an extended location report. Ignition comes from
// the report's course word; voltage and GSM levels are not part of the report and are kept.
func (s *Session) RefreshTerminal(info gt06.TerminalInfo, ignition bool, at time.Time) {
	s.status.Known = true
	s.status.Ignition = ignition
	s.status.RelayCut = info.RelayCut
	s.status.Alarm = info.Alarm
	s.status.Charging = info.Charging
	s.status.LowBattery = info.LowBattery()
	s.status.UpdatedAt = at
	s.lastSeen = at
}

// Touch records activity without changing the status cache.
func (s *Session) Touch(at time.Time) {
	s.status.UpdatedAt = at
	s.lastSeen = at
}

// Status returns a copy of the status cache.
func (s *Session) Status() model.DeviceStatus {
	return s.status
}

// LastSeen returns the time of the last frame received from the device.
func (s *Session) LastSeen() time.Time {
	return s.lastSeen
}

// NextCommandSerial returns the serial for the next outbound command and advances the counter.
// The counter wraps from 0xFFFF to 1; zero is never issued.
func (s *Session) NextCommandSerial() uint16 {
	serial := s.serial
	s.serial++
	if s.serial == 0 {
		s.serial = 1
	}
	return serial
}

// View returns a read-only snapshot of the session.
func (s *Session) View() model.Device {
	return model.Device{
		ConnID:        s.ID,
		Peer:          s.Peer,
		IMEI:          s.imei,
		ConnectedAt:   s.ConnectedAt,
		LastSeen:      s.lastSeen,
		CommandSerial: s.serial,
		Status:        s.status,
	}
}
