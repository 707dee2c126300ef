package model

import (
	"time"
)

// LevelUnknown marks a voltage or GSM level that no heartbeat has reported yet.
const LevelUnknown uint8 = 0xFF

// DeviceStatus is the cached terminal status of a connected device.
type DeviceStatus struct {
	Known      bool      `json:"known" bson:"known"`
	Ignition   bool      `json:"ignition" bson:"ignition"`
	RelayCut   bool      `json:"relayCut" bson:"relayCut"`
	Alarm      string    `json:"alarm" bson:"alarm"`
	Charging   bool      `json:"charging" bson:"charging"`
	LowBattery bool      `json:"lowBattery" bson:"lowBattery"`
	Voltage    uint8     `json:"voltage" bson:"voltage"`
	GSM        uint8     `json:"gsm" bson:"gsm"`
	UpdatedAt  time.Time `json:"updatedAt" bson:"updatedAt"`
}

// UnknownStatus returns the status of a device that has not reported yet.
func UnknownStatus() DeviceStatus {
	return DeviceStatus{Voltage: LevelUnknown, GSM: LevelUnknown}
}

// Device is a read-only view of a live device connection.
type Device struct {
	ConnID        uint64          `json:"connId"`
	Peer          string          `json:"peer"`
	IMEI          string          `json:"imei,omitempty"`
	ConnectedAt   time.Time       `json:"connectedAt"`
	LastSeen      time.Time       `json:"lastSeen"`
	CommandSerial uint16          `json:"commandSerial"`
	Status        DeviceStatus    `json:"status"`
	Pending       *PendingCommand `json:"pending,omitempty"`
}

// DeviceRecord is the persisted summary of a device that has logged in at least once.
type DeviceRecord struct {
	IMEI      string        `json:"imei" bson:"imei"`
	FirstSeen time.Time     `json:"firstSeen" bson:"firstSeen"`
	LastSeen  time.Time     `json:"lastSeen" bson:"lastSeen"`
	LastPeer  string        `json:"lastPeer" bson:"lastPeer"`
	Frames    int64         `json:"frames" bson:"frames"`
	Status    *DeviceStatus `json:"status,omitempty" bson:"status,omitempty"`
	Position  *Position     `json:"position,omitempty" bson:"position,omitempty"`
}

// DeviceSighting is one frame's contribution to a DeviceRecord.
type DeviceSighting struct {
	IMEI     string
	Peer     string
	At       time.Time
	Status   *DeviceStatus
	Position *Position
}
