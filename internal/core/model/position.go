package model

import (
	"time"
)

// Position is a location fix together with the device status known when it was received.
// Basic reports carry no status of their own, so Status is the session cache at that moment.
type Position struct {
	IMEI       string       `json:"imei" bson:"imei"`
	Timestamp  time.Time    `json:"timestamp" bson:"timestamp"`
	Latitude   float64      `json:"latitude" bson:"latitude"`
	Longitude  float64      `json:"longitude" bson:"longitude"`
	Speed      float64      `json:"speed" bson:"speed"`
	Course     float64      `json:"course" bson:"course"`
	Valid      bool         `json:"valid" bson:"valid"`
	Satellites uint8        `json:"satellites" bson:"satellites"`
	Extended   bool         `json:"extended" bson:"extended"`
	Status     DeviceStatus `json:"status" bson:"status"`
}
