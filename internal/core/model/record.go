package model

import (
	"time"
)

// FrameRecord describes one processed inbound frame.
type FrameRecord struct {
	ConnID     uint64        `json:"connId"`
	Peer       string        `json:"peer"`
	IMEI       *string       `json:"imei"`
	Protocol   byte          `json:"protocol"`
	Kind       string        `json:"kind"`
	Serial     uint16        `json:"serial"`
	Raw        string        `json:"raw"`
	Message    any           `json:"message,omitempty"`
	Position   *Position     `json:"position,omitempty"`
	Status     *DeviceStatus `json:"status,omitempty"`
	Error      string        `json:"error,omitempty"`
	ReceivedAt time.Time     `json:"receivedAt"`
}

// DeviceIMEI returns the IMEI or an empty string when the connection has not logged in.
func (r *FrameRecord) DeviceIMEI() string {
	if r.IMEI == nil {
		return ""
	}
	return *r.IMEI
}
