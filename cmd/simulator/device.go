package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"gt06gateway/internal/protocol/gt06"
)

// device plays a GT06 tracker: it logs in, reports heartbeats and positions, and answers relay
// commands.
type device struct {
	imei     string
	interval time.Duration
	reply    string

	mu       sync.Mutex
	serial   uint16
	relayCut bool
	lat, lon float64

	log *logrus.Entry
}

func newDevice(imei string, interval time.Duration, reply string, lat, lon float64) *device {
	return &device{
		imei:     imei,
		interval: interval,
		reply:    reply,
		lat:      lat,
		lon:      lon,
		log:      logrus.WithField("imei", imei),
	}
}

func (d *device) run(ctx context.Context, addr string) error {
	var dialer net.Dialer
	nc, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer nc.Close()
	d.log.WithField("addr", addr).Info("connected")

	var wmu sync.Mutex
	write := func(frame []byte) error {
		wmu.Lock()
		defer wmu.Unlock()
		nc.SetWriteDeadline(time.Now().Add(5 * time.Second))
		_, err := nc.Write(frame)
		return err
	}

	readErr := make(chan error, 1)
	go func() { readErr <- d.readLoop(nc, write) }()

	if err := write(gt06.EncodeFrame(gt06.LoginMsg, loginPayload(d.imei), d.nextSerial())); err != nil {
		return err
	}

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for tick := 0; ; tick++ {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			return err
		case <-ticker.C:
		}

		var frame []byte
		if tick%2 == 0 {
			frame = gt06.EncodeFrame(gt06.HeartbeatMsg, d.heartbeatPayload(), d.nextSerial())
		} else {
			frame = gt06.EncodeFrame(gt06.LocationMsg, d.locationPayload(time.Now().UTC()), d.nextSerial())
		}
		if err := write(frame); err != nil {
			return err
		}
	}
}

func (d *device) readLoop(nc net.Conn, write func([]byte) error) error {
	decoder := gt06.NewDecoder(true)
	r := gt06.NewReassembler(0)
	buf := make([]byte, 1024)
	for {
		n, err := nc.Read(buf)
		if err != nil {
			return err
		}
		frames, err := r.Feed(buf[:n])
		if err != nil {
			d.log.WithError(err).Warn("receive buffer reset")
		}
		for _, frame := range frames {
			msg, err := decoder.Decode(frame)
			if err != nil {
				d.log.WithError(err).Warn("bad frame from server")
				continue
			}
			if msg.Header.Protocol != gt06.CommandMsg {
				d.log.WithFields(logrus.Fields{
					"kind":   gt06.MessageName(msg.Header.Protocol),
					"serial": msg.Header.Serial,
				}).Debug("ack")
				continue
			}
			text := commandText(msg)
			d.log.WithField("command", text).Info("command received")
			d.apply(text)
			if d.reply == "" {
				continue
			}
			payload := append([]byte{0, 0, 0, 0, 0x01}, text+":"+d.reply...)
			if err := write(gt06.EncodeFrame(gt06.CommandResponse2Msg, payload, msg.Header.Serial)); err != nil {
				return err
			}
		}
	}
}

func (d *device) apply(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch strings.TrimSpace(text) {
	case "Relay,1#":
		d.relayCut = true
	case "Relay,0#":
		d.relayCut = false
	}
}

func (d *device) nextSerial() uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.serial++
	return d.serial
}

// commandText extracts the text of a server command: cmdLen(1) + server flag(4) + text.
func commandText(msg *gt06.Message) string {
	payload := msg.Raw[4 : len(msg.Raw)-6]
	if len(payload) < 5 {
		return ""
	}
	return string(payload[5:])
}

func loginPayload(imei string) []byte {
	digits := imei
	if len(digits) < 16 {
		digits = strings.Repeat("0", 16-len(digits)) + digits
	}
	out := make([]byte, 8)
	for i := range out {
		out[i] = (digits[2*i]-'0')<<4 | (digits[2*i+1] - '0')
	}
	return out
}

func (d *device) heartbeatPayload() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	info := byte(0x46) // gps tracking, charging, ignition
	if d.relayCut {
		info |= 0x80
	}
	return []byte{info, 0x05, 0x04, 0x00, 0x01}
}

func (d *device) locationPayload(at time.Time) []byte {
	d.mu.Lock()
	d.lat += 0.0001
	d.lon += 0.0001
	lat, lon := d.lat, d.lon
	d.mu.Unlock()

	p := []byte{
		toBCD(at.Year() % 100), toBCD(int(at.Month())), toBCD(at.Day()),
		toBCD(at.Hour()), toBCD(at.Minute()), toBCD(at.Second()),
		0xC9,
	}
	p = binary.BigEndian.AppendUint32(p, uint32(math.Abs(lat)*1800000))
	p = binary.BigEndian.AppendUint32(p, uint32(math.Abs(lon)*1800000))
	p = append(p, 40)

	flags := uint16(90) | 0x1000
	if lat >= 0 {
		flags |= 0x0400
	}
	if lon < 0 {
		flags |= 0x0800
	}
	p = binary.BigEndian.AppendUint16(p, flags)
	// MCC 724, MNC 6, LAC, cell id
	return append(p, 0x02, 0xD4, 0x06, 0xC5, 0x6D, 0x00, 0xAA, 0x33)
}

func toBCD(v int) byte {
	return byte(v/10)<<4 | byte(v%10)
}
