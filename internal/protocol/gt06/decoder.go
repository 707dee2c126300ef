package gt06

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"
	"unicode"

	xunicode "golang.org/x/text/encoding/unicode"
)

type bodyDecoder func(payload []byte) (Body, error)

var bodyDecoders = map[byte]bodyDecoder{
	LoginMsg:            decodeLogin,
	HeartbeatMsg:        decodeHeartbeat,
	LocationMsg:         decodeLocation,
	ExtLocationMsg:      decodeExtLocation,
	CommandResponseMsg:  decodeCommandResponse,
	CommandResponse2Msg: decodeCommandResponse2,
}

// Decoder turns complete frames into messages.
type Decoder struct {
	verifyChecksum bool
}

// NewDecoder creates a decoder. When verifyChecksum is set frames with a bad CRC are rejected.
func NewDecoder(verifyChecksum bool) *Decoder {
	return &Decoder{verifyChecksum: verifyChecksum}
}

// Decode validates the frame structure and decodes the body registered for its protocol number.
// A structural failure returns an error and no message. A body that only partially decodes is
// returned with Message.Err set.
func (d *Decoder) Decode(frame []byte) (*Message, error) {
	if len(frame) < MinFrameLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooShort, len(frame))
	}
	if frame[0] != StartByte1 || frame[1] != StartByte2 {
		return nil, ErrBadStartMarker
	}

	length := int(frame[2])
	if length < frameOverhead {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLength, length)
	}
	total := length + frameOverhead
	if total > len(frame) {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrTruncatedFrame, total, len(frame))
	}
	frame = frame[:total]

	if d.verifyChecksum && !VerifyChecksum(frame) {
		return nil, ErrChecksumMismatch
	}

	msg := &Message{
		Header: Header{
			Length:   frame[2],
			Protocol: frame[3],
			Serial:   binary.BigEndian.Uint16(frame[length-1 : length+1]),
		},
		Raw: frame,
	}
	payload := frame[4 : length-1]

	decode, ok := bodyDecoders[msg.Header.Protocol]
	if !ok {
		msg.Body = &Unhandled{Payload: payload}
		return msg, nil
	}
	msg.Body, msg.Err = decode(payload)
	return msg, nil
}

// Acknowledged reports whether a protocol number is answered with an acknowledgement frame.
func Acknowledged(protocol byte) bool {
	switch protocol {
	case LoginMsg, HeartbeatMsg, LocationMsg, ExtLocationMsg:
		return true
	}
	return false
}

func decodeLogin(payload []byte) (Body, error) {
	if len(payload) > 8 {
		payload = payload[:8]
	}
	imei, err := DecodeIMEI(payload)
	return &Login{IMEI: imei}, err
}

// DecodeIMEI converts packed BCD into the digit string, skipping 0xF padding nibbles and
// stripping leading zeros.
func DecodeIMEI(bcd []byte) (string, error) {
	var sb strings.Builder
	for _, b := range bcd {
		for _, nibble := range [2]byte{b >> 4, b & 0x0F} {
			if nibble == 0x0F {
				continue
			}
			if nibble > 9 {
				return "", fmt.Errorf("%w: nibble %X", ErrInvalidIMEI, nibble)
			}
			sb.WriteByte('0' + nibble)
		}
	}
	imei := strings.TrimLeft(sb.String(), "0")
	if imei == "" {
		return "", ErrInvalidIMEI
	}
	return imei, nil
}

// DecodeTerminalInfo splits the terminal-information byte into its flags.
func DecodeTerminalInfo(b byte) TerminalInfo {
	info := TerminalInfo{
		Raw:         b,
		RelayCut:    b&0x80 != 0,
		GPSTracking: b&0x40 != 0,
		Charging:    b&0x04 != 0,
		Ignition:    b&0x02 != 0,
		Armed:       b&0x01 != 0,
	}
	switch (b >> 3) & 0x07 {
	case 0x04:
		info.Alarm = AlarmSOS
	case 0x03:
		info.Alarm = AlarmLowBattery
	case 0x02:
		info.Alarm = AlarmPowerCut
	case 0x01:
		info.Alarm = AlarmShock
	default:
		info.Alarm = AlarmNormal
	}
	return info
}

func decodeHeartbeat(payload []byte) (Body, error) {
	hb := &Heartbeat{}
	if len(payload) > 0 {
		hb.Terminal = DecodeTerminalInfo(payload[0])
	}
	if len(payload) > 1 {
		hb.Voltage = payload[1]
	}
	if len(payload) > 2 {
		hb.GSM = payload[2]
	}
	if len(payload) < statusBlockLength {
		return hb, fmt.Errorf("%w: %d bytes", ErrShortStatusBlock, len(payload))
	}
	hb.Extension = append([]byte(nil), payload[3:]...)
	return hb, nil
}

const (
	// statusBlockLength is terminal(1) + voltage(1) + gsm(1) + alarm/language(1).
	statusBlockLength = 4
	// gpsBlockLength is the GPS part of both location variants; the field order differs.
	gpsBlockLength = 18
)

func decodeGPSBlock(payload []byte) (*Location, uint16, error) {
	loc := &Location{}
	if len(payload) < gpsBlockLength {
		return loc, 0, fmt.Errorf("%w: %d bytes", ErrShortLocation, len(payload))
	}

	var err error
	loc.Timestamp, err = decodeDateTime(payload[:6])
	loc.Satellites = payload[6] & 0x0F
	loc.Latitude = float64(binary.BigEndian.Uint32(payload[7:11])) / coordinateDivisor
	loc.Longitude = float64(binary.BigEndian.Uint32(payload[11:15])) / coordinateDivisor
	loc.Speed = payload[15]
	flags := binary.BigEndian.Uint16(payload[16:18])
	loc.Course = flags & 0x03FF
	return loc, flags, err
}

func decodeLocation(payload []byte) (Body, error) {
	loc, flags, err := decodeGPSBlock(payload)
	if len(payload) < gpsBlockLength {
		return loc, err
	}
	north := flags&0x0400 != 0
	west := flags&0x0800 != 0
	loc.GPSFixed = flags&0x1000 != 0
	if !north {
		loc.Latitude = -loc.Latitude
	}
	if west {
		loc.Longitude = -loc.Longitude
	}
	return loc, err
}

// decodeExtLocation reads datetime(6) lat(4) lon(4) speed(1) course(2) satellites(1), then the
// LBS block and the terminal-info byte. There is no GPS-quantity byte ahead of the latitude.
func decodeExtLocation(payload []byte) (Body, error) {
	loc := &Location{Extended: true}
	if len(payload) < gpsBlockLength {
		return loc, fmt.Errorf("%w: %d bytes", ErrShortLocation, len(payload))
	}

	ts, err := decodeDateTime(payload[:6])
	loc.Timestamp = ts
	loc.Latitude = float64(binary.BigEndian.Uint32(payload[6:10])) / coordinateDivisor
	loc.Longitude = float64(binary.BigEndian.Uint32(payload[10:14])) / coordinateDivisor
	loc.Speed = payload[14]
	flags := binary.BigEndian.Uint16(payload[15:17])
	loc.Satellites = payload[17]

	// bits 4 and 5 are read as flags and still count towards the course value
	loc.Course = flags & 0x03FF
	loc.GPSFixed = flags&0x0010 != 0
	loc.Ignition = flags&0x0020 != 0
	if flags&0x0800 != 0 {
		loc.Latitude = -loc.Latitude
	}
	if flags&0x0400 != 0 {
		loc.Longitude = -loc.Longitude
	}

	if len(payload) >= gpsBlockLength+8 {
		lbs := payload[gpsBlockLength:]
		loc.Cell = &CellInfo{
			MCC:    binary.BigEndian.Uint16(lbs[0:2]),
			MNC:    lbs[2],
			LAC:    binary.BigEndian.Uint16(lbs[3:5]),
			CellID: uint32(lbs[5])<<16 | uint32(lbs[6])<<8 | uint32(lbs[7]),
		}
	}

	if len(payload) <= terminalInfoOffset {
		return loc, joinErr(err, fmt.Errorf("%w: %d bytes", ErrShortTerminalInfo, len(payload)))
	}
	info := DecodeTerminalInfo(payload[terminalInfoOffset])
	loc.Terminal = &info
	return loc, err
}

func decodeCommandResponse(payload []byte) (Body, error) {
	return &CommandResponse{Text: CleanText(payload)}, nil
}

// decodeCommandResponse2 cleans the whole payload like 0x15. When the payload carries a server
// flag(4) and the UTF-16 encoding marker, the content after the marker is converted first and the
// cleaned prefix is kept in front of it.
func decodeCommandResponse2(payload []byte) (Body, error) {
	if len(payload) <= 5 || payload[4] != EncodingUTF16 || (len(payload)-5)%2 != 0 {
		return &CommandResponse{Text: CleanText(payload)}, nil
	}
	content, err := xunicode.UTF16(xunicode.BigEndian, xunicode.IgnoreBOM).NewDecoder().Bytes(payload[5:])
	if err != nil {
		return &CommandResponse{Text: CleanText(payload)}, nil
	}
	return &CommandResponse{Text: CleanText(payload[:5]) + CleanText(content)}, nil
}

// CleanText converts a command response payload into printable text.
func CleanText(b []byte) string {
	s := strings.ToValidUTF8(string(b), "")
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

func decodeDateTime(b []byte) (time.Time, error) {
	year := 2000 + bcd(b[0])
	month, day := bcd(b[1]), bcd(b[2])
	hour, minute, second := bcd(b[3]), bcd(b[4]), bcd(b[5])
	ts := time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)
	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 || second > 59 {
		return ts, fmt.Errorf("%w: % X", ErrInvalidTimestamp, b)
	}
	return ts, nil
}

func bcd(b byte) int {
	return int(b>>4)*10 + int(b&0x0F)
}

func joinErr(a, b error) error {
	if a == nil {
		return b
	}
	return fmt.Errorf("%w; %w", a, b)
}
