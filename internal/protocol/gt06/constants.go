// Package gt06 implements the GT06 binary tracker protocol: framing, checksum, decoding of inbound
// messages and encoding of acknowledgements and relay commands.
package gt06

// Packet markers
const (
	StartByte1 = 0x78
	StartByte2 = 0x78
	EndByte1   = 0x0D
	EndByte2   = 0x0A
)

// Protocol numbers
const (
	LoginMsg            = 0x01
	LocationMsg         = 0x12
	HeartbeatMsg        = 0x13
	CommandResponseMsg  = 0x15
	CommandResponse2Msg = 0x21
	ExtLocationMsg      = 0x22
	CommandMsg          = 0x80
)

// Content encodings of a 0x21 command response.
const (
	EncodingASCII byte = 0x01
	EncodingUTF16 byte = 0x02
)

const (
	// MinFrameLength is start(2) + len(1) + proto(1) + serial(2) + crc(2) + stop(2).
	MinFrameLength = 10

	// frameOverhead is the number of frame bytes not counted by the length byte.
	frameOverhead = 5

	// coordinateDivisor turns the raw 32-bit coordinate into decimal degrees.
	coordinateDivisor = 1800000.0

	// terminalInfoOffset is the position of the terminal-info byte in an extended location payload.
	terminalInfoOffset = 26
)

// Alarm classes carried in bits 5..3 of the terminal-info byte.
const (
	AlarmNormal     = "normal"
	AlarmSOS        = "sos"
	AlarmLowBattery = "lowBattery"
	AlarmPowerCut   = "powerCut"
	AlarmShock      = "shock"
)

var voltageNames = [...]string{
	"no power",
	"extremely low",
	"very low",
	"low",
	"medium",
	"high",
	"full",
}

var gsmNames = [...]string{
	"no signal",
	"extremely weak",
	"weak",
	"good",
	"strong",
}

// MessageName returns a human-readable name for a protocol number.
func MessageName(protocol byte) string {
	switch protocol {
	case LoginMsg:
		return "login"
	case LocationMsg:
		return "location"
	case HeartbeatMsg:
		return "heartbeat"
	case ExtLocationMsg:
		return "location_ext"
	case CommandResponseMsg, CommandResponse2Msg:
		return "command_response"
	case CommandMsg:
		return "command"
	default:
		return "unknown"
	}
}

// VoltageName describes a voltage level code.
func VoltageName(code uint8) string {
	if int(code) < len(voltageNames) {
		return voltageNames[code]
	}
	return "unknown"
}

// GSMName describes a GSM signal level code.
func GSMName(code uint8) string {
	if int(code) < len(gsmNames) {
		return gsmNames[code]
	}
	return "unknown"
}
