package gt06

import (
	"encoding/binary"
	"fmt"
)

// maxCommandText keeps the frame length inside the single length byte.
const maxCommandText = 0xFF - 10

// EncodeFrame wraps a protocol number, payload and serial into a complete frame with checksum.
func EncodeFrame(protocol byte, payload []byte, serial uint16) []byte {
	length := 1 + len(payload) + 2 + 2
	frame := make([]byte, 0, length+frameOverhead)
	frame = append(frame, StartByte1, StartByte2, byte(length), protocol)
	frame = append(frame, payload...)
	frame = binary.BigEndian.AppendUint16(frame, serial)
	frame = binary.BigEndian.AppendUint16(frame, Checksum(frame[2:]))
	return append(frame, EndByte1, EndByte2)
}

// Ack builds the acknowledgement for an inbound frame, echoing its protocol number and serial.
func Ack(protocol byte, serial uint16) []byte {
	return EncodeFrame(protocol, nil, serial)
}

// Command builds a server command frame (protocol 0x80) carrying ASCII command text.
func Command(text string, serial uint16) ([]byte, error) {
	if len(text) > maxCommandText {
		return nil, fmt.Errorf("gt06: command text too long: %d bytes", len(text))
	}
	payload := make([]byte, 0, 5+len(text))
	payload = append(payload, byte(4+len(text)), 0, 0, 0, 0)
	payload = append(payload, text...)
	return EncodeFrame(CommandMsg, payload, serial), nil
}
