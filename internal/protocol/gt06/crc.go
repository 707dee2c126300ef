package gt06

// Checksum computes the CRC-16/X.25 used by GT06 frames: polynomial 0x1021, initial value 0xFFFF,
// reflected input and output, final XOR 0xFFFF.
func Checksum(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(reflect8(b)) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return reflect16(crc) ^ 0xFFFF
}

// VerifyChecksum reports whether the checksum carried by a complete frame matches its contents.
// The checksum covers the length byte through the serial number.
func VerifyChecksum(frame []byte) bool {
	if len(frame) < MinFrameLength {
		return false
	}
	end := len(frame) - 4
	want := uint16(frame[end])<<8 | uint16(frame[end+1])
	return Checksum(frame[2:end]) == want
}

func reflect8(b byte) byte {
	var r byte
	for i := 0; i < 8; i++ {
		if b&(1<<i) != 0 {
			r |= 1 << (7 - i)
		}
	}
	return r
}

func reflect16(v uint16) uint16 {
	var r uint16
	for i := 0; i < 16; i++ {
		if v&(1<<i) != 0 {
			r |= 1 << (15 - i)
		}
	}
	return r
}
