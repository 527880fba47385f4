package icard

// crc16 computes CRC-16/CCITT (poly 0x8408, init 0xFFFF) over everything
// except the two trailing CRC placeholder bytes.
func crc16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data[:len(data)-2] {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&0x0001 != 0 {
				crc = (crc >> 1) ^ 0x8408
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// buildFrame assembles [len, addr, cmd, data..., crcL, crcH] where len
// counts every byte after itself.
func buildFrame(cmd byte, data []byte) []byte {
	frame := make([]byte, 0, len(data)+5)
	frame = append(frame, byte(len(data)+4), 0x00, cmd)
	frame = append(frame, data...)
	frame = append(frame, 0x00, 0x00)
	return sealFrame(frame)
}

// inventoryFrame is the periodic poll: Q-value 4 with the configured
// session, default target and antenna, short scan window.
func inventoryFrame(session byte) []byte {
	return sealFrame([]byte{0x09, 0x00, cmdInventory, 0x04, session, 0x00, 0x80, 0x0A, 0x00, 0x00})
}

func sealFrame(frame []byte) []byte {
	crc := crc16(frame)
	frame[len(frame)-2] = byte(crc & 0xFF)
	frame[len(frame)-1] = byte(crc >> 8)
	return frame
}
