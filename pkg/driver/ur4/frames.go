package ur4

import "encoding/hex"

var (
	framePrefix = []byte{0xA5, 0x5A}
	frameSuffix = []byte{0x0D, 0x0A}
)

const tagFrameLen = 37

// sealBCC stores the XOR of the payload bytes at position -3.
func sealBCC(frame []byte) {
	var bcc byte
	for _, b := range frame[2 : len(frame)-3] {
		bcc ^= b
	}
	frame[len(frame)-3] = bcc
}

func frameStartInventory() []byte {
	return []byte{0xA5, 0x5A, 0x00, 0x0A, 0x82, 0x00, 0x00, 0x00, 0x0D, 0x0A}
}

func frameStopInventory1() []byte {
	return []byte{0xA5, 0x5A, 0x00, 0x08, 0x8C, 0x00, 0x0D, 0x0A}
}

func frameStopInventory2() []byte {
	return []byte{0xA5, 0x5A, 0x00, 0x09, 0x8D, 0x01, 0x00, 0x0D, 0x0A}
}

func frameTemperature() []byte {
	return []byte{0xA5, 0x5A, 0x00, 0x08, 0x34, 0x00, 0x0D, 0x0A}
}

func frameGPIState() []byte {
	return []byte{0xA5, 0x5A, 0x00, 0x09, 0xA1, 0x0A, 0x00, 0x0D, 0x0A}
}

func frameGPO(state bool) []byte {
	v := byte(0x00)
	if state {
		v = 0x01
	}
	return []byte{0xA5, 0x5A, 0x00, 0x0C, 0xA1, 0x09, 0x00, 0x00, v, 0x00, 0x0D, 0x0A}
}

func frameRegion() []byte {
	return []byte{0xA5, 0x5A, 0x00, 0x0A, 0x2C, 0x01, 0x3C, 0x00, 0x0D, 0x0A}
}

func frameInventoryMode() []byte {
	return []byte{0xA5, 0x5A, 0x00, 0x0C, 0x70, 0x01, 0x01, 0x00, 0x00, 0x00, 0x0D, 0x0A}
}

// frameSessionTarget packs session into the high nibble and the target A
// selector into the low nibble.
func frameSessionTarget(session int) []byte {
	ab := byte(session<<4) | 0x03
	return []byte{0xA5, 0x5A, 0x00, 0x0C, 0x20, 0x01, 0x60, 0xF4, ab, 0x00, 0x0D, 0x0A}
}

// frameAntennaMask enables antennas by bitmask (bit 0 = port 1). An empty
// mask falls back to port 1.
func frameAntennaMask(mask byte) []byte {
	if mask == 0 {
		mask = 0x01
	}
	return []byte{0xA5, 0x5A, 0x00, 0x0D, 0x28, 0x01, 0x00, mask, 0x00, 0x00, 0x00, 0x0D, 0x0A}
}

func frameCommandMode() []byte {
	return []byte{0xA5, 0x5A, 0x00, 0x0A, 0xA1, 0x05, 0x00, 0x00, 0x0D, 0x0A}
}

func frameTagFocus() []byte {
	return []byte{0xA5, 0x5A, 0x00, 0x0A, 0x60, 0x00, 0x00, 0x00, 0x0D, 0x0A}
}

func frameFastID1() []byte {
	return []byte{0xA5, 0x5A, 0x00, 0x0A, 0x5C, 0x01, 0x00, 0x00, 0x0D, 0x0A}
}

func frameFastID2() []byte {
	return []byte{0xA5, 0x5A, 0x00, 0x0A, 0x60, 0x00, 0x00, 0x00, 0x0D, 0x0A}
}

func frameFastID3() []byte {
	return []byte{0xA5, 0x5A, 0x00, 0x0C, 0x70, 0x00, 0x00, 0x00, 0x00, 0x00, 0x0D, 0x0A}
}

func frameFastInventory() []byte {
	return []byte{0xA5, 0x5A, 0x00, 0x0A, 0x64, 0x01, 0x00, 0x00, 0x0D, 0x0A}
}

func frameBuzzer(on bool) []byte {
	v := byte(0x00)
	if on {
		v = 0x01
	}
	return []byte{0xA5, 0x5A, 0x00, 0x0A, 0xA1, 0x07, v, 0x00, 0x0D, 0x0A}
}

func frameRFLink() []byte {
	return []byte{0xA5, 0x5A, 0x00, 0x0B, 0x52, 0x00, 0x01, 0x05, 0x00, 0x0D, 0x0A}
}

func frameCW() []byte {
	return []byte{0xA5, 0x5A, 0x00, 0x09, 0x24, 0x01, 0x00, 0x0D, 0x0A}
}

// frameAntennaPower encodes power*100 big endian, twice (read and write
// power), for one antenna port.
func frameAntennaPower(ant, power int) []byte {
	if power < minPower {
		power = minPower
	}
	if power > maxPower {
		power = maxPower
	}
	value := power * 100
	high := byte(value >> 8)
	low := byte(value)
	return []byte{0xA5, 0x5A, 0x00, 0x0E, 0x10, 0x02, byte(ant), high, low, high, low, 0x00, 0x0D, 0x0A}
}

func hexBytes(s string) []byte {
	b, _ := hex.DecodeString(s)
	return b
}
