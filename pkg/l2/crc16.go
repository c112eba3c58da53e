package l2

// CRC-16/ARC: polynomial 0x8005 processed LSB first (0xA001 reflected),
// initial value 0, no final xor.
const crcPolyReflected = 0xA001

var crcTable = makeCRCTable()

func makeCRCTable() (t [256]uint16) {
	for i := range t {
		c := uint16(i)
		for range 8 {
			if c&1 != 0 {
				c = c>>1 ^ crcPolyReflected
			} else {
				c >>= 1
			}
		}
		t[i] = c
	}
	return t
}

// CRC16 returns the frame checksum of data.
func CRC16(data []byte) uint16 {
	return UpdateCRC16(0, data)
}

// UpdateCRC16 continues a checksum over more data.
func UpdateCRC16(crc uint16, data []byte) uint16 {
	for _, b := range data {
		crc = crc>>8 ^ crcTable[byte(crc)^b]
	}
	return crc
}
