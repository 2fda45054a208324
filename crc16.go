package nufx

// XMODEM CRC-16: polynomial 0x1021, initial value 0, no final xor, MSB first.
// ShrinkIt threads every block of an LZW/1 stream through one accumulator.

var crctab [256]uint16

func init() {
	for i := range uint16(256) {
		k := i << 8
		for range 8 {
			if k&0x8000 != 0 {
				k = k<<1 ^ 0x1021
			} else {
				k <<= 1
			}
		}
		crctab[i] = k
	}
}

func crc16(check uint16, buf []byte) uint16 {
	for _, ch := range buf {
		check = check<<8 ^ crctab[byte(check>>8)^ch]
	}
	return check
}
