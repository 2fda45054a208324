// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package nufx

import (
	"encoding/binary"
	"fmt"
	"io"
)

// expandThread decompresses one thread's payload (src, the compressed bytes)
// into w. Output is emitted in 4 KiB chunks except possibly the last.
func expandThread(t Thread, src []byte, w io.Writer) error {
	switch t.Format {
	case Uncompressed:
		size := int(t.UncompressedSize)
		n := min(len(src), size)
		off := 0
		for ; off < n; off += lzwBlockSize {
			var block [lzwBlockSize]byte
			end := min(off+lzwBlockSize, size)
			copy(block[:], src[off:n])
			if _, err := w.Write(block[:end-off]); err != nil {
				return err
			}
		}
		return zeroFill(w, size-off)

	case DynamicLZW1, DynamicLZW2:
		return expandLZW(t, src, w)

	case HuffmanSqueeze, Unix12, Unix16:
		return fmt.Errorf("%w: %v", ErrAlgo, t.Format)

	default:
		return fmt.Errorf("%w: unknown format %d", ErrAlgo, uint16(t.Format))
	}
}

func expandLZW(t Thread, src []byte, w io.Writer) error {
	variant2 := t.Format == DynamicLZW2

	// Thread header: LZW/1 leads with a CRC over the padded output blocks.
	// Both variants then carry a volume byte and the RLE escape byte.
	pos := 0
	var wantCRC uint16
	if !variant2 {
		if len(src) < 4 {
			return fmt.Errorf("%w: short LZW/1 thread header", ErrCorrupt)
		}
		wantCRC = binary.LittleEndian.Uint16(src)
		pos = 2
	} else if len(src) < 2 {
		return fmt.Errorf("%w: short LZW/2 thread header", ErrCorrupt)
	}
	escape := src[pos+1] // src[pos] is the volume byte, only meaningful for disk images
	pos += 2

	var (
		st        lzwState
		crc       uint16
		remaining = int(t.UncompressedSize)
		scratch   [lzwBlockSize]byte
		block     [lzwBlockSize]byte
	)
	st.reset()

	for remaining > 0 {
		var rleLen int
		var lzwUsed bool
		lzwLen := -1 // LZW/2: declared length of the block incl its 4 header bytes

		if !variant2 {
			if pos+3 > len(src) {
				return fmt.Errorf("%w: short LZW/1 block header", ErrCorrupt)
			}
			rleLen = int(binary.LittleEndian.Uint16(src[pos:]))
			switch src[pos+2] {
			case 0:
			case 1:
				lzwUsed = true
			default:
				return fmt.Errorf("%w: LZW/1 flag byte %d", ErrCorrupt, src[pos+2])
			}
			pos += 3
		} else {
			if pos+2 > len(src) {
				return fmt.Errorf("%w: short LZW/2 block header", ErrCorrupt)
			}
			word := binary.LittleEndian.Uint16(src[pos:])
			lzwUsed = word&0x8000 != 0
			rleLen = int(word & 0x1fff)
			pos += 2
			if lzwUsed {
				if pos+2 > len(src) {
					return fmt.Errorf("%w: short LZW/2 block header", ErrCorrupt)
				}
				lzwLen = int(binary.LittleEndian.Uint16(src[pos:]))
				pos += 2
			}
		}

		if rleLen < 1 || rleLen > lzwBlockSize {
			return fmt.Errorf("%w: block RLE length %d", ErrCorrupt, rleLen)
		}
		rleUsed := rleLen != lzwBlockSize
		writeLen := min(lzwBlockSize, remaining)

		switch {
		case lzwUsed:
			span := src[pos:]
			if lzwLen >= 0 {
				if lzwLen < 4 || pos+lzwLen-4 > len(src) {
					return fmt.Errorf("%w: LZW/2 block length %d", ErrCorrupt, lzwLen)
				}
				span = src[pos : pos+lzwLen-4]
			}
			consumed, err := st.expand(span, scratch[:rleLen], variant2)
			if err != nil {
				return err
			}
			if lzwLen >= 0 && consumed != lzwLen-4 {
				return fmt.Errorf("%w: LZW/2 input length mismatch (%d consumed, %d declared)",
					ErrCorrupt, consumed, lzwLen-4)
			}
			pos += consumed
			if rleUsed {
				if err := expandRLE(scratch[:rleLen], &block, escape); err != nil {
					return err
				}
			} else {
				copy(block[:], scratch[:])
			}

		case rleUsed:
			if pos+rleLen > len(src) {
				return fmt.Errorf("%w: RLE block overruns thread", ErrCorrupt)
			}
			if err := expandRLE(src[pos:pos+rleLen], &block, escape); err != nil {
				return err
			}
			pos += rleLen
			if variant2 {
				st.reset()
			}

		default: // stored block
			if pos+lzwBlockSize > len(src) {
				return fmt.Errorf("%w: stored block overruns thread", ErrCorrupt)
			}
			copy(block[:], src[pos:])
			pos += lzwBlockSize
			if variant2 {
				st.reset()
			}
		}

		if !variant2 {
			// The thread CRC covers the whole padded block, not just writeLen
			crc = crc16(crc, block[:])
		}

		if _, err := w.Write(block[:writeLen]); err != nil {
			return err
		}
		remaining -= writeLen
	}

	if !variant2 && crc != wantCRC {
		return fmt.Errorf("%w: LZW/1 thread CRC %#04x, calculated %#04x", ErrChecksum, wantCRC, crc)
	}
	return nil
}

func zeroFill(w io.Writer, n int) error {
	var zero [lzwBlockSize]byte
	for n > 0 {
		c := min(n, len(zero))
		if _, err := w.Write(zero[:c]); err != nil {
			return err
		}
		n -= c
	}
	return nil
}
