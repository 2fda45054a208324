package nufx

import (
	"encoding/binary"
	"fmt"
)

// OptionList is a GS/OS option list stashed in a version >= 1 record by
// GS/ShrinkIt. For HFS-derived records it preserves the Finder type and
// creator that the ProDOS-shaped header fields cannot carry.
type OptionList struct {
	BufferSize uint16
	HFSType    uint32 // four-character code, 0 when absent
	HFSCreator uint32
}

const optionListMinSize = 0x2e

// ParseOptionList interprets a record's raw option list bytes.
func ParseOptionList(buf []byte) (OptionList, error) {
	var o OptionList
	if len(buf) < 2 {
		return o, fmt.Errorf("%w: option list of %d bytes", ErrRange, len(buf))
	}
	o.BufferSize = binary.LittleEndian.Uint16(buf)
	if o.BufferSize < optionListMinSize || int(o.BufferSize) > len(buf) {
		return o, fmt.Errorf("%w: option list buffer size %#x", ErrRange, o.BufferSize)
	}
	// Finder info as returned by the HFS FST: fdType then fdCreator,
	// both stored big-endian as on a Macintosh volume
	o.HFSType = binary.BigEndian.Uint32(buf[4:])
	o.HFSCreator = binary.BigEndian.Uint32(buf[8:])
	return o, nil
}
