// Binary II transport envelope, per Apple's Binary2-notes.
// A single 128-byte header may precede the NuFX archive when it was
// transmitted as a file; detection is purely signature-driven.

package nufx

import "encoding/binary"

const binaryIISize = 128

// BinaryII carries the ProDOS metadata of the wrapped file, plus the GS/OS
// high-byte extensions. It is informational only.
type BinaryII struct {
	Access       uint32
	FileType     uint32
	AuxType      uint32
	StorageType  uint16
	SizeBlocks   uint32
	EOF          uint32
	ModWhen      uint32 // raw ProDOS date+time words, mod then create
	CreateWhen   uint32
	FileName     string
	DiskSpace    uint32 // blocks needed to unpack
	OSType       byte
	NativeType   uint16
	PhantomFile  bool
	DataCompress bool
	DataEncrypt  bool
	DataSparse   bool
	Version      byte
	FilesToGo    byte // records following this one in a multi-file stream
}

func isBinaryII(buf []byte) bool {
	return len(buf) >= binaryIISize &&
		buf[0] == 0x0a && buf[1] == 0x47 && buf[2] == 0x4c && buf[0x12] == 0x02
}

func parseBinaryII(buf []byte) *BinaryII {
	nameLen := min(int(buf[23]), 64)
	b := &BinaryII{
		Access:      uint32(buf[3]) | uint32(buf[111])<<8,
		FileType:    uint32(buf[4]) | uint32(buf[112])<<8,
		AuxType:     uint32(binary.LittleEndian.Uint16(buf[5:])) | uint32(binary.LittleEndian.Uint16(buf[109:]))<<16,
		StorageType: uint16(buf[7]) | uint16(buf[113])<<8,
		SizeBlocks:  uint32(binary.LittleEndian.Uint16(buf[8:])) | uint32(binary.LittleEndian.Uint16(buf[114:]))<<16,
		ModWhen:     uint32(binary.LittleEndian.Uint16(buf[10:])) | uint32(binary.LittleEndian.Uint16(buf[12:]))<<16,
		CreateWhen:  uint32(binary.LittleEndian.Uint16(buf[14:])) | uint32(binary.LittleEndian.Uint16(buf[16:]))<<16,
		EOF:         uint32(buf[20]) | uint32(buf[21])<<8 | uint32(buf[22])<<16 | uint32(buf[116])<<24,
		FileName:    string(buf[24 : 24+nameLen]),
		DiskSpace:   binary.LittleEndian.Uint32(buf[117:]),
		OSType:      buf[121],
		NativeType:  binary.LittleEndian.Uint16(buf[122:]),
		PhantomFile: buf[124] != 0,
		Version:     buf[126],
		FilesToGo:   buf[127],
	}
	b.DataCompress = buf[125]&0x80 != 0
	b.DataEncrypt = buf[125]&0x40 != 0
	b.DataSparse = buf[125]&0x01 != 0
	return b
}
