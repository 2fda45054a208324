// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package nufx

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
)

// "NuFile" and "NuFX" with alternating low/high ASCII
var (
	masterSignature = []byte{0x4e, 0xf5, 0x46, 0xe9, 0x6c, 0xe5}
	recordSignature = []byte{0x4e, 0xf5, 0x46, 0xd8}
)

const (
	masterHeaderSize = 48
	recordHeaderSize = 56
	threadEntrySize  = 16
)

// MasterHeader sits at the front of every archive.
// The CRC is exposed but not validated; the format leaves that to the reader.
type MasterHeader struct {
	CRC          uint16
	TotalRecords uint32
	Created      DateTime
	Modified     DateTime
	Version      uint16
	TotalSize    uint32
}

func parseMasterHeader(buf []byte) (MasterHeader, error) {
	var m MasterHeader
	if len(buf) < masterHeaderSize {
		return m, fmt.Errorf("%w: short master header", ErrFormat)
	}
	if !slices.Equal(buf[:6], masterSignature) {
		return m, fmt.Errorf("%w: bad master signature", ErrFormat)
	}
	m.CRC = binary.LittleEndian.Uint16(buf[6:])
	m.TotalRecords = binary.LittleEndian.Uint32(buf[8:])
	m.Created = parseDateTime(buf[12:20])
	m.Modified = parseDateTime(buf[20:28])
	m.Version = binary.LittleEndian.Uint16(buf[28:])
	if m.Version > 2 {
		return m, fmt.Errorf("%w: %d", ErrVersion, m.Version)
	}
	// A quirk of the format: this one field is big-endian
	m.TotalSize = binary.BigEndian.Uint32(buf[38:])
	return m, nil
}

// Thread is one 16-byte entry of a record's thread table.
type Thread struct {
	Class            ThreadClass
	Format           Format
	Kind             uint16
	CRC              uint16
	UncompressedSize uint32
	CompressedSize   uint32
}

func parseThread(buf []byte) Thread {
	return Thread{
		Class:            ThreadClass(binary.LittleEndian.Uint16(buf)),
		Format:           Format(binary.LittleEndian.Uint16(buf[2:])),
		Kind:             binary.LittleEndian.Uint16(buf[4:]),
		CRC:              binary.LittleEndian.Uint16(buf[6:]),
		UncompressedSize: binary.LittleEndian.Uint32(buf[8:]),
		CompressedSize:   binary.LittleEndian.Uint32(buf[12:]),
	}
}

// Record is one archived file or disk image: its header block, attributes
// and thread table, plus the location of its payload area.
type Record struct {
	HeaderCRC   uint16
	AttribCount uint16
	Version     uint16
	FileSysID   FileSys
	FileSysInfo uint16 // low byte is the path separator character
	Access      uint32
	FileType    uint32
	AuxType     uint32
	StorageType uint16 // or the block size, for disk images
	Created     DateTime
	Modified    DateTime
	Archived    DateTime

	Options []byte // raw GS/OS option list, version >= 1 records only
	Extra   []byte // slack between the consumed attributes and AttribCount-2
	RawName string // the header's filename field; a filename thread overrides it

	Threads []Thread

	dataOffset int64 // payload area, relative to the archive start
	dataLength int64 // sum of the threads' compressed sizes
}

// Separator is the pathname separator character for this record.
func (rec *Record) Separator() byte {
	s := byte(rec.FileSysInfo)
	if s == 0 {
		s = ':'
	}
	return s
}

// DataOffset returns the position of the record's payload area and its length.
func (rec *Record) DataOffset() (int64, int64) {
	return rec.dataOffset, rec.dataLength
}

// find scans the thread table in order, accumulating payload offsets, and
// returns the first thread matching (class, kind).
func (rec *Record) find(class ThreadClass, kind uint16) (Thread, int64, bool) {
	offset := rec.dataOffset
	for _, t := range rec.Threads {
		if t.Class == class && t.Kind == kind {
			return t, offset, true
		}
		offset += int64(t.CompressedSize)
	}
	return Thread{}, 0, false
}

// parseRecord reads one record starting at offset, returning the record and
// the offset of the next one.
func parseRecord(r io.ReaderAt, offset int64) (*Record, int64, error) {
	reader := io.NewSectionReader(r, offset, math.MaxInt64)

	buf, err := creepTo(nil, reader, recordHeaderSize)
	if err != nil {
		return nil, 0, err
	}
	if !slices.Equal(buf[:4], recordSignature) {
		return nil, 0, fmt.Errorf("%w: bad record signature at offset %d", ErrFormat, offset)
	}

	rec := &Record{
		HeaderCRC:   binary.LittleEndian.Uint16(buf[4:]),
		AttribCount: binary.LittleEndian.Uint16(buf[6:]),
		Version:     binary.LittleEndian.Uint16(buf[8:]),
		FileSysID:   FileSys(binary.LittleEndian.Uint16(buf[14:])),
		FileSysInfo: binary.LittleEndian.Uint16(buf[16:]),
		Access:      binary.LittleEndian.Uint32(buf[18:]),
		FileType:    binary.LittleEndian.Uint32(buf[22:]),
		AuxType:     binary.LittleEndian.Uint32(buf[26:]),
		StorageType: binary.LittleEndian.Uint16(buf[30:]),
		Created:     parseDateTime(buf[32:40]),
		Modified:    parseDateTime(buf[40:48]),
		Archived:    parseDateTime(buf[48:56]),
	}
	totalThreads := binary.LittleEndian.Uint32(buf[10:])

	if rec.AttribCount < recordHeaderSize {
		return nil, 0, fmt.Errorf("%w: attribute count %d below header size", ErrFormat, rec.AttribCount)
	}

	if rec.Version >= 1 {
		buf, err = creepBy(buf, reader, 2)
		if err != nil {
			return nil, 0, err
		}
		optionSize := int(binary.LittleEndian.Uint16(buf[len(buf)-2:]))
		buf, err = creepBy(buf, reader, optionSize)
		if err != nil {
			return nil, 0, err
		}
		rec.Options = slices.Clone(buf[len(buf)-optionSize:])
	}

	// Anything between here and the filename-length word is extra attributes
	// added by an archiver newer than this header version.
	slack := int(rec.AttribCount) - 2 - len(buf)
	if slack < 0 {
		return nil, 0, fmt.Errorf("%w: attributes overrun their count", ErrFormat)
	}
	buf, err = creepBy(buf, reader, slack)
	if err != nil {
		return nil, 0, err
	}
	rec.Extra = slices.Clone(buf[len(buf)-slack:])

	buf, err = creepBy(buf, reader, 2)
	if err != nil {
		return nil, 0, err
	}
	nameLen := int(binary.LittleEndian.Uint16(buf[len(buf)-2:]))
	buf, err = creepBy(buf, reader, nameLen)
	if err != nil {
		return nil, 0, err
	}
	rec.RawName = string(buf[len(buf)-nameLen:])

	rec.Threads = make([]Thread, 0, totalThreads)
	for range totalThreads {
		buf, err = creepBy(buf, reader, threadEntrySize)
		if err != nil {
			return nil, 0, err
		}
		t := parseThread(buf[len(buf)-threadEntrySize:])
		rec.Threads = append(rec.Threads, t)
		rec.dataLength += int64(t.CompressedSize)
	}

	rec.dataOffset = offset + int64(len(buf))
	return rec, rec.dataOffset + rec.dataLength, nil
}

func creepTo(buf []byte, reader io.Reader, to int) ([]byte, error) {
	return creepBy(buf, reader, to-len(buf))
}

func creepBy(buf []byte, reader io.Reader, by int) ([]byte, error) {
	if by < 0 {
		return buf, errors.New("invalid structure length")
	}
	buf = slices.Grow(buf, by)
	n, err := io.ReadFull(reader, buf[len(buf):len(buf)+by])
	buf = buf[:len(buf)+n]
	switch err {
	case nil:
		return buf, nil
	case io.ErrUnexpectedEOF, io.EOF:
		return buf, fmt.Errorf("%w: truncated archive", ErrFormat)
	default:
		return buf, err
	}
}
