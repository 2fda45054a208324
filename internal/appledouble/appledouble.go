// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package appledouble synthesizes AppleDouble "._" sidecar files so that
// dual-fork archive entries survive a trip through a plain filesystem view.
// The flavor here is ProDOS: access word, file type and aux type ride in a
// PRODOS_FILE_INFO record rather than Finder info.
package appledouble

import (
	"encoding/binary"
	gopath "path"
	"time"
)

const (
	DATA_FORK           = 1
	RESOURCE_FORK       = 2
	REAL_NAME           = 3
	COMMENT             = 4
	ICON_BW             = 5
	ICON_COLOR          = 6
	FILE_INFO_V1        = 7 // Old v1 file info combining FILE_DATES_INFO and MACINTOSH_FILE_INFO.
	FILE_DATES_INFO     = 8
	FINDER_INFO         = 9  // FinderInfo (16) + FinderXInfo (16)
	MACINTOSH_FILE_INFO = 10 // 32 bits, bits 31 = protected and 32 = locked
	PRODOS_FILE_INFO    = 11
	MSDOS_FILE_INFO     = 12
	SHORT_NAME          = 13 // AFP short name.
	AFP_FILE_INFO       = 14
	DIRECTORY_ID        = 15 // AFP directory ID.
)

// ForkOffset is where the resource fork starts inside every sidecar,
// a whole block so cached reads of the fork stay aligned.
const ForkOffset = 4096

var appleDoubleEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// FileInfo is the metadata recorded alongside the resource fork.
type FileInfo struct {
	Access   uint32
	FileType uint32
	AuxType  uint32
	Created  time.Time
	Modified time.Time
}

// Sidecar converts a path to its AppleDouble sibling name.
func Sidecar(p string) string {
	dir, base := gopath.Split(p)
	return dir + "._" + base
}

// Prefix builds the sidecar's fixed-size header: magic, entry table,
// PRODOS_FILE_INFO and FILE_DATES_INFO, padded so the resource fork
// (when rforkSize > 0) begins at ForkOffset.
func Prefix(info FileInfo, rforkSize int64) []byte {
	prodos := make([]byte, 8)
	binary.BigEndian.PutUint16(prodos, uint16(info.Access))
	binary.BigEndian.PutUint16(prodos[2:], uint16(info.FileType))
	binary.BigEndian.PutUint32(prodos[4:], info.AuxType)

	dates := make([]byte, 16)
	binary.BigEndian.PutUint32(dates, sinceEpoch(info.Created))
	binary.BigEndian.PutUint32(dates[4:], sinceEpoch(info.Modified))
	binary.BigEndian.PutUint32(dates[8:], 0x80000000) // backup time unknown
	binary.BigEndian.PutUint32(dates[12:], 0x80000000)

	type rec struct {
		kind int
		data []byte
	}
	recs := []rec{{FILE_DATES_INFO, dates}, {PRODOS_FILE_INFO, prodos}}
	n := len(recs)
	if rforkSize > 0 {
		n++
	}

	buf := make([]byte, 26+12*n, ForkOffset)
	copy(buf, "\x00\x05\x16\x07\x00\x02\x00\x00") // magic number (modern macOS expects the 07 byte)
	binary.BigEndian.PutUint16(buf[24:], uint16(n))

	for i, r := range recs {
		recOffset := 26 + 12*i
		binary.BigEndian.PutUint32(buf[recOffset:], uint32(r.kind))
		binary.BigEndian.PutUint32(buf[recOffset+4:], uint32(len(buf)))
		binary.BigEndian.PutUint32(buf[recOffset+8:], uint32(len(r.data)))
		buf = append(buf, r.data...)
	}
	if rforkSize > 0 {
		recOffset := 26 + 12*(n-1)
		binary.BigEndian.PutUint32(buf[recOffset:], RESOURCE_FORK)
		binary.BigEndian.PutUint32(buf[recOffset+4:], ForkOffset)
		binary.BigEndian.PutUint32(buf[recOffset+8:], uint32(rforkSize))
		buf = buf[:ForkOffset]
	}
	return buf
}

// Times before 2000 are the norm for this format, so the field is signed.
func sinceEpoch(t time.Time) uint32 {
	if t.IsZero() {
		return 0x80000000 // the "unknown" sentinel
	}
	return uint32(int32(t.Sub(appleDoubleEpoch) / time.Second))
}
