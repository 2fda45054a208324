// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package nufx reads NuFX archives, the format produced by ShrinkIt on the
// Apple II, optionally wrapped in a Binary II transport envelope.
//
// Construction parses every header eagerly; thread payloads are decompressed
// lazily on request. The supported codings are uncompressed storage and both
// flavors of ShrinkIt's Dynamic LZW. Huffman Squeeze and the UNIX compress
// variants are recognized but not expanded.
package nufx

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Archive is an open NuFX archive. It is immutable after New returns.
type Archive struct {
	r        io.ReaderAt
	Master   MasterHeader
	BinaryII *BinaryII // non-nil only when a Binary II envelope was present
	records  []*Record
	digest   uint64 // identity of the header area, keys the block cache

	fsOnce sync.Once
	fsRoot *fsEntry
}

// New reads the archive headers from r and builds the record index.
// Offset 0 of r is the archive's zero point.
func New(r io.ReaderAt) (*Archive, error) {
	a := &Archive{r: r}

	var envelope [binaryIISize]byte
	base := int64(0)
	if n, _ := r.ReadAt(envelope[:], 0); n == binaryIISize && isBinaryII(envelope[:]) {
		a.BinaryII = parseBinaryII(envelope[:])
		base = binaryIISize
		a.r = io.NewSectionReader(r, base, math.MaxInt64-base)
	}

	buf, err := creepTo(nil, io.NewSectionReader(a.r, 0, masterHeaderSize), masterHeaderSize)
	if err != nil {
		return nil, err
	}
	a.Master, err = parseMasterHeader(buf)
	if err != nil {
		return nil, err
	}

	hash := xxhash.New()
	hash.Write(buf)

	offset := int64(masterHeaderSize)
	for range a.Master.TotalRecords {
		rec, next, err := parseRecord(a.r, offset)
		if err != nil {
			return nil, err
		}
		a.records = append(a.records, rec)

		hdr := make([]byte, rec.dataOffset-offset)
		a.r.ReadAt(hdr, offset)
		hash.Write(hdr)

		offset = next
	}
	if a.Master.TotalSize != 0 && offset != int64(a.Master.TotalSize) {
		slog.Warn("NuFX archive size disagrees with master header",
			"declared", a.Master.TotalSize, "parsed", offset)
	}

	a.digest = hash.Sum64()
	return a, nil
}

// NewBytes opens an in-memory archive.
func NewBytes(b []byte) (*Archive, error) {
	return New(bytes.NewReader(b))
}

// Entries returns the archive's records in on-disk order.
// The returned slice is shared; callers must not modify it.
func (a *Archive) Entries() []*Record {
	return a.records
}

// Name returns the record's filename: the filename thread when one is
// present, otherwise the header's filename field.
func (a *Archive) Name(rec *Record) string {
	t, offset, ok := rec.find(ClassFileName, 0)
	if ok && t.UncompressedSize > 0 {
		var buf bytes.Buffer
		if err := a.extract(t, offset, &buf); err == nil {
			return buf.String()
		}
		slog.Warn("NuFX filename thread unreadable, using header name", "name", rec.RawName)
	}
	return rec.RawName
}

// DataFork extracts the record's data fork, or (nil, nil) if it has none.
func (a *Archive) DataFork(rec *Record) ([]byte, error) {
	return a.fork(rec, ClassData, KindDataFork)
}

// ResourceFork extracts the record's resource fork, or (nil, nil) if it has none.
func (a *Archive) ResourceFork(rec *Record) ([]byte, error) {
	return a.fork(rec, ClassData, KindResourceFork)
}

// DiskImage extracts the record's whole-disk image, or (nil, nil) if it has none.
func (a *Archive) DiskImage(rec *Record) ([]byte, error) {
	return a.fork(rec, ClassData, KindDiskImage)
}

func (a *Archive) fork(rec *Record, class ThreadClass, kind uint16) ([]byte, error) {
	t, offset, ok := rec.find(class, kind)
	if !ok {
		return nil, nil
	}
	buf := bytes.NewBuffer(make([]byte, 0, t.UncompressedSize))
	if err := a.extract(t, offset, buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DataForkTo streams the record's data fork into w.
// It reports false without touching w when the record has no such thread.
func (a *Archive) DataForkTo(rec *Record, w io.Writer) (bool, error) {
	return a.forkTo(rec, ClassData, KindDataFork, w)
}

// ResourceForkTo streams the record's resource fork into w.
func (a *Archive) ResourceForkTo(rec *Record, w io.Writer) (bool, error) {
	return a.forkTo(rec, ClassData, KindResourceFork, w)
}

// DiskImageTo streams the record's disk image into w.
func (a *Archive) DiskImageTo(rec *Record, w io.Writer) (bool, error) {
	return a.forkTo(rec, ClassData, KindDiskImage, w)
}

func (a *Archive) forkTo(rec *Record, class ThreadClass, kind uint16, w io.Writer) (bool, error) {
	t, offset, ok := rec.find(class, kind)
	if !ok {
		return false, nil
	}
	return true, a.extract(t, offset, w)
}

// extract reads the thread's compressed span and pulls it through the
// decompressor. A failure here leaves the archive usable for other threads.
func (a *Archive) extract(t Thread, offset int64, w io.Writer) error {
	src := make([]byte, t.CompressedSize)
	n, err := a.r.ReadAt(src, offset)
	if n != len(src) {
		return fmt.Errorf("%w: thread payload unreadable: %v", ErrFormat, err)
	}
	return expandThread(t, src, w)
}

// forkStream returns a sequential reader over a fork, decompressing as it
// goes. The pipe pattern keeps the block-structured decompressor a plain
// io.Writer client.
func (a *Archive) forkStream(rec *Record, class ThreadClass, kind uint16) io.Reader {
	pr, pw := io.Pipe()
	go func() {
		_, err := a.forkTo(rec, class, kind, pw)
		pw.CloseWithError(err)
	}()
	return pr
}
