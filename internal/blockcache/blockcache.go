// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package blockcache converts sequential decompression streams
// ([io.Reader]) into random-access byte collections ([io.ReaderAt]).
//
// Random access to a sequential stream is achieved by reopening and
// rereading it when necessary. Performance is maintained by a shared cache
// of 4 KiB blocks (the natural chunk size of ShrinkIt's LZW), optionally
// backed by an on-disk tier so repeated extractions survive restarts.
package blockcache

import (
	"encoding/binary"
	"hash/maphash"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/pebble/v2"
	"github.com/dgryski/go-tinylfu"
)

const blockSize = 4096

// A ReaderAt replays one stream. Safe for concurrent use; a mutex serializes
// the underlying sequential reader.
type ReaderAt struct {
	id   uint64
	size int64
	open func() (io.Reader, error)

	l    sync.Mutex
	r    io.Reader
	seek int64
}

// New wraps the stream produced by open. uniq must be stable across program
// runs for the same logical content, because it keys the persistent tier.
func New(uniq string, size int64, open func() (io.Reader, error)) *ReaderAt {
	return &ReaderAt{id: xxhash.Sum64String(uniq), size: size, open: open}
}

func (r *ReaderAt) Size() int64 { return r.size }

func (r *ReaderAt) ReadAt(p []byte, off int64) (n int, reterr error) {
	if off < 0 {
		return 0, os.ErrInvalid
	}
	if off >= r.size {
		return 0, io.EOF
	}
	if off+int64(len(p)) > r.size {
		p = p[:r.size-off]
		reterr = io.EOF
	}

	for base := off / blockSize * blockSize; base < off+int64(len(p)); base += blockSize {
		block, ok := cacheGet(ckey{r.id, base})
		if !ok {
			var err error
			block, err = r.fill(base)
			if err != nil {
				return n, err
			}
		}

		skip := max(0, off-base)
		if skip > int64(len(block)) {
			return n, io.EOF
		}
		n += copy(p[n:], block[skip:])
		if int64(len(block)) < blockSize && base+int64(len(block)) < off+int64(len(p)) {
			return n, io.EOF
		}
	}
	return n, reterr
}

// fill reads sequentially, caching every block it passes, until the block at
// base has been read.
func (r *ReaderAt) fill(base int64) ([]byte, error) {
	r.l.Lock()
	defer r.l.Unlock()

	if r.r == nil || r.seek > base {
		if closer, ok := r.r.(io.Closer); ok {
			closer.Close()
		}
		var err error
		r.r, r.seek = nil, 0
		r.r, err = r.open()
		if err != nil {
			return nil, err
		}
	}

	for {
		block := make([]byte, blockSize)
		bn, err := io.ReadFull(r.r, block)
		block = block[:bn]
		at := r.seek
		r.seek += int64(bn)
		cachePut(ckey{r.id, at}, block)
		if at == base {
			return block, nil
		}
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return nil, io.EOF // stream ended before reaching base
		} else if err != nil {
			return nil, err
		}
	}
}

type ckey struct {
	id  uint64
	off int64
}

var (
	mu   sync.Mutex
	seed = maphash.MakeSeed()
	lfu  *tinylfu.T[ckey, []byte]
	db   *pebble.DB
)

func init() {
	n := memLimit() / blockSize
	lfu = tinylfu.New[ckey, []byte](n, n*10, func(k ckey) uint64 { return maphash.Comparable(seed, k) })

	if dir := os.Getenv("NUFXCACHE"); dir != "" {
		var err error
		db, err = pebble.Open(dir, &pebble.Options{})
		if err != nil {
			slog.Warn("persistent block cache unavailable", "dir", dir, "err", err)
			db = nil
		}
	}
}

func memLimit() int {
	if e := os.Getenv("NUFXGB"); e != "" {
		f, err := strconv.ParseFloat(e, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
			panic("malformed NUFXGB environment variable, should be a number of gigabytes: " + e)
		}
		return int(f * 1024 * 1024 * 1024)
	}
	return 256 * 1024 * 1024
}

func cacheGet(k ckey) ([]byte, bool) {
	mu.Lock()
	b, ok := lfu.Get(k)
	mu.Unlock()
	if ok {
		return b, true
	}
	if db == nil {
		return nil, false
	}
	v, closer, err := db.Get(diskKey(k))
	if err != nil {
		return nil, false
	}
	b = append([]byte(nil), v...)
	closer.Close()
	mu.Lock()
	lfu.Add(k, b)
	mu.Unlock()
	return b, true
}

func cachePut(k ckey, b []byte) {
	mu.Lock()
	lfu.Add(k, b)
	mu.Unlock()
	if db != nil {
		db.Set(diskKey(k), b, pebble.NoSync)
	}
}

func diskKey(k ckey) []byte {
	var b [16]byte
	binary.BigEndian.PutUint64(b[:], k.id)
	binary.BigEndian.PutUint64(b[8:], uint64(k.off))
	return b[:]
}
