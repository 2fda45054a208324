package nufx

// Test-side compressors and archive builders. These mirror what ShrinkIt's
// encoder emits so the decompressor can be exercised round-trip without
// binary fixtures in the repository.

import (
	"bytes"
	"encoding/binary"
)

// codeWriter packs variable-width codes back to back, LSB first,
// the inverse of codeReader.
type codeWriter struct {
	buf   []byte
	acc   uint
	nbits int
}

func (w *codeWriter) put(code uint16, entry uint16) {
	width := lzwWidth[(entry+1)>>8]
	w.acc |= uint(code) << w.nbits
	w.nbits += width
	for w.nbits >= 8 {
		w.buf = append(w.buf, byte(w.acc))
		w.acc >>= 8
		w.nbits -= 8
	}
}

func (w *codeWriter) flush() []byte {
	if w.nbits > 0 {
		w.buf = append(w.buf, byte(w.acc))
		w.acc, w.nbits = 0, 0
	}
	return w.buf
}

// shrinker is a greedy LZW encoder whose table growth mirrors the decoder's
// exactly, including the one-code lag between the decoder's table and ours.
type shrinker struct {
	dict     map[string]uint16
	encEntry uint16 // next code we will assign
	decEntry uint16 // the decoder's view when it reads our next code
	phrase   string
	carry    string // phrase flushed at a block boundary, see encodeBlock
	started  bool   // false until the stream's initial literal is out
}

func newShrinker() *shrinker {
	s := &shrinker{}
	s.clear()
	return s
}

func (s *shrinker) clear() {
	s.dict = make(map[string]uint16)
	s.encEntry = lzwFirstCode
	s.decEntry = lzwFirstCode
	s.phrase = ""
	s.carry = ""
	s.started = false
}

func (s *shrinker) emit(w *codeWriter, code uint16) {
	w.put(code, s.decEntry)
	if s.started {
		s.decEntry++ // the decoder records an entry after every non-initial code
	}
	s.started = true
}

func (s *shrinker) codeOf(phrase string) uint16 {
	if len(phrase) == 1 {
		return uint16(phrase[0])
	}
	return s.dict[phrase]
}

// encodeBlock appends codes for data to w, then flushes the phrase in
// progress so this block's codes decode to exactly len(data) bytes.
//
// When the table persists across blocks (LZW/2) the decoder pairs the first
// code of a new block with a table entry built from the previous block's
// final phrase, so that deferred entry is recorded here before any others.
func (s *shrinker) encodeBlock(w *codeWriter, data []byte) {
	for _, c := range data {
		if s.carry != "" {
			s.dict[s.carry+string([]byte{c})] = s.encEntry
			s.encEntry++
			s.carry = ""
		}
		next := s.phrase + string([]byte{c})
		if s.phrase == "" {
			s.phrase = next
			continue
		}
		if _, ok := s.dict[next]; ok {
			s.phrase = next
			continue
		}
		s.emit(w, s.codeOf(s.phrase))
		s.dict[next] = s.encEntry
		s.encEntry++
		s.phrase = string([]byte{c})
	}
	if s.phrase != "" {
		s.emit(w, s.codeOf(s.phrase))
		s.carry = s.phrase
		s.phrase = ""
	}
}

// emitClear writes the explicit LZW/2 clear code and resets both tables.
func (s *shrinker) emitClear(w *codeWriter) {
	if s.phrase != "" {
		s.emit(w, s.codeOf(s.phrase))
	}
	w.put(lzwClearCode, s.decEntry)
	s.clear()
}

// rleEncode run-length-encodes one full 4096-byte block.
func rleEncode(block []byte, escape byte) []byte {
	var out []byte
	for i := 0; i < len(block); {
		j := i
		for j < len(block) && block[j] == block[i] && j-i < 256 {
			j++
		}
		n := j - i
		if n >= 4 || block[i] == escape {
			out = append(out, escape, block[i], byte(n-1))
		} else {
			for range n {
				out = append(out, block[i])
			}
		}
		i = j
	}
	return out
}

const (
	blockLZW    = iota // LZW over the raw 4096 bytes
	blockRLELZW        // RLE then LZW over the RLE form
	blockRLE           // RLE only
	blockStored        // raw 4096 bytes
)

// shrinkThread builds a complete LZW/1 or LZW/2 thread payload for data.
// modes picks the coding per 4 KiB block, cycled if shorter than the block
// count. The volume byte is zero and the RLE escape is 0xdb, as ShrinkIt
// writes them.
func shrinkThread(data []byte, variant2 bool, modes []int) []byte {
	const escape = 0xdb
	var blocks [][]byte
	for off := 0; off < len(data); off += lzwBlockSize {
		block := make([]byte, lzwBlockSize)
		copy(block, data[off:])
		blocks = append(blocks, block)
	}

	var crc uint16
	var body []byte
	s := newShrinker()

	for i, block := range blocks {
		crc = crc16(crc, block)
		mode := modes[i%len(modes)]

		rleForm := block
		rleLen := lzwBlockSize
		if mode == blockRLE || mode == blockRLELZW {
			rleForm = rleEncode(block, escape)
			rleLen = len(rleForm)
			if rleLen >= lzwBlockSize {
				panic("test block does not shrink under RLE, pick different data")
			}
		}

		switch {
		case mode == blockStored:
			body = appendBlockHeader(body, variant2, lzwBlockSize, false, 0)
			body = append(body, block...)
			s.clear()

		case mode == blockRLE:
			body = appendBlockHeader(body, variant2, rleLen, false, 0)
			body = append(body, rleForm...)
			s.clear()

		default: // blockLZW, blockRLELZW
			w := &codeWriter{}
			if !variant2 {
				s.clear()
			}
			s.encodeBlock(w, rleForm)
			packed := w.flush()
			body = appendBlockHeader(body, variant2, rleLen, true, len(packed)+4)
			body = append(body, packed...)
		}
	}

	var out []byte
	if !variant2 {
		out = binary.LittleEndian.AppendUint16(out, crc)
	}
	out = append(out, 0 /*volume*/, escape)
	return append(out, body...)
}

func appendBlockHeader(body []byte, variant2 bool, rleLen int, lzwUsed bool, lzwLen int) []byte {
	if !variant2 {
		body = binary.LittleEndian.AppendUint16(body, uint16(rleLen))
		if lzwUsed {
			return append(body, 1)
		}
		return append(body, 0)
	}
	word := uint16(rleLen)
	if lzwUsed {
		word |= 0x8000
	}
	body = binary.LittleEndian.AppendUint16(body, word)
	if lzwUsed {
		body = binary.LittleEndian.AppendUint16(body, uint16(lzwLen))
	}
	return body
}

// Archive builder

type testThread struct {
	class   ThreadClass
	format  Format
	kind    uint16
	eof     uint32 // uncompressed size
	payload []byte
}

type testRecord struct {
	name     string
	version  uint16
	fsInfo   uint16
	fileType uint32
	auxType  uint32
	access   uint32
	options  []byte
	modWhen  DateTime
	threads  []testThread
}

func dataThread(data []byte, kind uint16, variant2 bool) testThread {
	format := DynamicLZW1
	if variant2 {
		format = DynamicLZW2
	}
	return testThread{
		class:   ClassData,
		format:  format,
		kind:    kind,
		eof:     uint32(len(data)),
		payload: shrinkThread(data, variant2, []int{blockLZW}),
	}
}

func storedThread(data []byte, kind uint16) testThread {
	return testThread{
		class:   ClassData,
		format:  Uncompressed,
		kind:    kind,
		eof:     uint32(len(data)),
		payload: bytes.Clone(data),
	}
}

func nameThread(name string) testThread {
	return testThread{
		class:   ClassFileName,
		format:  Uncompressed,
		eof:     uint32(len(name)),
		payload: []byte(name),
	}
}

func buildRecord(rec testRecord) []byte {
	if rec.fsInfo == 0 {
		rec.fsInfo = uint16(':')
	}

	var option []byte
	if rec.version >= 1 {
		option = binary.LittleEndian.AppendUint16(nil, uint16(len(rec.options)))
		option = append(option, rec.options...)
	}
	attribCount := recordHeaderSize + len(option) + 2

	buf := make([]byte, recordHeaderSize)
	copy(buf, recordSignature)
	binary.LittleEndian.PutUint16(buf[6:], uint16(attribCount))
	binary.LittleEndian.PutUint16(buf[8:], rec.version)
	binary.LittleEndian.PutUint32(buf[10:], uint32(len(rec.threads)))
	binary.LittleEndian.PutUint16(buf[14:], uint16(FileSysProDOS))
	binary.LittleEndian.PutUint16(buf[16:], rec.fsInfo)
	binary.LittleEndian.PutUint32(buf[18:], rec.access)
	binary.LittleEndian.PutUint32(buf[22:], rec.fileType)
	binary.LittleEndian.PutUint32(buf[26:], rec.auxType)
	binary.LittleEndian.PutUint16(buf[30:], StorageSeedling)
	buf[40], buf[41], buf[42], buf[43] = rec.modWhen.Second, rec.modWhen.Minute, rec.modWhen.Hour, rec.modWhen.Year
	buf[44], buf[45], buf[46], buf[47] = rec.modWhen.Day, rec.modWhen.Month, rec.modWhen.Filler, rec.modWhen.Weekday

	buf = append(buf, option...)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(rec.name)))
	buf = append(buf, rec.name...)

	for _, t := range rec.threads {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(t.class))
		buf = binary.LittleEndian.AppendUint16(buf, uint16(t.format))
		buf = binary.LittleEndian.AppendUint16(buf, t.kind)
		buf = binary.LittleEndian.AppendUint16(buf, 0) // thread CRC, not validated
		buf = binary.LittleEndian.AppendUint32(buf, t.eof)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(t.payload)))
	}
	for _, t := range rec.threads {
		buf = append(buf, t.payload...)
	}
	return buf
}

func buildArchive(recs ...testRecord) []byte {
	buf := make([]byte, masterHeaderSize)
	copy(buf, masterSignature)
	binary.LittleEndian.PutUint32(buf[8:], uint32(len(recs)))
	binary.LittleEndian.PutUint16(buf[28:], 2) // master version

	for _, rec := range recs {
		buf = append(buf, buildRecord(rec)...)
	}
	binary.BigEndian.PutUint32(buf[38:], uint32(len(buf))) // the big-endian quirk
	return buf
}

func wrapBinaryII(archive []byte, name string) []byte {
	env := make([]byte, binaryIISize)
	env[0], env[1], env[2] = 0x0a, 0x47, 0x4c
	env[0x12] = 0x02
	env[3] = 0xe3                     // access
	env[4] = 0xe0                     // LBR file type
	env[5], env[6] = 0x02, 0x80       // aux type $8002, a ShrinkIt archive
	env[20] = byte(len(archive))      // EOF, low bytes only in these tests
	env[21] = byte(len(archive) >> 8)
	env[22] = byte(len(archive) >> 16)
	env[23] = byte(len(name))
	copy(env[24:], name)
	env[126] = 1
	return append(env, archive...)
}
