// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package nufx

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"slices"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/elliotnunn/nufx/internal/appledouble"
	"github.com/elliotnunn/nufx/internal/blockcache"
)

// FS presents the archive as a read-only filesystem. Record names are split
// into directories on the record's own separator character, and resource
// forks appear as AppleDouble "._" sidecar files beside their data forks.
func (a *Archive) FS() fs.FS {
	a.fsOnce.Do(a.buildFS)
	return &fsys{a.fsRoot}
}

// Glob matches the archive's file paths against a doublestar pattern
// (**, {alt,ernates} and character classes all work).
func (a *Archive) Glob(pattern string) ([]string, error) {
	return doublestar.Glob(a.FS(), pattern)
}

type fsEntry struct {
	name       string
	isdir      bool
	modtime    time.Time
	rec        *Record // nil for implied directories
	data       *blockcache.ReaderAt
	sidecar    *blockcache.ReaderAt
	childSlice []*fsEntry
	childMap   map[string]*fsEntry
}

func (a *Archive) buildFS() {
	root := &fsEntry{name: ".", isdir: true, childMap: make(map[string]*fsEntry)}

	for i, rec := range a.records {
		var components []string
		for _, c := range strings.Split(a.Name(rec), string(rec.Separator())) {
			if c == "" {
				continue
			}
			// "/" cannot appear in an io/fs path component
			components = append(components, strings.ReplaceAll(c, "/", ":"))
		}
		if len(components) == 0 {
			components = []string{fmt.Sprintf("record.%d", i)}
		}

		dir := root
		for _, c := range components[:len(components)-1] {
			if child, ok := dir.childMap[c]; ok && !child.isdir {
				c += "~" // a file already holds this name
			}
			child, ok := dir.childMap[c]
			if !ok {
				child = &fsEntry{name: c, isdir: true, childMap: make(map[string]*fsEntry)}
				dir.childMap[c] = child
				dir.childSlice = append(dir.childSlice, child)
			}
			dir = child
		}

		e := a.fileEntry(i, rec, components[len(components)-1])
		if _, taken := dir.childMap[e.name]; taken {
			e.name = fmt.Sprintf("%s.%d", e.name, i) // duplicate names are legal in NuFX
		}
		dir.childMap[e.name] = e
		dir.childSlice = append(dir.childSlice, e)
	}

	sortTree(root)
	a.fsRoot = root
}

func sortTree(e *fsEntry) {
	slices.SortFunc(e.childSlice, func(a, b *fsEntry) int { return strings.Compare(a.name, b.name) })
	for _, child := range e.childSlice {
		if child.isdir {
			sortTree(child)
		}
	}
}

func (a *Archive) fileEntry(i int, rec *Record, name string) *fsEntry {
	e := &fsEntry{name: name, rec: rec}
	if t, err := rec.Modified.Time(); err == nil {
		e.modtime = t
	}

	kind := uint16(KindDataFork)
	dataT, _, ok := rec.find(ClassData, KindDataFork)
	if !ok {
		if dataT, _, ok = rec.find(ClassData, KindDiskImage); ok {
			kind = KindDiskImage
		}
	}
	if ok {
		e.data = blockcache.New(
			fmt.Sprintf("%016x.%d.%d", a.digest, i, kind),
			int64(dataT.UncompressedSize),
			func() (io.Reader, error) { return a.forkStream(rec, ClassData, kind), nil })
	}

	created, _ := rec.Created.Time()
	info := appledouble.FileInfo{
		Access:   rec.Access,
		FileType: rec.FileType,
		AuxType:  rec.AuxType,
		Created:  created,
		Modified: e.modtime,
	}
	var rsize int64
	if rsrcT, _, ok := rec.find(ClassData, KindResourceFork); ok {
		rsize = int64(rsrcT.UncompressedSize)
	}
	prefix := appledouble.Prefix(info, rsize)
	e.sidecar = blockcache.New(
		fmt.Sprintf("%016x.%d.ad", a.digest, i),
		int64(len(prefix))+rsize,
		func() (io.Reader, error) {
			if rsize == 0 {
				return bytes.NewReader(prefix), nil
			}
			return io.MultiReader(bytes.NewReader(prefix),
				a.forkStream(rec, ClassData, KindResourceFork)), nil
		})

	return e
}

type fsys struct {
	root *fsEntry
}

func (fsys *fsys) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	components := strings.Split(name, "/")
	if name == "." {
		components = nil
	}

	sidecar := false
	if len(components) > 0 {
		components[len(components)-1], sidecar = strings.CutPrefix(components[len(components)-1], "._")
	}

	e := fsys.root
	for _, c := range components {
		child, ok := e.childMap[c]
		if !ok {
			return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
		}
		e = child
	}
	if sidecar && (e.isdir || e.sidecar == nil) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return open(e, sidecar), nil
}

func open(e *fsEntry, sidecar bool) *openfile {
	f := &openfile{e: e, sidecar: sidecar}
	switch {
	case sidecar:
		f.rsrs = io.NewSectionReader(e.sidecar, 0, e.sidecar.Size())
	case e.isdir:
		f.rsrs = bytes.NewReader(nil)
	case e.data != nil:
		f.rsrs = io.NewSectionReader(e.data, 0, e.data.Size())
	default:
		f.rsrs = bytes.NewReader(nil) // record with no data thread at all
	}
	return f
}

type openfile struct {
	rsrs
	e          *fsEntry
	sidecar    bool
	listOffset int
}

type rsrs interface {
	Read([]byte) (int, error)
	Seek(offset int64, whence int) (int64, error)
	ReadAt([]byte, int64) (int, error)
	Size() int64
}

func (f *openfile) Name() string { // implements fs.FileInfo and fs.DirEntry
	if f.sidecar {
		return "._" + f.e.name
	}
	return f.e.name
}

func (f *openfile) Mode() fs.FileMode { // implements fs.FileInfo
	if f.IsDir() {
		return fs.ModeDir
	}
	return 0
}

func (f *openfile) Type() fs.FileMode { // implements fs.DirEntry
	return f.Mode()
}

func (f *openfile) ModTime() time.Time { return f.e.modtime }

func (f *openfile) Sys() any { return f.e.rec }

func (f *openfile) IsDir() bool { return f.e.isdir && !f.sidecar }

// To satisfy fs.ReadDirFile, has slightly tricky partial-listing semantics.
// Every file child is listed twice: itself, then its AppleDouble sidecar.
func (f *openfile) ReadDir(count int) ([]fs.DirEntry, error) {
	var all []fs.DirEntry
	for _, child := range f.e.childSlice {
		all = append(all, open(child, false))
		if !child.isdir && child.sidecar != nil {
			all = append(all, open(child, true))
		}
	}
	all = all[min(f.listOffset, len(all)):]

	if count <= 0 {
		f.listOffset += len(all)
		return all, nil
	}
	if len(all) == 0 {
		return nil, io.EOF
	}
	if len(all) > count {
		all = all[:count]
	}
	f.listOffset += len(all)
	return all, nil
}

func (f *openfile) Info() (fs.FileInfo, error) { return f, nil }

func (f *openfile) Stat() (fs.FileInfo, error) { return f, nil }

func (f *openfile) Close() error { return nil }
