package nufx

import "fmt"

// ThreadClass selects the broad purpose of a thread within a record.
type ThreadClass uint16

const (
	ClassMessage  ThreadClass = 0
	ClassControl  ThreadClass = 1
	ClassData     ThreadClass = 2
	ClassFileName ThreadClass = 3
)

func (c ThreadClass) String() string {
	switch c {
	case ClassMessage:
		return "Message"
	case ClassControl:
		return "Control"
	case ClassData:
		return "Data"
	case ClassFileName:
		return "FileName"
	default:
		return fmt.Sprintf("Class(%d)", uint16(c))
	}
}

// Format is the compression algorithm of a single thread.
type Format uint16

const (
	Uncompressed   Format = 0
	HuffmanSqueeze Format = 1
	DynamicLZW1    Format = 2
	DynamicLZW2    Format = 3
	Unix12         Format = 4
	Unix16         Format = 5
)

func (f Format) String() string {
	switch f {
	case Uncompressed:
		return "Uncompressed"
	case HuffmanSqueeze:
		return "HuffmanSqueeze"
	case DynamicLZW1:
		return "DynamicLZW/1"
	case DynamicLZW2:
		return "DynamicLZW/2"
	case Unix12:
		return "Unix12"
	case Unix16:
		return "Unix16"
	default:
		return fmt.Sprintf("Format(%d)", uint16(f))
	}
}

// Kinds under ClassData. For ClassFileName the kind is always 0.
const (
	KindDataFork     = 0
	KindDiskImage    = 1
	KindResourceFork = 2
)

// FileSys identifies the filesystem the record was archived from.
// The low byte of the record's filesystem-info word holds the path separator.
type FileSys uint16

const (
	FileSysProDOS      FileSys = 1
	FileSysDOS33       FileSys = 2
	FileSysDOS32       FileSys = 3
	FileSysPascal      FileSys = 4
	FileSysMacHFS      FileSys = 5
	FileSysMacMFS      FileSys = 6
	FileSysLisa        FileSys = 7
	FileSysCPM         FileSys = 8
	FileSysMSDOS       FileSys = 10
	FileSysHighSierra  FileSys = 11
	FileSysISO9660     FileSys = 12
	FileSysAppleShare  FileSys = 13
)

func (f FileSys) String() string {
	switch f {
	case FileSysProDOS:
		return "ProDOS"
	case FileSysDOS33:
		return "DOS 3.3"
	case FileSysDOS32:
		return "DOS 3.2"
	case FileSysPascal:
		return "Apple II Pascal"
	case FileSysMacHFS:
		return "Macintosh HFS"
	case FileSysMacMFS:
		return "Macintosh MFS"
	case FileSysLisa:
		return "Lisa"
	case FileSysCPM:
		return "CP/M"
	case FileSysMSDOS:
		return "MS-DOS"
	case FileSysHighSierra:
		return "High Sierra"
	case FileSysISO9660:
		return "ISO 9660"
	case FileSysAppleShare:
		return "AppleShare"
	default:
		return fmt.Sprintf("FileSys(%d)", uint16(f))
	}
}

// ProDOS access bits, stored as the low byte of the record's 32-bit access word.
const (
	AccessRead      = 0x01
	AccessWrite     = 0x02
	AccessInvisible = 0x04
	AccessBackup    = 0x20
	AccessRename    = 0x40
	AccessDestroy   = 0x80
)

// ProDOS storage types. For disk-image records the same field carries
// the block size of the image instead.
const (
	StorageSeedling  = 0x01
	StorageSapling   = 0x02
	StorageTree      = 0x03
	StorageExtended  = 0x05
	StorageDirectory = 0x0d
)
