// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package nufx

import "errors"

var (
	ErrFormat   = errors.New("not a NuFX archive")
	ErrVersion  = errors.New("NuFX master version too new")
	ErrCorrupt  = errors.New("corrupt NuFX compressed data")
	ErrChecksum = errors.New("NuFX checksum mismatch")
	ErrAlgo     = errors.New("unimplemented NuFX compression format")
	ErrRange    = errors.New("field out of range")
)
