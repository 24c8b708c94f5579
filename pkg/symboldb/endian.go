package symboldb

import "unsafe"

// nativeIsLittleEndian detects the host's byte order. The on-disk format
// is little-endian only in v1; big-endian hosts fail Open with
// UnsupportedEndian rather than silently misreading offsets.
func nativeIsLittleEndian() bool {
	var x uint16 = 1
	b := (*[2]byte)(unsafe.Pointer(&x))
	return b[0] == 1
}
