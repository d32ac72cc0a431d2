package wallet

import "encoding/binary"

// zero overwrites the given buffer with zeros.
func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// appendLengthPrefixed appends the big-endian uint32 length of data followed
// by data itself.
func appendLengthPrefixed(buf, data []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(data)))
	return append(buf, data...)
}
