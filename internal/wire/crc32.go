// Package wire implements the AWS-style binary event-stream framing used
// by the upstream protocol: CRC32, frame decoding, and the typed header
// TLV codec (spec §3, §4.1, §4.2).
package wire

import "hash/crc32"

// checksum computes the IEEE 802.3 CRC32 of b, matching the upstream
// protocol's prelude_crc/message_crc fields.
func checksum(b []byte) uint32 {
	return crc32.ChecksumIEEE(b)
}
