package tcpslot

import "github.com/leocurrie/httpofo"

// Checksum computes the TCP checksum over segment (header+payload) with
// the pseudo-header of spec.md §4.6 prepended: source IPv4, destination
// IPv4, a zero byte, protocol=6, and the TCP length. The segment's own
// checksum field is treated as zero.
func Checksum(srcAddr, dstAddr [4]byte, segment []byte) uint16 {
	var c httpofo.CRC791
	c.Write(srcAddr[:])
	c.Write(dstAddr[:])
	c.AddUint16(uint16(httpofo.IPProtoTCP))
	c.AddUint16(uint16(len(segment)))
	f, err := NewFrame(segment)
	if err != nil {
		c.Write(segment)
		return c.Sum16()
	}
	saved := f.CRC()
	f.SetCRC(0)
	c.Write(segment)
	f.SetCRC(saved)
	return c.Sum16()
}
