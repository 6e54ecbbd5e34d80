// Package util provides shared utility functions.
package util

import (
	"net"

	"github.com/cespare/xxhash/v2"
)

type addrPair interface {
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}

// Fingerprint computes a 4-byte hash from a connection's local and remote
// addresses. It is used solely to tell log lines apart and does not need to
// be reversible. Connections without addresses hash the fallback string.
func Fingerprint(conn any, fallback string) uint32 {
	d := xxhash.New()
	if c, ok := conn.(addrPair); ok && c.LocalAddr() != nil && c.RemoteAddr() != nil {
		d.WriteString(c.LocalAddr().String())
		d.WriteString(c.RemoteAddr().String())
	} else {
		d.WriteString(fallback)
	}
	return uint32(d.Sum64())
}
