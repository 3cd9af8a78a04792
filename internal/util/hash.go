// Package util provides shared logging, metrics and identification helpers.
package util

import (
	"fmt"
	"hash/fnv"
	"net"
)

// ConnID computes a 4-byte hash from a connection's endpoints (local and
// remote address). It is used solely to tag log lines and does not need to
// be reversible.
func ConnID(conn net.Conn) uint32 {
	h := fnv.New32a()
	if a := conn.LocalAddr(); a != nil {
		h.Write([]byte(a.Network() + "/" + a.String()))
	}
	if a := conn.RemoteAddr(); a != nil {
		h.Write([]byte(a.Network() + "/" + a.String()))
	}
	return h.Sum32()
}

// ConnTag formats ConnID as the 8-digit hex tag used in log prefixes.
func ConnTag(conn net.Conn) string {
	return fmt.Sprintf("%08x", ConnID(conn))
}
