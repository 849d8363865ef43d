// Package idgen mints correlation ids for outbound JSON-RPC requests.
//
// Ids only need to be unique within the lifetime of the emitting peer's
// pending-call table; folding in the peer's address and port keeps ids
// from different peers visually distinct in logs even though collisions
// across peers are harmless. Grounded on the ez-ipc reference
// implementation's mkid(), which combines a random UUID with the peer's
// port and the sum of its address octets.
package idgen

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// New mints a correlation id scoped to a peer at addr:port.
//
// addr may be an IPv4/IPv6 literal or a hostname; unparseable values
// fall back to summing the characters (runes) of the string so New
// never errors.
func New(addr string, port int) string {
	return format(entropy(), addr, port)
}

// Regenerate mints a fresh id, for use when New's result collides with
// an id already present in the caller's pending-call table.
func Regenerate(addr string, port int) string {
	return New(addr, port)
}

func entropy() uint64 {
	id := uuid.New()
	hi := binary.BigEndian.Uint64(id[0:8])
	lo := binary.BigEndian.Uint64(id[8:16])
	return hi ^ lo
}

func format(seed uint64, addr string, port int) string {
	mixed := (seed + uint64(port) + uint64(addrSum(addr))) & 0xFFFFFF
	return fmt.Sprintf("%06x", mixed)
}

func addrSum(addr string) int {
	if ip := net.ParseIP(addr); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			ip = v4
		}
		sum := 0
		for _, b := range ip {
			sum += int(b)
		}
		return sum
	}
	sum := 0
	for _, r := range addr {
		sum += int(r)
	}
	return sum
}

// RandomSuffix returns a short hex suffix (at most six digits, not
// zero-padded), for callers that need a random tag without a peer
// address/port pair on hand.
func RandomSuffix() string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failure is effectively unrecoverable on any real
		// platform; fall back to a fixed tag rather than panicking.
		return "000000"
	}
	return strings.ToLower(strconv.FormatUint(uint64(binary.BigEndian.Uint32(b[:])&0xFFFFFF), 16))
}
