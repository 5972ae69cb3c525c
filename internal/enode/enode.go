// Package enode implements the peer address value used across nodekeeper:
// a node identity plus the IP and port it listens on, with the canonical
// enode://<id>@<host>:<port> text encoding.
package enode

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strconv"
)

// Scheme is the URL scheme of every canonical enode address.
const Scheme = "enode"

// DefaultPort is the devp2p listening port clients use when none is configured.
const DefaultPort uint16 = 30303

var (
	// ErrScheme is returned when the URL scheme is not "enode".
	ErrScheme = errors.New("enode: scheme must be enode")
	// ErrNoID is returned when the URL has no identity (user) part.
	ErrNoID = errors.New("enode: missing node id")
	// ErrHost is returned when the host is missing or not an IP literal.
	ErrHost = errors.New("enode: host must be an IP address")
	// ErrPort is returned when the port is missing or out of range.
	ErrPort = errors.New("enode: missing or invalid port")
)

// Address identifies a peer on the network.
//
// Address is a value type: it is produced by Parse (or by decoding a JSON
// string) and handed by value to the next stage. The zero Address is not a
// valid peer.
type Address struct {
	// ID is the public-key derived node identity, opaque to nodekeeper.
	ID string
	// IP is the address the node listens on.
	IP netip.Addr
	// Port is the devp2p listening port.
	Port uint16
}

// New builds an Address from its components.
func New(id string, ip netip.Addr, port uint16) Address {
	return Address{ID: id, IP: ip, Port: port}
}

// Parse decodes s, which must have the form enode://<id>@<ip>:<port>.
// Query parameters such as ?discport= are accepted and ignored.
func Parse(s string) (Address, error) {
	u, err := url.Parse(s)
	if err != nil {
		return Address{}, fmt.Errorf("enode: parse %q: %w", s, err)
	}
	if u.Scheme != Scheme {
		return Address{}, fmt.Errorf("%w: %q", ErrScheme, s)
	}
	if u.User == nil || u.User.Username() == "" {
		return Address{}, fmt.Errorf("%w: %q", ErrNoID, s)
	}

	host := u.Hostname()
	if host == "" {
		return Address{}, fmt.Errorf("%w: %q", ErrHost, s)
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %q", ErrHost, s)
	}

	rawPort := u.Port()
	if rawPort == "" {
		return Address{}, fmt.Errorf("%w: %q", ErrPort, s)
	}
	port, err := strconv.ParseUint(rawPort, 10, 16)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %q", ErrPort, s)
	}

	return Address{ID: u.User.Username(), IP: ip, Port: uint16(port)}, nil
}

// MustParse is like Parse but panics on error. For tests and constants.
func MustParse(s string) Address {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String returns the canonical enode URL.
func (a Address) String() string {
	return Scheme + "://" + a.ID + "@" + net.JoinHostPort(a.IP.String(), strconv.Itoa(int(a.Port)))
}

// IsValid reports whether a has an identity and an IP.
func (a Address) IsValid() bool {
	return a.ID != "" && a.IP.IsValid()
}

// MarshalText encodes a as its canonical URL.
func (a Address) MarshalText() ([]byte, error) {
	if !a.IsValid() {
		return nil, fmt.Errorf("enode: marshal invalid address %+v", a)
	}
	return []byte(a.String()), nil
}

// UnmarshalText decodes a canonical URL into a.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
