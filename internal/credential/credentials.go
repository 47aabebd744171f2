// Package credential hands access point join credentials from a host to a
// client over a short-range wireless side channel.
package credential

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Delimiter separates the fields of the wire payload.
const Delimiter = "\t"

var (
	// ErrDelimiter is returned when a field would contain the wire delimiter.
	ErrDelimiter = errors.New("credential field contains the field delimiter")
	// ErrAddress is returned when the address is not a dotted-quad IPv4 address.
	ErrAddress = errors.New("credential address is not a dotted-quad IPv4 address")
	// ErrMalformed is returned when a payload does not decode into credentials.
	ErrMalformed = errors.New("malformed credential payload")
)

// Credentials are what a client needs to join a host's access point and reach
// its backend.
type Credentials struct {
	NetworkName string `json:"network_name"`
	Passphrase  string `json:"passphrase"`
	Address     string `json:"address"`
}

// Encode serializes c as networkName, passphrase and address joined by a tab.
func Encode(c Credentials) ([]byte, error) {
	if strings.Contains(c.NetworkName, Delimiter) || strings.Contains(c.Passphrase, Delimiter) {
		return nil, ErrDelimiter
	}
	if !IsDottedQuad(c.Address) {
		return nil, fmt.Errorf("%w: %q", ErrAddress, c.Address)
	}
	return []byte(c.NetworkName + Delimiter + c.Passphrase + Delimiter + c.Address), nil
}

// Decode parses a payload produced by Encode. Fields past the third are
// ignored.
func Decode(payload []byte) (Credentials, error) {
	parts := strings.Split(string(payload), Delimiter)
	if len(parts) < 3 {
		return Credentials{}, fmt.Errorf("%w: %d fields", ErrMalformed, len(parts))
	}
	c := Credentials{
		NetworkName: parts[0],
		Passphrase:  parts[1],
		Address:     parts[2],
	}
	if !IsDottedQuad(c.Address) {
		return Credentials{}, fmt.Errorf("%w: bad address %q", ErrMalformed, c.Address)
	}
	return c, nil
}

// IsDottedQuad reports whether s is four dot-separated decimal octets.
func IsDottedQuad(s string) bool {
	_, ok := ParseOctets(s)
	return ok
}

// ParseOctets splits a dotted-quad address into its four octets.
func ParseOctets(s string) ([4]int, bool) {
	var octets [4]int
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return octets, false
	}
	for i, p := range parts {
		if p == "" || len(p) > 3 {
			return octets, false
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 || strings.HasPrefix(p, "+") {
			return octets, false
		}
		octets[i] = n
	}
	return octets, true
}
