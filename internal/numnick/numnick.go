// Package numnick implements the P10 base-64 numnick codec: the compact
// 2-character server identifier and 3-character (per-server) client
// identifier that together form a globally unique routing address.
package numnick

import "fmt"

// alphabet is the P10 base-64 alphabet, big-endian. Index 0 is the lowest
// digit. Note this is NOT standard base64 — order and charset both differ.
const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789[]"

const (
	// ServerBits is the number of bits encoded by a 2-char server numnick.
	ServerBits = 12 // 2 * 6
	// ClientBits is the number of bits encoded by a 3-char client numnick.
	ClientBits = 18 // 3 * 6

	// MaxServers is the exclusive upper bound of valid server numnicks.
	MaxServers = 1 << ServerBits // 4096
	// MaxClients is the exclusive upper bound of valid per-server client numnicks.
	MaxClients = 1 << ClientBits // 262144
)

var reverse [256]int8

func init() {
	for i := range reverse {
		reverse[i] = -1
	}
	for i, c := range alphabet {
		reverse[byte(c)] = int8(i)
	}
}

// EncodeServer renders a server numnick (range [0, MaxServers)) as its
// 2-character wire form.
func EncodeServer(n int) (string, error) {
	if n < 0 || n >= MaxServers {
		return "", fmt.Errorf("numnick: server value %d out of range [0,%d)", n, MaxServers)
	}
	return string([]byte{alphabet[(n>>6)&0x3f], alphabet[n&0x3f]}), nil
}

// DecodeServer parses a 2-character server numnick back to its numeric value.
func DecodeServer(s string) (int, error) {
	if len(s) != 2 {
		return 0, fmt.Errorf("numnick: server numnick must be 2 chars, got %q", s)
	}
	hi, lo := reverse[s[0]], reverse[s[1]]
	if hi < 0 || lo < 0 {
		return 0, fmt.Errorf("numnick: invalid server numnick %q", s)
	}
	return int(hi)<<6 | int(lo), nil
}

// EncodeClient renders a client numnick (range [0, MaxClients)), scoped to
// its owning server, as its 3-character wire form.
func EncodeClient(n int) (string, error) {
	if n < 0 || n >= MaxClients {
		return "", fmt.Errorf("numnick: client value %d out of range [0,%d)", n, MaxClients)
	}
	return string([]byte{
		alphabet[(n>>12)&0x3f],
		alphabet[(n>>6)&0x3f],
		alphabet[n&0x3f],
	}), nil
}

// DecodeClient parses a 3-character client numnick back to its numeric value.
func DecodeClient(s string) (int, error) {
	if len(s) != 3 {
		return 0, fmt.Errorf("numnick: client numnick must be 3 chars, got %q", s)
	}
	a, b, c := reverse[s[0]], reverse[s[1]], reverse[s[2]]
	if a < 0 || b < 0 || c < 0 {
		return 0, fmt.Errorf("numnick: invalid client numnick %q", s)
	}
	return int(a)<<12 | int(b)<<6 | int(c), nil
}

// Full is a globally unique 5-character client address: the owning server's
// 2-char numnick followed by the client's 3-char numnick.
type Full string

// Join combines a server numnick and a client numnick into the 5-char form
// used on the wire as a message prefix or parameter.
func Join(server string, client string) Full {
	return Full(server + client)
}

// Split breaks a 5-char numnick back into its server and client parts.
func Split(full Full) (server, client string, err error) {
	if len(full) != 5 {
		return "", "", fmt.Errorf("numnick: full numnick must be 5 chars, got %q", full)
	}
	return string(full[:2]), string(full[2:]), nil
}

// IsServerNumnick reports whether s looks like a bare 2-char server numnick
// (as opposed to a 5-char client numnick or a plain server/nick name).
func IsServerNumnick(s string) bool {
	if len(s) != 2 {
		return false
	}
	_, err := DecodeServer(s)
	return err == nil
}
