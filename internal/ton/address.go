package ton

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Address is a parsed TON account address: workchain plus 256-bit hash.
type Address struct {
	Workchain int32
	Hash      [32]byte
}

const (
	flagBounceable    = 0x11
	flagNonBounceable = 0x51
	flagTestOnly      = 0x80
)

// ParseAddress accepts either the raw "wc:hex" form or the 48-character
// user-friendly base64 form (std or url alphabet, with CRC-16 checksum).
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Address{}, fmt.Errorf("empty address")
	}
	if strings.Contains(s, ":") {
		return parseRaw(s)
	}
	return parseFriendly(s)
}

func parseRaw(s string) (Address, error) {
	parts := strings.SplitN(s, ":", 2)
	wc, err := strconv.ParseInt(parts[0], 10, 32)
	if err != nil {
		return Address{}, fmt.Errorf("invalid workchain %q: %w", parts[0], err)
	}
	raw, err := hex.DecodeString(parts[1])
	if err != nil {
		return Address{}, fmt.Errorf("invalid address hash: %w", err)
	}
	if len(raw) != 32 {
		return Address{}, fmt.Errorf("address hash must be 32 bytes, got %d", len(raw))
	}
	var a Address
	a.Workchain = int32(wc)
	copy(a.Hash[:], raw)
	return a, nil
}

func parseFriendly(s string) (Address, error) {
	data, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		data, err = base64.StdEncoding.DecodeString(s)
	}
	if err != nil {
		return Address{}, fmt.Errorf("invalid base64 address: %w", err)
	}
	if len(data) != 36 {
		return Address{}, fmt.Errorf("friendly address must decode to 36 bytes, got %d", len(data))
	}
	tag := data[0] &^ flagTestOnly
	if tag != flagBounceable&^flagTestOnly && tag != flagNonBounceable&^flagTestOnly {
		return Address{}, fmt.Errorf("unknown address tag 0x%02x", data[0])
	}
	if crc16(data[:34]) != uint16(data[34])<<8|uint16(data[35]) {
		return Address{}, fmt.Errorf("address checksum mismatch")
	}
	var a Address
	a.Workchain = int32(int8(data[1]))
	copy(a.Hash[:], data[2:34])
	return a, nil
}

// Raw returns the canonical "wc:hex" form used as the store key.
func (a Address) Raw() string {
	return fmt.Sprintf("%d:%s", a.Workchain, hex.EncodeToString(a.Hash[:]))
}

// Friendly returns the bounceable url-safe base64 form.
func (a Address) Friendly() string {
	data := make([]byte, 36)
	data[0] = flagBounceable
	data[1] = byte(int8(a.Workchain))
	copy(data[2:34], a.Hash[:])
	sum := crc16(data[:34])
	data[34] = byte(sum >> 8)
	data[35] = byte(sum)
	return base64.URLEncoding.EncodeToString(data)
}

func (a Address) String() string {
	return a.Raw()
}

// crc16 is CRC-16/XMODEM as used by TON friendly addresses.
func crc16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
