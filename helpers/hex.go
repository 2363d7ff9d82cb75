package helpers

import (
	"encoding/hex"
	"strings"

	"github.com/juju/errors"
)

// ParseHex accepts "80 00 ff" or "8000ff", returns error if result length is not `expect`.
// expect<0 means any length.
func ParseHex(s string, expect int) ([]byte, error) {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ' ', ':', '-', '\t':
			return -1
		}
		return r
	}, s)
	b, err := hex.DecodeString(clean)
	if err != nil {
		return nil, errors.NotValidf("hex=%q", s)
	}
	if expect >= 0 && len(b) != expect {
		return nil, errors.NotValidf("hex=%q length=%d expected=%d", s, len(b), expect)
	}
	return b, nil
}
