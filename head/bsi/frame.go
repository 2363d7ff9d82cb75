package bsi

import (
	"encoding/hex"
)

const SettingsFrameLen = 8

const (
	bitMenuActive  = 0x80 // byte0
	maskLanguage   = 0x7c // byte0 bits6..2
	maskPassthru0  = 0x03 // byte0 bits1..0
	bitCelsius     = 0x40 // byte1
	bitTailPresent = 0x04 // byte1, inbound write only
	bitLangUnits   = 0x80 // byte0, inbound write only

	LanguageMax = 0x1f
)

// SettingsFrame is the 8 byte settings broadcast.
// Byte 0 bit 7 (menu active) is set by every method that produces wire bytes.
type SettingsFrame [SettingsFrameLen]byte

func (f SettingsFrame) Language() uint8  { return (f[0] & maskLanguage) >> 2 }
func (f SettingsFrame) Celsius() bool    { return f[1]&bitCelsius != 0 }
func (f SettingsFrame) MenuActive() bool { return f[0]&bitMenuActive != 0 }
func (f SettingsFrame) IsZero() bool     { return f == SettingsFrame{} }

// WithLanguageUnits returns copy with language, units and menu active bits re-derived.
// Passthrough bits of byte 0 and all other tail bits are preserved.
func (f SettingsFrame) WithLanguageUnits(language uint8, celsius bool) SettingsFrame {
	f[0] = bitMenuActive | (language&LanguageMax)<<2 | f[0]&maskPassthru0
	if celsius {
		f[1] |= bitCelsius
	} else {
		f[1] &^= bitCelsius
	}
	return f
}

// OverrideTail copies src[1:] over tail bytes. Byte 0 is never touched.
func (f *SettingsFrame) OverrideTail(src []byte) {
	if len(src) > SettingsFrameLen {
		src = src[:SettingsFrameLen]
	}
	if len(src) > 1 {
		copy(f[1:], src[1:])
	}
}

// Wire returns broadcast bytes, menu active forced.
func (f SettingsFrame) Wire() []byte {
	f[0] |= bitMenuActive
	b := make([]byte, SettingsFrameLen)
	copy(b, f[:])
	return b
}

func (f SettingsFrame) String() string { return hex.EncodeToString(f[:]) }

func SettingsFrameFromBytes(b []byte) SettingsFrame {
	var f SettingsFrame
	copy(f[:], b)
	return f
}
