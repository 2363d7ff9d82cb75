package bsi

import (
	"github.com/juju/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// Settings is the persisted user configuration and current broadcast frame.
type Settings struct {
	Language uint8
	Celsius  bool
	Hour24   bool
	Frame    SettingsFrame
}

type settingsRecord struct {
	Language uint8  `msgpack:"lang"`
	Hour24   bool   `msgpack:"h24"`
	Celsius  bool   `msgpack:"celsius"`
	Frame    []byte `msgpack:"frame"`
}

// EnsureBaseline installs baseline frame when none was ever loaded (all zero).
func (s *Settings) EnsureBaseline(baseline SettingsFrame) {
	if s.Frame.IsZero() {
		s.Frame = baseline
		s.Frame[0] |= bitMenuActive
	}
}

// ApplyLanguageAndUnits re-derives byte 0 and byte 1 bit 6 from stored fields.
func (s *Settings) ApplyLanguageAndUnits() {
	s.Language &= LanguageMax
	s.Frame = s.Frame.WithLanguageUnits(s.Language, s.Celsius)
}

// ApplySettingsWrite interprets inbound settings write and mutates s.
// Returns false when input is empty and nothing changed.
func ApplySettingsWrite(s *Settings, input []byte) bool {
	if len(input) == 0 {
		return false
	}
	var buf [SettingsFrameLen]byte
	n := copy(buf[:], input)

	useTail := n > 1 && buf[1]&bitTailPresent != 0
	if useTail {
		s.Frame.OverrideTail(buf[:n])
	}
	if buf[0]&bitLangUnits != 0 {
		s.Language = (buf[0] & maskLanguage) >> 2
		s.Celsius = buf[1]&bitCelsius != 0
	} else if useTail {
		// unit bit travels with the tail, stored flag follows it
		s.Celsius = buf[1]&bitCelsius != 0
	}
	s.ApplyLanguageAndUnits()
	return true
}

func (s Settings) MarshalBinary() ([]byte, error) {
	r := settingsRecord{
		Language: s.Language,
		Hour24:   s.Hour24,
		Celsius:  s.Celsius,
		Frame:    s.Frame[:],
	}
	b, err := msgpack.Marshal(&r)
	return b, errors.Annotate(err, "settings marshal")
}

func (s *Settings) UnmarshalBinary(b []byte) error {
	var r settingsRecord
	if err := msgpack.Unmarshal(b, &r); err != nil {
		return errors.Annotate(err, "settings unmarshal")
	}
	if len(r.Frame) != 0 && len(r.Frame) != SettingsFrameLen {
		return errors.NotValidf("settings frame length=%d", len(r.Frame))
	}
	*s = Settings{
		Language: r.Language & LanguageMax,
		Hour24:   r.Hour24,
		Celsius:  r.Celsius,
		Frame:    SettingsFrameFromBytes(r.Frame),
	}
	return nil
}
