package state

import (
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/hcl"
	"github.com/juju/errors"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/hardware/can"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/head/bsi"
	tele_config "github.com/kyrylomyronov-mr/Peugeot-308-SMEG/head/tele/config"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/helpers"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/log2"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/state/persist"
)

const (
	DriverSocketCAN = "socketcan"

	DefaultInterface   = "can0"
	DefaultProfile     = "125k"
	DefaultPersistRoot = "./tmp-bsiemu-db"

	maxStandardID = 0x7ff
)

// Profiles known without configuration. Config `profile` blocks add or override.
var builtinProfiles = map[string]int{
	"125k": 125000,
	"250k": 250000,
	"500k": 500000,
}

type Config struct {
	// includeSeen contains absolute paths to prevent include loops
	includeSeen map[string]struct{}
	// only used for Unmarshal, do not access
	XXX_Include []ConfigSource `hcl:"include"`

	Bus struct {
		Driver        string `hcl:"driver"`
		Interface     string `hcl:"interface"`
		Profile       string `hcl:"profile"`
		SetBitrate    bool   `hcl:"set_bitrate"`
		SendTimeoutMs int    `hcl:"send_timeout_ms"`
		PollMs        int    `hcl:"poll_ms"`
		LogDebug      bool   `hcl:"log_debug"`
	} `hcl:"bus"`
	Profiles []ProfileConfig `hcl:"profile"`
	IDs      struct {
		SettingsWrite     int `hcl:"settings_write"`
		SettingsBroadcast int `hcl:"settings_broadcast"`
		TimeWrite         int `hcl:"time_write"`
		TimeBroadcast     int `hcl:"time_broadcast"`
	} `hcl:"ids"`
	Broadcast struct {
		SettingsMs int `hcl:"settings_ms"`
		TimeMs     int `hcl:"time_ms"`
	} `hcl:"broadcast"`
	Settings struct {
		Baseline string `hcl:"baseline"`
		Language int    `hcl:"language"`
		// nil means true
		Celsius *bool `hcl:"celsius"`
		Hour24  *bool `hcl:"h24"`
	} `hcl:"settings"`
	Clock struct {
		SetSystem bool `hcl:"set_system"`
	} `hcl:"clock"`
	Persist struct {
		Root    string `hcl:"root"`
		Backend string `hcl:"backend"`
	} `hcl:"persist"`
	Tele tele_config.Config `hcl:"tele"`
	Web  struct {
		Listen string `hcl:"listen"`
	} `hcl:"web"`
	LogDebug bool `hcl:"log_debug"`

	_copy_guard sync.Mutex //nolint:unused
}

type ConfigSource struct {
	Name     string `hcl:"name,key"`
	Optional bool   `hcl:"optional"`
}

type ProfileConfig struct {
	Name    string `hcl:"name,key"`
	Bitrate int    `hcl:"bitrate"`
}

func (c *Config) BusDriver() string {
	if c.Bus.Driver == "" {
		return DriverSocketCAN
	}
	return c.Bus.Driver
}

func (c *Config) BusInterface() string {
	if c.Bus.Interface == "" {
		return DefaultInterface
	}
	return c.Bus.Interface
}

func (c *Config) PollInterval() time.Duration {
	return helpers.IntMillisecondDefault(c.Bus.PollMs, 5*time.Millisecond)
}

// BusProfile resolves profile by name, empty name means configured default.
func (c *Config) BusProfile(name string) (can.Profile, error) {
	if name == "" {
		name = c.Bus.Profile
	}
	if name == "" {
		name = DefaultProfile
	}
	// last definition wins, same as plain hcl keys
	for i := len(c.Profiles) - 1; i >= 0; i-- {
		if p := c.Profiles[i]; p.Name == name {
			if p.Bitrate <= 0 {
				return can.Profile{}, errors.NotValidf("profile=%s bitrate=%d", name, p.Bitrate)
			}
			return can.Profile{Name: name, Bitrate: p.Bitrate}, nil
		}
	}
	if bitrate, ok := builtinProfiles[name]; ok {
		return can.Profile{Name: name, Bitrate: bitrate}, nil
	}
	return can.Profile{}, errors.NotFoundf("bus profile=%s", name)
}

func (c *Config) ProfileNames() []string {
	seen := make(map[string]struct{}, len(builtinProfiles)+len(c.Profiles))
	for name := range builtinProfiles {
		seen[name] = struct{}{}
	}
	for _, p := range c.Profiles {
		seen[p.Name] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Config) PersistBackend() string {
	if c.Persist.Backend == "" {
		return persist.BackendExtremofile
	}
	return c.Persist.Backend
}

// EmulatorConfig maps config blocks onto emulator parameters, zero values keep defaults.
func (c *Config) EmulatorConfig() (bsi.Config, error) {
	ec := bsi.DefaultConfig()
	errs := make([]error, 0)

	ids := []struct {
		name string
		v    int
		dst  *uint32
	}{
		{"settings_write", c.IDs.SettingsWrite, &ec.IDs.SettingsWrite},
		{"settings_broadcast", c.IDs.SettingsBroadcast, &ec.IDs.SettingsBroadcast},
		{"time_write", c.IDs.TimeWrite, &ec.IDs.TimeWrite},
		{"time_broadcast", c.IDs.TimeBroadcast, &ec.IDs.TimeBroadcast},
	}
	for _, id := range ids {
		switch {
		case id.v == 0:
		case id.v < 0 || id.v > maxStandardID:
			errs = append(errs, errors.NotValidf("config: ids.%s=%#x", id.name, id.v))
		default:
			*id.dst = uint32(id.v)
		}
	}

	ec.SettingsPeriod = helpers.IntMillisecondDefault(c.Broadcast.SettingsMs, ec.SettingsPeriod)
	ec.TimePeriod = helpers.IntMillisecondDefault(c.Broadcast.TimeMs, ec.TimePeriod)
	ec.SendTimeout = helpers.IntMillisecondDefault(c.Bus.SendTimeoutMs, ec.SendTimeout)
	if c.Broadcast.SettingsMs < 0 || c.Broadcast.TimeMs < 0 || c.Bus.SendTimeoutMs < 0 {
		errs = append(errs, errors.NotValidf("config: negative period"))
	}

	if c.Settings.Baseline != "" {
		b, err := helpers.ParseHex(c.Settings.Baseline, bsi.SettingsFrameLen)
		if err != nil {
			errs = append(errs, errors.Annotate(err, "config: settings.baseline"))
		} else {
			ec.Baseline = bsi.SettingsFrameFromBytes(b)
		}
	}
	if c.Settings.Language < 0 || c.Settings.Language > bsi.LanguageMax {
		errs = append(errs, errors.NotValidf("config: settings.language=%d", c.Settings.Language))
	} else {
		ec.Defaults.Language = uint8(c.Settings.Language)
	}
	if c.Settings.Celsius != nil {
		ec.Defaults.Celsius = *c.Settings.Celsius
	}
	if c.Settings.Hour24 != nil {
		ec.Defaults.Hour24 = *c.Settings.Hour24
	}

	return ec, helpers.FoldErrors(errs)
}

func (c *Config) Validate() error {
	errs := make([]error, 0)
	if c.BusDriver() != DriverSocketCAN {
		errs = append(errs, errors.NotSupportedf("config: bus.driver=%s", c.Bus.Driver))
	}
	if _, err := c.BusProfile(""); err != nil {
		errs = append(errs, errors.Annotate(err, "config: bus.profile"))
	}
	for _, p := range c.Profiles {
		if _, err := c.BusProfile(p.Name); err != nil {
			errs = append(errs, errors.Annotate(err, "config: profile"))
		}
	}
	if c.Bus.PollMs < 0 {
		errs = append(errs, errors.NotValidf("config: bus.poll_ms=%d", c.Bus.PollMs))
	}
	if _, err := c.EmulatorConfig(); err != nil {
		errs = append(errs, err)
	}
	if !persist.IsBackend(c.Persist.Backend) {
		errs = append(errs, errors.NotSupportedf("config: persist.backend=%s", c.Persist.Backend))
	}
	return helpers.FoldErrors(errs)
}

func (c *Config) read(log *log2.Log, fs FullReader, source ConfigSource, errs *[]error) {
	norm := fs.Normalize(source.Name)
	if _, ok := c.includeSeen[norm]; ok {
		*errs = append(*errs, errors.Errorf("config duplicate source=%s", source.Name))
		return
	}
	log.Debugf("config reading source='%s' path=%s", source.Name, norm)
	c.includeSeen[source.Name] = struct{}{}
	c.includeSeen[norm] = struct{}{}

	bs, err := fs.ReadAll(norm)
	if bs == nil && err == nil {
		if !source.Optional {
			err = errors.NotFoundf("config required name=%s path=%s", source.Name, norm)
			*errs = append(*errs, err)
		}
		return
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}

	err = hcl.Unmarshal(bs, c)
	if err != nil {
		err = errors.Annotatef(err, "config unmarshal source=%s content='%s'", source.Name, string(bs))
		*errs = append(*errs, err)
		return
	}

	var includes []ConfigSource
	includes, c.XXX_Include = c.XXX_Include, nil
	for _, include := range includes {
		includeNorm := fs.Normalize(include.Name)
		if _, ok := c.includeSeen[includeNorm]; ok {
			err = errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name)
			*errs = append(*errs, err)
			continue
		}
		c.read(log, fs, include, errs)
	}
}

func ReadConfig(log *log2.Log, fs FullReader, names ...string) (*Config, error) {
	if len(names) == 0 {
		log.Fatal("code error [Must]ReadConfig() without names")
	}

	if osfs, ok := fs.(*OsFullReader); ok {
		dir, name := filepath.Split(names[0])
		osfs.SetBase(dir)
		names[0] = name
	}
	c := &Config{
		includeSeen: make(map[string]struct{}),
	}
	errs := make([]error, 0, 8)
	for _, name := range names {
		c.read(log, fs, ConfigSource{Name: name}, &errs)
	}
	if len(errs) == 0 {
		if err := c.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return c, helpers.FoldErrors(errs)
}

func MustReadConfig(log *log2.Log, fs FullReader, names ...string) *Config {
	c, err := ReadConfig(log, fs, names...)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	return c
}
