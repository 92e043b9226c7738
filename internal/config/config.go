// Package config holds the YAML configuration for the command-line tool:
// which SPI port and GPIO lines the panel is wired to, the panel geometry
// and the default output orientation. The driver itself takes all of this
// as plain arguments; only the tool reads files.
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SPIConfig names the SPI port and clock rate.
type SPIConfig struct {
	// Port is the periph SPI port name. Empty opens the first available
	// port, typically /dev/spidev0.0 on a Raspberry Pi.
	Port string `yaml:"port"`
	// SpeedHz is the SPI clock in hertz.
	SpeedHz int `yaml:"speed_hz"`
}

// PinsConfig names the GPIO lines wired to the panel, using names gpioreg
// understands ("GPIO25" and friends). The defaults match the common
// Raspberry Pi e-paper HAT wiring.
type PinsConfig struct {
	DC    string `yaml:"dc"`
	CS    string `yaml:"cs"`
	Reset string `yaml:"reset"`
	Busy  string `yaml:"busy"`
}

// PanelConfig is the panel geometry in pixels.
type PanelConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// Config is the top-level tool configuration.
type Config struct {
	SPI   SPIConfig   `yaml:"spi"`
	Pins  PinsConfig  `yaml:"pins"`
	Panel PanelConfig `yaml:"panel"`

	// Rotation is the default output rotation in degrees. The driver
	// accepts 0, 90, 180 and 270 and rejects anything else at startup.
	Rotation int `yaml:"rotation"`
	// FlipHorizontal and FlipVertical mirror the output before the
	// rotation is applied.
	FlipHorizontal bool `yaml:"flip_horizontal"`
	FlipVertical   bool `yaml:"flip_vertical"`

	// BusyTimeoutMS bounds every wait on the panel's busy line, in
	// milliseconds.
	BusyTimeoutMS int `yaml:"busy_timeout_ms"`
}

// DefaultConfig returns an in-memory default configuration for a 1.54"
// panel on the standard HAT wiring.
func DefaultConfig() *Config {
	return &Config{
		SPI: SPIConfig{
			Port:    "",
			SpeedHz: 2_000_000,
		},
		Pins: PinsConfig{
			DC:    "GPIO25",
			CS:    "GPIO8",
			Reset: "GPIO17",
			Busy:  "GPIO24",
		},
		Panel: PanelConfig{
			Width:  200,
			Height: 200,
		},
		Rotation:      0,
		BusyTimeoutMS: 5000,
	}
}

// Normalize fills in missing/zero values with the defaults so that
// partially-filled configs still behave correctly. Rotation is left alone;
// the driver validates it and an invalid value should fail loudly rather
// than silently turn into 0.
func (c *Config) Normalize() {
	def := DefaultConfig()

	if c.SPI.SpeedHz <= 0 {
		c.SPI.SpeedHz = def.SPI.SpeedHz
	}
	if c.Pins.DC == "" {
		c.Pins.DC = def.Pins.DC
	}
	if c.Pins.CS == "" {
		c.Pins.CS = def.Pins.CS
	}
	if c.Pins.Reset == "" {
		c.Pins.Reset = def.Pins.Reset
	}
	if c.Pins.Busy == "" {
		c.Pins.Busy = def.Pins.Busy
	}
	if c.Panel.Width <= 0 {
		c.Panel.Width = def.Panel.Width
	}
	if c.Panel.Height <= 0 {
		c.Panel.Height = def.Panel.Height
	}
	if c.BusyTimeoutMS <= 0 {
		c.BusyTimeoutMS = def.BusyTimeoutMS
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, write a default config there (0600,
//     parent directory created as needed) and return the defaults.
//   - If the file exists, unmarshal it and normalize missing values.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create the default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Return cfg with the error so the caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path: parent
// directory ensured (0700), atomic temp-file + rename, final permissions
// 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".epd1in54-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}

	return nil
}

// Save is a convenience method delegating to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
