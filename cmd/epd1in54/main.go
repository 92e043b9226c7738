// Command epd1in54 drives a 1.54" monochrome e-paper panel from the command
// line: load an image or draw text, refresh the glass, put the controller
// to sleep.
package main

import (
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3/physic"

	"epd1in54/internal/canvas"
	"epd1in54/internal/config"
	"epd1in54/internal/convert"
	"epd1in54/internal/epd"
	"epd1in54/internal/logging"
	"epd1in54/internal/pbm"
)

// flagConfig holds CLI flag values before they are merged with the config
// file.
type flagConfig struct {
	configPath string
	imagePath  string
	text       string
	textX      int
	textY      int
	clear      bool
	partial    bool
	rotation   int
	flipH      bool
	flipV      bool
	dumpPath   string
	renderOnly bool
	debug      bool

	// set records which flags were passed explicitly, so only those
	// override the config file.
	set map[string]bool
}

func main() {
	flags := parseFlags()
	logging.Setup(flags.debug)

	conf, err := config.Load(flags.configPath)
	if err != nil {
		log.Error().Err(err).Str("config_path", flags.configPath).Msg("failed to load config")
		os.Exit(1)
	}
	applyOverrides(conf, flags)

	log.Info().
		Str("port", conf.SPI.Port).
		Int("speed_hz", conf.SPI.SpeedHz).
		Int("width", conf.Panel.Width).
		Int("height", conf.Panel.Height).
		Int("rotation", conf.Rotation).
		Bool("flip_horizontal", conf.FlipHorizontal).
		Bool("flip_vertical", conf.FlipVertical).
		Bool("partial", flags.partial).
		Bool("render_only", flags.renderOnly).
		Msg("effective config")

	if err := run(conf, flags); err != nil {
		log.Error().Err(err).Msg("epd1in54 failed")
		os.Exit(1)
	}
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/epd1in54/config.yaml", "Path to config file")
	flag.StringVar(&cfg.imagePath, "image", "", "PBM/PNG/JPEG file to display (must match the panel size)")
	flag.StringVar(&cfg.text, "text", "", "Text to draw on the canvas")
	flag.IntVar(&cfg.textX, "text-x", 8, "Text top-left X")
	flag.IntVar(&cfg.textY, "text-y", 8, "Text top-left Y")
	flag.BoolVar(&cfg.clear, "clear", false, "Blank the canvas before drawing")
	flag.BoolVar(&cfg.partial, "partial", false, "Use the fast partial-refresh waveform")
	flag.IntVar(&cfg.rotation, "rotation", 0, "Output rotation in degrees (overrides config if set)")
	flag.BoolVar(&cfg.flipH, "flip-h", false, "Mirror output horizontally (overrides config if set)")
	flag.BoolVar(&cfg.flipV, "flip-v", false, "Mirror output vertically (overrides config if set)")
	flag.StringVar(&cfg.dumpPath, "dump", "", "Write the rendered canvas to this PBM file")
	flag.BoolVar(&cfg.renderOnly, "render-only", false, "Render only; do not touch display hardware")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	cfg.set = make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { cfg.set[f.Name] = true })

	return cfg
}

// applyOverrides lets explicitly passed flags win over the config file.
func applyOverrides(conf *config.Config, flags flagConfig) {
	if flags.set["rotation"] {
		conf.Rotation = flags.rotation
	}
	if flags.set["flip-h"] {
		conf.FlipHorizontal = flags.flipH
	}
	if flags.set["flip-v"] {
		conf.FlipVertical = flags.flipV
	}
}

func run(conf *config.Config, flags flagConfig) error {
	var bus epd.Bus
	if flags.renderOnly {
		bus = nopBus{}
	} else {
		spiBus, err := epd.Open(epd.BusConfig{
			Port:  conf.SPI.Port,
			Speed: physic.Frequency(conf.SPI.SpeedHz) * physic.Hertz,
			DC:    conf.Pins.DC,
			CS:    conf.Pins.CS,
			RST:   conf.Pins.Reset,
			Busy:  conf.Pins.Busy,
		})
		if err != nil {
			return err
		}
		defer func() { _ = spiBus.Close() }()
		bus = spiBus
	}

	dev, err := epd.New(bus, &epd.Opts{
		Width:       conf.Panel.Width,
		Height:      conf.Panel.Height,
		BusyTimeout: time.Duration(conf.BusyTimeoutMS) * time.Millisecond,
	})
	if err != nil {
		return err
	}

	if conf.Rotation != 0 {
		if err := dev.SetRotation(conf.Rotation); err != nil {
			return err
		}
	}
	if conf.FlipHorizontal || conf.FlipVertical {
		dev.SetFlip(conf.FlipHorizontal, conf.FlipVertical)
	}

	if flags.clear {
		dev.Clear(0xFF)
	}
	if flags.imagePath != "" {
		if err := loadImage(dev, flags.imagePath); err != nil {
			return err
		}
		log.Info().Str("image", flags.imagePath).Msg("image loaded")
	}
	if flags.text != "" {
		dev.DrawText(flags.textX, flags.textY, flags.text, canvas.Black)
	}

	if flags.dumpPath != "" {
		if err := dumpCanvas(dev, flags.dumpPath); err != nil {
			return err
		}
		log.Info().Str("path", flags.dumpPath).Msg("canvas dumped")
	}

	if flags.renderOnly {
		log.Info().Msg("render-only, skipping refresh")
		return nil
	}

	mode := epd.Full
	if flags.partial {
		mode = epd.Partial
	}
	if err := dev.Show(mode); err != nil {
		return err
	}
	log.Info().Bool("partial", flags.partial).Msg("panel refreshed")

	return dev.Sleep()
}

// loadImage draws the file at path onto the device canvas. PBM rasters are
// copied bit-for-bit; anything image.Decode understands is packed through
// the luminance threshold.
func loadImage(dev *epd.Device, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".pbm") {
		return dev.LoadPBM(f)
	}

	img, _, err := image.Decode(f)
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	bounds := dev.Bounds()
	packed, err := convert.Pack(img, bounds.Dx(), bounds.Dy())
	if err != nil {
		return err
	}
	return dev.DrawImage(packed)
}

// dumpCanvas writes the logical canvas, before any orientation transform,
// as a binary PBM file.
func dumpCanvas(dev *epd.Device, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create dump: %w", err)
	}

	bounds := dev.Bounds()
	if err := pbm.Encode(f, bounds.Dx(), bounds.Dy(), dev.Buffer()); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// nopBus satisfies epd.Bus without any hardware so -render-only can run
// the full drawing pipeline off-device.
type nopBus struct{}

func (nopBus) SendCommand(byte) error        { return nil }
func (nopBus) SendData(byte) error           { return nil }
func (nopBus) SendDataBulk([]byte) error     { return nil }
func (nopBus) PulseReset() error             { return nil }
func (nopBus) WaitReady(time.Duration) error { return nil }
