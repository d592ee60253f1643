package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config holds every device setting. All fields are plain scalars so that
// they can be supplied through the environment, a .env file or a flat YAML
// file with the same names.
type Config struct {
	// Watchdog
	WatchdogTimeout time.Duration `yaml:"watchdog_timeout"`
	WatchdogDevice  string        `yaml:"watchdog_device"`

	// SPI bus and panel
	SPIPort           string        `yaml:"spi_port"`
	SPIPreferredSpeed int64         `yaml:"spi_preferred_speed_hz"`
	SPIFallbackSpeed  int64         `yaml:"spi_fallback_speed_hz"`
	LCDWidth          int           `yaml:"lcd_width"`
	LCDHeight         int           `yaml:"lcd_height"`
	LCDRotation       int           `yaml:"lcd_rotation"`
	LCDXOffset        int           `yaml:"lcd_x_offset"`
	LCDYOffset        int           `yaml:"lcd_y_offset"`
	LCDDCPin          string        `yaml:"lcd_dc_pin"`
	LCDResetPin       string        `yaml:"lcd_reset_pin"`
	LCDBacklightPin   string        `yaml:"lcd_backlight_pin"`
	BacklightFade     time.Duration `yaml:"backlight_fade"`

	// Button
	ButtonPin       string        `yaml:"button_pin"`
	ButtonActiveLow bool          `yaml:"button_active_low"`
	ButtonDebounce  time.Duration `yaml:"button_debounce"`
	LongHold        time.Duration `yaml:"button_long_hold"`
	TransferHold    time.Duration `yaml:"button_transfer_hold"`
	TransferOnBoot  bool          `yaml:"transfer_on_boot"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`

	// Media
	GIFsPath         string        `yaml:"gifs_path"`
	WAVsPath         string        `yaml:"wavs_path"`
	GIFMaxBytes      int64         `yaml:"gif_max_bytes"`
	AudioEnabled     bool          `yaml:"audio_enabled"`
	AudioPlayer      string        `yaml:"audio_player"`
	DeficitThreshold time.Duration `yaml:"deficit_threshold"`

	// Storage and power
	SDDevice        string `yaml:"sd_device"`
	SDMountPoint    string `yaml:"sd_mount_point"`
	SDFSType        string `yaml:"sd_fstype"`
	USBGadgetDir    string `yaml:"usb_gadget_dir"`
	USBUDC          string `yaml:"usb_udc"`
	SleepMode       string `yaml:"sleep_mode"`
	SleepWakeupPath string `yaml:"sleep_wakeup_path"`
	StateFile       string `yaml:"state_file"`
	ConverterURL    string `yaml:"converter_url"`

	// Logging
	LogLevel      string `yaml:"log_level"`
	LogFile       string `yaml:"log_file"`
	LogMaxSizeMB  int    `yaml:"log_max_size_mb"`
	LogMaxBackups int    `yaml:"log_max_backups"`
	LogMaxAgeDays int    `yaml:"log_max_age_days"`
	LogCompress   bool   `yaml:"log_compress"`
}

// Default returns the settings of the reference hardware: an ST7789 320x170
// panel on SPI, a momentary button to ground and an SD card slot.
func Default() *Config {
	return &Config{
		WatchdogTimeout: 10 * time.Second,
		WatchdogDevice:  "/dev/watchdog",

		SPIPort:           "SPI0.0",
		SPIPreferredSpeed: 80_000_000,
		SPIFallbackSpeed:  40_000_000,
		LCDWidth:          320,
		LCDHeight:         170,
		LCDRotation:       90,
		LCDXOffset:        0,
		LCDYOffset:        35,
		LCDDCPin:          "GPIO25",
		LCDResetPin:       "GPIO27",
		LCDBacklightPin:   "GPIO18",
		BacklightFade:     500 * time.Millisecond,

		ButtonPin:       "GPIO12",
		ButtonActiveLow: true,
		ButtonDebounce:  50 * time.Millisecond,
		LongHold:        5 * time.Second,
		TransferHold:    10 * time.Second,
		TransferOnBoot:  true,
		IdleTimeout:     60 * time.Second,

		GIFsPath:         "/sd/gifs",
		WAVsPath:         "/sd/wavs",
		GIFMaxBytes:      32 << 20,
		AudioEnabled:     true,
		AudioPlayer:      "aplay",
		DeficitThreshold: 10 * time.Millisecond,

		SDDevice:        "/dev/mmcblk1p1",
		SDMountPoint:    "/sd",
		SDFSType:        "vfat",
		USBGadgetDir:    "/sys/kernel/config/usb_gadget/picframe",
		SleepMode:       "suspend",
		SleepWakeupPath: "/sys/devices/platform/gpio-keys/power/wakeup",
		StateFile:       "/var/lib/picframe/state.yaml",

		LogLevel:      "info",
		LogMaxSizeMB:  5,
		LogMaxBackups: 3,
		LogMaxAgeDays: 14,
	}
}

// Load builds the effective configuration: defaults, then the YAML file at
// path (skipped when path is empty or missing), then the .env file in the
// working directory, then the process environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.mergeFile(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	// A missing .env is the normal case on the device.
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	e := &envReader{}

	c.WatchdogTimeout = e.seconds("WATCHDOG_TIMEOUT_S", c.WatchdogTimeout)
	c.WatchdogDevice = e.str("WATCHDOG_DEVICE", c.WatchdogDevice)

	c.SPIPort = e.str("SPI_PORT", c.SPIPort)
	c.SPIPreferredSpeed = int64(e.integer("SPI_PREFERRED_SPEED_HZ", int(c.SPIPreferredSpeed)))
	c.SPIFallbackSpeed = int64(e.integer("SPI_FALLBACK_SPEED_HZ", int(c.SPIFallbackSpeed)))
	c.LCDWidth = e.integer("LCD_WIDTH", c.LCDWidth)
	c.LCDHeight = e.integer("LCD_HEIGHT", c.LCDHeight)
	c.LCDRotation = e.integer("LCD_ROTATION", c.LCDRotation)
	c.LCDXOffset = e.integer("LCD_X_OFFSET", c.LCDXOffset)
	c.LCDYOffset = e.integer("LCD_Y_OFFSET", c.LCDYOffset)
	c.LCDDCPin = e.str("LCD_DC_PIN", c.LCDDCPin)
	c.LCDResetPin = e.str("LCD_RESET_PIN", c.LCDResetPin)
	c.LCDBacklightPin = e.str("LCD_BACKLIGHT_PIN", c.LCDBacklightPin)
	c.BacklightFade = e.millis("BACKLIGHT_FADE_MS", c.BacklightFade)

	c.ButtonPin = e.str("BUTTON_PIN", c.ButtonPin)
	c.ButtonActiveLow = e.boolean("BUTTON_ACTIVE_LOW", c.ButtonActiveLow)
	c.ButtonDebounce = e.millis("BUTTON_DEBOUNCE_MS", c.ButtonDebounce)
	c.LongHold = e.seconds("BUTTON_LONG_HOLD_SECONDS", c.LongHold)
	c.TransferHold = e.seconds("BUTTON_TRANSFER_HOLD_SECONDS", c.TransferHold)
	c.TransferOnBoot = e.boolean("TRANSFER_ON_BOOT", c.TransferOnBoot)
	c.IdleTimeout = e.seconds("IDLE_TIMEOUT_SECONDS", c.IdleTimeout)

	c.GIFsPath = e.str("GIFS_PATH", c.GIFsPath)
	c.WAVsPath = e.str("WAVS_PATH", c.WAVsPath)
	c.GIFMaxBytes = int64(e.integer("GIF_MAX_BYTES", int(c.GIFMaxBytes)))
	c.AudioEnabled = e.boolean("AUDIO_ENABLED", c.AudioEnabled)
	c.AudioPlayer = e.str("AUDIO_PLAYER", c.AudioPlayer)
	c.DeficitThreshold = e.millis("DEFICIT_THRESHOLD_MS", c.DeficitThreshold)

	c.SDDevice = e.str("SD_DEVICE", c.SDDevice)
	c.SDMountPoint = e.str("SD_MOUNT_POINT", c.SDMountPoint)
	c.SDFSType = e.str("SD_FSTYPE", c.SDFSType)
	c.USBGadgetDir = e.str("USB_GADGET_DIR", c.USBGadgetDir)
	c.USBUDC = e.str("USB_UDC", c.USBUDC)
	c.SleepMode = e.str("SLEEP_MODE", c.SleepMode)
	c.SleepWakeupPath = e.str("SLEEP_WAKEUP_PATH", c.SleepWakeupPath)
	c.StateFile = e.str("STATE_FILE", c.StateFile)
	c.ConverterURL = e.str("CONVERTER_URL", c.ConverterURL)

	c.LogLevel = e.str("LOG_LEVEL", c.LogLevel)
	c.LogFile = e.str("LOG_FILE", c.LogFile)
	c.LogMaxSizeMB = e.integer("LOG_MAX_SIZE_MB", c.LogMaxSizeMB)
	c.LogMaxBackups = e.integer("LOG_MAX_BACKUPS", c.LogMaxBackups)
	c.LogMaxAgeDays = e.integer("LOG_MAX_AGE_DAYS", c.LogMaxAgeDays)
	c.LogCompress = e.boolean("LOG_COMPRESS", c.LogCompress)

	return e.err
}

// FeedInterval is the longest any wait may go without feeding the watchdog:
// a quarter of its timeout, or one second when it is disabled.
func (c *Config) FeedInterval() time.Duration {
	if c.WatchdogTimeout <= 0 {
		return time.Second
	}
	return c.WatchdogTimeout / 4
}

// Validate checks the invariants the device relies on at runtime.
func (c *Config) Validate() error {
	var problems []string

	if c.LCDWidth <= 0 || c.LCDHeight <= 0 {
		problems = append(problems, fmt.Sprintf("display geometry %dx%d must be positive", c.LCDWidth, c.LCDHeight))
	}
	switch c.LCDRotation {
	case 0, 90, 180, 270:
	default:
		problems = append(problems, fmt.Sprintf("rotation %d must be 0, 90, 180 or 270", c.LCDRotation))
	}
	if c.ButtonDebounce <= 0 {
		problems = append(problems, "button debounce interval must be positive")
	}
	if c.DeficitThreshold <= 0 {
		problems = append(problems, "deficit threshold must be positive")
	}
	if c.WatchdogTimeout < 0 {
		problems = append(problems, "watchdog timeout must not be negative")
	}
	// The debounce loop is the longest stretch between two feeds.
	if c.WatchdogTimeout > 0 && 2*c.ButtonDebounce >= c.WatchdogTimeout {
		problems = append(problems, fmt.Sprintf("debounce interval %s is too long for watchdog timeout %s", c.ButtonDebounce, c.WatchdogTimeout))
	}
	if c.LongHold <= 0 {
		problems = append(problems, "long hold threshold must be positive")
	}
	if c.TransferHold > 0 && c.TransferHold <= c.LongHold {
		problems = append(problems, fmt.Sprintf("transfer hold %s must be longer than long hold %s", c.TransferHold, c.LongHold))
	}
	if c.IdleTimeout < 0 {
		problems = append(problems, "idle timeout must not be negative")
	}
	if c.SPIFallbackSpeed > c.SPIPreferredSpeed {
		problems = append(problems, "SPI fallback speed exceeds preferred speed")
	}
	switch c.SleepMode {
	case "suspend", "halt":
	default:
		problems = append(problems, fmt.Sprintf("sleep mode %q must be suspend or halt", c.SleepMode))
	}
	if c.GIFsPath == "" {
		problems = append(problems, "GIF directory must be set")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// envReader reads typed environment values and remembers the first parse
// failure so that a typo is reported instead of silently ignored.
type envReader struct {
	err error
}

func (e *envReader) lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (e *envReader) fail(key, value string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("%w: %s=%q: %v", ErrInvalid, key, value, err)
	}
}

func (e *envReader) str(key, fallback string) string {
	if v, ok := e.lookup(key); ok {
		return v
	}
	return fallback
}

func (e *envReader) integer(key string, fallback int) int {
	v, ok := e.lookup(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v, err)
		return fallback
	}
	return n
}

func (e *envReader) boolean(key string, fallback bool) bool {
	v, ok := e.lookup(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, v, err)
		return fallback
	}
	return b
}

// seconds accepts either a plain number of seconds ("5", "0.5") or a Go
// duration ("1500ms").
func (e *envReader) seconds(key string, fallback time.Duration) time.Duration {
	return e.duration(key, fallback, time.Second)
}

func (e *envReader) millis(key string, fallback time.Duration) time.Duration {
	return e.duration(key, fallback, time.Millisecond)
}

func (e *envReader) duration(key string, fallback, unit time.Duration) time.Duration {
	v, ok := e.lookup(key)
	if !ok {
		return fallback
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(f * float64(unit))
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, v, err)
		return fallback
	}
	return d
}
