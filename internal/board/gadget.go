package board

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

const (
	massStorageFunction = "mass_storage.usb0"
	gadgetConfig        = "c.1"
	langEnUS            = "0x409"
)

// MassStorageGadget exposes a block device to a USB host through the Linux
// USB gadget configfs interface.
type MassStorageGadget struct {
	dir         string
	udc         string
	udcClassDir string
	log         *zap.Logger
}

// NewMassStorageGadget manages the gadget at dir, e.g.
// /sys/kernel/config/usb_gadget/picframe. An empty udc binds to the first
// controller listed in /sys/class/udc.
func NewMassStorageGadget(dir, udc string, log *zap.Logger) *MassStorageGadget {
	if log == nil {
		log = zap.NewNop()
	}
	return &MassStorageGadget{dir: dir, udc: udc, udcClassDir: "/sys/class/udc", log: log}
}

func (g *MassStorageGadget) lun() string {
	return filepath.Join(g.dir, "functions", massStorageFunction, "lun.0")
}

// Expose publishes device as a removable read-write disk and binds the
// gadget to the USB controller.
func (g *MassStorageGadget) Expose(device string) error {
	if err := g.ensure(); err != nil {
		return fmt.Errorf("gadget: setup: %w", err)
	}

	lun := g.lun()
	for _, attr := range []struct{ name, value string }{
		{"ro", "0"},
		{"removable", "1"},
		{"file", device},
	} {
		if err := write(filepath.Join(lun, attr.name), attr.value); err != nil {
			return fmt.Errorf("gadget: %w", err)
		}
	}

	udc, err := g.controller()
	if err != nil {
		return err
	}
	if err := write(filepath.Join(g.dir, "UDC"), udc); err != nil {
		return fmt.Errorf("gadget: bind %s: %w", udc, err)
	}
	g.log.Info("usb mass storage bound", zap.String("udc", udc), zap.String("device", device))
	return nil
}

// Withdraw unbinds the gadget and detaches the backing device.
func (g *MassStorageGadget) Withdraw() error {
	var errs []error
	if err := write(filepath.Join(g.dir, "UDC"), ""); err != nil {
		errs = append(errs, err)
	}
	if err := write(filepath.Join(g.lun(), "file"), ""); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (g *MassStorageGadget) ensure() error {
	for _, dir := range []string{
		filepath.Join(g.dir, "strings", langEnUS),
		filepath.Join(g.dir, "configs", gadgetConfig, "strings", langEnUS),
		g.lun(),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	for name, value := range map[string]string{
		"idVendor":                                "0x1d6b",
		"idProduct":                               "0x0104",
		"strings/0x409/manufacturer":              "picframe",
		"strings/0x409/product":                   "Picture Frame Storage",
		"configs/c.1/strings/0x409/configuration": "Mass Storage",
	} {
		if err := write(filepath.Join(g.dir, name), value); err != nil {
			return err
		}
	}

	link := filepath.Join(g.dir, "configs", gadgetConfig, massStorageFunction)
	if _, err := os.Lstat(link); errors.Is(err, os.ErrNotExist) {
		target := filepath.Join(g.dir, "functions", massStorageFunction)
		if err := os.Symlink(target, link); err != nil {
			return err
		}
	}
	return nil
}

func (g *MassStorageGadget) controller() (string, error) {
	if g.udc != "" {
		return g.udc, nil
	}
	entries, err := os.ReadDir(g.udcClassDir)
	if err != nil {
		return "", fmt.Errorf("gadget: list controllers: %w", err)
	}
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), ".") {
			return e.Name(), nil
		}
	}
	return "", errors.New("gadget: no USB device controller available")
}

func write(path, value string) error {
	return os.WriteFile(path, []byte(value+"\n"), 0644)
}
