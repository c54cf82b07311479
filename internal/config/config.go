// Package config assembles the one immutable configuration structure the
// process runs on. Ambient settings come from the environment; the device
// and store lists come from the fleet file. Nothing reads configuration
// after startup — the loaded Config is passed explicitly into the fleet and
// the fan-out.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jmichalek/punchsync/internal/punch/types"
)

// MaxDevices caps the fleet. Entries beyond the cap are dropped with a
// warning from the loader.
const MaxDevices = 32

// StoreEntry configures one replication target.
type StoreEntry struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"` // "sqlite" | "postgres" | "memory"
	DSN     string `yaml:"dsn"`
	Enabled bool   `yaml:"enabled"`
}

type Config struct {
	Env      string // "dev" | "prod"
	HTTPAddr string

	FleetPath        string
	WatchdogInterval time.Duration
	ReconnectPause   time.Duration

	Devices []types.DeviceEndpoint
	Stores  []StoreEntry
}

// Load builds the full configuration: environment first, then the fleet
// file, then the legacy single-device fallback when the file lists no
// usable devices.
func Load() (Config, []string, error) {
	cfg := FromEnv()

	var warnings []string
	devices, stores, err := loadFleetFile(cfg.FleetPath)
	if err != nil {
		return Config{}, nil, err
	}

	enabled := 0
	for _, d := range devices {
		if d.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		if legacy, ok := legacyDevice(); ok {
			devices = append(devices, legacy)
			warnings = append(warnings, fmt.Sprintf("fleet file lists no enabled devices, using legacy single-device entry %s:%d", legacy.Address, legacy.Port))
		}
	}

	if len(devices) > MaxDevices {
		warnings = append(warnings, fmt.Sprintf("fleet file lists %d devices, keeping the first %d", len(devices), MaxDevices))
		devices = devices[:MaxDevices]
	}

	cfg.Devices = devices
	cfg.Stores = stores
	return cfg, warnings, nil
}

// FromEnv reads the ambient settings. Unset variables fall back to dev
// defaults; malformed numbers fall back rather than fail.
func FromEnv() Config {
	env := strings.ToLower(getenvDefault("PUNCHSYNC_ENV", "dev"))
	if env != "dev" && env != "prod" {
		// fail-soft: treat unknown as dev
		env = "dev"
	}

	return Config{
		Env:              env,
		HTTPAddr:         getenvDefault("PUNCHSYNC_HTTP_ADDR", ":8080"),
		FleetPath:        getenvDefault("PUNCHSYNC_FLEET_PATH", "./punchsync.yaml"),
		WatchdogInterval: time.Duration(getenvInt("PUNCHSYNC_WATCHDOG_INTERVAL_S", 30)) * time.Second,
		ReconnectPause:   time.Duration(getenvInt("PUNCHSYNC_RECONNECT_PAUSE_MS", 2000)) * time.Millisecond,
	}
}

// fleetFile is the on-disk shape of the fleet file.
type fleetFile struct {
	Devices []types.DeviceEndpoint `yaml:"devices"`
	Stores  []StoreEntry           `yaml:"stores"`
}

// loadFleetFile parses the ordered device and store lists. A missing file
// is not an error — the process runs idle until one shows up at the next
// restart. Devices with no driver name default to the net adapter.
func loadFleetFile(path string) ([]types.DeviceEndpoint, []StoreEntry, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read fleet file %s: %w", path, err)
	}

	var f fleetFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, nil, fmt.Errorf("parse fleet file %s: %w", path, err)
	}

	for i := range f.Devices {
		if strings.TrimSpace(f.Devices[i].Driver) == "" {
			f.Devices[i].Driver = "net"
		}
	}
	return f.Devices, f.Stores, nil
}

// legacyDevice reads the pre-fleet-file single-device variables. Kept so a
// site that never migrated its deploy scripts still comes up.
func legacyDevice() (types.DeviceEndpoint, bool) {
	addr := strings.TrimSpace(os.Getenv("PUNCHSYNC_DEVICE_ADDR"))
	if addr == "" {
		return types.DeviceEndpoint{}, false
	}
	return types.DeviceEndpoint{
		Name:    getenvDefault("PUNCHSYNC_DEVICE_NAME", "terminal"),
		Address: addr,
		Port:    getenvInt("PUNCHSYNC_DEVICE_PORT", 4370),
		Driver:  getenvDefault("PUNCHSYNC_DEVICE_DRIVER", "net"),
		Enabled: true,
	}, true
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
