package types

// DeviceEndpoint describes one configured terminal. Endpoints are immutable
// after config load; runtime connection state lives with the supervisor that
// owns the device.
type DeviceEndpoint struct {
	Name    string `yaml:"name" json:"name"`
	Address string `yaml:"address" json:"address"`
	Port    int    `yaml:"port" json:"port"`
	Driver  string `yaml:"driver" json:"driver"`
	Enabled bool   `yaml:"enabled" json:"enabled"`
}
