package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// CongestionControl selects the congestion control algorithm a
// connection uses once negotiated.
type CongestionControl string

const (
	CongestionControlCubic   CongestionControl = "cubic"
	CongestionControlBbr2    CongestionControl = "bbr2"
	CongestionControlNewReno CongestionControl = "new_reno"
)

// PQVariant selects which post-quantum signature variant a transport
// offers during handshake signing.
type PQVariant string

const (
	PQVariantFalcon512  PQVariant = "falcon512"
	PQVariantFalcon1024 PQVariant = "falcon1024"
)

// Config holds every tunable of a STOQ transport instance.
type Config struct {
	BindAddress string `mapstructure:"bind_address"`
	Port        int    `mapstructure:"port"`

	MaxConnections      int           `mapstructure:"max_connections"`
	ConnectionTimeout   time.Duration `mapstructure:"connection_timeout"`
	MaxIdleTimeout      time.Duration `mapstructure:"max_idle_timeout"`
	CertRotationInterval time.Duration `mapstructure:"cert_rotation_interval"`

	EnableMigration bool `mapstructure:"enable_migration"`
	Enable0RTT      bool `mapstructure:"enable_0rtt"`

	MaxConcurrentStreams int `mapstructure:"max_concurrent_streams"`
	SendBufferSize       int `mapstructure:"send_buffer_size"`
	ReceiveBufferSize    int `mapstructure:"receive_buffer_size"`
	ConnectionPoolSize   int `mapstructure:"connection_pool_size"`
	MaxDatagramSize      int `mapstructure:"max_datagram_size"`

	EnableZeroCopy         bool `mapstructure:"enable_zero_copy"`
	EnableMemoryPool       bool `mapstructure:"enable_memory_pool"`
	MemoryPoolSize         int  `mapstructure:"memory_pool_size"`
	FrameBatchSize         int  `mapstructure:"frame_batch_size"`
	EnableCPUAffinity      bool `mapstructure:"enable_cpu_affinity"`
	EnableLargeSendOffload bool `mapstructure:"enable_large_send_offload"`

	CongestionControl CongestionControl `mapstructure:"congestion_control"`

	EnablePQCrypto bool      `mapstructure:"enable_pq_crypto"`
	PQVariant      PQVariant `mapstructure:"pq_variant"`

	EnableAdaptiveTuning bool `mapstructure:"enable_adaptive_tuning"`
	EnableSharding       bool `mapstructure:"enable_sharding"`
	MaxShardSize         int  `mapstructure:"max_shard_size"`

	EnableDiscovery bool   `mapstructure:"enable_discovery"`
	DiscoveryName   string `mapstructure:"discovery_name"`

	EnableRateLimit bool    `mapstructure:"enable_rate_limit"`
	RateLimitMbps   float64 `mapstructure:"rate_limit_mbps"`

	EnableCompression bool `mapstructure:"enable_compression"`

	PairingCode string `mapstructure:"pairing_code"`
}

// DefaultConfig returns the baseline configuration, matching the
// Standard network tier preset.
func DefaultConfig() *Config {
	return &Config{
		BindAddress: "::",
		Port:        4433,

		MaxConnections:       1000,
		ConnectionTimeout:    10 * time.Second,
		MaxIdleTimeout:       120 * time.Second,
		CertRotationInterval: 24 * time.Hour,

		EnableMigration: true,
		Enable0RTT:      false,

		MaxConcurrentStreams: 100,
		SendBufferSize:       4 * 1024 * 1024,
		ReceiveBufferSize:    4 * 1024 * 1024,
		ConnectionPoolSize:   64,
		MaxDatagramSize:      9000,

		EnableZeroCopy:         false,
		EnableMemoryPool:       true,
		MemoryPoolSize:         256,
		FrameBatchSize:         32,
		EnableCPUAffinity:      false,
		EnableLargeSendOffload: false,

		CongestionControl: CongestionControlBbr2,

		EnablePQCrypto: false,
		PQVariant:      PQVariantFalcon512,

		EnableAdaptiveTuning: true,
		EnableSharding:       true,
		MaxShardSize:         9000,

		EnableDiscovery: false,
		DiscoveryName:   "stoq-node",

		EnableRateLimit: false,
		RateLimitMbps:   0,

		EnableCompression: false,

		PairingCode: "",
	}
}

// LoadConfig loads configuration from stoq.yaml, searched in the usual
// viper locations, falling back to DefaultConfig when no file exists.
func LoadConfig() (*Config, error) {
	config := DefaultConfig()

	viper.SetConfigName("stoq")
	viper.SetConfigType("yaml")

	if homeDir, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(filepath.Join(homeDir, ".config", "stoq"))
		viper.AddConfigPath(homeDir)
	}
	viper.AddConfigPath("/etc/stoq")
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("STOQ")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return config, nil
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return config, nil
}

// SaveConfig writes config to ~/.config/stoq/stoq.yaml.
func SaveConfig(config *Config) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("cannot get home directory: %w", err)
	}

	configDir := filepath.Join(homeDir, ".config", "stoq")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	configPath := filepath.Join(configDir, "stoq.yaml")

	viper.Set("bind_address", config.BindAddress)
	viper.Set("port", config.Port)
	viper.Set("max_connections", config.MaxConnections)
	viper.Set("connection_timeout", config.ConnectionTimeout)
	viper.Set("max_idle_timeout", config.MaxIdleTimeout)
	viper.Set("cert_rotation_interval", config.CertRotationInterval)
	viper.Set("enable_migration", config.EnableMigration)
	viper.Set("enable_0rtt", config.Enable0RTT)
	viper.Set("max_concurrent_streams", config.MaxConcurrentStreams)
	viper.Set("send_buffer_size", config.SendBufferSize)
	viper.Set("receive_buffer_size", config.ReceiveBufferSize)
	viper.Set("connection_pool_size", config.ConnectionPoolSize)
	viper.Set("max_datagram_size", config.MaxDatagramSize)
	viper.Set("enable_zero_copy", config.EnableZeroCopy)
	viper.Set("enable_memory_pool", config.EnableMemoryPool)
	viper.Set("memory_pool_size", config.MemoryPoolSize)
	viper.Set("frame_batch_size", config.FrameBatchSize)
	viper.Set("enable_cpu_affinity", config.EnableCPUAffinity)
	viper.Set("enable_large_send_offload", config.EnableLargeSendOffload)
	viper.Set("congestion_control", config.CongestionControl)
	viper.Set("enable_pq_crypto", config.EnablePQCrypto)
	viper.Set("pq_variant", config.PQVariant)
	viper.Set("enable_adaptive_tuning", config.EnableAdaptiveTuning)
	viper.Set("enable_sharding", config.EnableSharding)
	viper.Set("max_shard_size", config.MaxShardSize)
	viper.Set("enable_discovery", config.EnableDiscovery)
	viper.Set("discovery_name", config.DiscoveryName)
	viper.Set("enable_rate_limit", config.EnableRateLimit)
	viper.Set("rate_limit_mbps", config.RateLimitMbps)
	viper.Set("enable_compression", config.EnableCompression)
	viper.Set("pairing_code", config.PairingCode)

	if err := viper.WriteConfigAs(configPath); err != nil {
		return fmt.Errorf("cannot write config file: %w", err)
	}

	return nil
}

// GetConfigPath returns the path to the config file in use, or the
// default location if none has been loaded yet.
func GetConfigPath() string {
	if viper.ConfigFileUsed() != "" {
		return viper.ConfigFileUsed()
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "~/.config/stoq/stoq.yaml"
	}

	return filepath.Join(homeDir, ".config", "stoq", "stoq.yaml")
}
