// Package config provides configuration management for ServerStats.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config is the root configuration structure (ServerStats.json).
type Config struct {
	Agent    AgentConfig
	Sampling SamplingConfig
	Sink     SinkConfig
}

// AgentConfig identifies this host in published snapshots.
type AgentConfig struct {
	ID       string `json:"ID" yaml:"ID"`
	Hostname string `json:"Hostname" yaml:"Hostname"`
}

// SamplingConfig controls hardware detection and the sampling loop. These
// settings are read once at startup.
type SamplingConfig struct {
	Debug          bool
	Interval       time.Duration
	RunFirst       bool
	SuppressEmpty  bool
	CollectTimeout time.Duration
	PublishTimeout time.Duration
	ReadTimeout    time.Duration

	CPUInfoPath     string
	ThermalZonePath string
	VendorCommand   string
	VendorArgs      []string

	SimulatedMin  float64
	SimulatedMax  float64
	SimulatedStep float64
}

// SinkConfig selects where snapshots are published.
type SinkConfig struct {
	Type       string // "file", "kafka" or "redis"
	File       FileConfig
	Kafka      KafkaConfig
	Redis      RedisConfig
	SOCKSProxy SOCKSConfig
}

// FileConfig contains settings for the file sink.
type FileConfig struct {
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	Console    bool
	Pretty     bool
	Format     string // "json" or "legacy"
}

// KafkaConfig contains Kafka producer settings.
type KafkaConfig struct {
	Brokers        []string
	Topic          string
	Compression    string
	RequiredAcks   int
	MaxRetries     int
	RetryBackoff   time.Duration
	FlushFrequency time.Duration
	Timeout        time.Duration
	EnableTLS      bool
	TLSCertFile    string
	TLSKeyFile     string
	TLSCAFile      string
	SASLEnabled    bool
	SASLMechanism  string
	SASLUser       string
	SASLPassword   string
}

// RedisConfig contains settings for the Redis pub/sub sink.
type RedisConfig struct {
	Address   string
	Password  string
	DB        int
	Channel   string
	LatestKey string
	LatestTTL time.Duration
}

// SOCKSConfig contains SOCKS5 proxy settings shared by network sinks.
type SOCKSConfig struct {
	Host string `json:"Host" yaml:"Host"`
	Port int    `json:"Port" yaml:"Port"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Sampling: SamplingConfig{
			Interval:        5 * time.Second,
			RunFirst:        true,
			CollectTimeout:  30 * time.Second,
			PublishTimeout:  10 * time.Second,
			ReadTimeout:     5 * time.Second,
			CPUInfoPath:     "/proc/cpuinfo",
			ThermalZonePath: "/sys/devices/virtual/thermal/thermal_zone0/temp",
			VendorCommand:   "/opt/vc/bin/vcgencmd",
			VendorArgs:      []string{"measure_temp"},
			SimulatedMin:    5,
			SimulatedMax:    60,
			SimulatedStep:   0.1,
		},
		Sink: SinkConfig{
			Type: "file",
			File: FileConfig{
				FilePath:   "log/ServerStats/stats.jsonl",
				MaxSizeMB:  50,
				MaxBackups: 3,
				Format:     "json",
			},
			Kafka: KafkaConfig{
				Brokers:        []string{"localhost:9092"},
				Topic:          "serverstats",
				Compression:    "snappy",
				RequiredAcks:   1,
				MaxRetries:     3,
				RetryBackoff:   100 * time.Millisecond,
				FlushFrequency: 500 * time.Millisecond,
				Timeout:        10 * time.Second,
			},
			Redis: RedisConfig{
				Address:   "localhost:6379",
				Channel:   "serverstats",
				LatestKey: "serverstats:latest",
				LatestTTL: time.Minute,
			},
		},
	}
}

// Validate reports settings the agent cannot run with.
func (c *Config) Validate() error {
	s := c.Sampling
	if s.Interval <= 0 {
		return fmt.Errorf("Sampling.Interval must be positive, got %s", s.Interval)
	}
	if s.SimulatedStep <= 0 {
		return fmt.Errorf("Sampling.SimulatedStep must be positive, got %v", s.SimulatedStep)
	}
	if s.SimulatedMax < s.SimulatedMin {
		return fmt.Errorf("Sampling.SimulatedMax (%v) is below SimulatedMin (%v)", s.SimulatedMax, s.SimulatedMin)
	}
	switch strings.ToLower(c.Sink.Type) {
	case "file", "kafka", "redis":
	default:
		return fmt.Errorf("unknown Sink.Type %q (supported: file, kafka, redis)", c.Sink.Type)
	}
	return nil
}

// GetHostname returns the configured hostname or the system hostname.
func GetHostname(cfg *Config) string {
	if cfg.Agent.Hostname != "" {
		return cfg.Agent.Hostname
	}
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}

// GetAgentID returns Agent.ID, falling back to the hostname.
func GetAgentID(cfg *Config) string {
	if cfg.Agent.ID != "" {
		return cfg.Agent.ID
	}
	return GetHostname(cfg)
}
