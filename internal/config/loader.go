package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"serverstats/internal/logger"
)

// rawConfig mirrors Config with duration strings and optional flags, so
// that absent fields keep their defaults.
type rawConfig struct {
	Agent    AgentConfig   `json:"Agent" yaml:"Agent"`
	Sampling rawSampling   `json:"Sampling" yaml:"Sampling"`
	Sink     rawSinkConfig `json:"Sink" yaml:"Sink"`
}

type rawSampling struct {
	Debug          bool   `json:"Debug" yaml:"Debug"`
	Interval       string `json:"Interval" yaml:"Interval"`
	RunFirst       *bool  `json:"RunFirst" yaml:"RunFirst"`
	SuppressEmpty  bool   `json:"SuppressEmpty" yaml:"SuppressEmpty"`
	CollectTimeout string `json:"CollectTimeout" yaml:"CollectTimeout"`
	PublishTimeout string `json:"PublishTimeout" yaml:"PublishTimeout"`
	ReadTimeout    string `json:"ReadTimeout" yaml:"ReadTimeout"`

	CPUInfoPath     string   `json:"CPUInfoPath" yaml:"CPUInfoPath"`
	ThermalZonePath string   `json:"ThermalZonePath" yaml:"ThermalZonePath"`
	VendorCommand   string   `json:"VendorCommand" yaml:"VendorCommand"`
	VendorArgs      []string `json:"VendorArgs" yaml:"VendorArgs"`

	SimulatedMin  *float64 `json:"SimulatedMin" yaml:"SimulatedMin"`
	SimulatedMax  *float64 `json:"SimulatedMax" yaml:"SimulatedMax"`
	SimulatedStep *float64 `json:"SimulatedStep" yaml:"SimulatedStep"`
}

type rawSinkConfig struct {
	Type       string         `json:"Type" yaml:"Type"`
	File       rawFileConfig  `json:"File" yaml:"File"`
	Kafka      rawKafkaConfig `json:"Kafka" yaml:"Kafka"`
	Redis      rawRedisConfig `json:"Redis" yaml:"Redis"`
	SOCKSProxy SOCKSConfig    `json:"SocksProxy" yaml:"SocksProxy"`
}

type rawFileConfig struct {
	FilePath   string `json:"FilePath" yaml:"FilePath"`
	MaxSizeMB  int    `json:"MaxSizeMB" yaml:"MaxSizeMB"`
	MaxBackups int    `json:"MaxBackups" yaml:"MaxBackups"`
	Console    bool   `json:"Console" yaml:"Console"`
	Pretty     bool   `json:"Pretty" yaml:"Pretty"`
	Format     string `json:"Format" yaml:"Format"`
}

type rawKafkaConfig struct {
	Brokers        []string `json:"Brokers" yaml:"Brokers"`
	Topic          string   `json:"Topic" yaml:"Topic"`
	Compression    string   `json:"Compression" yaml:"Compression"`
	RequiredAcks   *int     `json:"RequiredAcks" yaml:"RequiredAcks"`
	MaxRetries     int      `json:"MaxRetries" yaml:"MaxRetries"`
	RetryBackoff   string   `json:"RetryBackoff" yaml:"RetryBackoff"`
	FlushFrequency string   `json:"FlushFrequency" yaml:"FlushFrequency"`
	Timeout        string   `json:"Timeout" yaml:"Timeout"`
	EnableTLS      bool     `json:"EnableTLS" yaml:"EnableTLS"`
	TLSCertFile    string   `json:"TLSCertFile" yaml:"TLSCertFile"`
	TLSKeyFile     string   `json:"TLSKeyFile" yaml:"TLSKeyFile"`
	TLSCAFile      string   `json:"TLSCAFile" yaml:"TLSCAFile"`
	SASLEnabled    bool     `json:"SASLEnabled" yaml:"SASLEnabled"`
	SASLMechanism  string   `json:"SASLMechanism" yaml:"SASLMechanism"`
	SASLUser       string   `json:"SASLUser" yaml:"SASLUser"`
	SASLPassword   string   `json:"SASLPassword" yaml:"SASLPassword"`
}

type rawRedisConfig struct {
	Address   string `json:"Address" yaml:"Address"`
	Password  string `json:"Password" yaml:"Password"`
	DB        int    `json:"DB" yaml:"DB"`
	Channel   string `json:"Channel" yaml:"Channel"`
	LatestKey string `json:"LatestKey" yaml:"LatestKey"`
	LatestTTL string `json:"LatestTTL" yaml:"LatestTTL"`
}

type rawLoggingConfig struct {
	Level      string `json:"Level" yaml:"Level"`
	FilePath   string `json:"FilePath" yaml:"FilePath"`
	Format     string `json:"Format" yaml:"Format"`
	MaxSizeMB  int    `json:"MaxSizeMB" yaml:"MaxSizeMB"`
	MaxBackups int    `json:"MaxBackups" yaml:"MaxBackups"`
	MaxAgeDays int    `json:"MaxAgeDays" yaml:"MaxAgeDays"`
	Compress   *bool  `json:"Compress" yaml:"Compress"`
	Console    *bool  `json:"Console" yaml:"Console"`
}

// isYAML reports whether path should be decoded as YAML.
func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Load reads ServerStats configuration from path. Files ending in .yaml or
// .yml are decoded as YAML, everything else as JSON.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if isYAML(path) {
		return ParseYAML(data)
	}
	return Parse(data)
}

// Parse parses configuration from JSON bytes.
func Parse(data []byte) (*Config, error) {
	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	return fromRaw(&raw)
}

// ParseYAML parses configuration from YAML bytes.
func ParseYAML(data []byte) (*Config, error) {
	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	return fromRaw(&raw)
}

func fromRaw(raw *rawConfig) (*Config, error) {
	cfg := DefaultConfig()

	if raw.Agent.ID != "" {
		cfg.Agent.ID = raw.Agent.ID
	}
	if raw.Agent.Hostname != "" {
		cfg.Agent.Hostname = raw.Agent.Hostname
	}
	if err := mergeSampling(&cfg.Sampling, &raw.Sampling); err != nil {
		return nil, err
	}
	if err := mergeSink(&cfg.Sink, &raw.Sink); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseDuration sets *dst from s when s is non-empty.
func parseDuration(field, s string, dst *time.Duration) error {
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid %s duration: %w", field, err)
	}
	*dst = d
	return nil
}

func mergeSampling(s *SamplingConfig, raw *rawSampling) error {
	s.Debug = raw.Debug
	s.SuppressEmpty = raw.SuppressEmpty
	if raw.RunFirst != nil {
		s.RunFirst = *raw.RunFirst
	}

	durations := []struct {
		name string
		src  string
		dst  *time.Duration
	}{
		{"Sampling.Interval", raw.Interval, &s.Interval},
		{"Sampling.CollectTimeout", raw.CollectTimeout, &s.CollectTimeout},
		{"Sampling.PublishTimeout", raw.PublishTimeout, &s.PublishTimeout},
		{"Sampling.ReadTimeout", raw.ReadTimeout, &s.ReadTimeout},
	}
	for _, d := range durations {
		if err := parseDuration(d.name, d.src, d.dst); err != nil {
			return err
		}
	}

	if raw.CPUInfoPath != "" {
		s.CPUInfoPath = raw.CPUInfoPath
	}
	if raw.ThermalZonePath != "" {
		s.ThermalZonePath = raw.ThermalZonePath
	}
	if raw.VendorCommand != "" {
		s.VendorCommand = raw.VendorCommand
	}
	if raw.VendorArgs != nil {
		s.VendorArgs = raw.VendorArgs
	}

	if raw.SimulatedMin != nil {
		s.SimulatedMin = *raw.SimulatedMin
	}
	if raw.SimulatedMax != nil {
		s.SimulatedMax = *raw.SimulatedMax
	}
	if raw.SimulatedStep != nil {
		s.SimulatedStep = *raw.SimulatedStep
	}
	return nil
}

func mergeSink(s *SinkConfig, raw *rawSinkConfig) error {
	if raw.Type != "" {
		s.Type = strings.ToLower(raw.Type)
	}
	if raw.SOCKSProxy.Host != "" {
		s.SOCKSProxy = raw.SOCKSProxy
	}

	f := raw.File
	if f.FilePath != "" {
		s.File.FilePath = f.FilePath
	}
	if f.MaxSizeMB != 0 {
		s.File.MaxSizeMB = f.MaxSizeMB
	}
	if f.MaxBackups != 0 {
		s.File.MaxBackups = f.MaxBackups
	}
	if f.Format != "" {
		s.File.Format = strings.ToLower(f.Format)
	}
	s.File.Console = f.Console
	s.File.Pretty = f.Pretty

	k := raw.Kafka
	if len(k.Brokers) > 0 {
		s.Kafka.Brokers = k.Brokers
	}
	if k.Topic != "" {
		s.Kafka.Topic = k.Topic
	}
	if k.Compression != "" {
		s.Kafka.Compression = k.Compression
	}
	if k.RequiredAcks != nil {
		s.Kafka.RequiredAcks = *k.RequiredAcks
	}
	if k.MaxRetries != 0 {
		s.Kafka.MaxRetries = k.MaxRetries
	}
	if err := parseDuration("Kafka.RetryBackoff", k.RetryBackoff, &s.Kafka.RetryBackoff); err != nil {
		return err
	}
	if err := parseDuration("Kafka.FlushFrequency", k.FlushFrequency, &s.Kafka.FlushFrequency); err != nil {
		return err
	}
	if err := parseDuration("Kafka.Timeout", k.Timeout, &s.Kafka.Timeout); err != nil {
		return err
	}
	s.Kafka.EnableTLS = k.EnableTLS
	s.Kafka.TLSCertFile = k.TLSCertFile
	s.Kafka.TLSKeyFile = k.TLSKeyFile
	s.Kafka.TLSCAFile = k.TLSCAFile
	s.Kafka.SASLEnabled = k.SASLEnabled
	s.Kafka.SASLMechanism = k.SASLMechanism
	s.Kafka.SASLUser = k.SASLUser
	s.Kafka.SASLPassword = k.SASLPassword

	r := raw.Redis
	if r.Address != "" {
		s.Redis.Address = r.Address
	}
	if r.Password != "" {
		s.Redis.Password = r.Password
	}
	if r.DB != 0 {
		s.Redis.DB = r.DB
	}
	if r.Channel != "" {
		s.Redis.Channel = r.Channel
	}
	if r.LatestKey != "" {
		s.Redis.LatestKey = r.LatestKey
	}
	return parseDuration("Redis.LatestTTL", r.LatestTTL, &s.Redis.LatestTTL)
}

// LoadLogging reads logging configuration from path (JSON or YAML).
func LoadLogging(path string) (*logger.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read logging config file: %w", err)
	}
	var raw rawLoggingConfig
	if isYAML(path) {
		err = yaml.Unmarshal(data, &raw)
	} else {
		err = json.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse logging config: %w", err)
	}
	return mergeLogging(&raw), nil
}

// ParseLogging parses logging configuration from JSON bytes.
func ParseLogging(data []byte) (*logger.Config, error) {
	var raw rawLoggingConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse logging config JSON: %w", err)
	}
	return mergeLogging(&raw), nil
}

func mergeLogging(raw *rawLoggingConfig) *logger.Config {
	lc := logger.DefaultConfig()
	if raw.Level != "" {
		lc.Level = raw.Level
	}
	if raw.FilePath != "" {
		lc.FilePath = raw.FilePath
	}
	if raw.Format != "" {
		lc.Format = raw.Format
	}
	if raw.MaxSizeMB != 0 {
		lc.MaxSizeMB = raw.MaxSizeMB
	}
	if raw.MaxBackups != 0 {
		lc.MaxBackups = raw.MaxBackups
	}
	if raw.MaxAgeDays != 0 {
		lc.MaxAgeDays = raw.MaxAgeDays
	}
	if raw.Compress != nil {
		lc.Compress = *raw.Compress
	}
	if raw.Console != nil {
		lc.Console = *raw.Console
	}
	return &lc
}

// LoadSplit loads ServerStats.json and Logging.json.
func LoadSplit(configPath, loggingPath string) (*Config, *logger.Config, error) {
	cfg, err := Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	lc, err := LoadLogging(loggingPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load logging config: %w", err)
	}
	return cfg, lc, nil
}
