package config

import "time"

const (
	DefaultTransferTimeoutMS = 5000
	DefaultRescanIntervalS   = 10
)

type Config struct {
	TransferTimeoutMS int    `yaml:"transfer_timeout_ms,omitempty"`
	RescanIntervalS   int    `yaml:"rescan_interval_s,omitempty"`
	PayloadPath       string `yaml:"payload,omitempty"`
	PrintOnConnect    bool   `yaml:"print_on_connect,omitempty"`
	JobLog            bool   `yaml:"job_log,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		TransferTimeoutMS: DefaultTransferTimeoutMS,
		RescanIntervalS:   DefaultRescanIntervalS,
		PrintOnConnect:    true,
		JobLog:            true,
	}
}

func (c *Config) TransferTimeout() time.Duration {
	if c.TransferTimeoutMS <= 0 {
		return DefaultTransferTimeoutMS * time.Millisecond
	}
	return time.Duration(c.TransferTimeoutMS) * time.Millisecond
}

func (c *Config) RescanInterval() time.Duration {
	if c.RescanIntervalS <= 0 {
		return DefaultRescanIntervalS * time.Second
	}
	return time.Duration(c.RescanIntervalS) * time.Second
}
