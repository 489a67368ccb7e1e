package config

import (
	"io/ioutil"
	"path"
	"testing"
	"time"
)

func TestLoadConfigMissingFile(t *testing.T) {
	configPath = path.Join(t.TempDir(), "config.yaml")
	config, err := LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if config.TransferTimeout() != 5*time.Second {
		t.Fatal(config.TransferTimeout())
	}
	if !config.PrintOnConnect {
		t.Fatal("expected print_on_connect default")
	}
}

func TestLoadConfig(t *testing.T) {
	configPath = path.Join(t.TempDir(), "config.yaml")
	data := []byte("transfer_timeout_ms: 1500\nrescan_interval_s: 3\npayload: /tmp/label.bin\n")
	if err := ioutil.WriteFile(configPath, data, 0600); err != nil {
		t.Fatal(err)
	}
	config, err := LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if config.TransferTimeout() != 1500*time.Millisecond {
		t.Fatal(config.TransferTimeout())
	}
	if config.RescanInterval() != 3*time.Second {
		t.Fatal(config.RescanInterval())
	}
	if config.PayloadPath != "/tmp/label.bin" {
		t.Fatal(config.PayloadPath)
	}
}
