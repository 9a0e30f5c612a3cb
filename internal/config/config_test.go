package config

import (
	"path"
	"testing"
	"time"
)

func defaults() Configuration {
	return Configuration{
		BatchSize: 30,
		ImapConfig: IMAPConfig{
			Timeout: Duration{Duration: 30 * time.Second},
		},
	}
}

func TestGetConfig(t *testing.T) {
	c, err := GetConfig(defaults(), path.Join("testdata", "test.json"))
	if err != nil {
		t.Fatalf("got error when reading config file: %v", err)
	}
	if c == nil {
		t.Fatal("got a nil config object")
	}
	if c.ImapConfig.Host != "imap.example.com:993" {
		t.Fatalf("wrong host: %s", c.ImapConfig.Host)
	}
	if c.BatchSize != 10 {
		t.Fatalf("batch size not taken from file: %d", c.BatchSize)
	}
	if c.ImapConfig.Timeout.Duration != 30*time.Second {
		t.Fatalf("wrong timeout: %v", c.ImapConfig.Timeout.Duration)
	}
}

func TestGetConfigErrors(t *testing.T) {
	_, err := GetConfig(defaults(), "")
	if err == nil {
		t.Fatal("expected error on empty filename")
	}
	_, err = GetConfig(defaults(), "this_does_not_exist")
	if err == nil {
		t.Fatal("expected error on invalid file")
	}
}

func TestGetConfigInvalid(t *testing.T) {
	_, err := GetConfig(defaults(), path.Join("testdata", "invalid.json"))
	if err == nil {
		t.Fatal("expected error when reading config file but got none")
	}
}

func TestGetConfigMissingHost(t *testing.T) {
	_, err := GetConfig(defaults(), path.Join("testdata", "missing_host.json"))
	if err == nil {
		t.Fatal("expected validation error when host is missing")
	}
}
