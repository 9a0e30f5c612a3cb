package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
)

// Duration is a time.Duration that unmarshals from either a JSON number
// (nanoseconds) or a string like "30s".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		var err error
		d.Duration, err = time.ParseDuration(value)
		if err != nil {
			return err
		}
		return nil
	default:
		return errors.New("invalid duration")
	}
}

// Configuration for the imap subcommand. The file based mode needs no
// configuration at all.
type Configuration struct {
	ImapConfig IMAPConfig `json:"imap"`
	BatchSize  int        `json:"batchSize" validate:"min=1"`
}

type IMAPConfig struct {
	Host       string   `json:"host" validate:"required"`
	SSL        bool     `json:"ssl"`
	User       string   `json:"user" validate:"required"`
	Pass       string   `json:"pass"`
	Folder     string   `json:"folder" validate:"required"`
	IgnoreCert bool     `json:"ignoreCert"`
	Timeout    Duration `json:"timeout"`
}

// GetConfig reads the JSON config file f on top of the passed defaults and
// validates the result.
func GetConfig(defaults Configuration, f string) (*Configuration, error) {
	if f == "" {
		return nil, fmt.Errorf("please provide a valid config file")
	}

	b, err := os.ReadFile(f) // nolint: gosec
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(b, &defaults); err != nil {
		return nil, err
	}

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(defaults); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &defaults, nil
}
