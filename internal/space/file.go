package space

import (
	"encoding/json"
	"fmt"
	"os"
)

// Decode parses a configuration from its JSON form and validates it.
// Unknown keys are ignored.
func Decode(data []byte) (Configuration, error) {
	var c Configuration
	if err := json.Unmarshal(data, &c); err != nil {
		return Configuration{}, fmt.Errorf("decode configuration: %w", err)
	}
	if c.Params == nil {
		c.Params = Extensions{}
	}
	if err := Validate(c); err != nil {
		return Configuration{}, err
	}
	return c, nil
}

// LoadFile reads a configuration file.
func LoadFile(path string) (Configuration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Configuration{}, fmt.Errorf("read configuration %s: %w", path, err)
	}
	return Decode(data)
}

// SaveFile writes c as indented JSON.
func SaveFile(path string, c Configuration) error {
	data, err := json.MarshalIndent(c.Clone(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal configuration: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write configuration %s: %w", path, err)
	}
	return nil
}
