package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// YAMLProvider implements ConfigProvider for YAML configuration files
type YAMLProvider struct {
	filename string
}

// NewYAMLProvider creates a new YAML configuration provider
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{
		filename: filename,
	}
}

// LoadConfig reads the file, applies defaults and validates the result.
func (y *YAMLProvider) LoadConfig() (*ConfigData, error) {
	cfgFile, err := os.ReadFile(y.filename)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config file %s", y.filename)
	}
	return ParseYAML(cfgFile)
}

// ParseYAML decodes, defaults and validates a YAML document.
func ParseYAML(data []byte) (*ConfigData, error) {
	var cfg ConfigData
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "parsing YAML config")
	}
	return finish(&cfg)
}

func (y *YAMLProvider) GetDevice() (*DeviceData, error) {
	cfg, err := y.LoadConfig()
	if err != nil {
		return nil, err
	}
	return &cfg.Device, nil
}

// IsReadOnly returns true since YAML files are read-only in this implementation
func (y *YAMLProvider) IsReadOnly() bool {
	return true
}

// Close is a no-op for YAML provider
func (y *YAMLProvider) Close() error {
	return nil
}
