package config

import (
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// TOMLProvider implements ConfigProvider for TOML configuration files
type TOMLProvider struct {
	filename string
}

func NewTOMLProvider(filename string) *TOMLProvider {
	return &TOMLProvider{filename: filename}
}

func (t *TOMLProvider) LoadConfig() (*ConfigData, error) {
	cfgFile, err := os.ReadFile(t.filename)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config file %s", t.filename)
	}
	return ParseTOML(cfgFile)
}

// ParseTOML decodes, defaults and validates a TOML document. Unknown keys are
// rejected, as with YAML.
func ParseTOML(data []byte) (*ConfigData, error) {
	var cfg ConfigData
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, errors.Wrap(err, "parsing TOML config")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return nil, errors.Errorf("unknown TOML config keys: %s", strings.Join(keys, ", "))
	}
	return finish(&cfg)
}

func (t *TOMLProvider) GetDevice() (*DeviceData, error) {
	cfg, err := t.LoadConfig()
	if err != nil {
		return nil, err
	}
	return &cfg.Device, nil
}

func (t *TOMLProvider) IsReadOnly() bool {
	return true
}

func (t *TOMLProvider) Close() error {
	return nil
}
