package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/chrissnell/wxtpoller/internal/app"
	"github.com/chrissnell/wxtpoller/internal/constants"
	"github.com/chrissnell/wxtpoller/internal/log"
	"github.com/chrissnell/wxtpoller/pkg/config"
)

// overrides holds the command-line values that replace file configuration.
// Only flags given explicitly are applied.
type overrides struct {
	device          string
	baud            int
	nodeInterval    float64
	beehiveInterval float64
	query           string
	set             map[string]bool
}

func main() {
	var o overrides
	cfgFile := flag.String("config", "", "Path to configuration file (optional; defaults are used without one)")
	cfgBackend := flag.String("config-backend", "yaml", "Configuration backend type: 'yaml' or 'toml'")
	flag.StringVar(&o.device, "device", config.DefaultSerialDevice, "serial device to use")
	flag.IntVar(&o.baud, "baudrate", config.DefaultBaud, "baudrate to use")
	flag.Float64Var(&o.nodeInterval, "node-publish-interval", 1.0, "seconds between node publishes (zero or negative disables node publishing)")
	flag.Float64Var(&o.beehiveInterval, "beehive-publish-interval", 1.0, "seconds between beehive publishes (zero or negative disables beehive publishing)")
	flag.StringVar(&o.query, "query", config.DefaultQuery, "query sent to the transmitter, e.g. 0R0, 0R2 or 0R")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s %s\n", constants.ServiceName, constants.Version)
		os.Exit(0)
	}

	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfgData, err := loadConfig(*cfgFile, *cfgBackend)
	if err != nil {
		log.Errorf("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	o.set = make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { o.set[f.Name] = true })
	o.apply(cfgData)
	if err := cfgData.Validate(); err != nil {
		log.Errorf("Invalid configuration: %v", err)
		os.Exit(1)
	}

	application := app.New(cfgData, *debug, log.GetSugaredLogger())
	if err := application.Run(context.Background()); err != nil {
		log.Errorf("Application error: %v", err)
		os.Exit(1)
	}
}

func loadConfig(cfgFile, cfgBackend string) (*config.ConfigData, error) {
	if cfgFile == "" {
		return config.Default(), nil
	}
	filename, _ := filepath.Abs(cfgFile)

	var provider config.ConfigProvider
	switch cfgBackend {
	case "yaml":
		provider = config.NewYAMLProvider(filename)
	case "toml":
		provider = config.NewTOMLProvider(filename)
	default:
		return nil, fmt.Errorf("unsupported configuration backend: %s. Use 'yaml' or 'toml'", cfgBackend)
	}
	defer provider.Close()

	cfgData, err := provider.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("error reading config file. Did you pass the -config flag? Run with -h for help: %w", err)
	}
	return cfgData, nil
}

func (o overrides) apply(cfg *config.ConfigData) {
	if o.set["device"] {
		cfg.Device.SerialDevice = o.device
	}
	if o.set["baudrate"] {
		cfg.Device.Baud = o.baud
	}
	if o.set["query"] {
		cfg.Device.Query = o.query
		cfg.Scopes.Node.Query = o.query
		cfg.Scopes.Beehive.Query = o.query
	}
	if o.set["node-publish-interval"] {
		cfg.Scopes.Node.Interval = seconds(o.nodeInterval)
	}
	if o.set["beehive-publish-interval"] {
		cfg.Scopes.Beehive.Interval = seconds(o.beehiveInterval)
	}
}

func seconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
