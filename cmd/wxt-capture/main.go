// wxt-capture appends every line a WXT transmitter sends to a timestamped CSV
// file. It can either poll with a query or listen to an automatic message mode.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/chrissnell/wxtpoller/internal/log"
	"github.com/chrissnell/wxtpoller/internal/sinks/csvfile"
	"github.com/chrissnell/wxtpoller/internal/transport"
	"github.com/chrissnell/wxtpoller/internal/weatherstations/wxt"
	"github.com/chrissnell/wxtpoller/pkg/config"
)

type lineIO interface {
	WriteCommand(cmd string) error
	ReadLine(ctx context.Context, timeout time.Duration) ([]byte, error)
}

type rowWriter interface {
	WriteRow(fields []string) error
}

type capturer struct {
	link    lineIO
	out     rowWriter
	poll    bool
	query   string
	timeout time.Duration
	now     func() time.Time
	logger  *zap.SugaredLogger
}

// captureOnce optionally sends the query, reads one line and writes it as a
// row prefixed with the capture time. It reports whether a row was written.
func (c *capturer) captureOnce(ctx context.Context) (bool, error) {
	if c.poll {
		if err := c.link.WriteCommand(c.query); err != nil {
			return false, err
		}
	}
	line, err := c.link.ReadLine(ctx, c.timeout)
	if err != nil {
		return false, err
	}
	c.logger.Debugf("received %q", line)

	text := strings.TrimSpace(string(wxt.StripControl(line)))
	if text == "" {
		return false, nil
	}
	row := append([]string{c.now().Format(csvfile.TimestampLayout)}, strings.Split(text, ",")...)
	if err := c.out.WriteRow(row); err != nil {
		c.logger.Errorf("unable to write row: %v", err)
		return false, nil
	}
	return true, nil
}

func (c *capturer) run(ctx context.Context, every time.Duration) error {
	for {
		if _, err := c.captureOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(every):
		}
	}
}

// linkFlags are the link settings given on the command line.
type linkFlags struct {
	device   string
	baud     int
	hostname string
	port     string
	set      map[string]bool
}

// linkConfig returns how to reach the transmitter and the per-read timeout.
// With a provider the device section of the configuration file is the
// starting point and only flags given explicitly override it.
func (f linkFlags) linkConfig(provider config.ConfigProvider) (transport.Config, time.Duration, error) {
	if provider == nil {
		cfg := transport.Config{Baud: f.baud, OpenTimeout: 10 * time.Second}
		if f.hostname != "" {
			cfg.Hostname, cfg.Port = f.hostname, f.port
		} else {
			cfg.SerialDevice = f.device
		}
		return cfg, time.Second, nil
	}

	dev, err := provider.GetDevice()
	if err != nil {
		return transport.Config{}, 0, err
	}
	readTimeout, err := config.ParseInterval(dev.ReadTimeout)
	if err != nil {
		return transport.Config{}, 0, fmt.Errorf("device.read-timeout: %w", err)
	}
	openTimeout, err := config.ParseInterval(dev.OpenTimeout)
	if err != nil {
		return transport.Config{}, 0, fmt.Errorf("device.open-timeout: %w", err)
	}

	cfg := transport.Config{
		SerialDevice: dev.SerialDevice,
		Baud:         dev.Baud,
		Hostname:     dev.Hostname,
		Port:         dev.Port,
		OpenTimeout:  openTimeout,
	}
	if f.set["hostname"] {
		cfg.SerialDevice, cfg.Hostname, cfg.Port = "", f.hostname, f.port
	}
	if f.set["device"] {
		cfg.SerialDevice = f.device
	}
	if f.set["baudrate"] {
		cfg.Baud = f.baud
	}
	return cfg, readTimeout, nil
}

func newProvider(path, backend string) (config.ConfigProvider, error) {
	if path == "" {
		return nil, nil
	}
	switch backend {
	case "yaml":
		return config.NewYAMLProvider(path), nil
	case "toml":
		return config.NewTOMLProvider(path), nil
	}
	return nil, fmt.Errorf("unsupported configuration backend: %s. Use 'yaml' or 'toml'", backend)
}

func main() {
	var lf linkFlags
	cfgFile := flag.String("config", "", "read link settings from the device section of this configuration file")
	cfgBackend := flag.String("config-backend", "yaml", "Configuration backend type: 'yaml' or 'toml'")
	flag.StringVar(&lf.device, "device", "/dev/ttyUSB0", "serial device to use")
	flag.IntVar(&lf.baud, "baudrate", 19200, "baud rate of the serial device")
	flag.StringVar(&lf.hostname, "hostname", "", "connect over TCP to this host instead of a serial device")
	flag.StringVar(&lf.port, "port", "", "TCP port used with -hostname")
	poll := flag.Bool("poll", false, "send -query before every read")
	query := flag.String("query", "0R", "ASCII query sent to the transmitter")
	site := flag.String("site", "atmos", "site identifier used in the file name")
	dir := flag.String("dir", ".", "directory to write capture files into")
	frequency := flag.Duration("frequency", time.Second, "time between reads")
	verbose := flag.Bool("verbose", false, "log every line received")
	flag.Parse()

	if err := log.Init(*verbose); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger := log.GetSugaredLogger()

	lf.set = make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { lf.set[f.Name] = true })

	provider, err := newProvider(*cfgFile, *cfgBackend)
	if err != nil {
		log.Fatalf("%v", err)
	}
	cfg, readTimeout, err := lf.linkConfig(provider)
	if provider != nil {
		provider.Close()
	}
	if err != nil {
		log.Fatalf("could not read link settings: %v", err)
	}

	link, err := transport.Open(cfg, logger.Named("transport"))
	if err != nil {
		log.Fatalf("could not open link: %v", err)
	}
	defer link.Close()

	w := csvfile.Open(csvfile.Config{Dir: *dir, Site: *site}, time.Now())
	defer w.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := &capturer{
		link:    link,
		out:     w,
		poll:    *poll,
		query:   *query,
		timeout: readTimeout,
		now:     time.Now,
		logger:  logger,
	}
	logger.Infof("capturing to %s", csvfile.FileName(*site, time.Now()))
	if err := c.run(ctx, *frequency); err != nil {
		log.Errorf("capture stopped: %v", err)
	}
}
