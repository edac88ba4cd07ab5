package discovery

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"github.com/enbility/zeroconf/v3"
)

// BrowserConfig configures browser behavior.
type BrowserConfig struct {
	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string

	Logger *slog.Logger
}

// Sink receives browse results. *Directory implements it.
type Sink interface {
	Add(p *Proxy) bool
	Remove(instance string, addrs []string) bool
}

// Browser browses the network for Bluetooth proxies.
type Browser struct {
	config BrowserConfig
	logger *slog.Logger
}

// NewBrowser creates a new proxy browser.
func NewBrowser(config BrowserConfig) *Browser {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Browser{config: config, logger: logger.With("service", ServiceType)}
}

// Run browses until ctx is cancelled, feeding sink. Entries that are not
// proxies are skipped.
func (b *Browser) Run(ctx context.Context, sink Sink) error {
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	errCh := make(chan error, 1)
	go func() {
		errCh <- zeroconf.Browse(ctx, ServiceType, Domain, entries, removed, b.browserOptions()...)
	}()

	b.logger.Info("browsing for bluetooth proxies")
	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				entries = nil
				continue
			}
			b.HandleEntry(sink, fromZeroconf(entry))

		case entry, ok := <-removed:
			if !ok {
				removed = nil
				continue
			}
			e := fromZeroconf(entry)
			if sink.Remove(e.Instance, e.Addrs) {
				b.logger.Info("bluetooth proxy gone", "instance", e.Instance)
			}

		case err := <-errCh:
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil

		case <-ctx.Done():
			return nil
		}
	}
}

// HandleEntry converts a resolved entry and passes it to sink.
func (b *Browser) HandleEntry(sink Sink, e ServiceEntry) {
	p, err := e.ToProxy()
	if err != nil {
		if !errors.Is(err, ErrNotProxy) {
			b.logger.Debug("ignoring malformed announcement", "instance", e.Instance, "error", err)
		}
		return
	}
	if sink.Add(p) {
		b.logger.Info("bluetooth proxy found",
			"name", p.DisplayName(),
			"mac", p.MAC,
			"host", p.Host,
			"featureFlags", p.FeatureFlags)
	}
}

// browserOptions returns zeroconf client options based on config.
func (b *Browser) browserOptions() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption
	if b.config.Interface != "" {
		iface, err := net.InterfaceByName(b.config.Interface)
		if err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		} else {
			b.logger.Warn("unknown interface, browsing on all", "interface", b.config.Interface, "error", err)
		}
	}
	return opts
}

func fromZeroconf(entry *zeroconf.ServiceEntry) ServiceEntry {
	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}
	return ServiceEntry{
		Instance: entry.Instance,
		Host:     entry.HostName,
		Port:     uint16(entry.Port),
		Text:     entry.Text,
		Addrs:    addrs,
	}
}

var _ Sink = (*Directory)(nil)
