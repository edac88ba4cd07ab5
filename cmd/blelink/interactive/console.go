// Package interactive provides the interactive console of the blelink
// daemon.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/blelink/blelink-go/pkg/device"
	"github.com/blelink/blelink-go/pkg/discovery"
	"github.com/blelink/blelink-go/pkg/switches"
)

// CommandTimeout bounds a switch command issued from the console.
const CommandTimeout = 15 * time.Second

// Console handles interactive mode for blelink.
type Console struct {
	rl      *readline.Instance
	out     io.Writer
	hub     *device.Hub
	proxies *discovery.Directory
}

// New creates the console. Bind must be called before Run.
func New() (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "blelink> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Console{rl: rl, out: rl.Stdout()}, nil
}

// Bind attaches the devices and, optionally, the proxy directory.
func (c *Console) Bind(hub *device.Hub, proxies *discovery.Directory) {
	c.hub = hub
	c.proxies = proxies
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Stderr returns a writer that properly coordinates with the readline input.
func (c *Console) Stderr() io.Writer {
	return c.rl.Stderr()
}

// Run starts the interactive command loop.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			// EOF or interrupt
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}

		if !c.Exec(ctx, line) {
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}
	}
}

// Exec runs one command line. It returns false when the console should
// exit.
func (c *Console) Exec(ctx context.Context, line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return true
	}

	parts := strings.Fields(input)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		c.printHelp()

	case "devices", "d":
		c.cmdDevices()

	case "status":
		c.cmdStatus(args)

	case "switches", "s":
		c.cmdSwitches()

	case "on":
		c.cmdSet(ctx, args, true)

	case "off":
		c.cmdSet(ctx, args, false)

	case "proxies", "p":
		c.cmdProxies()

	case "quit", "exit", "q":
		return false

	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return true
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
blelink Commands:
  Devices:
    devices            - List configured devices
    status <address>   - Show session, availability and sighting sources

  Switches:
    switches           - List switches
    on <switch-id>     - Turn a switch on
    off <switch-id>    - Turn a switch off

  Network:
    proxies            - List discovered Bluetooth proxies

  General:
    help               - Show this help
    quit               - Exit blelink`)
}

func (c *Console) cmdDevices() {
	devices := c.hub.Devices()
	if len(devices) == 0 {
		fmt.Fprintln(c.out, "No devices configured")
		return
	}
	fmt.Fprintf(c.out, "\n%-17s  %-20s  %-18s  %-10s  %s\n", "ADDRESS", "NAME", "STATE", "SESSION", "READY")
	for _, d := range devices {
		st := d.Status()
		fmt.Fprintf(c.out, "%-17s  %-20s  %-18s  %-10s  %s\n",
			st.Address, truncate(st.Name, 20), st.State, st.Session.State, yesNo(c.hub.Ready(st.Address)))
	}
	fmt.Fprintln(c.out)
}

func (c *Console) cmdStatus(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.out, "Usage: status <address>")
		return
	}
	d, ok := c.hub.Device(args[0])
	if !ok {
		fmt.Fprintf(c.out, "Unknown device: %s\n", args[0])
		return
	}
	st := d.Status()

	fmt.Fprintf(c.out, "\nDevice %s\n", st.Address)
	fmt.Fprintln(c.out, "-------------------------------------------")
	fmt.Fprintf(c.out, "  Name:           %s\n", st.Name)
	fmt.Fprintf(c.out, "  Availability:   %s (available: %s)\n", st.State, yesNo(st.Available))
	if st.Distrusted {
		fmt.Fprintln(c.out, "  Distrusted:     yes, waiting for a fresh advertisement")
	}
	if !st.LastSeen.IsZero() {
		fmt.Fprintf(c.out, "  Last Seen:      %s ago\n", time.Since(st.LastSeen).Truncate(time.Second))
	}
	fmt.Fprintf(c.out, "  Session:        %s\n", st.Session.State)
	if st.Session.ID != "" {
		fmt.Fprintf(c.out, "  Session ID:     %s (open for %s)\n", st.Session.ID, time.Since(st.Session.OpenedAt).Truncate(time.Second))
	}
	fmt.Fprintf(c.out, "  Idle Timer:     %s\n", armed(st.Session.IdleArmed))
	fmt.Fprintf(c.out, "  Waiting Writes: %d\n", st.Session.Waiting)
	fmt.Fprintf(c.out, "  Fast Path:      %s\n", yesNo(st.FastPath))

	if len(st.Sources) > 0 {
		fmt.Fprintln(c.out, "\n  Sources:")
		for _, src := range st.Sources {
			name := src.Source
			if src.Name != "" {
				name = src.Name + " (" + src.Source + ")"
			}
			fmt.Fprintf(c.out, "    %-40s  %6d sightings  rssi %4d\n", name, src.Count, src.LastRSSI)
		}
	}
	fmt.Fprintln(c.out)
}

func (c *Console) cmdSwitches() {
	all := c.hub.Switches()
	if len(all) == 0 {
		fmt.Fprintln(c.out, "No switches configured")
		return
	}
	fmt.Fprintf(c.out, "\n%-22s  %-30s  %-4s  %s\n", "ID", "NAME", "ON", "AVAILABLE")
	for _, sw := range all {
		st := sw.Snapshot()
		fmt.Fprintf(c.out, "%-22s  %-30s  %-4s  %s\n", st.ID, truncate(st.Name, 30), onOff(st.On), yesNo(st.Available))
	}
	fmt.Fprintln(c.out)
}

func (c *Console) cmdSet(ctx context.Context, args []string, on bool) {
	if len(args) < 1 {
		fmt.Fprintf(c.out, "Usage: %s <switch-id>\n", onOff(on))
		return
	}
	sw, _, ok := c.hub.Switch(args[0])
	if !ok {
		fmt.Fprintf(c.out, "Unknown switch: %s\n", args[0])
		return
	}

	ctx, cancel := context.WithTimeout(ctx, CommandTimeout)
	defer cancel()

	start := time.Now()
	if err := sw.Set(ctx, on); err != nil {
		if errors.Is(err, switches.ErrUnavailable) {
			fmt.Fprintf(c.out, "%s is unavailable: %v\n", sw.Name(), err)
			return
		}
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "%s turned %s (%s)\n", sw.Name(), onOff(on), time.Since(start).Truncate(time.Millisecond))
}

func (c *Console) cmdProxies() {
	if c.proxies == nil {
		fmt.Fprintln(c.out, "Proxy discovery is disabled (set discover_proxies)")
		return
	}
	all := c.proxies.All()
	if len(all) == 0 {
		fmt.Fprintln(c.out, "No proxies found")
		return
	}
	fmt.Fprintf(c.out, "\n%-24s  %-17s  %-8s  %s\n", "NAME", "MAC", "CONNECT", "ADDRESSES")
	for _, p := range all {
		fmt.Fprintf(c.out, "%-24s  %-17s  %-8s  %s\n",
			truncate(p.DisplayName(), 24), p.MAC, yesNo(p.CanConnect()), strings.Join(p.Addresses, ", "))
	}
	fmt.Fprintln(c.out)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func armed(b bool) string {
	if b {
		return "armed"
	}
	return "idle"
}
