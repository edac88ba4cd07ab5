// Command blelink-log reads the CBOR event logs that blelink writes when
// started with -protocol-log (or the protocol_log config key).
//
//	blelink-log view -address AA:BB:CC:DD:EE:FF -category write blelink.blog
//	blelink-log filter -session-id 3f2a9c1e-... -o session.blog blelink.blog
//	blelink-log export -format csv -o writes.csv blelink.blog
//	blelink-log stats blelink.blog
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/blelink/blelink-go/cmd/blelink-log/commands"
)

// errUsage has already been reported together with the usage text.
var errUsage = errors.New("usage")

// usageError is a command line mistake. The usage text follows it.
type usageError string

func (e usageError) Error() string { return string(e) }

// action runs a subcommand against one log file.
type action func(path string, stdout io.Writer) error

type subcommand struct {
	name    string
	summary string
	flags   func(fs *flag.FlagSet) action
}

var subcommands = []subcommand{
	{"view", "print events one per line", viewFlags},
	{"filter", "copy matching events into a new log", filterFlags},
	{"export", "convert events to jsonl, csv or yaml", exportFlags},
	{"stats", "summarize sightings, writes and state per device", statsFlags},
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run dispatches args and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return 2
	}
	switch args[0] {
	case "-h", "-help", "--help", "help":
		printUsage(stdout)
		return 0
	}

	for _, sc := range subcommands {
		if sc.name != args[0] {
			continue
		}
		err := sc.exec(args[1:], stdout, stderr)
		switch {
		case err == nil:
			return 0
		case errors.Is(err, flag.ErrHelp):
			return 0
		case errors.Is(err, errUsage):
			return 2
		default:
			fmt.Fprintf(stderr, "blelink-log %s: %v\n", sc.name, err)
			return 1
		}
	}
	fmt.Fprintf(stderr, "blelink-log: unknown command %q\n", args[0])
	printUsage(stderr)
	return 2
}

func (sc subcommand) exec(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet(sc.name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "usage: blelink-log %s [flags] <file.blog>\n\n%s.\n", sc.name, sc.summary)
		if hasFlags(fs) {
			fmt.Fprintln(stderr)
			fs.PrintDefaults()
		}
	}
	act := sc.flags(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return errUsage
	}
	var err error
	if fs.NArg() != 1 {
		err = usageError("exactly one log file is required")
	} else {
		err = act(fs.Arg(0), stdout)
	}
	var ue usageError
	if errors.As(err, &ue) {
		fmt.Fprintln(stderr, ue)
		fs.Usage()
		return errUsage
	}
	return err
}

func printUsage(w io.Writer) {
	var b strings.Builder
	b.WriteString("usage: blelink-log <command> [flags] <file.blog>\n\ncommands:\n")
	for _, sc := range subcommands {
		fmt.Fprintf(&b, "  %-8s %s\n", sc.name, sc.summary)
	}
	b.WriteString("\nRun blelink-log <command> -h for the flags of a command.\n")
	fmt.Fprint(w, b.String())
}

func hasFlags(fs *flag.FlagSet) bool {
	found := false
	fs.VisitAll(func(*flag.Flag) { found = true })
	return found
}

// selector holds the event selection flags shared by view and filter.
type selector struct {
	address, layer, direction, category string
}

func (s *selector) register(fs *flag.FlagSet) {
	fs.StringVar(&s.address, "address", "", "only events of this device address")
	fs.StringVar(&s.layer, "layer", "", "only this layer: transport, session, availability, entity")
	fs.StringVar(&s.direction, "direction", "", "only this direction: in, out, none")
	fs.StringVar(&s.category, "category", "", "only this category: sighting, write, state, error")
}

func (s *selector) viewFilter() (commands.ViewFilter, error) {
	f := commands.ViewFilter{Address: s.address}
	if s.layer != "" {
		l, err := commands.ParseLayerFlag(s.layer)
		if err != nil {
			return f, err
		}
		f.Layer = &l
	}
	if s.direction != "" {
		d, err := commands.ParseDirectionFlag(s.direction)
		if err != nil {
			return f, err
		}
		f.Direction = &d
	}
	if s.category != "" {
		c, err := commands.ParseCategoryFlag(s.category)
		if err != nil {
			return f, err
		}
		f.Category = &c
	}
	return f, nil
}

func viewFlags(fs *flag.FlagSet) action {
	var sel selector
	sel.register(fs)
	return func(path string, stdout io.Writer) error {
		f, err := sel.viewFilter()
		if err != nil {
			return err
		}
		return commands.RunView(path, f, stdout)
	}
}

func filterFlags(fs *flag.FlagSet) action {
	var sel selector
	sel.register(fs)
	var opts commands.FilterOptions
	fs.StringVar(&opts.Output, "o", "", "destination log file (required)")
	fs.StringVar(&opts.SessionID, "session-id", "", "only events of this session")
	fs.StringVar(&opts.Entity, "entity", "", "only events of this switch id")
	fs.StringVar(&opts.TimeStart, "time-start", "", "drop events before this RFC3339 time")
	fs.StringVar(&opts.TimeEnd, "time-end", "", "drop events after this RFC3339 time")
	return func(path string, stdout io.Writer) error {
		if opts.Output == "" {
			return usageError("-o is required")
		}
		opts.Address = sel.address
		opts.Layer = sel.layer
		opts.Direction = sel.direction
		opts.Category = sel.category
		n, err := commands.RunFilter(path, opts)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "wrote %d events to %s\n", n, opts.Output)
		return nil
	}
}

func exportFlags(fs *flag.FlagSet) action {
	format := fs.String("format", "jsonl", "output format: jsonl, csv, yaml")
	output := fs.String("o", "", "output file (default stdout)")
	return func(path string, _ io.Writer) error {
		return commands.RunExport(path, *format, *output)
	}
}

func statsFlags(*flag.FlagSet) action {
	return func(path string, stdout io.Writer) error {
		return commands.RunStats(path, stdout)
	}
}
