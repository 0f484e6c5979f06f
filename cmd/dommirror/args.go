package main

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/hazyhaar/dommirror/internal/config"
)

// options is the parsed command line.
type options struct {
	configPath string
	dest       string
	source     string
	logLevel   string
	serve      string
	metadata   bool
	markdown   bool
	help       bool
	workers    int

	addresses []string // positional arguments starting with http
	ignored   []string // other positional arguments
	set       map[string]bool
}

func newFlagSet(o *options) *flag.FlagSet {
	fs := flag.NewFlagSet("dommirror", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&o.dest, "dest", "", "folder where to save the fetched URIs (must exist)")
	fs.BoolVar(&o.metadata, "metadata", false, "print information about each URI inspected")
	fs.BoolVar(&o.help, "help", false, "print this information")
	fs.StringVar(&o.configPath, "config", "", "path to a YAML config file")
	fs.StringVar(&o.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	fs.BoolVar(&o.markdown, "markdown", false, "also save a markdown rendition of each page")
	fs.IntVar(&o.workers, "workers", 0, "concurrent resource downloads (default 1)")
	fs.StringVar(&o.source, "source", "", "document source: browser, http or auto")
	fs.StringVar(&o.serve, "serve", "", "serve the destination folder on this address after mirroring")
	return fs
}

// parseArgs accepts flags and addresses in any order. Flag names are
// case-insensitive.
func parseArgs(args []string) (*options, error) {
	o := &options{set: map[string]bool{}}
	fs := newFlagSet(o)

	var flags []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			for _, rest := range args[i+1:] {
				o.positional(rest)
			}
			break
		}
		if !strings.HasPrefix(arg, "-") || arg == "-" {
			o.positional(arg)
			continue
		}

		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		name = strings.ToLower(name)
		if hasValue {
			flags = append(flags, "--"+name+"="+value)
			continue
		}
		flags = append(flags, "--"+name)
		// A value flag written as "--dest PATH" takes the next argument.
		if f := fs.Lookup(name); f != nil && !isBoolFlag(f) && i+1 < len(args) {
			i++
			flags = append(flags, args[i])
		}
	}

	if err := fs.Parse(flags); err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) { o.set[f.Name] = true })
	return o, nil
}

func (o *options) positional(arg string) {
	if strings.HasPrefix(strings.ToUpper(arg), "HTTP") {
		o.addresses = append(o.addresses, arg)
		return
	}
	o.ignored = append(o.ignored, arg)
}

func isBoolFlag(f *flag.Flag) bool {
	b, ok := f.Value.(interface{ IsBoolFlag() bool })
	return ok && b.IsBoolFlag()
}

// apply overrides cfg with every flag given on the command line.
func (o *options) apply(cfg *config.Config) {
	if o.set["dest"] {
		cfg.Dest = o.dest
	}
	if o.set["metadata"] {
		cfg.Metadata = o.metadata
	}
	if o.set["markdown"] {
		cfg.Markdown = o.markdown
	}
	if o.set["source"] {
		cfg.Source = o.source
	}
	if o.set["workers"] && o.workers > 0 {
		cfg.Fetch.Workers = o.workers
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: dommirror --dest=PATH [OPTIONS] URI [URI2 ...]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Arguments")
	fmt.Fprintln(w, "--dest=PATH       Folder where to save the fetched URIs")
	fmt.Fprintln(w, "URI               Address of the HTML resource to fetch")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Options")
	fmt.Fprintln(w, "--help            Print this information")
	fmt.Fprintln(w, "--metadata        Print information about each URI inspected")
	fmt.Fprintln(w, "--markdown        Also save a markdown rendition of each page")
	fmt.Fprintln(w, "--source=MODE     Document source: browser (default), http or auto")
	fmt.Fprintln(w, "--workers=N       Concurrent resource downloads (default 1)")
	fmt.Fprintln(w, "--config=FILE     YAML configuration file")
	fmt.Fprintln(w, "--log-level=LVL   debug, info, warn or error")
	fmt.Fprintln(w, "--serve=ADDR      Serve the destination folder after mirroring")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Example")
	fmt.Fprintln(w, "dommirror --dest=./data --metadata https://example.com")
}
