// Command rr-dnstun-probe sends one HTTP request through a relay and prints
// the packed response.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/haukened/rr-dnstun/internal/dns/common/log"
	"github.com/haukened/rr-dnstun/internal/dns/gateways/tunnelclient"
)

type options struct {
	server  string
	carrier string
	host    string
	path    string
	raw     string
	timeout time.Duration
	verbose bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("rr-dnstun-probe", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.server, "server", "127.0.0.1:5353", "relay address")
	fs.StringVar(&o.carrier, "carrier", "amnupower.com", "carrier domain")
	fs.StringVar(&o.host, "host", "", "Host of the embedded request")
	fs.StringVar(&o.path, "path", "/", "path of the embedded request")
	fs.StringVar(&o.raw, "raw", "", "send this request text verbatim instead of building a GET")
	fs.DurationVar(&o.timeout, "timeout", 35*time.Second, "reply timeout")
	fs.BoolVar(&o.verbose, "v", false, "log the exchange")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.host == "" && o.raw == "" {
		return o, fmt.Errorf("one of -host or -raw is required")
	}
	return o, nil
}

func (o options) request() []byte {
	if o.raw != "" {
		return []byte(o.raw)
	}
	return tunnelclient.BuildRequest(o.host, o.path)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	logger := log.NewNoopLogger()
	if o.verbose {
		if logger, err = log.NewZapLogger("dev", "debug"); err != nil {
			return err
		}
	}

	req := o.request()
	name, err := tunnelclient.EncodeName(req, o.carrier)
	if err != nil {
		return err
	}
	logger.Debug(map[string]any{
		"server": o.server,
		"name":   name,
		"size":   len(req),
	}, "Sending tunnel query")

	client := tunnelclient.NewClient(o.server,
		tunnelclient.WithTimeout(o.timeout),
		tunnelclient.WithLogger(logger),
	)
	payload, err := client.Exchange(ctx, name)
	if err != nil {
		return err
	}
	_, err = stdout.Write(append(payload, '\n'))
	return err
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "rr-dnstun-probe: %v\n", err)
		os.Exit(1)
	}
}
