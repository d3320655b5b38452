/*
heimdallrd is the coordinator process: one long-lived instance per
partition per host. It listens on the fixed rendezvous port, accepts
registrations for exactly one job, then mediates that job's barriers,
distributed mutexes, and finalization until every rank tears down.

For usage details, run heimdallrd with -h.
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/heimdallr-go/heimdallr/clog"
	"github.com/heimdallr-go/heimdallr/daemon"
	"github.com/heimdallr-go/heimdallr/metrics"
)

func main() {
	var partition, name, iface, metricsAddr string
	var help, verbose bool

	flag.Usage = usage
	flag.StringVar(&partition, "partition", "", "administrative partition this coordinator serves")
	flag.StringVar(&partition, "p", "", "shorthand for --partition")
	flag.StringVar(&name, "name", "", "name this coordinator registers under within its partition")
	flag.StringVar(&name, "n", "", "shorthand for --name")
	flag.StringVar(&iface, "interface", "", "network interface to bind the rendezvous listener to")
	flag.StringVar(&metricsAddr, "metrics-addr", "", "if set, serve Prometheus metrics on this address")
	flag.BoolVar(&help, "h", false, "show usage information")
	flag.BoolVar(&verbose, "l", false, "show logging output (for debugging)")
	flag.Parse()

	if help {
		usage()
		os.Exit(0)
	}
	if partition == "" || name == "" {
		fmt.Fprintf(os.Stderr, "Error: coordinator did not provide all necessary arguments.\n  partition: %q\n  name: %q\nShutting down.\n", partition, name)
		os.Exit(1)
	}
	if verbose {
		clog.Enable()
	}

	var reg *metrics.Registry
	if metricsAddr != "" {
		reg = metrics.New()
	}

	d, err := daemon.New(daemon.Options{
		Name:      name,
		Partition: partition,
		Interface: iface,
		Metrics:   reg,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Printf("Terminating heimdallrd on signal %v...\n", sig)
		os.Exit(0)
	}()

	if reg != nil {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			if err := reg.Serve(ctx, metricsAddr); err != nil {
				fmt.Fprintf(os.Stderr, "Error: metrics server: %v\n", err)
			}
		}()
	}

	if err := d.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Printf(`usage: heimdallrd [-h] [-l] --partition P --name NAME [--interface IF] [--metrics-addr ADDR]

Starts a coordinator process serving one partition. It registers exactly
one job's worth of clients, then mediates that job's barriers, mutexes,
and finalization.

Flags:
`)
	flag.PrintDefaults()
}
