/*
heimdallr-demo is a runnable exerciser for the client façade (package
client), standing in for the benchmark and PDE solver the reference
implementation ships as ordinary clients of its core library (spec.md §1).
It implements the end-to-end scenarios from spec.md §8 as selectable
modes:

	pingpong      two-rank ping-pong (scenario 1)
	gather        ordered multi-sender receive (scenario 2)
	mutexcounter  25,000 increments per rank under a shared mutex (scenario 3)
	anysource     receive_any_source fan-in (scenario 4)

For usage details, run heimdallr-demo with -h.
*/
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/heimdallr-go/heimdallr/client"
	"github.com/heimdallr-go/heimdallr/clog"
)

type cliArgs struct {
	partition string
	jobs      uint32
	node      string
	jobName   string
	iface     string
	verbose   bool
	help      bool
	args      []string
}

func main() {
	cli, err := parseArgs(os.Args[1:], filepath.Base(os.Args[0]))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if cli.help {
		usage()
		os.Exit(0)
	}
	if cli.partition == "" || cli.node == "" || cli.jobs == 0 {
		fmt.Fprintf(os.Stderr, "Error: client did not provide all necessary arguments.\n  partition: %q\n  node: %q\n  jobs: %d\nShutting down.\n",
			cli.partition, cli.node, cli.jobs)
		os.Exit(1)
	}
	if cli.verbose {
		clog.Enable()
	}

	c, err := client.Init(client.Options{
		Partition: cli.partition,
		Node:      cli.node,
		Jobs:      cli.jobs,
		JobName:   cli.jobName,
		Interface: cli.iface,
		Args:      cli.args,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer c.Close()

	mode := "pingpong"
	if len(cli.args) > 0 {
		mode = cli.args[0]
	}

	var runErr error
	switch mode {
	case "pingpong":
		runErr = runPingPong(c)
	case "gather":
		runErr = runGather(c)
	case "mutexcounter":
		runErr = runMutexCounter(c)
	case "anysource":
		runErr = runAnySource(c)
	default:
		runErr = fmt.Errorf("unknown mode %q (want pingpong, gather, mutexcounter, or anysource)", mode)
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
		os.Exit(1)
	}
}

// parseArgs hand-rolls the client CLI grammar from spec.md §6 rather than
// using the stdlib flag package, because flag has no notion of "everything
// after --args is consumed verbatim by the user program" — the original
// client's own argument loop (heimdallr/src/lib.rs HeimdallrClient::init)
// has the same shape for the same reason.
func parseArgs(args []string, progName string) (cliArgs, error) {
	cli := cliArgs{jobName: progName}
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-p", "--partition":
			i++
			if i >= len(args) {
				return cli, fmt.Errorf("missing value for %s", args[i-1])
			}
			cli.partition = args[i]
		case "-j", "--jobs":
			i++
			if i >= len(args) {
				return cli, fmt.Errorf("missing value for %s", args[i-1])
			}
			var n int
			if _, err := fmt.Sscanf(args[i], "%d", &n); err != nil || n <= 0 {
				return cli, fmt.Errorf("invalid value for --jobs: %q", args[i])
			}
			cli.jobs = uint32(n)
		case "-n", "--node":
			i++
			if i >= len(args) {
				return cli, fmt.Errorf("missing value for %s", args[i-1])
			}
			cli.node = args[i]
		case "--job-name":
			i++
			if i >= len(args) {
				return cli, fmt.Errorf("missing value for --job-name")
			}
			cli.jobName = args[i]
		case "--interface":
			i++
			if i >= len(args) {
				return cli, fmt.Errorf("missing value for --interface")
			}
			cli.iface = args[i]
		case "-l":
			cli.verbose = true
		case "-h", "--help":
			cli.help = true
		case "--args":
			cli.args = append(cli.args, args[i+1:]...)
			return cli, nil
		}
	}
	return cli, nil
}

func usage() {
	fmt.Printf(`usage: heimdallr-demo [-h] [-l] --partition P --jobs N --node NAME [--job-name J] [--interface IF] [--args MODE ...]

Runs one of the end-to-end client façade demos named by the first --args
token: pingpong, gather, mutexcounter, or anysource.
`)
}
