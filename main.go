package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/GlowingScrewdriver/go-sntp/cmd"
	"github.com/GlowingScrewdriver/go-sntp/internal/brand"
	"github.com/GlowingScrewdriver/go-sntp/internal/i18n"
)

var printer = i18n.NewCLIPrinter()

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "query":
		queryFlags := flag.NewFlagSet("query", flag.ExitOnError)
		configFile := queryFlags.String("config", "", "Configuration file for client defaults")
		queryFlags.StringVar(configFile, "c", "", "Configuration file (short)")
		timeout := queryFlags.Duration("timeout", 0, "Per-attempt timeout (default from config, 5s)")
		retries := queryFlags.Int("retries", 0, "Retries after transport failures")
		retryDelay := queryFlags.Duration("retry-delay", time.Second, "Delay between retries")
		setClock := queryFlags.Bool("set", false, "Step the system clock to the corrected time")
		verbose := queryFlags.Bool("verbose", false, "Print request and response fields")
		queryFlags.BoolVar(verbose, "v", false, "Verbose output (short)")
		debug := queryFlags.Bool("debug", false, "Debug logging")
		ipv4 := queryFlags.Bool("4", false, "Use IPv4 only")
		ipv6 := queryFlags.Bool("6", false, "Use IPv6 only")
		queryFlags.Parse(os.Args[2:])

		opts, cleanup, err := cmd.QueryDefaults(*configFile, *debug)
		if err != nil {
			printer.Fprintf(os.Stderr, "Query failed: %v\n", err)
			os.Exit(1)
		}

		// flags given on the command line win over the config file
		queryFlags.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "timeout":
				opts.Timeout = *timeout
			case "retries":
				opts.Retries = *retries
			case "set":
				opts.SetClock = *setClock
			}
		})
		if queryFlags.NArg() > 0 {
			opts.Server = queryFlags.Arg(0)
		}
		opts.RetryDelay = *retryDelay
		opts.Verbose = *verbose
		switch {
		case *ipv4:
			opts.Network = "udp4"
		case *ipv6:
			opts.Network = "udp6"
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		_, err = cmd.RunQuery(ctx, opts)
		stop()
		cleanup()
		if err != nil {
			printer.Fprintf(os.Stderr, "Query failed: %v\n", err)
			os.Exit(1)
		}

	case "serve":
		serveFlags := flag.NewFlagSet("serve", flag.ExitOnError)
		configFile := serveFlags.String("config", "", "Configuration file")
		serveFlags.StringVar(configFile, "c", "", "Configuration file (short)")
		serveFlags.Parse(os.Args[2:])

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		err := cmd.RunServe(ctx, *configFile)
		stop()
		if err != nil {
			printer.Fprintf(os.Stderr, "Serve failed: %v\n", err)
			os.Exit(1)
		}

	case "check":
		checkFlags := flag.NewFlagSet("check", flag.ExitOnError)
		verbose := checkFlags.Bool("verbose", false, "Print the effective configuration")
		checkFlags.BoolVar(verbose, "v", false, "Verbose output (short)")
		checkFlags.Parse(os.Args[2:])

		configFile := brand.DefaultConfigPath()
		if len(checkFlags.Args()) > 0 {
			configFile = checkFlags.Arg(0)
		}

		if err := cmd.RunCheck(configFile, *verbose); err != nil {
			printer.Fprintf(os.Stderr, "Check failed: %v\n", err)
			os.Exit(1)
		}

	case "decode":
		if len(os.Args) < 3 {
			printer.Println("Usage: " + brand.BinaryName + " decode <hex>")
			os.Exit(1)
		}
		if err := cmd.RunDecode(strings.Join(os.Args[2:], " ")); err != nil {
			printer.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}

	case "version", "--version", "-V":
		printer.Println(brand.VersionString())

	case "help", "--help", "-h":
		printUsage()

	default:
		printer.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	printer.Printf(`%s - %s

Usage:
  %s <command> [options]

Commands:
  query     Query an SNTP server and print offset and delay
            Options: --timeout <d>, --retries <n>, --retry-delay <d>, --set,
                     --verbose (-v), --debug, -4, -6, --config (-c) <file>
  serve     Run the SNTP server until interrupted (SIGHUP reloads)
            Options: --config (-c) <file>
  check     Validate configuration file
            Options: --verbose (-v)
  decode    Decode a 48-byte message given as hex
  version   Print version information

Examples:
  %s query pool.ntp.org              # One exchange, print the result
  %s query -v -retries 2 192.0.2.1   # Show both messages, retry on timeout
  %s query -set time.example.com     # Step the local clock (root)
  %s serve -c %s
  %s check -v %s
  %s decode e30000000000000000...

`, brand.Name, brand.Description,
		brand.BinaryName,
		brand.BinaryName, brand.BinaryName, brand.BinaryName,
		brand.BinaryName, brand.DefaultConfigPath(),
		brand.BinaryName, brand.DefaultConfigPath(),
		brand.BinaryName)
}
