// Package main is the entry point for the boatrelay server.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/compendiumnav/boatrelay/internal/buildinfo"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if flag.NArg() > 0 {
		switch flag.Arg(0) {
		case "serve":
			runServe(*configPath)
		case "pair":
			runPair(*configPath)
		case "version":
			fmt.Println(buildinfo.String())
			for k, v := range buildinfo.BuildInfo() {
				fmt.Printf("  %-12s %s\n", k+":", v)
			}
		default:
			fmt.Fprintf(os.Stderr, "unknown command: %s\n", flag.Arg(0))
			os.Exit(1)
		}
		return
	}

	fmt.Println("boatrelay - boat-side telemetry relay")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve    Start the relay (SignalK ingest, direct/upstream servers, dashboard)")
	fmt.Println("  pair     Print the local DirectServer URL and a QR code for on-boat clients")
	fmt.Println("  version  Show version")
	fmt.Println()
	fmt.Println("Flags:")
	flag.PrintDefaults()
}
