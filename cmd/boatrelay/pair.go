package main

import (
	"fmt"
	"net"
	"os"

	"github.com/skip2/go-qrcode"

	"github.com/compendiumnav/boatrelay/internal/config"
)

// runPair prints the DirectServer's local WebSocket URL and a
// terminal-rendered QR code encoding it, so an on-boat client (tablet,
// phone) can connect without typing an address.
func runPair(configPath string) {
	cfgPath, err := config.FindConfig(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	addr := localIPv4()
	url := fmt.Sprintf("ws://%s:%d", addr, cfg.Direct.Port)

	fmt.Println("Scan to connect a local client to this boat:")
	fmt.Println()
	fmt.Println(url)
	fmt.Println()

	qr, err := qrcode.New(url, qrcode.Medium)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to render QR code:", err)
		os.Exit(1)
	}
	fmt.Println(qr.ToString(false))
}

// localIPv4 returns the first non-loopback IPv4 address found on any
// interface, or "localhost" if none is available (e.g. offline dev box).
func localIPv4() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "localhost"
	}
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return "localhost"
}
