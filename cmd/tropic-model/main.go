// tropic-model serves a software TROPIC01 over the TCP model protocol, so
// tropicctl and the driver can run without hardware.
//
// Usage:
//
//	tropic-model [--listen ADDR] [--pair SLOT=HEX]... [--mdns] [--metrics ADDR]
//
// Example:
//
//	tropicctl keygen
//	tropic-model --pair 0=<public key> --mdns --metrics :9100
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "tropic-model: %v\n", err)
		os.Exit(1)
	}
}
