// tropicctl talks to a TROPIC01 secure element over a USB SPI dongle or a
// chip model server.
//
// Usage:
//
//	tropicctl [--transport usb|tcp|mdns] [--device PATH] [--address HOST:PORT] <command>
//
// Commands:
//
//	info              print chip ID, firmware versions and STPUB
//	ping MESSAGE      echo a message through a secure session
//	random N          read N random bytes
//	pairing-key read  read the pairing key of a slot
//	keygen            generate a host pairing key pair
//
// Every flag may also be set in $HOME/.tropicctl.yaml or as a TROPIC_
// environment variable, e.g. TROPIC_HOST_PRIVATE.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "tropicctl: %v\n", err)
		os.Exit(1)
	}
}
