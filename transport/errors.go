package transport

import "fmt"

var errNoSessionBusAddress = fmt.Errorf("transport: %s is not set", sessionBusAddressEnv)

func errUnsupportedTransport(addr string) error {
	return fmt.Errorf("transport: unsupported bus address %q (only unix: is implemented)", addr)
}

func errMalformedAddress(addr string) error {
	return fmt.Errorf("transport: address %q has neither path= nor abstract=", addr)
}
