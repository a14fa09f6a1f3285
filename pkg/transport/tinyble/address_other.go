//go:build !linux

package tinyble

import (
	"fmt"

	"github.com/fako1024/de1ble/pkg/transport"
	"tinygo.org/x/bluetooth"
)

// Peripherals are identified by an opaque platform ID, it can only be resolved
// from a prior advertisement
func parseAddress(address string) (bluetooth.Address, error) {
	return bluetooth.Address{}, fmt.Errorf("peripheral `%s` not seen during discovery: %w", address, transport.ErrUnsupportedDiscovery)
}
