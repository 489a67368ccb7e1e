// Package printer implements a USB printer-class driver on top of the
// hoststack contract: interface discovery from configuration descriptors
// and bulk-OUT print jobs with asynchronous completion.
package printer

import (
	"fmt"

	"github.com/usbhost/printerbridge/hoststack"
)

// USB printer class constants, from usbprint11a021811.pdf.
const (
	ClassPrinter = 0x07

	ProtocolUnidirectional = 0x01
	ProtocolBidirectional  = 0x02
	ProtocolIEEE1284       = 0x03
)

func protocolName(protocol uint8) string {
	switch protocol {
	case ProtocolUnidirectional:
		return "unidirectional"
	case ProtocolBidirectional:
		return "bidirectional"
	case ProtocolIEEE1284:
		return "IEEE 1284.4"
	default:
		return "unknown"
	}
}

// Device is a discovered printer interface: the device and client handles,
// the interface to claim, and its bulk endpoints. Produced by Scanner.Scan
// and read-only afterwards.
type Device struct {
	dev             hoststack.DeviceHandle
	client          hoststack.ClientHandle
	interfaceNumber uint8
	protocol        uint8

	bulkOut    hoststack.EndpointAddress
	hasBulkOut bool
	bulkIn     hoststack.EndpointAddress
	hasBulkIn  bool

	// Binary completion signal, given exactly once per submitted transfer.
	done chan struct{}
}

// Usable reports whether the device can accept print jobs: a bulk-OUT
// endpoint is required.
func (d *Device) Usable() bool {
	return d != nil && d.hasBulkOut
}

func (d *Device) InterfaceNumber() uint8 {
	return d.interfaceNumber
}

// Protocol returns the raw bInterfaceProtocol value. Bidirectional
// protocols are recorded but status reads are not implemented.
func (d *Device) Protocol() uint8 {
	return d.protocol
}

func (d *Device) Bidirectional() bool {
	return d.protocol == ProtocolBidirectional || d.protocol == ProtocolIEEE1284
}

func (d *Device) BulkOut() (hoststack.EndpointAddress, bool) {
	return d.bulkOut, d.hasBulkOut
}

func (d *Device) BulkIn() (hoststack.EndpointAddress, bool) {
	return d.bulkIn, d.hasBulkIn
}

func (d *Device) String() string {
	if d == nil {
		return "<no printer>"
	}
	return fmt.Sprintf("printer interface %d, bulk OUT %s", d.interfaceNumber, d.bulkOut)
}

// signalDone gives the completion signal. A token already pending is left
// in place, matching binary semaphore semantics.
func (d *Device) signalDone() {
	select {
	case d.done <- struct{}{}:
	default:
	}
}

// drainDone consumes a stale token left by a transfer that completed after
// its job had already timed out.
func (d *Device) drainDone() {
	select {
	case <-d.done:
	default:
	}
}
