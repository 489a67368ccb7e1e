package printer

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/usbhost/printerbridge/hoststack"
)

// Scanner classifies a device's interfaces and records the bulk endpoints
// of the first usable printer interface.
type Scanner struct {
	host hoststack.Host
}

func NewScanner(host hoststack.Host) *Scanner {
	return &Scanner{host: host}
}

// Scan walks the device's active configuration looking for printer-class
// interfaces. The boolean is true if at least one printer-class interface
// was seen; the device is non-nil only if a usable one (bulk-OUT present)
// was found. The first usable interface wins; further matches are logged
// and skipped. Missing handles yield ErrNotReady; a device whose active
// configuration cannot be read yields ErrDescriptorUnavailable.
func (s *Scanner) Scan(dev hoststack.DeviceHandle, client hoststack.ClientHandle) (*Device, bool, error) {
	if dev == nil {
		log.Error("Scan called without a device handle")
		return nil, false, ErrNotReady
	}
	if client == nil {
		log.Error("Scan called without a client handle")
		return nil, false, ErrNotReady
	}

	log.Info("Checking device for printer interfaces")

	cfg, err := s.host.ActiveConfigDescriptor(dev)
	if err != nil {
		log.WithError(err).Error("Failed to get config descriptor")
		return nil, false, fmt.Errorf("%w: %v", ErrDescriptorUnavailable, err)
	}

	var saved *Device
	isPrinter := false
	offset := 0
	for i := 0; i < int(cfg.NumInterfaces); i++ {
		intf := hoststack.ParseInterfaceDescriptor(cfg, i, 0, &offset)
		if intf == nil {
			log.WithField("interface", i).Warn("Failed to parse interface descriptor")
			continue
		}
		log.WithFields(log.Fields{
			"interface": i,
			"class":     intf.Class,
			"subclass":  intf.SubClass,
			"protocol":  intf.Protocol,
		}).Debug("Parsed interface descriptor")

		if intf.Class != ClassPrinter {
			continue
		}
		isPrinter = true
		log.WithFields(log.Fields{
			"interface": i,
			"protocol":  protocolName(intf.Protocol),
		}).Info("Found printer interface")
		if saved != nil {
			log.WithField("interface", i).Warn("Additional printer interface ignored, already using an earlier one")
			continue
		}
		saved = s.saveEndpointDetails(dev, client, intf, cfg, offset)
	}

	if saved != nil {
		log.WithFields(log.Fields{
			"interface": saved.interfaceNumber,
			"bulk_out":  saved.bulkOut,
		}).Info("Printer saved and ready for use")
	}
	return saved, isPrinter, nil
}

// saveEndpointDetails parses the interface's endpoint descriptors and
// builds the printer record. Returns nil if no bulk-OUT endpoint exists;
// with duplicate bulk endpoints of one direction, the last one wins.
func (s *Scanner) saveEndpointDetails(dev hoststack.DeviceHandle, client hoststack.ClientHandle,
	intf *hoststack.InterfaceDescriptor, cfg *hoststack.ConfigDescriptor, intfOffset int) *Device {
	device := &Device{
		dev:             dev,
		client:          client,
		interfaceNumber: intf.InterfaceNumber,
		protocol:        intf.Protocol,
	}

	epOffset := intfOffset
	for ep := 0; ep < int(intf.NumEndpoints); ep++ {
		epDesc := hoststack.ParseNextEndpointDescriptor(cfg, &epOffset)
		if epDesc == nil {
			log.WithField("endpoint", ep).Warn("Failed to parse endpoint descriptor")
			continue
		}
		if !epDesc.IsBulk() {
			continue
		}
		if epDesc.Address.In() {
			device.bulkIn = epDesc.Address
			device.hasBulkIn = true
			log.WithField("address", epDesc.Address).Info("Found bulk IN endpoint")
		} else {
			device.bulkOut = epDesc.Address
			device.hasBulkOut = true
			log.WithField("address", epDesc.Address).Info("Found bulk OUT endpoint")
		}
	}

	if !device.hasBulkOut {
		log.WithField("interface", intf.InterfaceNumber).Error("No bulk OUT endpoint found for printer interface")
		return nil
	}

	device.done = make(chan struct{}, 1)
	return device
}
