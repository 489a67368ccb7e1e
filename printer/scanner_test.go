package printer

import (
	"errors"
	"testing"

	"github.com/usbhost/printerbridge/hoststack"
)

const (
	attrBulk      = 0x02
	attrInterrupt = 0x03
)

func simWithConfig(t *testing.T, cfg *hoststack.ConfigDescriptor) (*hoststack.SimHost, *hoststack.SimDevice) {
	t.Helper()
	sim := hoststack.NewSimHost()
	dev := sim.AddDevice("printer", cfg)
	return sim, dev
}

func scanOK(t *testing.T, sim *hoststack.SimHost, simDev *hoststack.SimDevice) (*Device, bool) {
	t.Helper()
	dev, found, err := NewScanner(sim).Scan(simDev, sim.Client())
	if err != nil {
		t.Fatal(err)
	}
	return dev, found
}

func printerConfig(t *testing.T) *hoststack.ConfigDescriptor {
	t.Helper()
	cfg, err := hoststack.NewRawConfigBuilder(1).
		AddInterface(0, 0, ClassPrinter, 0x01, ProtocolBidirectional).
		AddEndpoint(0x01, attrBulk, 64).
		AddEndpoint(0x82, attrBulk, 64).
		Config()
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestScanFindsPrinter(t *testing.T) {
	sim, simDev := simWithConfig(t, printerConfig(t))
	dev, found := scanOK(t, sim, simDev)
	if !found {
		t.Fatal("printer interface not detected")
	}
	if !dev.Usable() {
		t.Fatal("expected usable device")
	}
	if out, ok := dev.BulkOut(); !ok || out != 0x01 {
		t.Fatal(out, ok)
	}
	if in, ok := dev.BulkIn(); !ok || in != 0x82 {
		t.Fatal(in, ok)
	}
	if !dev.Bidirectional() {
		t.Fatal("expected bidirectional protocol")
	}
	if dev.InterfaceNumber() != 0 {
		t.Fatal(dev.InterfaceNumber())
	}
}

func TestScanUnidirectionalPrinterHasNoBulkIn(t *testing.T) {
	cfg, err := hoststack.NewRawConfigBuilder(1).
		AddInterface(0, 0, ClassPrinter, 0x01, ProtocolUnidirectional).
		AddEndpoint(0x01, attrBulk, 64).
		Config()
	if err != nil {
		t.Fatal(err)
	}
	sim, simDev := simWithConfig(t, cfg)
	dev, found := scanOK(t, sim, simDev)
	if !found || !dev.Usable() {
		t.Fatal(found, dev)
	}
	if _, ok := dev.BulkIn(); ok {
		t.Fatal("unexpected bulk IN endpoint")
	}
	if dev.Bidirectional() {
		t.Fatal("unexpected bidirectional protocol")
	}
}

func TestScanNoPrinterInterface(t *testing.T) {
	cfg, err := hoststack.NewRawConfigBuilder(1).
		AddInterface(0, 0, 0xff, 0x00, 0x00).
		AddEndpoint(0x01, attrBulk, 512).
		Config()
	if err != nil {
		t.Fatal(err)
	}
	sim, simDev := simWithConfig(t, cfg)
	dev, found := scanOK(t, sim, simDev)
	if found {
		t.Fatal("vendor interface classified as printer")
	}
	if dev != nil {
		t.Fatalf("unexpected device %v", dev)
	}
}

func TestScanPrinterWithoutBulkEndpoints(t *testing.T) {
	cfg, err := hoststack.NewRawConfigBuilder(1).
		AddInterface(0, 0, ClassPrinter, 0x01, ProtocolUnidirectional).
		AddEndpoint(0x83, attrInterrupt, 8).
		Config()
	if err != nil {
		t.Fatal(err)
	}
	sim, simDev := simWithConfig(t, cfg)
	dev, found := scanOK(t, sim, simDev)
	if !found {
		t.Fatal("printer class match not reported")
	}
	if dev != nil {
		t.Fatalf("unusable interface saved: %v", dev)
	}
}

func TestScanBulkInOnlyIsNotUsable(t *testing.T) {
	cfg, err := hoststack.NewRawConfigBuilder(1).
		AddInterface(0, 0, ClassPrinter, 0x01, ProtocolBidirectional).
		AddEndpoint(0x82, attrBulk, 64).
		Config()
	if err != nil {
		t.Fatal(err)
	}
	sim, simDev := simWithConfig(t, cfg)
	dev, found := scanOK(t, sim, simDev)
	if !found {
		t.Fatal("printer class match not reported")
	}
	if dev.Usable() {
		t.Fatal("device without bulk OUT reported usable")
	}
}

func TestScanNilHandles(t *testing.T) {
	sim, simDev := simWithConfig(t, printerConfig(t))
	dev, found, err := NewScanner(sim).Scan(nil, sim.Client())
	if found || dev != nil || !errors.Is(err, ErrNotReady) {
		t.Fatal(dev, found, err)
	}
	dev, found, err = NewScanner(sim).Scan(simDev, nil)
	if found || dev != nil || !errors.Is(err, ErrNotReady) {
		t.Fatal(dev, found, err)
	}
}

func TestScanDescriptorUnavailable(t *testing.T) {
	sim := hoststack.NewSimHost()
	simDev := sim.AddDevice("broken", nil)
	dev, found, err := NewScanner(sim).Scan(simDev, sim.Client())
	if found || dev != nil {
		t.Fatal(dev, found)
	}
	if !errors.Is(err, ErrDescriptorUnavailable) {
		t.Fatal(err)
	}
}

func TestScanFirstUsableInterfaceWins(t *testing.T) {
	cfg, err := hoststack.NewRawConfigBuilder(1).
		AddInterface(0, 0, ClassPrinter, 0x01, ProtocolUnidirectional).
		AddEndpoint(0x01, attrBulk, 64).
		AddInterface(1, 0, ClassPrinter, 0x01, ProtocolUnidirectional).
		AddEndpoint(0x03, attrBulk, 64).
		Config()
	if err != nil {
		t.Fatal(err)
	}
	sim, simDev := simWithConfig(t, cfg)
	dev, found := scanOK(t, sim, simDev)
	if !found || !dev.Usable() {
		t.Fatal(found, dev)
	}
	if dev.InterfaceNumber() != 0 {
		t.Fatal(dev.InterfaceNumber())
	}
	if out, _ := dev.BulkOut(); out != 0x01 {
		t.Fatal(out)
	}
}

func TestScanSkipsUnusableThenSavesLater(t *testing.T) {
	cfg, err := hoststack.NewRawConfigBuilder(1).
		AddInterface(0, 0, ClassPrinter, 0x01, ProtocolUnidirectional).
		AddInterface(1, 0, ClassPrinter, 0x01, ProtocolUnidirectional).
		AddEndpoint(0x03, attrBulk, 64).
		Config()
	if err != nil {
		t.Fatal(err)
	}
	sim, simDev := simWithConfig(t, cfg)
	dev, found := scanOK(t, sim, simDev)
	if !found || !dev.Usable() {
		t.Fatal(found, dev)
	}
	if dev.InterfaceNumber() != 1 {
		t.Fatal(dev.InterfaceNumber())
	}
}

func TestScanDuplicateBulkOutLastWins(t *testing.T) {
	cfg, err := hoststack.NewRawConfigBuilder(1).
		AddInterface(0, 0, ClassPrinter, 0x01, ProtocolUnidirectional).
		AddEndpoint(0x01, attrBulk, 64).
		AddEndpoint(0x03, attrBulk, 64).
		Config()
	if err != nil {
		t.Fatal(err)
	}
	sim, simDev := simWithConfig(t, cfg)
	dev, found := scanOK(t, sim, simDev)
	if !found || !dev.Usable() {
		t.Fatal(found, dev)
	}
	if out, _ := dev.BulkOut(); out != 0x03 {
		t.Fatal(out)
	}
}

func TestScanIgnoresNonBulkEndpoints(t *testing.T) {
	cfg, err := hoststack.NewRawConfigBuilder(1).
		AddInterface(0, 0, ClassPrinter, 0x01, ProtocolBidirectional).
		AddEndpoint(0x83, attrInterrupt, 8).
		AddEndpoint(0x01, attrBulk, 64).
		Config()
	if err != nil {
		t.Fatal(err)
	}
	sim, simDev := simWithConfig(t, cfg)
	dev, found := scanOK(t, sim, simDev)
	if !found || !dev.Usable() {
		t.Fatal(found, dev)
	}
	if _, ok := dev.BulkIn(); ok {
		t.Fatal("interrupt endpoint recorded as bulk IN")
	}
}
