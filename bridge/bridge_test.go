package bridge

import (
	"bytes"
	"path"
	"testing"

	"github.com/usbhost/printerbridge/config"
	"github.com/usbhost/printerbridge/hoststack"
	"github.com/usbhost/printerbridge/joblog"
	"github.com/usbhost/printerbridge/testpage"
)

func printerConfig(t *testing.T) *hoststack.ConfigDescriptor {
	t.Helper()
	cfg, err := hoststack.NewRawConfigBuilder(1).
		AddInterface(0, 0, 0x07, 0x01, 0x01).
		AddEndpoint(0x01, 0x02, 64).
		Config()
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.PrintOnConnect = false
	return cfg
}

func TestDeviceScanFindsPrinter(t *testing.T) {
	sim := hoststack.NewSimHost()
	sim.AddDevice("printer", printerConfig(t))
	b := NewBridge(testConfig(), sim, nil)

	b.DeviceScan()
	if b.CurrentDevice() == nil {
		t.Fatal("printer not picked up")
	}
	if sim.SubmitCalls != 0 {
		t.Fatal(sim.SubmitCalls)
	}
}

func TestDeviceScanDropsNonPrinter(t *testing.T) {
	sim := hoststack.NewSimHost()
	cfg, err := hoststack.NewRawConfigBuilder(1).
		AddInterface(0, 0, 0xff, 0x00, 0x00).
		AddEndpoint(0x01, 0x02, 512).
		Config()
	if err != nil {
		t.Fatal(err)
	}
	sim.AddDevice("storage", cfg)
	b := NewBridge(testConfig(), sim, nil)

	b.DeviceScan()
	if b.CurrentDevice() != nil {
		t.Fatal("non-printer device kept")
	}
	handles, err := sim.ListDevices()
	if err != nil {
		t.Fatal(err)
	}
	if len(handles) != 0 {
		t.Fatal("rejected device not dropped")
	}
}

func TestPrintOnConnect(t *testing.T) {
	sim := hoststack.NewSimHost()
	sim.AddDevice("printer", printerConfig(t))
	cfg := testConfig()
	cfg.PrintOnConnect = true
	b := NewBridge(cfg, sim, nil)

	b.DeviceScan()
	if sim.SubmitCalls != 1 {
		t.Fatal(sim.SubmitCalls)
	}
	if !bytes.Equal(sim.LastPayload, testpage.Data()) {
		t.Fatalf("unexpected payload %q", sim.LastPayload)
	}
}

func TestPrintRecordsJob(t *testing.T) {
	sim := hoststack.NewSimHost()
	sim.AddDevice("printer", printerConfig(t))
	jobs, err := joblog.Open(path.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		_ = jobs.Close()
	}()
	b := NewBridge(testConfig(), sim, jobs)

	b.DeviceScan()
	if err := b.Print([]byte("job data")); err != nil {
		t.Fatal(err)
	}
	entries, err := jobs.Recent(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Status != "completed" {
		t.Fatalf("%+v", entries)
	}
	if entries[0].Bytes != len("job data") {
		t.Fatal(entries[0].Bytes)
	}
}

func TestPrintWithoutPrinterRecordsFailure(t *testing.T) {
	sim := hoststack.NewSimHost()
	jobs, err := joblog.Open(path.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		_ = jobs.Close()
	}()
	b := NewBridge(testConfig(), sim, jobs)

	if err := b.Print([]byte("job data")); err == nil {
		t.Fatal("expected error with no printer attached")
	}
	entries, err := jobs.Recent(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Status != "failed" {
		t.Fatalf("%+v", entries)
	}
}

func TestDeviceScanClearsDepartedPrinter(t *testing.T) {
	sim := hoststack.NewSimHost()
	first := sim.AddDevice("printer", printerConfig(t))
	b := NewBridge(testConfig(), sim, nil)

	b.DeviceScan()
	if b.CurrentDevice() == nil {
		t.Fatal("printer not picked up")
	}
	sim.DropDevice(first)
	b.DeviceScan()
	if b.CurrentDevice() != nil {
		t.Fatal("departed printer still held")
	}
}

func TestDeviceScanAdoptsReplacementAfterDeparture(t *testing.T) {
	sim := hoststack.NewSimHost()
	first := sim.AddDevice("printer", printerConfig(t))
	b := NewBridge(testConfig(), sim, nil)

	b.DeviceScan()
	if b.CurrentDevice() == nil {
		t.Fatal("printer not picked up")
	}
	sim.DropDevice(first)
	sim.AddDevice("replacement printer", printerConfig(t))
	b.DeviceScan()
	dev := b.CurrentDevice()
	if dev == nil {
		t.Fatal("replacement printer not adopted")
	}
	if err := b.Print([]byte("job data")); err != nil {
		t.Fatal(err)
	}
}

func TestDeviceScanKeepsAttachedPrinter(t *testing.T) {
	sim := hoststack.NewSimHost()
	sim.AddDevice("printer", printerConfig(t))
	b := NewBridge(testConfig(), sim, nil)

	b.DeviceScan()
	held := b.CurrentDevice()
	if held == nil {
		t.Fatal("printer not picked up")
	}
	b.DeviceScan()
	if b.CurrentDevice() != held {
		t.Fatal("held printer replaced by rescan")
	}
}

func TestForget(t *testing.T) {
	sim := hoststack.NewSimHost()
	sim.AddDevice("printer", printerConfig(t))
	b := NewBridge(testConfig(), sim, nil)

	b.DeviceScan()
	if b.CurrentDevice() == nil {
		t.Fatal("printer not picked up")
	}
	b.Forget()
	if b.CurrentDevice() != nil {
		t.Fatal("printer still held after Forget")
	}
	handles, err := sim.ListDevices()
	if err != nil {
		t.Fatal(err)
	}
	if len(handles) != 0 {
		t.Fatal("device not dropped")
	}
}

func TestStartStop(t *testing.T) {
	sim := hoststack.NewSimHost()
	sim.AddDevice("printer", printerConfig(t))
	b := NewBridge(testConfig(), sim, nil)

	b.Start()
	if b.CurrentDevice() == nil {
		t.Fatal("printer not picked up at start")
	}
	b.Stop()
	b.Start()
	b.Stop()
}
