// Package bridge ties the pieces together: it sweeps the host for printer
// devices, hands candidates to the scanner, and forwards print jobs to the
// coordinator.
package bridge

import (
	"io/ioutil"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"github.com/usbhost/printerbridge/config"
	"github.com/usbhost/printerbridge/hoststack"
	"github.com/usbhost/printerbridge/joblog"
	"github.com/usbhost/printerbridge/printer"
	"github.com/usbhost/printerbridge/testpage"
	"github.com/usbhost/printerbridge/utils"
)

// HostStack is the full collaborator surface the bridge needs.
type HostStack interface {
	hoststack.Host
	hoststack.Enumerator
}

type Bridge struct {
	Config *config.Config

	host        HostStack
	scanner     *printer.Scanner
	coordinator *printer.Coordinator
	jobs        *joblog.Log

	deviceMtx     sync.Mutex
	current       *printer.Device
	currentHandle hoststack.DeviceHandle

	payloadMtx sync.Mutex
	payload    []byte
	watcher    *fsnotify.Watcher

	mtx     sync.Mutex
	started bool
	quit    chan struct{}
	wg      sync.WaitGroup
}

// NewBridge wires a bridge to a host stack. jobs may be nil to disable the
// job history.
func NewBridge(cfg *config.Config, host HostStack, jobs *joblog.Log) *Bridge {
	return &Bridge{
		Config:      cfg,
		host:        host,
		scanner:     printer.NewScanner(host),
		coordinator: printer.NewCoordinator(host, cfg.TransferTimeout()),
		jobs:        jobs,
		quit:        make(chan struct{}),
	}
}

func (b *Bridge) Start() {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	if b.started {
		return
	}
	b.started = true
	b.loadPayload()
	b.watchPayload()
	b.DeviceScan()
	b.wg.Add(1)
	go b.loop()
}

func (b *Bridge) Stop() {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	if !b.started {
		return
	}
	close(b.quit)
	b.wg.Wait()
	b.started = false
	if b.watcher != nil {
		_ = b.watcher.Close()
		b.watcher = nil
	}
	b.quit = make(chan struct{})
}

func (b *Bridge) loop() {
	rescanTicker := time.NewTicker(b.Config.RescanInterval())
	for {
		select {
		case <-b.quit:
			rescanTicker.Stop()
			b.wg.Done()
			return
		case <-rescanTicker.C:
			b.DeviceScan()
		}
	}
}

// DeviceScan sweeps the attached devices. A held printer missing from the
// sweep is forgotten so a replacement can be adopted; otherwise the first
// usable printer found is kept and non-printer candidates are returned to
// the host.
func (b *Bridge) DeviceScan() {
	handles, err := b.host.ListDevices()
	if err != nil {
		log.WithError(err).Error("Error enumerating devices")
		return
	}
	if b.verifyCurrent(handles) {
		return
	}
	client := b.host.Client()
	for _, handle := range handles {
		dev, found, err := b.scanner.Scan(handle, client)
		if err != nil {
			log.WithError(err).Warn("Skipping device")
			b.host.DropDevice(handle)
			continue
		}
		if dev.Usable() {
			b.setCurrent(dev, handle)
			log.WithField("printer", dev).Info("Printer attached")
			if b.Config.PrintOnConnect {
				if err := b.PrintTestPage(); err != nil {
					log.WithError(err).Error("Print on connect failed")
				}
			}
			return
		}
		if !found {
			b.host.DropDevice(handle)
		}
	}
}

// verifyCurrent reports whether the held printer is still attached. The
// host already released a departed device's resources, so only the bridge's
// own record is cleared.
func (b *Bridge) verifyCurrent(handles []hoststack.DeviceHandle) bool {
	b.deviceMtx.Lock()
	handle := b.currentHandle
	b.deviceMtx.Unlock()
	if handle == nil {
		return false
	}
	for _, h := range handles {
		if h == handle {
			return true
		}
	}
	log.Warn("Printer departed")
	b.deviceMtx.Lock()
	if b.currentHandle == handle {
		b.current = nil
		b.currentHandle = nil
	}
	b.deviceMtx.Unlock()
	return false
}

func (b *Bridge) setCurrent(dev *printer.Device, handle hoststack.DeviceHandle) {
	b.deviceMtx.Lock()
	b.current = dev
	b.currentHandle = handle
	b.deviceMtx.Unlock()
}

func (b *Bridge) CurrentDevice() *printer.Device {
	b.deviceMtx.Lock()
	defer b.deviceMtx.Unlock()
	return b.current
}

// Forget drops the current printer, e.g. after it reported disconnection.
func (b *Bridge) Forget() {
	b.deviceMtx.Lock()
	handle := b.currentHandle
	b.current = nil
	b.currentHandle = nil
	b.deviceMtx.Unlock()
	if handle != nil {
		b.host.DropDevice(handle)
	}
}

// Print sends a payload to the current printer and records the outcome.
func (b *Bridge) Print(payload []byte) error {
	err := b.coordinator.SendJob(b.CurrentDevice(), payload)
	b.recordJob(len(payload), err)
	return err
}

// PrintTestPage prints the configured payload file, or the built-in test
// page if none is configured.
func (b *Bridge) PrintTestPage() error {
	return b.Print(b.currentPayload())
}

func (b *Bridge) recordJob(size int, err error) {
	if b.jobs == nil {
		return
	}
	entry := joblog.Entry{Time: time.Now().UTC(), Bytes: size, Status: "completed"}
	if err != nil {
		entry.Status = "failed"
		entry.Err = err.Error()
	}
	if recordErr := b.jobs.Record(entry); recordErr != nil {
		log.WithError(recordErr).Error("Error recording job")
	}
}

func (b *Bridge) currentPayload() []byte {
	b.payloadMtx.Lock()
	defer b.payloadMtx.Unlock()
	if len(b.payload) == 0 {
		return testpage.Data()
	}
	return append([]byte(nil), b.payload...)
}

func (b *Bridge) loadPayload() {
	if b.Config.PayloadPath == "" {
		return
	}
	data, err := ioutil.ReadFile(b.Config.PayloadPath)
	if err != nil {
		log.WithError(err).Error("Error loading payload file, using built-in test page")
		return
	}
	b.payloadMtx.Lock()
	b.payload = data
	b.payloadMtx.Unlock()
	log.WithFields(log.Fields{
		"path": b.Config.PayloadPath,
		"size": len(data),
	}).Info("Loaded payload file")
}

func (b *Bridge) watchPayload() {
	if b.Config.PayloadPath == "" || b.watcher != nil {
		return
	}
	watcher, err := utils.NewFileWatcher(b.Config.PayloadPath, b.loadPayload)
	if err != nil {
		log.WithError(err).Error("Error watching payload file")
		return
	}
	b.watcher = watcher
}
