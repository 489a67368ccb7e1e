package hoststack

import (
	"fmt"
	"sync"

	"github.com/google/gousb"
	log "github.com/sirupsen/logrus"
)

// GousbHost implements Host and Enumerator on top of gousb. Device handles
// are *gousb.Device values owned by the host. Transfer submission runs the
// bulk write on a host goroutine and delivers completion through the
// transfer callback, so callers see the same submit/callback split as with
// an asynchronous host stack.
type GousbHost struct {
	ctx    *gousb.Context
	client *gousbClient

	mtx    sync.Mutex
	open   map[string]*gousb.Device
	claims map[claimKey]*gousbClaim
}

type gousbClient struct {
	host *GousbHost
}

type claimKey struct {
	dev             *gousb.Device
	interfaceNumber uint8
}

type gousbClaim struct {
	cfg  *gousb.Config
	intf *gousb.Interface
}

func NewGousbHost() *GousbHost {
	g := &GousbHost{
		ctx:    gousb.NewContext(),
		open:   map[string]*gousb.Device{},
		claims: map[claimKey]*gousbClaim{},
	}
	g.client = &gousbClient{host: g}
	return g
}

func (g *GousbHost) Client() ClientHandle {
	return g.client
}

// ListDevices opens attached devices that carry at least one printer-class
// interface and returns their handles. Devices already open from a previous
// sweep are returned again, not reopened; open devices no longer seen by
// the enumeration have departed and are closed and dropped.
func (g *GousbHost) ListDevices() ([]DeviceHandle, error) {
	var seenMtx sync.Mutex
	seen := map[string]bool{}
	devs, err := g.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		seenMtx.Lock()
		seen[deviceKey(desc)] = true
		seenMtx.Unlock()
		if g.known(desc) {
			return false
		}
		return hasPrinterClassInterface(desc)
	})
	if err != nil {
		if len(devs) == 0 {
			return nil, err
		}
		log.WithError(err).Warn("Error enumerating some devices")
	}
	g.mtx.Lock()
	for _, dev := range devs {
		g.open[deviceKey(dev.Desc)] = dev
	}
	var departed []*gousb.Device
	for key, dev := range g.open {
		if seen[key] {
			continue
		}
		for key, claim := range g.claims {
			if key.dev == dev {
				claim.close()
				delete(g.claims, key)
			}
		}
		delete(g.open, key)
		departed = append(departed, dev)
	}
	handles := make([]DeviceHandle, 0, len(g.open))
	for _, dev := range g.open {
		handles = append(handles, dev)
	}
	g.mtx.Unlock()
	for _, dev := range departed {
		log.WithField("device", deviceKey(dev.Desc)).Info("Device departed")
		if err := dev.Close(); err != nil {
			log.WithError(err).Debug("Error closing departed device")
		}
	}
	return handles, nil
}

func (g *GousbHost) known(desc *gousb.DeviceDesc) bool {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	_, found := g.open[deviceKey(desc)]
	return found
}

func deviceKey(desc *gousb.DeviceDesc) string {
	return fmt.Sprintf("%d:%d", desc.Bus, desc.Address)
}

func hasPrinterClassInterface(desc *gousb.DeviceDesc) bool {
	for _, cfg := range desc.Configs {
		for _, intf := range cfg.Interfaces {
			for _, alt := range intf.AltSettings {
				if alt.Class == gousb.ClassPrinter {
					return true
				}
			}
		}
	}
	return false
}

// DropDevice closes a departed or rejected device and forgets its claims.
func (g *GousbHost) DropDevice(dev DeviceHandle) {
	device, ok := dev.(*gousb.Device)
	if !ok {
		return
	}
	g.mtx.Lock()
	for key, claim := range g.claims {
		if key.dev == device {
			claim.close()
			delete(g.claims, key)
		}
	}
	delete(g.open, deviceKey(device.Desc))
	g.mtx.Unlock()
	if err := device.Close(); err != nil {
		log.WithError(err).Warn("Error closing device")
	}
}

// ActiveConfigDescriptor rebuilds the raw active configuration from gousb's
// structured descriptor data.
func (g *GousbHost) ActiveConfigDescriptor(dev DeviceHandle) (*ConfigDescriptor, error) {
	device, ok := dev.(*gousb.Device)
	if !ok {
		return nil, fmt.Errorf("not a gousb device handle: %T", dev)
	}
	cfgNum, err := device.ActiveConfigNum()
	if err != nil {
		return nil, err
	}
	cfgDesc, found := device.Desc.Configs[cfgNum]
	if !found {
		return nil, fmt.Errorf("no descriptor for active configuration %d", cfgNum)
	}
	builder := NewRawConfigBuilder(uint8(cfgDesc.Number))
	for _, intf := range cfgDesc.Interfaces {
		for _, alt := range intf.AltSettings {
			builder.AddInterface(uint8(alt.Number), uint8(alt.Alternate),
				uint8(alt.Class), uint8(alt.SubClass), uint8(alt.Protocol))
			for _, ep := range alt.Endpoints {
				builder.AddEndpoint(EndpointAddress(ep.Address), uint8(ep.TransferType),
					uint16(ep.MaxPacketSize))
			}
		}
	}
	return builder.Config()
}

func (g *GousbHost) ClaimInterface(client ClientHandle, dev DeviceHandle, interfaceNumber, altSetting uint8) error {
	if client != g.client {
		return fmt.Errorf("unknown client handle")
	}
	device, ok := dev.(*gousb.Device)
	if !ok {
		return fmt.Errorf("not a gousb device handle: %T", dev)
	}
	g.mtx.Lock()
	defer g.mtx.Unlock()
	key := claimKey{dev: device, interfaceNumber: interfaceNumber}
	if _, claimed := g.claims[key]; claimed {
		return fmt.Errorf("interface %d already claimed", interfaceNumber)
	}
	if err := device.SetAutoDetach(true); err != nil {
		return err
	}
	cfgNum, err := device.ActiveConfigNum()
	if err != nil {
		return err
	}
	cfg, err := device.Config(cfgNum)
	if err != nil {
		return err
	}
	intf, err := cfg.Interface(int(interfaceNumber), int(altSetting))
	if err != nil {
		_ = cfg.Close()
		return err
	}
	g.claims[key] = &gousbClaim{cfg: cfg, intf: intf}
	return nil
}

func (g *GousbHost) ReleaseInterface(client ClientHandle, dev DeviceHandle, interfaceNumber uint8) error {
	if client != g.client {
		return fmt.Errorf("unknown client handle")
	}
	device, ok := dev.(*gousb.Device)
	if !ok {
		return fmt.Errorf("not a gousb device handle: %T", dev)
	}
	g.mtx.Lock()
	defer g.mtx.Unlock()
	key := claimKey{dev: device, interfaceNumber: interfaceNumber}
	claim, claimed := g.claims[key]
	if !claimed {
		return fmt.Errorf("interface %d not claimed", interfaceNumber)
	}
	claim.close()
	delete(g.claims, key)
	return nil
}

func (c *gousbClaim) close() {
	c.intf.Close()
	if err := c.cfg.Close(); err != nil {
		log.WithError(err).Warn("Error closing configuration")
	}
}

func (g *GousbHost) AllocateTransfer(size int) (*Transfer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid transfer size %d", size)
	}
	return &Transfer{Buffer: make([]byte, size)}, nil
}

func (g *GousbHost) SubmitTransfer(t *Transfer) error {
	if t.Callback == nil {
		return fmt.Errorf("transfer has no callback")
	}
	if t.EndpointAddress.In() {
		return fmt.Errorf("IN transfers not supported")
	}
	if t.NumBytes > len(t.Buffer) {
		return fmt.Errorf("transfer length %d exceeds buffer size %d", t.NumBytes, len(t.Buffer))
	}
	device, ok := t.Device.(*gousb.Device)
	if !ok {
		return fmt.Errorf("not a gousb device handle: %T", t.Device)
	}
	ep, err := g.outEndpoint(device, t.EndpointAddress)
	if err != nil {
		return err
	}
	go func() {
		written, err := ep.Write(t.Buffer[:t.NumBytes])
		t.ActualBytes = written
		t.Status = statusFromError(err)
		t.Callback(t)
	}()
	return nil
}

func (g *GousbHost) outEndpoint(device *gousb.Device, address EndpointAddress) (*gousb.OutEndpoint, error) {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	for key, claim := range g.claims {
		if key.dev != device {
			continue
		}
		if ep, err := claim.intf.OutEndpoint(address.Number()); err == nil {
			return ep, nil
		}
	}
	return nil, fmt.Errorf("no claimed interface carries endpoint %s", address)
}

func statusFromError(err error) TransferStatus {
	switch err {
	case nil:
		return TransferCompleted
	case gousb.ErrorTimeout:
		return TransferTimedOut
	case gousb.TransferCancelled:
		return TransferCancelled
	case gousb.ErrorNoDevice:
		return TransferNoDevice
	case gousb.TransferStall, gousb.ErrorPipe:
		return TransferStall
	case gousb.ErrorOverflow, gousb.TransferOverflow:
		return TransferOverflow
	default:
		return TransferError
	}
}

func (g *GousbHost) FreeTransfer(t *Transfer) {
	t.Buffer = nil
	t.Callback = nil
}

func (g *GousbHost) Close() {
	g.mtx.Lock()
	for key, claim := range g.claims {
		claim.close()
		delete(g.claims, key)
	}
	devices := make([]*gousb.Device, 0, len(g.open))
	for _, dev := range g.open {
		devices = append(devices, dev)
	}
	g.open = map[string]*gousb.Device{}
	g.mtx.Unlock()
	for _, dev := range devices {
		if err := dev.Close(); err != nil {
			log.WithError(err).Warn("Error closing device")
		}
	}
	if err := g.ctx.Close(); err != nil {
		log.WithError(err).Warn("Error closing USB context")
	}
}
