package hoststack

import (
	"fmt"
	"sync"
	"time"
)

// SimHost is an in-memory host stack. It backs the class-driver tests and
// the -simulate mode: descriptors are scripted, claims are tracked, and
// transfer completion runs on a separate goroutine the way a real host
// delivers callbacks.
type SimHost struct {
	mtx     sync.Mutex
	client  ClientHandle
	devices []*SimDevice
	claimed map[simClaimKey]bool
	pending []*Transfer

	// Failure injection and completion scripting.
	ClaimErr       error
	AllocErr       error
	SubmitErr      error
	CompleteStatus TransferStatus
	CompleteDelay  time.Duration
	HoldCompletion bool

	// CompleteInline fires the callback inside SubmitTransfer, before it
	// returns, the way a fast host can on a small transfer.
	CompleteInline bool

	ClaimCalls   int
	ReleaseCalls int
	AllocCalls   int
	SubmitCalls  int
	FreeCalls    int

	// LastPayload is a snapshot of the most recently completed transfer's
	// data, taken before the callback runs.
	LastPayload []byte
}

// SimDevice is a simulated attached device.
type SimDevice struct {
	Name   string
	Config *ConfigDescriptor
}

type simClaimKey struct {
	dev             *SimDevice
	interfaceNumber uint8
}

type simClient struct{}

func NewSimHost() *SimHost {
	return &SimHost{
		client:  &simClient{},
		claimed: map[simClaimKey]bool{},
	}
}

// AddDevice attaches a simulated device with the given configuration.
func (s *SimHost) AddDevice(name string, cfg *ConfigDescriptor) *SimDevice {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	dev := &SimDevice{Name: name, Config: cfg}
	s.devices = append(s.devices, dev)
	return dev
}

func (s *SimHost) Client() ClientHandle {
	return s.client
}

func (s *SimHost) ListDevices() ([]DeviceHandle, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	handles := make([]DeviceHandle, 0, len(s.devices))
	for _, dev := range s.devices {
		handles = append(handles, dev)
	}
	return handles, nil
}

func (s *SimHost) DropDevice(dev DeviceHandle) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	var kept []*SimDevice
	for _, d := range s.devices {
		if DeviceHandle(d) != dev {
			kept = append(kept, d)
		}
	}
	s.devices = kept
}

func (s *SimHost) ActiveConfigDescriptor(dev DeviceHandle) (*ConfigDescriptor, error) {
	device, ok := dev.(*SimDevice)
	if !ok {
		return nil, fmt.Errorf("not a simulated device handle: %T", dev)
	}
	if device.Config == nil {
		return nil, fmt.Errorf("device %s has no configuration", device.Name)
	}
	return device.Config, nil
}

func (s *SimHost) ClaimInterface(client ClientHandle, dev DeviceHandle, interfaceNumber, altSetting uint8) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.ClaimCalls++
	if s.ClaimErr != nil {
		return s.ClaimErr
	}
	device, ok := dev.(*SimDevice)
	if !ok {
		return fmt.Errorf("not a simulated device handle: %T", dev)
	}
	key := simClaimKey{dev: device, interfaceNumber: interfaceNumber}
	if s.claimed[key] {
		return fmt.Errorf("interface %d already claimed", interfaceNumber)
	}
	s.claimed[key] = true
	return nil
}

func (s *SimHost) ReleaseInterface(client ClientHandle, dev DeviceHandle, interfaceNumber uint8) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.ReleaseCalls++
	device, ok := dev.(*SimDevice)
	if !ok {
		return fmt.Errorf("not a simulated device handle: %T", dev)
	}
	key := simClaimKey{dev: device, interfaceNumber: interfaceNumber}
	if !s.claimed[key] {
		return fmt.Errorf("interface %d not claimed", interfaceNumber)
	}
	delete(s.claimed, key)
	return nil
}

// Claimed reports whether an interface is currently claimed.
func (s *SimHost) Claimed(dev *SimDevice, interfaceNumber uint8) bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.claimed[simClaimKey{dev: dev, interfaceNumber: interfaceNumber}]
}

func (s *SimHost) AllocateTransfer(size int) (*Transfer, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.AllocCalls++
	if s.AllocErr != nil {
		return nil, s.AllocErr
	}
	if size <= 0 {
		return nil, fmt.Errorf("invalid transfer size %d", size)
	}
	return &Transfer{Buffer: make([]byte, size)}, nil
}

func (s *SimHost) SubmitTransfer(t *Transfer) error {
	s.mtx.Lock()
	s.SubmitCalls++
	if s.SubmitErr != nil {
		s.mtx.Unlock()
		return s.SubmitErr
	}
	if t.Callback == nil {
		s.mtx.Unlock()
		return fmt.Errorf("transfer has no callback")
	}
	s.pending = append(s.pending, t)
	hold, status, delay := s.HoldCompletion, s.CompleteStatus, s.CompleteDelay
	inline := s.CompleteInline
	s.mtx.Unlock()
	if inline {
		s.Complete(status)
		return nil
	}
	if !hold {
		go func() {
			if delay > 0 {
				time.Sleep(delay)
			}
			s.Complete(status)
		}()
	}
	return nil
}

// Complete finishes the oldest pending transfer with the given status,
// invoking its callback on the caller's goroutine.
func (s *SimHost) Complete(status TransferStatus) {
	s.mtx.Lock()
	if len(s.pending) == 0 {
		s.mtx.Unlock()
		return
	}
	t := s.pending[0]
	s.pending = s.pending[1:]
	if t.NumBytes <= len(t.Buffer) {
		s.LastPayload = append([]byte(nil), t.Buffer[:t.NumBytes]...)
	}
	s.mtx.Unlock()
	t.Status = status
	if status == TransferCompleted {
		t.ActualBytes = t.NumBytes
	}
	t.Callback(t)
}

func (s *SimHost) FreeTransfer(t *Transfer) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.FreeCalls++
	t.Buffer = nil
}
