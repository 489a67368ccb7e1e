// Package hoststack defines the contract between the printer class driver
// and the USB host stack: descriptor access, interface ownership and
// asynchronous transfers. The production implementation is backed by gousb;
// a simulated host backs the tests.
package hoststack

// DeviceHandle is an opaque reference to an attached USB device. It is
// owned by the host; holders must not retain it past device departure.
type DeviceHandle interface{}

// ClientHandle is an opaque reference to a host client session, used to
// claim and release interfaces.
type ClientHandle interface{}

// Host is the transfer-side collaborator contract.
type Host interface {
	// ActiveConfigDescriptor returns the device's active configuration.
	ActiveConfigDescriptor(dev DeviceHandle) (*ConfigDescriptor, error)

	// ClaimInterface requests exclusive ownership of an interface.
	ClaimInterface(client ClientHandle, dev DeviceHandle, interfaceNumber, altSetting uint8) error

	// ReleaseInterface gives up a previously claimed interface.
	ReleaseInterface(client ClientHandle, dev DeviceHandle, interfaceNumber uint8) error

	// AllocateTransfer returns a transfer with a buffer of the given size.
	AllocateTransfer(size int) (*Transfer, error)

	// SubmitTransfer starts a transfer asynchronously. The transfer's
	// callback fires at most once, after submission returns.
	SubmitTransfer(t *Transfer) error

	// FreeTransfer returns a transfer's resources to the host.
	FreeTransfer(t *Transfer)
}

// Enumerator lists attached devices for discovery sweeps.
type Enumerator interface {
	// Client returns the session handle used for interface claims.
	Client() ClientHandle

	// ListDevices returns handles for the currently attached devices.
	ListDevices() ([]DeviceHandle, error)

	// DropDevice releases host resources for a departed or rejected device.
	DropDevice(dev DeviceHandle)
}
