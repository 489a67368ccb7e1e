package hoststack

import (
	"encoding/binary"
	"fmt"
)

// Descriptor layout constants from the USB 2.0 spec, section 9.6.
const (
	configDescLength    = 9
	interfaceDescLength = 9
	endpointDescLength  = 7

	descTypeConfig    = 0x02
	descTypeInterface = 0x04
	descTypeEndpoint  = 0x05

	endpointDirIn     = 0x80
	transferTypeMask  = 0x03
	transferTypeBulk  = 0x02
)

// EndpointAddress is a raw bEndpointAddress value. Bit 7 is the direction
// bit; the low nibble is the endpoint number.
type EndpointAddress uint8

func (a EndpointAddress) In() bool {
	return a&endpointDirIn != 0
}

func (a EndpointAddress) Number() int {
	return int(a & 0x0f)
}

func (a EndpointAddress) String() string {
	return fmt.Sprintf("0x%02x", uint8(a))
}

// ConfigDescriptor is a device's active configuration: the decoded header
// plus the raw descriptor bytes for cursor-based walking.
type ConfigDescriptor struct {
	TotalLength        uint16
	NumInterfaces      uint8
	ConfigurationValue uint8
	Attributes         uint8
	MaxPower           uint8

	raw []byte
}

type InterfaceDescriptor struct {
	InterfaceNumber  uint8
	AlternateSetting uint8
	NumEndpoints     uint8
	Class            uint8
	SubClass         uint8
	Protocol         uint8
}

type EndpointDescriptor struct {
	Address       EndpointAddress
	Attributes    uint8
	MaxPacketSize uint16
	Interval      uint8
}

func (e *EndpointDescriptor) IsBulk() bool {
	return e.Attributes&transferTypeMask == transferTypeBulk
}

// ConfigDescriptorFromBytes decodes a raw configuration descriptor. The full
// byte range is retained for the parse functions below.
func ConfigDescriptorFromBytes(raw []byte) (*ConfigDescriptor, error) {
	if len(raw) < configDescLength {
		return nil, fmt.Errorf("config descriptor is %d bytes, need at least %d", len(raw), configDescLength)
	}
	if raw[1] != descTypeConfig {
		return nil, fmt.Errorf("not a config descriptor: type 0x%02x", raw[1])
	}
	cfg := &ConfigDescriptor{
		TotalLength:        binary.LittleEndian.Uint16(raw[2:4]),
		NumInterfaces:      raw[4],
		ConfigurationValue: raw[5],
		Attributes:         raw[7],
		MaxPower:           raw[8],
		raw:                raw,
	}
	if int(cfg.TotalLength) < len(raw) {
		cfg.raw = raw[:cfg.TotalLength]
	}
	return cfg, nil
}

// ParseInterfaceDescriptor finds the interface descriptor with the given
// interface number and alternate setting. On success *offset is set to the
// byte offset of the descriptor within the configuration; nil is returned
// for a missing or malformed descriptor.
func ParseInterfaceDescriptor(cfg *ConfigDescriptor, number, altSetting int, offset *int) *InterfaceDescriptor {
	pos := configDescLength
	for pos+2 <= len(cfg.raw) {
		length := int(cfg.raw[pos])
		if length < 2 || pos+length > len(cfg.raw) {
			return nil
		}
		if cfg.raw[pos+1] == descTypeInterface && length >= interfaceDescLength {
			intf := decodeInterface(cfg.raw[pos:])
			if int(intf.InterfaceNumber) == number && int(intf.AlternateSetting) == altSetting {
				*offset = pos
				return intf
			}
		}
		pos += length
	}
	return nil
}

// ParseNextEndpointDescriptor scans forward from the record at *offset for
// the next endpoint descriptor, skipping class-specific descriptors and
// stopping at the next interface descriptor or the end of the configuration.
// On success *offset is advanced past the returned descriptor.
func ParseNextEndpointDescriptor(cfg *ConfigDescriptor, offset *int) *EndpointDescriptor {
	start := *offset
	pos := start
	for pos+2 <= len(cfg.raw) {
		length := int(cfg.raw[pos])
		if length < 2 || pos+length > len(cfg.raw) {
			return nil
		}
		descType := cfg.raw[pos+1]
		if descType == descTypeEndpoint {
			if length < endpointDescLength {
				return nil
			}
			ep := decodeEndpoint(cfg.raw[pos:])
			*offset = pos + length
			return ep
		}
		if descType == descTypeInterface && pos != start {
			return nil
		}
		pos += length
	}
	return nil
}

func decodeInterface(raw []byte) *InterfaceDescriptor {
	return &InterfaceDescriptor{
		InterfaceNumber:  raw[2],
		AlternateSetting: raw[3],
		NumEndpoints:     raw[4],
		Class:            raw[5],
		SubClass:         raw[6],
		Protocol:         raw[7],
	}
}

func decodeEndpoint(raw []byte) *EndpointDescriptor {
	return &EndpointDescriptor{
		Address:       EndpointAddress(raw[2]),
		Attributes:    raw[3],
		MaxPacketSize: binary.LittleEndian.Uint16(raw[4:6]),
		Interval:      raw[6],
	}
}
