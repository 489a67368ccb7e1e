package hoststack

import (
	"encoding/binary"
	"fmt"
)

// RawConfigBuilder assembles raw configuration descriptor bytes. Hosts that
// surface structured descriptor data rather than the raw configuration use
// it to present a parseable ConfigDescriptor.
type RawConfigBuilder struct {
	buf            []byte
	numInterfaces  uint8
	lastIntfOffset int
}

func NewRawConfigBuilder(configurationValue uint8) *RawConfigBuilder {
	b := &RawConfigBuilder{lastIntfOffset: -1}
	b.buf = append(b.buf,
		configDescLength, descTypeConfig,
		0, 0, // wTotalLength, patched in Config()
		0, configurationValue,
		0,    // iConfiguration
		0x80, // bmAttributes: bus powered
		50,   // bMaxPower, 100 mA
	)
	return b
}

func (b *RawConfigBuilder) AddInterface(number, altSetting, class, subClass, protocol uint8) *RawConfigBuilder {
	b.lastIntfOffset = len(b.buf)
	b.buf = append(b.buf,
		interfaceDescLength, descTypeInterface,
		number, altSetting,
		0, // bNumEndpoints, patched by AddEndpoint
		class, subClass, protocol,
		0, // iInterface
	)
	b.numInterfaces++
	return b
}

func (b *RawConfigBuilder) AddEndpoint(address EndpointAddress, attributes uint8, maxPacketSize uint16) *RawConfigBuilder {
	b.buf = append(b.buf,
		endpointDescLength, descTypeEndpoint,
		uint8(address), attributes,
		0, 0, // wMaxPacketSize, below
		0, // bInterval
	)
	binary.LittleEndian.PutUint16(b.buf[len(b.buf)-3:], maxPacketSize)
	if b.lastIntfOffset >= 0 {
		b.buf[b.lastIntfOffset+4]++
	}
	return b
}

// AddRaw appends arbitrary descriptor bytes, for class-specific descriptors.
func (b *RawConfigBuilder) AddRaw(data []byte) *RawConfigBuilder {
	b.buf = append(b.buf, data...)
	return b
}

func (b *RawConfigBuilder) Config() (*ConfigDescriptor, error) {
	if len(b.buf) > 0xffff {
		return nil, fmt.Errorf("configuration too large: %d bytes", len(b.buf))
	}
	binary.LittleEndian.PutUint16(b.buf[2:4], uint16(len(b.buf)))
	b.buf[4] = b.numInterfaces
	return ConfigDescriptorFromBytes(b.buf)
}
