// Package device implements the device presence subsystem (C3):
// parsing of periodic UDP announcement packets, liveness tracking of
// every participant on the network, and found/lost lifecycle
// notification.
package device

import (
	"bytes"
	"net"
	"time"
)

const (
	packetHeader = "Qspt1WmJOL"

	announcePacketType = 0x06

	offsetPacketType   = 0x0a
	offsetName         = 0x0c
	nameLength         = 20
	offsetDeviceNumber = 0x24
	offsetMAC          = 0x26
	macLength          = 6
	offsetIP           = 0x2c
	ipLength           = 4
	minAnnounceLength  = offsetIP + ipLength
)

// GatewayDeviceNumber is the reserved device number of the "NXS-GW"
// gateway device: tracked for presence like any other participant, but
// filtered out of waveform/metadata invalidation by consumers of this
// package's events.
const GatewayDeviceNumber = 25

// GatewayDeviceName is the fixed name advertised by the gateway device.
const GatewayDeviceName = "NXS-GW"

// Announcement is the identity of a live participant on the network.
// It is created on a device's first announcement and mutated (its
// LastSeen field refreshed) on every subsequent one.
type Announcement struct {
	DeviceNumber int
	Name         string
	Address      net.IP
	MACAddress   net.HardwareAddr
	LastSeen     time.Time
}

// IsGateway reports whether this announcement is the special "NXS-GW"
// gateway device, which must be tracked for presence but excluded from
// cache invalidation.
func (a Announcement) IsGateway() bool {
	return a.DeviceNumber == GatewayDeviceNumber && a.Name == GatewayDeviceName
}

// parse decodes a raw announcement datagram into an Announcement. It
// returns ok=false for any packet that isn't a recognized announcement
// subtype: too short, wrong header, or wrong packet type byte.
func parse(data []byte, now time.Time) (Announcement, bool) {
	if len(data) < minAnnounceLength {
		return Announcement{}, false
	}
	if !bytes.HasPrefix(data, []byte(packetHeader)) {
		return Announcement{}, false
	}
	if data[offsetPacketType] != announcePacketType {
		return Announcement{}, false
	}

	name := string(bytes.TrimRight(data[offsetName:offsetName+nameLength], "\x00"))
	deviceNumber := int(data[offsetDeviceNumber])
	mac := make(net.HardwareAddr, macLength)
	copy(mac, data[offsetMAC:offsetMAC+macLength])
	ip := make(net.IP, ipLength)
	copy(ip, data[offsetIP:offsetIP+ipLength])

	return Announcement{
		DeviceNumber: deviceNumber,
		Name:         name,
		Address:      ip,
		MACAddress:   mac,
		LastSeen:     now,
	}, true
}
