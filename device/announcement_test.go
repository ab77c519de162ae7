package device

import (
	"net"
	"testing"
	"time"
)

func buildAnnouncePacket(deviceNumber int, name string, ip net.IP, mac net.HardwareAddr) []byte {
	buf := make([]byte, minAnnounceLength+2)
	copy(buf[0:10], packetHeader)
	buf[offsetPacketType] = announcePacketType
	copy(buf[offsetName:], name)
	buf[offsetDeviceNumber] = byte(deviceNumber)
	copy(buf[offsetMAC:], mac)
	copy(buf[offsetIP:], ip.To4())
	return buf
}

func TestParseAnnouncement(t *testing.T) {
	mac := net.HardwareAddr{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
	ip := net.IPv4(192, 168, 1, 50)
	packet := buildAnnouncePacket(3, "CDJ-3000", ip, mac)

	now := time.Now()
	ann, ok := parse(packet, now)
	if !ok {
		t.Fatal("parse returned ok=false for a valid announcement")
	}
	if ann.DeviceNumber != 3 {
		t.Errorf("DeviceNumber = %d, want 3", ann.DeviceNumber)
	}
	if ann.Name != "CDJ-3000" {
		t.Errorf("Name = %q, want CDJ-3000", ann.Name)
	}
	if !ann.Address.Equal(ip) {
		t.Errorf("Address = %v, want %v", ann.Address, ip)
	}
	if ann.MACAddress.String() != mac.String() {
		t.Errorf("MACAddress = %v, want %v", ann.MACAddress, mac)
	}
	if !ann.LastSeen.Equal(now) {
		t.Errorf("LastSeen = %v, want %v", ann.LastSeen, now)
	}
}

func TestParseAnnouncementRejectsShortPacket(t *testing.T) {
	if _, ok := parse(make([]byte, 10), time.Now()); ok {
		t.Fatal("parse accepted a too-short packet")
	}
}

func TestParseAnnouncementRejectsBadHeader(t *testing.T) {
	packet := buildAnnouncePacket(1, "x", net.IPv4(1, 2, 3, 4), net.HardwareAddr{1, 2, 3, 4, 5, 6})
	packet[0] = 'Z'
	if _, ok := parse(packet, time.Now()); ok {
		t.Fatal("parse accepted a packet with corrupted header")
	}
}

func TestGatewayDevice(t *testing.T) {
	ann := Announcement{DeviceNumber: GatewayDeviceNumber, Name: GatewayDeviceName}
	if !ann.IsGateway() {
		t.Error("IsGateway() = false for NXS-GW, want true")
	}
	other := Announcement{DeviceNumber: 1}
	if other.IsGateway() {
		t.Error("IsGateway() = true for device 1, want false")
	}
}
