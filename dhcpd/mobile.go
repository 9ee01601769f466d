package dhcpd

import "net"

// MobileHostTable records hosts known to hold an active lease on a
// subnet other than the one they currently contact, keyed by hardware
// address. It is a lookup index only; the owning subnet's lease table
// stays the source of truth.
type MobileHostTable struct {
	hosts map[string]net.IP
}

// NewMobileHostTable is
func NewMobileHostTable() *MobileHostTable {
	return &MobileHostTable{
		hosts: make(map[string]net.IP),
	}
}

// Lookup returns the address mac holds elsewhere, if any.
func (t *MobileHostTable) Lookup(mac net.HardwareAddr) (net.IP, bool) {
	ip, ok := t.hosts[mac.String()]
	return ip, ok
}

// Mark records mac as mobile with the address it holds elsewhere.
func (t *MobileHostTable) Mark(mac net.HardwareAddr, ip net.IP) {
	t.hosts[mac.String()] = ip
}

// Clear forgets mac. Clearing an unknown host is a no-op.
func (t *MobileHostTable) Clear(mac net.HardwareAddr) {
	delete(t.hosts, mac.String())
}

// Len is the number of hosts currently considered mobile.
func (t *MobileHostTable) Len() int {
	return len(t.hosts)
}
