package dhcpd

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.universe.tf/netboot/dhcp4"

	"github.com/lovi-cloud/draco/config"
	"github.com/lovi-cloud/draco/types"
)

type fakeClock struct {
	t time.Time
}

func (f *fakeClock) now() time.Time {
	return f.t
}

func (f *fakeClock) advance(d time.Duration) {
	f.t = f.t.Add(d)
}

// eventRecorder collects lease events and answers with a fixed
// decision.
type eventRecorder struct {
	events   []LeaseEvent
	decision Decision
}

func (r *eventRecorder) LeaseChanged(ctx context.Context, ev LeaseEvent) Decision {
	r.events = append(r.events, ev)
	return r.decision
}

func testCIDR(t *testing.T, s string) types.IPNet {
	t.Helper()
	n, err := types.ParseCIDR(s)
	require.NoError(t, err)
	return *n
}

func testIP(t *testing.T, s string) types.IP {
	t.Helper()
	ip, err := types.ParseIP(s)
	require.NoError(t, err)
	return *ip
}

func testMAC(t *testing.T, s string) net.HardwareAddr {
	t.Helper()
	mac, err := net.ParseMAC(s)
	require.NoError(t, err)
	return mac
}

// Two subnets: 192.168.0.100-198 behind switches 1 and 2, and all of
// 10.0.0.0/24 behind switch 3. Switches 4 and 5 stay central.
func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Subnets: []config.Subnet{
			{
				ID:       1,
				Switches: []types.DPID{1, 2},
				Network:  testCIDR(t, "192.168.0.0/24"),
				Router:   testIP(t, "192.168.0.1"),
				DNS:      testIP(t, "8.8.8.8"),
				Range:    []int{100, 198},
			},
			{
				ID:       2,
				Switches: []types.DPID{3},
				Network:  testCIDR(t, "10.0.0.0/24"),
				Router:   testIP(t, "10.0.0.1"),
				DNS:      testIP(t, "8.8.4.4"),
			},
		},
	}
}

func testCoordinator(t *testing.T, observers ...Observer) (*Coordinator, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2020, 7, 1, 0, 0, 0, 0, time.UTC)}
	c := NewCoordinator("", nil, zap.NewNop(), observers...)
	c.now = clock.now
	c.Reconfigure(testConfig(t), []types.DPID{1, 2, 3, 4, 5})
	return c, clock
}

func newPacket(t *testing.T, typ dhcp4.MessageType, mac string) *dhcp4.Packet {
	return &dhcp4.Packet{
		Type:          typ,
		TransactionID: []byte{0xde, 0xad, 0xbe, 0xef},
		HardwareAddr:  testMAC(t, mac),
		Options:       make(dhcp4.Options),
	}
}

func discoverReq(t *testing.T, mac string, dpid types.DPID, wanted net.IP) *Request {
	t.Helper()
	p := newPacket(t, dhcp4.MsgDiscover, mac)
	if wanted != nil {
		p.Options[optRequestedIP] = wanted.To4()
	}
	return &Request{Packet: p, DPID: dpid, Port: 1}
}

func requestReq(t *testing.T, mac string, dpid types.DPID, wanted net.IP) *Request {
	t.Helper()
	p := newPacket(t, dhcp4.MsgRequest, mac)
	if wanted != nil {
		p.Options[optRequestedIP] = wanted.To4()
	}
	return &Request{Packet: p, DPID: dpid, Port: 1}
}

func releaseReq(t *testing.T, mac string, dpid types.DPID, ciaddr net.IP) *Request {
	t.Helper()
	p := newPacket(t, dhcp4.MsgRelease, mac)
	p.ClientAddr = ciaddr
	return &Request{Packet: p, DPID: dpid, Port: 1, Source: testMAC(t, mac)}
}
