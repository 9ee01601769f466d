package dhcpd

import (
	"context"
	"net"
	"time"

	"go.universe.tf/netboot/dhcp4"

	"github.com/lovi-cloud/draco/types"
)

// Timing defaults, overridable on the Coordinator before Serve.
const (
	// DefaultSweepInterval is the period of the lease-expiry sweep.
	DefaultSweepInterval = 5 * time.Second
	// DefaultLeaseInterval is how long a lease stays live without a
	// renewal.
	DefaultLeaseInterval = time.Hour
)

// Options the protocol machine reads from inbound packets. The netboot
// library names the common reply options; these two are only read
// here so they live here.
const (
	optRequestedIP      dhcp4.Option = 50
	optRequestedOptions dhcp4.Option = 55
)

// Server is the interface for draco to provide the DHCP daemon.
type Server interface {
	Serve(ctx context.Context) error
}

// Request is one parsed inbound DHCP message together with where it
// physically entered the network.
//
// Source is the link-layer source of the frame when the transport saw
// it; transports that cannot recover it leave Source nil and the
// chaddr-spoofing check degrades to chaddr-only matching.
type Request struct {
	Packet *dhcp4.Packet
	DPID   types.DPID
	Port   int
	Source net.HardwareAddr
}

// Handler turns an inbound request into a reply packet. A nil reply
// means the message was dropped.
type Handler interface {
	HandleRequest(ctx context.Context, req *Request) *dhcp4.Packet
}

// Decision is an observer's verdict on a lease event.
type Decision int

// Decisions an Observer can return.
const (
	Accept Decision = iota
	Veto
)

// LeaseEvent describes one lease grant, renewal, or expiry. Exactly
// one of Renew and Expire is set.
type LeaseEvent struct {
	MAC    net.HardwareAddr
	IP     net.IP
	DPID   types.DPID
	Port   int
	Renew  bool
	Expire bool
}

// Observer is notified synchronously of every lease event. Returning
// Veto from a grant or renewal turns the pending ACK into a NAK and
// the binding is not kept. A veto on an expiry cannot revive the
// lease.
type Observer interface {
	LeaseChanged(ctx context.Context, ev LeaseEvent) Decision
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, ev LeaseEvent) Decision

// LeaseChanged implements Observer.
func (f ObserverFunc) LeaseChanged(ctx context.Context, ev LeaseEvent) Decision {
	return f(ctx, ev)
}

// Topology is the view of the network draco needs: the set of known
// attachment switches and a signal that the topology has settled
// enough to load subnet configuration against it.
type Topology interface {
	WaitStable(ctx context.Context) error
	Switches(ctx context.Context) ([]types.DPID, error)
}
