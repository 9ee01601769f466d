package dhcpd

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.universe.tf/netboot/dhcp4"

	"github.com/lovi-cloud/draco/config"
	"github.com/lovi-cloud/draco/pool"
	"github.com/lovi-cloud/draco/types"
)

// Coordinator owns the per-subnet servers, the mobile-host table, and
// the lease-expiry sweep. It routes inbound messages to the subnet
// serving the attachment switch they arrived on.
//
// One lock serializes message handling and the sweep, so no pool,
// lease table, or the mobile table is ever touched by two units of
// work at once.
type Coordinator struct {
	mu sync.Mutex

	confPath string
	topo     Topology

	subnets map[int]*SubnetServer
	mobile  *MobileHostTable
	routers []net.IP
	central map[types.DPID]struct{}

	observers []Observer
	logger    *zap.Logger

	// LeaseInterval and SweepInterval may be adjusted before Serve.
	LeaseInterval time.Duration
	SweepInterval time.Duration

	now func() time.Time
}

// NewCoordinator is
func NewCoordinator(confPath string, topo Topology, logger *zap.Logger, observers ...Observer) *Coordinator {
	return &Coordinator{
		confPath:      confPath,
		topo:          topo,
		subnets:       make(map[int]*SubnetServer),
		mobile:        NewMobileHostTable(),
		central:       make(map[types.DPID]struct{}),
		observers:     observers,
		logger:        logger,
		LeaseInterval: DefaultLeaseInterval,
		SweepInterval: DefaultSweepInterval,
		now:           time.Now,
	}
}

// Serve waits for the topology to settle, loads the subnet
// configuration against it, and then runs the expiry sweep until ctx
// is cancelled.
func (c *Coordinator) Serve(ctx context.Context) error {
	if err := c.topo.WaitStable(ctx); err != nil {
		return fmt.Errorf("failed to wait for a stable topology: %w", err)
	}
	known, err := c.topo.Switches(ctx)
	if err != nil {
		return fmt.Errorf("failed to list attachment switches: %w", err)
	}

	cfg, err := config.LoadConfig(c.confPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration %s: %w", c.confPath, err)
	}
	c.logger.Info("loading DHCP server configuration", zap.String("path", c.confPath))
	c.Reconfigure(cfg, known)

	ticker := time.NewTicker(c.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.Sweep(ctx)
		}
	}
}

// Reconfigure builds subnet servers from cfg. Malformed or duplicate
// definitions are skipped with a warning; they never abort the load.
// Attachment switches in known that no subnet claims become central.
func (c *Coordinator) Reconfigure(cfg *config.Config, known []types.DPID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	claimed := make(map[types.DPID]struct{})
	for _, s := range c.subnets {
		for dpid := range s.switches {
			claimed[dpid] = struct{}{}
		}
	}

	for _, def := range cfg.Subnets {
		logger := c.logger.With(zap.Int("subnet", def.ID))
		if _, ok := c.subnets[def.ID]; ok {
			logger.Warn("ignoring duplicate subnet definition")
			continue
		}
		if err := def.Validate(); err != nil {
			logger.Warn("skipping malformed subnet definition", zap.Error(err))
			continue
		}

		network := net.IPNet(def.Network)
		first, last := 1, pool.MaxOffset(&network)
		switch len(def.Range) {
		case 0:
		case 1:
			first = def.Range[0]
		case 2:
			first, last = def.Range[0], def.Range[1]
		default:
			logger.Warn("skipping subnet definition with a bad range",
				zap.Ints("range", def.Range))
			continue
		}
		p, err := pool.New(&network, first, last)
		if err != nil {
			logger.Warn("skipping subnet definition with a bad pool", zap.Error(err))
			continue
		}

		s := newSubnetServer(c, def.ID, net.IP(def.Router), net.IP(def.DNS), p, def.Switches)
		c.subnets[def.ID] = s
		c.routers = append(c.routers, net.IP(def.Router))
		for _, dpid := range def.Switches {
			claimed[dpid] = struct{}{}
		}
		logger.Info("serving subnet",
			zap.String("router", net.IP(def.Router).String()),
			zap.String("network", def.Network.String()))
	}

	c.central = make(map[types.DPID]struct{})
	for _, dpid := range known {
		if _, ok := claimed[dpid]; !ok {
			c.central[dpid] = struct{}{}
		}
	}
}

// HandleRequest routes one inbound message to the subnet serving its
// attachment switch. A nil return means no reply is sent.
func (c *Coordinator) HandleRequest(ctx context.Context, req *Request) *dhcp4.Packet {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := req.Packet
	if p == nil || len(p.HardwareAddr) == 0 {
		return nil
	}
	if req.Source != nil && !bytes.Equal(req.Source, p.HardwareAddr) {
		c.logger.Warn("dropping message with mismatched source",
			zap.String("source", req.Source.String()),
			zap.String("chaddr", p.HardwareAddr.String()))
		return nil
	}

	var server *SubnetServer
	for _, s := range c.subnetsByID() {
		if s.serves(req.DPID) {
			server = s
			break
		}
	}
	if server == nil {
		c.logger.Debug("no subnet serves this switch", zap.String("dpid", req.DPID.String()))
		return nil
	}

	switch p.Type {
	case dhcp4.MsgDiscover:
		return server.handleDiscover(req)
	case dhcp4.MsgRequest:
		resp, err := server.handleRequest(ctx, req)
		if err != nil {
			c.logger.Error("failed to resolve REQUEST",
				zap.String("mac", p.HardwareAddr.String()), zap.Error(err))
			return nil
		}
		return resp
	case dhcp4.MsgRelease:
		server.handleRelease(req)
		return nil
	default:
		c.logger.Debug("ignoring message type", zap.Int("type", int(p.Type)))
		return nil
	}
}

// Sweep runs one expiry pass over every subnet's lease table. Each
// expired lease has its address restored, an expire event raised, and
// its entry removed; a veto only suppresses the mobile-table cleanup,
// it cannot revive the lease.
func (c *Coordinator) Sweep(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for _, s := range c.subnetsByID() {
		for key, l := range s.leases {
			if !l.expired(now) {
				continue
			}
			s.logger.Info("lease expired", zap.String("mac", key), zap.String("ip", l.IP.String()))
			if err := s.pool.Put(l.IP); err != nil {
				s.logger.Error("failed to restore expired address", zap.Error(err))
			}
			delete(s.leases, key)

			mac, err := net.ParseMAC(key)
			if err != nil {
				continue
			}
			d := c.notify(ctx, LeaseEvent{
				MAC:    mac,
				IP:     l.IP,
				Expire: true,
			})
			if d == Veto {
				continue
			}
			c.mobile.Clear(mac)
		}
	}
}

func (c *Coordinator) notify(ctx context.Context, ev LeaseEvent) Decision {
	d := Accept
	for _, o := range c.observers {
		if o.LeaseChanged(ctx, ev) == Veto {
			d = Veto
		}
	}
	return d
}

// leaseOwner finds the one subnet holding a lease for mac. Zero or
// several owners is an internal consistency failure.
func (c *Coordinator) leaseOwner(mac net.HardwareAddr) (*SubnetServer, error) {
	var owner *SubnetServer
	key := mac.String()
	for _, s := range c.subnetsByID() {
		if _, ok := s.leases[key]; !ok {
			continue
		}
		if owner != nil {
			return nil, fmt.Errorf("%s leased on multiple subnets: %w", key, ErrAllocationConflict)
		}
		owner = s
	}
	if owner == nil {
		return nil, fmt.Errorf("%s marked mobile but no subnet owns its lease: %w", key, ErrAllocationConflict)
	}
	return owner, nil
}

func (c *Coordinator) subnetsByID() []*SubnetServer {
	ids := make([]int, 0, len(c.subnets))
	for id := range c.subnets {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	servers := make([]*SubnetServer, 0, len(ids))
	for _, id := range ids {
		servers = append(servers, c.subnets[id])
	}
	return servers
}

// SubnetFor returns the network of the subnet that withdrew ip, used
// by forwarding logic to answer "whose address is this".
func (c *Coordinator) SubnetFor(ip net.IP) (*net.IPNet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var found *SubnetServer
	for _, s := range c.subnetsByID() {
		if !s.pool.Withdrawn(ip) {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("%s withdrawn on multiple subnets: %w", ip, ErrAllocationConflict)
		}
		found = s
	}
	if found == nil {
		return nil, fmt.Errorf("%s is not on a valid subnet in this network", ip)
	}
	return &net.IPNet{IP: found.pool.Network(), Mask: found.pool.Mask()}, nil
}

// IsRouter reports whether ip is one of our subnet router interfaces.
func (c *Coordinator) IsRouter(ip net.IP) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.routers {
		if r.Equal(ip) {
			return true
		}
	}
	return false
}

// IsCentral reports whether dpid names a switch not claimed by any
// single subnet.
func (c *Coordinator) IsCentral(dpid types.DPID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.central[dpid]
	return ok
}

// IsLocalPath reports whether a switch path stays inside one subnet,
// i.e. crosses no central switch between its endpoints.
func (c *Coordinator) IsLocalPath(path []types.DPID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, dpid := range path {
		if i == 0 || i == len(path)-1 {
			continue
		}
		if _, ok := c.central[dpid]; ok {
			return false
		}
	}
	return true
}
