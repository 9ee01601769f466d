package dhcpd

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"go.universe.tf/netboot/dhcp4"

	"github.com/lovi-cloud/draco/pool"
	"github.com/lovi-cloud/draco/types"
)

// ErrAllocationConflict reports an internal consistency failure: a
// host recognized as mobile on more than one subnet, or pool
// accounting that no protocol sequence can legally produce. Requests
// that hit it are dropped rather than risking pool corruption.
var ErrAllocationConflict = errors.New("allocation conflict")

// SubnetServer is the DHCP protocol state machine for one subnet: one
// address pool, the set of attachment switches it serves, and the
// offers and leases it currently tracks.
//
// All methods are called with the coordinator's lock held.
type SubnetServer struct {
	id        int
	serverIP  net.IP
	routerIP  net.IP
	dnsIP     net.IP
	leaseTime time.Duration
	pool      *pool.Pool
	switches  map[types.DPID]struct{}

	offers map[string]net.IP
	leases map[string]*Lease

	coord  *Coordinator
	logger *zap.Logger
}

func newSubnetServer(coord *Coordinator, id int, serverIP, dnsIP net.IP, p *pool.Pool, switches []types.DPID) *SubnetServer {
	s := &SubnetServer{
		id:        id,
		serverIP:  serverIP,
		routerIP:  serverIP,
		dnsIP:     dnsIP,
		leaseTime: coord.LeaseInterval,
		pool:      p,
		switches:  make(map[types.DPID]struct{}, len(switches)),
		offers:    make(map[string]net.IP),
		leases:    make(map[string]*Lease),
		coord:     coord,
		logger:    coord.logger.With(zap.Int("subnet", id)),
	}
	for _, dpid := range switches {
		s.switches[dpid] = struct{}{}
	}

	if p.Contains(serverIP) {
		s.logger.Debug("removing my own address from the pool", zap.String("ip", serverIP.String()))
		_ = p.Take(serverIP)
	}
	return s
}

func (s *SubnetServer) serves(dpid types.DPID) bool {
	_, ok := s.switches[dpid]
	return ok
}

// requestedIP extracts the requested-IP option, when present.
func requestedIP(p *dhcp4.Packet) net.IP {
	b, err := p.Options.Bytes(optRequestedIP)
	if err != nil || len(b) != net.IPv4len {
		return nil
	}
	return net.IP(b)
}

func (s *SubnetServer) reply(req *Request, t dhcp4.MessageType) *dhcp4.Packet {
	resp := &dhcp4.Packet{
		Type:          t,
		TransactionID: req.Packet.TransactionID,
		Broadcast:     req.Packet.Broadcast,
		HardwareAddr:  req.Packet.HardwareAddr,
		ServerAddr:    s.serverIP.To4(),
		RelayAddr:     req.Packet.RelayAddr,
		Options:       make(dhcp4.Options),
	}
	resp.Options[dhcp4.OptServerIdentifier] = s.serverIP.To4()
	return resp
}

func (s *SubnetServer) nak(req *Request) *dhcp4.Packet {
	return s.reply(req, dhcp4.MsgNack)
}

// fill adds the option values the client asked for in its
// parameter-request list. Subnet mask and lease time are always
// included.
func (s *SubnetServer) fill(req *Request, resp *dhcp4.Packet) {
	wanted := make(map[byte]struct{})
	if b, err := req.Packet.Options.Bytes(optRequestedOptions); err == nil {
		for _, o := range b {
			wanted[o] = struct{}{}
		}
	}

	resp.Options[dhcp4.OptSubnetMask] = s.pool.Mask()
	if _, ok := wanted[byte(dhcp4.OptRouters)]; ok && s.routerIP != nil {
		resp.Options[dhcp4.OptRouters] = s.routerIP.To4()
	}
	if _, ok := wanted[byte(dhcp4.OptDNSServers)]; ok && s.dnsIP != nil {
		resp.Options[dhcp4.OptDNSServers] = s.dnsIP.To4()
	}
	buff := make([]byte, 4)
	binary.BigEndian.PutUint32(buff, uint32(s.leaseTime/time.Second))
	resp.Options[dhcp4.OptLeaseTime] = buff
}

// handleDiscover answers a DISCOVER with an OFFER, or a NAK when the
// pool is exhausted.
func (s *SubnetServer) handleDiscover(req *Request) *dhcp4.Packet {
	src := req.Packet.HardwareAddr
	key := src.String()

	var offer net.IP
	if l, ok := s.leases[key]; ok {
		// The host already holds a lease; offer the same address
		// but make it re-confirm.
		offer = l.IP
		delete(s.leases, key)
		s.offers[key] = offer
	} else if o, ok := s.offers[key]; ok {
		offer = o
	} else {
		if s.pool.Size() == 0 {
			s.logger.Error("out of addresses", zap.String("mac", key))
			return s.nak(req)
		}
		next, err := s.pool.Nth(0)
		if err != nil {
			s.logger.Error("failed to pick an address", zap.Error(err))
			return s.nak(req)
		}
		offer = next
		if wanted := requestedIP(req.Packet); wanted != nil && s.pool.Contains(wanted) {
			offer = wanted
		}
		if err := s.pool.Take(offer); err != nil {
			s.logger.Error("failed to withdraw offered address", zap.Error(err))
			return s.nak(req)
		}
		s.offers[key] = offer
	}

	s.logger.Info("offering address", zap.String("mac", key), zap.String("ip", offer.String()))

	resp := s.reply(req, dhcp4.MsgOffer)
	resp.YourAddr = offer.To4()
	s.fill(req, resp)
	return resp
}

// handleRequest resolves a REQUEST in order: renewal, renewal with an
// address change, offer confirmation, fresh allocation, roaming
// recognition. Anything else is NAK'd.
func (s *SubnetServer) handleRequest(ctx context.Context, req *Request) (*dhcp4.Packet, error) {
	wanted := requestedIP(req.Packet)
	if wanted == nil {
		s.logger.Debug("REQUEST without a requested address option")
		return nil, nil
	}

	src := req.Packet.HardwareAddr
	key := src.String()
	_, isMobile := s.coord.mobile.Lookup(src)

	var got *Lease

	// Renewal.
	if l, ok := s.leases[key]; ok {
		if !wanted.Equal(l.IP) {
			// The host wants a different address. Its old one
			// goes back to the pool, and if it was roaming it
			// clearly wants a fresh local binding now.
			if isMobile {
				s.coord.mobile.Clear(src)
				isMobile = false
			}
			if err := s.pool.Put(l.IP); err != nil {
				return nil, fmt.Errorf("failed to restore %s: %w", l.IP, err)
			}
			delete(s.leases, key)
		} else {
			got = l
			got.refresh(s.coord.now())
		}
	}

	// Offer confirmation.
	if got == nil {
		if o, ok := s.offers[key]; ok {
			if !wanted.Equal(o) {
				if err := s.pool.Put(o); err != nil {
					return nil, fmt.Errorf("failed to restore %s: %w", o, err)
				}
			} else {
				got = newLease(o, s.leaseTime, s.coord.now())
			}
			delete(s.offers, key)
		}
	}

	// Fresh allocation of an address the host picked itself.
	if got == nil {
		if s.pool.Contains(wanted) {
			if err := s.pool.Take(wanted); err != nil {
				return nil, fmt.Errorf("failed to withdraw %s: %w", wanted, err)
			}
			got = newLease(wanted, s.leaseTime, s.coord.now())
			// A mobile host asking for a local address is no
			// longer mobile. Its old lease is left to expire on
			// its own subnet.
			if isMobile {
				s.coord.mobile.Clear(src)
			}
		}
	}

	// Roaming: the address belongs to a lease on another subnet.
	if got == nil {
		if mobileIP, ok := s.coord.mobile.Lookup(src); ok && wanted.Equal(mobileIP) {
			s.logger.Info("recognized mobile host", zap.String("mac", key), zap.String("ip", wanted.String()))
			owner, err := s.coord.leaseOwner(src)
			if err != nil {
				return nil, err
			}
			return owner.handleRequest(ctx, req)
		}

		for _, other := range s.coord.subnetsByID() {
			if other == s {
				continue
			}
			l, ok := other.leases[key]
			if !ok || !wanted.Equal(l.IP) {
				continue
			}
			s.logger.Info("host is now mobile",
				zap.String("mac", key), zap.String("ip", wanted.String()),
				zap.Int("home_subnet", other.id))
			s.coord.mobile.Mark(src, wanted)
			return other.handleRequest(ctx, req)
		}
	}

	if got == nil {
		s.logger.Warn("asked for un-offered address",
			zap.String("mac", key), zap.String("ip", wanted.String()))
		return s.nak(req), nil
	}

	s.leases[key] = got
	ev := LeaseEvent{
		MAC:   src,
		IP:    got.IP,
		DPID:  req.DPID,
		Port:  req.Port,
		Renew: true,
	}
	if s.coord.notify(ctx, ev) == Veto {
		// The grant was refused from outside; the binding is not
		// kept and the address goes back in the pool.
		delete(s.leases, key)
		if err := s.pool.Put(got.IP); err != nil {
			return nil, fmt.Errorf("failed to restore vetoed %s: %w", got.IP, err)
		}
		s.logger.Warn("lease vetoed", zap.String("mac", key), zap.String("ip", got.IP.String()))
		return s.nak(req), nil
	}
	s.logger.Info("leased address", zap.String("mac", key), zap.String("ip", got.IP.String()))

	resp := s.reply(req, dhcp4.MsgAck)
	resp.YourAddr = got.IP.To4()
	s.fill(req, resp)
	return resp, nil
}

// handleRelease tears down a lease at the client's request. RELEASE
// has no reply; failures are only logged.
func (s *SubnetServer) handleRelease(req *Request) {
	src := req.Packet.HardwareAddr
	key := src.String()
	ciaddr := req.Packet.ClientAddr

	l, ok := s.leases[key]
	if !ok || !ciaddr.Equal(l.IP) {
		s.logger.Warn("tried to release unleased address",
			zap.String("mac", key), zap.String("ip", ciaddr.String()))
		return
	}
	delete(s.leases, key)
	if err := s.pool.Put(l.IP); err != nil {
		s.logger.Error("failed to restore released address", zap.Error(err))
		return
	}
	s.coord.mobile.Clear(src)
	s.logger.Info("released address", zap.String("mac", key), zap.String("ip", ciaddr.String()))
}

// Leases is the number of active leases, for status reporting.
func (s *SubnetServer) Leases() int {
	return len(s.leases)
}

// Available is the number of addresses left in the pool.
func (s *SubnetServer) Available() int {
	return s.pool.Size()
}
