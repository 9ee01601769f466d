package godhcpd

import (
	"context"
	"fmt"
	"net"

	"go.uber.org/zap"
	"go.universe.tf/netboot/dhcp4"

	"github.com/lovi-cloud/draco/dhcpd"
	"github.com/lovi-cloud/draco/types"
)

// GoDHCPd receives DHCP messages on a UDP socket, tags them with the
// attachment switch configured for the receiving interface, and hands
// them to the coordinator. Interfaces without an attachment mapping
// are ignored. The receiving interface index stands in for the
// ingress port; a flow-redirect transport would supply the real one.
type GoDHCPd struct {
	handler     dhcpd.Handler
	addr        net.IP
	attachments map[string]types.DPID
	logger      *zap.Logger
}

// New is
func New(handler dhcpd.Handler, addr net.IP, attachments map[string]types.DPID, logger *zap.Logger) (dhcpd.Server, error) {
	return &GoDHCPd{
		handler:     handler,
		addr:        addr,
		attachments: attachments,
		logger:      logger,
	}, nil
}

// Serve serve dhcp daemon.
func (n *GoDHCPd) Serve(ctx context.Context) error {
	conn, err := dhcp4.NewConn(fmt.Sprintf("%s:67", n.addr))
	if err != nil {
		return fmt.Errorf("failed to create new connection: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		pkt, intf, err := conn.RecvDHCP()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			n.logger.Error("failed to receive dhcp request", zap.Error(err))
			continue
		}
		dpid, ok := n.attachments[intf.Name]
		if !ok {
			continue
		}

		req := &dhcpd.Request{
			Packet: pkt,
			DPID:   dpid,
			Port:   intf.Index,
		}
		resp := n.handler.HandleRequest(ctx, req)
		if resp == nil {
			continue
		}
		err = conn.SendDHCP(resp, intf)
		if err != nil {
			n.logger.Error("failed to send dhcp response", zap.Error(err))
			continue
		}
		n.logger.Info("sent DHCP response",
			zap.String("mac", pkt.HardwareAddr.String()),
			zap.String("ip", resp.YourAddr.String()))
	}
}

var _ dhcpd.Server = &GoDHCPd{}
