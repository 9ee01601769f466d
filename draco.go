package draco

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lovi-cloud/draco/datastore"
	"github.com/lovi-cloud/draco/datastore/sqlite"
	"github.com/lovi-cloud/draco/dhcpd"
	"github.com/lovi-cloud/draco/dhcpd/godhcpd"
	"github.com/lovi-cloud/draco/types"
)

var (
	version  = "dev"
	revision = "unknown"
)

// staticTopology is the degenerate topology of a standalone binary:
// the switch set is fixed up front and always considered stable.
type staticTopology struct {
	switches []types.DPID
}

func (t staticTopology) WaitStable(ctx context.Context) error {
	return nil
}

func (t staticTopology) Switches(ctx context.Context) ([]types.DPID, error) {
	return t.switches, nil
}

// Run the draco
func Run(ctx context.Context) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}

	var (
		conf        string
		dsn         string
		iface       string
		attachments string
		switches    string
	)
	flags := flag.NewFlagSet(fmt.Sprintf("draco (v%s rev:%s)", version, revision), flag.ContinueOnError)
	flags.StringVar(&conf, "conf", "draco.yaml", "subnet configuration file")
	flags.StringVar(&dsn, "dsn", "file:draco.db?cache=shared", "sqlite3 dsn for the lease-event journal")
	flags.StringVar(&iface, "iface", "eth0", "draco listening interface")
	flags.StringVar(&attachments, "attachments", "eth0=1", "IFACE=DPID pairs mapping receive interfaces to attachment switches")
	flags.StringVar(&switches, "switches", "", "all known switch DPIDs; those unclaimed by any subnet become central")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}

	ip, _, err := getInterfaceAddress(iface)
	if err != nil {
		return err
	}
	attach, err := parseAttachments(attachments)
	if err != nil {
		return err
	}
	known, err := parseSwitches(switches)
	if err != nil {
		return err
	}

	ds, err := sqlite.New(ctx, dsn)
	if err != nil {
		return err
	}
	defer ds.Close()

	recorder := datastore.NewRecorder(ds, logger)
	coord := dhcpd.NewCoordinator(conf, staticTopology{switches: known}, logger, recorder)

	server, err := godhcpd.New(coord, ip, attach, logger)
	if err != nil {
		return err
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		logger.Info("starting coordinator", zap.String("conf", conf))
		return coord.Serve(ctx)
	})
	eg.Go(func() error {
		logger.Info("starting dhcpd", zap.String("addr", fmt.Sprintf("%s:67", ip)))
		return server.Serve(ctx)
	})

	return eg.Wait()
}

func getInterfaceAddress(name string) (net.IP, *net.IPNet, error) {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find interface %s: %w", name, err)
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get interface addresses %s: %w", name, err)
	}
	for _, addr := range addrs {
		ip, inet, err := net.ParseCIDR(addr.String())
		if err != nil {
			continue
		}
		if ip.To4() != nil {
			return ip, inet, nil
		}
	}

	return nil, nil, fmt.Errorf("failed to find interface address %s", name)
}

func parseAttachments(input string) (map[string]types.DPID, error) {
	attach := make(map[string]types.DPID)
	for _, pair := range strings.Split(input, ",") {
		if pair == "" {
			continue
		}
		words := strings.SplitN(pair, "=", 2)
		if len(words) != 2 {
			return nil, fmt.Errorf("invalid attachment %q, want IFACE=DPID", pair)
		}
		dpid, err := types.ParseDPID(words[1])
		if err != nil {
			return nil, err
		}
		attach[words[0]] = *dpid
	}
	return attach, nil
}

func parseSwitches(input string) ([]types.DPID, error) {
	if input == "" {
		return nil, nil
	}
	var known []types.DPID
	for _, word := range strings.Split(input, ",") {
		v, err := strconv.ParseUint(word, 0, 64)
		if err != nil {
			dpid, err := types.ParseDPID(word)
			if err != nil {
				return nil, fmt.Errorf("invalid switch %q: %w", word, err)
			}
			known = append(known, *dpid)
			continue
		}
		known = append(known, types.DPID(v))
	}
	return known, nil
}
