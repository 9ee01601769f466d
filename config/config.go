package config

import (
	"errors"
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v2"

	"github.com/lovi-cloud/draco/types"
)

// Subnet is one subnet definition: the switches it is attached to,
// its network, the router (also the DHCP server's own address), the
// DNS server to hand out, and an optional first/last host-offset
// range.
type Subnet struct {
	ID       int          `yaml:"id"`
	Switches []types.DPID `yaml:"switches"`
	Network  types.IPNet  `yaml:"net"`
	Router   types.IP     `yaml:"router"`
	DNS      types.IP     `yaml:"dns"`
	Range    []int        `yaml:"range,omitempty"`
}

// Validate checks the fields a subnet definition cannot do without.
func (s Subnet) Validate() error {
	if len(s.Switches) == 0 {
		return errors.New("no switches")
	}
	if len(s.Network.IP) == 0 {
		return errors.New("no net")
	}
	if len(s.Router) == 0 {
		return errors.New("no router")
	}
	if len(s.DNS) == 0 {
		return errors.New("no dns")
	}
	if len(s.Range) > 2 {
		return fmt.Errorf("range has %d elements, want at most 2", len(s.Range))
	}
	return nil
}

// Config is draco config struct.
type Config struct {
	Subnets []Subnet `yaml:"subnets"`
}

// LoadConfig is
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	d := yaml.NewDecoder(f)

	var c Config
	err = d.Decode(&c)
	if err != nil {
		return nil, err
	}

	return &c, nil
}
