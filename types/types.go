package types

import (
	"database/sql/driver"
	"fmt"
	"net"
	"strings"
)

// IPNet is net.IPNet with the implementation of the Valuer and Scanner interface.
type IPNet net.IPNet

// Value implements the database/sql/driver Valuer interface.
func (i IPNet) Value() (driver.Value, error) {
	return driver.Value(i.String()), nil
}

// Scan implements the database/sql Scanner interface.
func (i *IPNet) Scan(src interface{}) error {
	var ipNet *IPNet
	var err error
	switch src := src.(type) {
	case string:
		ipNet, err = ParseCIDR(src)
	case []uint8:
		ipNet, err = ParseCIDR(fmt.Sprintf("%s", src))
	default:
		return fmt.Errorf("incompatible type for IPNet: %T", src)
	}
	if err != nil {
		return err
	}
	*i = *ipNet
	return nil
}

func (i *IPNet) String() string {
	ipNet := net.IPNet(*i)
	return ipNet.String()
}

// MarshalYAML is
func (i IPNet) MarshalYAML() (interface{}, error) {
	return i.String(), nil
}

// UnmarshalYAML is
func (i *IPNet) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var buff string
	if err := unmarshal(&buff); err != nil {
		return err
	}
	tmp, err := ParseCIDR(buff)
	if err != nil {
		return fmt.Errorf("failed to unmarshal IPNet: input=\"%s\"", buff)
	}
	*i = *tmp
	return nil
}

// IP is net.IP with the implementation of the Valuer and Scanner interface.
type IP net.IP

// Value implements the database/sql/driver Valuer interface.
func (i IP) Value() (driver.Value, error) {
	return driver.Value(i.String()), nil
}

// Scan implements the database/sql Scanner interface.
func (i *IP) Scan(src interface{}) error {
	var ip *IP
	var err error
	switch src := src.(type) {
	case nil:
		ip = nil
	case string:
		ip, err = ParseIP(src)
	case []uint8:
		ip, err = ParseIP(fmt.Sprintf("%s", src))
	default:
		return fmt.Errorf("incompatible type for IP: %T", src)
	}
	if err != nil {
		return err
	}
	*i = *ip
	return nil
}

func (i IP) String() string {
	return net.IP(i).String()
}

// MarshalYAML is
func (i IP) MarshalYAML() (interface{}, error) {
	return net.IP(i).String(), nil
}

// UnmarshalYAML is
func (i *IP) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var buff string
	if err := unmarshal(&buff); err != nil {
		return err
	}
	tmp, err := ParseIP(buff)
	if err != nil {
		return fmt.Errorf("failed to unmarshal IP: input=\"%s\"", buff)
	}
	*i = *tmp
	return nil
}

// HardwareAddr is net.HardwareAddr with the implementation of the Valuer and Scanner interface.
type HardwareAddr net.HardwareAddr

// Value implements the database/sql/driver Valuer interface.
func (h HardwareAddr) Value() (driver.Value, error) {
	return driver.Value(h.String()), nil
}

// Scan implements the database/sql Scanner interface.
func (h *HardwareAddr) Scan(src interface{}) error {
	var mac *HardwareAddr
	var err error
	switch src := src.(type) {
	case string:
		mac, err = ParseMAC(src)
	case []uint8:
		mac, err = ParseMAC(fmt.Sprintf("%s", src))
	default:
		return fmt.Errorf("incompatible type for HardwareAddr: %T", src)
	}
	if err != nil {
		return err
	}
	*h = *mac
	return nil
}

func (h HardwareAddr) String() string {
	return net.HardwareAddr(h).String()
}

// DPID is an OpenFlow datapath identifier naming one attachment switch.
type DPID uint64

// Value implements the database/sql/driver Valuer interface.
func (d DPID) Value() (driver.Value, error) {
	return driver.Value(d.String()), nil
}

// Scan implements the database/sql Scanner interface.
func (d *DPID) Scan(src interface{}) error {
	var dpid *DPID
	var err error
	switch src := src.(type) {
	case string:
		dpid, err = ParseDPID(src)
	case []uint8:
		dpid, err = ParseDPID(fmt.Sprintf("%s", src))
	case int64:
		v := DPID(src)
		dpid = &v
	default:
		return fmt.Errorf("incompatible type for DPID: %T", src)
	}
	if err != nil {
		return err
	}
	*d = *dpid
	return nil
}

func (d DPID) String() string {
	buff := fmt.Sprintf("%016x", uint64(d))
	words := make([]string, 0, 8)
	for i := 0; i < len(buff); i += 2 {
		words = append(words, buff[i:i+2])
	}
	return strings.Join(words, "-")
}

// MarshalYAML is
func (d DPID) MarshalYAML() (interface{}, error) {
	return uint64(d), nil
}

// UnmarshalYAML is
func (d *DPID) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var buff uint64
	if err := unmarshal(&buff); err == nil {
		*d = DPID(buff)
		return nil
	}
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	tmp, err := ParseDPID(s)
	if err != nil {
		return fmt.Errorf("failed to unmarshal DPID: input=\"%s\"", s)
	}
	*d = *tmp
	return nil
}

// ParseCIDR is
func ParseCIDR(s string) (*IPNet, error) {
	_, n, err := net.ParseCIDR(s)
	if err != nil {
		return nil, err
	}
	ipNet := IPNet(*n)
	return &ipNet, nil
}

// ParseIP is
func ParseIP(s string) (*IP, error) {
	i := net.ParseIP(s)
	if i == nil {
		return nil, fmt.Errorf("failed to parse IP: input=\"%s\"", s)
	}
	ip := IP(i)
	return &ip, nil
}

// ParseMAC is
func ParseMAC(s string) (*HardwareAddr, error) {
	m, err := net.ParseMAC(s)
	if err != nil {
		return nil, err
	}
	mac := HardwareAddr(m)
	return &mac, nil
}

// ParseDPID parses a datapath id in either "00-00-00-00-00-00-00-01" or
// plain hex form.
func ParseDPID(s string) (*DPID, error) {
	buff := strings.NewReplacer("-", "", ":", "").Replace(s)
	var v uint64
	if _, err := fmt.Sscanf(buff, "%x", &v); err != nil {
		return nil, fmt.Errorf("failed to parse DPID: input=\"%s\"", s)
	}
	dpid := DPID(v)
	return &dpid, nil
}
