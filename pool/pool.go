package pool

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
)

// Errors returned by pool operations.
var (
	// ErrBadRange is returned when a pool is constructed with an
	// unusable first/last range.
	ErrBadRange = errors.New("bad first/last range")
	// ErrInvalidAddress is returned when an address does not belong to
	// the pool, or is not in the state the operation expects.
	ErrInvalidAddress = errors.New("invalid address for this pool")
	// ErrAlreadyAvailable is returned by Put for an address that was
	// never withdrawn. Restoring such an address would corrupt the
	// pool accounting, so callers should treat it as an internal
	// consistency failure.
	ErrAlreadyAvailable = errors.New("address is already available")
	// ErrOutOfRange is returned by Nth when the index is not smaller
	// than Size.
	ErrOutOfRange = errors.New("index out of range")
)

// Pool is a subnet-based address pool. It hands out host addresses
// between the first and last usable offsets of one IPv4 network,
// tracking which addresses are currently withdrawn.
//
// Pool is not safe for concurrent use; the owning server serializes
// access.
type Pool struct {
	network  net.IP
	hostSize uint
	first    uint32
	last     uint32
	mask     net.IPMask

	removed map[uint32]struct{}
}

// New builds a pool over the host offsets [first, last] of network.
// Use MaxOffset to extend the range to the end of the host space, or
// NewWithCount to size it by address count.
func New(network *net.IPNet, first, last int) (*Pool, error) {
	if network == nil {
		return nil, fmt.Errorf("no network given: %w", ErrBadRange)
	}
	base := network.IP.To4()
	if base == nil {
		return nil, fmt.Errorf("not an IPv4 network %s: %w", network, ErrBadRange)
	}
	ones, bits := network.Mask.Size()
	if ones == 0 && bits == 0 {
		return nil, fmt.Errorf("non-contiguous mask on %s: %w", network, ErrBadRange)
	}
	hostSize := uint(32 - ones)

	if first == 0 {
		return nil, fmt.Errorf("cannot allocate the 0th address: %w", ErrBadRange)
	}
	if first < 0 || last < first {
		return nil, fmt.Errorf("empty range %d-%d: %w", first, last, ErrBadRange)
	}

	p := &Pool{
		network:  base,
		hostSize: hostSize,
		first:    uint32(first),
		last:     uint32(last),
		mask:     network.Mask,
		removed:  make(map[uint32]struct{}),
	}

	if !p.Contains(p.addr(p.last)) {
		return nil, fmt.Errorf("last address %s outside %s: %w", p.addr(p.last), network, ErrBadRange)
	}
	return p, nil
}

// NewWithCount builds a pool of count addresses starting at the
// first'th host offset of network.
func NewWithCount(network *net.IPNet, first, count int) (*Pool, error) {
	if count <= 0 {
		return nil, fmt.Errorf("need a positive address count, got %d: %w", count, ErrBadRange)
	}
	return New(network, first, first+count-1)
}

// MaxOffset is the last usable host offset of network, excluding the
// broadcast address.
func MaxOffset(network *net.IPNet) int {
	ones, _ := network.Mask.Size()
	return (1 << uint(32-ones)) - 2
}

func (p *Pool) offset(ip net.IP) (uint32, bool) {
	v4 := ip.To4()
	if v4 == nil {
		return 0, false
	}
	n := binary.BigEndian.Uint32(v4)
	mask := uint32(1)<<p.hostSize - 1
	if n&^mask != binary.BigEndian.Uint32(p.network)&^mask {
		return 0, false
	}
	return n & mask, true
}

func (p *Pool) addr(offset uint32) net.IP {
	buff := make(net.IP, net.IPv4len)
	binary.BigEndian.PutUint32(buff, binary.BigEndian.Uint32(p.network)|offset)
	return buff
}

// Contains reports whether ip is currently available from this pool.
func (p *Pool) Contains(ip net.IP) bool {
	offset, ok := p.offset(ip)
	if !ok {
		return false
	}
	if _, withdrawn := p.removed[offset]; withdrawn {
		return false
	}
	if offset == uint32(1)<<p.hostSize-1 {
		return false // broadcast
	}
	return offset >= p.first && offset <= p.last
}

// Take withdraws ip from the pool.
func (p *Pool) Take(ip net.IP) error {
	if !p.Contains(ip) {
		return fmt.Errorf("%s not in this pool: %w", ip, ErrInvalidAddress)
	}
	offset, _ := p.offset(ip)
	p.removed[offset] = struct{}{}
	return nil
}

// Put restores a previously withdrawn ip to the pool.
func (p *Pool) Put(ip net.IP) error {
	offset, ok := p.offset(ip)
	if ok {
		if _, withdrawn := p.removed[offset]; withdrawn {
			delete(p.removed, offset)
			return nil
		}
	}
	if p.Contains(ip) {
		return fmt.Errorf("%s: %w", ip, ErrAlreadyAvailable)
	}
	return fmt.Errorf("%s does not belong in this pool: %w", ip, ErrInvalidAddress)
}

// Withdrawn reports whether ip is currently withdrawn from this pool.
func (p *Pool) Withdrawn(ip net.IP) bool {
	offset, ok := p.offset(ip)
	if !ok {
		return false
	}
	_, withdrawn := p.removed[offset]
	return withdrawn
}

// Count is the total number of addresses the pool was built over,
// withdrawn or not.
func (p *Pool) Count() int {
	return int(p.last - p.first + 1)
}

// Size is the number of addresses currently available.
func (p *Pool) Size() int {
	return p.Count() - len(p.removed)
}

// Nth returns the index'th available address. The enumeration order
// depends on the history of withdrawals, so callers must not assume a
// given index is stable across mutations; it exists to pick some
// available address, usually Nth(0).
func (p *Pool) Nth(index int) (net.IP, error) {
	if index < 0 || index >= p.Size() {
		return nil, fmt.Errorf("index %d with %d available: %w", index, p.Size(), ErrOutOfRange)
	}

	// Skipping ahead by the number of withdrawn addresses usually
	// lands near the first free one.
	c := p.first + uint32(len(p.removed))
	for c > p.last {
		c -= uint32(p.Count())
	}
	for {
		if _, withdrawn := p.removed[c]; !withdrawn {
			index--
			if index < 0 {
				return p.addr(c), nil
			}
		}
		c++
		if c > p.last {
			c -= uint32(p.Count())
		}
	}
}

// Network is the pool's network base address.
func (p *Pool) Network() net.IP {
	return p.network
}

// Mask is the pool's subnet mask.
func (p *Pool) Mask() net.IPMask {
	return p.mask
}

func (p *Pool) String() string {
	return fmt.Sprintf("<Addresses from %s to %s>", p.addr(p.first), p.addr(p.last))
}
