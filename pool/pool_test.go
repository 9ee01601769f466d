package pool

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustCIDR(t *testing.T, s string) *net.IPNet {
	t.Helper()
	_, n, err := net.ParseCIDR(s)
	require.NoError(t, err)
	return n
}

func TestNew(t *testing.T) {
	p, err := New(mustCIDR(t, "192.168.0.0/24"), 100, 198)
	require.NoError(t, err)
	assert.Equal(t, 99, p.Count())
	assert.Equal(t, 99, p.Size())
}

func TestNewBadRange(t *testing.T) {
	tests := []struct {
		name  string
		cidr  string
		first int
		last  int
	}{
		{"empty range", "192.168.0.0/24", 1, 0},
		{"inverted range", "192.168.0.0/24", 50, 10},
		{"zeroth address", "192.168.0.0/24", 0, 10},
		{"negative first", "192.168.0.0/24", -1, 10},
		{"last beyond host space", "192.168.0.0/24", 1, 255},
		{"last is broadcast", "192.168.0.0/24", 1, 255},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(mustCIDR(t, tt.cidr), tt.first, tt.last)
			assert.ErrorIs(t, err, ErrBadRange)
		})
	}
}

func TestNewWithCount(t *testing.T) {
	p, err := NewWithCount(mustCIDR(t, "10.0.0.0/24"), 1, 50)
	require.NoError(t, err)
	assert.Equal(t, 50, p.Size())
	assert.True(t, p.Contains(net.ParseIP("10.0.0.50")))
	assert.False(t, p.Contains(net.ParseIP("10.0.0.51")))

	_, err = NewWithCount(mustCIDR(t, "10.0.0.0/24"), 1, 0)
	assert.ErrorIs(t, err, ErrBadRange)
}

func TestMaxOffset(t *testing.T) {
	assert.Equal(t, 254, MaxOffset(mustCIDR(t, "192.168.0.0/24")))
	assert.Equal(t, 65534, MaxOffset(mustCIDR(t, "172.16.0.0/16")))
}

func TestContains(t *testing.T) {
	p, err := New(mustCIDR(t, "192.168.0.0/24"), 100, 198)
	require.NoError(t, err)

	assert.True(t, p.Contains(net.ParseIP("192.168.0.100")))
	assert.True(t, p.Contains(net.ParseIP("192.168.0.198")))
	assert.False(t, p.Contains(net.ParseIP("192.168.0.99")), "below first")
	assert.False(t, p.Contains(net.ParseIP("192.168.0.199")), "above last")
	assert.False(t, p.Contains(net.ParseIP("192.168.0.255")), "broadcast")
	assert.False(t, p.Contains(net.ParseIP("192.168.1.100")), "other network")
	assert.False(t, p.Contains(net.ParseIP("2001:db8::1")), "not v4")
}

func TestTakePut(t *testing.T) {
	p, err := New(mustCIDR(t, "192.168.0.0/24"), 100, 198)
	require.NoError(t, err)

	addr := net.ParseIP("192.168.0.150")
	require.NoError(t, p.Take(addr))
	assert.Equal(t, 98, p.Size())
	assert.False(t, p.Contains(addr))
	assert.True(t, p.Withdrawn(addr))

	// A second withdrawal of the same address must fail.
	assert.ErrorIs(t, p.Take(addr), ErrInvalidAddress)

	require.NoError(t, p.Put(addr))
	assert.Equal(t, 99, p.Size())
	assert.True(t, p.Contains(addr))
	assert.False(t, p.Withdrawn(addr))

	// A second restore must fail too.
	assert.ErrorIs(t, p.Put(addr), ErrAlreadyAvailable)
}

func TestPutForeignAddress(t *testing.T) {
	p, err := New(mustCIDR(t, "192.168.0.0/24"), 100, 198)
	require.NoError(t, err)

	assert.ErrorIs(t, p.Put(net.ParseIP("10.0.0.1")), ErrInvalidAddress)
	assert.ErrorIs(t, p.Put(net.ParseIP("192.168.0.50")), ErrInvalidAddress)
}

func TestNth(t *testing.T) {
	p, err := New(mustCIDR(t, "192.168.0.0/28"), 1, 10)
	require.NoError(t, err)

	// Every index yields a distinct available address.
	seen := make(map[string]struct{})
	for i := 0; i < p.Size(); i++ {
		addr, err := p.Nth(i)
		require.NoError(t, err)
		assert.True(t, p.Contains(addr))
		seen[addr.String()] = struct{}{}
	}
	assert.Len(t, seen, 10)

	_, err = p.Nth(10)
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = p.Nth(-1)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestNthSkipsWithdrawn(t *testing.T) {
	p, err := New(mustCIDR(t, "192.168.0.0/28"), 1, 10)
	require.NoError(t, err)

	for i := 0; i < 9; i++ {
		addr, err := p.Nth(0)
		require.NoError(t, err)
		require.NoError(t, p.Take(addr))
	}
	require.Equal(t, 1, p.Size())

	last, err := p.Nth(0)
	require.NoError(t, err)
	assert.True(t, p.Contains(last))
	require.NoError(t, p.Take(last))

	_, err = p.Nth(0)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestDrainAndRefill(t *testing.T) {
	p, err := New(mustCIDR(t, "192.168.0.0/24"), 100, 102)
	require.NoError(t, err)

	var taken []net.IP
	for p.Size() > 0 {
		addr, err := p.Nth(0)
		require.NoError(t, err)
		require.NoError(t, p.Take(addr))
		taken = append(taken, addr)
	}
	assert.Len(t, taken, 3)

	for _, addr := range taken {
		require.NoError(t, p.Put(addr))
	}
	assert.Equal(t, 3, p.Size())
}
