package dhcpd

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLivenessExpired(t *testing.T) {
	start := time.Date(2020, 7, 1, 0, 0, 0, 0, time.UTC)
	l := newLease(net.ParseIP("192.168.0.100"), time.Hour, start)

	assert.False(t, l.expired(start))
	assert.False(t, l.expired(start.Add(time.Hour)), "boundary is not yet expired")
	assert.True(t, l.expired(start.Add(time.Hour+time.Second)))
}

func TestLivenessRefresh(t *testing.T) {
	start := time.Date(2020, 7, 1, 0, 0, 0, 0, time.UTC)
	l := newLease(net.ParseIP("192.168.0.100"), time.Hour, start)

	l.refresh(start.Add(50 * time.Minute))
	assert.False(t, l.expired(start.Add(90*time.Minute)))
	assert.True(t, l.expired(start.Add(111*time.Minute)))
}

func TestMobileHostTable(t *testing.T) {
	tbl := NewMobileHostTable()
	mac := testMAC(t, "ca:fe:00:00:00:01")

	_, ok := tbl.Lookup(mac)
	assert.False(t, ok)

	tbl.Mark(mac, net.ParseIP("192.168.0.100"))
	ip, ok := tbl.Lookup(mac)
	assert.True(t, ok)
	assert.Equal(t, "192.168.0.100", ip.String())
	assert.Equal(t, 1, tbl.Len())

	tbl.Clear(mac)
	_, ok = tbl.Lookup(mac)
	assert.False(t, ok)

	// Clearing an unknown host must not blow up.
	tbl.Clear(testMAC(t, "ca:fe:00:00:00:02"))
}
