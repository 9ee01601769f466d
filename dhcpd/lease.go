package dhcpd

import (
	"net"
	"time"
)

// liveness tracks when a binding was last seen and how long it may go
// unseen before it is considered dead. The caller supplies the clock
// so expiry is testable.
type liveness struct {
	lastSeen time.Time
	interval time.Duration
}

func (l *liveness) refresh(now time.Time) {
	l.lastSeen = now
}

func (l liveness) expired(now time.Time) bool {
	return now.After(l.lastSeen.Add(l.interval))
}

// Lease is a confirmed, time-limited binding of a client to one
// address.
type Lease struct {
	IP net.IP
	liveness
}

func newLease(ip net.IP, interval time.Duration, now time.Time) *Lease {
	return &Lease{
		IP: ip,
		liveness: liveness{
			lastSeen: now,
			interval: interval,
		},
	}
}

func (l *Lease) String() string {
	return l.IP.String()
}
