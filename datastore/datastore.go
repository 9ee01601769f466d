package datastore

import (
	"context"
	"time"

	uuid "github.com/satori/go.uuid"
	"go.uber.org/zap"

	"github.com/lovi-cloud/draco/dhcpd"
	"github.com/lovi-cloud/draco/types"
)

// Actions recorded in the lease-event journal.
const (
	ActionRenew  = "renew"
	ActionExpire = "expire"
)

// LeaseEventRecord is one journaled lease event. The journal is an
// append-only audit trail; it is never read back to rebuild lease
// state.
type LeaseEventRecord struct {
	ID         int                `db:"id"`
	UUID       uuid.UUID          `db:"uuid"`
	MACAddress types.HardwareAddr `db:"mac_address"`
	IPAddress  types.IP           `db:"ip_address"`
	DPID       types.DPID         `db:"dpid"`
	Port       int                `db:"port"`
	Action     string             `db:"action"`
	CreatedAt  time.Time          `db:"created_at"`
}

// Datastore is an interface for draco to journal lease events.
type Datastore interface {
	RecordLeaseEvent(ctx context.Context, record LeaseEventRecord) error
	ListLeaseEvents(ctx context.Context, mac types.HardwareAddr) ([]LeaseEventRecord, error)

	Close() error
}

// Recorder adapts a Datastore to the lease notification interface. It
// never vetoes; journal failures are logged and the grant proceeds.
type Recorder struct {
	ds     Datastore
	logger *zap.Logger
}

var _ dhcpd.Observer = &Recorder{}

// NewRecorder is
func NewRecorder(ds Datastore, logger *zap.Logger) *Recorder {
	return &Recorder{
		ds:     ds,
		logger: logger,
	}
}

// LeaseChanged implements dhcpd.Observer.
func (r *Recorder) LeaseChanged(ctx context.Context, ev dhcpd.LeaseEvent) dhcpd.Decision {
	action := ActionRenew
	if ev.Expire {
		action = ActionExpire
	}
	record := LeaseEventRecord{
		UUID:       uuid.NewV4(),
		MACAddress: types.HardwareAddr(ev.MAC),
		IPAddress:  types.IP(ev.IP),
		DPID:       ev.DPID,
		Port:       ev.Port,
		Action:     action,
		CreatedAt:  time.Now(),
	}
	if err := r.ds.RecordLeaseEvent(ctx, record); err != nil {
		r.logger.Warn("failed to journal lease event", zap.Error(err))
	}
	return dhcpd.Accept
}
