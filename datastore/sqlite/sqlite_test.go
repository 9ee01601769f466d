package sqlite

import (
	"context"
	"testing"
	"time"

	uuid "github.com/satori/go.uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lovi-cloud/draco/datastore"
	"github.com/lovi-cloud/draco/types"
)

func testDatastore(t *testing.T) datastore.Datastore {
	t.Helper()
	ds, err := New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		ds.Close()
	})
	return ds
}

func testRecord(t *testing.T, mac, ip, action string) datastore.LeaseEventRecord {
	t.Helper()
	m, err := types.ParseMAC(mac)
	require.NoError(t, err)
	i, err := types.ParseIP(ip)
	require.NoError(t, err)
	return datastore.LeaseEventRecord{
		UUID:       uuid.NewV4(),
		MACAddress: *m,
		IPAddress:  *i,
		DPID:       types.DPID(1),
		Port:       3,
		Action:     action,
		CreatedAt:  time.Date(2020, 7, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestRecordAndListLeaseEvents(t *testing.T) {
	ds := testDatastore(t)
	ctx := context.Background()

	first := testRecord(t, "ca:fe:00:00:00:01", "192.168.0.100", datastore.ActionRenew)
	second := testRecord(t, "ca:fe:00:00:00:01", "192.168.0.100", datastore.ActionExpire)
	other := testRecord(t, "ca:fe:00:00:00:02", "192.168.0.101", datastore.ActionRenew)

	require.NoError(t, ds.RecordLeaseEvent(ctx, first))
	require.NoError(t, ds.RecordLeaseEvent(ctx, second))
	require.NoError(t, ds.RecordLeaseEvent(ctx, other))

	got, err := ds.ListLeaseEvents(ctx, first.MACAddress)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, first.UUID, got[0].UUID)
	assert.Equal(t, "ca:fe:00:00:00:01", got[0].MACAddress.String())
	assert.Equal(t, "192.168.0.100", got[0].IPAddress.String())
	assert.Equal(t, types.DPID(1), got[0].DPID)
	assert.Equal(t, 3, got[0].Port)
	assert.Equal(t, datastore.ActionRenew, got[0].Action)
	assert.Equal(t, datastore.ActionExpire, got[1].Action)
	assert.True(t, got[0].ID < got[1].ID, "journal order")
}

func TestListLeaseEventsUnknownMAC(t *testing.T) {
	ds := testDatastore(t)

	m, err := types.ParseMAC("ca:fe:00:00:00:09")
	require.NoError(t, err)
	got, err := ds.ListLeaseEvents(context.Background(), *m)
	require.NoError(t, err)
	assert.Empty(t, got)
}
