package kv

import (
	"context"
	"testing"

	"github.com/zkiotchain/zkiot/apierror"
	"github.com/zkiotchain/zkiot/testing/assert"
	"github.com/zkiotchain/zkiot/testing/require"
	"github.com/zkiotchain/zkiot/types"
)

func testDevice(id string) *types.Device {
	return &types.Device{
		DeviceID:         id,
		Name:             "hall sensor",
		Kind:             "temperature",
		PublicCommitment: [32]byte{0xaa, 0xbb},
		RegisteredAt:     1700000000,
		Active:           true,
	}
}

func TestSaveDevice_RoundTrip(t *testing.T) {
	s := setupDB(t)
	ctx := context.Background()

	saved := testDevice("dev-001")
	require.NoError(t, s.SaveDevice(ctx, saved))

	got, err := s.Device(ctx, "dev-001")
	require.NoError(t, err)
	assert.DeepEqual(t, saved, got)

	exists, err := s.HasDevice(ctx, "dev-001")
	require.NoError(t, err)
	assert.Equal(t, true, exists)
}

func TestSaveDevice_RejectsDuplicate(t *testing.T) {
	s := setupDB(t)
	ctx := context.Background()

	require.NoError(t, s.SaveDevice(ctx, testDevice("dev-001")))
	err := s.SaveDevice(ctx, testDevice("dev-001"))
	assert.Equal(t, apierror.CodeDeviceExists, apierror.CodeOf(err))
	assert.Equal(t, true, apierror.IsKind(err, apierror.ConflictState))
}

func TestDevice_Unknown(t *testing.T) {
	s := setupDB(t)
	ctx := context.Background()

	_, err := s.Device(ctx, "ghost")
	assert.Equal(t, apierror.CodeUnknownDevice, apierror.CodeOf(err))

	exists, err := s.HasDevice(ctx, "ghost")
	require.NoError(t, err)
	assert.Equal(t, false, exists)
}

func TestDevices_ListsAll(t *testing.T) {
	s := setupDB(t)
	ctx := context.Background()

	for _, id := range []string{"dev-002", "dev-001", "dev-003"} {
		require.NoError(t, s.SaveDevice(ctx, testDevice(id)))
	}
	devices, err := s.Devices(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, len(devices))
	// Bolt iterates keys in lexical order.
	assert.Equal(t, "dev-001", devices[0].DeviceID)
	assert.Equal(t, "dev-003", devices[2].DeviceID)
}

func TestSetDeviceActive(t *testing.T) {
	s := setupDB(t)
	ctx := context.Background()

	require.NoError(t, s.SaveDevice(ctx, testDevice("dev-001")))
	require.NoError(t, s.SetDeviceActive(ctx, "dev-001", false))

	got, err := s.Device(ctx, "dev-001")
	require.NoError(t, err)
	assert.Equal(t, false, got.Active)

	err = s.SetDeviceActive(ctx, "ghost", false)
	assert.Equal(t, apierror.CodeUnknownDevice, apierror.CodeOf(err))
}

func TestRecordAuthentication_Monotonic(t *testing.T) {
	s := setupDB(t)
	ctx := context.Background()

	require.NoError(t, s.SaveDevice(ctx, testDevice("dev-001")))
	require.NoError(t, s.RecordAuthentication(ctx, "dev-001", 1700000100))
	require.NoError(t, s.RecordAuthentication(ctx, "dev-001", 1700000050))

	got, err := s.Device(ctx, "dev-001")
	require.NoError(t, err)
	assert.Equal(t, uint64(1700000100), got.LastAuthenticatedAt)
}

func TestBumpDeviceSubmissions(t *testing.T) {
	s := setupDB(t)
	ctx := context.Background()

	require.NoError(t, s.SaveDevice(ctx, testDevice("dev-001")))
	total, err := s.BumpDeviceSubmissions(ctx, "dev-001")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), total)
	total, err = s.BumpDeviceSubmissions(ctx, "dev-001")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), total)
}

func TestCommitment_ExposesRegistrationState(t *testing.T) {
	s := setupDB(t)
	ctx := context.Background()

	device := testDevice("dev-001")
	require.NoError(t, s.SaveDevice(ctx, device))

	commitment, active, err := s.Commitment(ctx, "dev-001")
	require.NoError(t, err)
	assert.Equal(t, device.PublicCommitment, commitment)
	assert.Equal(t, true, active)

	require.NoError(t, s.SetDeviceActive(ctx, "dev-001", false))
	_, active, err = s.Commitment(ctx, "dev-001")
	require.NoError(t, err)
	assert.Equal(t, false, active)

	_, _, err = s.Commitment(ctx, "ghost")
	assert.Equal(t, true, apierror.IsKind(err, apierror.NotFound))
}
