package kv

import (
	"context"

	"github.com/pkg/errors"
	"github.com/zkiotchain/zkiot/apierror"
	"github.com/zkiotchain/zkiot/types"
	bolt "go.etcd.io/bbolt"
	"go.opencensus.io/trace"
)

// SaveDevice persists a new device record. Re-registering an existing
// device id fails with DEVICE_EXISTS so commitments stay immutable.
func (s *Store) SaveDevice(ctx context.Context, device *types.Device) error {
	_, span := trace.StartSpan(ctx, "zkiotDB.SaveDevice")
	defer span.End()

	if device == nil || device.DeviceID == "" {
		return errors.New("nil or unkeyed device record")
	}
	enc, err := encode(device)
	if err != nil {
		return err
	}
	return s.update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(devicesBucket)
		if existing := bkt.Get([]byte(device.DeviceID)); existing != nil {
			return apierror.Newf(apierror.ConflictState, apierror.CodeDeviceExists, "device %s already registered", device.DeviceID)
		}
		return bkt.Put([]byte(device.DeviceID), enc)
	})
}

// Device retrieves a device record by id.
func (s *Store) Device(ctx context.Context, deviceID string) (*types.Device, error) {
	_, span := trace.StartSpan(ctx, "zkiotDB.Device")
	defer span.End()

	device := &types.Device{}
	err := s.view(func(tx *bolt.Tx) error {
		enc := tx.Bucket(devicesBucket).Get([]byte(deviceID))
		if enc == nil {
			return apierror.Newf(apierror.NotFound, apierror.CodeUnknownDevice, "device %s is not registered", deviceID)
		}
		return decode(enc, device)
	})
	if err != nil {
		return nil, err
	}
	return device, nil
}

// HasDevice reports whether a device id is registered.
func (s *Store) HasDevice(ctx context.Context, deviceID string) (bool, error) {
	_, span := trace.StartSpan(ctx, "zkiotDB.HasDevice")
	defer span.End()

	var exists bool
	err := s.view(func(tx *bolt.Tx) error {
		exists = tx.Bucket(devicesBucket).Get([]byte(deviceID)) != nil
		return nil
	})
	return exists, err
}

// Devices returns every registered device in key order.
func (s *Store) Devices(ctx context.Context) ([]*types.Device, error) {
	_, span := trace.StartSpan(ctx, "zkiotDB.Devices")
	defer span.End()

	var devices []*types.Device
	err := s.view(func(tx *bolt.Tx) error {
		return tx.Bucket(devicesBucket).ForEach(func(_, enc []byte) error {
			device := &types.Device{}
			if err := decode(enc, device); err != nil {
				return err
			}
			devices = append(devices, device)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return devices, nil
}

// SetDeviceActive flips a device's active flag.
func (s *Store) SetDeviceActive(ctx context.Context, deviceID string, active bool) error {
	_, span := trace.StartSpan(ctx, "zkiotDB.SetDeviceActive")
	defer span.End()

	return s.mutateDevice(deviceID, func(device *types.Device) error {
		device.Active = active
		return nil
	})
}

// RecordAuthentication advances last_authenticated_at. The timestamp
// only moves forward; an older value leaves the record unchanged.
func (s *Store) RecordAuthentication(ctx context.Context, deviceID string, at uint64) error {
	_, span := trace.StartSpan(ctx, "zkiotDB.RecordAuthentication")
	defer span.End()

	return s.mutateDevice(deviceID, func(device *types.Device) error {
		if at > device.LastAuthenticatedAt {
			device.LastAuthenticatedAt = at
		}
		return nil
	})
}

// BumpDeviceSubmissions increments the device's submission counter and
// returns the new total.
func (s *Store) BumpDeviceSubmissions(ctx context.Context, deviceID string) (uint64, error) {
	_, span := trace.StartSpan(ctx, "zkiotDB.BumpDeviceSubmissions")
	defer span.End()

	var total uint64
	err := s.mutateDevice(deviceID, func(device *types.Device) error {
		device.TotalDataSubmitted++
		total = device.TotalDataSubmitted
		return nil
	})
	return total, err
}

// Commitment resolves the registered commitment and active flag for the
// proof engine.
func (s *Store) Commitment(ctx context.Context, deviceID string) ([32]byte, bool, error) {
	device, err := s.Device(ctx, deviceID)
	if err != nil {
		return [32]byte{}, false, err
	}
	return device.PublicCommitment, device.Active, nil
}

// mutateDevice applies fn to the stored record inside one transaction,
// serializing concurrent read-modify-write cycles per device.
func (s *Store) mutateDevice(deviceID string, fn func(*types.Device) error) error {
	return s.update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(devicesBucket)
		enc := bkt.Get([]byte(deviceID))
		if enc == nil {
			return apierror.Newf(apierror.NotFound, apierror.CodeUnknownDevice, "device %s is not registered", deviceID)
		}
		device := &types.Device{}
		if err := decode(enc, device); err != nil {
			return err
		}
		if err := fn(device); err != nil {
			return err
		}
		updated, err := encode(device)
		if err != nil {
			return err
		}
		return bkt.Put([]byte(deviceID), updated)
	})
}
