package server

import (
	"context"
	"time"

	"github.com/zkiotchain/zkiot/apierror"
	"github.com/zkiotchain/zkiot/events"
	"github.com/zkiotchain/zkiot/presence"
	"go.opencensus.io/trace"
)

const defaultEventLimit = 50

// Heartbeat records a liveness ping for a registered device and returns
// its presence class.
func (s *Service) Heartbeat(ctx context.Context, deviceID string) (*PresenceResponse, error) {
	ctx, span := trace.StartSpan(ctx, "server.Heartbeat")
	defer span.End()
	requestsTotal.WithLabelValues("Heartbeat").Inc()

	exists, err := s.cfg.Store.HasDevice(ctx, deviceID)
	if err != nil {
		return nil, s.fail("Heartbeat", err)
	}
	if !exists {
		return nil, s.fail("Heartbeat", apierror.Newf(apierror.NotFound, apierror.CodeUnknownDevice,
			"device %s is not registered", deviceID))
	}
	record := s.cfg.Presence.Heartbeat(deviceID, time.Time{})
	return presenceResponse(record), nil
}

// DevicePresence reports one device's presence class without recording
// a heartbeat.
func (s *Service) DevicePresence(ctx context.Context, deviceID string) (*PresenceResponse, error) {
	ctx, span := trace.StartSpan(ctx, "server.DevicePresence")
	defer span.End()
	requestsTotal.WithLabelValues("DevicePresence").Inc()

	exists, err := s.cfg.Store.HasDevice(ctx, deviceID)
	if err != nil {
		return nil, s.fail("DevicePresence", err)
	}
	if !exists {
		return nil, s.fail("DevicePresence", apierror.Newf(apierror.NotFound, apierror.CodeUnknownDevice,
			"device %s is not registered", deviceID))
	}
	return presenceResponse(s.cfg.Presence.DeviceStatus(deviceID)), nil
}

// PresenceList reports every tracked device's presence class.
func (s *Service) PresenceList(ctx context.Context) ([]*PresenceResponse, error) {
	ctx, span := trace.StartSpan(ctx, "server.PresenceList")
	defer span.End()
	requestsTotal.WithLabelValues("PresenceList").Inc()

	records := s.cfg.Presence.Snapshot()
	resp := make([]*PresenceResponse, 0, len(records))
	for _, record := range records {
		resp = append(resp, presenceResponse(record))
	}
	return resp, nil
}

// RecentEvents returns the newest events from the bus history ring. A
// non-positive limit falls back to the default page size.
func (s *Service) RecentEvents(ctx context.Context, limit int) ([]*events.Event, error) {
	ctx, span := trace.StartSpan(ctx, "server.RecentEvents")
	defer span.End()
	requestsTotal.WithLabelValues("RecentEvents").Inc()

	if limit <= 0 {
		limit = defaultEventLimit
	}
	return s.cfg.Bus.Recent(limit), nil
}

func presenceResponse(r *presence.Record) *PresenceResponse {
	resp := &PresenceResponse{DeviceID: r.DeviceID, Status: string(r.Status)}
	if !r.LastHeartbeat.IsZero() {
		resp.LastHeartbeat = uint64(r.LastHeartbeat.Unix())
	}
	return resp
}
