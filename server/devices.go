package server

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/zkiotchain/zkiot/apierror"
	"github.com/zkiotchain/zkiot/events"
	"github.com/zkiotchain/zkiot/types"
	"github.com/zkiotchain/zkiot/zkp"
	"go.opencensus.io/trace"
)

// RegisterDevice derives the commitment for the supplied secret and
// creates the device record. The secret itself is discarded.
func (s *Service) RegisterDevice(ctx context.Context, req *RegisterDeviceRequest) (*DeviceResponse, error) {
	ctx, span := trace.StartSpan(ctx, "server.RegisterDevice")
	defer span.End()
	requestsTotal.WithLabelValues("RegisterDevice").Inc()

	if err := s.validate(req); err != nil {
		return nil, s.fail("RegisterDevice", err)
	}
	commitment := zkp.Commitment(req.DeviceID, zkp.SecretHash([]byte(req.Secret)))
	device := &types.Device{
		DeviceID:         req.DeviceID,
		Name:             req.Name,
		Kind:             req.Kind,
		PublicCommitment: commitment,
		RegisteredAt:     uint64(s.now().Unix()),
		Active:           true,
	}
	if err := s.cfg.Store.SaveDevice(ctx, device); err != nil {
		return nil, s.fail("RegisterDevice", err)
	}
	s.emit(events.DeviceRegistered, &events.DeviceRegisteredData{
		DeviceID:   device.DeviceID,
		Commitment: hexutil.Encode(commitment[:]),
		Scheme:     string(s.cfg.ZKP.Scheme()),
	})
	log.WithField("deviceID", device.DeviceID).Info("Registered device")
	return deviceResponse(device), nil
}

// AuthenticateDevice verifies a proof of secret knowledge, enforcing
// the per-device attempt limit before any cryptography runs.
func (s *Service) AuthenticateDevice(ctx context.Context, req *AuthenticateDeviceRequest) (*AuthResponse, error) {
	ctx, span := trace.StartSpan(ctx, "server.AuthenticateDevice")
	defer span.End()
	requestsTotal.WithLabelValues("AuthenticateDevice").Inc()

	if err := s.validate(req); err != nil {
		return nil, s.fail("AuthenticateDevice", err)
	}
	if s.authLimiter.Remaining(req.DeviceID) < 1 {
		authRateLimited.Inc()
		return nil, s.fail("AuthenticateDevice", apierror.Newf(apierror.Unauthenticated, apierror.CodeRateLimited,
			"too many authentication attempts for device %s", req.DeviceID))
	}
	s.authLimiter.Add(req.DeviceID, 1)

	proof, err := s.buildProof(req)
	if err != nil {
		return nil, s.fail("AuthenticateDevice", err)
	}
	if err := s.cfg.ZKP.Verify(ctx, proof); err != nil {
		return nil, s.fail("AuthenticateDevice", err)
	}
	at := uint64(s.now().Unix())
	if err := s.cfg.Store.RecordAuthentication(ctx, req.DeviceID, at); err != nil {
		return nil, s.fail("AuthenticateDevice", err)
	}
	s.emit(events.DeviceAuthenticated, &events.DeviceAuthenticatedData{
		DeviceID:        req.DeviceID,
		AuthenticatedAt: at,
	})
	log.WithField("deviceID", req.DeviceID).Debug("Device authenticated")
	return &AuthResponse{OK: true, At: at}, nil
}

func (s *Service) buildProof(req *AuthenticateDeviceRequest) (*zkp.Proof, error) {
	commitment, err := decodeHash32("commitment", req.Commitment)
	if err != nil {
		return nil, err
	}
	response, err := decodeHash32("response", req.Response)
	if err != nil {
		return nil, err
	}
	nonceRaw, err := decodeFixedHex("nonce", req.Nonce, zkp.NonceLength)
	if err != nil {
		return nil, err
	}
	var nonce [16]byte
	copy(nonce[:], nonceRaw)
	scheme := zkp.SchemeName(req.Scheme)
	if scheme == "" {
		scheme = zkp.SchemeSimple
	}
	return &zkp.Proof{
		Scheme:     scheme,
		DeviceID:   req.DeviceID,
		Commitment: commitment,
		Response:   response,
		Nonce:      nonce,
		Timestamp:  req.Timestamp,
	}, nil
}

// SubmitData queues one telemetry payload for the next batch.
func (s *Service) SubmitData(ctx context.Context, req *SubmitDataRequest) (*SubmitDataResponse, error) {
	ctx, span := trace.StartSpan(ctx, "server.SubmitData")
	defer span.End()
	requestsTotal.WithLabelValues("SubmitData").Inc()

	if err := s.validate(req); err != nil {
		return nil, s.fail("SubmitData", err)
	}
	datum, err := s.cfg.Anchor.Ingest(ctx, req.DeviceID, req.DataType, req.Payload)
	if err != nil {
		return nil, s.fail("SubmitData", err)
	}
	count, err := s.cfg.Store.PendingCount(ctx)
	if err != nil {
		return nil, s.fail("SubmitData", err)
	}
	return &SubmitDataResponse{
		Accepted:     true,
		DataID:       strconv.FormatUint(datum.Seq, 10),
		LeafHash:     hexutil.Encode(datum.LeafHash[:]),
		PendingCount: count,
	}, nil
}

// PendingData lists the records awaiting the next batch, oldest first.
func (s *Service) PendingData(ctx context.Context) (*PendingDataResponse, error) {
	ctx, span := trace.StartSpan(ctx, "server.PendingData")
	defer span.End()
	requestsTotal.WithLabelValues("PendingData").Inc()

	pending, err := s.cfg.Store.PendingOrdered(ctx)
	if err != nil {
		return nil, s.fail("PendingData", err)
	}
	resp := &PendingDataResponse{Count: len(pending), Items: make([]*PendingDatumResponse, 0, len(pending))}
	for _, datum := range pending {
		resp.Items = append(resp.Items, &PendingDatumResponse{
			Seq:         datum.Seq,
			DeviceID:    datum.DeviceID,
			LeafHash:    hexutil.Encode(datum.LeafHash[:]),
			SubmittedAt: datum.SubmittedAt,
			Payload:     json.RawMessage(datum.Payload),
		})
	}
	return resp, nil
}

// GetDevice returns one device record.
func (s *Service) GetDevice(ctx context.Context, deviceID string) (*DeviceResponse, error) {
	ctx, span := trace.StartSpan(ctx, "server.GetDevice")
	defer span.End()
	requestsTotal.WithLabelValues("GetDevice").Inc()

	device, err := s.cfg.Store.Device(ctx, deviceID)
	if err != nil {
		return nil, s.fail("GetDevice", err)
	}
	return deviceResponse(device), nil
}

// ListDevices returns every registered device.
func (s *Service) ListDevices(ctx context.Context) ([]*DeviceResponse, error) {
	ctx, span := trace.StartSpan(ctx, "server.ListDevices")
	defer span.End()
	requestsTotal.WithLabelValues("ListDevices").Inc()

	devices, err := s.cfg.Store.Devices(ctx)
	if err != nil {
		return nil, s.fail("ListDevices", err)
	}
	resp := make([]*DeviceResponse, 0, len(devices))
	for _, device := range devices {
		resp = append(resp, deviceResponse(device))
	}
	return resp, nil
}

// ListSchemes reports the declared proof schemes and the active one.
func (s *Service) ListSchemes(ctx context.Context) (*SchemesResponse, error) {
	ctx, span := trace.StartSpan(ctx, "server.ListSchemes")
	defer span.End()
	requestsTotal.WithLabelValues("ListSchemes").Inc()

	declared := []zkp.SchemeName{zkp.SchemeSimple, zkp.SchemeSnark, zkp.SchemeStark}
	resp := &SchemesResponse{Active: string(s.cfg.ZKP.Scheme())}
	for _, name := range declared {
		_, err := zkp.ForName(name)
		resp.Schemes = append(resp.Schemes, &SchemeInfo{Name: string(name), Implemented: err == nil})
	}
	return resp, nil
}

func deviceResponse(d *types.Device) *DeviceResponse {
	return &DeviceResponse{
		DeviceID:            d.DeviceID,
		Name:                d.Name,
		Kind:                d.Kind,
		PublicCommitment:    hexutil.Encode(d.PublicCommitment[:]),
		RegisteredAt:        d.RegisteredAt,
		LastAuthenticatedAt: d.LastAuthenticatedAt,
		Active:              d.Active,
		TotalDataSubmitted:  d.TotalDataSubmitted,
	}
}
