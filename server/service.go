// Package server is the request facade over the coordinator's engines.
// Handlers validate input, translate between wire shapes and engine
// types, and hand the real work to the engine behind the Config. Every
// policy decision lives in the engines; nothing here mutates state
// directly except through them.
package server

import (
	"context"
	"encoding/json"
	"regexp"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-playground/validator/v10"
	"github.com/kevinms/leakybucket-go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/zkiotchain/zkiot/anchor"
	"github.com/zkiotchain/zkiot/apierror"
	"github.com/zkiotchain/zkiot/chain/registry"
	"github.com/zkiotchain/zkiot/config/params"
	"github.com/zkiotchain/zkiot/crosschain"
	"github.com/zkiotchain/zkiot/db"
	"github.com/zkiotchain/zkiot/events"
	"github.com/zkiotchain/zkiot/multisig"
	"github.com/zkiotchain/zkiot/presence"
	"github.com/zkiotchain/zkiot/types"
	"github.com/zkiotchain/zkiot/zkp"
)

var log = logrus.WithField("prefix", "server")

const (
	codeBadRequest = "BAD_REQUEST"
	codeInternal   = "INTERNAL"
)

var deviceIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Config carries every engine the facade composes. All engine fields
// are required.
type Config struct {
	Store      db.Database
	ZKP        *zkp.Engine
	Anchor     *anchor.Service
	CrossChain *crosschain.Service
	Multisig   *multisig.Service
	Presence   *presence.Service
	Bus        *events.Bus
	Registry   *registry.Registry
	// Now substitutes the clock in tests.
	Now func() time.Time
}

// Service exposes one method per API operation. Methods are safe for
// concurrent use; they hold no state beyond the validator and the
// per-device authentication limiter.
type Service struct {
	cfg         *Config
	now         func() time.Time
	validator   *validator.Validate
	authLimiter *leakybucket.Collector
}

// New wires the facade, registers the request validation rules and
// installs the multi-sig execution handler for device registration.
func New(ctx context.Context, cfg *Config) (*Service, error) {
	if cfg == nil || cfg.Store == nil || cfg.ZKP == nil || cfg.Anchor == nil || cfg.CrossChain == nil ||
		cfg.Multisig == nil || cfg.Presence == nil || cfg.Bus == nil || cfg.Registry == nil {
		return nil, errors.New("server requires the store, every engine, the bus and the registry")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	v := validator.New()
	if err := v.RegisterValidation("device_id", validDeviceID); err != nil {
		return nil, errors.Wrap(err, "could not register device id rule")
	}
	perMinute := params.Protocol().AuthRatePerMinute
	s := &Service{
		cfg:         cfg,
		now:         now,
		validator:   v,
		authLimiter: leakybucket.NewCollector(float64(perMinute)/60, perMinute, true),
	}
	cfg.Multisig.RegisterHandler(types.ProposalRegisterDevice, s.executeRegisterDevice)
	return s, nil
}

func validDeviceID(fl validator.FieldLevel) bool {
	return deviceIDPattern.MatchString(fl.Field().String())
}

// Start is a no-op; the facade owns no background work.
func (s *Service) Start() {}

// Stop is a no-op; requests carry their own contexts.
func (s *Service) Stop() error {
	return nil
}

// Status always reports healthy.
func (s *Service) Status() error {
	return nil
}

// executeRegisterDevice is the REGISTER_DEVICE proposal handler. The
// payload is a RegisterDeviceRequest document.
func (s *Service) executeRegisterDevice(ctx context.Context, payload []byte) (string, error) {
	req := &RegisterDeviceRequest{}
	if err := json.Unmarshal(payload, req); err != nil {
		return "", apierror.Wrap(err, apierror.Validation, codeBadRequest, "proposal payload is not a registration document")
	}
	resp, err := s.RegisterDevice(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.DeviceID, nil
}

// validate runs the struct tags and converts the first failure into a
// taxonomy error the transport can map to a 400.
func (s *Service) validate(req interface{}) error {
	if err := s.validator.Struct(req); err != nil {
		var fields validator.ValidationErrors
		if errors.As(err, &fields) && len(fields) > 0 {
			return apierror.Newf(apierror.Validation, codeBadRequest,
				"field %s failed %s validation", fields[0].Field(), fields[0].Tag())
		}
		return apierror.Wrap(err, apierror.Validation, codeBadRequest, "invalid request")
	}
	return nil
}

// fail counts the error and sanitizes it. Taxonomy errors pass through
// untouched; anything else is logged and collapsed to a generic
// internal error so storage details never reach a client.
func (s *Service) fail(handler string, err error) error {
	requestErrors.WithLabelValues(handler).Inc()
	if _, ok := apierror.FromError(err); ok {
		return err
	}
	log.WithField("handler", handler).WithError(err).Error("Request failed")
	return apierror.New(apierror.Internal, codeInternal, "internal error")
}

func (s *Service) emit(eventType events.Type, data interface{}) {
	s.cfg.Bus.EventFeed().Send(&events.Event{Type: eventType, Data: data})
}

func decodeHash32(field, value string) ([32]byte, error) {
	var out [32]byte
	raw, err := decodeFixedHex(field, value, len(out))
	if err != nil {
		return out, err
	}
	copy(out[:], raw)
	return out, nil
}

func decodeFixedHex(field, value string, want int) ([]byte, error) {
	raw, err := hexutil.Decode(value)
	if err != nil {
		return nil, apierror.Newf(apierror.Validation, codeBadRequest, "%s is not 0x-prefixed hex", field)
	}
	if len(raw) != want {
		return nil, apierror.Newf(apierror.Validation, codeBadRequest, "%s must be %d bytes, got %d", field, want, len(raw))
	}
	return raw, nil
}

func decodeHexBytes(field, value string) ([]byte, error) {
	raw, err := hexutil.Decode(value)
	if err != nil {
		return nil, apierror.Newf(apierror.Validation, codeBadRequest, "%s is not 0x-prefixed hex", field)
	}
	return raw, nil
}
