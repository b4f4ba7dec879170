package gossip

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"keyvault/internal/domain"
)

// ErrGossipingDisabled is returned when the global policy forbids key
// gossiping.
var ErrGossipingDisabled = errors.New("key gossiping is disabled")

// Service tracks key request state and keeps the audit trail. Audit write
// failures are logged and swallowed; they never fail the triggering
// operation.
type Service struct {
	requests domain.KeyRequestStore
	withheld domain.WithheldStore
	audit    domain.AuditTrail
	policy   domain.PolicyStore
	log      zerolog.Logger
}

func New(
	requests domain.KeyRequestStore,
	withheld domain.WithheldStore,
	audit domain.AuditTrail,
	policy domain.PolicyStore,
	logger zerolog.Logger,
) *Service {
	return &Service{
		requests: requests,
		withheld: withheld,
		audit:    audit,
		policy:   policy,
		log:      logger.With().Str("component", "gossip").Logger(),
	}
}

// RequestKey records the intent to request a group session key from the
// given devices. An existing active request for the same key widens instead
// of duplicating; a cancelled one is reactivated.
func (s *Service) RequestKey(body domain.RequestBody, recipients map[string][]string, fromIndex int64) (domain.OutgoingKeyRequest, error) {
	if err := s.checkEnabled(); err != nil {
		return domain.OutgoingKeyRequest{}, err
	}

	req, err := s.requests.GetOrAddRequest(body, recipients, fromIndex)
	if err != nil {
		return domain.OutgoingKeyRequest{}, fmt.Errorf("record key request: %w", err)
	}

	if err := s.audit.SaveOutgoingRequest(req); err != nil {
		s.log.Warn().Err(err).Str("request_id", req.RequestID).Msg("Audit entry dropped")
	}
	return req, nil
}

// MarkRequestSent moves a request to SENT after the transport delivered it.
func (s *Service) MarkRequestSent(requestID string) error {
	return s.requests.UpdateRequestState(requestID, domain.RequestSent)
}

// CancelRequest moves a request to CANCELLED. The record stays around so a
// later RequestKey for the same key can reactivate it.
func (s *Service) CancelRequest(requestID string) error {
	return s.requests.UpdateRequestState(requestID, domain.RequestCancelled)
}

// HandleIncomingRequest records a key request received from another device.
// Deciding whether to actually serve the key is the caller's business.
func (s *Service) HandleIncomingRequest(requestID, userID, deviceID string, body domain.RequestBody) error {
	if err := s.audit.SaveIncomingRequest(requestID, userID, deviceID, body); err != nil {
		s.log.Warn().Err(err).Str("request_id", requestID).Msg("Audit entry dropped")
	}
	return nil
}

// HandleForwardedKey attaches a received forwarded-key event to the matching
// outgoing request. Forwards are dropped entirely while gossiping is
// disabled.
func (s *Service) HandleForwardedKey(body domain.RequestBody, fromDevice string, event []byte) error {
	if err := s.checkEnabled(); err != nil {
		return err
	}

	if err := s.requests.UpdateReply(body, fromDevice, event); err != nil {
		return fmt.Errorf("attach forwarded key: %w", err)
	}

	req, found, err := s.requests.RequestByBody(body)
	if err != nil {
		return err
	}
	requestID := ""
	if found {
		requestID = req.RequestID
	}
	if err := s.audit.SaveIncomingForward(body, fromDevice, requestID); err != nil {
		s.log.Warn().Err(err).Str("from_device", fromDevice).Msg("Audit entry dropped")
	}
	return nil
}

// RecordForwarded logs that we forwarded a key to another device.
func (s *Service) RecordForwarded(body domain.RequestBody, userID, deviceID string, chainIndex int64) {
	if err := s.audit.SaveOutgoingForward(body, userID, deviceID, chainIndex); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("Audit entry dropped")
	}
}

// RecordWithheld stores a withheld notice and logs it in the audit trail.
func (s *Service) RecordWithheld(rec domain.WithheldRecord, userID, deviceID string) error {
	if err := s.withheld.AddWithheld(rec); err != nil {
		return fmt.Errorf("store withheld notice: %w", err)
	}
	if err := s.audit.SaveWithheld(rec, userID, deviceID); err != nil {
		s.log.Warn().Err(err).Str("code", rec.Code).Msg("Audit entry dropped")
	}
	return nil
}

// PruneCancelled purges cancelled requests and reports how many went.
func (s *Service) PruneCancelled() (int, error) {
	return s.requests.DeleteRequestsInState(domain.RequestCancelled)
}

func (s *Service) checkEnabled() error {
	p, err := s.policy.GlobalPolicy()
	if err != nil {
		return fmt.Errorf("load global policy: %w", err)
	}
	if !p.KeyGossipingEnabled {
		return ErrGossipingDisabled
	}
	return nil
}
