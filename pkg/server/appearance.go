package server

import (
	"context"

	"tilerealm/pkg/session"
	"tilerealm/pkg/wire"
)

// handleAppearanceUpdate implements CMD_APPEARANCE_UPDATE (§4.5.6), reusing
// the same option-set validation the HTTP appearance-options boundary
// enforces at registration time.
func (s *RPCServer) handleAppearanceUpdate(sess *session.Session, msg wire.Message) (any, error) {
	var payload wire.AppearanceUpdatePayload
	if err := msg.Decode(&payload); err != nil {
		return nil, wire.NewValidationError(wire.CodeMalformedMessage, "malformed appearance payload", nil)
	}
	if !appearanceValid(payload.Appearance) {
		return nil, wire.NewValidationError(wire.CodeMalformedMessage, "invalid appearance selection", nil)
	}
	if err := s.hot.SetAppearance(context.Background(), sess.PlayerID, payload.Appearance); err != nil {
		return nil, err
	}
	return nil, nil
}
