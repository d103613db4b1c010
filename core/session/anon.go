package session

import (
	"encoding/json"
	"errors"

	"github.com/google/uuid"
)

// anonymousPayload is the self-contained body of the client-held anonymous
// session token. It requires no database lookup to restore; the transport
// is responsible for encrypting and authenticating it.
type anonymousPayload struct {
	Public    Data   `json:"publicData"`
	CSRFToken string `json:"antiCSRFToken,omitempty"`
}

// EncodeAnonymous serializes an anonymous session's client-held state.
// Only public data and, in advanced CSRF mode, the anti-CSRF token are
// included; private data never leaves the server.
func (m *Manager) EncodeAnonymous(sess Session) (string, error) {
	if sess.state != StateAnonymous {
		return "", ErrInvalidPayload
	}

	payload := anonymousPayload{Public: sess.public}
	if m.cfg.Method == CSRFAdvanced {
		payload.CSRFToken = sess.csrfToken
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Join(ErrInvalidPayload, err)
	}
	return string(b), nil
}

// DecodeAnonymous restores an anonymous session from its client-held
// payload. Sessions persisted because of private data are not restored this
// way; they round-trip through LoadFromToken like authenticated ones.
func (m *Manager) DecodeAnonymous(payload, suppliedCSRF string) (Session, error) {
	var p anonymousPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return Session{}, errors.Join(ErrInvalidPayload, err)
	}

	public := p.Public
	if public == nil {
		public = Data{}
	}
	public[KeyUserID] = nil

	s := Session{
		state:        StateAnonymous,
		userID:       uuid.Nil,
		csrfToken:    p.CSRFToken,
		public:       public,
		suppliedCSRF: suppliedCSRF,
		csrfSupplied: suppliedCSRF != "",
	}

	return s, nil
}
