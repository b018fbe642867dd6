package comm

import (
	"encoding/json"
	"fmt"
)

// SessionDomain is the closed set of contexts a session can belong to.
type SessionDomain string

const (
	// DomainGuest marks a session created for a guest participant.
	DomainGuest SessionDomain = "guest"
	// DomainHost marks a session created for a room host.
	DomainHost SessionDomain = "host"
)

// ParseSessionDomain validates a domain string against the closed enumeration.
func ParseSessionDomain(s string) (SessionDomain, error) {
	switch SessionDomain(s) {
	case DomainGuest, DomainHost:
		return SessionDomain(s), nil
	}
	return "", invalidToken(nil, fmt.Sprintf("unknown session domain %q", s))
}

func (d SessionDomain) String() string {
	return string(d)
}

// UnmarshalJSON rejects domain values outside the enumeration so attacker
// influenced tokens never produce an open-ended domain.
func (d *SessionDomain) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return invalidToken(err, "session domain is not a string")
	}
	parsed, err := ParseSessionDomain(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// GuestToken identifies a guest admitted to a room. Every field is attacker
// influenced until the token signature has been verified.
type GuestToken struct {
	// ID is the session correlation key, globally unique.
	ID string `json:"id"`
	// RoomID groups sessions sharing a communication context.
	RoomID string `json:"room_id"`
	// Domain is the session context the guest was admitted under.
	Domain SessionDomain `json:"domain"`
	// RedirectURL is where the guest returns after authenticating.
	RedirectURL string `json:"redirect_url"`
	// Name is the guest's display name.
	Name string `json:"name"`
	// Instance identifies the hosting platform instance.
	Instance string `json:"instance"`
}

// HostToken identifies a room host; it routes room-scoped queries.
type HostToken struct {
	ID       string        `json:"id"`
	RoomID   string        `json:"room_id"`
	Domain   SessionDomain `json:"domain"`
	Instance string        `json:"instance"`
}

// DecodeGuestToken verifies a signed guest token and decodes it. It never
// returns a token value on verification failure.
func DecodeGuestToken(token string, verifier Verifier) (*GuestToken, error) {
	var guestToken GuestToken
	if err := verifier.Verify(token, &guestToken); err != nil {
		return nil, err
	}
	// A missing domain never went through UnmarshalJSON.
	if _, err := ParseSessionDomain(string(guestToken.Domain)); err != nil {
		return nil, err
	}
	return &guestToken, nil
}

// DecodeHostToken verifies a signed host token and decodes it.
func DecodeHostToken(token string, verifier Verifier) (*HostToken, error) {
	var hostToken HostToken
	if err := verifier.Verify(token, &hostToken); err != nil {
		return nil, err
	}
	if _, err := ParseSessionDomain(string(hostToken.Domain)); err != nil {
		return nil, err
	}
	return &hostToken, nil
}

// DecryptAndVerify decodes a nested instruction token: the outer layer is a
// JWE opened with the decrypter, the inner layer a JWS checked with the
// verifier before any claim is trusted.
func DecryptAndVerify(token string, decrypter Decrypter, verifier Verifier, claims any) error {
	payload, err := decrypter.Decrypt(token)
	if err != nil {
		return err
	}
	return verifier.Verify(string(payload), claims)
}

// WidgetParams are the parameters handed to the widget, transported as a
// signed token so the widget can trust them.
type WidgetParams struct {
	Purpose     string `json:"purpose"`
	StartURL    string `json:"start_url"`
	DisplayName string `json:"display_name"`
}

// StartAuthRequest asks the core to start an authentication session for a
// guest. It is transported as a signed token carrying the configured key
// identifier so the core can select the right verification key.
type StartAuthRequest struct {
	Purpose    string `json:"purpose"`
	AuthMethod string `json:"auth_method"`
	CommURL    string `json:"comm_url"`
	AttrURL    string `json:"attr_url,omitempty"`
}
