package comm

import (
	"time"

	"github.com/google/uuid"
)

// SessionExpiry is how long a session may stay idle before the cleanup sweep
// removes it.
const SessionExpiry = time.Hour

// Session correlates a guest admission with an eventual authentication
// result. It exists in memory only until persisted through
// repository.Sessions.
type Session struct {
	// GuestToken is the verified admission token this session was created for.
	GuestToken GuestToken `json:"guest_token"`
	// AuthResult is nil until a result is registered, then immutable.
	AuthResult *string `json:"auth_result,omitempty"`
	// AttrID matches the asynchronous authentication callback with this
	// session. The callback path does not know the session id.
	AttrID string `json:"attr_id"`
	// Purpose classifies what the session is for.
	Purpose string `json:"purpose"`
}

// NewSession creates an in-memory session for an admitted guest with a fresh
// attr_id.
func NewSession(guestToken GuestToken, purpose string) *Session {
	return &Session{
		GuestToken: guestToken,
		AttrID:     uuid.NewString(),
		Purpose:    purpose,
	}
}
