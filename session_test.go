package comm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSession(t *testing.T) {
	guestToken := GuestToken{
		ID:     "session-1",
		RoomID: "room-1",
		Domain: DomainGuest,
	}

	session := NewSession(guestToken, "meeting")
	require.NotNil(t, session)
	assert.Equal(t, guestToken, session.GuestToken)
	assert.Equal(t, "meeting", session.Purpose)
	assert.Nil(t, session.AuthResult)
	assert.NotEmpty(t, session.AttrID)

	other := NewSession(guestToken, "meeting")
	assert.NotEqual(t, session.AttrID, other.AttrID)
}
