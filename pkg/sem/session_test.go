package sem

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthSessionLogin(t *testing.T) {

	assert := assert.New(t)

	meter := NewTestMeter(5, "12345")
	require.NoError(t, meter.Open())
	session := NewAuthSession("D", time.Second, nil)
	assert.Equal(Unauthenticated, session.State())

	err := session.EnsureAuthenticated(context.Background(), meter, 5, "12345")
	require.NoError(t, err)
	assert.Equal(Authenticated, session.State())
	assert.Equal([]string{"D"}, meter.Sent())

	// already authenticated, nothing is sent
	require.NoError(t, session.EnsureAuthenticated(context.Background(), meter, 5, "12345"))
	assert.Len(meter.Sent(), 1)

	session.Invalidate()
	assert.Equal(Unauthenticated, session.State())
	require.NoError(t, session.EnsureAuthenticated(context.Background(), meter, 5, "12345"))
	assert.Len(meter.Sent(), 2)
}

func TestAuthSessionWrongPassword(t *testing.T) {

	meter := NewTestMeter(5, "12345")
	require.NoError(t, meter.Open())
	session := NewAuthSession("D", time.Second, nil)

	err := session.EnsureAuthenticated(context.Background(), meter, 5, "00000")
	assert.ErrorIs(t, err, ErrAuthRejected)
	assert.Equal(t, Unauthenticated, session.State())
}

func TestAuthSessionTimeout(t *testing.T) {

	meter := NewTestMeter(5, "12345")
	require.NoError(t, meter.Open())
	session := NewAuthSession("D", time.Second, nil)

	// nobody answers at another address
	err := session.EnsureAuthenticated(context.Background(), meter, 6, "12345")
	assert.ErrorIs(t, err, ErrAuthTimeout)
	assert.Equal(t, Unauthenticated, session.State())

	meter.Silence("D")
	err = session.EnsureAuthenticated(context.Background(), meter, 5, "12345")
	assert.ErrorIs(t, err, ErrAuthTimeout)
}

func TestAuthSessionSkipsOtherMeters(t *testing.T) {

	assert := assert.New(t)

	meter := NewTestMeter(5, "12345").Stray(7, "E01234567")
	require.NoError(t, meter.Open())
	session := NewAuthSession("D", time.Second, nil)

	err := session.EnsureAuthenticated(context.Background(), meter, 5, "12345")
	require.NoError(t, err)
	assert.Equal(Authenticated, session.State())
}

func TestAuthSessionCorruptReply(t *testing.T) {

	meter := NewTestMeter(5, "12345").Garble("D")
	require.NoError(t, meter.Open())
	session := NewAuthSession("D", time.Second, nil)

	err := session.EnsureAuthenticated(context.Background(), meter, 5, "12345")
	assert.ErrorIs(t, err, ErrAuthRejected)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestAuthSessionLinkError(t *testing.T) {

	unplugged := errors.New("unplugged")
	meter := NewTestMeter(5, "12345").FailSend(unplugged)
	require.NoError(t, meter.Open())
	session := NewAuthSession("D", time.Second, nil)

	err := session.EnsureAuthenticated(context.Background(), meter, 5, "12345")
	assert.ErrorIs(t, err, unplugged)
	assert.True(t, IsLinkError(err))
	assert.Equal(t, Unauthenticated, session.State())
}

func TestSessionStateString(t *testing.T) {
	assert.Equal(t, "authenticating", Authenticating.String())
	assert.Equal(t, "SessionState(9)", SessionState(9).String())
}
