package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIssuer(now *time.Time) *Issuer {
	return NewIssuer("access-secret-access-secret-0000", "refresh-secret-refresh-secret-00", time.Minute, time.Hour).
		WithClock(func() time.Time { return *now })
}

func TestAccessRoundTrip(t *testing.T) {
	now := time.Now()
	iss := newTestIssuer(&now)

	tok, err := iss.Access(Subject{UserID: 7, RoleID: 2, BranchID: 3, DeviceID: "dev-1"})
	require.NoError(t, err)

	claims, err := iss.ParseAccess(tok)
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.UserID)
	assert.Equal(t, "dev-1", claims.DeviceID)
	assert.Equal(t, TypeAccess, claims.Type)
}

func TestRefreshIsNotAccess(t *testing.T) {
	now := time.Now()
	iss := newTestIssuer(&now)

	refresh, err := iss.Refresh(Subject{UserID: 7, DeviceID: "dev-1"})
	require.NoError(t, err)

	_, err = iss.ParseAccess(refresh)
	assert.ErrorIs(t, err, ErrInvalid)

	claims, err := iss.ParseRefresh(refresh)
	require.NoError(t, err)
	assert.Equal(t, TypeRefresh, claims.Type)
}

func TestExpiredAccessRejected(t *testing.T) {
	now := time.Now()
	iss := newTestIssuer(&now)

	tok, err := iss.Access(Subject{UserID: 1})
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = iss.ParseAccess(tok)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestTokensAreUniquePerIssuance(t *testing.T) {
	now := time.Now()
	iss := newTestIssuer(&now)

	a, err := iss.Refresh(Subject{UserID: 1, DeviceID: "d"})
	require.NoError(t, err)
	now = now.Add(time.Millisecond)
	b, err := iss.Refresh(Subject{UserID: 1, DeviceID: "d"})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
