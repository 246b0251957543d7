package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssuer_RoundTrip(t *testing.T) {
	iss := NewIssuer("s3cret", time.Hour)

	tok, err := iss.Issue("u-1", "Asha", "asha@example.com", true)
	require.NoError(t, err)

	c, err := iss.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "u-1", c.UserID())
	assert.Equal(t, "asha@example.com", c.Email)
	assert.True(t, c.Admin)
}

func TestIssuer_RejectsOtherSecret(t *testing.T) {
	tok, err := NewIssuer("one", time.Hour).Issue("u-1", "A", "a@x", false)
	require.NoError(t, err)

	_, err = NewIssuer("two", time.Hour).Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIssuer_RejectsExpired(t *testing.T) {
	iss := NewIssuer("s3cret", -time.Minute)
	tok, err := iss.Issue("u-1", "A", "a@x", false)
	require.NoError(t, err)

	_, err = iss.Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIssuer_RejectsNoneAlg(t *testing.T) {
	tok := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u-1"}})
	s, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewIssuer("s3cret", time.Hour).Verify(s)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestClaimsContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	ctx := WithClaims(context.Background(), &Claims{Name: "A"})
	c, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "A", c.Name)
}
