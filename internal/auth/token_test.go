package auth

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIssueVerifyRoundTrip(t *testing.T) {
	s := NewService("test-secret")
	token, err := s.Issue(42)
	require.NoError(t, err)

	userID, err := s.Verify(token)
	require.NoError(t, err)
	require.Equal(t, int64(42), userID)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, err := NewService("secret-a").Issue(42)
	require.NoError(t, err)

	_, err = NewService("secret-b").Verify(token)
	require.Error(t, err)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	_, err := NewService("test-secret").Verify("not-a-token")
	require.Error(t, err)
}
