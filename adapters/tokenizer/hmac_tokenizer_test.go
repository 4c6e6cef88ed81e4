package tokenizer

import (
	"encoding/hex"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/eden/core"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestHMACTokenizer_IssueVerify(t *testing.T) {
	tok := NewHMACTokenizer(testSecret, 0)
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	tok.now = fixedClock(now)

	token, session, err := tok.Issue("c0ffee")
	require.NoError(t, err)
	assert.Equal(t, "c0ffee", session.SubjectID)
	assert.Equal(t, now.Add(DefaultSessionLifetime), session.ExpiresAt)
	assert.Len(t, session.TokenID, 32)
	assert.Len(t, strings.Split(token, ":"), 4)

	got, err := tok.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, session.SubjectID, got.SubjectID)
	assert.Equal(t, session.TokenID, got.TokenID)
	assert.True(t, session.ExpiresAt.Equal(got.ExpiresAt))
}

func TestHMACTokenizer_UniqueTokens(t *testing.T) {
	tok := NewHMACTokenizer(testSecret, time.Hour)

	a, _, err := tok.Issue("subject")
	require.NoError(t, err)
	b, _, err := tok.Issue("subject")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestHMACTokenizer_IssueRejectsBadSubject(t *testing.T) {
	tok := NewHMACTokenizer(testSecret, time.Hour)

	_, _, err := tok.Issue("")
	assert.Error(t, err)
	_, _, err = tok.Issue("a:b")
	assert.Error(t, err)
}

func TestHMACTokenizer_Malformed(t *testing.T) {
	tok := NewHMACTokenizer(testSecret, time.Hour)

	for _, token := range []string{"", "a:b:c", "a:b:c:d:e", ":1:id:sig", "sub:notanumber:id:sig", "sub:1:id:"} {
		_, err := tok.Verify(token)
		assert.ErrorIs(t, err, core.ErrTokenMalformed, token)
		assert.ErrorIs(t, err, core.ErrAuth, token)
	}
}

func TestHMACTokenizer_AlteredSignatureByte(t *testing.T) {
	tok := NewHMACTokenizer(testSecret, time.Hour)
	token, _, err := tok.Issue("subject")
	require.NoError(t, err)

	sigStart := strings.LastIndex(token, ":") + 1
	for i := sigStart; i < len(token); i++ {
		b := []byte(token)
		if b[i] == '0' {
			b[i] = '1'
		} else {
			b[i] = '0'
		}
		_, err := tok.Verify(string(b))
		assert.ErrorIs(t, err, core.ErrTokenBadSignature, "position %d", i)
	}
}

func TestHMACTokenizer_SignatureCaseChange(t *testing.T) {
	tok := NewHMACTokenizer(testSecret, time.Hour)
	token, _, err := tok.Issue("subject")
	require.NoError(t, err)

	sigStart := strings.LastIndex(token, ":") + 1
	flipped := 0
	for i := sigStart; i < len(token); i++ {
		if token[i] < 'a' || token[i] > 'f' {
			continue
		}
		b := []byte(token)
		b[i] -= 'a' - 'A'
		_, err := tok.Verify(string(b))
		assert.ErrorIs(t, err, core.ErrTokenBadSignature, "position %d", i)
		flipped++
	}
	require.Positive(t, flipped)

	_, err = tok.Verify(token[:sigStart] + strings.ToUpper(token[sigStart:]))
	assert.ErrorIs(t, err, core.ErrTokenBadSignature)
}

func TestHMACTokenizer_AlteredPayload(t *testing.T) {
	tok := NewHMACTokenizer(testSecret, time.Hour)
	token, _, err := tok.Issue("subject")
	require.NoError(t, err)

	forged := "intruder" + strings.TrimPrefix(token, "subject")
	_, err = tok.Verify(forged)
	assert.ErrorIs(t, err, core.ErrTokenBadSignature)
}

func TestHMACTokenizer_OtherSecret(t *testing.T) {
	token, _, err := NewHMACTokenizer(testSecret, time.Hour).Issue("subject")
	require.NoError(t, err)

	_, err = NewHMACTokenizer([]byte("another-secret-another-secret-xx"), time.Hour).Verify(token)
	assert.ErrorIs(t, err, core.ErrTokenBadSignature)
}

func TestHMACTokenizer_Expired(t *testing.T) {
	tok := NewHMACTokenizer(testSecret, time.Hour)
	issuedAt := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	tok.now = fixedClock(issuedAt)

	token, _, err := tok.Issue("subject")
	require.NoError(t, err)

	tok.now = fixedClock(issuedAt.Add(time.Hour))
	_, err = tok.Verify(token)
	require.NoError(t, err, "valid up to and including expiresAt")

	tok.now = fixedClock(issuedAt.Add(time.Hour + time.Millisecond))
	_, err = tok.Verify(token)
	assert.ErrorIs(t, err, core.ErrTokenExpired)
}

func TestHMACTokenizer_ExpiredWithValidSignature(t *testing.T) {
	tok := NewHMACTokenizer(testSecret, time.Hour)
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	tok.now = fixedClock(now)

	past := strconv.FormatInt(now.Add(-time.Minute).UnixMilli(), 10)
	payload := payloadOf("subject", past, "abcd")
	token := payload + ":" + hex.EncodeToString(tok.sign(payload))

	_, err := tok.Verify(token)
	assert.ErrorIs(t, err, core.ErrTokenExpired)
}
