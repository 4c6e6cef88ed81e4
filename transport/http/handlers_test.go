package http

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/layer-3/eden/adapters/events"
	"github.com/layer-3/eden/adapters/store"
	"github.com/layer-3/eden/adapters/tokenizer"
	"github.com/layer-3/eden/core"
	"github.com/layer-3/eden/service"
)

const (
	providerAddr = "0x1111111111111111111111111111111111111111"
	clientAddr   = "0x2222222222222222222222222222222222222222"
)

type fakeLedger struct {
	mu        sync.Mutex
	commitErr error
	cancelErr error
	committed map[string]bool
	onCommit  func()
}

func (l *fakeLedger) IsTimeSlotAvailable(context.Context, string, time.Time, time.Time) (bool, error) {
	return true, nil
}

func (l *fakeLedger) Commit(_ context.Context, _ string, _, _ time.Time, hash string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.commitErr != nil {
		return "", l.commitErr
	}
	if l.onCommit != nil {
		l.onCommit()
	}
	l.committed[hash] = true
	return "0xc0", nil
}

func (l *fakeLedger) Cancel(_ context.Context, _ string, _, _ time.Time, hash string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancelErr != nil {
		return "", l.cancelErr
	}
	delete(l.committed, hash)
	return "0xca", nil
}

func (l *fakeLedger) HasCommitment(_ context.Context, _ string, hash string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.committed[hash], nil
}

type fixture struct {
	router *gin.Engine
	ledger *fakeLedger
	store  *store.MemoryBookingStore
	key    *ecdsa.PrivateKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	logger := zaptest.NewLogger(t)
	ledger := &fakeLedger{committed: map[string]bool{}}

	authService := service.NewAuthService(
		service.AuthConfig{ChainID: 1},
		store.NewMemoryChallengeStore(),
		service.NewIdentityResolver(store.NewMemoryIdentityStore(), "salt"),
		tokenizer.NewHMACTokenizer([]byte(strings.Repeat("k", 32)), time.Hour),
		events.Discard{},
		logger,
	)
	bookings := store.NewMemoryBookingStore()
	bookingService := service.NewBookingService(bookings, ledger, events.Discard{}, logger, time.Second)

	return &fixture{
		router: SetupRouter(authService, bookingService, logger, false),
		ledger: ledger,
		store:  bookings,
		key:    key,
	}
}

func (f *fixture) do(t *testing.T, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func (f *fixture) signIn(t *testing.T) *http.Cookie {
	t.Helper()

	address := crypto.PubkeyToAddress(f.key.PublicKey).Hex()
	rec := f.do(t, http.MethodGet, "/api/siwe/nonce?address="+address, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	message := decode(t, rec)["message"].(string)

	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), f.key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27

	rec = f.do(t, http.MethodPost, "/api/siwe/verify", gin.H{
		"message":   message,
		"signature": hexutil.Encode(sig),
	})
	require.Equal(t, http.StatusOK, rec.Code)

	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookie {
			return c
		}
	}
	t.Fatal("session cookie not set")
	return nil
}

func slot() (time.Time, time.Time) {
	start := time.Now().Add(24 * time.Hour).Truncate(time.Second).UTC()
	return start, start.Add(time.Hour)
}

func (f *fixture) createBooking(t *testing.T, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	start, end := slot()
	return f.do(t, http.MethodPost, "/api/bookings/create", gin.H{
		"providerAddress": providerAddr,
		"clientAddress":   clientAddr,
		"startTime":       start,
		"endTime":         end,
		"metadata":        gin.H{"title": "Consultation"},
	}, cookie)
}

func TestNonce(t *testing.T) {
	f := newFixture(t)

	t.Run("MissingAddress", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/siwe/nonce", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("InvalidAddress", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/siwe/nonce?address=0x123", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Success", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/siwe/nonce?address="+providerAddr, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		body := decode(t, rec)
		assert.Regexp(t, "^[0-9a-f]{32}$", body["nonce"])
		assert.Contains(t, body["message"], "example.com wants you to sign in with your Ethereum account:")
		assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	})
}

func TestSignInFlow(t *testing.T) {
	f := newFixture(t)
	cookie := f.signIn(t)

	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, "/", cookie.Path)
	assert.Greater(t, cookie.MaxAge, 0)

	rec := f.do(t, http.MethodGet, "/api/auth/session", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["authenticated"])
	assert.Regexp(t, "^[0-9a-f]{32}$", body["userId"])

	rec = f.do(t, http.MethodDelete, "/api/auth/session", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["success"])
}

func TestVerify_Failures(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/siwe/verify", gin.H{"message": "hello"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/siwe/verify", gin.H{"message": "hello", "signature": "0x00"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	address := crypto.PubkeyToAddress(f.key.PublicKey).Hex()
	rec = f.do(t, http.MethodGet, "/api/siwe/nonce?address="+address, nil)
	message := decode(t, rec)["message"].(string)

	other, err := crypto.GenerateKey()
	require.NoError(t, err)
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), other)
	require.NoError(t, err)

	rec = f.do(t, http.MethodPost, "/api/siwe/verify", gin.H{"message": message, "signature": hexutil.Encode(sig)})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSession_Invalid(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/auth/session", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/auth/session", nil, &http.Cookie{Name: SessionCookie, Value: "a:1:b:c"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, false, decode(t, rec)["authenticated"])

	cleared := false
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookie && c.MaxAge < 0 {
			cleared = true
		}
	}
	assert.True(t, cleared)
}

func TestCreateBooking_RequiresSession(t *testing.T) {
	f := newFixture(t)

	rec := f.createBooking(t, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateBooking(t *testing.T) {
	f := newFixture(t)
	cookie := f.signIn(t)

	rec := f.createBooking(t, cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "0xc0", body["txHash"])

	booking := body["booking"].(map[string]any)
	assert.Equal(t, "committed", booking["status"])
	assert.Regexp(t, "^0x[0-9a-f]{64}$", booking["bookingHash"])

	rec = f.do(t, http.MethodGet, "/api/bookings/"+booking["id"].(string), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "committed", decode(t, rec)["status"])

	rec = f.do(t, http.MethodGet, "/api/providers/"+providerAddr+"/bookings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["bookings"], 1)
}

func TestCreateBooking_LedgerFailure(t *testing.T) {
	f := newFixture(t)
	cookie := f.signIn(t)
	f.ledger.commitErr = fmt.Errorf("%w: rpc down", core.ErrLedger)

	rec := f.createBooking(t, cookie)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Booking created but on-chain commit failed", body["error"])

	booking := body["booking"].(map[string]any)
	assert.Equal(t, "pending", booking["status"])

	id := booking["id"].(string)
	rec = f.do(t, http.MethodGet, "/api/bookings/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pending", decode(t, rec)["status"])

	f.ledger.commitErr = nil
	rec = f.do(t, http.MethodPost, "/api/bookings/"+id+"/commit", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "committed", decode(t, rec)["booking"].(map[string]any)["status"])
}

func TestCreateBooking_CancelledDuringCommit(t *testing.T) {
	f := newFixture(t)
	cookie := f.signIn(t)
	f.ledger.onCommit = func() {
		list, err := f.store.ListByProvider(context.Background(), providerAddr)
		require.NoError(t, err)
		require.Len(t, list, 1)
		_, err = f.store.Transition(context.Background(), list[0].ID, core.Transition{
			From: core.BookingPending, To: core.BookingCancelled, At: time.Now(),
		})
		require.NoError(t, err)
	}

	rec := f.createBooking(t, cookie)
	require.Equal(t, http.StatusConflict, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "0xc0", body["txHash"])
	assert.Contains(t, body["error"], "booking status changed concurrently")
	assert.Equal(t, "cancelled", body["booking"].(map[string]any)["status"])
}

func TestCreateBooking_Validation(t *testing.T) {
	f := newFixture(t)
	cookie := f.signIn(t)
	start, _ := slot()

	rec := f.do(t, http.MethodPost, "/api/bookings/create", gin.H{
		"providerAddress": providerAddr,
		"startTime":       start,
		"endTime":         start,
	}, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/bookings/create", gin.H{"startTime": start}, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/bookings/create", gin.H{
		"providerAddress": providerAddr,
		"startTime":       start,
		"endTime":         start.Add(time.Hour),
		"metadata":        gin.H{"\u00e9": "A", "e\u0301": "B"},
	}, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelBooking(t *testing.T) {
	f := newFixture(t)
	cookie := f.signIn(t)

	id := decode(t, f.createBooking(t, cookie))["booking"].(map[string]any)["id"].(string)

	rec := f.do(t, http.MethodDelete, "/api/bookings/"+id, nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "0xca", body["txHash"])
	assert.Equal(t, "cancelled", body["booking"].(map[string]any)["status"])

	rec = f.do(t, http.MethodDelete, "/api/bookings/missing", nil, cookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelBooking_LedgerFailure(t *testing.T) {
	f := newFixture(t)
	cookie := f.signIn(t)

	id := decode(t, f.createBooking(t, cookie))["booking"].(map[string]any)["id"].(string)
	f.ledger.cancelErr = fmt.Errorf("%w: reverted", core.ErrLedger)

	rec := f.do(t, http.MethodDelete, "/api/bookings/"+id, nil, cookie)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "cancelled", body["booking"].(map[string]any)["status"])
}

func TestCompleteBooking(t *testing.T) {
	f := newFixture(t)
	cookie := f.signIn(t)

	id := decode(t, f.createBooking(t, cookie))["booking"].(map[string]any)["id"].(string)

	rec := f.do(t, http.MethodPost, "/api/bookings/"+id+"/complete", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "completed", decode(t, rec)["booking"].(map[string]any)["status"])

	rec = f.do(t, http.MethodPost, "/api/bookings/"+id+"/complete", nil, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckAvailability(t *testing.T) {
	f := newFixture(t)
	start, end := slot()

	rec := f.do(t, http.MethodPost, "/api/bookings/check", gin.H{
		"providerAddress": providerAddr,
		"startTime":       start,
		"endTime":         end,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["available"])

	rec = f.do(t, http.MethodPost, "/api/bookings/check", gin.H{"providerAddress": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerifyBooking(t *testing.T) {
	f := newFixture(t)
	cookie := f.signIn(t)

	booking := decode(t, f.createBooking(t, cookie))["booking"].(map[string]any)

	rec := f.do(t, http.MethodPost, "/api/bookings/verify", gin.H{
		"bookingId":       booking["id"],
		"providerAddress": providerAddr,
		"bookingHash":     booking["bookingHash"],
	})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, true, body["verified"])
	assert.Equal(t, true, body["hashMatches"])
	assert.Equal(t, false, body["drift"])
	assert.NotNil(t, body["booking"])

	rec = f.do(t, http.MethodPost, "/api/bookings/verify", gin.H{
		"providerAddress": providerAddr,
		"bookingHash":     "0x" + strings.Repeat("ab", 32),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, false, body["verified"])
	assert.Nil(t, body["booking"])

	rec = f.do(t, http.MethodPost, "/api/bookings/verify", gin.H{
		"providerAddress": providerAddr,
		"bookingHash":     "0x1234",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetBooking_NotFound(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/bookings/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
