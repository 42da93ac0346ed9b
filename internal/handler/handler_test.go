package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"merchshop/internal/auth"
	"merchshop/internal/catalog"
	"merchshop/internal/infrastructure/lock"
	"merchshop/internal/service"
	"merchshop/internal/store"
	"merchshop/internal/store/memory"
)

type testServer struct {
	router *gin.Engine
	store  *memory.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cat, err := catalog.New(catalog.DefaultItems)
	require.NoError(t, err)

	st := memory.New()
	tokens := auth.NewTokenManager("test-secret", time.Hour)
	h := NewHandler(
		service.NewAccountService(st, auth.NewBcryptHasher(bcrypt.MinCost), 1000),
		service.NewLedgerService(st, lock.NewLocalLocker(), cat, service.LedgerOptions{
			MaxRetries:   1,
			RetryBackoff: time.Millisecond,
			EventTopic:   "ledger-events",
		}),
		service.NewHistoryService(st),
		tokens,
	)
	return &testServer{router: SetupRouter(h, tokens), store: st}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) login(t *testing.T, username, password string) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/auth", "", AuthRequest{Username: username, Password: password})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func (s *testServer) info(t *testing.T, token string) service.Snapshot {
	t.Helper()
	w := s.do(t, http.MethodGet, "/api/info", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var snap service.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	return snap
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["errors"]
}

func TestAPI_AliceAndBob(t *testing.T) {
	s := newTestServer(t)
	alice := s.login(t, "alice", "alice-pw")
	bob := s.login(t, "bob", "bob-pw")

	assert.Equal(t, int64(1000), s.info(t, alice).Coins)

	w := s.do(t, http.MethodPost, "/api/sendCoin", alice, SendCoinRequest{ToUser: "bob", Amount: 100})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"detail":"Coins sent successfully"}`, w.Body.String())

	bobInfo := s.info(t, bob)
	assert.Equal(t, int64(1100), bobInfo.Coins)
	assert.Equal(t, []service.ReceivedEntry{{FromUser: "alice", Amount: 100}}, bobInfo.CoinHistory.Received)

	w = s.do(t, http.MethodGet, "/api/buy/t-shirt", alice, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"detail":"Successfully purchased t-shirt"}`, w.Body.String())

	aliceInfo := s.info(t, alice)
	assert.Equal(t, int64(820), aliceInfo.Coins)
	assert.Equal(t, []service.InventoryItem{{Type: "t-shirt", Quantity: 1}}, aliceInfo.Inventory)
	assert.Equal(t, []service.SentEntry{{ToUser: "bob", Amount: 100}}, aliceInfo.CoinHistory.Sent)

	w = s.do(t, http.MethodPost, "/api/sendCoin", alice, SendCoinRequest{ToUser: "bob", Amount: 10000})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Insufficient coins", errorBody(t, w))

	w = s.do(t, http.MethodGet, "/api/buy/unicorn", alice, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Item not found", errorBody(t, w))

	assert.Equal(t, int64(820), s.info(t, alice).Coins)
}

func TestAPI_InfoShapeForNewUser(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "newbie", "pw")

	w := s.do(t, http.MethodGet, "/api/info", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"coins":1000,"inventory":[],"coinHistory":{"received":[],"sent":[]}}`, w.Body.String())
}

func TestAPI_Auth(t *testing.T) {
	s := newTestServer(t)
	s.login(t, "alice", "right")

	w := s.do(t, http.MethodPost, "/api/auth", "", AuthRequest{Username: "alice", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Incorrect password", errorBody(t, w))

	w = s.do(t, http.MethodPost, "/api/auth", "", map[string]string{"username": "alice"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// second login with the right password keeps the same account
	token := s.login(t, "alice", "right")
	assert.Equal(t, int64(1000), s.info(t, token).Coins)
	assert.Len(t, s.store.Accounts(), 1)
}

func TestAPI_RequiresToken(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		method string
		path   string
		token  string
	}{
		{method: http.MethodGet, path: "/api/info"},
		{method: http.MethodPost, path: "/api/sendCoin"},
		{method: http.MethodGet, path: "/api/buy/cup"},
		{method: http.MethodGet, path: "/api/info", token: "not-a-jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := s.do(t, tt.method, tt.path, tt.token, nil)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestAPI_SendCoinValidation(t *testing.T) {
	s := newTestServer(t)
	alice := s.login(t, "alice", "pw")
	s.login(t, "bob", "pw")

	tests := []struct {
		name    string
		body    interface{}
		wantMsg string
	}{
		{name: "zero amount", body: SendCoinRequest{ToUser: "bob", Amount: 0}, wantMsg: "Amount must be positive"},
		{name: "negative amount", body: SendCoinRequest{ToUser: "bob", Amount: -3}, wantMsg: "Amount must be positive"},
		{name: "self", body: SendCoinRequest{ToUser: "alice", Amount: 1}, wantMsg: "Cannot send coins to yourself"},
		{name: "unknown user", body: SendCoinRequest{ToUser: "nobody", Amount: 1}, wantMsg: "Recipient not found"},
		{name: "missing recipient", body: map[string]int{"amount": 5}, wantMsg: "Invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/api/sendCoin", alice, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.wantMsg, errorBody(t, w))
		})
	}
	assert.Equal(t, int64(1000), s.info(t, alice).Coins)
}

func TestAPI_StorageErrors(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "alice", "pw")

	// MaxRetries is 1: two conflicts exhaust the retries
	s.store.FailNextCommit(store.ErrConflict)
	s.store.FailNextCommit(store.ErrConflict)
	w := s.do(t, http.MethodGet, "/api/buy/pen", token, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	s.store.FailNextCommit(errors.New("disk full"))
	w = s.do(t, http.MethodGet, "/api/buy/pen", token, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal server error", errorBody(t, w))

	assert.Equal(t, int64(1000), s.info(t, token).Coins)
}

func TestAPI_HealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	s.do(t, http.MethodGet, "/health", "", nil)
	w = s.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "merchshop_http_requests_total")
}

// Tokens carry both the account id and the username. A validly signed token
// whose pair does not match an account on this server must not act as
// whoever owns that id here.
func TestAPI_TokenMustMatchAccount(t *testing.T) {
	issuer := newTestServer(t)
	target := newTestServer(t)

	aliceToken := issuer.login(t, "alice", "alice-pw")
	malloryToken := target.login(t, "mallory", "mallory-pw")
	target.login(t, "bob", "bob-pw")
	require.Equal(t, int64(1), target.store.Accounts()[0].ID)

	w := target.do(t, http.MethodGet, "/api/info", aliceToken, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = target.do(t, http.MethodPost, "/api/sendCoin", aliceToken, SendCoinRequest{ToUser: "bob", Amount: 100})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// same username, different id
	target.login(t, "alice", "other-pw")
	w = target.do(t, http.MethodGet, "/api/buy/pen", aliceToken, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	assert.Equal(t, int64(1000), target.info(t, malloryToken).Coins)
	for _, a := range target.store.Accounts() {
		assert.Equal(t, int64(1000), a.Balance, a.Username)
	}
}

func TestAPI_CancelledRequest(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "alice", "pw")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, path := range []string{"/api/info", "/api/buy/cup"} {
		req := httptest.NewRequest(http.MethodGet, path, nil).WithContext(ctx)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusRequestTimeout, w.Code, path)
		assert.Equal(t, "Request canceled", errorBody(t, w))
	}
	assert.Equal(t, int64(1000), s.info(t, token).Coins)
}
