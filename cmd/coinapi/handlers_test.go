package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Allamymp/coinApiPortfolio/pkg/auth"
	"github.com/Allamymp/coinApiPortfolio/pkg/cache"
	"github.com/Allamymp/coinApiPortfolio/pkg/config"
	"github.com/Allamymp/coinApiPortfolio/pkg/database"
	"github.com/Allamymp/coinApiPortfolio/pkg/email"
	"github.com/Allamymp/coinApiPortfolio/pkg/models"
	"github.com/Allamymp/coinApiPortfolio/pkg/redisclient"
)

type memCoinRepo struct {
	coins map[string]models.Coin
}

func (m *memCoinRepo) FindAll(ctx context.Context) ([]models.Coin, error) {
	out := make([]models.Coin, 0, len(m.coins))
	for _, c := range m.coins {
		out = append(out, c)
	}
	return out, nil
}

func (m *memCoinRepo) FindByName(ctx context.Context, name string) (models.Coin, error) {
	c, ok := m.coins[name]
	if !ok {
		return models.Coin{}, database.ErrCoinNotFound
	}
	return c, nil
}

func (m *memCoinRepo) FindByID(ctx context.Context, id int64) (models.Coin, error) {
	for _, c := range m.coins {
		if c.ID == id {
			return c, nil
		}
	}
	return models.Coin{}, database.ErrCoinNotFound
}

func (m *memCoinRepo) Create(ctx context.Context, coin *models.Coin) error {
	coin.ID = int64(len(m.coins) + 1)
	m.coins[coin.Name] = *coin
	return nil
}

func (m *memCoinRepo) Update(ctx context.Context, coin models.Coin) error {
	if _, ok := m.coins[coin.Name]; !ok {
		return database.ErrCoinNotFound
	}
	m.coins[coin.Name] = coin
	return nil
}

type memClientRepo struct {
	clients map[string]models.Client
	nextID  int64
}

func (m *memClientRepo) Create(ctx context.Context, client *models.Client) error {
	if _, ok := m.clients[client.Email]; ok {
		return database.ErrDuplicateEmail
	}
	m.nextID++
	client.ID = m.nextID
	client.CreatedAt = time.Now()
	m.clients[client.Email] = *client
	return nil
}

func (m *memClientRepo) FindByEmail(ctx context.Context, email string) (models.Client, error) {
	c, ok := m.clients[email]
	if !ok {
		return models.Client{}, database.ErrClientNotFound
	}
	return c, nil
}

func (m *memClientRepo) FindByID(ctx context.Context, id int64) (models.Client, error) {
	for _, c := range m.clients {
		if c.ID == id {
			return c, nil
		}
	}
	return models.Client{}, database.ErrClientNotFound
}

func (m *memClientRepo) Activate(ctx context.Context, token string) (models.Client, error) {
	for email, c := range m.clients {
		if token != "" && c.ActivationToken == token && !c.Activated {
			c.Activated = true
			c.ActivationToken = ""
			m.clients[email] = c
			return c, nil
		}
	}
	return models.Client{}, database.ErrInvalidActivationToken
}

func (m *memClientRepo) Delete(ctx context.Context, id int64) error {
	for email, c := range m.clients {
		if c.ID == id {
			delete(m.clients, email)
			return nil
		}
	}
	return database.ErrClientNotFound
}

type memWalletRepo struct {
	coinIDs map[int64]bool
}

func (m *memWalletRepo) FindByClientID(ctx context.Context, clientID int64) (models.Wallet, error) {
	return models.Wallet{ID: clientID * 10, ClientID: clientID}, nil
}

func (m *memWalletRepo) ListCoins(ctx context.Context, walletID int64) ([]models.Coin, error) {
	return nil, nil
}

func (m *memWalletRepo) AddCoin(ctx context.Context, walletID, coinID int64) error {
	if m.coinIDs[coinID] {
		return database.ErrCoinAlreadyInWallet
	}
	m.coinIDs[coinID] = true
	return nil
}

func (m *memWalletRepo) RemoveCoin(ctx context.Context, walletID, coinID int64) error {
	if !m.coinIDs[coinID] {
		return database.ErrCoinNotInWallet
	}
	delete(m.coinIDs, coinID)
	return nil
}

type memStore struct {
	values map[string]string
}

func (m *memStore) Get(ctx context.Context, key string) (string, error) {
	v, ok := m.values[key]
	if !ok {
		return "", redisclient.ErrCacheMiss
	}
	return v, nil
}

func (m *memStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.values[key] = value
	return nil
}

func (m *memStore) Del(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func newTestAPI(t *testing.T) (*apiServer, *memCoinRepo, *memStore) {
	t.Helper()
	dir := t.TempDir()
	authCfg := &auth.Config{
		PrivateKeyPath: filepath.Join(dir, "private.pem"),
		PublicKeyPath:  filepath.Join(dir, "public.pem"),
		Issuer:         "coinapi",
		Audience:       "coinapi-clients",
		Expiration:     time.Hour,
	}
	require.NoError(t, auth.EnsureKeyPair(authCfg))
	authSvc, err := auth.NewService(authCfg)
	require.NoError(t, err)

	coins := &memCoinRepo{coins: map[string]models.Coin{
		"bitcoin": {ID: 1, Name: "bitcoin", Price: decimal.RequireFromString("61000.5")},
	}}
	store := &memStore{values: map[string]string{}}

	return &apiServer{
		coins:   coins,
		clients: &memClientRepo{clients: map[string]models.Client{}},
		wallets: &memWalletRepo{coinIDs: map[int64]bool{}},
		cache:   cache.New(store, time.Minute),
		auth:    authSvc,
		mailer:  email.NewSender(config.SMTP{}, "http://localhost:8080"),
	}, coins, store
}

func newRouter(s *apiServer) *mux.Router {
	router := mux.NewRouter()
	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/clients", s.registerClient).Methods("POST")
	api.HandleFunc("/activate/{token}", s.activateClient).Methods("GET")
	api.HandleFunc("/auth/login", s.login).Methods("POST")
	api.HandleFunc("/coins", s.listCoins).Methods("GET")
	api.HandleFunc("/coins/{name}", s.getCoin).Methods("GET")

	protected := api.PathPrefix("").Subrouter()
	protected.Use(s.auth.Middleware)
	protected.HandleFunc("/wallet", s.listWalletCoins).Methods("GET")
	protected.HandleFunc("/wallet/coins/{name}", s.addWalletCoin).Methods("POST")
	protected.HandleFunc("/wallet/coins/{name}", s.removeWalletCoin).Methods("DELETE")
	protected.HandleFunc("/clients/me", s.deleteClient).Methods("DELETE")
	return router
}

func doJSON(t *testing.T, router *mux.Router, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// activationTokenFor digs the stored activation token out of the in-memory
// repo, standing in for the link a real deployment mails out.
func activationTokenFor(t *testing.T, api *apiServer, email string) string {
	t.Helper()
	repo, ok := api.clients.(*memClientRepo)
	require.True(t, ok)
	client, ok := repo.clients[email]
	require.True(t, ok)
	require.NotEmpty(t, client.ActivationToken)
	return client.ActivationToken
}

func TestRegisterActivateLogin(t *testing.T) {
	api, _, _ := newTestAPI(t)
	router := newRouter(api)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/clients",
		models.RegisterRequest{Email: "alice@example.com", Password: "s3cret!"}, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	var created models.Client
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "alice@example.com", created.Email)
	assert.False(t, created.Activated)
	assert.NotContains(t, rec.Body.String(), "s3cret!")

	rec = doJSON(t, router, http.MethodPost, "/api/v1/clients",
		models.RegisterRequest{Email: "alice@example.com", Password: "s3cret!"}, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Correct credentials are rejected until the account is activated.
	rec = doJSON(t, router, http.MethodPost, "/api/v1/auth/login",
		models.LoginRequest{Email: "alice@example.com", Password: "s3cret!"}, "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	token := activationTokenFor(t, api, "alice@example.com")
	rec = doJSON(t, router, http.MethodGet, "/api/v1/activate/"+token, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	// The token is single-use.
	rec = doJSON(t, router, http.MethodGet, "/api/v1/activate/"+token, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/auth/login",
		models.LoginRequest{Email: "alice@example.com", Password: "s3cret!"}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["token"])

	rec = doJSON(t, router, http.MethodPost, "/api/v1/auth/login",
		models.LoginRequest{Email: "alice@example.com", Password: "wrong!!"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestActivate_UnknownToken(t *testing.T) {
	api, _, _ := newTestAPI(t)
	router := newRouter(api)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/activate/deadbeef", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListCoins_WarmsCache(t *testing.T) {
	api, _, store := newTestAPI(t)
	router := newRouter(api)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/coins", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, store.values)

	var coins []models.Coin
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &coins))
	require.Len(t, coins, 1)
	assert.Equal(t, "bitcoin", coins[0].Name)
}

func TestGetCoin_NotFound(t *testing.T) {
	api, _, _ := newTestAPI(t)
	router := newRouter(api)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/coins/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWalletFlow(t *testing.T) {
	api, _, _ := newTestAPI(t)
	router := newRouter(api)

	token, err := api.auth.GenerateToken(1, "alice@example.com")
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/wallet/coins/bitcoin", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/wallet/coins/bitcoin", nil, token)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/wallet/coins/bitcoin", nil, token)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/wallet/coins/unknown", nil, token)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, "/api/v1/wallet/coins/bitcoin", nil, token)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, "/api/v1/wallet/coins/bitcoin", nil, token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteClient(t *testing.T) {
	api, _, _ := newTestAPI(t)
	router := newRouter(api)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/clients",
		models.RegisterRequest{Email: "bob@example.com", Password: "s3cret!"}, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	var created models.Client
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	token, err := api.auth.GenerateToken(created.ID, created.Email)
	require.NoError(t, err)

	rec = doJSON(t, router, http.MethodDelete, "/api/v1/clients/me", nil, token)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/auth/login",
		models.LoginRequest{Email: "bob@example.com", Password: "s3cret!"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
