package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/Allamymp/coinApiPortfolio/pkg/auth"
	"github.com/Allamymp/coinApiPortfolio/pkg/cache"
	"github.com/Allamymp/coinApiPortfolio/pkg/database"
	"github.com/Allamymp/coinApiPortfolio/pkg/email"
	"github.com/Allamymp/coinApiPortfolio/pkg/logger"
	"github.com/Allamymp/coinApiPortfolio/pkg/models"
)

type apiServer struct {
	coins   database.CoinRepository
	clients database.ClientRepository
	wallets database.WalletRepository
	cache   *cache.CoinCache
	auth    *auth.Service
	mailer  *email.Sender
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Error("failed to encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// registerClient creates a new client account with its wallet and sends the
// activation mail. The account stays inactive until the token is redeemed.
func (s *apiServer) registerClient(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Sanitize()
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		logger.Log.Error("failed to hash password", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	token, err := auth.NewActivationToken()
	if err != nil {
		logger.Log.Error("failed to generate activation token", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	client := models.Client{Email: req.Email, PasswordHash: hash, ActivationToken: token}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := s.clients.Create(ctx, &client); err != nil {
		if errors.Is(err, database.ErrDuplicateEmail) {
			writeError(w, http.StatusConflict, "email already registered")
			return
		}
		logger.Log.Error("failed to create client", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	// mail delivery must not block or fail registration
	go func(to, token string) {
		if err := s.mailer.SendActivation(to, token); err != nil {
			logger.Log.Warn("activation email failed", zap.String("to", to), zap.Error(err))
		}
	}(client.Email, token)

	writeJSON(w, http.StatusCreated, client)
}

// activateClient redeems a single-use activation token from the mailed link.
func (s *apiServer) activateClient(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	client, err := s.clients.Activate(ctx, token)
	if err != nil {
		if errors.Is(err, database.ErrInvalidActivationToken) {
			writeError(w, http.StatusNotFound, "invalid activation token")
			return
		}
		logger.Log.Error("failed to activate client", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	go func(to string) {
		if err := s.mailer.SendWelcome(to); err != nil {
			logger.Log.Warn("welcome email failed", zap.String("to", to), zap.Error(err))
		}
	}(client.Email)

	writeJSON(w, http.StatusOK, map[string]string{"status": "activated"})
}

// login verifies credentials and issues a signed token.
func (s *apiServer) login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Sanitize()
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	client, err := s.clients.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, database.ErrClientNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		logger.Log.Error("failed to look up client", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if err := auth.CheckPassword(client.PasswordHash, req.Password); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if !client.Activated {
		writeError(w, http.StatusForbidden, "account not activated")
		return
	}

	token, err := s.auth.GenerateToken(client.ID, client.Email)
	if err != nil {
		logger.Log.Error("failed to generate token", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// listCoins serves the tracked coin universe, read through the cache.
func (s *apiServer) listCoins(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if coins, ok := s.cache.Get(ctx); ok {
		writeJSON(w, http.StatusOK, coins)
		return
	}

	coins, err := s.coins.FindAll(ctx)
	if err != nil {
		logger.Log.Error("failed to list coins", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if err := s.cache.Put(ctx, coins); err != nil {
		logger.Log.Warn("failed to warm coin cache", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, coins)
}

func (s *apiServer) getCoin(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	coin, err := s.coins.FindByName(ctx, name)
	if err != nil {
		if errors.Is(err, database.ErrCoinNotFound) {
			writeError(w, http.StatusNotFound, "coin not found")
			return
		}
		logger.Log.Error("failed to get coin", zap.Error(err), zap.String("coin", name))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, coin)
}

func (s *apiServer) listWalletCoins(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClientFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	wallet, err := s.wallets.FindByClientID(ctx, claims.ClientID)
	if err != nil {
		logger.Log.Error("failed to find wallet", zap.Error(err), zap.Int64("client_id", claims.ClientID))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	coins, err := s.wallets.ListCoins(ctx, wallet.ID)
	if err != nil {
		logger.Log.Error("failed to list wallet coins", zap.Error(err), zap.Int64("wallet_id", wallet.ID))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, coins)
}

func (s *apiServer) addWalletCoin(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClientFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	name := mux.Vars(r)["name"]

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	coin, err := s.coins.FindByName(ctx, name)
	if err != nil {
		if errors.Is(err, database.ErrCoinNotFound) {
			writeError(w, http.StatusNotFound, "coin not found")
			return
		}
		logger.Log.Error("failed to get coin", zap.Error(err), zap.String("coin", name))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	wallet, err := s.wallets.FindByClientID(ctx, claims.ClientID)
	if err != nil {
		logger.Log.Error("failed to find wallet", zap.Error(err), zap.Int64("client_id", claims.ClientID))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if err := s.wallets.AddCoin(ctx, wallet.ID, coin.ID); err != nil {
		if errors.Is(err, database.ErrCoinAlreadyInWallet) {
			writeError(w, http.StatusConflict, "coin already in wallet")
			return
		}
		logger.Log.Error("failed to add wallet coin", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) removeWalletCoin(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClientFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	name := mux.Vars(r)["name"]

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	coin, err := s.coins.FindByName(ctx, name)
	if err != nil {
		if errors.Is(err, database.ErrCoinNotFound) {
			writeError(w, http.StatusNotFound, "coin not found")
			return
		}
		logger.Log.Error("failed to get coin", zap.Error(err), zap.String("coin", name))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	wallet, err := s.wallets.FindByClientID(ctx, claims.ClientID)
	if err != nil {
		logger.Log.Error("failed to find wallet", zap.Error(err), zap.Int64("client_id", claims.ClientID))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if err := s.wallets.RemoveCoin(ctx, wallet.ID, coin.ID); err != nil {
		if errors.Is(err, database.ErrCoinNotInWallet) {
			writeError(w, http.StatusNotFound, "coin not in wallet")
			return
		}
		logger.Log.Error("failed to remove wallet coin", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// deleteClient removes the authenticated account; the wallet and its
// associations go with it via cascading deletes.
func (s *apiServer) deleteClient(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClientFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := s.clients.Delete(ctx, claims.ClientID); err != nil {
		if errors.Is(err, database.ErrClientNotFound) {
			writeError(w, http.StatusNotFound, "client not found")
			return
		}
		logger.Log.Error("failed to delete client", zap.Error(err), zap.Int64("client_id", claims.ClientID))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
