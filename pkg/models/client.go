package models

import (
	"time"

	"github.com/Allamymp/coinApiPortfolio/pkg/validation"
)

// Client is a registered account. Each client owns exactly one wallet.
// Accounts start deactivated and unlock once the mailed activation token
// is redeemed.
type Client struct {
	ID              int64     `json:"id"`
	Email           string    `json:"email" validate:"required,email"`
	PasswordHash    string    `json:"-"`
	Activated       bool      `json:"activated"`
	ActivationToken string    `json:"-"`
	CreatedAt       time.Time `json:"created_at"`
}

// Validate validates the Client struct
func (c Client) Validate() error {
	if errors := validation.ValidateStruct(c); len(errors) > 0 {
		return errors
	}
	return nil
}

// Sanitize cleans the Client data
func (c *Client) Sanitize() {
	c.Email = validation.SanitizeEmail(c.Email)
}

// Wallet associates a client with the coins it tracks. Coin market data
// itself lives on the Coin records; the wallet only holds references.
type Wallet struct {
	ID       int64 `json:"id"`
	ClientID int64 `json:"client_id"`
}

// RegisterRequest is the payload for client registration.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,password"`
}

// Validate validates the RegisterRequest struct
func (r RegisterRequest) Validate() error {
	if errors := validation.ValidateStruct(r); len(errors) > 0 {
		return errors
	}
	return nil
}

// Sanitize cleans the RegisterRequest data
func (r *RegisterRequest) Sanitize() {
	r.Email = validation.SanitizeEmail(r.Email)
}

// LoginRequest is the payload for token issuance.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Validate validates the LoginRequest struct
func (r LoginRequest) Validate() error {
	if errors := validation.ValidateStruct(r); len(errors) > 0 {
		return errors
	}
	return nil
}

// Sanitize cleans the LoginRequest data
func (r *LoginRequest) Sanitize() {
	r.Email = validation.SanitizeEmail(r.Email)
}
