package oauth2client

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoToken is returned when claims are requested before a token was acquired.
var ErrNoToken = errors.New("oauth2: no token has been acquired")

// Claims describes the user the cached token was issued to.
type Claims struct {
	Subject           string
	Name              string
	Email             string
	PreferredUsername string
	Groups            []string
	ConnectorID       string
}

type idTokenClaims struct {
	jwt.RegisteredClaims
	Name              string   `json:"name"`
	Email             string   `json:"email"`
	PreferredUsername string   `json:"preferred_username"`
	Groups            []string `json:"groups"`
	FederatedClaims   struct {
		ConnectorID string `json:"connector_id"`
		UserID      string `json:"user_id"`
	} `json:"federated_claims"`
}

// IDTokenClaims reads the identity claims from the id_token that accompanied the
// cached access token. The signature is not verified: the token came straight from
// the issuer over the exchange, and the claims are for display only.
func (tm *TokenManager) IDTokenClaims() (*Claims, error) {
	token, ok := tm.Token()
	if !ok {
		return nil, ErrNoToken
	}

	raw, _ := token.Extra("id_token").(string)
	if raw == "" {
		return nil, errors.New("oauth2: token response did not include an id_token")
	}

	parsed := &idTokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, parsed); err != nil {
		return nil, fmt.Errorf("oauth2: parse id_token: %w", err)
	}

	return &Claims{
		Subject:           parsed.Subject,
		Name:              parsed.Name,
		Email:             parsed.Email,
		PreferredUsername: parsed.PreferredUsername,
		Groups:            parsed.Groups,
		ConnectorID:       parsed.FederatedClaims.ConnectorID,
	}, nil
}
