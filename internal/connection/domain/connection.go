package domain

import (
	"time"

	"golang.org/x/oauth2"
)

type Provider string

const (
	ProviderGmail   Provider = "gmail"
	ProviderHubSpot Provider = "hubspot"
	ProviderZoho    Provider = "zoho"
)

func (p Provider) Valid() bool {
	switch p {
	case ProviderGmail, ProviderHubSpot, ProviderZoho:
		return true
	}
	return false
}

// Connection is a stored OAuth grant for one (user, provider) pair.
type Connection struct {
	UserID       string    `json:"user_id"`
	Provider     Provider  `json:"provider"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	Expiry       time.Time `json:"expiry"`
	Scopes       []string  `json:"scopes,omitempty"`
	Email        string    `json:"email,omitempty"`
	// APIDomain is the API root handed out with the token (Zoho data centers).
	APIDomain   string    `json:"api_domain,omitempty"`
	PortalID    string    `json:"portal_id,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (c *Connection) OAuthToken() *oauth2.Token {
	tokenType := c.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    tokenType,
		Expiry:       c.Expiry,
	}
}

// ApplyToken copies a refreshed token in, keeping the old refresh token when
// the provider does not rotate it.
func (c *Connection) ApplyToken(t *oauth2.Token) {
	c.AccessToken = t.AccessToken
	if t.RefreshToken != "" {
		c.RefreshToken = t.RefreshToken
	}
	if t.TokenType != "" {
		c.TokenType = t.TokenType
	}
	c.Expiry = t.Expiry
	if apiDomain, ok := t.Extra("api_domain").(string); ok && apiDomain != "" {
		c.APIDomain = apiDomain
	}
	c.UpdatedAt = time.Now().UTC()
}

// ConnectRequest carries the tokens produced by the provider handshake.
type ConnectRequest struct {
	AccessToken  string    `json:"access_token" binding:"required"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	Expiry       time.Time `json:"expiry"`
	ExpiresIn    int64     `json:"expires_in"`
	Scopes       []string  `json:"scopes"`
	Email        string    `json:"email"`
	APIDomain    string    `json:"api_domain"`
	PortalID     string    `json:"portal_id"`
}

type ConnectionSummary struct {
	Provider    Provider  `json:"provider"`
	Connected   bool      `json:"connected"`
	Email       string    `json:"email,omitempty"`
	ConnectedAt time.Time `json:"connected_at,omitempty"`
}
