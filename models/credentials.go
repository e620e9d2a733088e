// ABOUTME: OAuth credential bundle stored encrypted on each connected mail account
// ABOUTME: Converts to and from oauth2 tokens and merges rotated tokens over stored ones
package models

import (
	"time"

	"golang.org/x/oauth2"
)

// CredentialBundle is the plaintext form of ConnectedMailAccount.EncryptedCredentials.
// ExpiryDate is unix milliseconds, zero when unknown.
type CredentialBundle struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiryDate   int64  `json:"expiry_date,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// BundleFromToken captures an oauth2 token as a bundle.
func BundleFromToken(tok *oauth2.Token) *CredentialBundle {
	if tok == nil {
		return &CredentialBundle{}
	}
	b := &CredentialBundle{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
	}
	if !tok.Expiry.IsZero() {
		b.ExpiryDate = tok.Expiry.UnixMilli()
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		b.Scope = scope
	}
	return b
}

// Token converts the bundle into an oauth2 token usable by a token source.
func (b *CredentialBundle) Token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  b.AccessToken,
		RefreshToken: b.RefreshToken,
		TokenType:    b.TokenType,
	}
	if b.ExpiryDate > 0 {
		tok.Expiry = time.UnixMilli(b.ExpiryDate)
	}
	return tok
}

// Merge returns a copy of b with the non-empty fields of rotated applied.
// Providers usually omit the refresh token on refresh, so it survives.
func (b *CredentialBundle) Merge(rotated *CredentialBundle) *CredentialBundle {
	out := *b
	if rotated == nil {
		return &out
	}
	if rotated.AccessToken != "" {
		out.AccessToken = rotated.AccessToken
	}
	if rotated.RefreshToken != "" {
		out.RefreshToken = rotated.RefreshToken
	}
	if rotated.ExpiryDate != 0 {
		out.ExpiryDate = rotated.ExpiryDate
	}
	if rotated.TokenType != "" {
		out.TokenType = rotated.TokenType
	}
	if rotated.Scope != "" {
		out.Scope = rotated.Scope
	}
	return &out
}
