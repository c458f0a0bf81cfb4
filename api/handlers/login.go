package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bpm-extensions/keycloak-identity/internal/authn"
)

const stateCookie = "sso_state"

// Login starts the SSO flow: it stores a fresh state nonce in a short-lived
// cookie and redirects to the realm's authorization endpoint.
func Login(sso *SSO) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := uuid.NewString()
		http.SetCookie(w, &http.Cookie{
			Name:     stateCookie,
			Value:    state,
			Path:     "/",
			MaxAge:   300,
			HttpOnly: true,
		})
		http.Redirect(w, r, sso.oauth2Config.AuthCodeURL(state), http.StatusFound)
	}
}

// Callback completes the SSO flow: it verifies the state nonce, exchanges
// the authorization code, verifies the ID token and issues the app's own
// session cookie.
func Callback(sso *SSO) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := zerolog.Ctx(r.Context()).With().Str("handler", "Callback").Logger()

		state, err := r.Cookie(stateCookie)
		if err != nil || state.Value == "" || state.Value != r.URL.Query().Get("state") {
			logger.Error().Msg("state mismatch in SSO callback")
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}

		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing authorization code", http.StatusBadRequest)
			return
		}

		token, err := sso.oauth2Config.Exchange(r.Context(), code)
		if err != nil {
			logger.Error().Err(err).Msg("code exchange failed")
			http.Error(w, "code exchange failed", http.StatusUnauthorized)
			return
		}

		rawIDToken, ok := token.Extra("id_token").(string)
		if !ok {
			logger.Error().Msg("token response carries no id_token")
			http.Error(w, "missing id_token", http.StatusUnauthorized)
			return
		}

		idToken, err := sso.verifier.Verify(r.Context(), rawIDToken)
		if err != nil {
			logger.Error().Err(err).Msg("ID token verification failed")
			http.Error(w, "invalid id_token", http.StatusUnauthorized)
			return
		}

		var claims struct {
			Username string `json:"preferred_username"`
			Email    string `json:"email"`
		}
		if err := idToken.Claims(&claims); err != nil {
			logger.Error().Err(err).Msg("failed to parse ID token claims")
			http.Error(w, "invalid claims", http.StatusUnauthorized)
			return
		}

		ttl := time.Duration(sso.session.TTLMinutes) * time.Minute
		if ttl <= 0 {
			ttl = time.Hour
		}
		session, err := authn.NewSessionToken([]byte(sso.session.Secret), claims.Username, claims.Email, ttl)
		if err != nil {
			logger.Error().Err(err).Msg("failed to sign session token")
			http.Error(w, "login failed", http.StatusInternalServerError)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     sso.session.CookieName,
			Value:    session,
			Path:     "/",
			MaxAge:   int(ttl.Seconds()),
			HttpOnly: true,
		})
		http.SetCookie(w, &http.Cookie{Name: stateCookie, Path: "/", MaxAge: -1})

		logger.Info().Str("user", claims.Username).Msg("SSO login succeeded")
		http.Redirect(w, r, "/api/profile", http.StatusFound)
	}
}

// Logout clears the session cookie.
func Logout(sso *SSO) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{
			Name:     sso.session.CookieName,
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
		})
		w.WriteHeader(http.StatusNoContent)
	}
}
