package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"

	"github.com/MokshitBindal/Aegis-sub000/internal/models"
)

// InvitationTTL is how long a device-registration invitation stays valid.
const InvitationTTL = 24 * time.Hour

// WithSSO configures the optional OIDC login alternative (SPEC_FULL
// supplemented feature). Login at /auth/login remains available regardless.
func (s *Server) WithSSO(ctx context.Context, issuerURL, clientID, clientSecret, redirectURL string) error {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return err
	}
	s.oidcVerifier = provider.Verifier(&oidc.Config{ClientID: clientID})
	s.oauth2Config = &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     provider.Endpoint(),
		Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
	}
	return nil
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// handleLogin is POST /auth/login: form-encoded username/password, per
// spec §6 (mirroring the original OAuth2-password-flow contract).
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "malformed form body")
		return
	}
	email := r.FormValue("username")
	password := r.FormValue("password")
	if email == "" || password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	user, ok, err := s.Store.GetUserByEmail(r.Context(), email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !ok || !user.IsActive || bcrypt.CompareHashAndPassword([]byte(user.PassHash), []byte(password)) != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	now := s.now()
	token, err := s.issueToken(user, now)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if err := s.Store.TouchLastLogin(r.Context(), user.ID, now); err != nil {
		s.Logger.Warn().Err(err).Str("user_id", user.ID).Msg("httpapi: touch last login failed")
	}
	writeJSON(w, http.StatusOK, loginResponse{AccessToken: token, TokenType: "bearer"})
}

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// handleSignup is POST /auth/signup: self-service device_user creation
// (spec §6). admin/owner accounts are never created this way.
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	if _, exists, err := s.Store.GetUserByEmail(r.Context(), req.Email); err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	} else if exists {
		writeError(w, http.StatusConflict, "an account with this email already exists")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	user := models.User{
		ID:       ulid.Make().String(),
		Email:    req.Email,
		PassHash: string(hash),
		Role:     models.RoleDeviceUser,
		IsActive: true,
	}
	if err := s.Store.CreateUser(r.Context(), user); err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

type invitationResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// handleCreateInvitation is POST /api/device/create-invitation: any
// authenticated user may mint a single-use device-registration token for
// themselves (spec §6). The raw token is shown once; only its hash persists.
func (s *Server) handleCreateInvitation(w http.ResponseWriter, r *http.Request) {
	actor := userFromContext(r.Context())

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	token := hex.EncodeToString(raw)

	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	now := s.now()
	expiresAt := now.Add(InvitationTTL)
	inv := models.Invitation{
		ID:        ulid.Make().String(),
		UserID:    actor.ID,
		TokenHash: string(hash),
		ExpiresAt: expiresAt,
	}
	if err := s.Store.CreateInvitation(r.Context(), inv); err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusCreated, invitationResponse{Token: token, ExpiresAt: expiresAt})
}

type deviceRegisterRequest struct {
	Token    string `json:"token"`
	AgentID  string `json:"agent_id"`
	Hostname string `json:"hostname"`
	Name     string `json:"name"`
}

// handleDeviceRegister is POST /api/device/register: matches Token against
// every unexpired invitation's hash (no indexed lookup — the token is
// opaque at rest, per internal/store.FindUnexpiredInvitations), then
// creates the Device and deletes the invitation (spec §6).
func (s *Server) handleDeviceRegister(w http.ResponseWriter, r *http.Request) {
	var req deviceRegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" || req.AgentID == "" || req.Hostname == "" {
		writeError(w, http.StatusBadRequest, "token, agent_id and hostname are required")
		return
	}
	if _, err := uuid.Parse(req.AgentID); err != nil {
		writeError(w, http.StatusBadRequest, "agent_id must be a UUID")
		return
	}

	now := s.now()
	invitations, err := s.Store.FindUnexpiredInvitations(r.Context(), now)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	var matched *models.Invitation
	for i := range invitations {
		if bcrypt.CompareHashAndPassword([]byte(invitations[i].TokenHash), []byte(req.Token)) == nil {
			matched = &invitations[i]
			break
		}
	}
	if matched == nil {
		writeError(w, http.StatusUnauthorized, "invalid or expired invitation token")
		return
	}

	if _, exists, err := s.Store.GetDeviceByAgentID(r.Context(), req.AgentID); err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	} else if exists {
		writeError(w, http.StatusConflict, "a device with this agent id is already registered")
		return
	}

	device := models.Device{
		ID:           ulid.Make().String(),
		AgentID:      req.AgentID,
		Hostname:     req.Hostname,
		Name:         req.Name,
		UserID:       matched.UserID,
		RegisteredAt: now,
		Status:       models.DeviceOnline,
		LastSeen:     now,
	}
	if err := s.Store.RegisterDevice(r.Context(), device); err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if err := s.Store.ConsumeInvitation(r.Context(), matched.ID); err != nil {
		s.Logger.Warn().Err(err).Str("invitation_id", matched.ID).Msg("httpapi: consume invitation failed")
	}
	writeJSON(w, http.StatusCreated, device)
}

// handleSSOLogin is POST /auth/sso/login: redirects to the configured OIDC
// provider's authorization endpoint. 501 if SSO was never configured.
func (s *Server) handleSSOLogin(w http.ResponseWriter, r *http.Request) {
	if s.oauth2Config == nil {
		writeError(w, http.StatusNotImplemented, "sso is not configured")
		return
	}
	state := r.URL.Query().Get("state")
	http.Redirect(w, r, s.oauth2Config.AuthCodeURL(state), http.StatusFound)
}

type ssoCallbackRequest struct {
	Code string `json:"code"`
}

// handleSSOCallback is POST /auth/sso/callback: exchanges the authorization
// code, verifies the ID token, and issues the same session token shape as
// POST /auth/login, provisioning a device_user on first sight.
func (s *Server) handleSSOCallback(w http.ResponseWriter, r *http.Request) {
	if s.oauth2Config == nil || s.oidcVerifier == nil {
		writeError(w, http.StatusNotImplemented, "sso is not configured")
		return
	}
	var req ssoCallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}

	oauth2Token, err := s.oauth2Config.Exchange(r.Context(), req.Code)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "token exchange failed")
		return
	}
	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		writeError(w, http.StatusUnauthorized, "provider response missing id_token")
		return
	}
	idToken, err := s.oidcVerifier.Verify(r.Context(), rawIDToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "id token verification failed")
		return
	}
	var claims struct {
		Email string `json:"email"`
	}
	if err := idToken.Claims(&claims); err != nil || claims.Email == "" {
		writeError(w, http.StatusUnauthorized, "id token missing email claim")
		return
	}

	user, exists, err := s.Store.GetUserByEmail(r.Context(), claims.Email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !exists {
		user = models.User{ID: ulid.Make().String(), Email: claims.Email, Role: models.RoleDeviceUser, IsActive: true}
		if err := s.Store.CreateUser(r.Context(), user); err != nil {
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
	}

	now := s.now()
	token, err := s.issueToken(user, now)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if err := s.Store.TouchLastLogin(r.Context(), user.ID, now); err != nil {
		s.Logger.Warn().Err(err).Str("user_id", user.ID).Msg("httpapi: touch last login failed")
	}
	writeJSON(w, http.StatusOK, loginResponse{AccessToken: token, TokenType: "bearer"})
}
