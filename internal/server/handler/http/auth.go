package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/etrax-rescue/etrax-rescue-app-interface/internal/middleware"
	"github.com/etrax-rescue/etrax-rescue-app-interface/internal/models"
	"github.com/etrax-rescue/etrax-rescue-app-interface/internal/service"
)

// serverMagic identifies this server to the app during connection setup.
const (
	serverMagic   = "eTrax|rescue"
	serverVersion = "5.0.0"
)

// AuthService defines the authentication operations required by the HTTP
// handlers.
type AuthService interface {
	// Login verifies credentials and issues a session token.
	Login(ctx context.Context, organizationID, username, password string) (*service.Session, error)
	// Logout revokes the user's session.
	Logout(ctx context.Context, user *models.User) error
}

// OrganizationLister lists the organizations offered on the login screen.
type OrganizationLister interface {
	ListActive(ctx context.Context) ([]models.Organization, error)
}

// AuthHandler handles version probing, organization listing and session
// management.
type AuthHandler struct {
	AuthService AuthService
	Orgs        OrganizationLister
	Log         *zap.Logger
}

// Version handles GET /version. The app uses the magic value to verify it
// is talking to a compatible server.
func (h *AuthHandler) Version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"magic": serverMagic, "version": serverVersion})
}

// organizationEntry is one row of the organization listing.
type organizationEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Organizations handles GET /organizations and returns the registered
// active organizations.
func (h *AuthHandler) Organizations(w http.ResponseWriter, r *http.Request) {
	orgs, err := h.Orgs.ListActive(r.Context())
	if err != nil {
		writeServiceError(w, h.Log, err)
		return
	}

	entries := make([]organizationEntry, 0, len(orgs))
	for i := range orgs {
		entries = append(entries, organizationEntry{
			ID:   orgs[i].OID,
			Name: orgs[i].Field("bezeichnung"),
		})
	}
	writeJSON(w, entries)
}

// loginRequest represents the credentials payload of a login request.
type loginRequest struct {
	OrganizationID string `json:"organization_id"`
	Username       string `json:"username"`
	Password       string `json:"password"`
}

// Login handles POST /login. Credentials arrive as JSON or as form fields.
// On success the response carries the raw bearer token (the only time it
// leaves the server), the issuing time in unix seconds and the expiry in
// unix milliseconds, both as strings.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeLoginRequest(r)
	if !ok || req.OrganizationID == "" || req.Username == "" || req.Password == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	session, err := h.AuthService.Login(r.Context(), req.OrganizationID, req.Username, req.Password)
	if err != nil {
		writeServiceError(w, h.Log, err)
		return
	}

	writeJSON(w, map[string]string{
		"token":           session.Token,
		"issuingDate":     strconv.FormatInt(session.IssuedAt.Unix(), 10),
		"expiration_date": strconv.FormatInt(session.ExpiresAt.UnixMilli(), 10),
	})
}

// Logout handles GET /logout for the authenticated user.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())

	if err := h.AuthService.Logout(r.Context(), user); err != nil {
		writeServiceError(w, h.Log, err)
		return
	}
	_, _ = w.Write([]byte("ok"))
}

func decodeLoginRequest(r *http.Request) (loginRequest, bool) {
	var req loginRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, false
		}
		return req, true
	}
	if err := r.ParseForm(); err != nil {
		return req, false
	}
	req.OrganizationID = r.PostFormValue("organization_id")
	req.Username = r.PostFormValue("username")
	req.Password = r.PostFormValue("password")
	return req, true
}
