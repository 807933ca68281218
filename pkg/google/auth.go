package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/calmirror/calmirror/internal/config"
	"github.com/calmirror/calmirror/internal/rest"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
)

// ErrUnauthenticated is returned when no usable Google credentials are
// available. Tasks failing with it must not be retried.
var ErrUnauthenticated = errors.New("google: authentication required")

type authRedirect struct {
	RedirectUrl string `json:"redirectUrl"`
}

// Auth manages the OAuth credentials for the Google Calendar API. The client
// secret comes from a downloaded credentials JSON file and the user token is
// persisted to a JSON file with an atomic rewrite, so several workers can
// share it without corrupting it.
type Auth struct {
	tokenFile   string
	oauthConfig *oauth2.Config

	mu     sync.Mutex
	nonces map[string]string
}

func NewAuth(cfg config.Application) (*Auth, error) {
	data, err := os.ReadFile(cfg.Google.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read Google credentials file %s: %w", cfg.Google.CredentialsFile, err)
	}
	oauthConfig, err := google.ConfigFromJSON(data, gcal.CalendarReadonlyScope, gcal.CalendarEventsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse Google credentials file: %w", err)
	}
	oauthConfig.RedirectURL = cfg.Host + "/api/integrations/google/auth/callback"

	return &Auth{
		tokenFile:   cfg.Google.TokenFile,
		oauthConfig: oauthConfig,
		nonces:      map[string]string{},
	}, nil
}

// OAuthLogin returns the Google consent URL the frontend should redirect to.
func (a *Auth) OAuthLogin(w http.ResponseWriter, r *http.Request) {
	stateNonce := uuid.New().String()
	finalUrl := r.URL.Query().Get("finalUrl")

	a.mu.Lock()
	a.nonces[stateNonce] = finalUrl
	a.mu.Unlock()

	log.Tracef("Redirecting to Google auth URL with nonce: %s", stateNonce)
	u := a.oauthConfig.AuthCodeURL(finalUrl+"|"+stateNonce, oauth2.AccessTypeOffline, oauth2.ApprovalForce)

	rest.WriteJSON(w, http.StatusOK, authRedirect{RedirectUrl: u})
}

// OAuthCallback exchanges the authorization code and persists the token file.
func (a *Auth) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.FormValue("code")
	state := r.FormValue("state")

	parts := strings.SplitN(state, "|", 2)
	if len(parts) != 2 {
		rest.WriteError(w, http.StatusBadRequest, "invalid state")
		return
	}
	finalUrl := parts[0]
	nonce := parts[1]

	a.mu.Lock()
	_, known := a.nonces[nonce]
	delete(a.nonces, nonce)
	a.mu.Unlock()
	if !known {
		rest.WriteError(w, http.StatusForbidden, "unknown state nonce")
		return
	}

	token, err := a.oauthConfig.Exchange(r.Context(), code)
	if err != nil {
		log.Errorf("unable to exchange code for token: %v", err)
		http.Redirect(w, r, finalUrl+"?success=false", http.StatusFound)
		return
	}

	if err := a.saveToken(token); err != nil {
		log.Errorf("unable to store Google auth token: %v", err)
		http.Redirect(w, r, finalUrl+"?success=false", http.StatusFound)
		return
	}
	log.Debug("Successfully stored Google auth token")
	http.Redirect(w, r, finalUrl+"?success=true", http.StatusFound)
}

// OAuthLogout removes the stored token file.
func (a *Auth) OAuthLogout(w http.ResponseWriter, r *http.Request) {
	if err := os.Remove(a.tokenFile); err != nil && !os.IsNotExist(err) {
		log.Errorf("failed to remove Google token file: %v", err)
		rest.WriteError(w, http.StatusInternalServerError, "Failed to handle Google authentication")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *Auth) loadToken() (*oauth2.Token, error) {
	data, err := os.ReadFile(a.tokenFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("token file %s not found: %w", a.tokenFile, ErrUnauthenticated)
		}
		return nil, fmt.Errorf("unable to read token file: %w", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("invalid token file %s: %w", a.tokenFile, ErrUnauthenticated)
	}
	return &token, nil
}

func (a *Auth) saveToken(token *oauth2.Token) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("could not marshal token: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(a.tokenFile), ".token-*")
	if err != nil {
		return fmt.Errorf("could not create temp token file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("could not write token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("could not close temp token file: %w", err)
	}
	if err := os.Rename(tmpName, a.tokenFile); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("could not replace token file: %w", err)
	}
	return nil
}

// Client returns an HTTP client that authenticates with the stored token and
// writes refreshed tokens back to the token file.
func (a *Auth) Client(ctx context.Context) (*http.Client, error) {
	token, err := a.loadToken()
	if err != nil {
		return nil, err
	}
	source := &persistingTokenSource{
		auth:     a,
		delegate: a.oauthConfig.TokenSource(ctx, token),
		last:     token,
	}
	return oauth2.NewClient(ctx, source), nil
}

// persistingTokenSource saves the token file whenever the delegate source
// hands out a refreshed access token.
type persistingTokenSource struct {
	auth     *Auth
	delegate oauth2.TokenSource

	mu   sync.Mutex
	last *oauth2.Token
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.delegate.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	refreshed := s.last == nil || token.AccessToken != s.last.AccessToken
	s.last = token
	s.mu.Unlock()

	if refreshed {
		if err := s.auth.saveToken(token); err != nil {
			log.Errorf("failed to persist refreshed Google token: %v", err)
		} else {
			log.Debug("Persisted refreshed Google token")
		}
	}
	return token, nil
}
