package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"gtodo/internal/config"
)

const (
	// OAuth scope for Google Tasks
	TasksScope = "https://www.googleapis.com/auth/tasks"

	// OAuth callback timeout
	oauthCallbackTimeout = 5 * time.Minute

	// Token exchange timeout
	tokenExchangeTimeout = 30 * time.Second

	// Starting port for OAuth callback server
	oauthStartPort = 8085

	// Max port attempts
	oauthMaxPortAttempts = 5
)

// Scopes requested at sign-in.
var Scopes = []string{TasksScope, oauth2api.UserinfoProfileScope}

var (
	// ErrCallbackTimeout is returned when the browser never calls back.
	ErrCallbackTimeout = errors.New("oauth callback timed out")

	// ErrNoPort is returned when no callback port could be bound.
	ErrNoPort = errors.New("could not bind to local port for OAuth callback")
)

// Google signs in with a Google account using the desktop OAuth flow.
type Google struct {
	cfg *config.Config
}

// NewGoogle creates a Google provider reading credentials from cfg.Dir.
func NewGoogle(cfg *config.Config) *Google {
	return &Google{cfg: cfg}
}

// SignIn opens a local callback server, prints the consent URL to prompt,
// exchanges the returned code (PKCE) and stores token and identity.
func (g *Google) SignIn(ctx context.Context, prompt io.Writer) (Identity, error) {
	oauthConfig, err := loadOAuthConfig(g.cfg)
	if err != nil {
		return Identity{}, &Error{Op: "signin", Err: err}
	}

	// Find available port
	port, listener, err := findAvailablePort()
	if err != nil {
		return Identity{}, &Error{Op: "signin", Err: ErrNoPort}
	}
	defer listener.Close()

	oauthConfig.RedirectURL = fmt.Sprintf("http://localhost:%d/callback", port)

	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()
	authURL := oauthConfig.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(verifier),
	)

	fmt.Fprintln(prompt, "Open this URL in your browser:")
	fmt.Fprintln(prompt, authURL)

	code, err := waitForCode(ctx, listener, state)
	if err != nil {
		return Identity{}, &Error{Op: "signin", Err: err}
	}

	// Exchange code for token
	exchangeCtx, cancelExchange := context.WithTimeout(ctx, tokenExchangeTimeout)
	defer cancelExchange()

	token, err := oauthConfig.Exchange(exchangeCtx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return Identity{}, &Error{Op: "signin", Err: fmt.Errorf("failed to exchange code for token: %w", err)}
	}

	if err := g.cfg.EnsureDir(); err != nil {
		return Identity{}, &Error{Op: "signin", Err: fmt.Errorf("failed to create config directory: %w", err)}
	}
	if err := saveToken(g.cfg.TokenPath(), token); err != nil {
		return Identity{}, &Error{Op: "signin", Err: fmt.Errorf("failed to save token: %w", err)}
	}

	id, err := fetchIdentity(exchangeCtx, oauthConfig.Client(exchangeCtx, token))
	if err != nil {
		return Identity{}, &Error{Op: "signin", Err: err}
	}
	if err := SaveIdentity(g.cfg, id); err != nil {
		return Identity{}, &Error{Op: "signin", Err: fmt.Errorf("failed to save identity: %w", err)}
	}
	return id, nil
}

// SignOut removes the local token and identity.
func (g *Google) SignOut(ctx context.Context) error {
	_, err := SignOut(g.cfg)
	return err
}

// HTTPClient returns an authorized client that refreshes the stored token.
// Requires oauth_client.json and token.json to exist.
func HTTPClient(ctx context.Context, cfg *config.Config) (*http.Client, error) {
	oauthConfig, err := loadOAuthConfig(cfg)
	if err != nil {
		return nil, &Error{Op: "load", Err: err}
	}
	token, err := loadToken(cfg.TokenPath())
	if err != nil {
		return nil, &Error{Op: "load", Err: err}
	}
	return oauth2.NewClient(ctx, oauthConfig.TokenSource(ctx, token)), nil
}

// TokenValid checks if the stored token is parseable, has a refresh token,
// and can be refreshed against Google.
func TokenValid(cfg *config.Config) bool {
	token, err := loadToken(cfg.TokenPath())
	if err != nil || token.RefreshToken == "" {
		return false
	}
	oauthConfig, err := loadOAuthConfig(cfg)
	if err != nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err = oauthConfig.TokenSource(ctx, token).Token()
	return err == nil
}

func loadOAuthConfig(cfg *config.Config) (*oauth2.Config, error) {
	clientJSON, err := os.ReadFile(cfg.OAuthClientPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", config.OAuthClientFile, err)
	}
	oauthConfig, err := google.ConfigFromJSON(clientJSON, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", config.OAuthClientFile, err)
	}
	return oauthConfig, nil
}

func loadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", config.TokenFile, err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", config.TokenFile, err)
	}
	return &token, nil
}

// saveToken saves an OAuth token to a file with mode 0600.
func saveToken(path string, token *oauth2.Token) error {
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// waitForCode serves /callback on listener until the browser returns a code
// for state, the timeout elapses, or ctx is cancelled.
func waitForCode(ctx context.Context, listener net.Listener, state string) (string, error) {
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "State mismatch", http.StatusBadRequest)
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "No code in callback", http.StatusBadRequest)
			select {
			case errCh <- errors.New("no code in callback"):
			default:
			}
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body><h1>Authentication successful</h1><p>You may close this window.</p></body></html>")
		select {
		case codeCh <- code:
		default:
		}
	})

	server := &http.Server{Handler: mux}
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			select {
			case errCh <- err:
			default:
			}
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	select {
	case code := <-codeCh:
		return code, nil
	case err := <-errCh:
		return "", err
	case <-time.After(oauthCallbackTimeout):
		return "", ErrCallbackTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// fetchIdentity asks Google who the token belongs to.
func fetchIdentity(ctx context.Context, client *http.Client) (Identity, error) {
	svc, err := oauth2api.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return Identity{}, fmt.Errorf("failed to create userinfo service: %w", err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return Identity{}, fmt.Errorf("failed to fetch user info: %w", err)
	}
	name := info.Name
	if name == "" {
		name = info.Email
	}
	return Identity{
		UserID:          info.Id,
		DisplayName:     name,
		ProfileImageURL: info.Picture,
	}, nil
}

// findAvailablePort tries to find an available port starting from oauthStartPort.
func findAvailablePort() (int, net.Listener, error) {
	for i := 0; i < oauthMaxPortAttempts; i++ {
		port := oauthStartPort + i
		addr := fmt.Sprintf("localhost:%d", port)
		listener, err := net.Listen("tcp", addr)
		if err == nil {
			return port, listener, nil
		}
	}
	return 0, nil, fmt.Errorf("no available port found")
}
