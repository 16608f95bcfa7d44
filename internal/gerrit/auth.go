package gerrit

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// Auth holds the credentials used to talk to a Gerrit instance. The zero value
// means anonymous access. Token takes precedence over Username/Password.
type Auth struct {
	Username string
	Password string
	Token    string
}

func (a Auth) anonymous() bool {
	return a.Token == "" && a.Username == ""
}

// pathPrefix returns "/a" for authenticated access, which is how Gerrit
// separates authenticated endpoints from anonymous ones.
func (a Auth) pathPrefix() string {
	if a.anonymous() {
		return ""
	}
	return "/a"
}

func (a Auth) apply(req *http.Request) {
	if a.Token == "" && a.Username != "" {
		req.SetBasicAuth(a.Username, a.Password)
	}
}

// NewClient creates a Gerrit client for baseURL. When auth carries a token,
// requests are sent with a bearer token provided by an oauth2 static token
// source; otherwise HTTP basic auth is used if a username is set.
func NewClient(ctx context.Context, baseURL string, auth Auth, timeout time.Duration, logger *slog.Logger) (Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("gerrit base URL must be set")
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("gerrit base URL must start with http:// or https://, got %q", baseURL)
	}

	var httpClient *http.Client
	if auth.Token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: auth.Token})
		httpClient = oauth2.NewClient(ctx, ts)
	} else {
		httpClient = &http.Client{}
	}
	httpClient.Timeout = timeout

	logger.Info("created gerrit client", "base_url", baseURL, "authenticated", !auth.anonymous())

	return &restClient{
		baseURL: baseURL,
		auth:    auth,
		client:  httpClient,
		logger:  logger,
	}, nil
}
