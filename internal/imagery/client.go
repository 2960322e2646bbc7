package imagery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// csrfMarker precedes the hidden form value the login page embeds.
const csrfMarker = `<input type="hidden" name="params" value="`

// Credentials are the upstream account's plaintext credentials. They arrive
// encrypted in the environment and are decrypted by the process glue.
type Credentials struct {
	Username string
	Password string
}

// ClientConfig points the client at the indexing service.
type ClientConfig struct {
	LoginPageURL    string        `yaml:"login_page_url"`
	LoginPostURL    string        `yaml:"login_post_url"`
	IndexingBaseURL string        `yaml:"indexing_base_url"`
	TokenCookie     string        `yaml:"token_cookie"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
}

// DefaultClientConfig returns the production endpoints of the indexing
// service.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		LoginPageURL:    "https://www.familysearch.org/auth/familysearch/login",
		LoginPostURL:    "https://ident.familysearch.org/cis-web/oauth2/v3/authorization",
		IndexingBaseURL: "https://sg30p0.familysearch.org",
		TokenCookie:     "fssessionid",
		RequestTimeout:  30 * time.Second,
	}
}

// Client is the single authenticated session against the external indexing
// service. It is constructed explicitly and injected; exactly one worker
// drives it at a time.
type Client struct {
	http  *http.Client
	cfg   ClientConfig
	creds Credentials
	token string
}

// NewClient builds an unauthenticated client. Call Login before fetching.
func NewClient(cfg ClientConfig, creds Credentials) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	client := &Client{
		cfg:   cfg,
		creds: creds,
	}
	client.http = &http.Client{
		Timeout: cfg.RequestTimeout,
		Jar:     jar,
		// The login POST redirects through the identity provider, which
		// sets the session token on an intermediate hop.
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if req.Response == nil {
				return nil
			}
			for _, cookie := range req.Response.Cookies() {
				if cookie.Name == cfg.TokenCookie {
					client.token = cookie.Value
				}
			}
			return nil
		},
	}
	return client, nil
}

// Login performs the scrape-and-post authentication flow: fetch the login
// page, lift the hidden csrf params value, post the credentials and capture
// the session token from the redirect chain.
func (c *Client) Login(ctx context.Context) error {
	csrfToken, err := c.fetchCSRFToken(ctx)
	if err != nil {
		return err
	}

	form := url.Values{
		"userName": {c.creds.Username},
		"password": {c.creds.Password},
		"params":   {csrfToken},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.LoginPostURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post login: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if c.token == "" {
		return fmt.Errorf("login succeeded but no %s cookie was set", c.cfg.TokenCookie)
	}
	log.Info().Msg("indexing service session established")
	return nil
}

func (c *Client) fetchCSRFToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.LoginPageURL, nil)
	if err != nil {
		return "", fmt.Errorf("build login page request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("get login page: %w", err)
	}
	defer resp.Body.Close()

	html, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read login page: %w", err)
	}
	start := bytes.Index(html, []byte(csrfMarker))
	if start < 0 {
		return "", fmt.Errorf("login page has no csrf params field")
	}
	start += len(csrfMarker)
	end := bytes.IndexByte(html[start:], '"')
	if end < 0 {
		return "", fmt.Errorf("login page csrf params field is unterminated")
	}
	return string(html[start : start+end]), nil
}

// FetchManifest returns the raw manifest XML for a batch.
func (c *Client) FetchManifest(ctx context.Context, batchID string) ([]byte, error) {
	manifestURL := fmt.Sprintf(
		"%s/service/indexing/project/images?batchid=%s&actualimagelink=true",
		c.cfg.IndexingBaseURL, url.QueryEscape(batchID),
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, manifestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build manifest request: %w", err)
	}
	req.Header.Set("Authorization", "bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get manifest: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("manifest request returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return data, nil
}

// GetBytes fetches an arbitrary artifact URL (thumbnail, metadata, tile).
func (c *Client) GetBytes(ctx context.Context, artifactURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, artifactURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build artifact request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get artifact: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("artifact request returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return data, nil
}
