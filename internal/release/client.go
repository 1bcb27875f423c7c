// Package release lists upstream GitHub releases through configurable mirrors.
package release

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/lingke-net/Space.Tab/internal/model"
	"github.com/lingke-net/Space.Tab/pkg/common"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const maxErrorBody = 64 << 10

var (
	// ErrMirrorTimeout is returned when the mirror does not answer within the client timeout.
	ErrMirrorTimeout = errors.New("request mirror timeout")

	// ErrMirrorUnavailable covers transport failures and undecodable responses.
	ErrMirrorUnavailable = errors.New("mirror unavailable")
)

// UpstreamError is a non-2xx answer from the mirror.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("API Error: %d - %s", e.Status, e.Message)
}

// Client fetches release pages. Concurrent identical requests share one upstream call.
type Client struct {
	httpClient *http.Client
	repo       string
	timeout    time.Duration
	userAgent  string
	sf         singleflight.Group
}

type Option func(*Client)

// WithToken authenticates upstream calls with a static bearer token.
func WithToken(token string) Option {
	return func(c *Client) {
		if token == "" {
			return
		}
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, c.httpClient)
		c.httpClient = oauth2.NewClient(ctx, ts)
	}
}

// WithHTTPClient replaces the underlying HTTP client. Apply it before WithToken.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// NewClient builds a Client for owner/name repo. Zero values take the defaults.
func NewClient(repo string, timeout time.Duration, opts ...Option) *Client {
	if repo == "" {
		repo = common.DefaultReleaseRepo
	}
	if timeout <= 0 {
		timeout = common.DefaultReleaseTimeout
	}
	c := &Client{
		httpClient: &http.Client{},
		repo:       strings.Trim(repo, "/"),
		timeout:    timeout,
		userAgent:  "WonderLab-Server",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type githubRelease struct {
	ID         int64  `json:"id"`
	TagName    string `json:"tag_name"`
	Prerelease bool   `json:"prerelease"`
	CreatedAt  string `json:"created_at"`
	Assets     []struct {
		Name               string `json:"name"`
		Size               int64  `json:"size"`
		DownloadCount      int64  `json:"download_count"`
		Digest             string `json:"digest"`
		BrowserDownloadURL string `json:"browser_download_url"`
	} `json:"assets"`
}

// ListReleases returns one page of releases from the mirror rooted at baseURL.
func (c *Client) ListReleases(ctx context.Context, baseURL string, page, perPage int) ([]model.Release, error) {
	key := baseURL + "|" + strconv.Itoa(page) + "|" + strconv.Itoa(perPage)
	val, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// 共享调用不随第一个请求方取消
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return c.fetch(fetchCtx, baseURL, page, perPage)
	})
	if err != nil {
		return nil, err
	}
	releases := val.([]model.Release)
	out := make([]model.Release, len(releases))
	copy(out, releases)
	return out, nil
}

func (c *Client) fetch(ctx context.Context, baseURL string, page, perPage int) ([]model.Release, error) {
	endpoint, err := url.Parse(strings.TrimRight(baseURL, "/") + "/repos/" + c.repo + "/releases")
	if err != nil {
		return nil, fmt.Errorf("%w: bad mirror url: %v", ErrMirrorUnavailable, err)
	}
	q := endpoint.Query()
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMirrorUnavailable, err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, ErrMirrorTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrMirrorUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var payload struct {
			Message string `json:"message"`
		}
		msg := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &payload) == nil && payload.Message != "" {
			msg = payload.Message
		}
		return nil, &UpstreamError{Status: resp.StatusCode, Message: msg}
	}

	var raw []githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		if isTimeout(ctx, err) {
			return nil, ErrMirrorTimeout
		}
		return nil, fmt.Errorf("%w: decode: %v", ErrMirrorUnavailable, err)
	}

	releases := make([]model.Release, 0, len(raw))
	for _, r := range raw {
		rel := model.Release{
			ID:         r.ID,
			TagName:    r.TagName,
			Prerelease: r.Prerelease,
			CreatedAt:  r.CreatedAt,
			Assets:     make([]model.ReleaseAsset, 0, len(r.Assets)),
		}
		for _, a := range r.Assets {
			rel.Assets = append(rel.Assets, model.ReleaseAsset{
				Name:               a.Name,
				Size:               a.Size,
				DownloadCount:      a.DownloadCount,
				Digest:             a.Digest,
				BrowserDownloadURL: a.BrowserDownloadURL,
			})
		}
		releases = append(releases, rel)
	}
	return releases, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
