package api

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/lingke-net/Space.Tab/internal/model"
	"github.com/lingke-net/Space.Tab/internal/release"
	"github.com/lingke-net/Space.Tab/pkg/common"
)

func TestGetLatestList(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		releases []model.Release
		err      error
		want     int
	}{
		{name: "ok", query: "mirrorId=1&pageNum=2&pageSize=5", releases: []model.Release{{ID: 1, TagName: "2.5.0"}}, want: http.StatusOK},
		{name: "missing params", query: "mirrorId=1", want: http.StatusBadRequest},
		{name: "non numeric", query: "mirrorId=a&pageNum=1&pageSize=5", want: http.StatusBadRequest},
		{name: "unknown mirror", query: "mirrorId=9&pageNum=1&pageSize=5", want: http.StatusNotFound},
		{name: "empty", query: "mirrorId=1&pageNum=1&pageSize=5", releases: []model.Release{}, want: http.StatusNotFound},
		{name: "timeout", query: "mirrorId=1&pageNum=1&pageSize=5", err: fmt.Errorf("list: %w", release.ErrMirrorTimeout), want: http.StatusGatewayTimeout},
		{name: "upstream", query: "mirrorId=1&pageNum=1&pageSize=5", err: &release.UpstreamError{Status: 403, Message: "rate limited"}, want: http.StatusBadGateway},
		{name: "unavailable", query: "mirrorId=1&pageNum=1&pageSize=5", err: release.ErrMirrorUnavailable, want: http.StatusBadGateway},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			if _, err := env.mirrors.CreateMirror(context.Background(), "gh", "https://api.github.com"); err != nil {
				t.Fatalf("CreateMirror: %v", err)
			}
			env.releases.releases, env.releases.err = tc.releases, tc.err

			w, resp := env.do(t, http.MethodGet, "/api/version/getLatestList?"+tc.query, nil)
			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, w.Code, w.Body.String())
			}
			if tc.name == "ok" {
				if env.releases.gotBase != "https://api.github.com" || env.releases.gotPage != 2 || env.releases.gotSize != 5 {
					t.Fatalf("pagination not passed through: %+v", env.releases)
				}
			}
			if tc.name == "upstream" && resp.Message != "API Error: 403 - rate limited" {
				t.Fatalf("upstream message not surfaced: %q", resp.Message)
			}
		})
	}
}

func TestMirrorAdminRoutes(t *testing.T) {
	env := newTestEnv(t)
	admin := env.users.seed(t, model.User{Username: "root", Email: "root@x.com", IsAdmin: true}, "pw")
	token := env.login(t, admin)

	w, _ := env.do(t, http.MethodPost, "/api/version/github/mirror", map[string]string{"name": "gh", "url": "ftp://x"}, withToken(token))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad url: expected 400, got %d", w.Code)
	}
	w, _ = env.do(t, http.MethodPost, "/api/version/github/mirror", map[string]string{"name": "gh", "url": "https://api.github.com"}, withToken(token))
	if w.Code != http.StatusOK {
		t.Fatalf("add: expected 200, got %d", w.Code)
	}

	w, resp := env.do(t, http.MethodGet, "/api/version/github/mirror?id=1", nil, withToken(token))
	if w.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", w.Code)
	}
	var mirror model.GithubMirror
	decodeData(t, resp, &mirror)
	if mirror.Name != "gh" {
		t.Fatalf("unexpected mirror %+v", mirror)
	}

	if w, _ := env.do(t, http.MethodGet, "/api/version/github/mirror?id=2", nil, withToken(token)); w.Code != http.StatusNotFound {
		t.Fatalf("missing: expected 404, got %d", w.Code)
	}
	if w, _ := env.do(t, http.MethodGet, "/api/version/github/mirror", nil, withToken(token)); w.Code != http.StatusBadRequest {
		t.Fatalf("no id: expected 400, got %d", w.Code)
	}

	w, resp = env.do(t, http.MethodGet, "/api/version/github/mirror/list", nil, withToken(token))
	if w.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", w.Code)
	}
	var mirrors []model.GithubMirror
	decodeData(t, resp, &mirrors)
	if len(mirrors) != 1 {
		t.Fatalf("expected 1 mirror, got %d", len(mirrors))
	}
}

func TestGetLatest(t *testing.T) {
	env := newTestEnv(t)
	header := env.sealPayload(t, map[string]any{"version": "2.4.0"})

	w, resp := env.do(t, http.MethodPost, "/api/version/getLatest", nil, withHeader(common.EncryptedContentHeader, header))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var latest model.LatestVersion
	decodeData(t, resp, &latest)
	if latest.Latest != "2.5.0" || latest.DownloadURL == "" {
		t.Fatalf("unexpected latest %+v", latest)
	}

	w, _ = env.do(t, http.MethodPost, "/api/version/getLatest", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("no payload: expected 400, got %d", w.Code)
	}
}
