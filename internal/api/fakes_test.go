package api

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/lingke-net/Space.Tab/internal/auth"
	"github.com/lingke-net/Space.Tab/internal/model"
	"github.com/lingke-net/Space.Tab/internal/repository"
	"github.com/lingke-net/Space.Tab/internal/session"
	"github.com/lingke-net/Space.Tab/pkg/common"
	"golang.org/x/crypto/bcrypt"
)

type mockUserStore struct {
	mu          sync.Mutex
	nextID      int64
	users       map[int64]model.User
	createCalls int
	writeCalls  int
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{users: make(map[int64]model.User)}
}

func (m *mockUserStore) CreateUser(ctx context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return fmt.Errorf("create user: %w", common.ErrConflict)
		}
	}
	m.nextID++
	u.ID = m.nextID
	u.CreatedAt = time.Now().UTC()
	m.users[u.ID] = *u
	return nil
}

func (m *mockUserStore) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &u, nil
}

func (m *mockUserStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			u := u
			return &u, nil
		}
	}
	return nil, common.ErrNotFound
}

func (m *mockUserStore) UpdateUser(ctx context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeCalls++
	existing, ok := m.users[u.ID]
	if !ok {
		return common.ErrNotFound
	}
	next := *u
	next.PasswordHash = existing.PasswordHash
	next.CreatedAt = existing.CreatedAt
	m.users[u.ID] = next
	return nil
}

func (m *mockUserStore) UpdatePassword(ctx context.Context, id int64, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeCalls++
	u, ok := m.users[id]
	if !ok {
		return common.ErrNotFound
	}
	u.PasswordHash = hash
	m.users[id] = u
	return nil
}

func (m *mockUserStore) UpdateLastLogin(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return common.ErrNotFound
	}
	now := time.Now().UTC()
	u.LastLogin = &now
	m.users[id] = u
	return nil
}

func (m *mockUserStore) UpdateAvatar(ctx context.Context, id int64, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return common.ErrNotFound
	}
	u.Avatar = &url
	m.users[id] = u
	return nil
}

func (m *mockUserStore) DeleteUser(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return common.ErrNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *mockUserStore) ListUsers(ctx context.Context, offset, limit int) ([]model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, 0, len(m.users))
	for id := range m.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]model.User, 0, limit)
	for i := offset; i < len(ids) && len(out) < limit; i++ {
		out = append(out, m.users[ids[i]])
	}
	return out, nil
}

func (m *mockUserStore) CountUsers(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.users)), nil
}

func (m *mockUserStore) seed(t *testing.T, u model.User, password string) model.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	u.PasswordHash = string(hash)
	if err := m.CreateUser(context.Background(), &u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

type mockServerStore struct {
	mu     sync.Mutex
	infos  map[string]model.ServerInfo
	order  []string
	abouts map[string]model.ServerAbout
	todo   map[string]int
}

func newMockServerStore() *mockServerStore {
	return &mockServerStore{
		infos:  make(map[string]model.ServerInfo),
		abouts: make(map[string]model.ServerAbout),
		todo:   make(map[string]int),
	}
}

func (m *mockServerStore) page(offset, limit int, keep func(model.ServerInfo) bool) *model.ServerPage {
	out := &model.ServerPage{Servers: []model.ServerInfo{}}
	for _, id := range m.order {
		info, ok := m.infos[id]
		if !ok || !keep(info) {
			continue
		}
		if out.Total >= int64(offset) && len(out.Servers) < limit {
			out.Servers = append(out.Servers, info)
		}
		out.Total++
	}
	return out
}

func (m *mockServerStore) ListVisibleServers(ctx context.Context, offset, limit int) (*model.ServerPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.page(offset, limit, func(s model.ServerInfo) bool { return s.AuditStatus.Visible() }), nil
}

func (m *mockServerStore) ListAllServers(ctx context.Context, offset, limit int) (*model.ServerPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.page(offset, limit, func(model.ServerInfo) bool { return true })
	for i := range p.Servers {
		var n int64
		for _, a := range m.abouts {
			if a.InfoID == p.Servers[i].ID {
				n++
			}
		}
		p.Servers[i].AboutTotalCount = &n
	}
	return p, nil
}

func (m *mockServerStore) GetServerInfo(ctx context.Context, id string) (*model.ServerInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.infos[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &info, nil
}

func (m *mockServerStore) GetServerDetail(ctx context.Context, id string, visibleOnly bool) (*model.ServerDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.infos[id]
	if !ok || (visibleOnly && !info.AuditStatus.Visible()) {
		return nil, common.ErrNotFound
	}
	detail := &model.ServerDetail{Info: &info, About: []model.ServerAbout{}}
	for _, a := range m.abouts {
		if a.InfoID == id && (!visibleOnly || a.AuditStatus.Visible()) {
			detail.About = append(detail.About, a)
		}
	}
	return detail, nil
}

func (m *mockServerStore) ListServerAbouts(ctx context.Context, infoID string, visibleOnly bool, offset, limit int) (*model.AboutPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := &model.AboutPage{About: []model.ServerAbout{}}
	if info, ok := m.infos[infoID]; visibleOnly && (!ok || !info.AuditStatus.Visible()) {
		return out, nil
	}
	for _, a := range m.abouts {
		if a.InfoID == infoID && (!visibleOnly || a.AuditStatus.Visible()) {
			out.About = append(out.About, a)
		}
	}
	out.Total = int64(len(out.About))
	return out, nil
}

func (m *mockServerStore) CreateServerInfo(ctx context.Context, s *model.ServerInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.AuditStatus = model.AuditLock
	s.AuditReason = nil
	m.infos[s.ID] = *s
	m.order = append(m.order, s.ID)
	return nil
}

func (m *mockServerStore) CreateServerAbout(ctx context.Context, a *model.ServerAbout) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.infos[a.InfoID]; !ok {
		return common.ErrNotFound
	}
	a.AuditStatus = model.AuditLock
	m.abouts[a.ID] = *a
	return nil
}

func (m *mockServerStore) UpdateOwnServerInfo(ctx context.Context, id string, ownerID int64, in model.ServerInfoInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.infos[id]
	if !ok || info.UserID != ownerID {
		return common.ErrNotFound
	}
	info.Name, info.ServerIconURL, info.Country = in.Name, in.ServerIconURL, in.Country
	info.AuditStatus = model.AuditLock
	m.infos[id] = info
	return nil
}

func (m *mockServerStore) UpdateServerInfo(ctx context.Context, id string, in model.ServerInfoInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.infos[id]
	if !ok {
		return common.ErrNotFound
	}
	info.Name, info.ServerIconURL, info.Country = in.Name, in.ServerIconURL, in.Country
	m.infos[id] = info
	return nil
}

func (m *mockServerStore) SetServerInfoAudit(ctx context.Context, id string, status model.AuditStatus, reason *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.infos[id]
	if !ok {
		return common.ErrNotFound
	}
	info.AuditStatus, info.AuditReason = status, reason
	m.infos[id] = info
	return nil
}

func (m *mockServerStore) SetServerAboutAudit(ctx context.Context, id string, status model.AuditStatus, reason *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.abouts[id]
	if !ok {
		return common.ErrNotFound
	}
	a.AuditStatus, a.AuditReason = status, reason
	m.abouts[id] = a
	return nil
}

func (m *mockServerStore) IncrementServerTodo(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.todo[id]++
	return nil
}

func (m *mockServerStore) DeleteServers(ctx context.Context, ids []string, ownerID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int64
	for _, id := range ids {
		info, ok := m.infos[id]
		if !ok || (ownerID > 0 && info.UserID != ownerID) {
			continue
		}
		for aid, a := range m.abouts {
			if a.InfoID == id {
				delete(m.abouts, aid)
			}
		}
		delete(m.infos, id)
		deleted++
	}
	if deleted == 0 {
		return 0, common.ErrNotFound
	}
	return deleted, nil
}

type mockEquipmentStore struct {
	mu           sync.Mutex
	infos        []model.EquipmentInfo
	dispositions map[string]model.EquipmentDisposition
}

func newMockEquipmentStore() *mockEquipmentStore {
	return &mockEquipmentStore{dispositions: make(map[string]model.EquipmentDisposition)}
}

func (m *mockEquipmentStore) RegisterEquipment(ctx context.Context, e *model.EquipmentInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.infos {
		if existing.BiosID == e.BiosID && existing.UserID == e.UserID {
			return fmt.Errorf("register equipment: %w", common.ErrConflict)
		}
	}
	m.infos = append(m.infos, *e)
	return nil
}

func (m *mockEquipmentStore) CreateEquipmentInfo(ctx context.Context, e *model.EquipmentInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos = append(m.infos, *e)
	return nil
}

func (m *mockEquipmentStore) ListEquipmentInfo(ctx context.Context, f model.EquipmentFilter, page, pageSize int) (*model.Page[model.EquipmentInfo], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := &model.Page[model.EquipmentInfo]{Data: []model.EquipmentInfo{}, Page: page, PageSize: pageSize}
	for _, e := range m.infos {
		if (f.UserID == 0 || e.UserID == f.UserID) && (f.Country == "" || e.Country == f.Country) {
			out.Data = append(out.Data, e)
		}
	}
	out.Total = int64(len(out.Data))
	return out, nil
}

func (m *mockEquipmentStore) CreateEquipmentDisposition(ctx context.Context, e *model.EquipmentDisposition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dispositions[e.InfoUUID] = *e
	return nil
}

func (m *mockEquipmentStore) ListEquipmentDispositions(ctx context.Context, equipmentUUID string, page, pageSize int) (*model.Page[model.EquipmentDisposition], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := &model.Page[model.EquipmentDisposition]{Data: []model.EquipmentDisposition{}, Page: page, PageSize: pageSize}
	for _, d := range m.dispositions {
		if equipmentUUID == "" || d.EquipmentUUID == equipmentUUID {
			out.Data = append(out.Data, d)
		}
	}
	out.Total = int64(len(out.Data))
	return out, nil
}

func (m *mockEquipmentStore) UpdateEquipmentDisposition(ctx context.Context, e *model.EquipmentDisposition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.dispositions[e.InfoUUID]
	if !ok {
		return common.ErrNotFound
	}
	e.EquipmentUUID = existing.EquipmentUUID
	m.dispositions[e.InfoUUID] = *e
	return nil
}

type mockMirrorStore struct {
	mu      sync.Mutex
	mirrors []model.GithubMirror
}

func (m *mockMirrorStore) GetMirror(ctx context.Context, id int64) (*model.GithubMirror, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mirror := range m.mirrors {
		if mirror.ID == id {
			mirror := mirror
			return &mirror, nil
		}
	}
	return nil, common.ErrNotFound
}

func (m *mockMirrorStore) ListMirrors(ctx context.Context) ([]model.GithubMirror, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.GithubMirror(nil), m.mirrors...), nil
}

func (m *mockMirrorStore) CreateMirror(ctx context.Context, name, url string) (*model.GithubMirror, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mirror := model.GithubMirror{ID: int64(len(m.mirrors) + 1), Name: name, URL: url, CreatedAt: time.Now().UTC()}
	m.mirrors = append(m.mirrors, mirror)
	return &mirror, nil
}

type mockReleaseFetcher struct {
	releases []model.Release
	err      error
	gotBase  string
	gotPage  int
	gotSize  int
}

func (m *mockReleaseFetcher) ListReleases(ctx context.Context, baseURL string, page, perPage int) ([]model.Release, error) {
	m.gotBase, m.gotPage, m.gotSize = baseURL, page, perPage
	return m.releases, m.err
}

type mockAvatarStorage struct {
	gotUser int64
	gotType string
	gotSize int64
}

func (m *mockAvatarStorage) PutAvatar(ctx context.Context, userID int64, contentType string, reader io.Reader, size int64) (string, error) {
	b, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	m.gotUser, m.gotType, m.gotSize = userID, contentType, int64(len(b))
	return fmt.Sprintf("http://cdn.local/avatars/%d/a.png", userID), nil
}

// testEnv 组装 Handler; 会话与限流落在 miniredis 上
type testEnv struct {
	router    *gin.Engine
	handler   *Handler
	users     *mockUserStore
	servers   *mockServerStore
	equipment *mockEquipmentStore
	mirrors   *mockMirrorStore
	releases  *mockReleaseFetcher
	avatars   *mockAvatarStorage
	redis     *miniredis.Miniredis
	sessions  *session.Store
	tokens    *auth.TokenManager
	clientKey *rsa.PrivateKey
}

var (
	clientKeyOnce sync.Once
	clientKey     *rsa.PrivateKey
)

func testClientKey() *rsa.PrivateKey {
	clientKeyOnce.Do(func() {
		k, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		clientKey = k
	})
	return clientKey
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	rdb := repository.NewRedisClient(mr.Addr())
	t.Cleanup(func() { _ = rdb.Close() })

	tokens, err := auth.NewTokenManager("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}

	env := &testEnv{
		users:     newMockUserStore(),
		servers:   newMockServerStore(),
		equipment: newMockEquipmentStore(),
		mirrors:   &mockMirrorStore{},
		releases:  &mockReleaseFetcher{},
		avatars:   &mockAvatarStorage{},
		redis:     mr,
		sessions:  session.NewStore(rdb, 0),
		tokens:    tokens,
		clientKey: testClientKey(),
	}
	env.handler = NewHandler(Deps{
		Users:     env.users,
		Servers:   env.servers,
		Equipment: env.equipment,
		Mirrors:   env.mirrors,
		Sessions:  env.sessions,
		Releases:  env.releases,
		Avatars:   env.avatars,
		Limiter:   rdb,
		Tokens:    tokens,
		Hasher:    auth.NewHasher(bcrypt.MinCost),
		Decrypter: auth.NewClientDecrypter(env.clientKey, time.Minute),
		Latest:    model.LatestVersion{Latest: "2.5.0", DownloadURL: "https://example.com/2.5.0.exe"},
	})

	r := gin.New()
	r.Use(RequestIDMiddleware(), SecurityHeadersMiddleware())
	RegisterRoutes(r, env.handler)
	env.router = r
	return env
}

// login 直接写入会话并签发 token, 绕过 /user/login
func (e *testEnv) login(t *testing.T, u model.User) string {
	t.Helper()
	if err := e.sessions.Save(context.Background(), &u); err != nil {
		t.Fatalf("session save: %v", err)
	}
	token, err := e.tokens.Issue(u.ID, u.Email)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func (e *testEnv) sealPayload(t *testing.T, fields map[string]any) string {
	t.Helper()
	if _, ok := fields["timestamp"]; !ok {
		fields["timestamp"] = time.Now().UnixMilli()
	}
	plain, err := json.Marshal(fields)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	ct, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, &e.clientKey.PublicKey, plain, nil)
	if err != nil {
		t.Fatalf("EncryptOAEP: %v", err)
	}
	return base64.StdEncoding.EncodeToString(ct)
}

type requestOption func(*http.Request)

func withToken(token string) requestOption {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withHeader(key, value string) requestOption {
	return func(r *http.Request) { r.Header.Set(key, value) }
}

func (e *testEnv) do(t *testing.T, method, path string, body any, opts ...requestOption) (*httptest.ResponseRecorder, Envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = strings.NewReader(b)
		default:
			raw, err := json.Marshal(b)
			if err != nil {
				t.Fatalf("marshal body: %v", err)
			}
			reader = strings.NewReader(string(raw))
		}
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(req)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var env Envelope
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode envelope: %v (body=%s)", err, w.Body.String())
		}
	}
	return w, env
}

// decodeData 把 envelope.data 重新解码到 v
func decodeData(t *testing.T, env Envelope, v any) {
	t.Helper()
	raw, err := json.Marshal(env.Data)
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}
