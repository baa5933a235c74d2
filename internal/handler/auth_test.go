package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/securetrack/api/internal/auth"
	"github.com/securetrack/api/internal/config"
	"github.com/securetrack/api/internal/handler"
	"github.com/securetrack/api/internal/middleware"
	"github.com/securetrack/api/internal/repository"
	"github.com/securetrack/api/internal/router"
)

// memBackend implements every store interface the wired routes need, so
// the full HTTP surface can be exercised without MySQL.
type memBackend struct {
	mu        sync.Mutex
	nextUser  uint64
	nextToken uint64
	users     map[uint64]repository.User
	roles     map[uint64][]repository.Role
	tokens    map[uint64]repository.RefreshTokenRecord
}

var roleCatalog = map[string]repository.Role{
	repository.RoleAdmin: {ID: 1, Name: repository.RoleAdmin},
	repository.RoleUser:  {ID: 2, Name: repository.RoleUser},
}

func newMemBackend() *memBackend {
	return &memBackend{
		users:  make(map[uint64]repository.User),
		roles:  make(map[uint64][]repository.Role),
		tokens: make(map[uint64]repository.RefreshTokenRecord),
	}
}

func (m *memBackend) resolveRoles(names []string) []repository.Role {
	var roles []repository.Role
	for _, name := range names {
		if r, ok := roleCatalog[name]; ok {
			roles = append(roles, r)
		}
	}
	return roles
}

func (m *memBackend) Create(ctx context.Context, nu repository.NewUser) (repository.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == nu.Email {
			return repository.User{}, repository.ErrEmailExists
		}
		if u.Username == nu.Username {
			return repository.User{}, repository.ErrUsernameExists
		}
	}
	m.nextUser++
	u := repository.User{
		ID: m.nextUser, Email: nu.Email, Username: nu.Username, FullName: nu.FullName,
		PasswordHash: nu.PasswordHash, IsActive: true, CreatedAt: time.Now().UTC(),
	}
	m.users[u.ID] = u
	m.roles[u.ID] = m.resolveRoles(nu.RoleNames)
	u.Roles = m.roles[u.ID]
	return u, nil
}

func (m *memBackend) GetByEmail(ctx context.Context, email string) (repository.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return repository.User{}, repository.ErrNotFound
}

func (m *memBackend) GetByID(ctx context.Context, id uint64) (repository.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return repository.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (m *memBackend) RolesOf(ctx context.Context, userID uint64) ([]repository.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roles[userID], nil
}

func (m *memBackend) StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextToken++
	m.tokens[m.nextToken] = repository.RefreshTokenRecord{
		ID: m.nextToken, UserID: userID, TokenHash: tokenHash,
		ExpiresAt: exp, CreatedAt: time.Now().UTC(),
	}
	return nil
}

func (m *memBackend) ListActive(ctx context.Context, now time.Time) ([]repository.RefreshTokenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var recs []repository.RefreshTokenRecord
	for _, rec := range m.tokens {
		if rec.ExpiresAt.After(now) {
			recs = append(recs, rec)
		}
	}
	return recs, nil
}

func (m *memBackend) DeleteByID(ctx context.Context, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, id)
	return nil
}

func (m *memBackend) DeleteForUser(ctx context.Context, userID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, rec := range m.tokens {
		if rec.UserID == userID {
			delete(m.tokens, id)
		}
	}
	return nil
}

func (m *memBackend) List(ctx context.Context) ([]repository.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var users []repository.User
	for _, u := range m.users {
		u.Roles = m.roles[u.ID]
		users = append(users, u)
	}
	return users, nil
}

func (m *memBackend) Update(ctx context.Context, id uint64, up repository.UserUpdate) (repository.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return repository.User{}, repository.ErrNotFound
	}
	if up.Email != nil {
		u.Email = *up.Email
	}
	if up.Username != nil {
		u.Username = *up.Username
	}
	if up.FullName != nil {
		u.FullName = *up.FullName
	}
	if up.PasswordHash != nil {
		u.PasswordHash = *up.PasswordHash
	}
	if up.IsActive != nil {
		u.IsActive = *up.IsActive
	}
	if up.RoleNames != nil {
		m.roles[id] = m.resolveRoles(up.RoleNames)
	}
	m.users[id] = u
	u.Roles = m.roles[id]
	return u, nil
}

func (m *memBackend) Delete(ctx context.Context, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.users, id)
	delete(m.roles, id)
	for tid, rec := range m.tokens {
		if rec.UserID == id {
			delete(m.tokens, tid)
		}
	}
	return nil
}

func newTestServer() (*echo.Echo, *memBackend) {
	cfg := config.Config{
		JWTSecret:      "handler-test-secret",
		AccessTTLMin:   15,
		RefreshTTLDays: 7,
		BcryptCost:     bcrypt.MinCost,
	}
	be := newMemBackend()
	svc := auth.NewService(cfg, be, be, be)
	e := echo.New()
	router.RegisterRoutes(e)
	// Disabled limiter: rate limiting is covered by its own package.
	limiter := middleware.NewTokenBucket(config.RateLimitConfig{}, nil)
	router.RegisterAuth(e, cfg, handler.NewAuthHandler(svc), handler.NewUserHandler(cfg, be), be, be, limiter)
	return e, be
}

func doJSON(e *echo.Echo, method, path, body, bearer string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func doLogin(e *echo.Echo, email, password string) *httptest.ResponseRecorder {
	form := url.Values{"username": {email}, "password": {password}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

type tokenBody struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

func decodeTokens(t *testing.T, rec *httptest.ResponseRecorder) tokenBody {
	t.Helper()
	var body tokenBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding token response: %v (%s)", err, rec.Body.String())
	}
	return body
}

func TestRegisterLoginMeRefresh(t *testing.T) {
	e, _ := newTestServer()

	rec := doJSON(e, http.MethodPost, "/api/v1/auth/register",
		`{"email":"alice@example.com","username":"alice","full_name":"Alice","password":"pw123"}`, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Email string `json:"email"`
		Roles []struct {
			Name string `json:"name"`
		} `json:"roles"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decoding register response: %v", err)
	}
	if len(created.Roles) != 1 || created.Roles[0].Name != "user" {
		t.Errorf("registered roles = %+v, want [user]", created.Roles)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Errorf("register response leaks a password field: %s", rec.Body.String())
	}

	rec = doLogin(e, "alice@example.com", "pw123")
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", rec.Code, rec.Body.String())
	}
	tokens := decodeTokens(t, rec)
	if tokens.AccessToken == "" || tokens.RefreshToken == "" || tokens.TokenType != "bearer" {
		t.Fatalf("incomplete token response: %+v", tokens)
	}

	rec = doJSON(e, http.MethodGet, "/api/v1/users/me", "", tokens.AccessToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("me status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var me struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &me); err != nil {
		t.Fatalf("decoding me response: %v", err)
	}
	if me.Email != "alice@example.com" {
		t.Errorf("me email = %q, want alice@example.com", me.Email)
	}

	rec = doJSON(e, http.MethodPost, "/api/v1/auth/refresh",
		`{"refresh_token":"`+tokens.RefreshToken+`"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh status = %d, body = %s", rec.Code, rec.Body.String())
	}
	refreshed := decodeTokens(t, rec)
	if refreshed.RefreshToken != tokens.RefreshToken {
		t.Error("refresh rotated the secret; expected the same one back")
	}

	// The new access token resolves to the same account.
	rec = doJSON(e, http.MethodGet, "/api/v1/users/me", "", refreshed.AccessToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("me-after-refresh status = %d", rec.Code)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	e, _ := newTestServer()
	body := `{"email":"alice@example.com","username":"alice","full_name":"Alice","password":"pw123"}`
	if rec := doJSON(e, http.MethodPost, "/api/v1/auth/register", body, ""); rec.Code != http.StatusCreated {
		t.Fatalf("first register status = %d", rec.Code)
	}
	rec := doJSON(e, http.MethodPost, "/api/v1/auth/register",
		`{"email":"alice@example.com","username":"alice2","full_name":"Alice","password":"pw123"}`, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("second register status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Email already exists") {
		t.Errorf("body = %s, want an email-exists message", rec.Body.String())
	}
}

func TestLogin_Failures(t *testing.T) {
	e, _ := newTestServer()
	doJSON(e, http.MethodPost, "/api/v1/auth/register",
		`{"email":"alice@example.com","username":"alice","full_name":"Alice","password":"pw123"}`, "")

	if rec := doLogin(e, "ghost@example.com", "pw123"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown email status = %d, want 404", rec.Code)
	}
	if rec := doLogin(e, "alice@example.com", "wrong"); rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong password status = %d, want 401", rec.Code)
	}
}

func TestRefresh_InvalidToken(t *testing.T) {
	e, _ := newTestServer()
	rec := doJSON(e, http.MethodPost, "/api/v1/auth/refresh",
		`{"refresh_token":"never-issued-secret"}`, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Invalid or expired refresh token") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestLogout_RevokesRefreshToken(t *testing.T) {
	e, _ := newTestServer()
	doJSON(e, http.MethodPost, "/api/v1/auth/register",
		`{"email":"alice@example.com","username":"alice","full_name":"Alice","password":"pw123"}`, "")
	tokens := decodeTokens(t, doLogin(e, "alice@example.com", "pw123"))

	rec := doJSON(e, http.MethodPost, "/api/v1/auth/logout",
		`{"refresh_token":"`+tokens.RefreshToken+`"}`, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("logout status = %d, want 204", rec.Code)
	}
	rec = doJSON(e, http.MethodPost, "/api/v1/auth/refresh",
		`{"refresh_token":"`+tokens.RefreshToken+`"}`, "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("refresh after logout status = %d, want 401", rec.Code)
	}
}

func TestUnknownRoleNamesAreDropped(t *testing.T) {
	e, _ := newTestServer()

	// Registering with only unknown names succeeds and yields a roleless
	// user: such a caller can authenticate but clears no role gate.
	rec := doJSON(e, http.MethodPost, "/api/v1/auth/register",
		`{"email":"mallory@example.com","username":"mallory","full_name":"Mallory","password":"pw123","role_names":["wizard"]}`, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Roles []struct {
			Name string `json:"name"`
		} `json:"roles"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decoding register response: %v", err)
	}
	if len(created.Roles) != 0 {
		t.Errorf("registered roles = %+v, want none", created.Roles)
	}

	tokens := decodeTokens(t, doLogin(e, "mallory@example.com", "pw123"))
	if rec := doJSON(e, http.MethodGet, "/api/v1/users/me", "", tokens.AccessToken); rec.Code != http.StatusOK {
		t.Errorf("roleless me status = %d, want 200", rec.Code)
	}
	if rec := doJSON(e, http.MethodGet, "/api/v1/users/", "", tokens.AccessToken); rec.Code != http.StatusForbidden {
		t.Errorf("roleless admin list status = %d, want 403", rec.Code)
	}

	// A replace-assign mixing a known and an unknown name keeps only the
	// known one.
	doJSON(e, http.MethodPost, "/api/v1/auth/register",
		`{"email":"root@example.com","username":"root","full_name":"Root","password":"pw123","role_names":["admin"]}`, "")
	adminTokens := decodeTokens(t, doLogin(e, "root@example.com", "pw123"))
	rec = doJSON(e, http.MethodPut, "/api/v1/users/1",
		`{"role_names":["user","wizard"]}`, adminTokens.AccessToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var updated struct {
		Roles []struct {
			Name string `json:"name"`
		} `json:"roles"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("decoding update response: %v", err)
	}
	if len(updated.Roles) != 1 || updated.Roles[0].Name != "user" {
		t.Errorf("updated roles = %+v, want exactly [user]", updated.Roles)
	}
}

func TestAdminEndpoints(t *testing.T) {
	e, _ := newTestServer()
	doJSON(e, http.MethodPost, "/api/v1/auth/register",
		`{"email":"root@example.com","username":"root","full_name":"Root","password":"pw123","role_names":["admin"]}`, "")
	doJSON(e, http.MethodPost, "/api/v1/auth/register",
		`{"email":"alice@example.com","username":"alice","full_name":"Alice","password":"pw123"}`, "")

	adminTokens := decodeTokens(t, doLogin(e, "root@example.com", "pw123"))
	userTokens := decodeTokens(t, doLogin(e, "alice@example.com", "pw123"))

	// Unauthenticated and non-admin callers are refused.
	if rec := doJSON(e, http.MethodGet, "/api/v1/users/", "", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous list status = %d, want 401", rec.Code)
	}
	if rec := doJSON(e, http.MethodGet, "/api/v1/users/", "", userTokens.AccessToken); rec.Code != http.StatusForbidden {
		t.Errorf("non-admin list status = %d, want 403", rec.Code)
	}

	rec := doJSON(e, http.MethodGet, "/api/v1/users/", "", adminTokens.AccessToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin list status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var users []struct {
		ID       uint64 `json:"id"`
		Username string `json:"username"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &users); err != nil {
		t.Fatalf("decoding list: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("listed users = %d, want 2", len(users))
	}

	var aliceID uint64
	for _, u := range users {
		if u.Username == "alice" {
			aliceID = u.ID
		}
	}

	// Promote alice to admin; the next call carrying her old token passes
	// the role check because roles are read fresh each request.
	rec = doJSON(e, http.MethodPut, "/api/v1/users/"+itoa(aliceID),
		`{"role_names":["admin"]}`, adminTokens.AccessToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("promote status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if rec := doJSON(e, http.MethodGet, "/api/v1/users/", "", userTokens.AccessToken); rec.Code != http.StatusOK {
		t.Errorf("promoted user list status = %d, want 200", rec.Code)
	}

	// Delete alice; her access token dies with her.
	if rec := doJSON(e, http.MethodDelete, "/api/v1/users/"+itoa(aliceID), "", adminTokens.AccessToken); rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if rec := doJSON(e, http.MethodGet, "/api/v1/users/me", "", userTokens.AccessToken); rec.Code != http.StatusUnauthorized {
		t.Errorf("deleted user me status = %d, want 401", rec.Code)
	}
	if rec := doJSON(e, http.MethodDelete, "/api/v1/users/"+itoa(aliceID), "", adminTokens.AccessToken); rec.Code != http.StatusNotFound {
		t.Errorf("double delete status = %d, want 404", rec.Code)
	}
}

func itoa(v uint64) string { return strconv.FormatUint(v, 10) }
