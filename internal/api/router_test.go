package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/faisalazhar1701/destinycreditai-sub000/internal/core/domain"
	"github.com/faisalazhar1701/destinycreditai-sub000/internal/core/ports"
	"github.com/faisalazhar1701/destinycreditai-sub000/internal/core/service"
	"github.com/faisalazhar1701/destinycreditai-sub000/internal/infrastructure/db/memory"
	"github.com/faisalazhar1701/destinycreditai-sub000/internal/infrastructure/http/handlers"
)

const provisioningSecret = "webhook-secret"

type recordingQueue struct {
	mu  sync.Mutex
	got []domain.Notification
}

func (q *recordingQueue) Enqueue(n domain.Notification) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.got = append(q.got, n)
}

func (q *recordingQueue) last(kind domain.NotificationKind) (domain.Notification, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := len(q.got) - 1; i >= 0; i-- {
		if q.got[i].Kind == kind {
			return q.got[i], true
		}
	}
	return domain.Notification{}, false
}

type testApp struct {
	e     *echo.Echo
	store *memory.Store
	admin ports.AdminService
	queue *recordingQueue
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	log := zerolog.Nop()
	store := memory.New()
	queue := &recordingQueue{}
	links := service.Links{BaseURL: "https://app.example.com"}

	hasher := service.NewPasswordHasher(bcrypt.MinCost)
	tokens := service.NewTokenIssuer(store, hasher, 48*time.Hour, 15*time.Minute)
	sessions, err := service.NewSessionSigner("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}

	auth := service.NewAuthService(store, tokens, sessions, hasher, queue, nil, service.AuthConfig{Links: links}, log)
	admin := service.NewAdminService(store, tokens, hasher, queue, links, log)
	registry := prometheus.NewRegistry()

	e := NewRouter(Deps{
		Auth:         auth,
		Provisioning: service.NewProvisioningService(store, tokens, queue, links, log),
		Admin:        admin,
		Policy:       service.NewAccessPolicy(store, log),
		Verifier:     sessions,
		Health:       map[string]handlers.Pinger{"store": store},
	}, Options{
		CookieName:         "session",
		LoginPath:          "/login",
		LapsedPath:         "/subscription-lapsed",
		ProvisioningSecret: provisioningSecret,
		Registerer:         registry,
		Gatherer:           registry,
	}, log)

	return &testApp{e: e, store: store, admin: admin, queue: queue}
}

func (a *testApp) do(method, path, body string, headers map[string]string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func (a *testApp) provision(t *testing.T, email string) *httptest.ResponseRecorder {
	t.Helper()
	body := `{"email":"` + email + `","first_name":"New","last_name":"User","product_name":"Pro","product_id":"p-1"}`
	return a.do(http.MethodPost, "/provisioning/create-user", body, map[string]string{
		echo.HeaderAuthorization: "Bearer " + provisioningSecret,
	})
}

func (a *testApp) login(t *testing.T, identifier, password string) *http.Cookie {
	t.Helper()
	rec := a.do(http.MethodPost, "/auth/login", `{"email":"`+identifier+`","password":"`+password+`"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: expected 200, got %d: %s", identifier, rec.Code, rec.Body.String())
	}
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == "session" && ck.Value != "" {
			return ck
		}
	}
	t.Fatal("login did not set a session cookie")
	return nil
}

func tokenFromLink(t *testing.T, link string) string {
	t.Helper()
	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("bad link %q: %v", link, err)
	}
	token := u.Query().Get("token")
	if token == "" {
		t.Fatalf("link %q carries no token", link)
	}
	return token
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid json %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestEndToEnd_ProvisionSetPasswordLoginMe(t *testing.T) {
	app := newTestApp(t)

	rec := app.provision(t, "new@example.com")
	if rec.Code != http.StatusOK {
		t.Fatalf("provision: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode(t, rec)
	if resp["outcome"] != "created" {
		t.Fatalf("expected created, got %v", resp["outcome"])
	}
	identity, err := app.store.FindByEmail(context.Background(), "new@example.com")
	if err != nil {
		t.Fatalf("identity not stored: %v", err)
	}
	if identity.Status != domain.StatusInvited || identity.InviteToken == nil {
		t.Fatalf("expected INVITED with token, got %+v", identity)
	}
	token := tokenFromLink(t, resp["invite_link"].(string))

	rec = app.do(http.MethodPost, "/auth/set-password", `{"token":"`+token+`","password":"GoodPass123"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("set-password: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	identity, _ = app.store.FindByEmail(context.Background(), "new@example.com")
	if identity.Status != domain.StatusActive || !identity.Active || identity.InviteToken != nil {
		t.Fatalf("expected ACTIVE without token, got %+v", identity)
	}

	rec = app.do(http.MethodPost, "/auth/set-password", `{"token":"`+token+`","password":"GoodPass123"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("token reuse: expected 400, got %d", rec.Code)
	}

	cookie := app.login(t, "new@example.com", "GoodPass123")

	rec = app.do(http.MethodGet, "/auth/me", "", nil, cookie)
	me := decode(t, rec)
	user, ok := me["user"].(map[string]any)
	if !ok || user["email"] != "new@example.com" {
		t.Fatalf("me: unexpected body %s", rec.Body.String())
	}

	rec = app.do(http.MethodGet, "/api/dashboard/me", "", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard: expected 200, got %d", rec.Code)
	}
}

func TestProvisioning_IdempotentForActiveIdentity(t *testing.T) {
	app := newTestApp(t)
	first := decode(t, app.provision(t, "buyer@example.com"))
	token := tokenFromLink(t, first["invite_link"].(string))
	app.do(http.MethodPost, "/auth/set-password", `{"token":"`+token+`","password":"GoodPass123"}`, nil)

	for i := 0; i < 2; i++ {
		rec := app.provision(t, "buyer@example.com")
		if rec.Code != http.StatusOK {
			t.Fatalf("repeat %d: expected 200, got %d", i, rec.Code)
		}
		if got := decode(t, rec)["outcome"]; got != "already_active" {
			t.Fatalf("repeat %d: expected already_active, got %v", i, got)
		}
	}
	users, _ := app.store.List(context.Background())
	if len(users) != 1 {
		t.Fatalf("expected one identity, got %d", len(users))
	}
	identity, _ := app.store.FindByEmail(context.Background(), "buyer@example.com")
	if identity.InviteToken != nil {
		t.Fatal("active identity must not receive a new invite token")
	}
}

func TestProvisioning_ReinviteRegeneratesToken(t *testing.T) {
	app := newTestApp(t)
	first := decode(t, app.provision(t, "again@example.com"))
	second := decode(t, app.provision(t, "again@example.com"))

	if second["outcome"] != "reinvited" {
		t.Fatalf("expected reinvited, got %v", second["outcome"])
	}
	oldToken := tokenFromLink(t, first["invite_link"].(string))
	newToken := tokenFromLink(t, second["invite_link"].(string))
	if oldToken == newToken {
		t.Fatal("re-provisioning must issue a fresh token")
	}
	rec := app.do(http.MethodPost, "/auth/set-password", `{"token":"`+oldToken+`","password":"GoodPass123"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("old token must be dead, got %d", rec.Code)
	}
}

func TestProvisioning_Rejections(t *testing.T) {
	app := newTestApp(t)
	tests := []struct {
		name       string
		auth       string
		body       string
		wantCode   int
		wantReason string
	}{
		{"no secret", "", `{"email":"a@b.com"}`, http.StatusUnauthorized, "unauthorized"},
		{"wrong secret", "Bearer nope", `{"email":"a@b.com"}`, http.StatusUnauthorized, "unauthorized"},
		{"missing fields", "Bearer " + provisioningSecret, `{"Email":"a@b.com","FirstName":"A"}`, http.StatusBadRequest, "missing_fields"},
		{"invalid email", "Bearer " + provisioningSecret, `{"email":"not-an-email","first_name":"A","last_name":"B","product_name":"P","product_id":1}`, http.StatusBadRequest, "invalid_email"},
		{"invalid payload", "Bearer " + provisioningSecret, `{"email":`, http.StatusBadRequest, "invalid_payload"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			headers := map[string]string{}
			if tc.auth != "" {
				headers[echo.HeaderAuthorization] = tc.auth
			}
			rec := app.do(http.MethodPost, "/provisioning/create-user", tc.body, headers)
			if rec.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d: %s", tc.wantCode, rec.Code, rec.Body.String())
			}
			if got := decode(t, rec)["reason"]; got != tc.wantReason {
				t.Fatalf("expected reason %s, got %v", tc.wantReason, got)
			}
		})
	}
}

func TestForgotPassword_UniformResponse(t *testing.T) {
	app := newTestApp(t)
	_, err := app.admin.CreateUser(context.Background(), ports.CreateUserInput{Email: "known@example.com", Password: "ValidPass123"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	known := app.do(http.MethodPost, "/auth/forgot-password", `{"email":"known@example.com"}`, nil)
	unknown := app.do(http.MethodPost, "/auth/forgot-password", `{"email":"ghost@example.com"}`, nil)

	if known.Code != http.StatusOK || unknown.Code != http.StatusOK {
		t.Fatalf("expected 200 for both, got %d and %d", known.Code, unknown.Code)
	}
	if known.Body.String() != unknown.Body.String() {
		t.Fatalf("bodies differ: %q vs %q", known.Body.String(), unknown.Body.String())
	}

	n, ok := app.queue.last(domain.NotifyPasswordReset)
	if !ok || n.Email != "known@example.com" {
		t.Fatalf("expected one reset notification for the known email, got %+v", n)
	}

	rec := app.do(http.MethodPost, "/auth/reset-password", `{"token":"`+tokenFromLink(t, n.Link)+`","password":"NewPass456"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reset: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	app.login(t, "known@example.com", "NewPass456")
}

func TestSetPassword_Policy(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantCode int
	}{
		{"no upper case", "alllowercase1", http.StatusBadRequest},
		{"too short", "short1A", http.StatusBadRequest},
		{"over 72 bytes", "Aa1" + strings.Repeat("x", 80), http.StatusBadRequest},
		{"valid", "ValidPass123", http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			app := newTestApp(t)
			resp := decode(t, app.provision(t, "policy@example.com"))
			token := tokenFromLink(t, resp["invite_link"].(string))

			rec := app.do(http.MethodPost, "/auth/set-password", `{"token":"`+token+`","password":"`+tc.password+`"}`, nil)
			if rec.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d: %s", tc.wantCode, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestGate_Subscription(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	unsubscribed := domain.SubscriptionUnsubscribed

	for _, in := range []ports.CreateUserInput{
		{Email: "user@example.com", Password: "ValidPass123", Role: domain.RoleUser},
		{Email: "admin@example.com", Password: "ValidPass123", Role: domain.RoleAdmin},
	} {
		res, err := app.admin.CreateUser(ctx, in)
		if err != nil {
			t.Fatalf("create %s: %v", in.Email, err)
		}
		if _, err := app.admin.UpdateUser(ctx, res.Identity.ID, ports.UpdateUserInput{SubscriptionStatus: &unsubscribed}); err != nil {
			t.Fatalf("unsubscribe %s: %v", in.Email, err)
		}
	}

	userCookie := app.login(t, "user@example.com", "ValidPass123")
	rec := app.do(http.MethodGet, "/dashboard", "", nil, userCookie)
	if rec.Code != http.StatusFound || rec.Header().Get(echo.HeaderLocation) != "/subscription-lapsed" {
		t.Fatalf("lapsed user: expected redirect to lapsed page, got %d %s", rec.Code, rec.Header().Get(echo.HeaderLocation))
	}

	adminCookie := app.login(t, "admin@example.com", "ValidPass123")
	rec = app.do(http.MethodGet, "/dashboard", "", nil, adminCookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("unsubscribed admin: expected 200, got %d", rec.Code)
	}
}

func TestGate_RedirectsAnonymousAndEnforcesRole(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(http.MethodGet, "/dashboard", "", nil)
	if rec.Code != http.StatusFound || !strings.HasPrefix(rec.Header().Get(echo.HeaderLocation), "/login?next=") {
		t.Fatalf("anonymous: expected login redirect, got %d %s", rec.Code, rec.Header().Get(echo.HeaderLocation))
	}

	forged := &http.Cookie{Name: "session", Value: "not-a-jwt"}
	rec = app.do(http.MethodGet, "/admin/api/users", "", nil, forged)
	if rec.Code != http.StatusFound {
		t.Fatalf("forged session: expected redirect, got %d", rec.Code)
	}

	if _, err := app.admin.CreateUser(context.Background(), ports.CreateUserInput{Email: "plain@example.com", Password: "ValidPass123"}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	cookie := app.login(t, "plain@example.com", "ValidPass123")
	rec = app.do(http.MethodGet, "/admin/api/users", "", nil, cookie)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin: expected 403, got %d", rec.Code)
	}

	rec = app.do(http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("public route: expected 200, got %d", rec.Code)
	}
}

func TestGate_SeesDeactivationImmediately(t *testing.T) {
	app := newTestApp(t)
	res, err := app.admin.CreateUser(context.Background(), ports.CreateUserInput{Email: "soon-off@example.com", Password: "ValidPass123"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	cookie := app.login(t, "soon-off@example.com", "ValidPass123")

	inactive := false
	if _, err := app.admin.UpdateUser(context.Background(), res.Identity.ID, ports.UpdateUserInput{Active: &inactive}); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	rec := app.do(http.MethodGet, "/api/dashboard/me", "", nil, cookie)
	if rec.Code != http.StatusFound || !strings.HasPrefix(rec.Header().Get(echo.HeaderLocation), "/login") {
		t.Fatalf("deactivated: expected login redirect, got %d", rec.Code)
	}
}

func TestAdminAPI_CreateListDelete(t *testing.T) {
	app := newTestApp(t)
	if _, err := app.admin.CreateUser(context.Background(), ports.CreateUserInput{Email: "root@example.com", Password: "ValidPass123", Role: domain.RoleAdmin}); err != nil {
		t.Fatalf("create admin: %v", err)
	}
	cookie := app.login(t, "root@example.com", "ValidPass123")

	rec := app.do(http.MethodPost, "/admin/api/users", `{"email":"staff@example.com","name":"Staff"}`, nil, cookie)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	created := decode(t, rec)
	if pw, _ := created["generated_password"].(string); pw == "" {
		t.Fatalf("expected generated password, got %s", rec.Body.String())
	}
	id := created["user"].(map[string]any)["id"].(string)

	rec = app.do(http.MethodPost, "/admin/api/users", `{"email":"staff@example.com"}`, nil, cookie)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate: expected 409, got %d", rec.Code)
	}

	rec = app.do(http.MethodGet, "/admin/api/users", "", nil, cookie)
	if users, _ := decode(t, rec)["users"].([]any); len(users) != 2 {
		t.Fatalf("expected 2 users, got %s", rec.Body.String())
	}

	rec = app.do(http.MethodDelete, "/admin/api/users/"+id, "", nil, cookie)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", rec.Code)
	}
	rec = app.do(http.MethodGet, "/admin/api/users/"+id, "", nil, cookie)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("deleted: expected 404, got %d", rec.Code)
	}
}

func TestRegister_Disabled(t *testing.T) {
	app := newTestApp(t)
	rec := app.do(http.MethodPost, "/auth/register", `{"email":"self@example.com","password":"ValidPass123"}`, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if got := decode(t, rec)["error"]; got != "self-service signup is disabled" {
		t.Fatalf("unexpected error %v", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	app := newTestApp(t)
	app.do(http.MethodGet, "/health", "", nil)

	rec := app.do(http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "http_requests_total") {
		t.Fatalf("expected HTTP metrics, got %s", rec.Body.String())
	}
}
