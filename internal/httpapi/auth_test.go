package httpapi

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/MokshitBindal/Aegis-sub000/internal/models"
)

func TestHandleLogin_Success(t *testing.T) {
	store := newFakeStore()
	hash, _ := bcrypt.GenerateFromPassword([]byte("correcthorse"), bcrypt.MinCost)
	store.users["u1"] = models.User{ID: "u1", Email: "owner@example.com", PassHash: string(hash), Role: models.RoleOwner, IsActive: true}
	store.usersByEmail["owner@example.com"] = store.users["u1"]
	s := newTestServer(store)

	form := url.Values{"username": {"owner@example.com"}, "password": {"correcthorse"}}
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "access_token") {
		t.Errorf("expected access_token in body, got %s", rec.Body.String())
	}
}

func TestHandleLogin_WrongPassword(t *testing.T) {
	store := newFakeStore()
	hash, _ := bcrypt.GenerateFromPassword([]byte("correcthorse"), bcrypt.MinCost)
	store.usersByEmail["owner@example.com"] = models.User{ID: "u1", Email: "owner@example.com", PassHash: string(hash), Role: models.RoleOwner, IsActive: true}
	s := newTestServer(store)

	form := url.Values{"username": {"owner@example.com"}, "password": {"wrong"}}
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestHandleLogin_InactiveAccount(t *testing.T) {
	store := newFakeStore()
	hash, _ := bcrypt.GenerateFromPassword([]byte("correcthorse"), bcrypt.MinCost)
	store.usersByEmail["disabled@example.com"] = models.User{ID: "u1", Email: "disabled@example.com", PassHash: string(hash), Role: models.RoleDeviceUser, IsActive: false}
	s := newTestServer(store)

	form := url.Values{"username": {"disabled@example.com"}, "password": {"correcthorse"}}
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 for inactive account", rec.Code)
	}
}

func TestHandleSignup_DuplicateEmail(t *testing.T) {
	store := newFakeStore()
	store.usersByEmail["taken@example.com"] = models.User{ID: "u1", Email: "taken@example.com"}
	s := newTestServer(store)

	req := httptest.NewRequest(http.MethodPost, "/auth/signup", strings.NewReader(`{"email":"taken@example.com","password":"x"}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestHandleSignup_CreatesDeviceUser(t *testing.T) {
	store := newFakeStore()
	s := newTestServer(store)

	req := httptest.NewRequest(http.MethodPost, "/auth/signup", strings.NewReader(`{"email":"new@example.com","password":"hunter2"}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	u, ok := store.usersByEmail["new@example.com"]
	if !ok {
		t.Fatal("expected user to be created")
	}
	if u.Role != models.RoleDeviceUser {
		t.Errorf("role = %q, want device_user", u.Role)
	}
}

func TestHandleCreateInvitation(t *testing.T) {
	store := newFakeStore()
	owner := models.User{ID: "u1", Email: "owner@example.com", Role: models.RoleOwner, IsActive: true}
	store.users[owner.ID] = owner
	s := newTestServer(store)
	token, _ := s.issueToken(owner, s.now())

	req := httptest.NewRequest(http.MethodPost, "/api/device/create-invitation", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if len(store.invitations) != 1 {
		t.Fatalf("expected 1 invitation stored, got %d", len(store.invitations))
	}
}

func TestHandleDeviceRegister_InvalidToken(t *testing.T) {
	store := newFakeStore()
	s := newTestServer(store)

	body := `{"token":"bogus","agent_id":"11111111-1111-1111-1111-111111111111","hostname":"h1","name":"n1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/device/register", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestHandleDeviceRegister_Success(t *testing.T) {
	store := newFakeStore()
	owner := models.User{ID: "u1", Email: "owner@example.com", Role: models.RoleOwner, IsActive: true}
	store.users[owner.ID] = owner
	s := newTestServer(store)

	token, _ := s.issueToken(owner, s.now())
	invReq := httptest.NewRequest(http.MethodPost, "/api/device/create-invitation", nil)
	invReq.Header.Set("Authorization", "Bearer "+token)
	invRec := httptest.NewRecorder()
	s.ServeHTTP(invRec, invReq)
	if invRec.Code != http.StatusCreated {
		t.Fatalf("invitation create status = %d", invRec.Code)
	}

	rawToken := extractToken(t, invRec.Body.String())

	body := `{"token":"` + rawToken + `","agent_id":"11111111-1111-1111-1111-111111111111","hostname":"h1","name":"n1"}`
	regReq := httptest.NewRequest(http.MethodPost, "/api/device/register", strings.NewReader(body))
	regRec := httptest.NewRecorder()
	s.ServeHTTP(regRec, regReq)

	if regRec.Code != http.StatusCreated {
		t.Fatalf("register status = %d body=%s", regRec.Code, regRec.Body.String())
	}
	if _, ok := store.devices["11111111-1111-1111-1111-111111111111"]; !ok {
		t.Error("expected device to be registered")
	}
	if len(store.invitations) != 0 {
		t.Error("expected invitation to be consumed")
	}
}

// extractToken pulls the "token" field out of a JSON invitation response
// body without pulling in a JSON import just for one test helper.
func extractToken(t *testing.T, body string) string {
	t.Helper()
	const marker = `"token":"`
	i := strings.Index(body, marker)
	if i < 0 {
		t.Fatalf("no token field in %s", body)
	}
	rest := body[i+len(marker):]
	j := strings.Index(rest, `"`)
	if j < 0 {
		t.Fatalf("malformed token field in %s", body)
	}
	return rest[:j]
}

func TestHandleSSOLogin_NotConfigured(t *testing.T) {
	s := newTestServer(newFakeStore())
	req := httptest.NewRequest(http.MethodPost, "/auth/sso/login", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 501", rec.Code)
	}
}
