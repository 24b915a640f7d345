package front

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/qanotai/qanotai-backend/internal/config"
	"github.com/qanotai/qanotai-backend/internal/db"
	"github.com/qanotai/qanotai-backend/internal/models"
)

func newTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, err := db.Open("file:" + t.Name() + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	r := gin.New()
	RegisterFrontRoutes(r, conn, config.JWTConfig{Secret: "jwt-secret"}, nil)
	return r, conn
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	User        struct {
		ID     uint64 `json:"id"`
		AuthID string `json:"auth_id"`
		Name   string `json:"name"`
	} `json:"user"`
}

func exchangeToken(t *testing.T, r *gin.Engine, body gin.H) (int, tokenResponse) {
	t.Helper()

	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/token", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp tokenResponse
	if w.Code == http.StatusOK {
		if errDecode := json.Unmarshal(w.Body.Bytes(), &resp); errDecode != nil {
			t.Fatalf("decode response: %v", errDecode)
		}
	}
	return w.Code, resp
}

func TestTokenExchangeCreatesUserMirror(t *testing.T) {
	r, conn := newTestRouter(t)

	code, resp := exchangeToken(t, r, gin.H{"auth_id": "firebase-uid-1", "name": "Aziza", "phone": "+998901234567"})
	if code != http.StatusOK {
		t.Fatalf("expected HTTP 200, got %d", code)
	}
	if resp.AccessToken == "" || resp.TokenType != "bearer" {
		t.Fatalf("expected bearer token, got %+v", resp)
	}

	var user models.User
	if err := conn.Where("auth_id = ?", "firebase-uid-1").First(&user).Error; err != nil {
		t.Fatalf("load user: %v", err)
	}
	if user.ID != resp.User.ID || user.Name != "Aziza" || user.Phone != "+998901234567" {
		t.Fatalf("unexpected user row: %+v", user)
	}

	// The issued token must open the authed routes.
	req := httptest.NewRequest(http.MethodGet, "/v1/quota", nil)
	req.Header.Set("Authorization", "Bearer "+resp.AccessToken)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected HTTP 200 on /v1/quota, got %d: %s", w.Code, w.Body.String())
	}
}

func TestTokenExchangeReusesExistingMirror(t *testing.T) {
	r, conn := newTestRouter(t)

	_, first := exchangeToken(t, r, gin.H{"auth_id": "firebase-uid-2", "name": "Old Name"})
	code, second := exchangeToken(t, r, gin.H{"auth_id": "firebase-uid-2", "name": "New Name"})
	if code != http.StatusOK {
		t.Fatalf("expected HTTP 200, got %d", code)
	}
	if first.User.ID != second.User.ID {
		t.Fatalf("expected one user row, got ids %d and %d", first.User.ID, second.User.ID)
	}

	var count int64
	if err := conn.Model(&models.User{}).Where("auth_id = ?", "firebase-uid-2").Count(&count).Error; err != nil {
		t.Fatalf("count users: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 user row, got %d", count)
	}

	var user models.User
	if err := conn.Where("auth_id = ?", "firebase-uid-2").First(&user).Error; err != nil {
		t.Fatalf("load user: %v", err)
	}
	if user.Name != "New Name" {
		t.Fatalf("expected refreshed name, got %q", user.Name)
	}
}

func TestTokenExchangeRejectsDisabledUser(t *testing.T) {
	r, conn := newTestRouter(t)

	user := models.User{AuthID: "firebase-uid-3", Name: "Blocked", Active: false}
	if err := conn.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}

	code, _ := exchangeToken(t, r, gin.H{"auth_id": "firebase-uid-3"})
	if code != http.StatusForbidden {
		t.Fatalf("expected HTTP 403, got %d", code)
	}
}

func TestTokenExchangeRequiresAuthID(t *testing.T) {
	r, _ := newTestRouter(t)

	code, _ := exchangeToken(t, r, gin.H{"name": "No ID"})
	if code != http.StatusBadRequest {
		t.Fatalf("expected HTTP 400, got %d", code)
	}
}

func TestQuestionsEndpointServesSeededBank(t *testing.T) {
	r, _ := newTestRouter(t)

	code, resp := exchangeToken(t, r, gin.H{"auth_id": "firebase-uid-4"})
	if code != http.StatusOK {
		t.Fatalf("expected HTTP 200, got %d", code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/questions?part=2", nil)
	req.Header.Set("Authorization", "Bearer "+resp.AccessToken)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected HTTP 200, got %d: %s", w.Code, w.Body.String())
	}

	var body struct {
		Questions []struct {
			Part int `json:"part"`
		} `json:"questions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Questions) == 0 {
		t.Fatal("expected seeded part 2 questions")
	}
	for _, question := range body.Questions {
		if question.Part != 2 {
			t.Fatalf("expected only part 2 questions, got part %d", question.Part)
		}
	}
}
