package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"github.com/raagalabs/swarasheet/backend/internal/auth"
	"github.com/raagalabs/swarasheet/backend/internal/collections"
	"github.com/raagalabs/swarasheet/backend/internal/songs"
	"github.com/raagalabs/swarasheet/backend/internal/users"
	"gorm.io/gorm"
)

type sequentialIDGenerator struct {
	prefix string
	next   int
}

func (g *sequentialIDGenerator) NewID() (string, error) {
	g.next++
	return fmt.Sprintf("%s-%d", g.prefix, g.next), nil
}

type testEnv struct {
	handler http.Handler
	db      *gorm.DB
	tokens  *auth.TokenIssuer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:swarasheet_server_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&songs.Record{},
		&users.User{},
		&users.OTPChallenge{},
		&users.Favorite{},
		&collections.Record{},
		&collections.Membership{},
	); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	tokens, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("test-signing-secret"),
		Issuer:        "swarasheet-auth",
		Audience:      "swarasheet-api",
	})
	if err != nil {
		t.Fatalf("failed to construct token issuer: %v", err)
	}

	codes, err := auth.NewFixedCodeSource("123456")
	if err != nil {
		t.Fatalf("failed to construct code source: %v", err)
	}
	userService, err := users.NewService(users.ServiceConfig{
		Database:    db,
		IDProvider:  &sequentialIDGenerator{prefix: "user"},
		Codes:       codes,
		AllowSignup: true,
	})
	if err != nil {
		t.Fatalf("failed to construct user service: %v", err)
	}
	songService, err := songs.NewService(songs.ServiceConfig{
		Database:      db,
		IDProvider:    &sequentialIDGenerator{prefix: "song"},
		PublicListing: true,
	})
	if err != nil {
		t.Fatalf("failed to construct song service: %v", err)
	}
	collectionService, err := collections.NewService(collections.ServiceConfig{
		Database:      db,
		IDProvider:    &sequentialIDGenerator{prefix: "col"},
		PublicListing: true,
	})
	if err != nil {
		t.Fatalf("failed to construct collection service: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		Tokens:      tokens,
		Songs:       songService,
		Users:       userService,
		Collections: collectionService,
		Database:    db,
	})
	if err != nil {
		t.Fatalf("failed to construct handler: %v", err)
	}

	return &testEnv{handler: handler, db: db, tokens: tokens}
}

// loginAs creates or reuses the account for the phone number through the
// real OTP flow and returns a bearer token for it.
func (env *testEnv) loginAs(t *testing.T, phoneNumber string) (string, users.User) {
	t.Helper()

	response := env.request(t, http.MethodPost, "/auth/send-otp", "", map[string]string{"phoneNumber": phoneNumber})
	if response.Code != http.StatusOK {
		t.Fatalf("send-otp failed with %d: %s", response.Code, response.Body.String())
	}

	response = env.request(t, http.MethodPost, "/auth/verify-otp", "", map[string]string{
		"phoneNumber": phoneNumber,
		"otp":         "123456",
	})
	if response.Code != http.StatusOK {
		t.Fatalf("verify-otp failed with %d: %s", response.Code, response.Body.String())
	}

	var body struct {
		Token string     `json:"token"`
		User  users.User `json:"user"`
	}
	if err := json.Unmarshal(response.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode verify response: %v", err)
	}
	if body.Token == "" {
		t.Fatalf("expected a bearer token in %s", response.Body.String())
	}
	return body.Token, body.User
}

func (env *testEnv) request(t *testing.T, method, path, token string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Buffer
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to encode payload: %v", err)
		}
		body = bytes.NewBuffer(encoded)
	} else {
		body = bytes.NewBuffer(nil)
	}

	request := httptest.NewRequest(method, path, body)
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}

	recorder := httptest.NewRecorder()
	env.handler.ServeHTTP(recorder, request)
	return recorder
}

func validSongPayload() map[string]interface{} {
	return map[string]interface{}{
		"title":         "Endaro Mahanubhavulu",
		"artist":        "Tyagaraja",
		"album":         "Pancharatna Kritis",
		"notationType":  "carnatic",
		"aarohana":      "S R2 G3 M1 P D2 N3 S",
		"avarohana":     "S N3 D2 P M1 G3 R2 S",
		"tempo":         "72",
		"timeSignature": "4/4",
		"raga":          "Sri",
		"taal":          "Adi",
		"sections": []map[string]interface{}{
			{
				"name": "Pallavi",
				"lines": []map[string]string{
					{"notes": "S R G M", "chords": "Cm", "lyrics": "Endaro mahanubhavulu"},
				},
			},
		},
	}
}
