package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"
)

const testBotToken = "123456:TEST-TOKEN"

// signInitData builds an initData query string with a valid hash for the
// given fields, the way Telegram clients do.
func signInitData(fields map[string]string, botToken string) string {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%s", key, fields[key]))
	}
	dataCheckString := strings.Join(pairs, "\n")

	h := hmac.New(sha256.New, []byte(botToken))
	h.Write([]byte(dataCheckString))
	hash := hex.EncodeToString(h.Sum(nil))

	parts := make([]string, 0, len(fields)+1)
	for key, value := range fields {
		parts = append(parts, fmt.Sprintf("%s=%s", key, value))
	}
	parts = append(parts, "hash="+hash)
	return strings.Join(parts, "&")
}

func freshFields(userID int64) map[string]string {
	return map[string]string{
		"auth_date": fmt.Sprintf("%d", time.Now().Unix()),
		"user":      fmt.Sprintf(`{"id":%d,"first_name":"Test"}`, userID),
		"query_id":  "AAH_test",
	}
}

func TestValidateInitData(t *testing.T) {
	initData := signInitData(freshFields(99887766), testBotToken)

	userID, err := ValidateInitData(initData, testBotToken)
	if err != nil {
		t.Fatalf("ValidateInitData failed: %v", err)
	}
	if userID != 99887766 {
		t.Errorf("Expected user ID 99887766, got %d", userID)
	}
}

func TestValidateInitDataBadHash(t *testing.T) {
	initData := signInitData(freshFields(1), "other-token")

	if _, err := ValidateInitData(initData, testBotToken); err == nil {
		t.Error("Expected error for hash signed with the wrong token")
	}
}

func TestValidateInitDataTampered(t *testing.T) {
	fields := freshFields(1)
	initData := signInitData(fields, testBotToken)
	tampered := strings.Replace(initData, `"id":1`, `"id":2`, 1)

	if _, err := ValidateInitData(tampered, testBotToken); err == nil {
		t.Error("Expected error for tampered payload")
	}
}

func TestValidateInitDataStaleAuthDate(t *testing.T) {
	fields := freshFields(1)
	fields["auth_date"] = fmt.Sprintf("%d", time.Now().Add(-25*time.Hour).Unix())
	initData := signInitData(fields, testBotToken)

	if _, err := ValidateInitData(initData, testBotToken); err == nil {
		t.Error("Expected error for stale auth_date")
	}
}

func TestValidateInitDataMissingHash(t *testing.T) {
	if _, err := ValidateInitData("auth_date=123&user=%7B%7D", testBotToken); err == nil {
		t.Error("Expected error when hash is missing")
	}
}

func TestMiddleware(t *testing.T) {
	var gotID int64
	var gotOK bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, gotOK = TelegramIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := Middleware(testBotToken, next)

	// No header: rejected.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without header, got %d", rec.Code)
	}

	// Valid initData: passed through with the sender's ID.
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("X-Telegram-Init-Data", signInitData(freshFields(555), testBotToken))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 with valid initData, got %d", rec.Code)
	}
	if !gotOK || gotID != 555 {
		t.Errorf("Expected context user ID 555, got %d (ok=%v)", gotID, gotOK)
	}

	// Ping stays open for probes.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ping", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 for unauthenticated ping, got %d", rec.Code)
	}
}
