package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"betpool/internal/logger"
)

// ContextKey is the key type for context values
type ContextKey string

const (
	// UserIDKey is the context key for the Telegram user ID
	UserIDKey ContextKey = "user_id"
)

// ValidateInitData validates the Telegram initData string against botToken.
// It checks the HMAC-SHA256 signature and the auth_date.
func ValidateInitData(initData, botToken string) (int64, error) {
	parts := strings.Split(initData, "&")
	if len(parts) == 0 {
		return 0, fmt.Errorf("empty initData")
	}

	var hash string
	data := make(map[string]string)

	for _, part := range parts {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key, value := kv[0], kv[1]
		if key == "hash" {
			hash = value
		} else {
			data[key] = value
		}
	}

	if hash == "" {
		return 0, fmt.Errorf("hash not found in initData")
	}
	if botToken == "" {
		return 0, fmt.Errorf("bot token not configured")
	}

	// Data check string: key=value pairs sorted by key, newline-joined.
	keys := make([]string, 0, len(data))
	for key := range data {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	dataCheck := make([]string, 0, len(keys))
	for _, key := range keys {
		dataCheck = append(dataCheck, fmt.Sprintf("%s=%s", key, data[key]))
	}
	dataCheckString := strings.Join(dataCheck, "\n")

	h := hmac.New(sha256.New, []byte(botToken))
	h.Write([]byte(dataCheckString))
	computedHash := hex.EncodeToString(h.Sum(nil))

	if hash != computedHash {
		return 0, fmt.Errorf("invalid hash")
	}

	// auth_date must be less than 24 hours old
	authDateStr, ok := data["auth_date"]
	if !ok {
		return 0, fmt.Errorf("auth_date not found")
	}

	var authDate int64
	if _, err := fmt.Sscanf(authDateStr, "%d", &authDate); err != nil {
		return 0, fmt.Errorf("invalid auth_date format")
	}

	now := time.Now().Unix()
	maxAge := int64(24 * 60 * 60)
	if now-authDate > maxAge {
		return 0, fmt.Errorf("auth_date is too old")
	}

	userStr, ok := data["user"]
	if !ok {
		return 0, fmt.Errorf("user not found in initData")
	}

	userID, err := extractUserID(userStr)
	if err != nil {
		return 0, fmt.Errorf("failed to parse user: %w", err)
	}

	return userID, nil
}

// extractUserID extracts the user ID from the user JSON string
func extractUserID(userJSON string) (int64, error) {
	// Look for "id": followed by digits
	prefix := `"id":`
	idx := strings.Index(userJSON, prefix)
	if idx == -1 {
		return 0, fmt.Errorf("id field not found")
	}

	start := idx + len(prefix)
	var numStr string
	for i := start; i < len(userJSON); i++ {
		if userJSON[i] >= '0' && userJSON[i] <= '9' {
			numStr += string(userJSON[i])
		} else if len(numStr) > 0 {
			break
		}
	}

	if len(numStr) == 0 {
		return 0, fmt.Errorf("user id not found")
	}

	var userID int64
	if _, err := fmt.Sscanf(numStr, "%d", &userID); err != nil {
		return 0, err
	}

	return userID, nil
}

// Middleware returns an HTTP middleware that validates Telegram initData and
// stores the sender's Telegram ID in the request context.
func Middleware(botToken string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Health check stays open for probes
		if r.URL.Path == "/api/ping" {
			next.ServeHTTP(w, r)
			return
		}

		initData := r.Header.Get("X-Telegram-Init-Data")
		if initData == "" {
			http.Error(w, "Unauthorized: missing X-Telegram-Init-Data header", http.StatusUnauthorized)
			return
		}

		userID, err := ValidateInitData(initData, botToken)
		if err != nil {
			logger.Debug(0, "auth_failed", err.Error())
			http.Error(w, "Unauthorized: invalid initData", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), UserIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// TelegramIDFromContext retrieves the Telegram user ID from the context.
func TelegramIDFromContext(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(UserIDKey).(int64)
	return userID, ok
}
