package logger

import (
	"log"
	"time"
)

// Debug logs a debug message with consistent format
// Format: [DEBUG] timestamp=... user_id=... action=... details=...
func Debug(userID int64, action, details string) {
	timestamp := time.Now().Format(time.RFC3339)
	log.Printf("[DEBUG] timestamp=%s user_id=%d action=%s details=%s", timestamp, userID, action, details)
}

// Error logs a recoverable failure in the same key=value format.
func Error(userID int64, action string, err error) {
	timestamp := time.Now().Format(time.RFC3339)
	log.Printf("[ERROR] timestamp=%s user_id=%d action=%s error=%s", timestamp, userID, action, err.Error())
}
