package utils

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

func NowUTC() time.Time {
	return time.Now().UTC()
}

func RandString(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

var usernamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{2,63}$`)

func ValidateUsername(username string) error {
	if !usernamePattern.MatchString(username) {
		return errors.New("username must be 3-64 characters of a-z, 0-9, '.', '_' or '-'")
	}
	return nil
}

func ValidatePassword(password string, minChars int) error {
	if minChars <= 0 {
		minChars = 8
	}
	if strings.TrimSpace(password) == "" {
		return errors.New("password is required")
	}
	if utf8.RuneCountInString(password) < minChars {
		return errors.New("password is too short")
	}
	return nil
}
