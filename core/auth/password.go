package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// The pepper is applied with HMAC before bcrypt so that passwords longer than
// bcrypt's 72 byte input limit are not silently truncated.
func peppered(password, pepper string) []byte {
	m := hmac.New(sha256.New, []byte(pepper))
	_, _ = m.Write([]byte(password))
	return []byte(hex.EncodeToString(m.Sum(nil)))
}

func HashPassword(password, pepper string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword(peppered(password, pepper), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func VerifyPassword(password, pepper, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), peppered(password, pepper))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, err
}

// dummyHash is compared against when the user does not exist so unknown and
// known usernames take comparable time.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("trustlog-timing-guard"), bcrypt.DefaultCost)
