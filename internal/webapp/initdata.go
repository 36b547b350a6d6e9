package webapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrBadSignature means the init data was not signed with the bot token.
	ErrBadSignature = errors.New("webapp: init data signature mismatch")
	// ErrExpired means auth_date is older than the allowed age.
	ErrExpired = errors.New("webapp: init data expired")
	// ErrMalformed means the init data could not be parsed.
	ErrMalformed = errors.New("webapp: malformed init data")
)

// InitData is the verified part of Telegram.WebApp.initData the API uses.
type InitData struct {
	UserID   int64
	AuthDate time.Time
}

// VerifyInitData checks the hash of raw against token and the age of
// auth_date against ttl. A zero ttl disables the age check.
func VerifyInitData(raw, token string, ttl time.Duration, now time.Time) (InitData, error) {
	values, err := url.ParseQuery(raw)
	if err != nil {
		return InitData{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	got := values.Get("hash")
	if got == "" {
		return InitData{}, fmt.Errorf("%w: no hash", ErrMalformed)
	}
	want := signature(values, token)
	if !hmac.Equal([]byte(strings.ToLower(got)), []byte(want)) {
		return InitData{}, ErrBadSignature
	}

	sec, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
	if err != nil {
		return InitData{}, fmt.Errorf("%w: auth_date", ErrMalformed)
	}
	authDate := time.Unix(sec, 0)
	if ttl > 0 && now.Sub(authDate) > ttl {
		return InitData{}, ErrExpired
	}

	var user struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal([]byte(values.Get("user")), &user); err != nil || user.ID == 0 {
		return InitData{}, fmt.Errorf("%w: user", ErrMalformed)
	}
	return InitData{UserID: user.ID, AuthDate: authDate}, nil
}

// signature is hex(HMAC_SHA256(HMAC_SHA256("WebAppData", token), data_check_string)).
func signature(values url.Values, token string) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k != "hash" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = k + "=" + values.Get(k)
	}

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(token))
	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(mac.Sum(nil))
}
