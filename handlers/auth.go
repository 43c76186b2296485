package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/kevinaaaquil/sharemybook/middleware"
	"golang.org/x/crypto/bcrypt"
)

// AuthHandler unlocks the device API with the owner's passcode.
type AuthHandler struct {
	PasscodeHash string
	JWTSecret    string
	DeviceID     string
	TokenTTL     time.Duration
}

// DefaultDeviceID is put in tokens when the handler has no DeviceID.
const DefaultDeviceID = "sharemybook"

type LoginRequest struct {
	Passcode string `json:"passcode"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// HashPasscode returns the bcrypt hash stored in DEVICE_PASSCODE_HASH.
func HashPasscode(passcode string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(passcode), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	if req.Passcode == "" {
		http.Error(w, `{"error":"passcode required"}`, http.StatusBadRequest)
		return
	}
	if h.PasscodeHash == "" || bcrypt.CompareHashAndPassword([]byte(h.PasscodeHash), []byte(req.Passcode)) != nil {
		http.Error(w, `{"error":"invalid passcode"}`, http.StatusUnauthorized)
		return
	}

	token, expires, err := h.createToken()
	if err != nil {
		http.Error(w, `{"error":"could not create token"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, LoginResponse{Token: token, ExpiresAt: expires})
}

func (h *AuthHandler) createToken() (string, time.Time, error) {
	ttl := h.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour * 7
	}
	device := h.DeviceID
	if device == "" {
		device = DefaultDeviceID
	}
	now := time.Now()
	expires := now.Add(ttl)
	claims := &middleware.Claims{
		Device: device,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(h.JWTSecret))
	return signed, expires, err
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// writeError is for messages that are not fixed strings and need escaping.
func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
