package session

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/shopmindai/chatcore/internal/apperr"
)

// subprotocolPrefix is the placeholder token the sub-protocol carrying
// the bearer credential is prefixed with, per §6 ("the sub-protocol
// list carries the bearer token base64-url encoded without padding and
// prefixed by a placeholder token") — browsers cannot set arbitrary
// request headers on a WebSocket upgrade, so the credential rides in
// Sec-WebSocket-Protocol instead.
const subprotocolPrefix = "bearer."

// Claims is the JWT payload minted by the external auth service; the
// core only ever verifies it, never issues it.
type Claims struct {
	jwt.RegisteredClaims
	UserID int64 `json:"userId"`
}

// extractToken finds the "bearer.<token>" entry in the subprotocol
// list a client proposed and base64url-decodes it (no padding).
func extractToken(protocols []string) (string, bool) {
	for _, p := range protocols {
		if strings.HasPrefix(p, subprotocolPrefix) {
			encoded := strings.TrimPrefix(p, subprotocolPrefix)
			decoded, err := base64.RawURLEncoding.DecodeString(encoded)
			if err != nil {
				continue
			}
			return string(decoded), true
		}
	}
	return "", false
}

// verifyToken validates a bearer token against the shared JWT_KEY and
// returns the authenticated user id.
func verifyToken(raw, key string) (int64, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apperr.New(apperr.Unauthorized, "unexpected signing method")
		}
		return []byte(key), nil
	})
	if err != nil || !token.Valid {
		return 0, apperr.New(apperr.Unauthorized, "invalid bearer token")
	}
	if claims.UserID == 0 {
		return 0, apperr.New(apperr.Unauthorized, "token missing userId claim")
	}
	return claims.UserID, nil
}

// protocolsFromRequest reads the client's proposed subprotocol list
// straight off the upgrade request, the way gorilla/websocket's
// Upgrader.Subprotocols callback would see it.
func protocolsFromRequest(r *http.Request) []string {
	h := r.Header.Get("Sec-WebSocket-Protocol")
	if h == "" {
		return nil
	}
	parts := strings.Split(h, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
