// Package auth issues and verifies relay session tokens. A token binds
// a transport session to a device id so a reconnecting client cannot
// claim another device's identity. This hardens routing only — the
// relay remains untrusted for content.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dmarkelov/notesync/internal/common"
)

// Claims carries the registered claims plus the owning device id.
type Claims struct {
	jwt.RegisteredClaims
	DeviceID string
}

// GenerateToken signs a session token for deviceID with HS256.
func GenerateToken(deviceID string, secretKey []byte, validity time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validity)),
		},
		DeviceID: deviceID,
	})

	return token.SignedString(secretKey)
}

// GetDeviceIDFromToken verifies the token signature and returns the
// device id it was issued for.
func GetDeviceIDFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		return "", err
	}

	if !token.Valid {
		return "", common.ErrInvalidToken
	}

	return claims.DeviceID, nil
}
