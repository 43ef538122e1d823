package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// NewAuthMiddleware verifies the session JWT (cookie or bearer header) and
// records its subject in the request metadata. It only gates the transport:
// the announce message still binds identity inside the registry, which
// accepts userIDs as opaque.
func NewAuthMiddleware(logger *slog.Logger, jwtSecret string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqMeta, ok := ReqMetadataFrom(r.Context())
			if !ok {
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			tokenString := bearerToken(r)
			if tokenString == "" {
				logger.Warn("Missing session token", slog.String("ip", reqMeta.IP))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := VerifyToken(tokenString, jwtSecret)
			if err != nil {
				logger.Warn("Invalid session token", slog.String("ip", reqMeta.IP), slog.Any("error", err))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			reqMeta.UserID = claims.Subject
			next.ServeHTTP(w, r)
		})
	}
}

// VerifyToken parses an HS256 token and requires a non-empty subject.
func VerifyToken(tokenString, jwtSecret string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Subject == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

func bearerToken(r *http.Request) string {
	if cookie, err := r.Cookie("session-token"); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}
