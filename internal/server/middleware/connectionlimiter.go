package middleware

import (
	"log/slog"
	"net/http"

	"github.com/teamerhq/relay/pkg/config"
)

type UserOnlineChecker func(userID string) bool
type UserConnectionCycler func(userID string)

// NewConnectionLimiter enforces the one-logical-connection-per-user model at
// the HTTP layer, when the auth middleware has established a userID.
// In "cycle" mode the previous connection is closed and the new one admitted
// (last-connection-wins); in "reject" mode the new one is refused.
func NewConnectionLimiter(
	logger *slog.Logger,
	isOnline UserOnlineChecker,
	cycler UserConnectionCycler,
	cfg config.ConnectionLimitConfig,
) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.MaxPerUser <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			reqMeta, ok := ReqMetadataFrom(r.Context())
			if !ok {
				logger.Error("Connection limiter could not find request metadata in context. Check middleware order.")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			// Without auth the identity arrives later, over the socket; the
			// registry's last-connection-wins rule covers it there.
			if reqMeta.UserID == "" || !isOnline(reqMeta.UserID) {
				next.ServeHTTP(w, r)
				return
			}

			logger.Warn("User already has a live connection", slog.String("userID", reqMeta.UserID))
			switch cfg.Mode {
			case "reject":
				http.Error(w, "Too Many Active Connections", http.StatusTooManyRequests)
			case "cycle":
				cycler(reqMeta.UserID)
				next.ServeHTTP(w, r)
			default:
				logger.Error("Invalid connection limit mode configured", slog.String("mode", cfg.Mode))
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		})
	}
}
