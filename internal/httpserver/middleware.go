package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/andylee303/jupyterlab-edu-extension/internal/session"
)

type sessionContextKey struct{}

// sessionFromContext returns the Session the auth middleware attached.
func sessionFromContext(ctx context.Context) (session.Session, bool) {
	sess, ok := ctx.Value(sessionContextKey{}).(session.Session)
	return sess, ok
}

// extractSessionID pulls session_id from the JSON body or the query string.
// The body is restored so the handler can decode it again.
func extractSessionID(r *http.Request) string {
	if r.Body != nil && r.Body != http.NoBody {
		body, err := io.ReadAll(io.LimitReader(r.Body, 4<<20))
		if err == nil {
			r.Body = io.NopCloser(bytes.NewReader(body))
			var probe struct {
				SessionID string `json:"session_id"`
			}
			if json.Unmarshal(body, &probe) == nil && probe.SessionID != "" {
				return probe.SessionID
			}
		}
	}
	return r.URL.Query().Get("session_id")
}

// requireLogin rejects requests without a live session. The guard only
// verifies existence; it never refreshes or extends the session.
func (s *Server) requireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := extractSessionID(r)
		sess, ok := s.sessions.Get(sessionID)
		if sessionID == "" || !ok {
			s.respondJSON(w, http.StatusUnauthorized, map[string]any{
				"success":    false,
				"error":      "請先登入",
				"error_code": "NOT_LOGGED_IN",
			})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionContextKey{}, sess)))
	})
}
