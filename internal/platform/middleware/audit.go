package middleware

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicflow/clinicflow/internal/platform/auth"
)

// AuditEntry captures who accessed what, when, from where, and how it ended.
type AuditEntry struct {
	UserID     string
	UserRoles  []string
	Action     string // read, create, update, delete
	Path       string
	Method     string
	IPAddress  string
	RequestID  string
	StatusCode int
	Timestamp  time.Time
}

// AuditRecorder persists audit entries. Decoupled from the middleware so
// tests can provide a mock implementation.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// Audit intercepts /api/v1/* requests and logs every access to patient data.
// Without an explicit recorder it falls back to structured zerolog output.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !strings.HasPrefix(req.URL.Path, "/api/v1/") {
				return next(c)
			}

			// Run the handler first so the response status is known.
			err := next(c)

			actor := auth.ActorFromContext(req.Context())
			entry := AuditEntry{
				UserID:     actor.ID,
				UserRoles:  actor.Roles,
				Action:     actionForMethod(req.Method),
				Path:       req.URL.Path,
				Method:     req.Method,
				IPAddress:  c.RealIP(),
				StatusCode: c.Response().Status,
				Timestamp:  time.Now().UTC(),
			}
			entry.RequestID = requestID(c)

			if len(recorders) > 0 {
				for _, r := range recorders {
					if recErr := r.RecordAccess(entry); recErr != nil {
						logger.Error().Err(recErr).
							Str("request_id", entry.RequestID).
							Msg("audit recorder failed")
					}
				}
			} else {
				logger.Info().
					Str("request_id", entry.RequestID).
					Str("user_id", entry.UserID).
					Strs("roles", entry.UserRoles).
					Str("action", entry.Action).
					Str("path", entry.Path).
					Int("status", entry.StatusCode).
					Msg("audit")
			}

			return err
		}
	}
}

func actionForMethod(method string) string {
	switch method {
	case "POST":
		return "create"
	case "PUT", "PATCH":
		return "update"
	case "DELETE":
		return "delete"
	default:
		return "read"
	}
}
