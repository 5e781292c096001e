package server

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"

	"github.com/aatumaykin/ecardcut/internal/cleanup"
	"github.com/aatumaykin/ecardcut/internal/constants"
	"github.com/aatumaykin/ecardcut/internal/logger"
)

// requireAdmin checks the bearer token when an admin token is configured.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AdminToken == "" {
			next(w, r)
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AdminToken)) != 1 {
			s.logger.WarnCtx(r.Context(), "rejected admin request",
				logger.Field{Key: "request_id", Value: RequestID(r.Context())},
				logger.Field{Key: "path", Value: r.URL.Path},
				logger.Field{Key: "remote_addr", Value: r.RemoteAddr})
			w.Header().Set("WWW-Authenticate", `Bearer realm="ecardcut"`)
			writeError(w, http.StatusUnauthorized, constants.MsgUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	stats := s.sweeper.Stats()
	s.metrics.SetDirStats(stats)

	writeJSON(w, http.StatusOK, envelope{
		"success":           true,
		"retention_minutes": s.retentionMinutes(),
		"directories":       stats,
	})
}

func (s *Server) handleAdminSweep(w http.ResponseWriter, r *http.Request) {
	force := false
	if v := r.URL.Query().Get("force"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "force must be true or false")
			return
		}
		force = b
	}

	var res cleanup.Result
	kind := cleanup.KindManual
	if force {
		kind = cleanup.KindForce
		res = s.sweeper.ForceSweep(r.Context())
	} else {
		res = s.sweeper.RunSweep(r.Context())
	}

	s.logger.InfoCtx(r.Context(), "sweep triggered over http",
		logger.Field{Key: "kind", Value: kind},
		logger.Field{Key: "deleted", Value: res.Deleted},
		logger.Field{Key: "errors", Value: res.Errors})

	writeJSON(w, http.StatusOK, envelope{
		"success": res.Errors == 0,
		"kind":    kind,
		"result":  newSweepResult(res),
	})
}
