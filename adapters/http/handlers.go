package authhttp

import (
	"net/http"

	"github.com/sirupsen/logrus"

	core "github.com/open-rails/openidkit/core"
)

// ServeMux is the subset of *http.ServeMux used for mounting.
type ServeMux interface {
	Handle(pattern string, handler http.Handler)
}

// Mount registers every OAuth route on mux using method patterns.
func (s *Service) Mount(mux ServeMux) {
	s.WarnEphemeral()
	for _, rt := range s.Routes() {
		mux.Handle(rt.Method+" "+rt.Path, rt.Handler)
		s.log.WithFields(logrus.Fields{"provider": rt.Provider, "path": rt.Path}).Debug("openid route mounted")
	}
}

// WarnEphemeral logs when production sessions live in process memory.
func (s *Service) WarnEphemeral() {
	if !s.reg.Development() && s.storeMode != core.EphemeralRedis && len(s.oauth) > 0 {
		s.log.Warn("openid: sessions use an in-memory store; configure redis for multi-instance deployments")
	}
}

// Handler returns a handler serving only the OAuth routes.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Mount(mux)
	return mux
}
