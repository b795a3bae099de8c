// Package authgin mounts an authhttp.Service on gin.
package authgin

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	authhttp "github.com/open-rails/openidkit/adapters/http"
	core "github.com/open-rails/openidkit/core"
)

// Service adds gin mounting and middleware to authhttp.Service.
type Service struct {
	*authhttp.Service
}

// NewService builds the net/http service for reg and wraps it.
func NewService(reg *core.Registry) (*Service, error) {
	hs, err := authhttp.NewService(reg)
	if err != nil {
		return nil, err
	}
	return Wrap(hs), nil
}

// Wrap adapts an already configured authhttp.Service.
func Wrap(hs *authhttp.Service) *Service {
	return &Service{Service: hs}
}

// Mount registers the OAuth login, redirect, refresh and logout routes on r.
func (s *Service) Mount(r gin.IRoutes) {
	s.WarnEphemeral()
	for _, rt := range s.Routes() {
		r.Handle(rt.Method, rt.Path, gin.WrapH(rt.Handler))
		s.Logger().WithFields(logrus.Fields{"provider": rt.Provider, "path": rt.Path}).Debug("openid route mounted")
	}
}
