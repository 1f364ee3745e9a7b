// Package api provides factory implementations for dependency injection
package api

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Dependencies are the services a server is built from
type Dependencies struct {
	Store    MessageStore
	Returner MessageReturner
	Journal  JournalReader // optional
	Logger   *zap.Logger
}

// DefaultServerFactory is the default implementation of ServerFactory
type DefaultServerFactory struct{}

// NewServerFactory creates a new server factory
func NewServerFactory() ServerFactory {
	return &DefaultServerFactory{}
}

// CreateServerStarter creates a server starter
func (f *DefaultServerFactory) CreateServerStarter() ServerStarter {
	return &DefaultServerStarter{}
}

// DefaultServerStarter is the default implementation of ServerStarter
type DefaultServerStarter struct{}

// StartServer builds a Server from deps and serves it
func (s *DefaultServerStarter) StartServer(ctx context.Context, deps Dependencies, config ServerConfig) error {
	if deps.Store == nil || deps.Returner == nil {
		return errors.New("api: store and returner are required")
	}
	if config.APIKey == "" {
		return errors.New("api: an API key is required")
	}
	server := NewServer(deps.Store, deps.Returner, deps.Journal, config, NewMetrics(), deps.Logger)
	return StartServer(ctx, server)
}
