// Package di provides dependency injection container
package di

import (
	"github.com/ssargent/rtsq/pkg/api" //nolint:depguard
	"github.com/ssargent/rtsq/pkg/spool"
)

// SpoolOpener opens the message spool at path
type SpoolOpener func(path string, opts spool.Options) (*spool.Spool, error)

// Container holds all the dependencies for the application
type Container struct {
	serverFactory api.ServerFactory
	spoolOpener   SpoolOpener
}

// NewContainer creates a new dependency injection container
func NewContainer() *Container {
	return &Container{
		serverFactory: api.NewServerFactory(),
		spoolOpener:   spool.Open,
	}
}

// GetServerFactory returns the server factory
func (c *Container) GetServerFactory() api.ServerFactory {
	return c.serverFactory
}

// SetServerFactory allows overriding the server factory (for testing)
func (c *Container) SetServerFactory(factory api.ServerFactory) {
	c.serverFactory = factory
}

// OpenSpool opens the spool through the configured opener
func (c *Container) OpenSpool(path string, opts spool.Options) (*spool.Spool, error) {
	return c.spoolOpener(path, opts)
}

// SetSpoolOpener allows overriding how the spool is opened (for testing)
func (c *Container) SetSpoolOpener(opener SpoolOpener) {
	c.spoolOpener = opener
}
