package di

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/ssargent/rtsq/pkg/api"
	"github.com/ssargent/rtsq/pkg/spool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFactory struct{}

func (stubFactory) CreateServerStarter() api.ServerStarter { return nil }

func TestNewContainer_Defaults(t *testing.T) {
	c := NewContainer()
	assert.NotNil(t, c.GetServerFactory())
	assert.NotNil(t, c.GetServerFactory().CreateServerStarter())

	s, err := c.OpenSpool(filepath.Join(t.TempDir(), "spool"), spool.Options{})
	require.NoError(t, err)
	assert.NoError(t, s.Close())
}

func TestContainer_Overrides(t *testing.T) {
	c := NewContainer()
	c.SetServerFactory(stubFactory{})
	assert.Nil(t, c.GetServerFactory().CreateServerStarter())

	boom := errors.New("boom")
	c.SetSpoolOpener(func(string, spool.Options) (*spool.Spool, error) { return nil, boom })
	_, err := c.OpenSpool("ignored", spool.Options{})
	assert.ErrorIs(t, err, boom)
}

func TestDefaultStarter_RequiresDependencies(t *testing.T) {
	starter := NewContainer().GetServerFactory().CreateServerStarter()
	err := starter.StartServer(context.Background(), api.Dependencies{}, api.ServerConfig{APIKey: "k"})
	assert.Error(t, err)
}
