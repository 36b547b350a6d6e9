package cmd

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/sellerbot/core/config"
	coretelegram "github.com/m3rciful/sellerbot/core/telegram"
)

type carrier struct{ core *coreconfig.Config }

func (c carrier) CoreConfig() *coreconfig.Config { return c.core }

type fakeApp struct {
	services []Service
	closed   bool
}

func (a *fakeApp) TelegramRunOptions() (coretelegram.RunOptions, error) {
	return coretelegram.RunOptions{}, nil
}
func (a *fakeApp) Services() []Service { return a.services }
func (a *fakeApp) Close() error {
	a.closed = true
	return nil
}

func options(app *fakeApp, run func(context.Context, coretelegram.RunOptions) error) Options {
	return Options{
		ConfigPath:     "config.yaml",
		LoadConfig:     func(string) (ConfigCarrier, error) { return carrier{core: &coreconfig.Config{}}, nil },
		Bootstrap:      func(ConfigCarrier) (TelegramApp, error) { return app, nil },
		ShutdownLogger: func() error { return nil },
		RunTelegram:    run,
	}
}

func TestResolveConfigPathPrecedence(t *testing.T) {
	t.Setenv("SELLERBOT_CONFIG", "env.yaml")
	opts := Options{ConfigEnvVar: "SELLERBOT_CONFIG", DefaultConfigPath: "default.yaml"}

	p, err := opts.ResolveConfigPath()
	require.NoError(t, err)
	assert.Equal(t, "env.yaml", p)

	opts.ConfigPath = "flag.yaml"
	p, _ = opts.ResolveConfigPath()
	assert.Equal(t, "flag.yaml", p)

	t.Setenv("SELLERBOT_CONFIG", "")
	opts.ConfigPath = ""
	p, _ = opts.ResolveConfigPath()
	assert.Equal(t, "default.yaml", p)

	opts.DefaultConfigPath = ""
	_, err = opts.ResolveConfigPath()
	assert.Error(t, err)
}

func TestRunWrapsLifecycleHooks(t *testing.T) {
	app := &fakeApp{}
	var started, stopped bool
	err := Run(options(app, func(ctx context.Context, opts coretelegram.RunOptions) error {
		require.NoError(t, opts.OnStart(ctx, coretelegram.Runtime{}))
		started = true
		require.NoError(t, opts.OnStop(ctx, coretelegram.Runtime{}))
		stopped = true
		return nil
	}))
	require.NoError(t, err)
	assert.True(t, started)
	assert.True(t, stopped)
	assert.True(t, app.closed)
}

func TestRunStopsServicesOnFailure(t *testing.T) {
	boom := errors.New("listen failed")
	var cancelled bool
	app := &fakeApp{services: []Service{func(context.Context) error { return boom }}}

	err := Run(options(app, func(ctx context.Context, _ coretelegram.RunOptions) error {
		select {
		case <-ctx.Done():
			cancelled = true
		case <-time.After(5 * time.Second):
		}
		return nil
	}))
	assert.ErrorIs(t, err, boom)
	assert.True(t, cancelled)
	assert.True(t, app.closed)
}

func TestRunRejectsBrokenConfig(t *testing.T) {
	opts := options(&fakeApp{}, nil)
	opts.LoadConfig = func(string) (ConfigCarrier, error) { return carrier{}, nil }
	assert.Error(t, Run(opts))

	opts.LoadConfig = nil
	assert.Error(t, Run(opts))
}
