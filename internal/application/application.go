package application

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/snatchshot/core/internal/analytics"
	"github.com/snatchshot/core/internal/api"
	"github.com/snatchshot/core/internal/auth"
	"github.com/snatchshot/core/internal/config"
	"github.com/snatchshot/core/internal/realtime"
)

// App encapsulates the client-core dependencies built from resolved
// configuration.
type App struct {
	settings config.Settings
	logger   *zap.Logger

	attributionEndpoint string
	attributionOnce     sync.Once

	API       *api.Client
	Realtime  *realtime.Client
	Analytics *analytics.Tracker
	Sessions  *auth.Store
}

// Option configures App construction.
type Option func(*App)

// WithAttributionEndpoint overrides the install-attribution endpoint
// (primarily for tests).
func WithAttributionEndpoint(endpoint string) Option {
	return func(a *App) {
		a.attributionEndpoint = endpoint
	}
}

// New wires all client components from the provided settings.
func New(settings config.Settings, logger *zap.Logger, opts ...Option) (*App, error) {
	apiClient, err := api.NewClient(settings.DatabaseAPIBaseURL, settings.DatabaseAPITimeout,
		api.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("build database api client: %w", err)
	}

	realtimeClient, err := realtime.NewClient(settings.WebSocketBaseURL, logger, realtime.DefaultOptions())
	if err != nil {
		return nil, fmt.Errorf("build realtime client: %w", err)
	}

	tracker := analytics.NewTracker(settings.MixpanelToken, logger)

	app := &App{
		settings:            settings,
		logger:              logger,
		attributionEndpoint: analytics.DefaultAttributionEndpoint,
		API:                 apiClient,
		Realtime:            realtimeClient,
		Analytics:           tracker,
		Sessions:            auth.NewStore(),
	}
	for _, opt := range opts {
		opt(app)
	}
	return app, nil
}

// Start performs the once-per-start bootstrap work: the install-attribution
// ping carrying the AppsFlyer dev key and Apple app ID. A failed ping is
// logged and dropped; attribution must never break the app. Repeated calls
// send at most one ping.
func (a *App) Start(ctx context.Context) {
	a.attributionOnce.Do(func() {
		err := a.Analytics.SendAttribution(ctx, a.attributionEndpoint,
			a.settings.AppsFlyerDevKey, a.settings.AppleAppID)
		if err != nil {
			a.logger.Warn("install attribution ping failed", zap.Error(err))
			return
		}
		a.logger.Info("install attribution sent", zap.String("apple_app_id", a.settings.AppleAppID))
	})
}

// SignIn exchanges a third-party identity assertion for a backend session
// and attaches it to subsequent API calls.
func (a *App) SignIn(ctx context.Context, assertion auth.Assertion) (auth.Session, error) {
	session, err := auth.Exchange(ctx, a.API, assertion)
	if err != nil {
		return auth.Session{}, err
	}

	a.Sessions.Set(session)
	a.API.SetSessionToken(session.Token)
	a.Analytics.Track("sign_in", map[string]string{"provider": assertion.Provider})
	a.logger.Info("session established",
		zap.String("provider", assertion.Provider),
		zap.String("user_id", session.UserID),
	)
	return session, nil
}

// SignOut clears the stored session.
func (a *App) SignOut() {
	a.Sessions.Clear()
	a.API.SetSessionToken("")
	a.Analytics.Track("sign_out", nil)
}

// Close releases background resources. Safe to call once at shutdown.
func (a *App) Close() {
	if err := a.Realtime.Close(); err != nil {
		a.logger.Warn("closing realtime client", zap.Error(err))
	}
	a.Analytics.Close()
}
