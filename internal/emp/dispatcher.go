package emp

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-emp/internal/domain/adapter"
	"github.com/edumarques81/stellar-emp/internal/domain/directive"
)

type routeKey struct {
	namespace string
	name      string
}

type directiveHandler func(c *Core, d directive.Directive, req adapter.RequestType) error

type route struct {
	request adapter.RequestType
	handle  directiveHandler
}

// newRoutes builds the directive table. It is created once per dispatcher and
// never modified afterwards.
func newRoutes() map[routeKey]route {
	r := map[routeKey]route{
		{NamespaceExternalMediaPlayer, "Login"}:                      {adapter.RequestLogin, (*Core).handleLogin},
		{NamespaceExternalMediaPlayer, "Logout"}:                     {adapter.RequestLogout, (*Core).handleLogout},
		{NamespaceExternalMediaPlayer, "Play"}:                       {adapter.RequestPlay, (*Core).handlePlay},
		{NamespaceExternalMediaPlayer, "AuthorizeDiscoveredPlayers"}: {adapter.RequestNone, (*Core).handleAuthorizeDiscoveredPlayers},

		{NamespaceSeekController, "SetSeekPosition"}:    {adapter.RequestSeek, (*Core).handleSeek},
		{NamespaceSeekController, "AdjustSeekPosition"}: {adapter.RequestAdjustSeek, (*Core).handleAdjustSeek},
	}

	controls := []struct {
		namespace string
		name      string
		request   adapter.RequestType
	}{
		{NamespacePlaybackController, "Play", adapter.RequestResume},
		{NamespacePlaybackController, "Pause", adapter.RequestPause},
		{NamespacePlaybackController, "Stop", adapter.RequestStop},
		{NamespacePlaybackController, "Next", adapter.RequestNext},
		{NamespacePlaybackController, "Previous", adapter.RequestPrevious},
		{NamespacePlaybackController, "StartOver", adapter.RequestStartOver},
		{NamespacePlaybackController, "Rewind", adapter.RequestRewind},
		{NamespacePlaybackController, "FastForward", adapter.RequestFastForward},
		{NamespacePlaylistController, "EnableRepeatOne", adapter.RequestEnableRepeatOne},
		{NamespacePlaylistController, "EnableRepeat", adapter.RequestEnableRepeat},
		{NamespacePlaylistController, "DisableRepeat", adapter.RequestDisableRepeat},
		{NamespacePlaylistController, "EnableShuffle", adapter.RequestEnableShuffle},
		{NamespacePlaylistController, "DisableShuffle", adapter.RequestDisableShuffle},
		{NamespaceFavoritesController, "Favorite", adapter.RequestFavorite},
		{NamespaceFavoritesController, "Unfavorite", adapter.RequestUnfavorite},
	}
	for _, c := range controls {
		r[routeKey{c.namespace, c.name}] = route{c.request, (*Core).handlePlayControl}
	}
	return r
}

// Dispatcher routes directives to their handlers.
type Dispatcher struct {
	core   *Core
	routes map[routeKey]route
}

func newDispatcher(core *Core) *Dispatcher {
	return &Dispatcher{
		core:   core,
		routes: newRoutes(),
	}
}

// Supports reports whether a handler exists for namespace and name.
func (d *Dispatcher) Supports(namespace, name string) bool {
	_, ok := d.routes[routeKey{namespace, name}]
	return ok
}

// Handle validates d and queues its effect. result receives exactly one
// outcome: completion once the effect is queued, or failure with a
// description. Nothing escapes to the caller.
func (d *Dispatcher) Handle(dir directive.Directive, result directive.Result) {
	res := directive.NewOnce(dir, result)
	d.core.metrics.IncDirective(dir.Namespace, dir.Name)

	logger := log.With().
		Str("namespace", dir.Namespace).
		Str("name", dir.Name).
		Str("messageId", dir.MessageID).
		Logger()

	err := d.dispatch(dir)
	if err != nil {
		logger.Error().Err(err).Msg("Directive failed")
		d.core.metrics.IncDirectiveFailure(dir.Namespace, dir.Name, exceptionType(err))
		d.core.sendException(dir, err)
		res.SetFailed(err.Error())
		return
	}

	logger.Debug().Msg("Directive handled")
	res.SetCompleted()
}

func (d *Dispatcher) dispatch(dir directive.Directive) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	rt, ok := d.routes[routeKey{dir.Namespace, dir.Name}]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoHandler, dir.Key())
	}
	return rt.handle(d.core, dir, rt.request)
}
