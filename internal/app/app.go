// Package app assembles the application: configuration, model provider,
// durable stores, tool registry, pipeline, and dispatcher. Every component
// receives its dependencies explicitly; there are no ambient singletons.
package app

import (
	"context"
	"errors"
	"sync"

	"github.com/firebase/genkit/go/genkit"

	"github.com/agrisight/agrisight/internal/config"
	"github.com/agrisight/agrisight/internal/dispatch"
	"github.com/agrisight/agrisight/internal/log"
	"github.com/agrisight/agrisight/internal/profile"
	"github.com/agrisight/agrisight/internal/session"
	"github.com/agrisight/agrisight/internal/transport"
)

// App holds the assembled application.
type App struct {
	Config     *config.Config
	Logger     log.Logger
	Genkit     *genkit.Genkit
	Profiles   *profile.Store
	Sessions   *session.Store
	Dispatcher *dispatch.Dispatcher

	closeOnce sync.Once
}

// Run pumps events from the transport until the context is cancelled or the
// transport's event stream closes. Each event is handled on its own
// goroutine; same-user ordering is the dispatcher's job.
func (a *App) Run(ctx context.Context, t transport.Transport) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-t.Events():
			if !ok {
				return nil
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				reply := a.Dispatcher.Handle(ctx, ev)
				if err := t.Send(ctx, ev.UserID, reply); err != nil {
					a.Logger.Error("delivering reply", "user_id", ev.UserID, "error", err)
				}
			}()
		}
	}
}

// Close releases the durable stores. Safe to call more than once.
func (a *App) Close() error {
	var errs []error
	a.closeOnce.Do(func() {
		if a.Sessions != nil {
			if err := a.Sessions.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if a.Profiles != nil {
			if err := a.Profiles.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if a.Logger != nil {
			a.Logger.Info("application closed")
		}
	})
	return errors.Join(errs...)
}
