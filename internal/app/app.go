// Package app wires configuration, storage, the session and the sync
// containers into a running client.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/nhle/crewsync/internal/api"
	"github.com/nhle/crewsync/internal/credential"
	"github.com/nhle/crewsync/internal/keys"
	"github.com/nhle/crewsync/internal/logging"
	"github.com/nhle/crewsync/internal/model"
	"github.com/nhle/crewsync/internal/session"
	"github.com/nhle/crewsync/internal/store"
	appsync "github.com/nhle/crewsync/internal/sync"
	"github.com/nhle/crewsync/internal/ui/dashboard"
)

// shutdownTimeout bounds the final flush of pending saves.
const shutdownTimeout = 5 * time.Second

// eventBuffer is how many container events may queue for the front end.
const eventBuffer = 64

// container is the part of a sync container the app drives.
type container interface {
	Name() string
	Run(ctx context.Context) error
	Refresh()
	Status() appsync.Status
	Wait()
	Flush(ctx context.Context) error
	Watch(fn func(appsync.Event)) func()
}

// App is the composition root of a crewsync process.
type App struct {
	cfg    *model.AppConfig
	logger logging.Logger
	store  *store.SQLiteStore

	session       *session.Session
	jobs          *appsync.Jobs
	employees     *appsync.Employees
	notifications *appsync.Notifications
	chat          *appsync.Chat

	events  chan appsync.Event
	unwatch []func()
}

// Option configures an App.
type Option func(*options)

type options struct {
	credentials *credential.Store
}

// WithCredentials replaces the OS keyring.
func WithCredentials(c *credential.Store) Option {
	return func(o *options) { o.credentials = c }
}

// New opens the store and builds the session and containers. Nothing
// talks to the network until Run or Login is called.
func New(ctx context.Context, cfg *model.AppConfig, logger logging.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	s, err := store.NewSQLiteStore(cfg.Storage.Path,
		store.WithWatchLogger(logger.With("component", "store")))
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	creds := o.credentials
	if creds == nil {
		creds, err = credential.Open(filepath.Dir(cfg.Storage.Path))
		if err != nil {
			s.Close()
			return nil, err
		}
	}

	clientOpts := []api.Option{
		api.WithTimeout(cfg.API.Timeout),
		api.WithMaxRetries(cfg.API.MaxRetries),
	}
	sess := session.New(api.NewAuth(api.NewClient(cfg.API.BaseURL, clientOpts...)), creds, s, logger)
	client := api.NewClient(cfg.API.BaseURL, append(clientOpts, api.WithTokenSource(sess))...)

	a := &App{
		cfg:     cfg,
		logger:  logger.With("component", "app"),
		store:   s,
		session: sess,
		events:  make(chan appsync.Event, eventBuffer),
	}
	if err := a.buildContainers(ctx, client, logger); err != nil {
		s.Close()
		return nil, err
	}

	for _, c := range a.containers() {
		a.unwatch = append(a.unwatch, c.Watch(a.publish))
	}
	return a, nil
}

func (a *App) buildContainers(ctx context.Context, client *api.Client, logger logging.Logger) error {
	persist := []store.PersistentOption{
		store.WithDebounce(a.cfg.Storage.Debounce),
		store.WithLogger(logger),
	}

	var err error
	a.notifications, err = appsync.NewNotifications(ctx, appsync.Config[model.Notification]{
		Interval: a.cfg.Sync.NotificationsInterval,
		Remote:   api.Notifications(client),
		Store:    store.NewPersistent[[]model.Notification](a.store, appsync.NotificationsKey, persist...),
		Gate:     a.session,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("building notifications: %w", err)
	}

	a.jobs, err = appsync.NewJobs(ctx, appsync.Config[model.Job]{
		Interval: a.cfg.Sync.JobsInterval,
		Remote:   api.Jobs(client),
		Store:    store.NewPersistent[[]model.Job](a.store, appsync.JobsKey, persist...),
		Gate:     a.session,
		Logger:   logger,
	}, a.notifications)
	if err != nil {
		return fmt.Errorf("building jobs: %w", err)
	}

	a.employees, err = appsync.NewEmployees(ctx, appsync.Config[model.Employee]{
		Interval: a.cfg.Sync.EmployeesInterval,
		Remote:   api.Employees(client),
		Store:    store.NewPersistent[[]model.Employee](a.store, appsync.EmployeesKey, persist...),
		Gate:     a.session,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("building employees: %w", err)
	}

	a.chat, err = appsync.NewChat(ctx, appsync.Config[model.ChatMessage]{
		Interval: a.cfg.Sync.ChatInterval,
		Remote:   api.Chat(client),
		Store:    store.NewPersistent[[]model.ChatMessage](a.store, appsync.ChatKey, persist...),
		Gate:     a.session,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("building chat: %w", err)
	}
	return nil
}

func (a *App) containers() []container {
	return []container{a.jobs, a.employees, a.notifications, a.chat}
}

// publish forwards an event to the front end, dropping it when the
// buffer is full. A dropped event only delays a redraw.
func (a *App) publish(ev appsync.Event) {
	select {
	case a.events <- ev:
	default:
	}
}

// Session returns the session of the app.
func (a *App) Session() *session.Session {
	return a.session
}

// Jobs returns the jobs container.
func (a *App) Jobs() *appsync.Jobs { return a.jobs }

// Employees returns the employees container.
func (a *App) Employees() *appsync.Employees { return a.employees }

// Notifications returns the notifications container.
func (a *App) Notifications() *appsync.Notifications { return a.notifications }

// Chat returns the chat container.
func (a *App) Chat() *appsync.Chat { return a.chat }

// Login signs in with email and password.
func (a *App) Login(ctx context.Context, email, password string) error {
	return a.session.Login(ctx, email, password)
}

// Signup creates an account and signs in.
func (a *App) Signup(ctx context.Context, name, email, password, role string) error {
	return a.session.Signup(ctx, name, email, password, role)
}

// Logout signs out here and in every other process of the profile.
func (a *App) Logout(ctx context.Context) error {
	if err := a.session.Restore(ctx); err != nil {
		a.logger.Warn(ctx, "restoring session before logout", "err", err)
	}
	return a.session.Logout(ctx)
}

// RunHeadless syncs in the background until ctx is done, logging every
// container change.
func (a *App) RunHeadless(ctx context.Context) error {
	return a.run(ctx, func(ctx context.Context) error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev := <-a.events:
				if ev.Status.Err != nil {
					a.logger.Warn(ctx, "sync failed", "container", ev.Container, "err", ev.Status.Err)
					continue
				}
				a.logger.Debug(ctx, "container changed",
					"container", ev.Container,
					"phase", ev.Status.Phase.String(),
					"items", ev.Status.Items,
					"changed", ev.ItemsChanged,
				)
			}
		}
	})
}

// RunDashboard syncs in the background while the dashboard is open.
// Quitting the dashboard stops the sync.
func (a *App) RunDashboard(ctx context.Context) error {
	return a.run(ctx, func(ctx context.Context) error {
		m := dashboard.New(a, a.events, keys.DefaultKeyMap())
		p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
		if _, err := p.Run(); err != nil {
			if ctx.Err() != nil && errors.Is(err, tea.ErrProgramKilled) {
				return nil
			}
			return fmt.Errorf("running dashboard: %w", err)
		}
		return nil
	})
}

// run restores the session, then runs the store watcher, the containers
// and front concurrently. When front returns everything else stops.
func (a *App) run(ctx context.Context, front func(ctx context.Context) error) error {
	if err := a.session.Restore(ctx); err != nil {
		a.logger.Warn(ctx, "restoring session", "err", err)
	}
	if !a.session.State().Ready() {
		a.logger.Info(ctx, "not signed in, sync paused until login")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	unwatch := a.session.Watch()
	defer unwatch()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.store.Watch(gctx, a.cfg.Storage.WatchInterval)
	})
	for _, c := range a.containers() {
		g.Go(func() error {
			if err := c.Run(gctx); err != nil {
				return fmt.Errorf("running %s: %w", c.Name(), err)
			}
			return nil
		})
	}
	g.Go(func() error {
		a.followSession(gctx)
		return nil
	})
	g.Go(func() error {
		defer cancel()
		return front(gctx)
	})

	return g.Wait()
}

// followSession turns session changes into front-end events so the
// header follows logins made elsewhere.
func (a *App) followSession(ctx context.Context) {
	states, unsubscribe := a.session.Subscribe()
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case st := <-states:
			a.logger.Debug(ctx, "session changed", "user", st.UserID(), "ready", st.Ready())
			a.publish(appsync.Event{Container: "session"})
		}
	}
}

// Close waits for in-flight requests, writes pending saves and closes
// the store.
func (a *App) Close() error {
	for _, fn := range a.unwatch {
		fn()
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	for _, c := range a.containers() {
		c.Wait()
		if err := c.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flushing %s: %w", c.Name(), err))
		}
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing store: %w", err))
	}
	return errors.Join(errs...)
}
