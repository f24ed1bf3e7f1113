package main

import (
	"context"
	"net/http"
	"sync"

	"github.com/trezcool/studyplanner/core"
	"github.com/trezcool/studyplanner/core/session"
	"github.com/trezcool/studyplanner/core/study"
	"github.com/trezcool/studyplanner/storage/backend/rest"
	"github.com/trezcool/studyplanner/storage/kv"
)

// planner wires the client core over the REST backend.
type planner struct {
	client  *rest.Client
	manager *session.Manager
	auth    *session.Authenticator
	store   *study.Store
	logger  core.Logger

	mu      sync.Mutex
	loadErr error
}

func newPlanner(conf core.ClientConfig, store kv.Store, logger core.Logger, httpClient *http.Client) (*planner, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	client, err := rest.New(rest.Options{
		BackendURL: conf.BackendURL,
		AnonKey:    conf.AnonKey,
		Store:      store,
		KeyPrefix:  conf.StorageKey,
		Timeout:    conf.RequestTimeout,
		HTTPClient: httpClient,
	}, logger)
	if err != nil {
		return nil, err
	}

	manager := session.NewManager(client, logger, session.Options{
		KeyPrefix:    conf.StorageKey,
		ExpiryMargin: conf.ExpiryMargin,
		Stores:       []session.Storage{store},
	})
	p := &planner{
		client:  client,
		manager: manager,
		auth:    session.NewAuthenticator(client, client, manager, logger),
		store:   study.NewStore(client, client, manager, logger, study.Options{LoadTimeout: conf.LoadTimeout}),
		logger:  logger,
	}
	p.auth.OnUserChange(func(ctx context.Context, usr *core.SessionUser) {
		err := p.store.SetUser(ctx, usr)
		p.mu.Lock()
		p.loadErr = err
		p.mu.Unlock()
	})
	return p, nil
}

// start restores the persisted session and loads the collections of its user.
func (p *planner) start(ctx context.Context) error {
	if err := p.auth.Start(ctx); err != nil && core.IsSessionFatal(err) {
		return &study.Error{Op: "restore session", Kind: core.KindSessionFatal, Message: study.MsgSessionExpired, Err: err}
	}
	return nil
}

func (p *planner) stop() {
	p.auth.Stop()
}

// lastLoadErr returns the outcome of the load triggered by the latest user change.
func (p *planner) lastLoadErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loadErr
}

// requireUser fails unless a user is signed in and their collections loaded.
func (p *planner) requireUser() (*core.SessionUser, error) {
	usr := p.store.User()
	if usr == nil {
		return nil, errNotSignedIn
	}
	if err := p.lastLoadErr(); err != nil {
		return nil, err
	}
	return usr, nil
}
