// Package authflow drives the password, Google, and GitHub sign-in pathways.
//
// Each pathway owns one attempt record. Invoking a pathway while its attempt is
// loading is a no-op. Exchanges run on their own goroutine and cannot be
// cancelled once started; a resolution whose attempt was reset, superseded, or
// whose machine was closed is dropped.
package authflow

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/shopsync-dev/shopsync/internal/cli/client"
	"github.com/shopsync-dev/shopsync/internal/persist"
	"github.com/shopsync-dev/shopsync/internal/session"
)

// Exchanger trades provider credentials for a session
type Exchanger interface {
	ExchangePassword(ctx context.Context, email, password string) (*session.Session, error)
	ExchangeGoogleToken(ctx context.Context, credential string) (*client.GoogleResult, error)
	ExchangeGitHubCode(ctx context.Context, code string) (*session.Session, error)
}

// Persister stores the sign-in side data that is not part of the session record
type Persister interface {
	PersistTokens(ctx context.Context, access, refresh string) error
	StageTempUserInfo(ctx context.Context, info persist.TempUserInfo) error
	ClearTempUserInfo(ctx context.Context) error
}

// outcome is what an exchange resolves to
type outcome struct {
	session *session.Session
	tokens  client.Tokens
	err     error
}

// Machine is the auth state machine
type Machine struct {
	exchanger Exchanger
	sessions  *session.Store
	persister Persister
	logger    zerolog.Logger

	// resolveMu serializes the apply step of resolutions so the session
	// write and its event stay together
	resolveMu sync.Mutex

	mu        sync.Mutex
	attempts  map[session.Pathway]Attempt
	consumed  map[string]struct{}
	listeners map[int]func(Event)
	nextID    int
	closed    bool

	wg sync.WaitGroup
}

// New creates a machine with every pathway idle
func New(exchanger Exchanger, sessions *session.Store, persister Persister, logger zerolog.Logger) *Machine {
	attempts := make(map[session.Pathway]Attempt, len(session.Pathways))
	for _, p := range session.Pathways {
		attempts[p] = Attempt{Pathway: p, Status: StatusIdle}
	}
	return &Machine{
		exchanger: exchanger,
		sessions:  sessions,
		persister: persister,
		logger:    logger,
		attempts:  attempts,
		consumed:  make(map[string]struct{}),
		listeners: make(map[int]func(Event)),
	}
}

// LoginPassword starts a password exchange. It reports false when the
// password pathway is already loading.
func (m *Machine) LoginPassword(ctx context.Context, email, password string) bool {
	return m.start(ctx, session.PathwayPassword, "", func(ctx context.Context) outcome {
		sess, err := m.exchanger.ExchangePassword(ctx, email, password)
		return outcome{session: sess, err: err}
	})
}

// LoginGoogle starts a Google identity-token exchange. The token's unverified
// email and name are staged as tempUserInfo before the exchange runs.
func (m *Machine) LoginGoogle(ctx context.Context, credential string) bool {
	return m.start(ctx, session.PathwayGoogle, "", func(ctx context.Context) outcome {
		m.stageTempUserInfo(ctx, credential)

		res, err := m.exchanger.ExchangeGoogleToken(ctx, credential)
		if err != nil {
			return outcome{err: err}
		}
		return outcome{session: res.Session, tokens: res.Tokens}
	})
}

// LoginGitHub starts a GitHub authorization-code exchange
func (m *Machine) LoginGitHub(ctx context.Context, code string) bool {
	return m.start(ctx, session.PathwayGitHub, "", m.exchangeGitHub(code))
}

func (m *Machine) exchangeGitHub(code string) func(context.Context) outcome {
	return func(ctx context.Context) outcome {
		sess, err := m.exchanger.ExchangeGitHubCode(ctx, code)
		return outcome{session: sess, err: err}
	}
}

// HandleRedirect processes the location the GitHub redirect returned to.
// A code is exchanged at most once, however many times its location is handled.
// A code that arrives while the GitHub pathway is loading is not consumed, so
// handling its location again once the pathway settles exchanges it.
// A provider error in the location fails the GitHub attempt without an exchange.
func (m *Machine) HandleRedirect(ctx context.Context, location *url.URL) bool {
	if location == nil {
		return false
	}
	query := location.Query()
	code := query.Get("code")

	if code == "" {
		if providerErr := query.Get("error"); providerErr != "" {
			msg := query.Get("error_description")
			if msg == "" {
				msg = providerErr
			}
			m.fail(session.PathwayGitHub, &client.ExchangeError{Kind: client.ErrInvalidGrant, Message: msg})
		}
		return false
	}

	return m.start(ctx, session.PathwayGitHub, code, m.exchangeGitHub(code))
}

// Reset returns a pathway to idle. A late resolution of the reset attempt is ignored.
func (m *Machine) Reset(pathway session.Pathway) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[pathway] = Attempt{Pathway: pathway, Status: StatusIdle}
}

// Attempt returns the current attempt record of a pathway
func (m *Machine) Attempt(pathway session.Pathway) Attempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[pathway]
	if !ok {
		return Attempt{Pathway: pathway, Status: StatusIdle}
	}
	return a
}

// Subscribe registers a listener for transition events and returns a function
// that removes it. Listeners run on the goroutine that resolved the attempt.
func (m *Machine) Subscribe(l func(Event)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = l
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// Wait blocks until every started exchange has resolved
func (m *Machine) Wait() {
	m.wg.Wait()
}

// Close stops the machine. Pathways can no longer be invoked and exchanges
// still in flight resolve without effect.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

// start reserves the pathway and runs exchange. A non-empty redirectCode is
// marked consumed only when the exchange is committed to.
func (m *Machine) start(ctx context.Context, pathway session.Pathway, redirectCode string, exchange func(context.Context) outcome) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	if redirectCode != "" {
		if _, seen := m.consumed[redirectCode]; seen {
			m.mu.Unlock()
			m.logger.Debug().Msg("Ignoring already handled redirect code")
			return false
		}
	}
	if m.attempts[pathway].Status == StatusLoading {
		m.mu.Unlock()
		m.logger.Debug().Str("pathway", string(pathway)).Msg("Sign-in already in progress")
		return false
	}
	if redirectCode != "" {
		m.consumed[redirectCode] = struct{}{}
	}

	id := ulid.Make().String()
	m.attempts[pathway] = Attempt{Pathway: pathway, Status: StatusLoading, AttemptID: id}
	m.wg.Add(1)
	m.mu.Unlock()

	m.logger.Debug().Str("pathway", string(pathway)).Str("attempt_id", id).Msg("Starting credential exchange")

	// Exchanges are not cancellable once started
	exchangeCtx := context.WithoutCancel(ctx)
	go func() {
		defer m.wg.Done()
		m.resolve(exchangeCtx, pathway, id, exchange(exchangeCtx))
	}()
	return true
}

func (m *Machine) resolve(ctx context.Context, pathway session.Pathway, id string, out outcome) {
	m.resolveMu.Lock()
	defer m.resolveMu.Unlock()

	log := m.logger.With().Str("pathway", string(pathway)).Str("attempt_id", id).Logger()

	if out.err == nil && out.session == nil {
		out.err = fmt.Errorf("exchange returned no session")
	}

	m.mu.Lock()
	current := m.attempts[pathway]
	if m.closed || current.AttemptID != id || current.Status != StatusLoading {
		m.mu.Unlock()
		log.Debug().Err(out.err).Msg("Ignoring stale sign-in resolution")
		return
	}

	if out.err != nil {
		msg := client.Message(out.err)
		m.attempts[pathway] = Attempt{Pathway: pathway, Status: StatusFailed, AttemptID: id, Error: msg, Err: out.err}
		listeners := m.snapshotListeners()
		m.mu.Unlock()

		log.Warn().Err(out.err).Msg("Sign-in failed")
		emit(listeners, Event{Kind: EventFailed, Pathway: pathway, AttemptID: id, Error: msg, Err: out.err})
		return
	}

	m.attempts[pathway] = Attempt{Pathway: pathway, Status: StatusSucceeded, AttemptID: id}
	listeners := m.snapshotListeners()
	m.mu.Unlock()

	sess := *out.session
	sess.IssuedVia = pathway
	m.sessions.Set(sess)

	if pathway == session.PathwayGoogle {
		if err := m.persister.PersistTokens(ctx, out.tokens.Access, out.tokens.Refresh); err != nil {
			log.Error().Err(err).Msg("Failed to persist provider tokens")
		}
	}
	if err := m.persister.ClearTempUserInfo(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to clear staged user info")
	}

	log.Info().Str("user_id", sess.UserID).Msg("Signed in")
	emit(listeners, Event{Kind: EventSucceeded, Pathway: pathway, AttemptID: id, Session: &sess, Navigate: LandingRoute})
}

// fail records a failure that did not come from an exchange
func (m *Machine) fail(pathway session.Pathway, err error) {
	m.mu.Lock()
	if m.closed || m.attempts[pathway].Status == StatusLoading {
		m.mu.Unlock()
		return
	}
	msg := client.Message(err)
	m.attempts[pathway] = Attempt{Pathway: pathway, Status: StatusFailed, Error: msg, Err: err}
	listeners := m.snapshotListeners()
	m.mu.Unlock()

	m.logger.Warn().Err(err).Str("pathway", string(pathway)).Msg("Sign-in failed")
	emit(listeners, Event{Kind: EventFailed, Pathway: pathway, Error: msg, Err: err})
}

func (m *Machine) stageTempUserInfo(ctx context.Context, credential string) {
	claims, err := session.Claims(credential)
	if err != nil {
		m.logger.Debug().Err(err).Msg("Could not read identity token claims")
		return
	}
	info := persist.TempUserInfo{Email: claims.Email, Name: claims.Name}
	if info == (persist.TempUserInfo{}) {
		return
	}
	if err := m.persister.StageTempUserInfo(ctx, info); err != nil {
		m.logger.Error().Err(err).Msg("Failed to stage user info")
	}
}

// snapshotListeners returns listeners in subscription order. Caller holds mu.
func (m *Machine) snapshotListeners() []func(Event) {
	out := make([]func(Event), 0, len(m.listeners))
	for id := 0; id < m.nextID; id++ {
		if l, ok := m.listeners[id]; ok {
			out = append(out, l)
		}
	}
	return out
}

func emit(listeners []func(Event), ev Event) {
	for _, l := range listeners {
		l(ev)
	}
}
