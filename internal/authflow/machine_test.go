package authflow

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopsync-dev/shopsync/internal/cart"
	"github.com/shopsync-dev/shopsync/internal/cli/client"
	"github.com/shopsync-dev/shopsync/internal/persist"
	"github.com/shopsync-dev/shopsync/internal/session"
	"github.com/shopsync-dev/shopsync/internal/storage"
)

type result struct {
	session *session.Session
	tokens  client.Tokens
	err     error
}

// fakeExchanger blocks every exchange until the test releases it, unless a
// pathway has a func override
type fakeExchanger struct {
	mu          sync.Mutex
	calls       map[session.Pathway]int
	githubCodes []string
	release     map[session.Pathway]chan result
	started     chan session.Pathway
	githubFn    func(code string) (*session.Session, error)
}

func newFakeExchanger() *fakeExchanger {
	f := &fakeExchanger{
		calls:   make(map[session.Pathway]int),
		release: make(map[session.Pathway]chan result),
		started: make(chan session.Pathway, 16),
	}
	for _, p := range session.Pathways {
		f.release[p] = make(chan result)
	}
	return f
}

func (f *fakeExchanger) record(p session.Pathway) result {
	f.mu.Lock()
	f.calls[p]++
	f.mu.Unlock()
	f.started <- p
	return <-f.release[p]
}

func (f *fakeExchanger) exchangedCodes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.githubCodes...)
}

func (f *fakeExchanger) callCount(p session.Pathway) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[p]
}

func (f *fakeExchanger) ExchangePassword(_ context.Context, _, _ string) (*session.Session, error) {
	r := f.record(session.PathwayPassword)
	return r.session, r.err
}

func (f *fakeExchanger) ExchangeGoogleToken(_ context.Context, _ string) (*client.GoogleResult, error) {
	r := f.record(session.PathwayGoogle)
	if r.err != nil {
		return nil, r.err
	}
	return &client.GoogleResult{Session: r.session, Tokens: r.tokens}, nil
}

func (f *fakeExchanger) ExchangeGitHubCode(_ context.Context, code string) (*session.Session, error) {
	f.mu.Lock()
	f.githubCodes = append(f.githubCodes, code)
	f.mu.Unlock()

	if f.githubFn != nil {
		f.mu.Lock()
		f.calls[session.PathwayGitHub]++
		f.mu.Unlock()
		return f.githubFn(code)
	}
	r := f.record(session.PathwayGitHub)
	return r.session, r.err
}

type fixture struct {
	machine   *Machine
	exchanger *fakeExchanger
	sessions  *session.Store
	bridge    *persist.Bridge
	backend   *storage.Memory

	mu     sync.Mutex
	events []Event
}

func newFixture(t *testing.T, seed *session.Session) *fixture {
	t.Helper()
	backend := storage.NewMemory()
	bridge := persist.NewBridge(backend, zerolog.Nop())
	sessions := session.NewStore(seed)
	bridge.Bind(sessions, cart.NewStore(cart.State{}))

	f := &fixture{
		exchanger: newFakeExchanger(),
		sessions:  sessions,
		bridge:    bridge,
		backend:   backend,
	}
	f.machine = New(f.exchanger, sessions, bridge, zerolog.Nop())
	f.machine.Subscribe(func(ev Event) {
		f.mu.Lock()
		f.events = append(f.events, ev)
		f.mu.Unlock()
	})
	t.Cleanup(func() {
		f.machine.Close()
		// Unblock anything still waiting so goroutines exit
		for _, ch := range f.exchanger.release {
			select {
			case ch <- result{err: errors.New("test finished")}:
			default:
			}
		}
	})
	return f
}

func (f *fixture) recorded() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Event(nil), f.events...)
}

func (f *fixture) awaitStart(t *testing.T, want session.Pathway) {
	t.Helper()
	select {
	case got := <-f.exchanger.started:
		require.Equal(t, want, got)
	case <-time.After(2 * time.Second):
		t.Fatalf("exchange for %s never started", want)
	}
}

func okResult(id, token string) result {
	return result{session: &session.Session{UserID: id, DisplayName: "User " + id, Token: token}}
}

func TestLoginPassword_Success(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.True(t, f.machine.LoginPassword(ctx, "ada@example.com", "secret"))
	f.awaitStart(t, session.PathwayPassword)
	assert.Equal(t, StatusLoading, f.machine.Attempt(session.PathwayPassword).Status)

	f.exchanger.release[session.PathwayPassword] <- okResult("1", "tok-1")
	f.machine.Wait()

	assert.Equal(t, StatusSucceeded, f.machine.Attempt(session.PathwayPassword).Status)

	current, ok := f.sessions.Get()
	require.True(t, ok)
	assert.Equal(t, "tok-1", current.Token)
	assert.Equal(t, session.PathwayPassword, current.IssuedVia)

	// The persisted mirror matches the store
	snap := f.bridge.Hydrate(ctx)
	require.NotNil(t, snap.Session)
	assert.Equal(t, *current, *snap.Session)

	events := f.recorded()
	require.Len(t, events, 1)
	assert.Equal(t, EventSucceeded, events[0].Kind)
	assert.Equal(t, LandingRoute, events[0].Navigate)
}

func TestLogin_DuplicateWhileLoadingIsNoOp(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.True(t, f.machine.LoginPassword(ctx, "a@b.c", "pw"))
	f.awaitStart(t, session.PathwayPassword)
	first := f.machine.Attempt(session.PathwayPassword).AttemptID

	assert.False(t, f.machine.LoginPassword(ctx, "a@b.c", "pw"))
	assert.Equal(t, first, f.machine.Attempt(session.PathwayPassword).AttemptID)

	f.exchanger.release[session.PathwayPassword] <- okResult("1", "tok")
	f.machine.Wait()

	assert.Equal(t, 1, f.exchanger.callCount(session.PathwayPassword))
	assert.Len(t, f.recorded(), 1)
}

func TestLogin_FailureLeavesSessionAndOtherPathways(t *testing.T) {
	seed := &session.Session{UserID: "9", Token: "existing"}
	f := newFixture(t, seed)
	ctx := context.Background()

	require.True(t, f.machine.LoginPassword(ctx, "a@b.c", "bad"))
	f.awaitStart(t, session.PathwayPassword)
	f.exchanger.release[session.PathwayPassword] <- result{err: &client.ExchangeError{
		Kind: client.ErrInvalidCredentials, Status: 401, Message: "Invalid email or password",
	}}
	f.machine.Wait()

	a := f.machine.Attempt(session.PathwayPassword)
	assert.Equal(t, StatusFailed, a.Status)
	assert.Equal(t, "Invalid email or password", a.Error)
	assert.True(t, errors.Is(a.Err, client.ErrInvalidCredentials))

	assert.Equal(t, StatusIdle, f.machine.Attempt(session.PathwayGitHub).Status)
	assert.Equal(t, StatusIdle, f.machine.Attempt(session.PathwayGoogle).Status)

	current, ok := f.sessions.Get()
	require.True(t, ok)
	assert.Equal(t, "existing", current.Token)

	events := f.recorded()
	require.Len(t, events, 1)
	assert.Equal(t, EventFailed, events[0].Kind)
	assert.Equal(t, "Invalid email or password", events[0].Error)
}

func TestLoginGitHub_ReplayedCodeIsInvalidGrant(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	used := map[string]bool{}
	var mu sync.Mutex
	f.exchanger.githubFn = func(code string) (*session.Session, error) {
		mu.Lock()
		defer mu.Unlock()
		if used[code] {
			return nil, &client.ExchangeError{Kind: client.ErrInvalidGrant, Status: 400, Message: "bad_verification_code"}
		}
		used[code] = true
		return &session.Session{UserID: "3", Token: "gh-1"}, nil
	}

	require.True(t, f.machine.LoginGitHub(ctx, "code-1"))
	f.machine.Wait()
	before, _ := f.sessions.Get()
	require.Equal(t, "gh-1", before.Token)

	require.True(t, f.machine.LoginGitHub(ctx, "code-1"))
	f.machine.Wait()

	a := f.machine.Attempt(session.PathwayGitHub)
	assert.Equal(t, StatusFailed, a.Status)
	assert.True(t, errors.Is(a.Err, client.ErrInvalidGrant))

	after, _ := f.sessions.Get()
	assert.Equal(t, before, after)
}

func TestHandleRedirect_ExchangesCodeOnce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.exchanger.githubFn = func(code string) (*session.Session, error) {
		return &session.Session{UserID: "3", Token: "gh-" + code}, nil
	}

	loc, err := url.Parse("http://127.0.0.1:8765/login?code=abc")
	require.NoError(t, err)

	assert.True(t, f.machine.HandleRedirect(ctx, loc))
	f.machine.Wait()

	// Re-rendering the login route with the same location does nothing,
	// even after the attempt was reset
	f.machine.Reset(session.PathwayGitHub)
	assert.False(t, f.machine.HandleRedirect(ctx, loc))
	f.machine.Wait()

	assert.Equal(t, 1, f.exchanger.callCount(session.PathwayGitHub))
	current, _ := f.sessions.Get()
	assert.Equal(t, "gh-abc", current.Token)
}

func TestHandleRedirect_WhileGitHubLoading(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.True(t, f.machine.LoginGitHub(ctx, "stale"))
	f.awaitStart(t, session.PathwayGitHub)

	loc, err := url.Parse("http://127.0.0.1:8765/login?code=fresh")
	require.NoError(t, err)

	// The pathway is busy, so the code is left for a later render
	assert.False(t, f.machine.HandleRedirect(ctx, loc))

	f.exchanger.release[session.PathwayGitHub] <- okResult("1", "gh-stale")
	f.machine.Wait()

	require.True(t, f.machine.HandleRedirect(ctx, loc))
	f.awaitStart(t, session.PathwayGitHub)
	f.exchanger.release[session.PathwayGitHub] <- okResult("1", "gh-fresh")
	f.machine.Wait()

	// Once exchanged, the code is never exchanged again
	f.machine.Reset(session.PathwayGitHub)
	assert.False(t, f.machine.HandleRedirect(ctx, loc))
	f.machine.Wait()

	assert.Equal(t, []string{"stale", "fresh"}, f.exchanger.exchangedCodes())
	current, _ := f.sessions.Get()
	assert.Equal(t, "gh-fresh", current.Token)
}

func TestHandleRedirect_WithoutCode(t *testing.T) {
	f := newFixture(t, nil)

	loc, _ := url.Parse("http://127.0.0.1:8765/login")
	assert.False(t, f.machine.HandleRedirect(context.Background(), loc))
	assert.False(t, f.machine.HandleRedirect(context.Background(), nil))
	assert.Equal(t, StatusIdle, f.machine.Attempt(session.PathwayGitHub).Status)
	assert.Empty(t, f.recorded())
}

func TestHandleRedirect_ProviderError(t *testing.T) {
	f := newFixture(t, nil)

	loc, _ := url.Parse("http://127.0.0.1:8765/login?error=access_denied&error_description=The+user+has+denied+your+application+access.")
	assert.False(t, f.machine.HandleRedirect(context.Background(), loc))

	a := f.machine.Attempt(session.PathwayGitHub)
	assert.Equal(t, StatusFailed, a.Status)
	assert.Equal(t, "The user has denied your application access.", a.Error)
	assert.True(t, errors.Is(a.Err, client.ErrInvalidGrant))
	assert.Equal(t, 0, f.exchanger.callCount(session.PathwayGitHub))
}

func TestReset_IgnoresLateResolution(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.True(t, f.machine.LoginPassword(ctx, "a@b.c", "pw"))
	f.awaitStart(t, session.PathwayPassword)

	f.machine.Reset(session.PathwayPassword)
	assert.Equal(t, StatusIdle, f.machine.Attempt(session.PathwayPassword).Status)

	f.exchanger.release[session.PathwayPassword] <- okResult("1", "late")
	f.machine.Wait()

	_, ok := f.sessions.Get()
	assert.False(t, ok)
	assert.Equal(t, StatusIdle, f.machine.Attempt(session.PathwayPassword).Status)
	assert.Empty(t, f.recorded())
}

func TestClose_IgnoresLateResolution(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.True(t, f.machine.LoginPassword(ctx, "a@b.c", "pw"))
	f.awaitStart(t, session.PathwayPassword)

	f.machine.Close()
	assert.False(t, f.machine.LoginGitHub(ctx, "code"), "closed machine accepts no new attempts")

	f.exchanger.release[session.PathwayPassword] <- okResult("1", "late")
	f.machine.Wait()

	_, ok := f.sessions.Get()
	assert.False(t, ok)
	assert.Empty(t, f.recorded())
}

func TestConcurrentPathways_LastResolutionWins(t *testing.T) {
	login := func(m *Machine, p session.Pathway) bool {
		ctx := context.Background()
		switch p {
		case session.PathwayGoogle:
			return m.LoginGoogle(ctx, "not-a-jwt")
		case session.PathwayGitHub:
			return m.LoginGitHub(ctx, "code")
		default:
			return m.LoginPassword(ctx, "a@b.c", "pw")
		}
	}

	tests := []struct {
		name  string
		other session.Pathway
		first session.Pathway
		last  session.Pathway
	}{
		{"github resolves first", session.PathwayGitHub, session.PathwayGitHub, session.PathwayPassword},
		{"password resolves first", session.PathwayGitHub, session.PathwayPassword, session.PathwayGitHub},
		{"google resolves first", session.PathwayGoogle, session.PathwayGoogle, session.PathwayPassword},
		{"password before google", session.PathwayGoogle, session.PathwayPassword, session.PathwayGoogle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)

			require.True(t, login(f.machine, session.PathwayPassword))
			f.awaitStart(t, session.PathwayPassword)
			require.True(t, login(f.machine, tt.other))
			f.awaitStart(t, tt.other)

			// Both pathways are loading independently
			assert.Equal(t, StatusLoading, f.machine.Attempt(session.PathwayPassword).Status)
			assert.Equal(t, StatusLoading, f.machine.Attempt(tt.other).Status)

			f.exchanger.release[tt.first] <- okResult(string(tt.first), string(tt.first)+"-tok")
			require.Eventually(t, func() bool { return len(f.recorded()) == 1 }, 2*time.Second, 5*time.Millisecond)

			f.exchanger.release[tt.last] <- okResult(string(tt.last), string(tt.last)+"-tok")
			f.machine.Wait()

			current, ok := f.sessions.Get()
			require.True(t, ok)
			assert.Equal(t, string(tt.last)+"-tok", current.Token)
			assert.Equal(t, tt.last, current.IssuedVia)
			assert.Equal(t, StatusSucceeded, f.machine.Attempt(session.PathwayPassword).Status)
			assert.Equal(t, StatusSucceeded, f.machine.Attempt(tt.other).Status)

			events := f.recorded()
			require.Len(t, events, 2)
			assert.Equal(t, tt.first, events[0].Pathway)
			assert.Equal(t, tt.last, events[1].Pathway)

			// The persisted mirror follows the last resolution too
			snap := f.bridge.Hydrate(context.Background())
			require.NotNil(t, snap.Session)
			assert.Equal(t, string(tt.last)+"-tok", snap.Session.Token)
		})
	}
}

func TestLoginGoogle_StagesTempInfoAndPersistsTokens(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	idToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"email": "grace@example.com",
		"name":  "Grace",
	}).SignedString([]byte("provider-secret"))
	require.NoError(t, err)

	require.True(t, f.machine.LoginGoogle(ctx, idToken))
	f.awaitStart(t, session.PathwayGoogle)

	staged, ok := f.bridge.TempUserInfo(ctx)
	require.True(t, ok)
	assert.Equal(t, persist.TempUserInfo{Email: "grace@example.com", Name: "Grace"}, staged)

	f.exchanger.release[session.PathwayGoogle] <- result{
		session: &session.Session{UserID: "g1", Token: "acc"},
		tokens:  client.Tokens{Access: "acc", Refresh: "ref"},
	}
	f.machine.Wait()

	_, ok = f.bridge.TempUserInfo(ctx)
	assert.False(t, ok, "staged info is cleared on success")

	access, refresh := f.bridge.Tokens(ctx)
	assert.Equal(t, "acc", access)
	assert.Equal(t, "ref", refresh)
}

func TestLoginGoogle_FailureKeepsStagedInfo(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	idToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"email": "g@example.com"}).
		SignedString([]byte("provider-secret"))
	require.NoError(t, err)

	require.True(t, f.machine.LoginGoogle(ctx, idToken))
	f.awaitStart(t, session.PathwayGoogle)
	f.exchanger.release[session.PathwayGoogle] <- result{err: &client.ExchangeError{Kind: client.ErrNetwork, Message: "connection refused"}}
	f.machine.Wait()

	assert.Equal(t, StatusFailed, f.machine.Attempt(session.PathwayGoogle).Status)
	_, ok := f.sessions.Get()
	assert.False(t, ok)
	access, _ := f.bridge.Tokens(ctx)
	assert.Empty(t, access)
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	f := newFixture(t, nil)
	f.exchanger.githubFn = func(string) (*session.Session, error) {
		return &session.Session{UserID: "1", Token: "t"}, nil
	}

	count := 0
	unsubscribe := f.machine.Subscribe(func(Event) { count++ })
	require.True(t, f.machine.LoginGitHub(context.Background(), "a"))
	f.machine.Wait()
	unsubscribe()

	f.machine.Reset(session.PathwayGitHub)
	require.True(t, f.machine.LoginGitHub(context.Background(), "b"))
	f.machine.Wait()

	assert.Equal(t, 1, count)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "idle", StatusIdle.String())
	assert.Equal(t, "loading", StatusLoading.String())
	assert.Equal(t, "succeeded", StatusSucceeded.String())
	assert.Equal(t, "failed", StatusFailed.String())
}
