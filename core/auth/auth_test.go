package auth

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"

	"github.com/pkg/errors"

	"github.com/trezcool/edusys/core"
	"github.com/trezcool/edusys/core/guard"
	"github.com/trezcool/edusys/core/session"
	"github.com/trezcool/edusys/services/gateway"
	"github.com/trezcool/edusys/tests"
	"github.com/trezcool/edusys/tests/stubapi"
)

type fixture struct {
	stub  *stubapi.Server
	srv   *httptest.Server
	jar   http.CookieJar
	gw    *gateway.Gateway
	store *session.Store
	ctrl  *Controller

	mu          sync.Mutex
	transitions []session.Transition
}

func setup(t *testing.T) *fixture {
	stub := stubapi.New(stubapi.Options{DisableReqLogs: true})
	if err := stubapi.Seed(stub); err != nil {
		t.Fatalf("Seed() failed: %v", err)
	}
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	jar, _ := cookiejar.New(nil)
	f := &fixture{stub: stub, srv: srv, jar: jar}
	f.ctrl = f.newController(t)
	return f
}

// newController returns a controller over a new store sharing the fixture's cookie jar.
func (f *fixture) newController(t *testing.T) *Controller {
	logger := testutil.NewLogger(t)
	gw, err := gateway.New(f.srv.URL+stubapi.Prefix, logger, gateway.WithJar(f.jar))
	if err != nil {
		t.Fatalf("gateway.New() failed: %v", err)
	}
	f.gw = gw
	f.store = session.NewStore()
	f.transitions = nil
	f.store.Subscribe(func(tr session.Transition) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.transitions = append(f.transitions, tr)
	})

	translator := core.NewTranslator()
	return NewController(f.store, gw, core.NewValidator(translator), translator, logger)
}

func (f *fixture) login(t *testing.T, username string) session.Identity {
	t.Helper()
	id, err := f.ctrl.Login(context.Background(), LoginRequest{Username: username, Password: "password"})
	if err != nil {
		t.Fatalf("Login(%s) error = %v", username, err)
	}
	return id
}

func (f *fixture) causes() []session.Cause {
	f.mu.Lock()
	defer f.mu.Unlock()
	causes := make([]session.Cause, 0, len(f.transitions))
	for _, tr := range f.transitions {
		causes = append(causes, tr.Cause)
	}
	return causes
}

func TestController_Start(t *testing.T) {
	t.Run("anonymous", func(t *testing.T) {
		f := setup(t)

		snap := f.ctrl.Start(context.Background())
		if snap.Resolving || snap.Identity != nil {
			t.Fatalf("Start() = %+v, want anonymous", snap)
		}
		if got := f.store.State(); got != session.Anonymous {
			t.Errorf("State() = %v, want %v", got, session.Anonymous)
		}

		// later calls do not resolve again
		f.ctrl.Start(context.Background())
		if got := f.stub.Hits(IdentityPath); got != 1 {
			t.Errorf("identity resolved %d times, want 1", got)
		}
	})

	t.Run("existing session", func(t *testing.T) {
		f := setup(t)
		f.ctrl.Start(context.Background())
		want := f.login(t, "ada")

		// a new process reusing the cookies
		f.ctrl = f.newController(t)
		snap := f.ctrl.Start(context.Background())
		if snap.Identity == nil || *snap.Identity != want {
			t.Fatalf("Start() = %+v, want identity %+v", snap, want)
		}
		if got := f.store.State(); got != session.Authenticated {
			t.Errorf("State() = %v, want %v", got, session.Authenticated)
		}
	})

	t.Run("API down", func(t *testing.T) {
		f := setup(t)
		f.srv.Close()

		snap := f.ctrl.Start(context.Background())
		if snap.Resolving || snap.Identity != nil {
			t.Fatalf("Start() = %+v, want anonymous", snap)
		}
		select {
		case <-f.store.Settled():
		default:
			t.Error("Settled() not closed")
		}
	})
}

func TestController_Login(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	if _, err := f.ctrl.Login(ctx, LoginRequest{Username: "ada", Password: "password"}); err != ErrResolving {
		t.Errorf("Login() before Start() error = %v, want %v", err, ErrResolving)
	}
	f.ctrl.Start(ctx)

	tests := []struct {
		name    string
		req     LoginRequest
		wantErr error
		wantFld string
	}{
		{name: "missing username", req: LoginRequest{Username: "  ", Password: "password"}, wantFld: "username"},
		{name: "missing password", req: LoginRequest{Username: "ada"}, wantFld: "password"},
		{name: "invalid credentials", req: LoginRequest{Username: "ada", Password: "nope"}, wantErr: ErrInvalidCredentials},
		{name: "unknown user", req: LoginRequest{Username: "bob", Password: "password"}, wantErr: ErrInvalidCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ctrl.Login(ctx, tt.req)
			if tt.wantFld != "" {
				var vErr *core.ValidationError
				if !errors.As(err, &vErr) {
					t.Fatalf("Login() error = %v, want *core.ValidationError", err)
				}
				if _, ok := vErr.FieldMap()[tt.wantFld]; !ok {
					t.Errorf("Login() field errors = %v, want %q", vErr.FieldMap(), tt.wantFld)
				}
			} else if err != tt.wantErr {
				t.Errorf("Login() error = %v, want %v", err, tt.wantErr)
			}
			if got := f.store.State(); got != session.Anonymous {
				t.Errorf("State() = %v, want %v", got, session.Anonymous)
			}
		})
	}

	id := f.login(t, " ada ")
	want := session.Identity{ID: id.ID, Username: "ada", Email: "ada@edusys.test", FullName: "Ada Lovelace", Role: session.RoleStudent}
	if id != want {
		t.Errorf("Login() = %+v, want %+v", id, want)
	}
	if snap := f.ctrl.Session(); snap.Identity == nil || *snap.Identity != want {
		t.Errorf("Session() = %+v, want identity %+v", snap, want)
	}
	if _, err := f.ctrl.Login(ctx, LoginRequest{Username: "alan", Password: "password"}); err != ErrAlreadyAuthenticated {
		t.Errorf("Login() while authenticated error = %v, want %v", err, ErrAlreadyAuthenticated)
	}

	wantCauses := []session.Cause{session.CauseStartup, session.CauseStartup, session.CauseLogin}
	if got := f.causes(); !reflect.DeepEqual(got, wantCauses) {
		t.Errorf("transition causes = %v, want %v", got, wantCauses)
	}
}

func TestController_Login_concurrent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.ctrl.Start(ctx)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, uname := range []string{"ada", "alan"} {
		wg.Add(1)
		go func(i int, uname string) {
			defer wg.Done()
			_, errs[i] = f.ctrl.Login(ctx, LoginRequest{Username: uname, Password: "password"})
		}(i, uname)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil && err != ErrAlreadyAuthenticated {
			t.Errorf("Login() error = %v", err)
		}
	}
	if got := f.store.State(); got != session.Authenticated {
		t.Fatalf("State() = %v, want %v", got, session.Authenticated)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tr := range f.transitions {
		if tr.From == session.Authenticated && tr.To != session.Anonymous {
			t.Errorf("transition %v -> %v, want Authenticated to leave to Anonymous only", tr.From, tr.To)
		}
	}
}

func TestController_Logout(t *testing.T) {
	t.Run("server accepts", func(t *testing.T) {
		f := setup(t)
		ctx := context.Background()
		f.ctrl.Start(ctx)
		f.login(t, "teacher")

		if err := f.ctrl.Logout(ctx); err != nil {
			t.Errorf("Logout() error = %v", err)
		}
		if got := f.store.State(); got != session.Anonymous {
			t.Errorf("State() = %v, want %v", got, session.Anonymous)
		}
		if cookies := f.jar.Cookies(f.gw.BaseURL()); len(cookies) != 0 {
			t.Errorf("cookies = %v, want none", cookies)
		}
	})

	t.Run("server down", func(t *testing.T) {
		f := setup(t)
		ctx := context.Background()
		f.ctrl.Start(ctx)
		f.login(t, "teacher")
		f.srv.Close()

		err := f.ctrl.Logout(ctx)
		var netErr *gateway.NetworkError
		if !errors.As(err, &netErr) {
			t.Errorf("Logout() error = %v, want *gateway.NetworkError", err)
		}
		if got := f.store.State(); got != session.Anonymous {
			t.Errorf("State() = %v, want %v", got, session.Anonymous)
		}
		if cookies := f.jar.Cookies(f.gw.BaseURL()); len(cookies) != 0 {
			t.Errorf("cookies = %v, want none", cookies)
		}
	})
}

func TestController_Logout_beforeStart(t *testing.T) {
	t.Run("no saved session", func(t *testing.T) {
		f := setup(t)

		_ = f.ctrl.Logout(context.Background())
		if got := f.store.State(); got != session.Anonymous {
			t.Errorf("State() = %v, want %v", got, session.Anonymous)
		}
		if got := guard.Decide(f.ctrl.Session()); got != guard.Redirect {
			t.Errorf("guard.Decide() = %v, want %v", got, guard.Redirect)
		}
	})

	t.Run("saved session", func(t *testing.T) {
		f := setup(t)
		ctx := context.Background()
		f.ctrl.Start(ctx)
		f.login(t, "ada")
		f.ctrl = f.newController(t)

		if err := f.ctrl.Logout(ctx); err != nil {
			t.Errorf("Logout() error = %v", err)
		}
		if got := f.store.State(); got != session.Anonymous {
			t.Errorf("State() = %v, want %v", got, session.Anonymous)
		}
		if cookies := f.jar.Cookies(f.gw.BaseURL()); len(cookies) != 0 {
			t.Errorf("cookies = %v, want none", cookies)
		}
	})
}

func TestController_refresh(t *testing.T) {
	t.Run("silent refresh", func(t *testing.T) {
		f := setup(t)
		ctx := context.Background()
		f.ctrl.Start(ctx)
		f.login(t, "ada")
		f.stub.ResetHits()
		f.stub.ExpireAccessTokens()

		if err := f.gw.Get(ctx, "courses/get-courses/", nil, nil); err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got := f.stub.Hits("token/refresh/"); got != 1 {
			t.Errorf("refreshes = %d, want 1", got)
		}
		if got := f.stub.Hits("courses/get-courses/"); got != 2 {
			t.Errorf("course requests = %d, want 2", got)
		}
		if got := f.store.State(); got != session.Authenticated {
			t.Errorf("State() = %v, want %v", got, session.Authenticated)
		}
	})

	t.Run("forced logout", func(t *testing.T) {
		f := setup(t)
		ctx := context.Background()
		f.ctrl.Start(ctx)
		f.login(t, "ada")
		f.stub.ExpireAccessTokens()
		f.stub.FailRefresh(true)

		err := f.gw.Get(ctx, "courses/get-courses/", nil, nil)
		var authErr *gateway.AuthorizationError
		if !errors.As(err, &authErr) {
			t.Fatalf("Get() error = %v, want *gateway.AuthorizationError", err)
		}
		if got := f.store.State(); got != session.Anonymous {
			t.Errorf("State() = %v, want %v", got, session.Anonymous)
		}
		if cookies := f.jar.Cookies(f.gw.BaseURL()); len(cookies) != 0 {
			t.Errorf("cookies = %v, want none", cookies)
		}
		causes := f.causes()
		if last := causes[len(causes)-1]; last != session.CauseForcedLogout {
			t.Errorf("last transition cause = %v, want %v", last, session.CauseForcedLogout)
		}
	})
}
