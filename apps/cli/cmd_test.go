package main

import (
	"bytes"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/pterm/pterm"

	"github.com/trezcool/edusys/core"
	"github.com/trezcool/edusys/core/auth"
	"github.com/trezcool/edusys/core/session"
	"github.com/trezcool/edusys/services/gateway"
	"github.com/trezcool/edusys/services/school"
	"github.com/trezcool/edusys/storage/cookiejar"
	"github.com/trezcool/edusys/tests"
	"github.com/trezcool/edusys/tests/stubapi"
)

type fixture struct {
	stub    *stubapi.Server
	api     *httptest.Server
	jarPath string
}

func setup(t *testing.T) *fixture {
	pterm.DisableStyling()

	stub := stubapi.New(stubapi.Options{DisableReqLogs: true})
	if err := stubapi.Seed(stub); err != nil {
		t.Fatalf("Seed() failed: %v", err)
	}
	api := httptest.NewServer(stub)
	t.Cleanup(api.Close)

	readPassword := readPasswordFunc
	readPasswordFunc = func(int) ([]byte, error) { return []byte("password"), nil }
	t.Cleanup(func() { readPasswordFunc = readPassword })

	return &fixture{
		stub:    stub,
		api:     api,
		jarPath: filepath.Join(t.TempDir(), "cookies.json"),
	}
}

// newCLI sets up the CLI as a new process would: a new session over the saved cookie jar.
func (f *fixture) newCLI(t *testing.T) *commandLine {
	t.Helper()

	jar, err := cookiejar.Open(f.jarPath)
	if err != nil {
		t.Fatalf("cookiejar.Open() failed: %v", err)
	}
	logger := testutil.NewLogger(t)
	gw, err := gateway.New(f.api.URL+stubapi.Prefix, logger, gateway.WithJar(jar))
	if err != nil {
		t.Fatalf("gateway.New() failed: %v", err)
	}
	translator := core.NewTranslator()
	validate := core.NewValidator(translator)
	ctrl := auth.NewController(session.NewStore(), gw, validate, translator, logger)
	return newCommandLine(ctrl, school.NewClient(gw, validate, translator))
}

func execute(cli *commandLine, args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	root := cli.rootCmd()
	root.SetArgs(args)
	root.SetIn(strings.NewReader(""))
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func (f *fixture) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return execute(f.newCLI(t), args...)
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	wantOut    []string
}

func (tt cliTest) run(t *testing.T, f *fixture) {
	t.Run(tt.name, func(t *testing.T) {
		out, _, err := f.run(t, tt.args...)
		switch {
		case tt.wantErr != nil:
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("%v error = %v, want %v", tt.args, err, tt.wantErr)
			}
		case tt.wantErrStr != "":
			if err == nil || !strings.Contains(err.Error(), tt.wantErrStr) {
				t.Fatalf("%v error = %v, want %q", tt.args, err, tt.wantErrStr)
			}
		case err != nil:
			t.Fatalf("%v error = %v", tt.args, err)
		}
		for _, want := range tt.wantOut {
			if !strings.Contains(out, want) {
				t.Errorf("%v output does not contain %q\n%s", tt.args, want, out)
			}
		}
	})
}

func Test_commandLine_anonymous(t *testing.T) {
	f := setup(t)

	tests := []cliTest{
		{name: "whoami", args: []string{"whoami"}, wantErr: errNotLoggedIn},
		{name: "courses", args: []string{"courses"}, wantErr: errNotLoggedIn},
		{name: "course", args: []string{"course", "6"}, wantErr: errNotLoggedIn},
		{name: "grades", args: []string{"grades"}, wantErr: errNotLoggedIn},
		{name: "logout", args: []string{"logout"}, wantOut: []string{"Not logged in."}},
		{name: "login: no username", args: []string{"login"}, wantErrStr: "this field is required"},
		{name: "login: unknown user", args: []string{"login", "-u", "nobody"}, wantErr: auth.ErrInvalidCredentials},
		{name: "unknown command", args: []string{"lol"}, wantErrStr: "unknown command"},
	}
	for _, tt := range tests {
		tt.run(t, f)
	}
}

func Test_commandLine_student(t *testing.T) {
	f := setup(t)

	tests := []cliTest{
		{name: "login", args: []string{"login", "-u", "ada"}, wantOut: []string{"Logged in as Ada Lovelace (Student)"}},
		{name: "login again", args: []string{"login", "-u", "alan"}, wantOut: []string{"Already logged in as ada"}},
		{name: "whoami", args: []string{"whoami"}, wantOut: []string{"ada", "Ada Lovelace", "Student"}},
		{name: "courses", args: []string{"courses"}, wantOut: []string{"Mathematics", "Computer Science", "B12", "Grace Hopper"}},
		{name: "course", args: []string{"course", "6"}, wantOut: []string{"Mathematics", "room B12", "Limits", "Derivatives"}},
		{name: "course: bad ID", args: []string{"course", "abc"}, wantErrStr: "invalid course ID"},
		{name: "course: no ID", args: []string{"course"}, wantErrStr: "accepts 1 arg(s)"},
		{name: "course: not found", args: []string{"course", "999"}, wantErrStr: "404"},
		{name: "grades", args: []string{"grades"}, wantOut: []string{"Limits", "Turing machines", "Average: 4.00"}},
		{name: "logout", args: []string{"logout"}, wantOut: []string{"Logged out"}},
		{name: "whoami after logout", args: []string{"whoami"}, wantErr: errNotLoggedIn},
	}
	for _, tt := range tests {
		tt.run(t, f)
	}
}

func Test_commandLine_teacher(t *testing.T) {
	f := setup(t)

	tests := []cliTest{
		{name: "login", args: []string{"login", "-u", "teacher"}, wantOut: []string{"(Teacher)"}},
		{name: "grades", args: []string{"grades"}, wantErr: core.ErrForbidden},
		{name: "courses", args: []string{"courses"}, wantOut: []string{"Mathematics"}},
	}
	for _, tt := range tests {
		tt.run(t, f)
	}
}

func Test_commandLine_sessionExpired(t *testing.T) {
	f := setup(t)

	if _, _, err := f.run(t, "login", "-u", "ada"); err != nil {
		t.Fatalf("login error = %v", err)
	}

	// silent refresh
	f.stub.ExpireAccessTokens()
	if _, _, err := f.run(t, "whoami"); err != nil {
		t.Fatalf("whoami after access expiry error = %v", err)
	}

	f.stub.ExpireAccessTokens()
	f.stub.FailRefresh(true)
	_, stderr, err := f.run(t, "whoami")
	if !errors.Is(err, errNotLoggedIn) {
		t.Errorf("whoami after refresh expiry error = %v, want %v", err, errNotLoggedIn)
	}
	if stderr != "" {
		t.Errorf("startup resolution printed %q, want nothing", stderr)
	}

	f.stub.FailRefresh(false)
	cli := f.newCLI(t)
	if _, _, err = execute(cli, "login", "-u", "ada"); err != nil {
		t.Fatalf("login error = %v", err)
	}
	f.stub.ExpireAccessTokens()
	f.stub.FailRefresh(true)

	var authErr *gateway.AuthorizationError
	if _, stderr, err = execute(cli, "courses"); !errors.As(err, &authErr) {
		t.Fatalf("courses error = %v, want an AuthorizationError", err)
	}
	if !strings.Contains(stderr, "Your session has expired") {
		t.Errorf("courses stderr = %q, want the expiry notice", stderr)
	}
	if _, _, err = execute(cli, "whoami"); !errors.Is(err, errNotLoggedIn) {
		t.Errorf("whoami after forced logout error = %v, want %v", err, errNotLoggedIn)
	}
}
