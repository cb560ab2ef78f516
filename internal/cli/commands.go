package cli

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goalgrid/goalgrid-gateway/internal/authapi"
	"github.com/goalgrid/goalgrid-gateway/internal/gwerrors"
)

// Exit codes of the goalgrid command
const (
	ExitOK            int = 0
	ExitError         int = 1
	ExitUsage         int = 2
	ExitLoginRequired int = 3
)

const usage string = `usage: goalgrid <command> [flags]

commands:
  login    -u <username> [-p <password>]   sign in, the password is read from stdin when omitted
  register -u <username> [-p <password>] -first <name> -last <name>
  logout                                   sign out and forget the stored credentials
  request  [-X METHOD] [-d BODY] [-H "Key: Value"] <path>
                                           send an authenticated request, flags go before the path
  status                                   show the stored credentials
`

var errUsage = errors.New("invalid usage")

// Run executes one command and returns the exit code of the process
func (a *App) Run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		fmt.Fprint(a.streams.Err, usage)
		return ExitUsage
	}
	var err error
	switch args[0] {
	case "login":
		err = a.login(ctx, args[1:])
	case "register":
		err = a.register(ctx, args[1:])
	case "logout":
		err = a.logout(ctx)
	case "request":
		err = a.request(ctx, args[1:])
	case "status":
		err = a.status(ctx)
	case "help", "-h", "--help":
		fmt.Fprint(a.streams.Out, usage)
		return ExitOK
	default:
		fmt.Fprintf(a.streams.Err, "unknown command %q\n\n%s", args[0], usage)
		return ExitUsage
	}
	return a.exitCode(err)
}

func (a *App) exitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, errUsage), errors.Is(err, flag.ErrHelp):
		return ExitUsage
	case errors.Is(err, gwerrors.ErrSessionTerminated), errors.Is(err, gwerrors.ErrMissingCredentials):
		if !a.ended() {
			fmt.Fprintln(a.streams.Err, "You are not logged in. Run `goalgrid login` to sign in.")
		}
		return ExitLoginRequired
	default:
		fmt.Fprintf(a.streams.Err, "error: %v\n", err)
		return ExitError
	}
}

func (a *App) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.streams.Err)
	return fs
}

func (a *App) login(ctx context.Context, args []string) error {
	fs := a.newFlagSet("login")
	username := fs.String("u", "", "username")
	password := fs.String("p", "", "password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" {
		fmt.Fprintln(a.streams.Err, "the username is required")
		return errUsage
	}
	if *password == "" {
		var err error
		*password, err = a.prompt("Password: ")
		if err != nil {
			return err
		}
	}
	return a.signIn(ctx, *username, *password)
}

func (a *App) register(ctx context.Context, args []string) error {
	fs := a.newFlagSet("register")
	registration := authapi.RegisterRequest{}
	fs.StringVar(&registration.Username, "u", "", "username")
	fs.StringVar(&registration.Password, "p", "", "password")
	fs.StringVar(&registration.FirstName, "first", "", "first name")
	fs.StringVar(&registration.LastName, "last", "", "last name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if registration.Password == "" && registration.Username != "" {
		var err error
		registration.Password, err = a.prompt("Password: ")
		if err != nil {
			return err
		}
	}
	if err := registration.Validate(); err != nil {
		fmt.Fprintln(a.streams.Err, err)
		return errUsage
	}
	if err := a.auth.Register(ctx, registration); err != nil {
		return err
	}
	fmt.Fprintf(a.streams.Out, "Registered %s\n", registration.Username)
	return a.signIn(ctx, registration.Username, registration.Password)
}

func (a *App) signIn(ctx context.Context, username, password string) error {
	pair, err := a.auth.Login(ctx, username, password)
	if err != nil {
		return err
	}
	if err := a.gateway.SetCredentials(ctx, pair); err != nil {
		return fmt.Errorf("storing the credentials: %w", err)
	}
	fmt.Fprintf(a.streams.Out, "Logged in as %s\n", username)
	return nil
}

// logout invalidates the credentials on the backend when possible, the local ones are always removed
func (a *App) logout(ctx context.Context) error {
	_, err := a.store.GetCredentials(ctx, "")
	if errors.Is(err, gwerrors.ErrMissingCredentials) {
		fmt.Fprintln(a.streams.Out, "Not logged in")
		return nil
	}
	a.quiet()
	if err == nil {
		if err := a.auth.Logout(ctx, a.gateway); err != nil && !errors.Is(err, gwerrors.ErrSessionTerminated) {
			fmt.Fprintf(a.streams.Err, "warning: the server did not confirm the logout: %v\n", err)
		}
	}
	if err := a.gateway.ClearCredentials(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.streams.Out, "Logged out")
	return nil
}

type headerFlags http.Header

func (h headerFlags) String() string {
	return fmt.Sprint(http.Header(h))
}

func (h headerFlags) Set(value string) error {
	key, val, found := strings.Cut(value, ":")
	if !found || strings.TrimSpace(key) == "" {
		return fmt.Errorf("headers are written as \"Key: Value\", got %q", value)
	}
	http.Header(h).Add(strings.TrimSpace(key), strings.TrimSpace(val))
	return nil
}

func (a *App) request(ctx context.Context, args []string) error {
	fs := a.newFlagSet("request")
	method := fs.String("X", http.MethodGet, "HTTP method")
	data := fs.String("d", "", "request body")
	headers := headerFlags{}
	fs.Var(headers, "H", "extra header, can be repeated")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(a.streams.Err, "request takes exactly one path")
		return errUsage
	}
	target, err := a.resolve(fs.Arg(0))
	if err != nil {
		return err
	}
	var body io.Reader
	if *data != "" {
		body = strings.NewReader(*data)
	}
	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(*method), target, body)
	if err != nil {
		return err
	}
	for key, values := range headers {
		req.Header[key] = values
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	res, err := a.gateway.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	_, err = io.Copy(a.streams.Out, res.Body)
	if err != nil {
		return err
	}
	if res.StatusCode >= 400 {
		return fmt.Errorf("%s %s: %s", req.Method, req.URL.Path, res.Status)
	}
	return nil
}

// resolve joins an API path, with an optional query, to the base URL
func (a *App) resolve(path string) (string, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("invalid path %q: %w", path, err)
	}
	if ref.IsAbs() {
		return "", fmt.Errorf("pass a path, not a full URL: %q", path)
	}
	target := a.config.APIBaseURL.JoinPath(ref.Path)
	target.RawQuery = ref.RawQuery
	return target.String(), nil
}

func (a *App) status(ctx context.Context) error {
	pair, err := a.store.GetCredentials(ctx, "")
	if err != nil {
		return err
	}
	fmt.Fprintf(a.streams.Out, "Logged in at %s\n", a.config.APIBaseURL.String())
	if expiry, ok := pair.AccessTokenExpiry(); ok {
		state := "valid"
		if time.Now().After(expiry) {
			state = "expired, it is refreshed on the next request"
		}
		fmt.Fprintf(a.streams.Out, "Access token expires %s (%s)\n", expiry.Local().Format(time.RFC1123), state)
	} else {
		fmt.Fprintln(a.streams.Out, "Access token expiry unknown")
	}
	if pair.RefreshToken == "" {
		fmt.Fprintln(a.streams.Out, "No refresh token, you will need to log in again when the access token expires")
	}
	if updated, err := a.store.UpdatedAt(""); err == nil {
		fmt.Fprintf(a.streams.Out, "Credentials updated %s\n", updated.Local().Format(time.RFC1123))
	}
	if _, ok := a.mirror.Token(); ok {
		fmt.Fprintln(a.streams.Out, "Token cookie present")
	}
	return nil
}

func (a *App) prompt(label string) (string, error) {
	fmt.Fprint(a.streams.Err, label)
	scanner := bufio.NewScanner(a.streams.In)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", err
		}
		return "", fmt.Errorf("no input")
	}
	return strings.TrimSpace(scanner.Text()), nil
}
