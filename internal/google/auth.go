package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"calendarchy/internal/calerr"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
)

const deviceCodeGrantType = "urn:ietf:params:oauth:grant-type:device_code"

// ExpiryMargin is subtracted from a token's expiry when deciding whether it
// is still usable.
const ExpiryMargin = 5 * time.Minute

// Token is an OAuth access token with its refresh token.
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	TokenType    string    `json:"token_type,omitempty"`
}

// Expired reports whether the token is expired or about to expire.
func (t *Token) Expired() bool {
	return t.ExpiredAt(time.Now())
}

// ExpiredAt reports whether the token is unusable at now.
func (t *Token) ExpiredAt(now time.Time) bool {
	return !now.Before(t.ExpiresAt.Add(-ExpiryMargin))
}

// OAuth2 converts the token for use with an oauth2.TokenSource.
func (t *Token) OAuth2() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		Expiry:       t.ExpiresAt,
	}
}

func tokenFromOAuth2(tok *oauth2.Token) *Token {
	return &Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
		TokenType:    tok.TokenType,
	}
}

// DeviceCodeGrant is the server's answer to a device authorization request.
// The user enters UserCode at VerificationURL before ExpiresAt.
type DeviceCodeGrant struct {
	DeviceCode      string
	UserCode        string
	VerificationURL string
	ExpiresAt       time.Time
	Interval        time.Duration
}

// PollStatus is the outcome of one device token poll.
type PollStatus int

const (
	PollSuccess PollStatus = iota
	PollPending
	PollSlowDown
	PollDenied
	PollExpired
)

func (s PollStatus) String() string {
	switch s {
	case PollSuccess:
		return "success"
	case PollPending:
		return "authorization_pending"
	case PollSlowDown:
		return "slow_down"
	case PollDenied:
		return "access_denied"
	case PollExpired:
		return "expired_token"
	default:
		return "unknown"
	}
}

// PollResult carries the token when Status is PollSuccess.
type PollResult struct {
	Status PollStatus
	Token  *Token
}

// Auth performs the OAuth device-code grant and token refresh against
// Google's endpoints.
type Auth struct {
	config     *oauth2.Config
	httpClient *http.Client
	now        func() time.Time
}

// AuthOption configures an Auth.
type AuthOption func(*Auth)

// WithAuthEndpoint overrides google.Endpoint.
func WithAuthEndpoint(ep oauth2.Endpoint) AuthOption {
	return func(a *Auth) { a.config.Endpoint = ep }
}

// WithAuthHTTPClient sets the client used for every token request.
func WithAuthHTTPClient(hc *http.Client) AuthOption {
	return func(a *Auth) { a.httpClient = hc }
}

// WithScopes replaces the default calendar scopes.
func WithScopes(scopes ...string) AuthOption {
	return func(a *Auth) { a.config.Scopes = scopes }
}

// NewAuth returns an Auth for the given OAuth client credentials.
func NewAuth(clientID, clientSecret string, opts ...AuthOption) *Auth {
	a := &Auth{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Scopes:       []string{calendar.CalendarEventsScope, calendar.CalendarReadonlyScope},
			Endpoint:     google.Endpoint,
		},
		httpClient: http.DefaultClient,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.config.Endpoint.AuthStyle == oauth2.AuthStyleAutoDetect {
		a.config.Endpoint.AuthStyle = oauth2.AuthStyleInParams
	}
	return a
}

func (a *Auth) context(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
}

// RequestDeviceCode starts a device authorization.
func (a *Auth) RequestDeviceCode(ctx context.Context) (*DeviceCodeGrant, error) {
	resp, err := a.config.DeviceAuth(a.context(ctx))
	if err != nil {
		return nil, classifyOAuthError("request device code", err)
	}

	interval := time.Duration(resp.Interval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &DeviceCodeGrant{
		DeviceCode:      resp.DeviceCode,
		UserCode:        resp.UserCode,
		VerificationURL: resp.VerificationURI,
		ExpiresAt:       resp.Expiry,
		Interval:        interval,
	}, nil
}

type deviceTokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int64  `json:"expires_in"`
	TokenType        string `json:"token_type"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Poll makes a single attempt to exchange deviceCode for a token. The
// caller owns the cadence and the expiry deadline.
func (a *Auth) Poll(ctx context.Context, deviceCode string) (PollResult, error) {
	form := url.Values{
		"client_id":     {a.config.ClientID},
		"client_secret": {a.config.ClientSecret},
		"device_code":   {deviceCode},
		"grant_type":    {deviceCodeGrantType},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.Endpoint.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return PollResult{}, fmt.Errorf("%w: poll device token: %v", calerr.ErrAuth, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return PollResult{}, fmt.Errorf("%w: poll device token: %v", calerr.ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return PollResult{}, fmt.Errorf("%w: poll device token: %v", calerr.ErrNetwork, err)
	}

	var tr deviceTokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return PollResult{}, calerr.NewStatusError(calerr.ErrAuth, "poll device token", resp.StatusCode, string(body))
	}

	if resp.StatusCode == http.StatusOK && tr.AccessToken != "" {
		return PollResult{
			Status: PollSuccess,
			Token: &Token{
				AccessToken:  tr.AccessToken,
				RefreshToken: tr.RefreshToken,
				ExpiresAt:    a.now().Add(time.Duration(tr.ExpiresIn) * time.Second),
				TokenType:    tr.TokenType,
			},
		}, nil
	}

	switch tr.Error {
	case "authorization_pending":
		return PollResult{Status: PollPending}, nil
	case "slow_down":
		return PollResult{Status: PollSlowDown}, nil
	case "access_denied":
		return PollResult{Status: PollDenied}, nil
	case "expired_token":
		return PollResult{Status: PollExpired}, nil
	}
	return PollResult{}, calerr.NewStatusError(calerr.ErrAuth, "poll device token", resp.StatusCode, string(body))
}

// Refresh exchanges a refresh token for a new access token. The original
// refresh token is kept when the server does not rotate it.
func (a *Auth) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: refresh: no refresh token", calerr.ErrAuth)
	}
	src := a.config.TokenSource(a.context(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, classifyOAuthError("refresh token", err)
	}
	t := tokenFromOAuth2(tok)
	if t.RefreshToken == "" {
		t.RefreshToken = refreshToken
	}
	return t, nil
}

// classifyOAuthError separates server rejections from transport failures.
func classifyOAuthError(op string, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		code := 0
		if re.Response != nil {
			code = re.Response.StatusCode
		}
		return calerr.NewStatusError(calerr.ErrAuth, op, code, string(re.Body))
	}
	return fmt.Errorf("%w: %s: %v", calerr.ErrNetwork, op, err)
}

// Phase is the state of a DeviceFlow.
type Phase int

const (
	PhaseNotAuthenticated Phase = iota
	PhaseAwaitingUserCode
	PhaseAuthenticated
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseNotAuthenticated:
		return "not authenticated"
	case PhaseAwaitingUserCode:
		return "awaiting user code"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// DeviceFlow tracks one device authorization from start to token. It is not
// safe for concurrent use.
type DeviceFlow struct {
	auth  *Auth
	phase Phase
	grant *DeviceCodeGrant
	token *Token
	err   error
}

// NewDeviceFlow returns a flow in PhaseNotAuthenticated.
func NewDeviceFlow(auth *Auth) *DeviceFlow {
	return &DeviceFlow{auth: auth}
}

func (f *DeviceFlow) Phase() Phase            { return f.phase }
func (f *DeviceFlow) Grant() *DeviceCodeGrant { return f.grant }
func (f *DeviceFlow) Token() *Token           { return f.token }
func (f *DeviceFlow) Err() error              { return f.err }

// Start requests a device code and moves to PhaseAwaitingUserCode.
func (f *DeviceFlow) Start(ctx context.Context) (*DeviceCodeGrant, error) {
	grant, err := f.auth.RequestDeviceCode(ctx)
	if err != nil {
		f.fail(err)
		return nil, err
	}
	f.phase, f.grant, f.token, f.err = PhaseAwaitingUserCode, grant, nil, nil
	return grant, nil
}

// Poll advances the flow by one token request. Pending, slow-down and
// transport failures leave the flow waiting; once the grant has expired the
// flow fails with PollExpired without contacting the server.
func (f *DeviceFlow) Poll(ctx context.Context) (PollStatus, error) {
	if f.phase != PhaseAwaitingUserCode {
		return 0, fmt.Errorf("%w: device flow is %s", calerr.ErrAuth, f.phase)
	}
	if !f.grant.ExpiresAt.IsZero() && !f.auth.now().Before(f.grant.ExpiresAt) {
		f.fail(fmt.Errorf("%w: device code expired", calerr.ErrAuth))
		return PollExpired, nil
	}

	res, err := f.auth.Poll(ctx, f.grant.DeviceCode)
	if err != nil {
		if !errors.Is(err, calerr.ErrNetwork) {
			f.fail(err)
		}
		return 0, err
	}

	switch res.Status {
	case PollSuccess:
		f.phase, f.token = PhaseAuthenticated, res.Token
	case PollDenied:
		f.fail(fmt.Errorf("%w: access denied by user", calerr.ErrAuth))
	case PollExpired:
		f.fail(fmt.Errorf("%w: device code expired", calerr.ErrAuth))
	}
	return res.Status, nil
}

func (f *DeviceFlow) fail(err error) {
	f.phase, f.err = PhaseError, err
}
