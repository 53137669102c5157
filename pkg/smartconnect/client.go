// Package smartconnect is a minimal Angel One SmartAPI client covering the
// calls a historical backtester needs: password+TOTP login and the
// getCandleData history endpoint.
//
// Usage example:
//
//	sc := smartconnect.NewClient(smartconnect.Config{APIKey: "your_api_key"})
//	code, _ := smartconnect.GenerateTOTP(secret, time.Now())
//	if _, err := sc.Login(ctx, "CLIENTID", "PIN", code); err != nil { log.Fatal(err) }
//	candles, err := sc.GetCandleData(ctx, smartconnect.CandleRequest{
//	    Exchange: "NSE", SymbolToken: "3045", Interval: smartconnect.OneDay,
//	    From: from, To: to,
//	})
package smartconnect

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"
)

const defaultRoot = "https://apiconnect.angelone.in"

const (
	routeLogin   = "/rest/auth/angelbroking/user/v1/loginByPassword"
	routeToken   = "/rest/auth/angelbroking/jwt/v1/generateTokens"
	routeCandles = "/rest/secure/angelbroking/historical/v1/getCandleData"
)

// Candle intervals accepted by getCandleData.
const (
	OneMinute     = "ONE_MINUTE"
	FiveMinute    = "FIVE_MINUTE"
	FifteenMinute = "FIFTEEN_MINUTE"
	OneHour       = "ONE_HOUR"
	OneDay        = "ONE_DAY"
)

// ErrTokenExpired is returned when the API rejects the session token.
var ErrTokenExpired = errors.New("smartconnect: session token expired")

// APIError is a SmartAPI response with status=false or an error_type.
type APIError struct {
	HTTPStatus int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("smartconnect: %s (http %d): %s", e.Code, e.HTTPStatus, e.Message)
}

// Config configures the client. Zero values take SmartAPI defaults.
type Config struct {
	APIKey  string
	RootURL string        // default: https://apiconnect.angelone.in
	Timeout time.Duration // default: 7s
	Debug   bool

	UserType       string // default: USER
	SourceID       string // default: WEB
	ClientPublicIP string // default: resolved local address
	ClientLocalIP  string // default: resolved local address
	ClientMAC      string // default: first interface MAC
}

// Session holds the tokens returned by Login.
type Session struct {
	JWTToken     string `json:"jwtToken"`
	RefreshToken string `json:"refreshToken"`
	FeedToken    string `json:"feedToken"`
}

// Client is safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client

	mu      sync.RWMutex
	session Session

	// SessionExpiryHook is called when a request fails with an expired token.
	SessionExpiryHook func()
}

// NewClient fills config defaults. No network calls are made.
func NewClient(cfg Config) *Client {
	if cfg.RootURL == "" {
		cfg.RootURL = defaultRoot
	}
	cfg.RootURL = strings.TrimRight(cfg.RootURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 7 * time.Second
	}
	if cfg.UserType == "" {
		cfg.UserType = "USER"
	}
	if cfg.SourceID == "" {
		cfg.SourceID = "WEB"
	}
	if cfg.ClientLocalIP == "" {
		cfg.ClientLocalIP = localIP()
	}
	if cfg.ClientPublicIP == "" {
		cfg.ClientPublicIP = cfg.ClientLocalIP
	}
	if cfg.ClientMAC == "" {
		cfg.ClientMAC = macAddress()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// GenerateTOTP returns the 6-digit login code for secret at t.
func GenerateTOTP(secret string, t time.Time) (string, error) {
	code, err := totp.GenerateCode(strings.ToUpper(strings.ReplaceAll(secret, " ", "")), t)
	if err != nil {
		return "", fmt.Errorf("smartconnect: totp: %w", err)
	}
	return code, nil
}

// Login authenticates with client code, PIN and a current TOTP code and
// stores the session tokens on the client.
func (c *Client) Login(ctx context.Context, clientCode, password, totpCode string) (Session, error) {
	var sess Session
	err := c.call(ctx, routeLogin, map[string]any{
		"clientcode": clientCode,
		"password":   password,
		"totp":       totpCode,
	}, &sess)
	if err != nil {
		return Session{}, err
	}
	if sess.JWTToken == "" {
		return Session{}, &APIError{Code: "LOGIN", Message: "empty jwtToken in login response"}
	}
	c.mu.Lock()
	c.session = sess
	c.mu.Unlock()
	log.Printf("[smartconnect] logged in as %s", clientCode)
	return sess, nil
}

// Refresh exchanges the refresh token for a new JWT.
func (c *Client) Refresh(ctx context.Context) error {
	c.mu.RLock()
	rt := c.session.RefreshToken
	c.mu.RUnlock()
	if rt == "" {
		return ErrTokenExpired
	}

	var sess Session
	if err := c.call(ctx, routeToken, map[string]any{"refreshToken": rt}, &sess); err != nil {
		return err
	}
	c.mu.Lock()
	if sess.JWTToken != "" {
		c.session.JWTToken = sess.JWTToken
	}
	if sess.FeedToken != "" {
		c.session.FeedToken = sess.FeedToken
	}
	if sess.RefreshToken != "" {
		c.session.RefreshToken = sess.RefreshToken
	}
	c.mu.Unlock()
	return nil
}

// LoggedIn reports whether a session token is held.
func (c *Client) LoggedIn() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session.JWTToken != ""
}

// envelope is the common SmartAPI response wrapper.
type envelope struct {
	Status    bool            `json:"status"`
	Message   string          `json:"message"`
	ErrorCode string          `json:"errorcode"`
	ErrorType string          `json:"error_type"`
	Data      json.RawMessage `json:"data"`
}

// call POSTs params to route and decodes the data field into out.
func (c *Client) call(ctx context.Context, route string, params map[string]any, out any) error {
	body, err := json.Marshal(params)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.RootURL+route, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header = c.headers()

	if c.cfg.Debug {
		log.Printf("[smartconnect] POST %s", route)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("smartconnect: %s: %w", route, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("smartconnect: read %s: %w", route, err)
	}
	if c.cfg.Debug {
		log.Printf("[smartconnect] response code=%d body=%s", resp.StatusCode, raw)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &APIError{HTTPStatus: resp.StatusCode, Code: "DECODE", Message: fmt.Sprintf("couldn't parse JSON response: %v", err)}
	}
	if env.ErrorType == "TokenException" || resp.StatusCode == http.StatusUnauthorized ||
		(resp.StatusCode == http.StatusForbidden && env.ErrorType != "") {
		if c.SessionExpiryHook != nil {
			c.SessionExpiryHook()
		}
		return fmt.Errorf("%w: %s", ErrTokenExpired, env.Message)
	}
	if !env.Status || resp.StatusCode >= 400 {
		code := env.ErrorCode
		if code == "" {
			code = env.ErrorType
		}
		return &APIError{HTTPStatus: resp.StatusCode, Code: code, Message: env.Message}
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

func (c *Client) headers() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	h.Set("X-ClientLocalIP", c.cfg.ClientLocalIP)
	h.Set("X-ClientPublicIP", c.cfg.ClientPublicIP)
	h.Set("X-MACAddress", c.cfg.ClientMAC)
	h.Set("X-PrivateKey", c.cfg.APIKey)
	h.Set("X-UserType", c.cfg.UserType)
	h.Set("X-SourceID", c.cfg.SourceID)

	c.mu.RLock()
	if c.session.JWTToken != "" {
		h.Set("Authorization", "Bearer "+c.session.JWTToken)
	}
	c.mu.RUnlock()
	return h
}

func localIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "127.0.0.1"
	}
	for _, address := range addrs {
		if ipNet, ok := address.(*net.IPNet); ok && !ipNet.IP.IsLoopback() && ipNet.IP.To4() != nil {
			return ipNet.IP.String()
		}
	}
	return "127.0.0.1"
}

func macAddress() string {
	ifs, _ := net.Interfaces()
	for _, ifc := range ifs {
		if len(ifc.HardwareAddr) > 0 {
			return ifc.HardwareAddr.String()
		}
	}
	return "00:11:22:33:44:55"
}
