package provider

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"trading-backtestv1/internal/model"
	"trading-backtestv1/pkg/smartconnect"
)

// AngelCredentials are the SmartAPI login inputs.
type AngelCredentials struct {
	ClientCode string
	Password   string
	TOTPSecret string
}

// AngelConfig configures the Angel One provider.
type AngelConfig struct {
	Credentials AngelCredentials
	Exchange    string            // default NSE
	Interval    string            // default ONE_DAY
	Tokens      map[string]string // symbol -> instrument token
	Lookback    time.Duration     // used when the range has no start; default 3 years
	RatePerSec  float64           // request budget; default 3
}

// Angel fetches daily history from the SmartAPI getCandleData endpoint,
// logging in lazily and splitting long ranges into API-sized pages.
type Angel struct {
	client  *smartconnect.Client
	cfg     AngelConfig
	limiter *rate.Limiter
	now     func() time.Time

	mu sync.Mutex // serialises login
}

// NewAngel wraps client. Login happens on the first Fetch.
func NewAngel(client *smartconnect.Client, cfg AngelConfig) *Angel {
	if cfg.Exchange == "" {
		cfg.Exchange = "NSE"
	}
	if cfg.Interval == "" {
		cfg.Interval = smartconnect.OneDay
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = 3 * 365 * 24 * time.Hour
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	return &Angel{
		client:  client,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1),
		now:     time.Now,
	}
}

func (a *Angel) Name() string { return "angel" }

// Fetch implements model.BarProvider.
func (a *Angel) Fetch(ctx context.Context, symbol string, rng model.Range) ([]model.Bar, error) {
	token, ok := a.cfg.Tokens[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: no instrument token configured for %s", model.ErrDataUnavailable, symbol)
	}

	to := rng.To
	if to.IsZero() {
		to = a.now()
	}
	from := rng.From
	if from.IsZero() {
		from = to.Add(-a.cfg.Lookback)
	}
	if from.After(to) {
		return nil, fmt.Errorf("%w: empty range for %s", model.ErrDataUnavailable, symbol)
	}

	var bars []model.Bar
	for _, page := range pages(from, to, a.cfg.Interval) {
		candles, err := a.fetchPage(ctx, smartconnect.CandleRequest{
			Exchange:    a.cfg.Exchange,
			SymbolToken: token,
			Interval:    a.cfg.Interval,
			From:        page.From,
			To:          page.To,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: angel %s: %v", model.ErrDataUnavailable, symbol, err)
		}
		for _, c := range candles {
			bars = append(bars, a.toBar(c))
		}
	}

	bars = Normalize(bars, model.Range{From: dayStart(from), To: to})
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: angel returned no bars for %s", model.ErrDataUnavailable, symbol)
	}
	log.Printf("[angel] fetched %d bars for %s (%s..%s)", len(bars), symbol,
		bars[0].Date.Format("2006-01-02"), bars[len(bars)-1].Date.Format("2006-01-02"))
	return bars, nil
}

// fetchPage logs in if needed and retries once after a session expiry.
func (a *Angel) fetchPage(ctx context.Context, req smartconnect.CandleRequest) ([]smartconnect.Candle, error) {
	for attempt := 0; ; attempt++ {
		if err := a.ensureLogin(ctx, attempt > 0); err != nil {
			return nil, err
		}
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		candles, err := a.client.GetCandleData(ctx, req)
		if errors.Is(err, smartconnect.ErrTokenExpired) && attempt == 0 {
			log.Printf("[angel] session expired, logging in again")
			continue
		}
		return candles, err
	}
}

func (a *Angel) ensureLogin(ctx context.Context, force bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client.LoggedIn() {
		if !force {
			return nil
		}
		err := a.client.Refresh(ctx)
		if err == nil {
			return nil
		}
		log.Printf("[angel] token refresh failed, logging in: %v", err)
	}
	code, err := smartconnect.GenerateTOTP(a.cfg.Credentials.TOTPSecret, a.now())
	if err != nil {
		return err
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err = a.client.Login(ctx, a.cfg.Credentials.ClientCode, a.cfg.Credentials.Password, code)
	return err
}

// toBar keys daily candles by their exchange-local calendar date.
func (a *Angel) toBar(c smartconnect.Candle) model.Bar {
	date := c.Time.UTC()
	if a.cfg.Interval == smartconnect.OneDay {
		y, m, d := c.Time.In(smartconnect.IST).Date()
		date = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	return model.Bar{Date: date, Open: c.Open, High: c.High, Low: c.Low, Close: c.Close, Volume: c.Volume}
}

// pages splits [from, to] into consecutive windows the API accepts.
func pages(from, to time.Time, interval string) []model.Range {
	days := smartconnect.MaxDays[interval]
	if days <= 0 {
		days = 30
	}
	step := time.Duration(days) * 24 * time.Hour

	var out []model.Range
	for start := from; !start.After(to); start = start.Add(step) {
		end := start.Add(step - time.Minute)
		if end.After(to) {
			end = to
		}
		out = append(out, model.Range{From: start, To: end})
	}
	return out
}

func dayStart(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
