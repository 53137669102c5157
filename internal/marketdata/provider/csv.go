package provider

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"trading-backtestv1/internal/model"
)

var dateLayouts = []string{"2006-01-02", "2006/01/02", "01/02/2006", time.RFC3339, "2006-01-02 15:04:05"}

// CSV reads {Dir}/{symbol}.csv files with a header row. Recognised columns
// (case-insensitive): date, open, high, low, close, volume. "Adj Close" and
// unknown columns are ignored.
type CSV struct {
	Dir string
}

// NewCSV returns a CSV provider rooted at dir.
func NewCSV(dir string) *CSV { return &CSV{Dir: dir} }

func (c *CSV) Name() string { return "csv" }

// Path returns the file backing symbol.
func (c *CSV) Path(symbol string) string {
	return filepath.Join(c.Dir, symbol+".csv")
}

// Fetch implements model.BarProvider.
func (c *CSV) Fetch(ctx context.Context, symbol string, rng model.Range) ([]model.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(c.Path(symbol))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: no csv for %s in %s", model.ErrDataUnavailable, symbol, c.Dir)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrDataUnavailable, err)
	}
	defer f.Close()

	bars, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", model.ErrDataUnavailable, c.Path(symbol), err)
	}
	bars = Normalize(bars, rng)
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: no bars for %s in range", model.ErrDataUnavailable, symbol)
	}
	return bars, nil
}

// WriteBars replaces the symbol's file with bars.
func (c *CSV) WriteBars(_ context.Context, symbol string, bars []model.Bar) error {
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return err
	}
	tmp := c.Path(symbol) + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := WriteCSV(f, bars); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, c.Path(symbol))
}

// ReadCSV parses bars from r. Rows are returned in file order.
func ReadCSV(r io.Reader) ([]model.Bar, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := map[string]int{}
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	dateCol, ok := firstCol(col, "date", "datetime", "timestamp", "time")
	if !ok {
		return nil, errors.New("missing date column")
	}
	closeCol, ok := firstCol(col, "close")
	if !ok {
		return nil, errors.New("missing close column")
	}
	openCol, hasOpen := firstCol(col, "open")
	highCol, hasHigh := firstCol(col, "high")
	lowCol, hasLow := firstCol(col, "low")
	volCol, hasVol := firstCol(col, "volume")

	var bars []model.Bar
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		field := func(i int) string {
			if i < len(rec) {
				return strings.TrimSpace(rec[i])
			}
			return ""
		}

		var b model.Bar
		if b.Date, err = parseDate(field(dateCol)); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		// Yahoo exports mark holidays with "null".
		if b.Close, err = parseNum(field(closeCol)); err != nil {
			continue
		}
		if hasOpen {
			b.Open, _ = parseNum(field(openCol))
		}
		b.High, b.Low = b.Close, b.Close
		if hasHigh {
			if v, err := parseNum(field(highCol)); err == nil {
				b.High = v
			}
		}
		if hasLow {
			if v, err := parseNum(field(lowCol)); err == nil {
				b.Low = v
			}
		}
		if hasVol {
			b.Volume, _ = parseNum(field(volCol))
		}
		bars = append(bars, b)
	}
	return bars, nil
}

// WriteCSV writes bars with a date,open,high,low,close,volume header.
func WriteCSV(w io.Writer, bars []model.Bar) error {
	cw := csv.NewWriter(w)
	cw.Write([]string{"date", "open", "high", "low", "close", "volume"})
	for _, b := range bars {
		cw.Write([]string{
			b.Date.Format("2006-01-02"),
			strconv.FormatFloat(b.Open, 'f', -1, 64),
			strconv.FormatFloat(b.High, 'f', -1, 64),
			strconv.FormatFloat(b.Low, 'f', -1, 64),
			strconv.FormatFloat(b.Close, 'f', -1, 64),
			strconv.FormatFloat(b.Volume, 'f', -1, 64),
		})
	}
	cw.Flush()
	return cw.Error()
}

func firstCol(col map[string]int, names ...string) (int, bool) {
	for _, n := range names {
		if i, ok := col[n]; ok {
			return i, true
		}
	}
	return 0, false
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

func parseNum(s string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
}
