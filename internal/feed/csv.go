package feed

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"cryptotraderv1/internal/model"
)

// ReadCSV parses candles from "ts,open,high,low,close,volume" rows. ts is
// either Unix seconds or RFC3339. A header row is skipped when present.
func ReadCSV(r io.Reader, pair string) ([]model.Candle, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 6

	var out []model.Candle
	line := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("feed: csv line %d: %w", line+1, err)
		}
		line++

		ts, err := parseTS(rec[0])
		if err != nil {
			if line == 1 {
				continue // header row
			}
			return nil, fmt.Errorf("feed: csv line %d: %w", line, err)
		}

		var vals [5]float64
		for i := 0; i < 5; i++ {
			v, err := strconv.ParseFloat(rec[i+1], 64)
			if err != nil {
				return nil, fmt.Errorf("feed: csv line %d field %d: %w", line, i+2, err)
			}
			vals[i] = v
		}

		out = append(out, model.Candle{
			Pair: pair, TS: ts,
			Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3], Volume: vals[4],
		})
	}
	return model.Normalize(out), nil
}

// ReadCSVFile loads candles from a file path.
func ReadCSVFile(path, pair string) ([]model.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("feed: open %s: %w", path, err)
	}
	defer f.Close()
	return ReadCSV(f, pair)
}

func parseTS(s string) (time.Time, error) {
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q", s)
	}
	return t.UTC(), nil
}
