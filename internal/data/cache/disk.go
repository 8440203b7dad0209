package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/rotator/internal/market"
)

// Disk keeps one <TICKER>.csv file per instrument under a directory.
type Disk struct {
	dir string
}

// NewDisk creates dir when missing.
func NewDisk(dir string) (*Disk, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	log.Debug().Str("dir", dir).Msg("Disk price cache ready")
	return &Disk{dir: dir}, nil
}

func (d *Disk) Name() string { return "disk" }

// Path returns the cache file of ticker.
func (d *Disk) Path(ticker string) string {
	return filepath.Join(d.dir, strings.ToUpper(ticker)+".csv")
}

func (d *Disk) Load(ctx context.Context, ticker string) (market.PriceSeries, bool, error) {
	if err := ctx.Err(); err != nil {
		return market.PriceSeries{}, false, err
	}
	f, err := os.Open(d.Path(ticker))
	if errors.Is(err, fs.ErrNotExist) {
		return market.PriceSeries{}, false, nil
	}
	if err != nil {
		return market.PriceSeries{}, false, err
	}
	defer f.Close()

	s, err := ReadCSV(f, ticker)
	if err != nil {
		return market.PriceSeries{}, false, err
	}
	return s, true, nil
}

// Store writes through a temporary file so readers never see a partial file.
func (d *Disk) Store(ctx context.Context, series market.PriceSeries) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(d.dir, "."+series.Ticker+"-*.csv")
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := WriteCSV(tmp, series); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s cache: %w", series.Ticker, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), d.Path(series.Ticker))
}
