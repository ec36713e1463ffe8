package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/radio-scanner/internal/sdr"
	"github.com/roman-kulish/radio-scanner/internal/storage"
)

const (
	storageDir  = "data"
	storageFile = "scanner.sqlite"
)

// Run receives according to config until ctx is cancelled or the operator quits.
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	o := NewOrchestrator(config, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- o.Run(ctx)
	}()

	if config.Settings.Keyboard {
		select {
		case <-o.Ready():
			c := controls{
				scanner:  o.Scanner(),
				receiver: o.Pipeline(),
				scanning: config.Scanner.Enabled,
				logger:   logger,
			}
			go func() {
				if err := c.readKeys(ctx, cancel); err != nil {
					logger.Warn("keyboard controls unavailable", slog.Any("error", err))
				}
			}()
		case err := <-errCh:
			return err
		}
	}

	return <-errCh
}

// History prints the recorded sessions, or the busiest frequencies and the activity
// log of one session when sessionID is not zero.
func History(ctx context.Context, config *Config, sessionID int64, limit int, w io.Writer) (err error) {
	store, err := createStorage(&config.Storage)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	defer func() {
		err = errors.Join(err, store.Close())
	}()

	if sessionID == 0 {
		return printSessions(ctx, store, w)
	}
	return printSession(ctx, store, sessionID, limit, w)
}

func printSessions(ctx context.Context, store storage.Store, w io.Writer) error {
	sessions, err := store.Sessions(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDEVICE\tSTARTED\tDURATION")
	for _, s := range sessions {
		duration := "running"
		if s.EndTime != nil {
			duration = s.EndTime.Sub(s.StartTime).Round(time.Second).String()
		}
		fmt.Fprintf(tw, "%d\t%s/%s\t%s\t%s\n", s.ID, s.DeviceType, s.DeviceID, humanize.Time(s.StartTime), duration)
	}
	return tw.Flush()
}

func printSession(ctx context.Context, store storage.Store, sessionID int64, limit int, w io.Writer) error {
	summary, err := store.Summary(ctx, sessionID, limit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FREQUENCY\tHITS\tPEAK\tLAST ACTIVE")
	for _, s := range summary {
		fmt.Fprintf(tw, "%s\t%s\t%.1f dB\t%s\n", sdr.FormatFrequency(s.Frequency), humanize.Comma(int64(s.Hits)), s.MaxLevel, humanize.Time(s.LastActive))
	}
	if err = tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(w)

	reader, err := store.ReadActivity(ctx, sessionID)
	if err != nil {
		return err
	}
	defer reader.Close()

	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tFREQUENCY\tMODE\tLEVEL\tEVENT\tLABEL")
	for reader.Next(ctx) {
		a := reader.Current()
		kind := "lost"
		if a.Detected {
			kind = "detected"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.1f dB\t%s\t%s\n",
			a.Time.Local().Format(time.DateTime), sdr.FormatFrequency(a.Frequency), a.Mode, a.Strength, kind, a.Label)
	}
	if err = reader.Error(); err != nil {
		return err
	}
	return tw.Flush()
}

func createStorage(config *StorageConfig) (*storage.SqliteStore, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current working directory: %w", err)
	}

	dbPath := filepath.Join(wd, storageDir)
	if config.DataDirectory != "" {
		dbPath = config.DataDirectory
		if !filepath.IsAbs(dbPath) {
			dbPath = filepath.Join(wd, dbPath)
		}
	}

	stat, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("storage directory '%s' does not exist: %w", dbPath, err)
		}
		return nil, err
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("invalid storage directory '%s'", dbPath)
	}

	return storage.NewSqliteStore(filepath.Join(dbPath, storageFile)), nil
}
