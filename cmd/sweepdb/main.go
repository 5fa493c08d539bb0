// Command sweepdb inspects sweep databases recorded by sweeper: it lists
// sessions, shows session details and exports samples as CSV.
package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/sdrkit/sweep/internal/storage"
)

var rootCmd = &cobra.Command{
	Use:           "sweepdb",
	Short:         "Inspect recorded sweep databases.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	dbPath  string
	minFreq float64
	maxFreq float64
)

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to the database file")
	_ = rootCmd.MarkPersistentFlagRequired("db")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "sessions",
		Short: "List recorded sessions",
		Args:  cobra.NoArgs,
		RunE:  func(cmd *cobra.Command, args []string) error { return listSessions(cmd) },
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "info session",
		Short: "Show one session's configuration and counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid session ID '%s'", args[0])
			}
			return showInfo(cmd, id)
		},
	})

	exportCmd := &cobra.Command{
		Use:   "export session",
		Short: "Export a session's samples as CSV on stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid session ID '%s'", args[0])
			}
			return exportCSV(cmd, id)
		},
	}
	exportCmd.Flags().Float64Var(&minFreq, "min-freq", 0, "Exclude samples below this frequency in Hz")
	exportCmd.Flags().Float64Var(&maxFreq, "max-freq", 0, "Exclude samples above this frequency in Hz")
	rootCmd.AddCommand(exportCmd)
}

func openStore() (*storage.Store, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("database '%s': %w", dbPath, err)
	}
	return storage.New(dbPath), nil
}

func listSessions(cmd *cobra.Command) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	sessions, err := store.Sessions(cmd.Context())
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("no sessions recorded")
		return nil
	}

	for _, s := range sessions {
		fmt.Printf("%d\t%s\t%s\t%s\n", s.ID, s.StartTime.UTC().Format("2006-01-02 15:04:05"), s.Device, s.UUID)
	}
	return nil
}

func showInfo(cmd *cobra.Command, id int64) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	session, err := store.Session(ctx, id)
	if err != nil {
		return err
	}

	fmt.Printf("session:  %d (%s)\n", session.ID, session.UUID)
	fmt.Printf("started:  %s\n", session.StartTime.UTC().Format("2006-01-02 15:04:05"))
	fmt.Printf("device:   %s\n", session.Device)
	if session.Config != nil {
		fmt.Printf("config:   %s\n", *session.Config)
	}

	reader, err := store.Results(ctx, id)
	if err != nil {
		return err
	}
	defer reader.Close()

	var results, samples int64
	for reader.Next(ctx) {
		results++
		samples += int64(len(reader.Current().Samples))
	}
	if err := reader.Error(); err != nil {
		return err
	}

	fmt.Printf("results:  %s\n", humanize.Comma(results))
	fmt.Printf("samples:  %s\n", humanize.Comma(samples))
	return nil
}

func exportCSV(cmd *cobra.Command, id int64) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	var opts []storage.ReaderOption
	if cmd.Flags().Changed("min-freq") {
		opts = append(opts, storage.WithMinFreq(minFreq))
	}
	if cmd.Flags().Changed("max-freq") {
		opts = append(opts, storage.WithMaxFreq(maxFreq))
	}

	ctx := cmd.Context()
	reader, err := store.Results(ctx, id, opts...)
	if err != nil {
		return err
	}
	defer reader.Close()

	w := csv.NewWriter(os.Stdout)
	if err := w.Write([]string{"timestamp", "sweep", "segment", "frequency_hz", "power_db"}); err != nil {
		return err
	}

	for reader.Next(ctx) {
		r := reader.Current()
		ts := r.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z")
		for _, s := range r.Samples {
			record := []string{
				ts,
				strconv.FormatUint(r.Sweep, 10),
				strconv.Itoa(r.Segment),
				strconv.FormatFloat(s.FrequencyHz, 'f', -1, 64),
				strconv.FormatFloat(s.PowerDB, 'f', 2, 64),
			}
			if err := w.Write(record); err != nil {
				return err
			}
		}
	}
	if err := reader.Error(); err != nil {
		return err
	}

	w.Flush()
	return w.Error()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
