package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/MarcoPoloResearchLab/lumina/internal/logging"
	"github.com/MarcoPoloResearchLab/lumina/internal/notes"
	"github.com/MarcoPoloResearchLab/lumina/internal/storage"
	"github.com/spf13/cobra"
)

const (
	exportFormatJSON   = "json"
	exportFormatSource = "source"
)

func newExportCommand(state *cli) *cobra.Command {
	var (
		format     string
		outputPath string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the stored notes as a JSON backup or as the built-in dataset source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			write, err := exportWriter(format)
			if err != nil {
				return err
			}
			list, err := state.loadNotes(cmd.Context())
			if err != nil {
				return err
			}
			if outputPath == "" || outputPath == "-" {
				return write(cmd.OutOrStdout(), list)
			}
			file, err := os.Create(outputPath)
			if err != nil {
				return err
			}
			if err := write(file, list); err != nil {
				_ = file.Close()
				return err
			}
			if err := file.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "exported %d notes to %s\n", len(list), outputPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", exportFormatJSON, "Export format (json, source)")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file (default stdout)")
	return cmd
}

func exportWriter(format string) (func(io.Writer, []notes.Note) error, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case exportFormatJSON:
		return storage.Export, nil
	case exportFormatSource:
		return storage.ExportSource, nil
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
}

// loadNotes reads the persisted list the same way the server does on start.
func (s *cli) loadNotes(ctx context.Context) ([]notes.Note, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	appConfig, err := s.loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewConsoleLogger(appConfig.LogLevel)
	if err != nil {
		return nil, err
	}
	defer logger.Sync() //nolint:errcheck

	store, err := openBackend(ctx, appConfig, logger)
	if err != nil {
		return nil, err
	}
	defer store.Close() //nolint:errcheck

	adapter, err := newAdapter(appConfig, store.store, logger)
	if err != nil {
		return nil, err
	}
	return adapter.Load(ctx), nil
}
