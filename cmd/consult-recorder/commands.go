package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/petems/consult-recorder/internal/share"
	"github.com/petems/consult-recorder/internal/tray"
)

func trayCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tray",
		Short: "Run the menu bar app (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTray(cmd, flags)
		},
	}
}

func serveCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API without the menu bar",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := build(ctx, flags, buildOpts{live: true, persist: true})
			if err != nil {
				return err
			}
			defer s.close()

			s.log.Info().Str("version", Version).Msg("Consult Recorder serving")
			err = s.server.Start(ctx)
			s.shutdown()
			return err
		},
	}
}

func runTray(cmd *cobra.Command, flags *rootFlags) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	s, err := build(ctx, flags, buildOpts{live: true, persist: true})
	if err != nil {
		return err
	}
	defer s.close()

	trayUI := tray.New(s.app, s.cfg, share.New(), s.log, Version, Commit)
	s.app.SetStatusUpdater(trayUI)

	go func() {
		if err := s.server.Start(ctx); err != nil {
			s.log.Error().Err(err).Msg("HTTP server stopped")
		}
	}()

	// Setup shutdown signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		s.log.Info().Msg("Shutting down...")
		s.shutdown()
		s.close()
		os.Exit(0)
	}()

	s.log.Info().Str("version", Version).Msg("Consult Recorder starting...")

	// Start tray UI - MUST run on main thread
	return trayUI.Run(ctx, func() {
		cancel()
		s.shutdown()
	})
}

func analyzeCommand(flags *rootFlags) *cobra.Command {
	var (
		full   bool
		asJSON bool
		noSave bool
	)
	cmd := &cobra.Command{
		Use:   "analyze [recording.wav]",
		Short: "Analyze an existing recording",
		Long:  `Send a WAV recording for analysis, save the consultation and print the result.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := build(cmd.Context(), flags, buildOpts{persist: !noSave})
			if err != nil {
				return err
			}
			defer s.close()

			res, err := s.app.AnalyzeFile(args[0])
			if err != nil {
				return err
			}
			// Wait for the consultation to be written.
			s.shutdown()

			out := cmd.OutOrStdout()
			switch {
			case asJSON:
				enc := json.NewEncoder(out)
				enc.SetEscapeHTML(false)
				enc.SetIndent("", "    ")
				return enc.Encode(res)
			case full:
				fmt.Fprintln(out, share.Format(res))
			default:
				fmt.Fprintln(out, share.FormatSummary(res))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "Print assessment and transcript as well as the summary")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw analysis document")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "Do not save the consultation")
	return cmd
}

func devicesCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio input devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(flags)
			if err != nil {
				return err
			}
			capture, err := newCapture(cfg.Audio.Backend)
			if err != nil {
				return err
			}
			defer capture.Close()

			devices, err := capture.ListDevices()
			if err != nil {
				return fmt.Errorf("failed to list devices: %w", err)
			}
			log.Debug().Int("count", len(devices)).Msg("Listed audio devices")

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tDEFAULT\tSELECTED")
			for _, d := range devices {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.ID, d.Name, mark(d.Default), mark(d.ID == cfg.Audio.DeviceID))
			}
			return w.Flush()
		},
	}
}

func historyCommand(flags *rootFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List saved consultations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(flags)
			if err != nil {
				return err
			}
			index, err := openIndex(cfg)
			if err != nil {
				return err
			}
			defer index.Close()

			entries, err := index.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CREATED\tUTTERANCES\tGOAL\tFILE")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", e.CreatedAt.Local().Format(time.DateTime), e.Utterances, truncate(e.Goal, 40), e.FilePath)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of consultations to show")
	return cmd
}

func mark(b bool) string {
	if b {
		return "*"
	}
	return ""
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
