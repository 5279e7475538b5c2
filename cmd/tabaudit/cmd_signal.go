// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/tabaudit/pkg/validation"
	"github.com/AleutianAI/tabaudit/services/signalstore"
)

var signalTTL time.Duration // TTL for "signal set"

var signalCmd = &cobra.Command{
	Use:   "signal",
	Short: "Manage the local signals used when a probe fails",
	Long: `Local signals record that a dependency was recently seen working.
When a status probe fails, the checker consults them before declaring the
dependency unreachable.

Examples:
  tabaudit signal set firebase:initialized
  tabaudit signal set gemini:last_response --ttl 15m
  tabaudit signal ls
  tabaudit signal rm firebase:initialized`,
}

var signalSetCmd = &cobra.Command{
	Use:   "set <key>",
	Short: "Record a signal now",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := validation.SanitizeSignalKey(args[0])
		if err != nil {
			return err
		}
		return withStore(func(store *signalstore.Store) error {
			if err := store.Record(cmd.Context(), key, signalTTL); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "recorded %s\n", key)
			return nil
		})
	},
}

var signalRmCmd = &cobra.Command{
	Use:   "rm <key>",
	Short: "Remove a signal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(store *signalstore.Store) error {
			return runSignalRemove(cmd.Context(), cmd.OutOrStdout(), store, args[0])
		})
	},
}

var signalLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List recorded signals",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(store *signalstore.Store) error {
			return runSignalList(cmd.Context(), cmd.OutOrStdout(), store, jsonOutput)
		})
	},
}

func init() {
	signalSetCmd.Flags().DurationVar(&signalTTL, "ttl", 0,
		"Expire the signal after this long (0 keeps it)")
	signalCmd.AddCommand(signalSetCmd, signalRmCmd, signalLsCmd)
}

func withStore(fn func(*signalstore.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func runSignalRemove(ctx context.Context, w io.Writer, store *signalstore.Store, raw string) error {
	key, err := validation.SanitizeSignalKey(raw)
	if err != nil {
		return err
	}
	if err := store.Delete(ctx, key); err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "removed %s\n", key)
	return err
}

func runSignalList(ctx context.Context, w io.Writer, store *signalstore.Store, asJSON bool) error {
	entries, err := store.List(ctx)
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(w, entries)
	}
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, mutedStyle.Render("no signals recorded"))
		return err
	}
	for _, e := range entries {
		expiry := "never"
		if !e.ExpiresAt.IsZero() {
			expiry = e.ExpiresAt.Format(time.RFC3339)
		}
		if _, err := fmt.Fprintf(w, "%s  recorded %s  expires %s\n",
			titleStyle.Render(e.Key), e.RecordedAt.Format(time.RFC3339), expiry); err != nil {
			return err
		}
	}
	return nil
}
