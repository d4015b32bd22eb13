/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"storyreader/internal/backend"
	"storyreader/internal/config"
	"storyreader/internal/loader"
	"storyreader/internal/masterdata"
	"storyreader/internal/version"
)

var storiesGroup = &cobra.Group{ID: "stories", Title: "Stories"}
var serviceGroup = &cobra.Group{ID: "service", Title: "Service"}

var (
	outputFormat string
	voiceSetFlag string
	handlesFlag  string
	remoteURL    string
	remoteWait   time.Duration
	pruneAge     time.Duration
)

func init() {
	for _, c := range []*cobra.Command{scenarioCmd, talkCmd, loadCmd, remoteCmd} {
		c.Flags().StringVarP(&outputFormat, "format", "f", "text", "output format: text or json")
	}
	scenarioCmd.Flags().StringVar(&voiceSetFlag, "voice-set", "scenario", "voice folder family: scenario, card or actionset")
	talkCmd.Flags().StringVar(&handlesFlag, "handles", "", "comma separated unit group handles, e.g. 1,27")
	remoteCmd.Flags().StringVar(&remoteURL, "url", "http://127.0.0.1:8080", "base URL of a running storyreader server")
	remoteCmd.Flags().DurationVar(&remoteWait, "timeout", 30*time.Second, "request timeout")
	cachePruneCmd.Flags().DurationVar(&pruneAge, "older-than", 30*24*time.Hour, "drop entries fetched before this age")
	cacheCmd.AddCommand(cacheStatsCmd, cachePruneCmd, cacheRefreshMasterCmd)
	configCmd.AddCommand(configShowCmd, configSetDBCmd)
	charactersCmd.AddCommand(charactersListCmd, charactersImportCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.String())
	},
}

func withApp(ctx context.Context, useDB bool, fn func(a *app) error) error {
	a, err := newApp(ctx, cfg, dsn, useDB)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

var scenarioCmd = &cobra.Command{
	Use:     "scenario <file|url|->",
	GroupID: "stories",
	Short:   "Interpret a scenario document",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vs, err := backend.ParseVoiceSet(voiceSetFlag)
		if err != nil {
			return err
		}
		return withApp(cmd.Context(), false, func(a *app) error {
			data, err := a.readInput(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			sc, err := a.loader.InterpretDocument(cmd.Context(), data, vs)
			if err != nil {
				return err
			}
			return printScenario(cmd.OutOrStdout(), sc, outputFormat)
		})
	},
}

var talkCmd = &cobra.Command{
	Use:     "talk <file|url|->",
	GroupID: "stories",
	Short:   "Interpret a talk script",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		handles, err := backend.ParseHandles(handlesFlag)
		if err != nil {
			return err
		}
		return withApp(cmd.Context(), false, func(a *app) error {
			data, err := a.readInput(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			sc := a.loader.InterpretTalk(cmd.Context(), string(data), handles)
			return printScenario(cmd.OutOrStdout(), sc, outputFormat)
		})
	},
}

var loadCmd = &cobra.Command{
	Use:     "load <kind> <ref>...",
	GroupID: "stories",
	Short:   "Load a story by kind and reference",
	Long: "Load a story by kind and reference. Kinds: " + kindList() + `.
References are the ids the kind needs, separated by spaces or slashes:
  unitStory    <unit> <chapterNo> <episodeNo>
  eventStory   <eventId> <episodeNo>
  charaStory   <profileId>
  cardStory    <cardId> <episodeId>
  areaTalk     <actionSetId>
  specialStory <storyId> <episodeId>
  mysekaiTalk  <talkId>`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := masterdata.ParseKind(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd.Context(), true, func(a *app) error {
			sc, err := a.loader.Load(cmd.Context(), kind, loader.SplitRef(strings.Join(args[1:], "/")))
			if err != nil {
				return err
			}
			if a.db != nil {
				if err := backend.NewLoadLog(a.db).Record(cmd.Context(), sc); err != nil {
					a.log.Warn("load not recorded", slog.Any("err", err))
				}
			}
			return printScenario(cmd.OutOrStdout(), sc, outputFormat)
		})
	},
}

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "service",
	Short:   "Serve the story API over HTTP",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd.Context(), true, func(a *app) error {
			srv := backend.NewServer(backend.ServerOptions{
				Loader:    a.loader,
				Directory: a.dir,
				DB:        a.db,
				Cache:     a.cache,
				RateLimit: cfg.Server.RateLimit,
				Burst:     int(cfg.Server.RateLimit*2) + 1,
			})
			return srv.Run(cmd.Context(), cfg.Server.Addr)
		})
	},
}

var remoteCmd = &cobra.Command{
	Use:     "remote <kind> <ref>...",
	GroupID: "service",
	Short:   "Load a story through a running server",
	Args:    cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := masterdata.ParseKind(args[0])
		if err != nil {
			return err
		}
		sc, err := backend.NewClient(remoteURL, remoteWait).Story(cmd.Context(), kind, strings.Join(args[1:], "/"))
		if err != nil {
			return err
		}
		return printScenario(cmd.OutOrStdout(), sc, outputFormat)
	},
}

var cacheCmd = &cobra.Command{
	Use:     "cache",
	GroupID: "service",
	Short:   "Inspect or prune the document cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache size",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd.Context(), false, func(a *app) error {
			n, size, err := a.cache.Stats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n%d entries, %d bytes\n", a.cache.Path(), n, size)
			return nil
		})
	},
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Drop old cache entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd.Context(), false, func(a *app) error {
			n, err := a.cache.Prune(cmd.Context(), pruneAge)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d entries\n", n)
			return nil
		})
	},
}

var cacheRefreshMasterCmd = &cobra.Command{
	Use:   "refresh-master",
	Short: "Forget cached master tables so the next load reads the mirror",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd.Context(), false, func(a *app) error {
			if err := a.store.Invalidate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "master tables will be fetched again")
			return nil
		})
	},
}

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "service",
	Short:   "Show or change the configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		path, err := config.ConfigPath()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "config file:  %s\n", path)
		fmt.Fprintf(out, "source:       %s\n", cfg.Assets.Source)
		fmt.Fprintf(out, "probe:        %s timeout, %g/s\n", cfg.Assets.ProbeTimeout(), cfg.Assets.ProbeRate)
		fmt.Fprintf(out, "master data:  %s (local %q, ttl %s)\n", cfg.MasterData.BaseURL, cfg.MasterData.LocalDir, cfg.MasterData.TTL())
		fmt.Fprintf(out, "cache dir:    %s\n", cfg.CacheDir())
		fmt.Fprintf(out, "server:       %s (%g req/s)\n", cfg.Server.Addr, cfg.Server.RateLimit)
		fmt.Fprintf(out, "database:     %v\n", dsn != "")
		return nil
	},
}

var configSetDBCmd = &cobra.Command{
	Use:   "set-database-url <dsn>",
	Short: "Store the Postgres URL in the OS keyring",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return config.Save(cfg, args[0])
	},
}

func kindList() string {
	var names []string
	for _, k := range masterdata.Kinds() {
		names = append(names, string(k))
	}
	return strings.Join(names, ", ")
}
