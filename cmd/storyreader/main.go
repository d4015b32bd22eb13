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
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"storyreader/internal/config"
	"storyreader/internal/crash"
	applog "storyreader/internal/log"
	"storyreader/internal/telemetry"
)

var (
	cfg config.AppConfig
	dsn string
)

var rootCmd = &cobra.Command{
	Use:           "storyreader",
	Short:         "Turn story scenarios into playable timelines",
	Long:          `Loads story scenarios and talk scripts, resolves speakers and asset URLs, and prints the resulting timeline.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		cfg, dsn, err = config.Load()
		if err != nil {
			return err
		}
		applog.Init(cfg.Logging.LogOptions())
		tcfg := telemetry.FromEnv()
		tcfg.OptIn = tcfg.OptIn || cfg.General.TelemetryOptIn
		telemetry.NewDefault(tcfg)
		applog.WithComponent("cli").Debug("start", slog.String("command", cmd.Name()))
		return nil
	},
}

func init() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	rootCmd.AddGroup(storiesGroup, serviceGroup)
	rootCmd.AddCommand(versionCmd, scenarioCmd, talkCmd, loadCmd, serveCmd, remoteCmd, cacheCmd, configCmd, charactersCmd)
}

func main() {
	defer crash.Recover(config.DefaultCacheDir())
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	telemetry.Shutdown()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
