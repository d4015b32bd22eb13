/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package crash turns a panic in the CLI into a report file under the cache
// directory. Reports list the most recent story loads so a failing scenario
// can be reproduced.
package crash

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	applog "storyreader/internal/log"
	"storyreader/internal/telemetry"
	"storyreader/internal/version"
)

const (
	// ReportsDirName is the subdirectory of the cache dir holding reports.
	ReportsDirName = "crash"
	// MaxReports bounds how many reports are kept; older ones are removed.
	MaxReports = 10

	breadcrumbCap = 16
)

var exitFn = os.Exit

var (
	crumbMu sync.Mutex
	crumbs  []string
)

// Breadcrumb records a short note, such as the story being loaded. Only the
// latest entries are kept.
func Breadcrumb(format string, args ...any) {
	line := time.Now().UTC().Format("15:04:05.000") + " " + fmt.Sprintf(format, args...)
	crumbMu.Lock()
	defer crumbMu.Unlock()
	crumbs = append(crumbs, line)
	if len(crumbs) > breadcrumbCap {
		crumbs = append([]string(nil), crumbs[len(crumbs)-breadcrumbCap:]...)
	}
}

func breadcrumbs() []string {
	crumbMu.Lock()
	defer crumbMu.Unlock()
	return append([]string(nil), crumbs...)
}

// Recover must be deferred directly:
//
//	defer crash.Recover(cacheDir)
//
// On panic it logs the stack, writes a report under dir (the temp dir when
// dir is empty), offers it to telemetry and exits with status 2.
func Recover(dir string) {
	r := recover()
	if r == nil {
		return
	}
	l := applog.WithComponent("crash")
	stack := debug.Stack()
	l.Error("panic", slog.Any("panic", r), slog.String("stack", string(stack)))

	report := buildReport(r, stack, breadcrumbs(), time.Now())
	path, err := writeReport(dir, report)
	if err != nil {
		l.Error("crash report not written", slog.Any("err", err))
		fmt.Fprintf(os.Stderr, "storyreader crashed: %v\n", r)
	} else {
		fmt.Fprintf(os.Stderr, "storyreader crashed: %v\nReport: %s\n", r, path)
	}
	telemetry.UploadCrash(report)
	exitFn(2)
}

func buildReport(panicVal any, stack []byte, trail []string, now time.Time) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "storyreader crash report\n")
	fmt.Fprintf(&b, "time:     %s\n", now.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "version:  %s\n", version.String())
	fmt.Fprintf(&b, "platform: %s/%s %s\n", runtime.GOOS, runtime.GOARCH, runtime.Version())
	fmt.Fprintf(&b, "panic:    %v\n", panicVal)
	if len(trail) > 0 {
		b.WriteString("\nrecent activity:\n")
		for _, c := range trail {
			b.WriteString("  ")
			b.WriteString(c)
			b.WriteByte('\n')
		}
	}
	fmt.Fprintf(&b, "\nstack:\n%s\n", stack)
	return b.Bytes()
}

func writeReport(dir string, report []byte) (string, error) {
	if dir == "" {
		dir = os.TempDir()
	} else {
		dir = filepath.Join(dir, ReportsDirName)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", err
		}
		defer pruneReports(dir, MaxReports)
	}
	path := filepath.Join(dir, fmt.Sprintf("crash-%s.log", time.Now().UTC().Format("20060102-150405.000000")))
	if err := os.WriteFile(path, report, 0o644); err != nil {
		return path, err
	}
	return path, nil
}

// pruneReports keeps the newest keep reports in dir. Names sort by time.
func pruneReports(dir string, keep int) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "crash-") && strings.HasSuffix(e.Name(), ".log") {
			names = append(names, e.Name())
		}
	}
	if len(names) <= keep {
		return
	}
	sort.Strings(names)
	for _, n := range names[:len(names)-keep] {
		_ = os.Remove(filepath.Join(dir, n))
	}
}
