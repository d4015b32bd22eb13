/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package crash

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestBuildReport(t *testing.T) {
	rep := string(buildReport("boom", []byte("goroutine 1"), []string{"load eventStory 1/1"}, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)))
	for _, want := range []string{"storyreader crash report", "time:     2025-03-01T12:00:00Z", "panic:    boom", "recent activity:\n  load eventStory 1/1", "stack:\ngoroutine 1"} {
		if !strings.Contains(rep, want) {
			t.Fatalf("report missing %q:\n%s", want, rep)
		}
	}
	if strings.Contains(string(buildReport("x", nil, nil, time.Now())), "recent activity") {
		t.Fatalf("empty trail should be omitted")
	}
}

func TestBreadcrumbKeepsLatest(t *testing.T) {
	crumbMu.Lock()
	crumbs = nil
	crumbMu.Unlock()
	for i := 0; i < breadcrumbCap+5; i++ {
		Breadcrumb("load %d", i)
	}
	got := breadcrumbs()
	if len(got) != breadcrumbCap {
		t.Fatalf("crumbs = %d, want %d", len(got), breadcrumbCap)
	}
	if !strings.HasSuffix(got[0], " load 5") || !strings.HasSuffix(got[len(got)-1], fmt.Sprintf(" load %d", breadcrumbCap+4)) {
		t.Fatalf("crumbs = %v", got)
	}
}

func TestPruneReportsKeepsNewest(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 5; i++ {
		name := fmt.Sprintf("crash-20250101-00000%d.000000.log", i)
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	pruneReports(dir, 2)
	entries, _ := os.ReadDir(dir)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	want := "crash-20250101-000003.000000.log crash-20250101-000004.000000.log notes.txt"
	if strings.Join(names, " ") != want {
		t.Fatalf("left = %v", names)
	}
}

func TestRecoverWritesReportAndExits(t *testing.T) {
	oldStderr := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w
	defer func() {
		_ = w.Close()
		os.Stderr = oldStderr
		_, _ = io.Copy(io.Discard, r)
	}()
	code := 0
	oldExit := exitFn
	exitFn = func(c int) { code = c }
	defer func() { exitFn = oldExit }()

	Breadcrumb("load cardStory 1033/2")
	root := t.TempDir()
	func() {
		defer Recover(root)
		panic("boom")
	}()

	if code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
	files, _ := filepath.Glob(filepath.Join(root, ReportsDirName, "crash-*.log"))
	if len(files) != 1 {
		t.Fatalf("reports = %v", files)
	}
	b, err := os.ReadFile(files[0])
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !strings.Contains(string(b), "panic:    boom") || !strings.Contains(string(b), "load cardStory 1033/2") {
		t.Fatalf("report = %s", b)
	}
}

func TestRecoverWithoutPanicIsNoop(t *testing.T) {
	called := false
	oldExit := exitFn
	exitFn = func(int) { called = true }
	defer func() { exitFn = oldExit }()
	func() {
		defer Recover(t.TempDir())
	}()
	if called {
		t.Fatalf("exit called without a panic")
	}
}
