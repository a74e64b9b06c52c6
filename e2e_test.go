package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/creack/pty"
)

var rehashBinaryPath string

// TestMain builds the binary once
func TestMain(m *testing.M) {
	tempDir, err := os.MkdirTemp("", "rehash-e2e-build")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create temp dir: %v\n", err)
		os.Exit(1)
	}

	if runtime.GOOS == "windows" {
		rehashBinaryPath = filepath.Join(tempDir, "rehash.exe")
	} else {
		rehashBinaryPath = filepath.Join(tempDir, "rehash")
	}

	cmd := exec.Command("go", "build", "-o", rehashBinaryPath, ".")
	if output, err := cmd.CombinedOutput(); err != nil {
		fmt.Fprintf(os.Stderr, "Build failed: %v\nOutput:\n%s\n", err, output)
		os.RemoveAll(tempDir)
		os.Exit(1)
	}

	code := m.Run()
	os.RemoveAll(tempDir)
	os.Exit(code)
}

// Case defines a simplified test scenario
type Case struct {
	Name      string
	Args      []string // CLI args
	Conf      string   // Optional config.yaml content
	Want      string   // Substring expected in output
	WantMiss  string   // Substring expected to be MISSING from output
	ExpectErr bool     // Expect command to fail
}

// testEnv points every path the binary resolves into home.
func testEnv(home string) []string {
	return append(os.Environ(),
		fmt.Sprintf("HOME=%s", home),
		fmt.Sprintf("XDG_DATA_HOME=%s", filepath.Join(home, "data")),
		fmt.Sprintf("XDG_CONFIG_HOME=%s", filepath.Join(home, "config")),
		fmt.Sprintf("REHASH_CONFIG=%s", filepath.Join(home, "config.yaml")),
		"REHASH_SESSION_ID=e2e-session",
		"REHASH_DATABASE=",
		"REHASH_SOURCES=",
		"REHASH_LOG_LEVEL=",
		"TERM=dumb",
		"SHELL=/bin/sh",
	)
}

func TestCLI(t *testing.T) {
	tempHome := t.TempDir()
	tempCwd := t.TempDir()
	if resolved, err := filepath.EvalSymlinks(tempCwd); err == nil {
		tempCwd = resolved
	}

	bashHistory := filepath.Join(tempHome, "bash_history")
	os.WriteFile(bashHistory, []byte("#1700000000\necho imported_from_bash\n"), 0644)

	// Cases run in order against the same history file
	cases := []Case{
		{
			Name: "Search Empty",
			Args: []string{"search", "banana"},
			Want: "",
		},
		{
			Name: "Add First",
			Args: []string{"add", "--", "ls", "-la"},
		},
		{
			Name: "Add Second",
			Args: []string{"add", "-e", "1", "--", "git status"},
		},
		{
			Name:     "Search Fuzzy",
			Args:     []string{"search", "git"},
			Want:     "git status",
			WantMiss: "ls -la",
		},
		{
			Name:     "List Recent",
			Args:     []string{"search", "-m", "1"},
			Want:     "git status",
			WantMiss: "ls -la",
		},
		{
			Name: "Search Local Scope",
			Args: []string{"search", "-s", "local", "ls"},
			Want: "ls -la",
		},
		{
			Name:      "Invalid Scope",
			Args:      []string{"search", "-s", "galaxy", "ls"},
			Want:      "invalid scope",
			ExpectErr: true,
		},
		{
			Name:      "Add Blank",
			Args:      []string{"add", "--", "   "},
			Want:      "empty command",
			ExpectErr: true,
		},
		{
			Name: "Stats",
			Args: []string{"stats"},
			Want: "Total commands: 2",
		},
		{
			Name: "Ignore Pattern",
			Conf: "ignore:\n  - '^secret'\n",
			Args: []string{"add", "--", "secret token"},
		},
		{
			Name:     "Ignored Not Stored",
			Args:     []string{"search", "--unique"},
			Want:     "git status",
			WantMiss: "secret token",
		},
		{
			Name: "Import Bash",
			Args: []string{"import", "bash", "--file", bashHistory},
			Want: "Imported 1 commands",
		},
		{
			Name: "Search Imported",
			Args: []string{"search", "imported"},
			Want: "echo imported_from_bash",
		},
		{
			Name: "Compact",
			Args: []string{"compact", "--max", "2"},
			Want: "Kept 2 of 3 entries",
		},
		{
			Name:     "Compact Keeps Newest",
			Args:     []string{"search"},
			Want:     "git status",
			WantMiss: "imported_from_bash",
		},
		{
			Name: "Clear Session",
			Args: []string{"clear", "-s", "session"},
			Want: "History cleared",
		},
		{
			Name: "Stats After Session Clear",
			Args: []string{"stats"},
			Want: "Total commands: 0",
		},
		{
			Name: "Import Again",
			Args: []string{"import", "bash", "--file", bashHistory},
			Want: "Imported 1 commands",
		},
		{
			Name: "Clear Global",
			Args: []string{"clear"},
			Want: "History cleared",
		},
		{
			Name:     "Cleared Global",
			Args:     []string{"search", "imported"},
			WantMiss: "imported_from_bash",
		},
		{
			Name: "Stats After Clear",
			Args: []string{"stats"},
			Want: "Total commands: 0",
		},
		{
			Name: "Session Id",
			Args: []string{"session-id"},
			Want: "-",
		},
		{
			Name: "Init Zsh",
			Args: []string{"init", "zsh"},
			Want: "bindkey '^R' __rehash_search",
		},
		{
			Name:      "Init Unsupported",
			Args:      []string{"init", "tcsh"},
			Want:      "unsupported shell",
			ExpectErr: true,
		},
		{
			Name: "Doctor",
			Args: []string{"doctor"},
			Want: "REHASH_SESSION_ID: Set",
		},
	}

	for _, tc := range cases {
		t.Run(tc.Name, func(t *testing.T) {
			os.WriteFile(filepath.Join(tempHome, "config.yaml"), []byte(tc.Conf), 0644)

			cmd := exec.Command(rehashBinaryPath, tc.Args...)
			cmd.Dir = tempCwd
			cmd.Env = testEnv(tempHome)

			outputBytes, err := cmd.CombinedOutput()
			output := string(outputBytes)

			if err != nil && !tc.ExpectErr {
				t.Fatalf("Command failed: %v\nOutput: %s", err, output)
			}
			if err == nil && tc.ExpectErr {
				t.Fatalf("Command expected to fail but succeeded\nOutput: %s", output)
			}

			if !strings.Contains(output, tc.Want) {
				t.Errorf("Want substring %q not found in output.\n--- CLI Output ---\n%s\n", tc.Want, output)
			}
			if tc.WantMiss != "" && strings.Contains(output, tc.WantMiss) {
				t.Errorf("WantMiss substring %q WAS found in output.\n--- CLI Output ---\n%s\n", tc.WantMiss, output)
			}
		})
	}
}

// runInteractive drives the picker through a pty and returns what it wrote
// to --output-file.
func runInteractive(t *testing.T, home, cwd string, keys string, args ...string) (string, bool) {
	t.Helper()
	outFile := filepath.Join(t.TempDir(), "selection")

	cmd := exec.Command(rehashBinaryPath, append([]string{"interactive", "--output-file", outFile}, args...)...)
	cmd.Dir = cwd
	cmd.Env = testEnv(home)

	f, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: 24, Cols: 80})
	if err != nil {
		t.Fatalf("failed to start pty: %v", err)
	}
	defer f.Close()
	go io.Copy(io.Discard, f)

	time.Sleep(500 * time.Millisecond)
	if _, err := f.Write([]byte(keys)); err != nil {
		t.Fatalf("failed to send keys: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("interactive exited with error: %v", err)
		}
	case <-time.After(10 * time.Second):
		cmd.Process.Kill()
		t.Fatal("interactive did not exit")
	}

	data, err := os.ReadFile(outFile)
	if err != nil {
		return "", false
	}
	return string(data), true
}

func TestInteractive(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("pty not available")
	}
	tempHome := t.TempDir()
	tempCwd := t.TempDir()

	for _, c := range []string{"ls -la", "git status", "make test"} {
		cmd := exec.Command(rehashBinaryPath, "add", "--", c)
		cmd.Dir = tempCwd
		cmd.Env = testEnv(tempHome)
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("seed %q failed: %v\n%s", c, err, out)
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Run("Enter Selects Newest", func(t *testing.T) {
		got, ok := runInteractive(t, tempHome, tempCwd, "\r")
		if !ok || got != "make test" {
			t.Errorf("selection = %q (written=%v), want %q", got, ok, "make test")
		}
	})

	t.Run("Prefix Filters", func(t *testing.T) {
		got, ok := runInteractive(t, tempHome, tempCwd, "\r", "--prefix", "git")
		if !ok || got != "git status" {
			t.Errorf("selection = %q (written=%v), want %q", got, ok, "git status")
		}
	})

	t.Run("Typed Query", func(t *testing.T) {
		got, ok := runInteractive(t, tempHome, tempCwd, "ls\r")
		if !ok || got != "ls -la" {
			t.Errorf("selection = %q (written=%v), want %q", got, ok, "ls -la")
		}
	})

	t.Run("Ctrl-C Cancels", func(t *testing.T) {
		if got, ok := runInteractive(t, tempHome, tempCwd, "\x03"); ok {
			t.Errorf("cancel wrote selection %q", got)
		}
	})
}
