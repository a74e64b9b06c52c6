package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

type ShellInfo struct {
	Name string // bash, zsh, fish, sh
	Path string // full path to shell executable
}

// detectShell detects the current shell from environment variables and parent process
func detectShell() ShellInfo {
	// Try $SHELL first
	shellPath := os.Getenv("SHELL")
	if shellPath == "" {
		// Fallback: try to detect from parent process
		shellPath = detectParentShell()
	}
	if shellPath == "" {
		shellPath = "/bin/sh"
	}

	shellName := strings.TrimSuffix(filepath.Base(shellPath), ".exe")
	info := ShellInfo{Name: "sh", Path: shellPath}

	switch {
	case strings.Contains(shellName, "zsh"):
		info.Name = "zsh"
	case strings.Contains(shellName, "bash"):
		info.Name = "bash"
	case strings.Contains(shellName, "fish"):
		info.Name = "fish"
	}
	return info
}

// detectParentShell tries to detect shell from parent process
func detectParentShell() string {
	if runtime.GOOS == "windows" {
		return ""
	}
	cmd := exec.Command("ps", "-p", fmt.Sprintf("%d", os.Getppid()), "-o", "comm=")
	output, err := cmd.Output()
	if err != nil {
		return ""
	}
	shellName := strings.TrimPrefix(strings.TrimSpace(string(output)), "-")
	if shellName == "" {
		return ""
	}
	if fullPath, err := exec.LookPath(shellName); err == nil {
		return fullPath
	}
	return shellName
}

// shellHistoryPath locates the shell's own history file
func shellHistoryPath(shell string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	switch shell {
	case "zsh", "bash":
		// HISTFILE is usually not exported, but honour it when it is
		if p := os.Getenv("HISTFILE"); p != "" {
			return p, nil
		}
		if shell == "zsh" {
			return filepath.Join(home, ".zsh_history"), nil
		}
		return filepath.Join(home, ".bash_history"), nil
	case "fish":
		dataHome := os.Getenv("XDG_DATA_HOME")
		if dataHome == "" {
			dataHome = filepath.Join(home, ".local", "share")
		}
		return filepath.Join(dataHome, "fish", "fish_history"), nil
	}
	return "", fmt.Errorf("unsupported shell: %s (supported: zsh, bash, fish)", shell)
}
