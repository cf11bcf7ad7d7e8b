// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ManuGH/savesync/internal/domain/session/ports"
	"github.com/ManuGH/savesync/internal/infrastructure/remote/fsremote"
)

// runAccountCLI signs the shared-folder remote in or out. A running daemon
// picks the change up on SIGHUP.
func runAccountCLI(args []string) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printAccountUsage()
		return 0
	}
	return runAccount(args[0], args[1:], os.Stdout)
}

func printAccountUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  savesyncd account login [--file|-f config.yaml] <account>")
	fmt.Fprintln(os.Stderr, "  savesyncd account logout [--file|-f config.yaml]")
	fmt.Fprintln(os.Stderr, "  savesyncd account status [--file|-f config.yaml]")
}

func runAccount(sub string, args []string, out io.Writer) int {
	switch sub {
	case "login", "logout", "status":
	default:
		fmt.Fprintf(os.Stderr, "Unknown subcommand: %s\n\n", sub)
		printAccountUsage()
		return 2
	}

	fs, file := configFlags("savesyncd account " + sub)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cfg, configPath, err := loadConfig(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error in %s:\n  %v\n", configPath, err)
		return 1
	}

	remote, err := fsremote.Open(fsremote.Options{Root: cfg.Remote.Root})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open remote store: %v\n", err)
		return 1
	}
	defer func() { _ = remote.Close() }()

	switch sub {
	case "login":
		account := strings.TrimSpace(fs.Arg(0))
		if account == "" {
			fmt.Fprintln(os.Stderr, "Error: account name is required")
			return 2
		}
		if err := remote.SetIdentity(account); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to sign in: %v\n", err)
			return 1
		}
		fmt.Fprintf(out, "✓ signed in as %s (send SIGHUP to a running daemon)\n", account)
	case "logout":
		if err := remote.ClearIdentity(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to sign out: %v\n", err)
			return 1
		}
		fmt.Fprintln(out, "✓ signed out (send SIGHUP to a running daemon)")
	case "status":
		account, err := remote.Identity(context.Background())
		switch {
		case errors.Is(err, ports.ErrNoIdentity):
			fmt.Fprintf(out, "signed out (%s)\n", cfg.Remote.Root)
		case err != nil:
			fmt.Fprintf(os.Stderr, "Failed to read identity: %v\n", err)
			return 1
		default:
			fmt.Fprintf(out, "signed in as %s (%s)\n", account, cfg.Remote.Root)
		}
	}
	return 0
}
