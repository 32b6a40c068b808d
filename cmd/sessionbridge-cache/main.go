// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/sessionbridge/cmd/internal/cli"
	"github.com/bureau-foundation/sessionbridge/lib/cachefile"
	"github.com/bureau-foundation/sessionbridge/lib/codec"
	"github.com/bureau-foundation/sessionbridge/roomlist"
)

const commandName = "sessionbridge-cache"

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, output io.Writer) error {
	if len(args) > 0 && args[0] == "--version" {
		cli.PrintVersion(output, commandName)
		return nil
	}

	var configPath, cachePath string
	var diagnostic, remove bool
	flagSet := pflag.NewFlagSet(commandName, pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "config file (default: $SESSIONBRIDGE_CONFIG)")
	flagSet.StringVar(&cachePath, "path", "", "cache file to read instead of the configured one")
	flagSet.BoolVar(&diagnostic, "diag", false, "print the CBOR payload in diagnostic notation")
	flagSet.BoolVar(&remove, "remove", false, "delete the cache file")
	flagSet.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - inspect the room list cache\n\nUSAGE\n    %s [flags]\n\nFLAGS\n%s",
			commandName, commandName, flagSet.FlagUsages())
	}
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if flagSet.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}
	if diagnostic && remove {
		return fmt.Errorf("--diag and --remove are mutually exclusive")
	}

	if cachePath == "" {
		cfg, err := cli.LoadConfig(configPath)
		if err != nil {
			return err
		}
		cachePath = cfg.RoomListCachePath()
	}
	file := cachefile.New(cachefile.Config{Path: cachePath})

	if remove {
		if err := file.Remove(); err != nil {
			return err
		}
		fmt.Fprintf(output, "removed %s\n", cachePath)
		return nil
	}

	payload, err := file.Read()
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("no room list cache at %s", cachePath)
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", cachePath, err)
	}

	if diagnostic {
		notation, err := codec.Diagnose(payload)
		if err != nil {
			return fmt.Errorf("diagnosing %s: %w", cachePath, err)
		}
		fmt.Fprintln(output, notation)
		return nil
	}

	var entries []roomlist.Entry
	if err := codec.Unmarshal(payload, &entries); err != nil {
		return fmt.Errorf("decoding %s: %w", cachePath, err)
	}
	if entries == nil {
		entries = []roomlist.Entry{}
	}
	encoder := json.NewEncoder(output)
	encoder.SetIndent("", "  ")
	return encoder.Encode(entries)
}
