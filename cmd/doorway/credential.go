// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/doorway/lib/config"
	"github.com/bureau-foundation/doorway/lib/credential"
)

func runCredential(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: doorway credential <set|show> [flags]")
	}
	switch args[0] {
	case "set":
		return runCredentialSet(args[1:])
	case "show":
		return runCredentialShow(args[1:])
	default:
		return fmt.Errorf("unknown credential subcommand: %q (want set or show)", args[0])
	}
}

// credentialPath resolves the credential file: an explicit flag wins,
// then the config file's paths.credential, then the built-in default.
func credentialPath(configPath, credentialFile string) (string, error) {
	if credentialFile != "" {
		return credentialFile, nil
	}
	if configPath != "" {
		cfg, err := config.LoadFile(configPath)
		if err != nil {
			return "", err
		}
		return cfg.Paths.Credential, nil
	}
	if envPath := os.Getenv("DOORWAY_CONFIG"); envPath != "" {
		cfg, err := config.LoadFile(envPath)
		if err != nil {
			return "", err
		}
		return cfg.Paths.Credential, nil
	}
	return config.Default().Paths.Credential, nil
}

func runCredentialSet(args []string) error {
	flags := pflag.NewFlagSet("credential set", pflag.ExitOnError)
	var (
		identity       string
		configPath     string
		credentialFile string
		passwordFile   string
	)
	flags.StringVar(&identity, "identity", "", "identity the daemon will authenticate (required)")
	flags.StringVar(&configPath, "config", "", "daemon config file to read paths.credential from")
	flags.StringVar(&credentialFile, "credential-file", "", "credential file path (overrides config)")
	flags.StringVar(&passwordFile, "password-file", "", "file containing the password (prompts with confirmation when unset)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if identity == "" {
		return fmt.Errorf("--identity is required")
	}

	path, err := credentialPath(configPath, credentialFile)
	if err != nil {
		return err
	}
	password, err := readPassword(passwordFile, true)
	if err != nil {
		return err
	}

	if err := credential.NewStore(path).SetPassword(identity, password); err != nil {
		return err
	}
	fmt.Printf("credential for %q written to %s\n", identity, path)
	return nil
}

func runCredentialShow(args []string) error {
	flags := pflag.NewFlagSet("credential show", pflag.ExitOnError)
	var (
		configPath     string
		credentialFile string
	)
	flags.StringVar(&configPath, "config", "", "daemon config file to read paths.credential from")
	flags.StringVar(&credentialFile, "credential-file", "", "credential file path (overrides config)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	path, err := credentialPath(configPath, credentialFile)
	if err != nil {
		return err
	}
	record, err := credential.NewStore(path).Get()
	if err != nil {
		return err
	}
	fmt.Printf("identity: %s\nfile:     %s\n", record.Identity, path)
	return nil
}
