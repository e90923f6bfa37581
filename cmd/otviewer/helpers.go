package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/gander-tools/owntracks-dataviewer/internal/config"
	"github.com/gander-tools/owntracks-dataviewer/internal/gateway"
	"github.com/gander-tools/owntracks-dataviewer/internal/store"
	"github.com/gander-tools/owntracks-dataviewer/internal/vault"
)

const credentialsSlot = "credentials"

// environment bundles what every command needs: config, the state
// database and the vault over its credential slot.
type environment struct {
	cfg   *config.Config
	db    *store.DB
	vault *vault.Vault
}

func openEnvironment() (*environment, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	path, err := cfg.ResolveStatePath()
	if err != nil {
		return nil, err
	}
	db, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	return &environment{cfg: cfg, db: db, vault: vault.New(db.Slot(credentialsSlot))}, nil
}

func (e *environment) close() {
	e.db.Close()
}

// unlock prompts for the master password and loads the credential set,
// filling connection fields from config where the stored set leaves
// them empty.
func (e *environment) unlock() (vault.Credentials, error) {
	if !e.vault.HasStoredCredentials() {
		return vault.Credentials{}, fmt.Errorf("no stored credentials; run `otviewer credentials save` first")
	}
	master, err := promptPassword("Master password: ")
	if err != nil {
		return vault.Credentials{}, err
	}
	creds, err := e.vault.Load(master)
	if err != nil {
		return vault.Credentials{}, err
	}
	return e.withConfigDefaults(creds), nil
}

func (e *environment) withConfigDefaults(creds vault.Credentials) vault.Credentials {
	if creds.URL == "" {
		creds.URL = e.cfg.URL
	}
	if creds.Namespace == "" {
		creds.Namespace = e.cfg.Namespace
	}
	if creds.Database == "" {
		creds.Database = e.cfg.Database
	}
	if creds.Table == "" {
		creds.Table = e.cfg.Table
	}
	return creds
}

func (e *environment) queries(creds vault.Credentials) gateway.Queries {
	return gateway.Queries{
		Table: creds.Table,
		Fields: gateway.FieldMap{
			Ciphertext: e.cfg.CiphertextField,
			Device:     e.cfg.DeviceField,
			Time:       e.cfg.TimeField,
		},
		Limit: e.cfg.FetchLimit,
	}
}

func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}

func promptLine(reader *bufio.Reader, prompt, fallback string) (string, error) {
	if fallback != "" {
		fmt.Fprintf(os.Stderr, "%s [%s]: ", prompt, fallback)
	} else {
		fmt.Fprintf(os.Stderr, "%s: ", prompt)
	}
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return fallback, nil
	}
	return line, nil
}

// parseTimeFlag accepts a date or an RFC 3339 timestamp.
func parseTimeFlag(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q: want YYYY-MM-DD or RFC 3339", value)
}

// parseEndTimeFlag parses an inclusive range end. A date-only value
// covers that whole day, so it resolves to the day's last nanosecond
// instead of midnight.
func parseEndTimeFlag(value string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
	}
	return parseTimeFlag(value)
}
