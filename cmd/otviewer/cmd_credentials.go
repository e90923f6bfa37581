package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gander-tools/owntracks-dataviewer/internal/vault"
)

func newCredentialsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage the encrypted credential vault",
	}
	cmd.AddCommand(newCredentialsSaveCmd(), newCredentialsClearCmd())
	return cmd
}

func newCredentialsSaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "save",
		Short: "Prompt for credentials and store them encrypted under a master password",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnvironment()
			if err != nil {
				return err
			}
			defer env.close()

			reader := bufio.NewReader(os.Stdin)
			var creds vault.Credentials
			if creds.URL, err = promptLine(reader, "Store URL", env.cfg.URL); err != nil {
				return err
			}
			if creds.Namespace, err = promptLine(reader, "Namespace", env.cfg.Namespace); err != nil {
				return err
			}
			if creds.Database, err = promptLine(reader, "Database", env.cfg.Database); err != nil {
				return err
			}
			if creds.Table, err = promptLine(reader, "Table", env.cfg.Table); err != nil {
				return err
			}
			if creds.Username, err = promptLine(reader, "Username", ""); err != nil {
				return err
			}
			if creds.Password, err = promptPassword("Store password: "); err != nil {
				return err
			}
			if creds.DecryptPassword, err = promptPassword("Payload decryption password: "); err != nil {
				return err
			}

			master, err := promptPassword("Master password: ")
			if err != nil {
				return err
			}
			confirm, err := promptPassword("Master password (again): ")
			if err != nil {
				return err
			}
			if master != confirm {
				return fmt.Errorf("master passwords do not match")
			}

			if err := env.vault.Save(creds, master); err != nil {
				return err
			}
			fmt.Println("Credentials saved.")
			return nil
		},
	}
}

func newCredentialsClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Blank the in-memory credentials and delete the stored blob",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnvironment()
			if err != nil {
				return err
			}
			defer env.close()

			if err := env.vault.Clear(); err != nil {
				return err
			}
			fmt.Println("Credentials cleared.")
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show vault and configuration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnvironment()
			if err != nil {
				return err
			}
			defer env.close()

			path, _ := env.cfg.ResolveStatePath()
			fmt.Printf("State database: %s\n", path)
			if env.vault.HasStoredCredentials() {
				fmt.Println("Stored credentials: yes (locked)")
			} else {
				fmt.Println("Stored credentials: no")
			}
			fmt.Printf("Default store: %s %s/%s table=%s\n",
				env.cfg.URL, env.cfg.Namespace, env.cfg.Database, env.cfg.Table)
			return nil
		},
	}
}
