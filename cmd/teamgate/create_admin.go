package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/MrEthical07/teamgate"
	"github.com/MrEthical07/teamgate/internal/bootstrap"
)

// NewCreateAdminCmd creates the create-admin subcommand, which registers
// the first administrator so the admin-only register route becomes usable.
func NewCreateAdminCmd() *cobra.Command {
	var (
		name          string
		email         string
		passwordStdin bool
	)
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Register an administrator account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := bootstrap.LoadConfig(configFile)
			if err != nil {
				return err
			}
			if cfg.AccountStore != bootstrap.BackendPostgres {
				return oops.Code("CONFIG_INVALID").With("backend", cfg.AccountStore).
					Errorf("create-admin needs the postgres account store")
			}

			password, err := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr(), passwordStdin)
			if err != nil {
				return err
			}

			services, err := bootstrap.Open(cmd.Context(), cfg, newLogger(cfg))
			if err != nil {
				return err
			}
			defer services.Close()

			acct, err := services.Engine.Register(cmd.Context(), teamgate.NewAccountInput{
				Name:     name,
				Email:    email,
				Password: password,
				Role:     string(teamgate.RoleAdministrator),
			})
			if err != nil {
				return err
			}
			cmd.Printf("Created administrator %s (%s)\n", acct.Email, acct.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "login email")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin instead of prompting")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// readPassword prompts without echo when in is a terminal and otherwise
// reads the first line of in.
func readPassword(in io.Reader, prompt io.Writer, fromStdin bool) (string, error) {
	if f, ok := in.(*os.File); ok && !fromStdin && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "Password: ")
		raw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", oops.Code("PASSWORD_READ_FAILED").Wrap(err)
		}
		return validPassword(string(raw))
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", oops.Code("PASSWORD_READ_FAILED").Wrap(err)
	}
	return validPassword(strings.TrimRight(line, "\r\n"))
}

func validPassword(p string) (string, error) {
	if p == "" {
		return "", oops.Code("PASSWORD_REQUIRED").Errorf("password must not be empty")
	}
	return p, nil
}
