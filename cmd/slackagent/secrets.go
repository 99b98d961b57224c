package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"slackagent/pkg/config"
)

// secretsPath reads secrets_file from the config file without loading
// secrets, which would need the file to exist.
func secretsPath(flags *rootFlags) (string, error) {
	cfg := config.Default()
	if flags.configPath != "" {
		data, err := os.ReadFile(flags.configPath)
		if err != nil {
			return "", fmt.Errorf("failed to read config file: %w", err)
		}
		if err := config.Parse(data, cfg); err != nil {
			return "", err
		}
	}
	if cfg.SecretsFile == "" {
		return "", errors.New("secrets_file is not set in the config")
	}
	return cfg.SecretsFile, nil
}

// prompter reads secrets without echo on a terminal and line by line
// otherwise.
type prompter struct {
	file *os.File
	buf  *bufio.Reader
	out  io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	p := &prompter{buf: bufio.NewReader(in), out: out}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.file = f
	}
	return p
}

func (p *prompter) read(prompt string) (string, error) {
	if p.file != nil {
		fmt.Fprint(p.out, prompt)
		b, err := term.ReadPassword(int(p.file.Fd()))
		fmt.Fprintln(p.out)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", strings.TrimSuffix(prompt, ": "), err)
		}
		return string(b), nil
	}
	line, err := p.buf.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newSecretsCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Manage the encrypted secrets file",
	}

	set := &cobra.Command{
		Use:   "set <NAME> [value]",
		Short: "Store one secret, e.g. LLM_API_KEY or SLACK_BOT_TOKEN",
		Long: "Store one secret in secrets_file. The passphrase comes from " + config.SecretsPasswordEnv +
			" or a prompt; the value is prompted for when omitted.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := secretsPath(flags)
			if err != nil {
				return err
			}
			p := newPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())

			password := os.Getenv(config.SecretsPasswordEnv)
			if password == "" {
				if password, err = p.read("Passphrase: "); err != nil {
					return err
				}
			}
			if password == "" {
				return config.ErrSecretsPasswordMissing
			}

			value := ""
			if len(args) == 2 {
				value = args[1]
			} else if value, err = p.read(args[0] + ": "); err != nil {
				return err
			}
			if value == "" {
				return errors.New("empty secret value")
			}

			if err := config.SetSecret(path, password, args[0], value); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "🔐 %s stored in %s\n", args[0], path)
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored secret names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := secretsPath(flags)
			if err != nil {
				return err
			}
			password := os.Getenv(config.SecretsPasswordEnv)
			if password == "" {
				if password, err = newPrompter(cmd.InOrStdin(), cmd.ErrOrStderr()).read("Passphrase: "); err != nil {
					return err
				}
			}
			secrets, err := config.DecryptSecretsFile(path, password)
			if err != nil {
				return err
			}
			for _, name := range sortedKeys(secrets) {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}

	cmd.AddCommand(set, list)
	return cmd
}
