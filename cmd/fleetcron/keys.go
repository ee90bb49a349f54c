package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xraph/fleetcron/secret"
)

var genkeyCmd = &cobra.Command{
	Use:   "genkey",
	Short: "Print a new random SECRET_KEY",
	RunE: func(cmd *cobra.Command, _ []string) error {
		key, err := secret.GenerateKey()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), key)
		return err
	},
}

var encryptCmd = &cobra.Command{
	Use:   "encrypt [password]",
	Short: "Seal a host password with SECRET_KEY; reads stdin without an argument",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := secret.NewCipherFromHex(cfg.SecretKey)
		if err != nil {
			return err
		}

		var plain string
		if len(args) == 1 {
			plain = args[0]
		} else {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return errors.New("no password on stdin")
			}
			plain = strings.TrimRight(line, "\r\n")
		}

		sealed, err := c.Encrypt(plain)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), sealed)
		return err
	},
}
