package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"jobtrack-engine/internal/secrets"
)

var cipherCmd = &cobra.Command{
	Use:   "cipher",
	Short: "Encrypt or decrypt values with the token encryption key",
	Long: `Encrypt or decrypt values the same way OAuth tokens are stored.

The key is read from TOKEN_ENCRYPTION_KEY or the OS keychain.

Examples:
  engine cipher encrypt my-refresh-token
  echo -n "$CIPHERTEXT" | engine cipher decrypt -
  engine cipher store-key   # reads the key from stdin into the keychain`,
}

var cipherEncryptCmd = &cobra.Command{
	Use:   "encrypt [value|-]",
	Short: "Encrypt a value",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCipher(cmd, args, func(c *secrets.Cipher, in string) (string, error) { return c.Encrypt(in) })
	},
}

var cipherDecryptCmd = &cobra.Command{
	Use:   "decrypt [value|-]",
	Short: "Decrypt a value produced by encrypt",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCipher(cmd, args, func(c *secrets.Cipher, in string) (string, error) { return c.Decrypt(in) })
	},
}

var cipherStoreKeyCmd = &cobra.Command{
	Use:   "store-key",
	Short: "Save the token encryption key (from stdin) in the OS keychain",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadConfig()
		if err != nil {
			return err
		}
		defer a.close()

		key, err := readInput(cmd.InOrStdin(), nil)
		if err != nil {
			return err
		}
		if err := secrets.StoreTokenKey(secrets.TokenKeyKeyringAccount(a.cfg()), key); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "stored")
		return nil
	},
}

func init() {
	cipherCmd.AddCommand(cipherEncryptCmd)
	cipherCmd.AddCommand(cipherDecryptCmd)
	cipherCmd.AddCommand(cipherStoreKeyCmd)
}

func runCipher(cmd *cobra.Command, args []string, op func(*secrets.Cipher, string) (string, error)) error {
	a, err := loadConfig()
	if err != nil {
		return err
	}
	defer a.close()

	in, err := readInput(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}
	out, err := op(a.mustCipher(), in)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}

// readInput takes the single argument, or stdin when it is absent or "-".
func readInput(stdin io.Reader, args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	b, err := io.ReadAll(bufio.NewReader(stdin))
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	s := strings.TrimRight(string(b), "\r\n")
	if s == "" {
		return "", fmt.Errorf("no input")
	}
	return s, nil
}

