package cmd

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/cita-scheduler/internal/cookiecipher"
)

func newCookieCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cookie",
		Short: "Vendor cookie utilities (offline, never used by the running core)",
	}
	cmd.AddCommand(newCookieDecryptCmd())
	return cmd
}

func newCookieDecryptCmd() *cobra.Command {
	var cookie, secret string

	c := &cobra.Command{
		Use:   "decrypt",
		Short: "Decrypt a PPDUO cookie value (CryptoJS AES passphrase format)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv("SECRET_KEY")
			}
			if secret == "" {
				return fmt.Errorf("--secret or SECRET_KEY is required")
			}

			raw, ok := cookiecipher.ExtractCookie(cookie)
			if !ok {
				return fmt.Errorf("could not extract a cookie value from input")
			}
			// browsers URL-encode the value; fall back to the raw form
			if dec, err := url.QueryUnescape(raw); err == nil {
				raw = dec
			}

			plain, err := cookiecipher.Decrypt(raw, secret)
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, plain)

			var parsed map[string]any
			if json.Unmarshal([]byte(plain), &parsed) == nil {
				pretty, _ := json.MarshalIndent(parsed, "", "  ")
				fmt.Fprintf(os.Stdout, "\nparsed JSON:\n%s\n", pretty)
			}
			return nil
		},
	}

	c.Flags().StringVar(&cookie, "cookie", "", "Cookie header string or raw cookie value")
	c.Flags().StringVar(&secret, "secret", "", "passphrase the value was encrypted with")
	_ = c.MarkFlagRequired("cookie")
	return c
}
