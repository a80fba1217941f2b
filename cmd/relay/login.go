package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"github.com/spf13/cobra"
)

func newLoginCmd(configPath *string) *cobra.Command {
	var phone string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authorize the user session used to read channel history",
		Long:  "Sends a login code to --phone and stores the session at TELEGRAM_SESSION_PATH. Accounts with two-step verification read the password from TELEGRAM_PASSWORD.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if phone == "" {
				return fmt.Errorf("--phone is required")
			}

			_, a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer closeApp(a)

			prompt := auth.Constant(phone, os.Getenv("TELEGRAM_PASSWORD"),
				codePrompt(cmd.InOrStdin(), cmd.OutOrStdout()))
			if err := a.Login(cmd.Context(), prompt); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✅ session authorized")
			return nil
		},
	}

	cmd.Flags().StringVar(&phone, "phone", "", "phone number in international format")
	return cmd
}

// codePrompt 从输入流读取 Telegram 发送的验证码
func codePrompt(in io.Reader, out io.Writer) auth.CodeAuthenticator {
	reader := bufio.NewReader(in)
	return auth.CodeAuthenticatorFunc(func(ctx context.Context, sentCode *tg.AuthSentCode) (string, error) {
		fmt.Fprint(out, "Enter code: ")
		code, err := reader.ReadString('\n')
		if err != nil && code == "" {
			return "", fmt.Errorf("read code: %w", err)
		}
		return strings.TrimSpace(code), nil
	})
}
