package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/codefionn/promethean-bridge/internal/socketclient"
)

var sendTimeout time.Duration

var sendCmd = &cobra.Command{
	Use:   "send [command] [params...]",
	Short: "Send commands to a running server",
	Long: `Send one command and print the response. Without arguments, commands are
read line by line from an interactive terminal, or the whole of stdin is sent
as one raw payload when it is not a terminal.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		clientCfg := socketclient.DefaultConfig()
		clientCfg.Address = cfg.Server.Address()
		clientCfg.RequestTimeout = sendTimeout
		client, err := socketclient.NewClientWithConfig(clientCfg)
		if err != nil {
			return err
		}
		if err := client.Connect(ctx); err != nil {
			return err
		}
		defer client.Close()

		out := cmd.OutOrStdout()
		switch {
		case len(args) > 0:
			reply, err := client.Send(ctx, args[0], strings.Join(args[1:], " "))
			return printReply(out, reply, err)
		case term.IsTerminal(int(os.Stdin.Fd())):
			return interactive(ctx, client, os.Stdin, out)
		default:
			payload, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("failed to read stdin: %w", err)
			}
			reply, err := client.SendRaw(ctx, payload)
			return printReply(out, reply, err)
		}
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", 0, "Give up waiting for a response after this long (0 waits forever)")
}

// printReply prints the response; ERROR replies are printed and reported
func printReply(out io.Writer, reply string, err error) error {
	var sockErr *socketclient.SocketError
	if err != nil && !errors.As(err, &sockErr) {
		return err
	}
	fmt.Fprintln(out, reply)
	return err
}

func interactive(ctx context.Context, client *socketclient.Client, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}

		command, params, _ := strings.Cut(line, " ")
		reply, err := client.Send(ctx, command, params)
		if err := printReply(out, reply, err); err != nil {
			var sockErr *socketclient.SocketError
			if !errors.As(err, &sockErr) {
				return err
			}
		}
	}
}
