package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/aelexs/messaging-gateway/internal/bootstrap"
	"github.com/aelexs/messaging-gateway/internal/config"
	"github.com/aelexs/messaging-gateway/internal/domain"
	"github.com/aelexs/messaging-gateway/internal/observability"
)

// appLoader builds the wired services for one command invocation.
type appLoader func(ctx context.Context) (*bootstrap.App, error)

// loadApp wires the services from MESSAGING_* environment variables. Logs go
// to stderr so stdout stays parseable.
func loadApp(ctx context.Context) (*bootstrap.App, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := observability.InitLogger(observability.LogConfig{
		Level:       cfg.LogLevel,
		Format:      "text",
		ServiceName: "messaging-cli",
		Environment: cfg.Environment,
		Output:      os.Stderr,
	})
	return bootstrap.New(ctx, cfg, logger, bootstrap.Options{})
}

// errCommandFailed marks a vendor rejection already reported to the user.
var errCommandFailed = errors.New("command failed")

func newRootCmd(load appLoader) *cobra.Command {
	root := &cobra.Command{
		Use:           "messaging",
		Short:         "Manage the messaging gateway",
		Long:          "Check account balance, configure the delivery callback URL, or send a test message.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("channel", "sms", "Channel to use (sms|whatsapp)")
	root.PersistentFlags().Bool("json", false, "Output in JSON format")

	root.AddCommand(
		newBalanceCmd(load),
		newCallbackCmd(load),
		newTestCmd(load),
	)
	return root
}

func newBalanceCmd(load appLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Check account balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withManager(cmd, load, func(ctx context.Context, m managerView) error {
				balances, err := m.GetBalance(ctx)
				if err != nil {
					return reportFailure(cmd, "fetch balance", err)
				}
				return printBalances(cmd, balances)
			})
		},
	}
}

func newCallbackCmd(load appLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "callback",
		Short: "Configure the delivery callback URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			url, _ := cmd.Flags().GetString("url")
			method, _ := cmd.Flags().GetString("method")
			return withManager(cmd, load, func(ctx context.Context, m managerView) error {
				resp, err := m.ConfigureCallback(ctx, url, method)
				if err != nil {
					return reportFailure(cmd, "configure callback", err)
				}
				return printResponse(cmd, resp, "Callback configured successfully!")
			})
		},
	}
	cmd.Flags().String("url", "", "Callback URL")
	cmd.Flags().String("method", "POST", "Callback method (GET or POST)")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func newTestCmd(load appLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Send a test message",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			to, _ := cmd.Flags().GetString("to")
			message, _ := cmd.Flags().GetString("message")
			if !domain.NewPhoneFormatter("").IsValid(to) {
				return fmt.Errorf("%w: %q is not a valid phone number", domain.ErrInvalidInput, to)
			}
			return withManager(cmd, load, func(ctx context.Context, m managerView) error {
				resp, err := m.Send(ctx, domain.SmsMessage{Recipient: to, Content: message})
				if err != nil {
					return reportFailure(cmd, "send message", err)
				}
				return printResponse(cmd, resp, "Message sent successfully! Resource ID: "+resp.ResourceID())
			})
		},
	}
	cmd.Flags().String("to", "", "Recipient phone number")
	cmd.Flags().String("message", "Test message from messaging-gateway", "Message to send")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

// managerView is the subset of app.Manager the commands drive.
type managerView interface {
	Send(ctx context.Context, msg domain.SmsMessage) (domain.Response, error)
	GetBalance(ctx context.Context) ([]domain.BalanceInfo, error)
	ConfigureCallback(ctx context.Context, url, method string) (domain.Response, error)
}

func withManager(cmd *cobra.Command, load appLoader, fn func(ctx context.Context, m managerView) error) error {
	ctx := cmd.Context()
	channel, err := channelFlag(cmd.Flags())
	if err != nil {
		return err
	}

	a, err := load(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	m, err := a.Messaging.Channel(channel)
	if err != nil {
		return err
	}
	return fn(ctx, m)
}

func jsonOutput(fs *pflag.FlagSet) bool {
	v, _ := fs.GetBool("json")
	return v
}

// channelFlag returns the --channel value, rejecting anything but a built-in
// channel.
func channelFlag(fs *pflag.FlagSet) (string, error) {
	channel, _ := fs.GetString("channel")
	if !domain.IsValidChannel(domain.Channel(channel)) {
		return "", fmt.Errorf("%w: channel must be sms or whatsapp, got %q", domain.ErrInvalidInput, channel)
	}
	return channel, nil
}

func printBalances(cmd *cobra.Command, balances []domain.BalanceInfo) error {
	out := cmd.OutOrStdout()
	if jsonOutput(cmd.Flags()) {
		if balances == nil {
			balances = []domain.BalanceInfo{}
		}
		return json.NewEncoder(out).Encode(balances)
	}
	if len(balances) == 0 {
		fmt.Fprintln(out, "No balance information available.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "COUNTRY/ACCOUNT\tBALANCE")
	total := 0
	for _, b := range balances {
		fmt.Fprintf(tw, "%s\t%d\n", b.Country, b.Balance)
		total += b.Balance
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "Total: %d credits\n", total)
	return nil
}

// reportFailure prints a gateway error under --json as the failed Response
// a vendor rejection would print, with data.transport set for transport
// failures.
func reportFailure(cmd *cobra.Command, action string, err error) error {
	if _, ok := domain.AsError(err); ok && jsonOutput(cmd.Flags()) {
		if encErr := json.NewEncoder(cmd.OutOrStdout()).Encode(domain.FailureResponse(err)); encErr != nil {
			return encErr
		}
	}
	return fmt.Errorf("%s: %w", action, err)
}

func printResponse(cmd *cobra.Command, resp domain.Response, successLine string) error {
	out := cmd.OutOrStdout()
	if jsonOutput(cmd.Flags()) {
		if err := json.NewEncoder(out).Encode(resp); err != nil {
			return err
		}
	} else if resp.Success() {
		fmt.Fprintln(out, successLine)
	} else {
		fmt.Fprintf(out, "Failed: %s\n", resp.Message())
	}
	if resp.Failed() {
		return fmt.Errorf("%w: %s", errCommandFailed, resp.Code())
	}
	return nil
}
