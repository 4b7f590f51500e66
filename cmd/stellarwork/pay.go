package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/afrarahimemadak/stellarwork"
	"github.com/afrarahimemadak/stellarwork/agents/keypair"
	"github.com/afrarahimemadak/stellarwork/convert"
	"github.com/afrarahimemadak/stellarwork/payment"
)

func newPayCmd(root *rootOptions) *cobra.Command {
	var (
		hours string
		yes   bool
	)
	cmd := &cobra.Command{
		Use:   "pay <job-id>",
		Short: "Pay a freelancer listing with the configured agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			h, err := convert.Parse(hours)
			if err != nil {
				return err
			}
			a, err := newApp(root.cfg, root.logger)
			if err != nil {
				return err
			}

			var approver keypair.Approver
			if !yes {
				approver = promptApprover(cmd.InOrStdin(), cmd.ErrOrStderr())
			}
			agent, err := a.agent(approver)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if !agent.Detect(ctx) {
				return stellarwork.ErrAgentUnavailable
			}
			payer, err := agent.RequestAddress(ctx)
			if err != nil {
				return err
			}
			job, err := a.identity.GetFreelancerJob(ctx, jobID)
			if err != nil {
				return err
			}
			o, err := a.orchestrators(agent)()
			if err != nil {
				return err
			}

			receipt, payErr := o.Pay(ctx, payment.Request{Payer: payer, Job: *job, Hours: h})
			if receipt != nil {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(receipt); err != nil {
					return err
				}
			}
			var perr *stellarwork.PaymentError
			if errors.As(payErr, &perr) {
				if advice := perr.RetryAdvice(); advice != "" {
					fmt.Fprintln(cmd.ErrOrStderr(), advice)
				}
			}
			return payErr
		},
	}
	cmd.Flags().StringVar(&hours, "hours", "1", "hours of work")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "approve agent requests without prompting (keypair agent)")
	return cmd
}

// promptApprover asks on out and reads y/N from in for each agent request.
func promptApprover(in io.Reader, out io.Writer) keypair.Approver {
	reader := bufio.NewReader(in)
	return func(ctx context.Context, req keypair.Request) (bool, error) {
		switch req.Kind {
		case keypair.RequestAddress:
			fmt.Fprintf(out, "Share address %s? [y/N] ", req.Address)
		case keypair.RequestSign:
			fmt.Fprintf(out, "Sign payment of %s XLM from %s to %s (hash %s)? [y/N] ",
				req.Unsigned.Amount, req.Unsigned.Source.Short(), req.Unsigned.Destination.Short(), req.Unsigned.Hash)
		}
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			if errors.Is(err, io.EOF) {
				return false, nil
			}
			return false, err
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes", nil
	}
}
