package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/afrarahimemadak/stellarwork"
	"github.com/afrarahimemadak/stellarwork/convert"
)

func newQuoteCmd(root *rootOptions) *cobra.Command {
	var hours string
	cmd := &cobra.Command{
		Use:   "quote <job-id>",
		Short: "Price hours of work on a freelancer listing",
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
			job, err := a.identity.GetFreelancerJob(cmd.Context(), jobID)
			if err != nil {
				return err
			}
			q, err := convert.NewQuote(h, job.Rate(), a.rate)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n", job.Title)
			fmt.Fprintf(out, "  %s h x %s = %s USD\n", q.Hours, convert.FormatDisplay(q.HourlyRate), q.FiatDisplay())
			fmt.Fprintf(out, "  %s XLM at %s USD/XLM\n", q.LedgerDisplay(), q.Rate)
			return nil
		},
	}
	cmd.Flags().StringVar(&hours, "hours", "1", "hours of work")
	return cmd
}

func parseJobID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid job id %q", stellarwork.ErrInvalidInput, s)
	}
	return id, nil
}
