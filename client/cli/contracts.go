package cli

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"takahome/client/contract/domain"
)

func formatAmount(v float64) string {
	if v == 0 {
		return "-"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func orDash(v string) string {
	if strings.TrimSpace(v) == "" {
		return "-"
	}
	return v
}

func ContractsCmd(s *session) *cobra.Command {
	var (
		output string
		status string
	)
	cmd := &cobra.Command{
		Use:   "contracts",
		Short: "List my rental contracts",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validOutput(output); err != nil {
				return err
			}
			filter := domain.DisplayStatus(strings.ToLower(strings.TrimSpace(status)))
			if filter != "" && !filter.Valid() {
				return fmt.Errorf("unknown status %q", status)
			}
			a, err := s.open(cmd)
			if err != nil {
				return err
			}
			contracts, err := a.Contracts.ListContracts(cmd.Context())
			if err != nil {
				return err
			}
			if filter != "" {
				kept := contracts[:0]
				for _, c := range contracts {
					if c.Status == filter {
						kept = append(kept, c)
					}
				}
				contracts = kept
			}

			w := cmd.OutOrStdout()
			if done, err := writeStructured(w, output, contracts); done {
				return err
			}
			if len(contracts) == 0 {
				fmt.Fprintln(w, "No contracts.")
				return nil
			}
			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tBOOKING\tSTATUS\tCATEGORY\tCODE\tPRICE\tLANDLORD\tPERIOD")
			for _, c := range contracts {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					c.ID, c.BookingID, c.Status, c.Category, c.PropertyCode,
					formatAmount(c.Price), c.Landlord, period(c))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "table, json or yaml")
	cmd.Flags().StringVar(&status, "status", "", "only contracts with this display status")
	return cmd
}

func period(c domain.ContractViewModel) string {
	if c.StartDate == "" && c.EndDate == "" {
		return "-"
	}
	return orDash(c.StartDate) + " .. " + orDash(c.EndDate)
}

func ContractCmd(s *session) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "contract <bookingID>",
		Short: "Show one contract with its invoices, or act on its booking",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validOutput(output); err != nil {
				return err
			}
			a, err := s.open(cmd)
			if err != nil {
				return err
			}
			c, err := a.Contracts.Contract(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if done, err := writeStructured(w, output, c); done {
				return err
			}
			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			rows := [][2]string{
				{"Contract", c.ID},
				{"Type", c.Type},
				{"Status", string(c.Status)},
				{"Tenant", orDash(c.Tenant)},
				{"Landlord", orDash(c.Landlord)},
				{"Address", orDash(c.Address)},
				{"Category", c.Category},
				{"Code", c.PropertyCode},
				{"Furnishing", c.PropertyType},
				{"Price", formatAmount(c.Price)},
				{"Deposit", formatAmount(c.Deposit)},
				{"Period", period(c)},
			}
			for _, row := range rows {
				fmt.Fprintf(tw, "%s:\t%s\n", row[0], row[1])
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if len(c.Invoices) == 0 {
				return nil
			}
			fmt.Fprintln(w)
			tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "INVOICE\tPERIOD\tDUE\tSTATUS\tTOTAL")
			for _, inv := range c.Invoices {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", inv.InvoiceCode, inv.BillingPeriod, inv.DueDate, inv.Status, formatAmount(inv.TotalAmount))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "table, json or yaml")
	cmd.AddCommand(lifecycleCmds(s)...)
	return cmd
}
