package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"takahome/client/app"
	"takahome/client/contract/domain"
)

type bookingAction func(ctx context.Context, a *app.App, bookingID string) (domain.Booking, error)

// lifecycleCmd runs one booking action and prints the contract status it
// leads to.
func lifecycleCmd(s *session, use, short string, do bookingAction) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   use + " <bookingID>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validOutput(output); err != nil {
				return err
			}
			a, err := s.open(cmd)
			if err != nil {
				return err
			}
			b, err := do(cmd.Context(), a, args[0])
			if err != nil {
				return err
			}
			vm := a.Projector.Project(b)
			w := cmd.OutOrStdout()
			if done, err := writeStructured(w, output, vm); done {
				return err
			}
			fmt.Fprintf(w, "Booking %s is now %s", b.ID, vm.Status)
			if b.Contract != nil && b.Contract.ContractCode != "" {
				fmt.Fprintf(w, " (contract %s)", b.Contract.ContractCode)
			}
			fmt.Fprintln(w)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "table, json or yaml")
	return cmd
}

func signingFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVar(target, "signing", string(domain.SigningSelfCA), "e-signature provider: VNPT or SELF_CA")
}

func parseSigning(v string) (domain.SigningOption, error) {
	option := domain.SigningOption(strings.ToUpper(strings.TrimSpace(v)))
	if !option.Valid() {
		return "", fmt.Errorf("unknown signing option %q (VNPT, SELF_CA)", v)
	}
	return option, nil
}

func lifecycleCmds(s *session) []*cobra.Command {
	var approveSigning, signSigning string

	approve := lifecycleCmd(s, "approve", "Approve a booking request (landlord)", func(ctx context.Context, a *app.App, id string) (domain.Booking, error) {
		option, err := parseSigning(approveSigning)
		if err != nil {
			return domain.Booking{}, err
		}
		return a.Bookings.ApproveBooking(ctx, id, option)
	})
	signingFlag(approve, &approveSigning)

	sign := lifecycleCmd(s, "sign", "Sign the booking's contract as the current user", func(ctx context.Context, a *app.App, id string) (domain.Booking, error) {
		option, err := parseSigning(signSigning)
		if err != nil {
			return domain.Booking{}, err
		}
		return a.Bookings.SignContract(ctx, id, option)
	})
	signingFlag(sign, &signSigning)

	return []*cobra.Command{
		approve,
		lifecycleCmd(s, "reject", "Reject a booking request (landlord)", func(ctx context.Context, a *app.App, id string) (domain.Booking, error) {
			return a.Bookings.RejectBooking(ctx, id)
		}),
		sign,
		lifecycleCmd(s, "handover", "Confirm the handover and activate the rental (landlord)", func(ctx context.Context, a *app.App, id string) (domain.Booking, error) {
			return a.Bookings.Handover(ctx, id)
		}),
		lifecycleCmd(s, "cancel", "Cancel a booking before the deposits are paid", func(ctx context.Context, a *app.App, id string) (domain.Booking, error) {
			return a.Bookings.CancelBooking(ctx, id)
		}),
		lifecycleCmd(s, "fund", "Record a deposit or rent payment (dev backend only)", func(ctx context.Context, a *app.App, id string) (domain.Booking, error) {
			return a.Bookings.DevFund(ctx, id)
		}),
		ContractFileCmd(s),
		EscrowCmd(s),
	}
}

func ContractFileCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "file <contractID>",
		Short: "Print the signed contract document links",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := s.open(cmd)
			if err != nil {
				return err
			}
			f, err := a.Bookings.ContractFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, f.FileURL)
			for _, ext := range f.ExtensionFileURLs {
				fmt.Fprintln(w, ext.FileURL)
			}
			return nil
		},
	}
}

func EscrowCmd(s *session) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "escrow <contractID>",
		Short: "Show the escrow deposits held for a contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validOutput(output); err != nil {
				return err
			}
			a, err := s.open(cmd)
			if err != nil {
				return err
			}
			bal, err := a.Bookings.EscrowBalance(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if done, err := writeStructured(w, output, bal); done {
				return err
			}
			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "Account:\t%s\n", orDash(bal.AccountID))
			fmt.Fprintf(tw, "Tenant:\t%s\n", formatAmount(bal.BalanceTenant.Float()))
			fmt.Fprintf(tw, "Landlord:\t%s\n", formatAmount(bal.BalanceLandlord.Float()))
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "table, json or yaml")
	return cmd
}
