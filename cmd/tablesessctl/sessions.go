package main

import (
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
)

var countCmd = &cobra.Command{
	Use:   "count",
	Short: "Print the number of stored sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		n, err := e.store.Count(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), n)
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get <sid>",
	Short: "Print a session as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		sess, err := e.store.Load(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if sess == nil {
			return fmt.Errorf("session %q not found", args[0])
		}

		out, err := sonic.ConfigStd.MarshalIndent(sess, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <sid>...",
	Short: "Delete sessions",
	Long:  `Delete removes each named session. Failures are logged, not returned.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		for _, sid := range args {
			e.store.Delete(cmd.Context(), sid)
		}
		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete expired sessions once",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		res, err := e.store.ClearExpired(cmd.Context())
		fmt.Fprintf(cmd.OutOrStdout(), "scanned=%d deleted=%d skipped=%d failed=%d\n",
			res.Scanned, res.Deleted, len(res.Skipped), len(res.Failures))
		return err
	},
}

func init() {
	sweepCmd.Flags().String("policy", "", "Expiry policy for this run: double_grace or at_deadline")
	rootCmd.AddCommand(countCmd, getCmd, deleteCmd, sweepCmd)
}
