package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/jmerrifield20/MedRecordLedger/pkg/client"
)

// ── login ────────────────────────────────────────────────────────────────────

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign the login challenge and cache a session token",
	RunE: func(cmd *cobra.Command, args []string) error {
		wallet, err := loadWallet()
		if err != nil {
			return err
		}
		c, err := anonymousClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()

		sess, err := c.Login(ctx, wallet)
		if err != nil {
			return fmt.Errorf("login: %w", err)
		}
		saveSession(sess)

		fmt.Printf("✓ Logged in as %s\n", sess.PublicKey)
		fmt.Printf("  Session expires %s\n", sess.ExpiresAt.Local().Format("2006-01-02 15:04:05"))
		return nil
	},
}

// ── init ─────────────────────────────────────────────────────────────────────

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the Admin and History accounts",
	Long: `init prepares the one-time initialize transaction. The gateway co-signs
as the service authority; your wallet pays the fees and must be listed as an
operator in the gateway config.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		wallet, err := loadWallet()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()
		c, err := sessionClient(ctx, wallet)
		if err != nil {
			return err
		}
		sig, err := c.Initialize(ctx, wallet)
		if err != nil {
			return fmt.Errorf("initialize: %w", err)
		}
		fmt.Printf("✓ Ledger initialized\n\n  Signature: %s\n", sig)
		return nil
	},
}

// ── authority ────────────────────────────────────────────────────────────────

var (
	authRead  bool
	authWrite bool
)

var authorityCmd = &cobra.Command{
	Use:   "authority",
	Short: "Manage and inspect read and write authorities",
}

var authorityAddCmd = &cobra.Command{
	Use:   "add <wallet>",
	Short: "Grant a wallet read or write access",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		op, err := authorityOp(true)
		if err != nil {
			return err
		}
		return changeAuthority(op, args[0])
	},
}

var authorityRemoveCmd = &cobra.Command{
	Use:   "remove <wallet>",
	Short: "Revoke a wallet's read or write access",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		op, err := authorityOp(false)
		if err != nil {
			return err
		}
		return changeAuthority(op, args[0])
	},
}

var authorityListCmd = &cobra.Command{
	Use:   "list",
	Short: "List current read and write authorities",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()
		c, err := walletSession(ctx)
		if err != nil {
			return err
		}
		a, err := c.Authorities(ctx)
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(a)
		}

		fmt.Printf("Admin:     %s\n", a.Address)
		fmt.Printf("Authority: %s\n\n", a.Authority)
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ACCESS\tWALLET")
		for _, k := range a.ReadAuthorities {
			fmt.Fprintf(w, "read\t%s\n", k)
		}
		for _, k := range a.WriteAuthorities {
			fmt.Fprintf(w, "write\t%s\n", k)
		}
		return w.Flush()
	},
}

var authorityHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the authority change log, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()
		c, err := walletSession(ctx)
		if err != nil {
			return err
		}
		h, err := c.History(ctx)
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(h)
		}
		if len(h.Entries) == 0 {
			fmt.Println("No authority changes recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tCHANGE\tACCESS\tWALLET\tBY")
		for _, e := range h.Entries {
			change, access := "removed", "write"
			if e.Added {
				change = "added"
			}
			if e.IsRead {
				access = "read"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				e.Timestamp.Local().Format("2006-01-02 15:04:05"), change, access, e.Authority, e.Admin)
		}
		return w.Flush()
	},
}

var outputJSON bool

func init() {
	for _, cmd := range []*cobra.Command{authorityAddCmd, authorityRemoveCmd} {
		cmd.Flags().BoolVar(&authRead, "read", false, "change read access")
		cmd.Flags().BoolVar(&authWrite, "write", false, "change write access")
		cmd.MarkFlagsOneRequired("read", "write")
		cmd.MarkFlagsMutuallyExclusive("read", "write")
	}
	for _, cmd := range []*cobra.Command{authorityListCmd, authorityHistoryCmd} {
		cmd.Flags().BoolVar(&outputJSON, "json", false, "print raw JSON")
	}
	authorityCmd.AddCommand(authorityAddCmd, authorityRemoveCmd, authorityListCmd, authorityHistoryCmd)
}

func authorityOp(add bool) (string, error) {
	switch {
	case add && authRead:
		return client.AddReadAuthority, nil
	case add && authWrite:
		return client.AddWriteAuthority, nil
	case authRead:
		return client.RemoveReadAuthority, nil
	case authWrite:
		return client.RemoveWriteAuthority, nil
	}
	return "", fmt.Errorf("one of --read or --write is required")
}

func changeAuthority(op, target string) error {
	targetKey, err := solana.PublicKeyFromBase58(target)
	if err != nil {
		return fmt.Errorf("invalid wallet %q: %w", target, err)
	}
	wallet, err := loadWallet()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext()
	defer cancel()
	c, err := sessionClient(ctx, wallet)
	if err != nil {
		return err
	}
	sig, err := c.ChangeAuthority(ctx, wallet, op, targetKey)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	fmt.Printf("✓ %s %s\n\n  Signature: %s\n", op, targetKey, sig)
	return nil
}
