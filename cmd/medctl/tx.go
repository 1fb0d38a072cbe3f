package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/jmerrifield20/MedRecordLedger/internal/chain"
	"github.com/jmerrifield20/MedRecordLedger/internal/program"
	"github.com/jmerrifield20/MedRecordLedger/pkg/client"
)

var txCmd = &cobra.Command{
	Use:   "tx",
	Short: "Inspect and sign serialized transactions offline",
}

var txInspectCmd = &cobra.Command{
	Use:   "inspect [base64-tx|-]",
	Short: "Decode a serialized transaction",
	Long: `inspect prints the fee payer, anchor, signature slots and decoded
instructions of a base64 transaction. Reads stdin when the argument is "-"
or omitted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		encoded, err := txArg(args, cmd.InOrStdin())
		if err != nil {
			return err
		}
		tx, err := chain.DecodeTransaction(encoded)
		if err != nil {
			return err
		}
		return describeTransaction(cmd.OutOrStdout(), tx)
	},
}

var txSignCmd = &cobra.Command{
	Use:   "sign [base64-tx|-]",
	Short: "Add your signature to a serialized transaction",
	Long: `sign adds the keypair's signature to its slot and prints the result.
Other signatures and the message are left untouched.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		encoded, err := txArg(args, cmd.InOrStdin())
		if err != nil {
			return err
		}
		wallet, err := loadWallet()
		if err != nil {
			return err
		}
		signed, err := client.Sign(encoded, wallet)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), signed)
		return nil
	},
}

func init() {
	txCmd.AddCommand(txInspectCmd, txSignCmd)
}

func txArg(args []string, stdin io.Reader) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return strings.TrimSpace(args[0]), nil
	}
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read transaction from stdin: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("no transaction given")
	}
	return line, nil
}

func describeTransaction(out io.Writer, tx *solana.Transaction) error {
	signers := chain.RequiredSigners(tx)
	fmt.Fprintf(out, "Blockhash: %s\n", tx.Message.RecentBlockhash)
	if len(signers) > 0 {
		fmt.Fprintf(out, "Fee payer: %s\n", signers[0])
	}

	fmt.Fprintln(out, "\nSignatures:")
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for i, s := range signers {
		state := "missing"
		if i < len(tx.Signatures) && tx.Signatures[i] != (solana.Signature{}) {
			state = "present"
		}
		fmt.Fprintf(w, "  %d\t%s\t%s\n", i, s, state)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	switch err := chain.VerifySignatures(tx); err.(type) {
	case nil:
		fmt.Fprintln(out, "  all signatures valid")
	case *chain.MissingSignatureError:
	default:
		fmt.Fprintf(out, "  invalid: %v\n", err)
	}

	ixs, err := chain.Decompile(tx)
	if err != nil {
		return err
	}
	for i, ix := range ixs {
		name, args, err := program.DecodeInstruction(ix.Data)
		if err != nil {
			name = "unknown"
		}
		fmt.Fprintf(out, "\nInstruction %d: %s\n", i, name)
		fmt.Fprintf(out, "  Program: %s\n", ix.ProgramID)
		if len(args) > 0 {
			fmt.Fprintf(out, "  Args:    %d bytes\n", len(args))
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		for _, m := range ix.Accounts {
			flags := make([]string, 0, 2)
			if m.IsSigner {
				flags = append(flags, "signer")
			}
			if m.IsWritable {
				flags = append(flags, "writable")
			}
			fmt.Fprintf(w, "  %s\t%s\n", m.PublicKey, strings.Join(flags, ","))
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}
	return nil
}
