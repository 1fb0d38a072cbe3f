package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/jmerrifield20/MedRecordLedger/internal/txbuilder"
)

// ── keygen ───────────────────────────────────────────────────────────────────

var (
	keygenOut   string
	keygenForce bool
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a new wallet keypair",
	Long: `keygen writes a new ed25519 keypair in solana-keygen JSON format
(a 64-byte array) and prints its public key.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if keygenOut == "" {
			keygenOut = filepath.Join(configDir(), "id.json")
		}
		if _, err := os.Stat(keygenOut); err == nil && !keygenForce {
			return fmt.Errorf("%s already exists; pass --force to overwrite", keygenOut)
		}

		key, err := solana.NewRandomPrivateKey()
		if err != nil {
			return fmt.Errorf("generate keypair: %w", err)
		}
		raw := make([]int, len(key))
		for i, b := range key {
			raw[i] = int(b)
		}
		data, err := json.Marshal(raw)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(keygenOut), 0o700); err != nil {
			return fmt.Errorf("create %s: %w", filepath.Dir(keygenOut), err)
		}
		if err := os.WriteFile(keygenOut, data, 0o600); err != nil {
			return fmt.Errorf("write %s: %w", keygenOut, err)
		}

		fmt.Printf("✓ Keypair written to %s\n\n", keygenOut)
		fmt.Printf("  Public key: %s\n", key.PublicKey())
		return nil
	},
}

func init() {
	keygenCmd.Flags().StringVarP(&keygenOut, "outfile", "o", "", "output path (default ~/.medctl/id.json)")
	keygenCmd.Flags().BoolVar(&keygenForce, "force", false, "overwrite an existing file")
}

// ── pubkey ───────────────────────────────────────────────────────────────────

var pubkeyCmd = &cobra.Command{
	Use:   "pubkey [keypair.json]",
	Short: "Print the public key of a keypair file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			keypairPath = args[0]
		}
		wallet, err := loadWallet()
		if err != nil {
			return err
		}
		fmt.Println(wallet.PublicKey())
		return nil
	},
}

// ── pda ──────────────────────────────────────────────────────────────────────

var (
	pdaProgram   string
	pdaAuthority string
	pdaSeed      string
)

var pdaCmd = &cobra.Command{
	Use:   "pda",
	Short: "Derive the program account addresses",
	Long: `pda prints the Admin and History addresses for an authority and, when
--seed is given, the Patient address derived from that seed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		programID, err := solana.PublicKeyFromBase58(pdaProgram)
		if err != nil {
			return fmt.Errorf("invalid --program: %w", err)
		}
		authority, err := solana.PublicKeyFromBase58(pdaAuthority)
		if err != nil {
			return fmt.Errorf("invalid --authority: %w", err)
		}
		b, err := txbuilder.New(programID, authority)
		if err != nil {
			return err
		}
		fmt.Printf("Admin:   %s\n", b.AdminAddress())
		fmt.Printf("History: %s\n", b.HistoryAddress())
		if pdaSeed != "" {
			seed, err := solana.PublicKeyFromBase58(pdaSeed)
			if err != nil {
				return fmt.Errorf("invalid --seed: %w", err)
			}
			addr, err := b.PatientAddress(seed)
			if err != nil {
				return err
			}
			fmt.Printf("Patient: %s\n", addr)
		}
		return nil
	},
}

func init() {
	pdaCmd.Flags().StringVar(&pdaProgram, "program", "", "records program ID")
	pdaCmd.Flags().StringVar(&pdaAuthority, "authority", "", "service authority public key")
	pdaCmd.Flags().StringVar(&pdaSeed, "seed", "", "patient seed public key")
	_ = pdaCmd.MarkFlagRequired("program")
	_ = pdaCmd.MarkFlagRequired("authority")
}
