package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmerrifield20/MedRecordLedger/internal/keys"
	"github.com/jmerrifield20/MedRecordLedger/pkg/client"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var (
	gatewayURL  string
	cfgFile     string
	keypairPath string
	programFlag string
	timeout     time.Duration
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "medctl",
	Short: "Medical record ledger wallet CLI",
	Long: `medctl talks to a medical record ledger gateway on behalf of a wallet.

It logs in with a signed challenge, prepares transactions on the gateway,
signs them locally with your keypair and submits them back. Your secret key
never leaves this machine.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			viper.AddConfigPath(configDir())
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.SetEnvPrefix("MEDCTL")
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if gatewayURL == "" {
			gatewayURL = viper.GetString("gateway_url")
		}
		if gatewayURL == "" {
			gatewayURL = "http://localhost:8080"
		}
		if keypairPath == "" {
			keypairPath = viper.GetString("keypair")
		}
		if programFlag == "" {
			programFlag = viper.GetString("program_id")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.medctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&gatewayURL, "gateway", "", "gateway base URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVarP(&keypairPath, "keypair", "k", "", "path to a solana-keygen JSON keypair")
	rootCmd.PersistentFlags().StringVar(&programFlag, "program-id", "", "refuse prepared transactions for any other program")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall timeout for gateway calls")

	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(pubkeyCmd)
	rootCmd.AddCommand(pdaCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(authorityCmd)
	rootCmd.AddCommand(patientCmd)
	rootCmd.AddCommand(txCmd)
	rootCmd.AddCommand(versionCmd)
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the medctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("medctl %s\n", version)
	},
}

// ── helpers ──────────────────────────────────────────────────────────────────

func configDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".medctl")
}

func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

// loadWallet reads the configured keypair.
func loadWallet() (solana.PrivateKey, error) {
	if keypairPath == "" {
		return nil, fmt.Errorf("no keypair configured: pass --keypair or set keypair in %s", filepath.Join(configDir(), "config.yaml"))
	}
	return keys.LoadServiceKey(keypairPath, "")
}

// clientOptions returns the options shared by every gateway client.
func clientOptions(extra ...client.Option) ([]client.Option, error) {
	if programFlag == "" {
		return extra, nil
	}
	id, err := solana.PublicKeyFromBase58(programFlag)
	if err != nil {
		return nil, fmt.Errorf("invalid --program-id: %w", err)
	}
	return append(extra, client.WithProgramID(id)), nil
}

// anonymousClient returns a client without a session.
func anonymousClient() (*client.Client, error) {
	return newClient("")
}

func newClient(token string) (*client.Client, error) {
	var extra []client.Option
	if token != "" {
		extra = append(extra, client.WithBearerToken(token))
	}
	opts, err := clientOptions(extra...)
	if err != nil {
		return nil, err
	}
	return client.New(gatewayURL, opts...)
}

// sessionClient returns a client holding a session for wallet. A cached
// token is reused when it belongs to wallet, otherwise a fresh login is made.
func sessionClient(ctx context.Context, wallet solana.PrivateKey) (*client.Client, error) {
	if tok := viper.GetString("token"); tok != "" && viper.GetString("token_wallet") == wallet.PublicKey().String() {
		if exp := viper.GetTime("token_expires_at"); exp.IsZero() || time.Now().Before(exp) {
			return newClient(tok)
		}
	}
	c, err := anonymousClient()
	if err != nil {
		return nil, err
	}
	sess, err := c.Login(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	saveSession(sess)
	return c, nil
}

// walletSession loads the configured keypair and returns a session client
// for it.
func walletSession(ctx context.Context) (*client.Client, error) {
	wallet, err := loadWallet()
	if err != nil {
		return nil, err
	}
	return sessionClient(ctx, wallet)
}

// saveSession caches a session token in the config file. Failures are
// reported but not fatal.
func saveSession(sess *client.Session) {
	viper.Set("token", sess.Token)
	viper.Set("token_wallet", sess.PublicKey)
	viper.Set("token_expires_at", sess.ExpiresAt)
	if viper.GetString("gateway_url") == "" {
		viper.Set("gateway_url", gatewayURL)
	}

	path := viper.ConfigFileUsed()
	if path == "" {
		if err := os.MkdirAll(configDir(), 0o700); err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not create %s: %v\n", configDir(), err)
			return
		}
		path = filepath.Join(configDir(), "config.yaml")
	}
	if err := viper.WriteConfigAs(path); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not save session: %v\n", err)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
