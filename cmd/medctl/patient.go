package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmerrifield20/MedRecordLedger/pkg/client"
)

var (
	patName       string
	patBloodType  string
	patReport     string
	patPhone      string
	patAttachment string
	patSeed       string
	patAddress    string
	patOpen       bool
)

var patientCmd = &cobra.Command{
	Use:   "patient",
	Short: "Create, update and read patient records",
}

var patientCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an encrypted patient record",
	Long: `create seals the record on the gateway and writes it to the ledger.
Keep the printed seed: it is needed to address the record again.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, attachment, err := patientInput()
		if err != nil {
			return err
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
		res, err := c.CreatePatient(ctx, wallet, data, attachment)
		if err != nil {
			return fmt.Errorf("create patient: %w", err)
		}
		printPatientResult("Patient record created", res)
		return nil
	},
}

var patientUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Replace the contents of a patient record",
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := patientRef()
		if err != nil {
			return err
		}
		data, attachment, err := patientInput()
		if err != nil {
			return err
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
		res, err := c.UpdatePatient(ctx, wallet, ref, data, attachment)
		if err != nil {
			return fmt.Errorf("update patient: %w", err)
		}
		printPatientResult("Patient record updated", res)
		return nil
	},
}

var patientGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Record an integrity-checked read of a patient record on the ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := patientRef()
		if err != nil {
			return err
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
		sig, err := c.ReadPatient(ctx, wallet, ref)
		if err != nil {
			return fmt.Errorf("read patient: %w", err)
		}
		fmt.Printf("✓ Read recorded\n\n  Signature: %s\n", sig)
		return nil
	},
}

var patientViewCmd = &cobra.Command{
	Use:   "view",
	Short: "Request a short-lived view link for a patient record",
	Long: `view asks the gateway for a view token. Only read authorities may
request one. With --open the record is fetched and printed immediately.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := patientRef()
		if err != nil {
			return err
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
		tok, err := c.RequestView(ctx, ref)
		if err != nil {
			return fmt.Errorf("request view: %w", err)
		}
		if !patOpen {
			fmt.Printf("✓ View link issued\n\n")
			fmt.Printf("  URL:     %s\n", tok.ViewURL)
			fmt.Printf("  Expires: %s\n", tok.ExpiresAt.Local().Format("2006-01-02 15:04:05"))
			return nil
		}
		view, err := c.View(ctx, tok.Token)
		if err != nil {
			return fmt.Errorf("open view: %w", err)
		}
		return printJSON(view)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{patientCreateCmd, patientUpdateCmd} {
		cmd.Flags().StringVar(&patName, "name", "", "patient name")
		cmd.Flags().StringVar(&patBloodType, "blood-type", "", "blood type")
		cmd.Flags().StringVar(&patReport, "report", "", "previous report")
		cmd.Flags().StringVar(&patPhone, "phone", "", "phone number")
		cmd.Flags().StringVar(&patAttachment, "attach", "", "file to pin to IPFS and reference from the record")
	}
	for _, cmd := range []*cobra.Command{patientUpdateCmd, patientGetCmd, patientViewCmd} {
		cmd.Flags().StringVar(&patSeed, "seed", "", "patient seed")
		cmd.Flags().StringVar(&patAddress, "address", "", "patient account address")
	}
	patientViewCmd.Flags().BoolVar(&patOpen, "open", false, "fetch and print the record")
	patientCmd.AddCommand(patientCreateCmd, patientUpdateCmd, patientGetCmd, patientViewCmd)
}

func patientInput() (client.PatientData, []byte, error) {
	data := client.PatientData{
		Name:           patName,
		BloodType:      patBloodType,
		PreviousReport: patReport,
		PhoneNumber:    patPhone,
	}
	if patAttachment == "" {
		return data, nil, nil
	}
	raw, err := os.ReadFile(patAttachment)
	if err != nil {
		return data, nil, fmt.Errorf("read attachment: %w", err)
	}
	return data, raw, nil
}

func patientRef() (client.PatientRef, error) {
	if patSeed == "" && patAddress == "" {
		return client.PatientRef{}, fmt.Errorf("one of --seed or --address is required")
	}
	return client.PatientRef{Seed: patSeed, Address: patAddress}, nil
}

func printPatientResult(title string, res *client.PatientResult) {
	fmt.Printf("✓ %s\n\n", title)
	fmt.Printf("  Address:   %s\n", res.PatientAddress)
	fmt.Printf("  Seed:      %s\n", res.PatientSeed)
	fmt.Printf("  Signature: %s\n", res.Signature)
}
