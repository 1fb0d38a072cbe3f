// Package client is the Go SDK for the medical-record ledger gateway.
//
// It implements the caller's half of the two-phase signing protocol: the
// gateway prepares (and, for authority changes, co-signs) a transaction, the
// caller signs the same message bytes with its wallet, and the gateway
// relays the result.
//
// # Logging in
//
//	c := client.MustNew("https://records.example.org")
//	if _, err := c.Login(ctx, wallet); err != nil {
//	    log.Fatal(err)
//	}
//
// # Creating a record
//
// CreatePatient prepares, signs and submits in one call. When the
// transaction's recent blockhash expires before it lands, the whole cycle
// is repeated with a fresh one:
//
//	rec, err := c.CreatePatient(ctx, wallet, client.PatientData{Name: "Jane"}, nil)
//	fmt.Println(rec.PatientAddress, rec.PatientSeed)
//
// # Viewing a record
//
// A read authority requests a short-lived view link, which anyone holding it
// can redeem until it expires:
//
//	tok, err := c.RequestView(ctx, client.PatientRef{Address: rec.PatientAddress})
//	data, err := c.View(ctx, tok.Token)
package client
