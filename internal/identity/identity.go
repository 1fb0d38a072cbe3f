// Package identity authenticates wallets.
//
// It provides:
//   - VerifyLogin:   checks an Ed25519 signature over a timestamped challenge
//   - SessionIssuer: issues and verifies HS256 session JWTs bound to a wallet
//   - RequireWallet: Gin middleware enforcing a Bearer session token
package identity
