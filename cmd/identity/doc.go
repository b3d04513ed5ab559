// Package identity is the credential store: canonical user records with
// password hashes, account status, second-factor state, and presence
// metadata.
//
// Everything else in the session core references users only through this
// package. Account status gates both issuance and revalidation: a suspended
// or banned user can neither log in nor keep using previously minted access
// tokens, which re-check status on every use.
package identity
