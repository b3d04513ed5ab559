// Package digest provides the one-way digests used to store refresh tokens
// at rest. Plain token values never touch the database: only their digest is
// persisted, so a leaked token table cannot be replayed.
//
// When PARLEY_TOKEN_HMAC_KEY is configured the digest is keyed (HMAC-SHA256),
// which additionally protects against offline matching if both the database
// and a captured token leak through different channels. Without the key the
// package falls back to plain SHA-256 for development setups.
package digest
