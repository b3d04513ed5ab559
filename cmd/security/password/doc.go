// Package password hashes and verifies account passwords with Argon2id.
//
// Hashes use a PHC-style encoded string so parameters travel with the hash
// and can be strengthened over time without invalidating stored credentials.
// Verification treats the encoded hash as untrusted input: it is parsed
// strictly and refuses parameters far above the configured cost, so an
// attacker-controlled hash string cannot drive pathological resource usage.
package password
