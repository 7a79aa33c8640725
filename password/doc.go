// Package password hashes and verifies passwords with argon2id.
//
// Hashes are PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<key>
//
// [Argon2.NeedsUpgrade] reports hashes produced with weaker parameters so the
// caller can re-hash after the next successful login. [Pool] bounds how many
// hashes run at once and honours context cancellation while waiting.
//
// This package never stores passwords and never logs them.
package password
