// Package auth issues and validates the HS256 bearer tokens used by the
// API and hashes account passwords with bcrypt.
package auth
