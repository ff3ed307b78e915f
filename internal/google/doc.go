// Package google handles OAuth authentication against Google and
// builds authorized Gmail services from stored per-user credentials.
package google
