// Package server implements the HTTP surface of the mail facade.
//
// It exposes:
//   - /auth/google and /auth/google/callback for the OAuth login flow
//   - /mail/{userId}/... for messages, attachments and invoices
//   - /healthz, /readyz and /healthz/detailed for Kubernetes probes
//   - a dedicated metrics server for Prometheus scraping
//
// Mail routes sit behind a credential guard: a request for a user
// without a stored credential is rejected with 401 before any remote
// call is made.
package server
