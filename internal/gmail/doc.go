// Package gmail wraps the Gmail API for the mail facade.
//
// This package offers the operations the facade needs:
//   - Message listing with cursor pagination (single page and full walk)
//   - Full message retrieval
//   - Attachment body retrieval and base64 decoding
//   - Attachment descriptor resolution from message payloads
//
// Every remote call obtains a fresh service from a ServiceFactory, so a
// credential replaced in the store is picked up by the next call without
// any client-side caching or invalidation.
package gmail
