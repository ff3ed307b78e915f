// Package mail aggregates Gmail calls into the views the HTTP surface
// serves. It layers message listing, concurrent detail fetching,
// attachment resolution and the invoice projection on top of the raw
// Gmail client, without holding any state of its own.
package mail
