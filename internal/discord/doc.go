// Package discord owns the bot-side Discord integration.
//
// A Session wraps one gateway+REST client for one bot token. Sessions are
// created lazily by the Manager when a dashboard request presents a token,
// cached for reuse, and torn down on logout. All REST calls funnel through a
// process-wide rate limiter so dashboard traffic cannot exhaust the remote
// API budget.
//
// The rest of the repo consumes Sessions through narrow interfaces declared
// at the point of use (member listing, DM sending, ...), so services can be
// tested against fakes without a live gateway.
package discord
