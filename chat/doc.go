// Package chat multiplexes live connections to Twitch chat across any number
// of (account, channel) pairs.
//
// The Manager owns the registry: the first Subscribe or SubscribeAdmin for a
// pair creates the connection, later subscriptions share it, and removing the
// last subscriber of both kinds tears it down. Inbound messages run the admin
// callbacks first, in registration order, any of which may veto; surviving
// messages then reach every message callback. Callbacks are isolated from
// each other, so one panicking subscriber doesn't silence the rest.
//
// The Supervisor is a companion loop that reconnects dropped transports and
// re-joins channels that the service silently dropped us from, with bounded
// waits so a single dead connection can't starve the others.
//
// Outbound sends (chat messages, bans, shout-outs) go through the transport's
// built-in throttle; callers don't rate limit on top of it.
package chat
