// Package webhooks turns provider change notifications into webhook
// triggered syncs.
//
// Microsoft Graph subscriptions and Google Calendar watch channels both carry
// an opaque value chosen at subscription time. It is a signed channel token
// naming the connection, so a notification proves which connection changed
// without a subscription table.
//
// Delivery processing is driven by a claim lifecycle:
// pending/retry_ready -> processing -> processed|dead.
// Transient failures stay retryable instead of being deduped as processed.
package webhooks
