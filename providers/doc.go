// Package providers holds the OAuth2 plumbing and error classification shared
// by the mailbox and calendar provider clients in its subpackages.
package providers
