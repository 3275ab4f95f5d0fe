// Package notifier delivers verdict messages to the single configured chat.
//
// # Transport
//
// Delivery is delegated to a transport.Sender (the Telegram adapter in
// production). One call sends one message; there is no queue and no retry, the
// poll loop decides what happens after a failure.
//
// # History
//
// For debugging and operator visibility, the notifier keeps a small in-memory
// history of recently sent messages.
package notifier
