// Package connection implements the peer side of flake.
//
// A Connection runs over one transport.Wire. It performs the connect and
// authentication handshake with the router, issues requests through an
// interaction.Requester, hosts local services and hands out Object
// proxies for remote objects.
//
// # Goroutines
//
// Every Connection has exactly one reader goroutine. Confirmations, object
// subscriptions and broadcasts are delivered on it, so callbacks must not
// block on a blocking request over the same connection. Indications for
// hosted services run on a bounded worker pool instead (at most
// interaction.MaxPendingIndications at a time); when the pool is full the
// indication is answered with wire.StatusPending.
//
// # Reconnection
//
// Manager keeps a connection up: when the wire drops it redials with
// exponential backoff and jitter,
//
//	delay = min(Initial * Multiplier^n, Max) + random(0, delay*Jitter)
//
// and resets the backoff after a successful handshake.
package connection
