// Package interaction correlates flake requests with their confirmations
// and carries indications to their handlers.
//
// Three message shapes flow over a wire:
//
//   - Requests go out through a Requester, which stamps each with a token
//     that is unique among the requester's outstanding requests.
//   - Confirmations come back carrying the same token; the reader goroutine
//     hands them to Requester.Resolve.
//   - Indications arrive unsolicited or as the request half of a
//     request/indication/confirmation cycle. Each one that expects an answer
//     must be acknowledged exactly once with Indication.Ack.
//
// # Requester Usage
//
//	r := interaction.NewRequester(conn, interaction.DefaultTimeout)
//
//	// Blocking: occupies one of MaxPendingSyncRequests slots.
//	conf, err := r.Do(ctx, frame)
//
//	// Non-blocking: occupies one of MaxPendingAsyncRequests slots.
//	err = r.Go(frame, func(c *interaction.Confirmation) { ... })
//
//	// In the read loop:
//	if f.Type.IsConfirmation() {
//	    r.Resolve(f)
//	}
//
// When every slot of a kind is taken the call fails at once with
// wire.StatusPending. A request that times out frees its token and
// returns wire.StatusTimeout; a confirmation arriving later is dropped.
// When the wire goes away FailAll resolves everything still waiting.
package interaction
