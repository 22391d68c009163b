// Package auth implements the connect-time authentication handshake.
//
// A router that requires authentication answers connect with
// StatusUnauthorized and an AUTH_TYPE property. The peer then sends an
// auth request built by its Sink:
//
//   - AuthSignature: the router's challenge carries SIGN_ALGO and a random
//     nonce in SIGN_HASH. The peer answers with the nonce and an HMAC over
//     it in SIGNATURE, keyed by HKDF from a shared secret.
//   - AuthInteractive: the peer supplies AUTH_USER and AUTH_PASS.
//
// The same Sink interface serves both ends; a router calls the *Requested
// and *ResponseReceived methods, a peer the *Received and OnConnect ones.
package auth
