// Package subscription keeps the router's broadcast groups and coalesces
// changed notifications.
//
// # Groups
//
// Every object has a broadcast address. Peers join it with joinGroup and
// receive the object's changed, destroyed and custom broadcasts until
// they leave or disconnect. Groups tracks members per group address.
//
// # Coalescing
//
// With a minimum interval configured, changes of one object are collected
// for that interval after the first change and sent as a single changed
// broadcast carrying the final values. The window starts with the first
// change after the previous broadcast.
//
// # Bounce-Back Suppression
//
// If a property changes and returns to its last broadcast value within the
// window, it is left out. A window whose changes all bounced back sends
// nothing.
package subscription
