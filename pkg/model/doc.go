// Package model holds the local side of the flake object model.
//
// # Property tables
//
// Every object keeps a live table and a pending shadow table in a
// PropertyStore. Writes follow a staged transaction:
//
//	Idle --BeginUpdate--> Staging --Stage xN--> Staging --TakePending--> Idle
//
// Staged values stay invisible to Get until the committer has applied the
// answer with ApplyResults.
//
// # Services
//
// A Service backs one object hosted by a peer. The connection forwards
// setPropertiesReq, getPropertiesReq and customMsgReceived indications to
// it. BaseService implements the interface with per-property handlers (On)
// and per-message handlers (OnMessage).
//
// # Tables
//
// Table is the result set of queryObjects: rows projected onto a column
// set, with equality restrictions and sorting. It travels in the
// OBJECT_TABLE property.
package model
