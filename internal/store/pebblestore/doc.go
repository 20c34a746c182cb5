// Package pebblestore implements the backlog store on a Pebble key-value
// database. Each item lives under bl/item/{id} as a versioned record, and
// two secondary indexes are maintained inside the same commit batch: a
// claim-order index over ready items and a lease-expiry index over claimed
// items. A proposal is accepted by committing one Pebble batch, so the
// conditional-accept semantics hold across every item the batch touches.
package pebblestore
