// Package sqlite persists scan sessions and the buffers they retire.
//
// Buffers are write-once: a row is inserted when a channel rotates and is
// never updated afterwards. Points are stored as a JSON array of [x, y, z]
// triples in world space; the anchor is stored alongside so a frame can be
// re-encoded exactly as it was last published.
package sqlite
