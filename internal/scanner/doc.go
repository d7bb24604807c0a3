// Package scanner holds the shared domain types of the point-scan engine.
//
// Responsibilities: scan points, surface categories, encoded records and
// the interfaces of the external collaborators (scene raycaster, visual
// target renderer, trigger input).
// Key types: ScanPoint, Hit, Record, Frame.
//
// Dependency rule: subpackages (sampling, pointbuf, routing, encoding,
// control) may depend on this package, never the reverse.
package scanner
