// Package ir defines the guest command model consumed by the display worker:
// draw commands and their images, surface commands, cursor commands, update
// requests and log messages.
//
// This package depends only on region; the worker, canvas, codec and
// harness packages all import it. It also provides the canonical JSON
// encoding used for journal details and content ids.
//
// Key constraints:
//   - Geometry uses region.Rect (half-open) throughout
//   - Every command carries the Handle the worker must hand back to the
//     command source once it no longer needs the command memory
//   - No floats in anything that is canonically encoded
package ir
