// Package parser turns XenForo listing and thread pages into crawl records.
//
// Both parsers are heuristic: they key on the structural class names the
// forum theme renders. A page missing those markers yields zero results
// rather than an error, so a layout change degrades to silence, not a crash.
// Callers that want to tell "nothing new" from "layout changed" use the
// *Checked variants, which report forum.ErrMalformedDocument.
package parser
