// Package listgrab extracts repeated list-like content from arbitrary,
// dynamically-loading web pages without a site-specific scraper.
//
// Given a seed element on a rendered page it infers the repeating list
// containing that element, drives the page through progressive loading
// (infinite scroll and "load more" buttons) while re-identifying list
// members across DOM mutations, and extracts deduplicated field records.
//
// This package contains domain types, interfaces and the pure fingerprint
// logic, following Ben Johnson's Standard Package Layout. Implementations
// live in subdirectories named after their primary dependency (e.g., rod/,
// goquery/, sqlite/).
package listgrab
