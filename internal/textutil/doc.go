// Package textutil provides text normalization helpers for object keys and
// display.
//
// Titles from public catalogs arrive with arbitrary punctuation, diacritics,
// and path separators. The helpers here fold them into ASCII tokens that are
// safe as storage key segments and filenames.
package textutil
