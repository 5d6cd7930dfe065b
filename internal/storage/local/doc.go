// Package local implements file-backed stores: CSV tables for links and
// products, and a directory-backed blob store for run archives.
package local
