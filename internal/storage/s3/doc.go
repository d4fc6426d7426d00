// Package s3 implements an S3-backed virtual filesystem: a path-style
// client provider, a random-access reader, a spill-file-backed writable
// file, and a filesystem façade exposing stat/list/rename/delete on top of
// S3's flat object namespace.
//
// Every operation reads Config once, via LoadConfig, the first time a
// client is constructed; later environment changes have no effect on a
// running process.
package s3
