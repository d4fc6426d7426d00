// Package adapter provides the lifecycle wrapper a host framework
// constructs once per mounted s3:// URI: parse the URI, build the
// retrying filesystem façade, and expose Start/Stop so the host can tie
// the façade's lifetime to its own mount lifecycle.
//
// The adapter does not mount anything itself — FUSE, SMB, and NFS mount
// handling belong to the host framework and are out of scope here.
package adapter
