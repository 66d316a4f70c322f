// Package filesystem provides the blob filesystem primitives the engine
// serves media from: stat/open with retry for stale NFS handles, recursive
// directory creation, and temp-write-then-rename so readers never observe a
// partially written file.
package filesystem
