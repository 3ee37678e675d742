// Package blobstore provides the storage abstraction used for table snapshot
// backups.
//
// Store is the interface for reading and writing whole blobs. Implementations
// must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: a directory on the local file system
//   - MemoryStore: in-memory, for tests
//   - minio.Store: MinIO and other S3-compatible services
//   - s3.Store: Amazon S3 with multipart uploads and CRC32C checksums
//
// # Custom Implementations
//
//	type Store interface {
//	    Open(ctx, name) (Blob, error)
//	    Create(ctx, name) (WritableBlob, error)
//	    Put(ctx, name, data) error
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
//
// Blobs are read with ReadAt or streamed with ReadRange; a snapshot restore
// streams the whole blob with ReadRange(ctx, 0, Size()).
package blobstore
