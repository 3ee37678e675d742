// Package s3 stores table snapshots in Amazon S3.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("bmapdb/"),
//	    s3.WithRegion("us-east-1"),
//	)
//	err = db.Backup(ctx, store)
//
// # Features
//
//   - Range reads for restores and partial fetches
//   - Multipart streaming uploads for large snapshots
//   - CRC32C integrity checksums on upload
//   - Automatic pagination for listing
//
// Any type implementing Client can stand in for the SDK client, which is how
// the unit tests run without AWS.
package s3
