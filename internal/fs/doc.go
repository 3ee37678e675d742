// Package fs provides filesystem abstractions for testability and fault injection.
//
// The package defines two key interfaces:
//
//   - [File]: an open backing file that can be truncated and mapped
//   - [FileSystem]: filesystem operations (open, remove, rename, etc.)
//
// # Implementations
//
//   - [LocalFS]: production implementation using the os package
//   - [FaultyFS]: test utility that injects open, truncate, sync, close and
//     write failures for files matching a name pattern
//
// # Usage
//
//	file, err := fs.Default.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
//
// Tests inject [FaultyFS] to drive tables into the crashed state:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule(".SAI", fs.Fault{FailOnTruncate: true})
//
// Operations take no context.Context: they are local syscalls that cannot be
// interrupted.
package fs
