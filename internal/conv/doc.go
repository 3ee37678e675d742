// Package conv converts on-disk sizes and counts to Go ints with overflow
// checks. Counts read from table files are untrusted, so every size that
// reaches make or a remap goes through here.
package conv
