// Package accounts provides AccountDirectory implementations and the
// PostgreSQL audit sink.
//
// [PostgresDirectory] is the production directory over the accounts table;
// [MemoryDirectory] backs tests and the development server.
package accounts
