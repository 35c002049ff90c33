// Package dbmigrations exposes embedded SQL migrations for Sentinel binaries.
package dbmigrations

import "embed"

// Files contains the embedded SQL migrations bundled into Sentinel binaries.
//
//go:embed *.sql
var Files embed.FS
