// Package sqldocs exposes the canonical snapshot-table DDL bundles directly
// from the docs tree.
package sqldocs

import _ "embed"

// SQLite contains the snapshot-table DDL executed by the SQLite driver.
//
//go:embed sqlite.sql
var SQLite string

// Postgres contains the snapshot-table DDL executed by the Postgres driver.
//
//go:embed postgres.sql
var Postgres string
