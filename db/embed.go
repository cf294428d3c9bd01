// Package db embeds the ledger schema.
package db

import _ "embed"

// Schema contains the DDL of the shipment ledger. Statements are idempotent.
//
//go:embed migrations/001_schema.sql
var Schema string
