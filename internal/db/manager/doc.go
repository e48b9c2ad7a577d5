// Package manager provides table lifecycle operations for bulk loads.
//
// A replace-mode load creates a staging table, fills it from every partition,
// and then Promote swaps it in for the target inside one transaction:
//
//	BEGIN;
//	DROP TABLE IF EXISTS "sales"."orders";
//	ALTER TABLE "sales"."orders4f1c..." RENAME TO "orders";
//	COMMIT;
//
// If any statement fails the transaction is rolled back, which leaves the
// original target untouched; dropping the staging table is then the
// caller's decision.
//
// All identifiers are quoted with pgx.Identifier.Sanitize().
package manager
