// Package history keeps a sqlite ledger of fetch runs so that runs can be
// listed, re-rendered and compared after the fact.
//
// The database is opened in WAL mode and its schema is applied from the
// embedded migrations on every Open:
//
//	runs      one row per run (id, source, timestamps, counts)
//	outcomes  one row per attempted entry, keyed by (run_id, position)
//
// Saving a run again replaces its outcomes, so a report can be stored
// more than once without duplicating rows.
//
// # Usage
//
//	store, err := history.Open("fwslurp.db")
//	defer store.Close()
//
//	err = store.Save(ctx, rep)
//	runs, err := store.List(ctx, 20)
//	latest, err := store.Latest(ctx)
package history
