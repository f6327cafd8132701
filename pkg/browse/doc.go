// Package browse owns the view of the catalog: which entries are visible,
// whether a fetch is outstanding, and which category filter is active.
//
// Two fetch lineages feed the view. The limit lineage lists the first N
// entries of the unfiltered catalog and refetches whenever N grows. The
// category lineage lists every member of the selected category and
// refetches whenever the selection changes to a non-empty value. A third,
// one-shot fetch loads the category list at startup.
//
// # Freshness
//
// Every fetch carries the sequence token its lineage handed out when it was
// issued. A completion whose token is no longer current is superseded and
// dropped without touching the view or the loading flag. Completions that
// are current stop their lineage's loading flag; they replace the visible
// entries only when
//
//   - the request was issued while no category was selected (limit lineage),
//   - and no result from a later input change is already visible.
//
// The second rule orders the two lineages against each other: every input
// change advances a generation counter and the view remembers the generation
// of the entries it shows. A limit result issued before a category was
// picked is shadowed when it lands after that category's result, even though
// its own lineage is still current.
//
// Clearing the category does not fetch. The entries of the last category
// stay visible until the limit changes.
//
// # Runtime
//
// State is a pure reducer with no goroutines or I/O. Orchestrator runs one
// goroutine that owns a State, applies intents and completions in arrival
// order, and runs fetches in their own goroutines. Readers get immutable
// Snapshots through Snapshot or Subscribe.
//
// Failures go to a Reporter and are otherwise ignored: the view stays as it
// was and the lineage stops loading.
package browse
