// Package venue maps free-text venue names to canonical venue records.
//
// The authoritative Table is a human-curated YAML document (an embedded default
// ships with the binary) keyed by city. A Resolver looks a name up in the hinted
// city's table, first exactly, then in normalized form, then in the run-scoped
// Cache, and finally in the other cities' tables. A hit in another city, or a
// foreign city's name in the venue or address text, marks the record as
// cross-city contaminated. Unknown venues get a minimal record built from the
// raw text; a street address is only attached when the source supplied one.
//
// The Cache only ever grows during a run and is never written back to the
// table. Its entries can be exported as YAML for human review.
package venue
