// Package stores persists provider journals and processor executions in
// SQLite. The schema is embedded and applied with golang-migrate; WAL mode
// lets the journal observer and running executions write concurrently.
package stores
