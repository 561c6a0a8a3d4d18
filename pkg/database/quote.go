package database

// Quote wraps a SQL identifier in double quotes so mixed-case names survive
// PostgreSQL's case folding. Embedded quotes are not escaped; identifiers
// come from constants, never from user input.
func Quote(ident string) string {
	return `"` + ident + `"`
}

// QualifiedName returns the quoted schema.table reference.
func QualifiedName(schema, table string) string {
	return Quote(schema) + "." + Quote(table)
}
