// Package rows decodes the Service's typed cell strings into domain
// values and provides the typed Row/Result views over a materialized or
// streaming partition source.
package rows

// RowType describes one result column: its name, the Service's type tag,
// and (for fixed-point numerics) the declared decimal scale.
type RowType struct {
	Name  string
	Type  string
	Scale int
}
