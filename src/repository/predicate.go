package repository

// Predicate is a single column comparison. Predicates passed to Filter are
// combined with AND.
type Predicate struct {
	Column string
	Value  any
	op     string
}

func Eq(column string, value any) Predicate  { return Predicate{Column: column, Value: value, op: "="} }
func Ne(column string, value any) Predicate  { return Predicate{Column: column, Value: value, op: "<>"} }
func Gt(column string, value any) Predicate  { return Predicate{Column: column, Value: value, op: ">"} }
func Gte(column string, value any) Predicate { return Predicate{Column: column, Value: value, op: ">="} }
func Lt(column string, value any) Predicate  { return Predicate{Column: column, Value: value, op: "<"} }
func Lte(column string, value any) Predicate { return Predicate{Column: column, Value: value, op: "<="} }

// Like matches with SQL LIKE; the caller supplies the wildcards.
func Like(column string, pattern string) Predicate {
	return Predicate{Column: column, Value: pattern, op: "LIKE"}
}
