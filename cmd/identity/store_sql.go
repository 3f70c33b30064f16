package identity

import (
	"strconv"
	"strings"
	"time"
)

// placeholder renders the n-th (1-based) bind parameter for a SQL dialect.
type placeholder func(n int) string

func pgPlaceholder(n int) string { return "$" + strconv.Itoa(n) }

func sqlitePlaceholder(int) string { return "?" }

// sqlWhere accumulates AND-ed conditions and their arguments.
type sqlWhere struct {
	ph    placeholder
	conds []string
	args  []any
}

func newWhere(ph placeholder) *sqlWhere { return &sqlWhere{ph: ph} }

// eq adds "col = <arg>".
func (w *sqlWhere) eq(col string, arg any) *sqlWhere {
	return w.cond(col+" = ", arg)
}

// cond adds prefix followed by the next placeholder.
func (w *sqlWhere) cond(prefix string, arg any) *sqlWhere {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, prefix+w.ph(len(w.args)))
	return w
}

// in adds "col IN (...)"; an empty list adds nothing.
func (w *sqlWhere) in(col string, vals []int64) *sqlWhere {
	if len(vals) == 0 {
		return w
	}
	ps := make([]string, 0, len(vals))
	for _, v := range vals {
		w.args = append(w.args, v)
		ps = append(ps, w.ph(len(w.args)))
	}
	w.conds = append(w.conds, col+" IN ("+strings.Join(ps, ", ")+")")
	return w
}

func (w *sqlWhere) String() string {
	if len(w.conds) == 0 {
		return "TRUE"
	}
	return strings.Join(w.conds, " AND ")
}

// lookupWhere renders the conditions of a LookupKey.
// ok is false when the key can never match (a cookie key without an account).
func lookupWhere(k LookupKey, ph placeholder) (w *sqlWhere, ok bool) {
	if k.RequiresAccount() && k.AccountID == nil {
		return nil, false
	}
	w = newWhere(ph).
		eq(ColType, int64(k.Type)).
		eq(ColFingerprint, k.Fingerprint).
		eq(ColIdentifier, k.Identifier)
	if k.RequiresAccount() {
		w.eq(ColAccountID, *k.AccountID)
	}
	if k.Status != 0 {
		w.eq(ColStatus, int64(k.Status))
	}
	return w, true
}

func criteriaWhere(c Criteria, ph placeholder) *sqlWhere {
	types := make([]int64, 0, len(c.Types))
	for _, t := range c.Types {
		types = append(types, int64(t))
	}
	statuses := make([]int64, 0, len(c.Statuses))
	for _, s := range c.Statuses {
		statuses = append(statuses, int64(s))
	}
	return newWhere(ph).
		eq(ColAccountID, c.AccountID).
		in(ColType, types).
		in(ColStatus, statuses)
}

// writableColumns is Columns without the store-assigned id.
func writableColumns() []string {
	out := make([]string, 0, len(Columns)-1)
	for _, c := range Columns {
		if c != ColID {
			out = append(out, c)
		}
	}
	return out
}

// insertSQL renders an INSERT of row into table. conv adapts values to the driver.
func insertSQL(table string, row Values, ph placeholder, conv func(any) any) (string, []any) {
	cols := writableColumns()
	ps := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		ps[i] = ph(i + 1)
		args[i] = conv(row[c])
	}
	q := `INSERT INTO ` + table + ` (` + strings.Join(cols, ", ") + `) VALUES (` + strings.Join(ps, ", ") + `)`
	return q, args
}

// updateSQL renders an UPDATE of every writable column keyed by id.
func updateSQL(table string, id int64, row Values, ph placeholder, conv func(any) any) (string, []any) {
	cols := writableColumns()
	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, c := range cols {
		args = append(args, conv(row[c]))
		sets[i] = c + " = " + ph(len(args))
	}
	args = append(args, id)
	q := `UPDATE ` + table + ` SET ` + strings.Join(sets, ", ") + ` WHERE id = ` + ph(len(args))
	return q, args
}

func selectColumns() string { return strings.Join(Columns, ", ") }

func identityValue(v any) any { return v }

// unixMicroValue stores timestamps as integer microseconds.
func unixMicroValue(v any) any {
	switch x := v.(type) {
	case time.Time:
		return x.UTC().UnixMicro()
	case *time.Time:
		if x == nil {
			return nil
		}
		return x.UTC().UnixMicro()
	}
	return v
}
