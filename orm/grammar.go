package orm

import (
	"fmt"
	"strconv"
	"strings"
)

// All statements use "?" placeholders; exec rebinds them per driver.

func (q *query) whereClause(b *strings.Builder) {
	if len(q.wheres) == 0 {
		return
	}
	b.WriteString(" where ")
	b.WriteString(strings.Join(q.wheres, " and "))
}

func (q *query) compileSelect() (string, []any) {
	var b strings.Builder
	b.WriteString("select ")
	if len(q.columns) == 0 {
		b.WriteString("*")
	} else {
		b.WriteString(strings.Join(q.columns, ", "))
	}
	b.WriteString(" from ")
	b.WriteString(q.table)
	q.whereClause(&b)
	if len(q.orders) > 0 {
		b.WriteString(" order by ")
		b.WriteString(strings.Join(q.orders, ", "))
	}
	if q.limit > 0 {
		b.WriteString(" limit ")
		b.WriteString(strconv.Itoa(q.limit))
	}
	return b.String(), q.bindings
}

func (q *query) compileCount() (string, []any) {
	var b strings.Builder
	b.WriteString("select count(*) as aggregate from ")
	b.WriteString(q.table)
	q.whereClause(&b)
	return b.String(), q.bindings
}

func (q *query) compileInsert(attrs Attrs, driver string) (string, []any, error) {
	cols := attrs.sortedKeys()
	if len(cols) == 0 {
		if driver == "mysql" {
			return "insert into " + q.table + " () values ()", nil, nil
		}
		return "insert into " + q.table + " default values", nil, nil
	}
	args := make([]any, 0, len(cols))
	for _, c := range cols {
		if !validIdent(c) {
			return "", nil, fmt.Errorf("%w: %q", ErrInvalidIdentifier, c)
		}
		args = append(args, attrs[c])
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	s := "insert into " + q.table + " (" + strings.Join(cols, ", ") + ") values (" + marks + ")"
	return s, args, nil
}

// compileUpdate puts set bindings ahead of where bindings.
func (q *query) compileUpdate(attrs Attrs) (string, []any, error) {
	cols := attrs.sortedKeys()
	sets := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols)+len(q.bindings))
	for _, c := range cols {
		if !validIdent(c) {
			return "", nil, fmt.Errorf("%w: %q", ErrInvalidIdentifier, c)
		}
		sets = append(sets, c+" = ?")
		args = append(args, attrs[c])
	}
	var b strings.Builder
	b.WriteString("update ")
	b.WriteString(q.table)
	b.WriteString(" set ")
	b.WriteString(strings.Join(sets, ", "))
	q.whereClause(&b)
	return b.String(), append(args, q.bindings...), nil
}

func (q *query) compileDelete() (string, []any) {
	var b strings.Builder
	b.WriteString("delete from ")
	b.WriteString(q.table)
	q.whereClause(&b)
	return b.String(), q.bindings
}
