package db

import (
	"fmt"
	"regexp"
	"strings"
)

var identPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidIdent reports whether s is safe to splice into SQL as a column or
// table name.
func ValidIdent(s string) bool {
	return identPattern.MatchString(s)
}

// Query builds a parameterised SELECT. Clause fragments use %d where the
// positional parameter index belongs; Add fills it in.
type Query struct {
	table   string
	cols    string
	where   []string
	args    []interface{}
	orderBy string
	limit   int
	offset  int
}

func NewQuery(table, cols string) *Query {
	return &Query{table: table, cols: cols}
}

func (q *Query) next() int { return len(q.args) + 1 }

// Add appends a clause with a single argument, e.g. Add("patient_id = $%d", id).
// A clause without a verb is added as-is and arg is ignored.
func (q *Query) Add(clause string, arg interface{}) *Query {
	if !strings.Contains(clause, "%d") {
		q.where = append(q.where, clause)
		return q
	}
	q.where = append(q.where, strings.ReplaceAll(clause, "%d", fmt.Sprint(q.next())))
	q.args = append(q.args, arg)
	return q
}

func (q *Query) Eq(col string, v interface{}) *Query {
	return q.Add(col+" = $%d", v)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ILike adds a case-insensitive contains match. Wildcards in v match
// literally, escaped with Postgres' default LIKE escape character.
func (q *Query) ILike(col, v string) *Query {
	return q.Add(col+" ILIKE $%d", "%"+likeEscaper.Replace(v)+"%")
}

// AnyOf matches col against every element of values in one parameter.
func (q *Query) AnyOf(col string, values interface{}) *Query {
	return q.Add(col+" = ANY($%d)", values)
}

// EitherEq matches v against either of two columns using one parameter.
func (q *Query) EitherEq(colA, colB string, v interface{}) *Query {
	return q.Add("("+colA+" = $%d OR "+colB+" = $%d)", v)
}

// CompanyScoped matches rows owned by companyID or not tagged with any company.
func (q *Query) CompanyScoped(companyID string) *Query {
	return q.Add("(company_id = $%d OR company_id IS NULL)", companyID)
}

func (q *Query) OrderBy(orderBy string) *Query {
	q.orderBy = orderBy
	return q
}

func (q *Query) Limit(n int) *Query {
	q.limit = n
	return q
}

func (q *Query) Offset(n int) *Query {
	q.offset = n
	return q
}

func (q *Query) whereSQL() string {
	if len(q.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(q.where, " AND ")
}

func (q *Query) CountSQL() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s%s", q.table, q.whereSQL())
}

// CountArgs returns the filter arguments without limit/offset.
func (q *Query) CountArgs() []interface{} {
	return q.args
}

// SQL returns the data query and its arguments, limit and offset included
// when set.
func (q *Query) SQL() (string, []interface{}) {
	sql := fmt.Sprintf("SELECT %s FROM %s%s", q.cols, q.table, q.whereSQL())
	args := append([]interface{}(nil), q.args...)
	if q.orderBy != "" {
		sql += " ORDER BY " + q.orderBy
	}
	if q.limit > 0 {
		args = append(args, q.limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if q.offset > 0 {
		args = append(args, q.offset)
		sql += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return sql, args
}
