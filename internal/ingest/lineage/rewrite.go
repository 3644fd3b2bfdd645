package lineage

import (
	"fmt"
	"sort"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// Catalog is what RewriteInjectPKs needs to resolve a table reference to
// its primary-key columns. internal/ingest/catalog.DBCatalog and
// FixtureCatalog both satisfy it.
type Catalog interface {
	PrimaryKeys(qualified string) ([]string, bool)
}

// RewriteInjectPKs parses sql, appends a "_pk_<alias>_<col>" projection
// for every primary-key column of every table in its FROM clause (that
// isn't already projected), and deparses the result. The returned map is
// alias -> injected column names, in primary-key-declaration order; a
// WAL change event's primary-key values can be matched against these
// injected columns to find the exact row a GridStore should update.
func RewriteInjectPKs(sql string, cat Catalog) (string, map[string][]string, error) {
	tree, err := pg_query.Parse(sql)
	if err != nil {
		return "", nil, fmt.Errorf("parse: %w", err)
	}
	if len(tree.GetStmts()) == 0 || tree.GetStmts()[0].GetStmt().GetSelectStmt() == nil {
		return sql, map[string][]string{}, nil
	}

	adds := map[string][]string{}
	if err := injectPKs(tree.GetStmts()[0].GetStmt().GetSelectStmt(), cat, adds); err != nil {
		return "", nil, err
	}

	out, err := pg_query.Deparse(tree)
	if err != nil {
		return "", nil, fmt.Errorf("deparse: %w", err)
	}
	return out, adds, nil
}

// injectPKs mutates sel in place, recursing into CTEs and FROM
// subselects, and appends injected _pk_* columns after the user's
// target list.
func injectPKs(sel *pg_query.SelectStmt, cat Catalog, adds map[string][]string) error {
	if sel == nil {
		return nil
	}

	if wc := sel.GetWithClause(); wc != nil {
		for _, cteNode := range wc.GetCtes() {
			if cte := cteNode.GetCommonTableExpr(); cte != nil {
				if sub := cte.GetCtequery(); sub != nil && sub.GetSelectStmt() != nil {
					if err := injectPKs(sub.GetSelectStmt(), cat, adds); err != nil {
						return err
					}
				}
			}
		}
	}

	aliasToFQ, explicit, err := collectAliases(sel.GetFromClause(), cat, adds)
	if err != nil {
		return err
	}
	if len(aliasToFQ) == 0 {
		return nil
	}

	origLen := len(sel.GetTargetList())
	existing := make(map[string]struct{}, origLen)
	for _, n := range sel.GetTargetList() {
		if rt := n.GetResTarget(); rt != nil && rt.GetName() != "" {
			existing[rt.GetName()] = struct{}{}
		}
	}

	// projected holds the column references already selected, as
	// "alias.col" for qualified references and "col" for bare ones.
	projected := make(map[string]struct{}, origLen)
	for _, n := range sel.GetTargetList() {
		var parts []string
		for _, f := range n.GetResTarget().GetVal().GetColumnRef().GetFields() {
			parts = append(parts, f.GetString_().GetSval())
		}
		if len(parts) > 0 {
			projected[strings.Join(parts, ".")] = struct{}{}
		}
	}

	scopeBaseCount := 0
	for _, v := range aliasToFQ {
		if !strings.HasPrefix(v, "__derived__:") {
			scopeBaseCount++
		}
	}

	for _, visAlias := range sortedKeys(aliasToFQ) {
		fqTable := aliasToFQ[visAlias]
		if strings.HasPrefix(fqTable, "__derived__:") {
			continue
		}
		pks, ok := cat.PrimaryKeys(fqTable)
		if !ok || len(pks) == 0 {
			continue
		}
		safeAlias := displayAlias(visAlias, fqTable, explicit[visAlias])
		for _, pk := range pks {
			_, qualified := projected[visAlias+"."+pk]
			_, bare := projected[pk]
			if qualified || (bare && scopeBaseCount == 1) {
				continue
			}
			targetName := fmt.Sprintf("_pk_%s_%s", safeAlias, pk)
			if _, dup := existing[targetName]; dup {
				continue
			}
			colref := buildColRef(visAlias, pk, scopeBaseCount, explicit[visAlias])
			sel.TargetList = append(sel.TargetList, resTarget(targetName, colref))
			adds[safeAlias] = append(adds[safeAlias], targetName)
			existing[targetName] = struct{}{}
		}
	}
	return nil
}

// collectAliases maps every visible FROM-clause alias (explicit alias or
// bare relname) to its schema-qualified table, recursing into subselects
// and joins. A subselect alias maps to a "__derived__:" sentinel since
// its PK columns, if any, were already injected when its inner SELECT
// was visited.
func collectAliases(from []*pg_query.Node, cat Catalog, adds map[string][]string) (map[string]string, map[string]bool, error) {
	out := map[string]string{}
	explicit := map[string]bool{}

	for _, n := range from {
		switch {
		case n.GetRangeVar() != nil:
			rv := n.GetRangeVar()
			fq := rv.GetRelname()
			if sch := rv.GetSchemaname(); sch != "" {
				fq = sch + "." + fq
			} else {
				fq = "public." + fq
			}
			alias := rv.GetRelname()
			isExplicit := false
			if a := rv.GetAlias(); a != nil && a.GetAliasname() != "" {
				alias = a.GetAliasname()
				isExplicit = true
			}
			out[alias] = fq
			explicit[alias] = isExplicit

		case n.GetJoinExpr() != nil:
			je := n.GetJoinExpr()
			for _, side := range []*pg_query.Node{je.GetLarg(), je.GetRarg()} {
				if side == nil {
					continue
				}
				sub, subExp, err := collectAliases([]*pg_query.Node{side}, cat, adds)
				if err != nil {
					return nil, nil, err
				}
				for k, v := range sub {
					out[k] = v
				}
				for k, v := range subExp {
					explicit[k] = v
				}
			}

		case n.GetRangeSubselect() != nil:
			rs := n.GetRangeSubselect()
			alias := "subselect"
			if a := rs.GetAlias(); a != nil && a.GetAliasname() != "" {
				alias = a.GetAliasname()
			}
			if sub := rs.GetSubquery(); sub != nil && sub.GetSelectStmt() != nil {
				if err := injectPKs(sub.GetSelectStmt(), cat, adds); err != nil {
					return nil, nil, err
				}
			}
			out[alias] = "__derived__:" + alias
			explicit[alias] = true
		}
	}
	return out, explicit, nil
}

func displayAlias(visibleAlias, fqTable string, isExplicit bool) string {
	if isExplicit {
		return strings.ReplaceAll(visibleAlias, ".", "_")
	}
	base := fqTable
	if i := strings.LastIndexByte(base, '.'); i >= 0 {
		base = base[i+1:]
	}
	return strings.ReplaceAll(base, ".", "_")
}

func buildColRef(visibleAlias, col string, scopeBaseCount int, isExplicit bool) *pg_query.Node {
	if !isExplicit && scopeBaseCount == 1 {
		return &pg_query.Node{Node: &pg_query.Node_ColumnRef{ColumnRef: &pg_query.ColumnRef{
			Fields: []*pg_query.Node{strNode(col)},
		}}}
	}
	return &pg_query.Node{Node: &pg_query.Node_ColumnRef{ColumnRef: &pg_query.ColumnRef{
		Fields: []*pg_query.Node{strNode(visibleAlias), strNode(col)},
	}}}
}

func resTarget(name string, val *pg_query.Node) *pg_query.Node {
	return &pg_query.Node{Node: &pg_query.Node_ResTarget{ResTarget: &pg_query.ResTarget{
		Name: name,
		Val:  val,
	}}}
}

func strNode(s string) *pg_query.Node {
	return &pg_query.Node{Node: &pg_query.Node_String_{String_: &pg_query.String{Sval: s}}}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
