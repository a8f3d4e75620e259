package csvagent

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/pingcap/tidb/pkg/parser/mysql"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"
)

var (
	errEmptyStatement     = errors.New("statement is empty")
	errMultipleStatements = errors.New("only a single statement is allowed")
	errNotSelect          = errors.New("only SELECT statements are allowed")
	errSelectInto         = errors.New("SELECT ... INTO is not allowed")
)

// forbiddenKeywords are statements and clauses that change the database or
// its connection. They are matched as bare words outside literals.
var forbiddenKeywords = map[string]bool{
	"INSERT":         true,
	"UPDATE":         true,
	"DELETE":         true,
	"DROP":           true,
	"ALTER":          true,
	"CREATE":         true,
	"REPLACE":        true,
	"ATTACH":         true,
	"DETACH":         true,
	"PRAGMA":         true,
	"VACUUM":         true,
	"REINDEX":        true,
	"TRUNCATE":       true,
	"INTO":           true,
	"LOAD_EXTENSION": true,
}

type tokenKind int

const (
	tokenWord tokenKind = iota
	tokenQuoted
	tokenString
	tokenNumber
	tokenPunct
)

type token struct {
	kind tokenKind
	text string
}

// ident returns the identifier a word or quoted token names, folded to lower case
func (t token) ident() (string, bool) {
	if t.kind != tokenWord && t.kind != tokenQuoted {
		return "", false
	}
	return strings.ToLower(t.text), true
}

func (t token) is(word string) bool {
	return t.kind == tokenWord && strings.EqualFold(t.text, word)
}

func (t token) punct(p string) bool {
	return t.kind == tokenPunct && t.text == p
}

// ValidateSQL checks that sql is a single read-only SELECT over the data table.
// Only "data" and common table expressions defined in the statement may be referenced.
func ValidateSQL(sql string) error {
	tokens, err := tokenize(sql)
	if err != nil {
		return err
	}
	if err := checkTokens(tokens); err != nil {
		return err
	}

	stmt, perr := parseStatement(sql)
	if perr != nil {
		// The parser speaks the MySQL dialect and rejects some valid SQLite
		// syntax; the lexical table check stands in for the AST one.
		return checkTableReferencesLexically(tokens)
	}
	return checkStatement(stmt)
}

// checkTokens applies the dialect-independent rules
func checkTokens(tokens []token) error {
	// Trailing semicolons are allowed; anything after one is a second statement
	end := len(tokens)
	for end > 0 && tokens[end-1].punct(";") {
		end--
	}
	if end == 0 {
		return errEmptyStatement
	}
	for i, tok := range tokens[:end] {
		if tok.punct(";") {
			return errMultipleStatements
		}
		if tok.kind != tokenWord {
			continue
		}
		upper := strings.ToUpper(tok.text)
		if !forbiddenKeywords[upper] {
			continue
		}
		// replace(x, y, z) is a string function
		if upper == "REPLACE" && i+1 < end && tokens[i+1].punct("(") {
			continue
		}
		return fmt.Errorf("keyword %s is not allowed", upper)
	}

	first := tokens[0]
	if !first.is("SELECT") && !first.is("WITH") && !first.punct("(") {
		return errNotSelect
	}
	return nil
}

func parseStatement(sql string) (ast.StmtNode, error) {
	p := parser.New()
	p.SetSQLMode(mysql.ModeANSIQuotes | mysql.ModePipesAsConcat)
	stmts, _, err := p.Parse(sql, "", "")
	if err != nil {
		return nil, err
	}
	if len(stmts) != 1 {
		return nil, errMultipleStatements
	}
	return stmts[0], nil
}

// checkStatement validates a parsed statement
func checkStatement(stmt ast.StmtNode) error {
	switch stmt.(type) {
	case *ast.SelectStmt, *ast.SetOprStmt:
	default:
		return errNotSelect
	}

	v := &tableVisitor{ctes: map[string]bool{}}
	stmt.Accept(v)
	if v.selectInto {
		return errSelectInto
	}
	for _, ref := range v.tables {
		if err := checkTableName(ref.schema, ref.name, v.ctes); err != nil {
			return err
		}
	}
	return nil
}

type tableRef struct {
	schema string
	name   string
}

// tableVisitor collects referenced tables and the names of common table expressions
type tableVisitor struct {
	tables     []tableRef
	ctes       map[string]bool
	selectInto bool
}

// Enter implements ast.Visitor
func (v *tableVisitor) Enter(n ast.Node) (ast.Node, bool) {
	switch node := n.(type) {
	case *ast.WithClause:
		for _, cte := range node.CTEs {
			v.ctes[cte.Name.L] = true
		}
	case *ast.SelectStmt:
		if node.SelectIntoOpt != nil {
			v.selectInto = true
		}
	case *ast.TableName:
		v.tables = append(v.tables, tableRef{schema: node.Schema.L, name: node.Name.L})
	}
	return n, false
}

// Leave implements ast.Visitor
func (v *tableVisitor) Leave(n ast.Node) (ast.Node, bool) {
	return n, true
}

func checkTableName(schema, name string, ctes map[string]bool) error {
	if schema != "" && schema != "main" {
		return fmt.Errorf("schema %q is not allowed", schema)
	}
	if name == TableName || (schema == "" && ctes[name]) {
		return nil
	}
	return fmt.Errorf("table %q is not allowed", name)
}

// internalPrefixes name SQLite's own tables and table-valued functions
var internalPrefixes = []string{"sqlite_", "pragma_"}

// checkTableReferencesLexically checks the names following FROM and JOIN,
// and rejects IN applied to a bare table name.
func checkTableReferencesLexically(tokens []token) error {
	for _, tok := range tokens {
		name, ok := tok.ident()
		if !ok {
			continue
		}
		for _, prefix := range internalPrefixes {
			if strings.HasPrefix(name, prefix) {
				return fmt.Errorf("identifier %q is not allowed", tok.text)
			}
		}
	}

	ctes := lexicalCTENames(tokens)
	for i := 0; i < len(tokens); i++ {
		if tokens[i].is("IN") && i+1 < len(tokens) && !tokens[i+1].punct("(") {
			return errors.New("IN with a table name is not allowed")
		}
		if !tokens[i].is("FROM") && !tokens[i].is("JOIN") {
			continue
		}
		for j := i + 1; j < len(tokens); {
			if tokens[j].punct("(") {
				k := j
				for k < len(tokens) && tokens[k].punct("(") {
					k++
				}
				// Subqueries are checked when the scan reaches their own FROM
				if k >= len(tokens) || tokens[k].is("SELECT") || tokens[k].is("WITH") || tokens[k].is("VALUES") {
					break
				}
				j = k
			}
			schema, name, next, ok := qualifiedName(tokens, j)
			if !ok {
				return errors.New("unrecognized table reference")
			}
			if next < len(tokens) && tokens[next].punct("(") {
				return fmt.Errorf("table function %q is not allowed", name)
			}
			if err := checkTableName(schema, name, ctes); err != nil {
				return err
			}
			if !tokens[i].is("FROM") {
				break
			}
			// Skip an alias, then continue a comma separated FROM list
			next = skipAlias(tokens, next)
			if next < len(tokens) && tokens[next].punct(",") {
				j = next + 1
				continue
			}
			break
		}
	}
	return nil
}

// qualifiedName reads name or schema.name starting at i
func qualifiedName(tokens []token, i int) (schema, name string, next int, ok bool) {
	first, ok := tokens[i].ident()
	if !ok {
		return "", "", i, false
	}
	if i+2 < len(tokens) && tokens[i+1].punct(".") {
		second, ok := tokens[i+2].ident()
		if !ok {
			return "", "", i, false
		}
		return first, second, i + 3, true
	}
	return "", first, i + 1, true
}

// aliasStop lists words that end a table reference rather than name an alias
var aliasStop = map[string]bool{
	"WHERE": true, "GROUP": true, "ORDER": true, "LIMIT": true, "HAVING": true,
	"JOIN": true, "INNER": true, "LEFT": true, "RIGHT": true, "FULL": true, "CROSS": true,
	"NATURAL": true, "OUTER": true, "ON": true, "USING": true, "UNION": true,
	"INTERSECT": true, "EXCEPT": true, "WINDOW": true, "OFFSET": true,
}

func skipAlias(tokens []token, i int) int {
	if i < len(tokens) && tokens[i].is("AS") {
		i++
	}
	if i < len(tokens) && (tokens[i].kind == tokenQuoted ||
		(tokens[i].kind == tokenWord && !aliasStop[strings.ToUpper(tokens[i].text)])) {
		i++
	}
	return i
}

// lexicalCTENames finds "name AS (" and "name (columns) AS (" definitions
func lexicalCTENames(tokens []token) map[string]bool {
	ctes := map[string]bool{}
	hasWith := false
	for _, tok := range tokens {
		if tok.is("WITH") {
			hasWith = true
			break
		}
	}
	if !hasWith {
		return ctes
	}

	for i := 0; i+2 < len(tokens); i++ {
		name, ok := tokens[i].ident()
		if !ok || tokens[i].is("AS") {
			continue
		}
		j := i + 1
		if tokens[j].punct("(") {
			depth := 0
			for ; j < len(tokens); j++ {
				if tokens[j].punct("(") {
					depth++
				} else if tokens[j].punct(")") {
					depth--
					if depth == 0 {
						break
					}
				}
			}
			j++
		}
		if j+1 < len(tokens) && tokens[j].is("AS") {
			k := j + 1
			if tokens[k].is("MATERIALIZED") {
				k++
			} else if tokens[k].is("NOT") && k+1 < len(tokens) && tokens[k+1].is("MATERIALIZED") {
				k += 2
			}
			if k < len(tokens) && tokens[k].punct("(") {
				ctes[name] = true
			}
		}
	}
	return ctes
}

// tokenize splits SQL into words, quoted identifiers, literals and punctuation.
// Comments are dropped.
func tokenize(sql string) ([]token, error) {
	var tokens []token
	runes := []rune(sql)
	n := len(runes)

	for i := 0; i < n; {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++

		case r == '-' && i+1 < n && runes[i+1] == '-':
			for i < n && runes[i] != '\n' {
				i++
			}

		case r == '/' && i+1 < n && runes[i+1] == '*':
			j := i + 2
			for j+1 < n && (runes[j] != '*' || runes[j+1] != '/') {
				j++
			}
			if j+1 >= n {
				return nil, errors.New("unterminated comment")
			}
			i = j + 2

		case r == '\'':
			text, next, err := readQuoted(runes, i, '\'')
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{kind: tokenString, text: text})
			i = next

		case r == '"' || r == '`':
			text, next, err := readQuoted(runes, i, r)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{kind: tokenQuoted, text: text})
			i = next

		case r == '[':
			end := i + 1
			for end < n && runes[end] != ']' {
				end++
			}
			if end >= n {
				return nil, errors.New("unterminated identifier")
			}
			tokens = append(tokens, token{kind: tokenQuoted, text: string(runes[i+1 : end])})
			i = end + 1

		case r == '_' || unicode.IsLetter(r):
			start := i
			for i < n && (runes[i] == '_' || runes[i] == '$' || unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i])) {
				i++
			}
			tokens = append(tokens, token{kind: tokenWord, text: string(runes[start:i])})

		case unicode.IsDigit(r) || (r == '.' && i+1 < n && unicode.IsDigit(runes[i+1])):
			start := i
			for i < n && (unicode.IsDigit(runes[i]) || unicode.IsLetter(runes[i]) || runes[i] == '.') {
				i++
			}
			tokens = append(tokens, token{kind: tokenNumber, text: string(runes[start:i])})

		default:
			tokens = append(tokens, token{kind: tokenPunct, text: string(r)})
			i++
		}
	}
	return tokens, nil
}

// readQuoted reads a literal or identifier quoted with q, where a doubled q escapes it
func readQuoted(runes []rune, start int, q rune) (string, int, error) {
	var b strings.Builder
	for i := start + 1; i < len(runes); i++ {
		if runes[i] != q {
			b.WriteRune(runes[i])
			continue
		}
		if i+1 < len(runes) && runes[i+1] == q {
			b.WriteRune(q)
			i++
			continue
		}
		return b.String(), i + 1, nil
	}
	return "", 0, errors.New("unterminated quoted text")
}
