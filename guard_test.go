package csvagent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateSQL_Accepts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		sql  string
	}{
		{name: "count with trailing semicolon", sql: `SELECT COUNT(*) FROM "data";`},
		{name: "unquoted table", sql: `select name from data where id > 1 order by name limit 5`},
		{name: "schema qualified", sql: `SELECT "name" FROM main."data"`},
		{name: "keyword inside string literal", sql: `SELECT * FROM "data" WHERE "name" = 'DROP TABLE data; DELETE'`},
		{name: "keyword as quoted column", sql: `SELECT "update", "delete" FROM "data"`},
		{name: "replace function", sql: `SELECT replace("name", 'a', 'b') FROM "data"`},
		{name: "comment mentioning a mutation", sql: "SELECT * FROM \"data\" -- then DELETE everything\n"},
		{name: "block comment", sql: `SELECT /* DROP */ "id" FROM "data"`},
		{name: "common table expression", sql: `WITH recent AS (SELECT * FROM "data" ORDER BY "id" LIMIT 3) SELECT COUNT(*) FROM recent`},
		{name: "union", sql: `SELECT "id" FROM "data" UNION ALL SELECT "id" FROM "data"`},
		{name: "parenthesized union", sql: `(SELECT 1) UNION (SELECT 2)`},
		{name: "self join", sql: `SELECT a."id" FROM "data" a JOIN "data" AS b ON a."id" = b."id"`},
		{name: "subquery", sql: `SELECT * FROM "data" WHERE "id" IN (SELECT MAX("id") FROM "data")`},
		{name: "derived table", sql: `SELECT t.n FROM (SELECT COUNT(*) AS n FROM "data") t`},
		{name: "string concatenation", sql: `SELECT "first" || ' ' || "last" FROM "data"`},
		{name: "date function", sql: `SELECT strftime('%Y', "joined") AS y, COUNT(*) FROM "data" GROUP BY y`},
		{name: "sqlite only operator", sql: `SELECT "name" FROM "data" WHERE "name" GLOB 'A*'`},
		{name: "no table", sql: `SELECT 1 + 1`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.NoError(t, ValidateSQL(tt.sql))
		})
	}
}

func TestValidateSQL_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		sql  string
	}{
		{name: "empty", sql: ""},
		{name: "only semicolons", sql: " ; ;"},
		{name: "drop", sql: `DROP TABLE "data"`},
		{name: "delete", sql: `DELETE FROM "data"`},
		{name: "update", sql: `UPDATE "data" SET "name" = 'x'`},
		{name: "insert", sql: `INSERT INTO "data" VALUES (1, 'x')`},
		{name: "replace statement", sql: `REPLACE INTO "data" VALUES (1, 'x')`},
		{name: "create", sql: `CREATE TABLE t AS SELECT * FROM "data"`},
		{name: "alter", sql: `ALTER TABLE "data" ADD COLUMN x`},
		{name: "attach", sql: `ATTACH DATABASE '/tmp/x.db' AS x`},
		{name: "pragma", sql: `PRAGMA query_only = 0`},
		{name: "vacuum", sql: `VACUUM`},
		{name: "lower case mutation", sql: `delete from data`},
		{name: "select into", sql: `SELECT * INTO backup FROM "data"`},
		{name: "stacked statements", sql: `SELECT 1; DROP TABLE "data"`},
		{name: "two selects", sql: `SELECT 1; SELECT 2`},
		{name: "mutation inside a CTE", sql: `WITH x AS (DELETE FROM "data" RETURNING *) SELECT * FROM x`},
		{name: "values", sql: `VALUES (1)`},
		{name: "explain", sql: `EXPLAIN SELECT * FROM "data"`},
		{name: "other table", sql: `SELECT * FROM sqlite_master`},
		{name: "other table in subquery", sql: `SELECT * FROM "data" WHERE "id" IN (SELECT "id" FROM secrets)`},
		{name: "other table in join", sql: `SELECT * FROM "data" JOIN users ON 1 = 1`},
		{name: "other schema", sql: `SELECT * FROM temp."data"`},
		{name: "other table with sqlite only syntax", sql: `SELECT * FROM secrets WHERE "name" GLOB 'A*'`},
		{name: "table valued function", sql: `SELECT * FROM pragma_table_info('data')`},
		{name: "parenthesized catalog table", sql: `SELECT * FROM (sqlite_master) WHERE name GLOB '*'`},
		{name: "doubly parenthesized table", sql: `SELECT * FROM ((secrets)) WHERE "name" GLOB 'A*'`},
		{name: "in with a bare table", sql: `SELECT name FROM data WHERE name IN sqlite_master AND name GLOB '*'`},
		{name: "quoted catalog table", sql: `SELECT * FROM "sqlite_schema" WHERE "name" GLOB '*'`},
		{name: "load extension", sql: `SELECT load_extension('/tmp/evil.so')`},
		{name: "unterminated string", sql: `SELECT 'abc FROM "data"`},
		{name: "unterminated comment", sql: `SELECT 1 /* open`},
		{name: "prose", sql: `I cannot answer that`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Error(t, ValidateSQL(tt.sql))
		})
	}
}

func TestTokenize(t *testing.T) {
	t.Parallel()

	tokens, err := tokenize(`SELECT "a""b", 'it''s', [c d], x1 -- tail` + "\n/* note */ 1.5;")
	assert.NoError(t, err)
	assert.Equal(t, []token{
		{kind: tokenWord, text: "SELECT"},
		{kind: tokenQuoted, text: `a"b`},
		{kind: tokenPunct, text: ","},
		{kind: tokenString, text: "it's"},
		{kind: tokenPunct, text: ","},
		{kind: tokenQuoted, text: "c d"},
		{kind: tokenPunct, text: ","},
		{kind: tokenWord, text: "x1"},
		{kind: tokenNumber, text: "1.5"},
		{kind: tokenPunct, text: ";"},
	}, tokens)
}

func TestLexicalCTENames(t *testing.T) {
	t.Parallel()

	tokens, err := tokenize(`WITH a AS (SELECT 1), "b" (x, y) AS MATERIALIZED (SELECT 1, 2) SELECT * FROM a, b`)
	assert.NoError(t, err)
	assert.Equal(t, map[string]bool{"a": true, "b": true}, lexicalCTENames(tokens))

	tokens, err = tokenize(`SELECT "x" AS (y) FROM "data"`)
	assert.NoError(t, err)
	assert.Empty(t, lexicalCTENames(tokens))
}

func TestCheckTableReferencesLexically(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		sql     string
		wantErr bool
	}{
		{name: "data", sql: `SELECT * FROM "data" AS d WHERE d.x GLOB 'a'`},
		{name: "comma list", sql: `SELECT * FROM "data" a, main.data b`},
		{name: "cte", sql: `WITH t AS (SELECT * FROM data) SELECT * FROM t JOIN data ON 1`},
		{name: "subquery", sql: `SELECT * FROM (SELECT * FROM data) x`},
		{name: "parenthesized data", sql: `SELECT * FROM ((data)) d`},
		{name: "in list", sql: `SELECT * FROM data WHERE id IN (1, 2)`},
		{name: "parenthesized table", sql: `SELECT * FROM (secrets)`, wantErr: true},
		{name: "parenthesized table after comma", sql: `SELECT * FROM data, (secrets) s`, wantErr: true},
		{name: "in with a bare table", sql: `SELECT * FROM data WHERE id IN secrets`, wantErr: true},
		{name: "catalog name outside from", sql: `SELECT (SELECT 1 FROM data) AS x, sqlite_version()`, wantErr: true},
		{name: "quoted catalog name", sql: `SELECT * FROM data WHERE x IN ("sqlite_temp_master")`, wantErr: true},
		{name: "second table in comma list", sql: `SELECT * FROM data a, secrets b`, wantErr: true},
		{name: "joined table", sql: `SELECT * FROM data LEFT JOIN secrets USING (id)`, wantErr: true},
		{name: "attached schema", sql: `SELECT * FROM other.data`, wantErr: true},
		{name: "table function", sql: `SELECT * FROM json_each('[1]')`, wantErr: true},
		{name: "string after from", sql: `SELECT * FROM 'data'`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tokens, err := tokenize(tt.sql)
			assert.NoError(t, err)
			err = checkTableReferencesLexically(tokens)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
