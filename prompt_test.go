package csvagent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nao1215/csvagent/domain/model"
	"github.com/nao1215/csvagent/llm"
)

func testSchema() model.Schema {
	return model.Schema{
		Table: TableName,
		Columns: []model.SchemaColumn{
			{Name: "id", SQLType: model.SQLTypeInteger, Type: model.ColumnTypeInteger},
			{Name: "name", SQLType: model.SQLTypeText, Type: model.ColumnTypeText, Description: "full name"},
		},
	}
}

func TestBuildConversation(t *testing.T) {
	t.Parallel()

	history := []Exchange{{Question: "Who is first?", SQL: `SELECT "name" FROM "data" LIMIT 1`}}
	conv := buildConversation("How many?", testSchema(), nil, history, 50)
	require.NoError(t, conv.Validate())

	roles := make([]llm.Role, len(conv))
	for i, turn := range conv {
		roles[i] = turn.Role
	}
	assert.Equal(t, []llm.Role{
		llm.RoleSystem, llm.RoleSystem,
		llm.RoleUser, llm.RoleAssistant,
		llm.RoleUser, llm.RoleAssistant,
		llm.RoleUser,
	}, roles)

	assert.Contains(t, conv[0].Content, `Query only the table "data"`)
	assert.Contains(t, conv[0].Content, "at most 50 rows")
	assert.Equal(t, "Table \"data\" (\n  \"id\" INTEGER,\n  \"name\" TEXT -- full name\n)", conv[1].Content)
	assert.Equal(t, exemplar.Question, conv[2].Content)
	assert.Equal(t, exemplar.SQL, conv[3].Content)
	assert.Equal(t, "Who is first?", conv[4].Content)
	assert.Equal(t, "How many?", conv[6].Content)
}

func TestDescribeSchema(t *testing.T) {
	t.Parallel()

	sample := &QueryRows{
		Columns: []string{"id", "name"},
		Rows:    [][]any{{int64(1), "Alice\nSmith"}, {int64(2), nil}},
	}
	got := describeSchema(testSchema(), sample)
	assert.Equal(t, "Table \"data\" (\n  \"id\" INTEGER,\n  \"name\" TEXT -- full name\n)\n\n"+
		"2 rows from \"data\":\nid\tname\n1\tAlice Smith\n2\tNULL", got)

	assert.Equal(t, testSchema().String(), describeSchema(testSchema(), &QueryRows{}))
}

func TestMistralPromptForQuestion(t *testing.T) {
	t.Parallel()

	prompt, err := llm.MistralInstruct{}.Render(buildConversation("How many?", testSchema(), nil, nil, 10))
	require.NoError(t, err)
	assert.Contains(t, prompt, "[INST]")
	assert.Contains(t, prompt, exemplar.SQL+"</s>")
	assert.Contains(t, prompt, "How many? [/INST]")
}
