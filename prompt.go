package csvagent

import (
	"fmt"
	"strings"

	"github.com/nao1215/csvagent/domain/model"
	"github.com/nao1215/csvagent/llm"
)

const systemPrompt = `You are an expert in SQLite. Given an input question, write one syntactically correct SQLite query that answers it.
Query only the table %s described below and use only the columns it lists.
Always wrap column names in double quotes because they may contain spaces or reserved words.
Never modify the database: write a single SELECT statement and nothing else.
Unless the question asks for a specific number of rows, return at most %d rows.
Reply with the SQL query only, without explanation or formatting.`

// exemplar is a fixed question and answer shown before the real question
var exemplar = Exchange{
	Question: "How many rows are in the table?",
	SQL:      `SELECT COUNT(*) FROM "data";`,
}

// buildConversation assembles the structured prompt for one question
func buildConversation(question string, schema model.Schema, sample *QueryRows, history []Exchange, maxRows int) llm.Conversation {
	conv := llm.Conversation{}.
		Append(llm.RoleSystem, fmt.Sprintf(systemPrompt, model.QuoteIdentifier(schema.Table), maxRows)).
		Append(llm.RoleSystem, describeSchema(schema, sample))

	conv = conv.
		Append(llm.RoleUser, exemplar.Question).
		Append(llm.RoleAssistant, exemplar.SQL)
	for _, ex := range history {
		conv = conv.
			Append(llm.RoleUser, ex.Question).
			Append(llm.RoleAssistant, ex.SQL)
	}
	return conv.Append(llm.RoleUser, question)
}

// describeSchema renders the schema followed by sample rows
func describeSchema(schema model.Schema, sample *QueryRows) string {
	var b strings.Builder
	b.WriteString(schema.String())
	if sample == nil || len(sample.Rows) == 0 {
		return b.String()
	}

	fmt.Fprintf(&b, "\n\n%d rows from %s:\n", len(sample.Rows), model.QuoteIdentifier(schema.Table))
	b.WriteString(strings.Join(sample.Columns, "\t"))
	for _, row := range sample.Rows {
		b.WriteString("\n")
		cells := make([]string, len(row))
		for i, v := range row {
			if v == nil {
				cells[i] = "NULL"
				continue
			}
			cells[i] = strings.ReplaceAll(fmt.Sprint(v), "\n", " ")
		}
		b.WriteString(strings.Join(cells, "\t"))
	}
	return b.String()
}
