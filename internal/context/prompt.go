package context

import (
	"fmt"
	"strings"
)

// SystemPrompt returns the fixed instruction that opens every context-aware
// synthesis request. userID lets the model resolve "I" and "me".
func SystemPrompt(schema string, userID int64) string {
	var b strings.Builder
	b.WriteString("You are an expert SQL generator. Convert natural language questions into SQL queries for the database described below.\n\n")
	b.WriteString(rules)
	b.WriteString("Interpretation rules:\n")
	fmt.Fprintf(&b, "- The phrase 'I' or 'me' always refers to the current user with id = %d.\n", userID)
	b.WriteString(interpretation)
	b.WriteString("Database schema:\n")
	b.WriteString(strings.TrimSpace(schema))
	b.WriteString("\n\nExamples:\n")
	fmt.Fprintf(&b, "- Question: 'Show me all questions I have asked.'\n  SQL: SELECT query_text FROM queries WHERE user_id = %d ORDER BY asked_at ASC;\n\n", userID)
	b.WriteString("Always output only the SQL query, no explanations, no markdown.")
	return b.String()
}

// QuestionPrompt returns the instruction for context-free synthesis, where the
// model sees only this prompt and the question.
func QuestionPrompt(schema string) string {
	var b strings.Builder
	b.WriteString("You are an expert SQL generator. Convert natural language questions into SQL queries for the database described below.\n\n")
	b.WriteString(rules)
	b.WriteString("Database schema:\n")
	b.WriteString(strings.TrimSpace(schema))
	b.WriteString("\n\nInterpretation:\n")
	b.WriteString(interpretation)
	b.WriteString("Examples:\n")
	b.WriteString("Q: How many users are there?\nSQL: SELECT COUNT(*) FROM users;\n\n")
	b.WriteString("Q: What was the first question asked by User 1?\nSQL: SELECT query_text FROM queries WHERE user_id = 1 ORDER BY asked_at ASC LIMIT 1;\n\n")
	b.WriteString("Q: Find questions asked by Alice.\nSQL: SELECT q.query_text FROM queries q JOIN users u ON q.user_id = u.id WHERE LOWER(u.username) = 'alice' ORDER BY q.asked_at ASC;\n\n")
	b.WriteString("Always output only the SQL query, no explanations, no markdown.")
	return b.String()
}

const rules = `STRICT RULES:
- Only generate safe SELECT queries.
- Allowed operations: WHERE filters, ORDER BY, LIMIT, GROUP BY, aggregations (COUNT, SUM, etc.), and safe joins.
- Forbidden: INSERT, UPDATE, DELETE, DROP, ALTER, CREATE, TRUNCATE, or any DDL/DML.
- If truly impossible with a SELECT query, respond only with: UNSUPPORTED.

`

const interpretation = `- 'User <number>' means users.id = <number>.
- 'User <name>' means users.username = '<name>' (case-insensitive).
- To fetch questions asked by a user, select from the queries table using queries.user_id.

`
