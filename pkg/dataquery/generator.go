// Package dataquery turns questions into SQL, gates execution on
// confirmation and runs approved queries against the data store.
package dataquery

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"slackagent/pkg/agent/llm"
	llmmetrics "slackagent/pkg/agent/middleware/metrics"
	"slackagent/pkg/logx"
)

// ErrNoSQL is returned when the model produced no usable statement.
var ErrNoSQL = errors.New("model returned no SQL")

// SchemaSource describes the tables the generator may reference.
type SchemaSource interface {
	Schema(ctx context.Context) (string, error)
}

const sqlPrompt = `You translate questions into a single SQLite SELECT statement.
Use only the tables and columns in the schema below. Return only the SQL, with
no explanation and no markdown.

Schema:
%s`

// Generator implements workflow.SQLGenerator with an LLM.
type Generator struct {
	client llm.LLMClient
	schema SchemaSource
	logger *logx.Logger
}

// NewGenerator creates a generator. schema may be nil.
func NewGenerator(client llm.LLMClient, schema SchemaSource) *Generator {
	return &Generator{client: client, schema: schema, logger: logx.NewLogger("sqlgen")}
}

// GenerateSQL implements workflow.SQLGenerator.
func (g *Generator) GenerateSQL(ctx context.Context, query string) (string, error) {
	schema := "(unknown)"
	if g.schema != nil {
		s, err := g.schema.Schema(ctx)
		if err != nil {
			g.logger.Warn("⚠️ Schema introspection failed: %v", err)
		} else if s != "" {
			schema = s
		}
	}

	ctx = llmmetrics.WithOperation(ctx, "generate_sql")
	resp, err := g.client.Complete(ctx, llm.Prompt(fmt.Sprintf(sqlPrompt, schema), query, llm.TemperatureDeterministic))
	if err != nil {
		return "", fmt.Errorf("sql generation: %w", err)
	}
	sql := ExtractSQL(resp.Content)
	if sql == "" {
		return "", ErrNoSQL
	}
	g.logger.Debug("Generated SQL: %s", sql)
	return sql, nil
}

var fencePattern = regexp.MustCompile("(?s)```(?:sql|SQL)?\\s*(.*?)```")

// ExtractSQL strips markdown fences and a leading "SQL:" label.
func ExtractSQL(text string) string {
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	text = strings.TrimSpace(text)
	if len(text) >= 4 && strings.EqualFold(text[:4], "sql:") {
		text = strings.TrimSpace(text[4:])
	}
	return text
}

var (
	leadingWord = regexp.MustCompile(`^\s*([A-Za-z]+)`)
	writeWord   = regexp.MustCompile(`(?i)\b(?:INSERT|UPDATE|DELETE)\b|\bREPLACE\s+INTO\b`)
)

// IsReadOnly reports whether sql is a single SELECT statement, optionally
// behind a WITH clause. A WITH whose main statement writes is rejected.
func IsReadOnly(sql string) bool {
	body, ok := stripSQL(sql)
	if !ok {
		return false
	}
	body = strings.TrimSpace(body)
	body = strings.TrimSuffix(body, ";")
	if strings.Contains(body, ";") {
		return false
	}
	m := leadingWord.FindStringSubmatch(body)
	if m == nil {
		return false
	}
	switch strings.ToUpper(m[1]) {
	case "SELECT":
		return true
	case "WITH":
		return !writeWord.MatchString(body)
	default:
		return false
	}
}

// stripSQL drops comments and blanks out quoted literals and identifiers so
// keywords can be matched on what is left. It reports false for an
// unterminated quote or block comment.
func stripSQL(sql string) (string, bool) {
	var b strings.Builder
	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
			end := strings.IndexByte(sql[i:], '\n')
			if end < 0 {
				return b.String(), true
			}
			i += end
			b.WriteByte('\n')
		case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
			end := strings.Index(sql[i+2:], "*/")
			if end < 0 {
				return "", false
			}
			i += end + 3
			b.WriteByte(' ')
		case c == '\'' || c == '"' || c == '`' || c == '[':
			closer := c
			if c == '[' {
				closer = ']'
			}
			j := i + 1
			for ; j < len(sql); j++ {
				if sql[j] != closer {
					continue
				}
				if closer != ']' && j+1 < len(sql) && sql[j+1] == closer {
					j++
					continue
				}
				break
			}
			if j >= len(sql) {
				return "", false
			}
			b.WriteString("''")
			i = j
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), true
}
