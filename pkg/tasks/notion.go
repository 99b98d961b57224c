package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"slackagent/pkg/workflow"
)

const (
	notionVersion = "2022-06-28"

	// Notion rejects rich text items over 2000 characters and more than
	// 100 children per request.
	notionTextLimit  = 2000
	notionBlockLimit = 100

	notionTitleProperty  = "タイトル"
	notionStatusProperty = "ステータス"
	notionStatusOpen     = "未対応"
)

// NotionStore creates pages in a Notion database.
type NotionStore struct {
	token      string
	databaseID string
	baseURL    string
	client     *http.Client
	markdown   goldmark.Markdown
}

// NewNotionStore returns a store for databaseID. baseURL defaults to the
// public API.
func NewNotionStore(token, databaseID, baseURL string) *NotionStore {
	if baseURL == "" {
		baseURL = "https://api.notion.com"
	}
	return &NotionStore{
		token:      token,
		databaseID: databaseID,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		client:     &http.Client{Timeout: 30 * time.Second},
		markdown:   goldmark.New(),
	}
}

type notionText struct {
	Content string      `json:"content"`
	Link    *notionLink `json:"link,omitempty"`
}

type notionLink struct {
	URL string `json:"url"`
}

type notionAnnotations struct {
	Bold bool `json:"bold,omitempty"`
	Code bool `json:"code,omitempty"`
}

type richText struct {
	Type        string             `json:"type"`
	Text        notionText         `json:"text"`
	Annotations *notionAnnotations `json:"annotations,omitempty"`
}

type blockBody struct {
	RichText []richText `json:"rich_text"`
	Language string     `json:"language,omitempty"`
}

// Block is a Notion block with a single typed body, e.g.
// {"type":"heading_2","heading_2":{"rich_text":[...]}}.
type Block struct {
	Type string
	Body blockBody
}

// MarshalJSON keys the body by the block type.
func (b Block) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"object": "block",
		"type":   b.Type,
		b.Type:   b.Body,
	})
}

type pageRequest struct {
	Parent     map[string]string `json:"parent"`
	Properties map[string]any    `json:"properties"`
	Children   []Block           `json:"children"`
}

type pageResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type notionError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Create implements Store.
func (s *NotionStore) Create(ctx context.Context, rec workflow.TaskRecord) (string, string, error) {
	blocks := s.Blocks(Markdown(rec))
	if len(blocks) > notionBlockLimit {
		blocks = blocks[:notionBlockLimit]
	}
	body, err := json.Marshal(pageRequest{
		Parent: map[string]string{"database_id": s.databaseID},
		Properties: map[string]any{
			notionTitleProperty: map[string]any{
				"title": []richText{plain(rec.Title)},
			},
			notionStatusProperty: map[string]any{
				"select": map[string]string{"name": notionStatusOpen},
			},
		},
		Children: blocks,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to encode Notion page: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/pages", bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Notion-Version", notionVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("notion request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", "", fmt.Errorf("failed to read Notion response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var ne notionError
		if json.Unmarshal(data, &ne) == nil && ne.Message != "" {
			return "", "", fmt.Errorf("notion API error %d (%s): %s", resp.StatusCode, ne.Code, ne.Message)
		}
		return "", "", fmt.Errorf("notion API error %d", resp.StatusCode)
	}

	var page pageResponse
	if err := json.Unmarshal(data, &page); err != nil {
		return "", "", fmt.Errorf("failed to parse Notion response: %w", err)
	}
	return page.ID, page.URL, nil
}

func plain(s string) richText {
	return richText{Type: "text", Text: notionText{Content: clip(s)}}
}

func clip(s string) string {
	if utf8.RuneCountInString(s) <= notionTextLimit {
		return s
	}
	return string([]rune(s)[:notionTextLimit])
}

// Blocks converts Markdown into Notion blocks: headings, paragraphs,
// bulleted and numbered list items, and fenced code.
func (s *NotionStore) Blocks(markdown string) []Block {
	src := []byte(markdown)
	doc := s.markdown.Parser().Parse(text.NewReader(src))

	var blocks []Block
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		blocks = appendBlocks(blocks, n, src)
	}
	return blocks
}

func appendBlocks(blocks []Block, n ast.Node, src []byte) []Block {
	switch node := n.(type) {
	case *ast.Heading:
		typ := "heading_3"
		if node.Level <= 2 {
			typ = "heading_2"
		}
		return append(blocks, Block{Type: typ, Body: blockBody{RichText: inline(node, src)}})
	case *ast.Paragraph, *ast.TextBlock:
		return append(blocks, Block{Type: "paragraph", Body: blockBody{RichText: inline(node, src)}})
	case *ast.List:
		typ := "bulleted_list_item"
		if node.IsOrdered() {
			typ = "numbered_list_item"
		}
		for item := node.FirstChild(); item != nil; item = item.NextSibling() {
			var rt []richText
			for c := item.FirstChild(); c != nil; c = c.NextSibling() {
				rt = append(rt, inline(c, src)...)
			}
			blocks = append(blocks, Block{Type: typ, Body: blockBody{RichText: rt}})
		}
		return blocks
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		var b strings.Builder
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			b.Write(seg.Value(src))
		}
		lang := "plain text"
		if fc, ok := node.(*ast.FencedCodeBlock); ok {
			if l := string(fc.Language(src)); l != "" {
				lang = l
			}
		}
		return append(blocks, Block{Type: "code", Body: blockBody{
			RichText: []richText{plain(strings.TrimRight(b.String(), "\n"))},
			Language: lang,
		}})
	default:
		return blocks
	}
}

// inline flattens the inline children of n into rich text runs.
func inline(n ast.Node, src []byte) []richText {
	var out []richText
	var walk func(n ast.Node, bold bool, link string)
	emit := func(s string, bold, code bool, link string) {
		if s == "" {
			return
		}
		rt := plain(s)
		if bold || code {
			rt.Annotations = &notionAnnotations{Bold: bold, Code: code}
		}
		if link != "" {
			rt.Text.Link = &notionLink{URL: link}
		}
		out = append(out, rt)
	}
	walk = func(n ast.Node, bold bool, link string) {
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			switch node := c.(type) {
			case *ast.Text:
				s := string(node.Segment.Value(src))
				if node.SoftLineBreak() || node.HardLineBreak() {
					s += "\n"
				}
				emit(s, bold, false, link)
			case *ast.String:
				emit(string(node.Value), bold, false, link)
			case *ast.CodeSpan:
				var b strings.Builder
				for t := node.FirstChild(); t != nil; t = t.NextSibling() {
					if tx, ok := t.(*ast.Text); ok {
						b.Write(tx.Segment.Value(src))
					}
				}
				emit(b.String(), bold, true, link)
			case *ast.Emphasis:
				walk(node, bold || node.Level >= 2, link)
			case *ast.Link:
				walk(node, bold, string(node.Destination))
			case *ast.AutoLink:
				u := string(node.URL(src))
				emit(u, bold, false, u)
			default:
				walk(c, bold, link)
			}
		}
	}
	walk(n, false, "")
	return out
}
