package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/docintel/docintel/log"
	"github.com/docintel/docintel/sqlstore"
)

// classifierSlice caps the document text sent to the classifier.
const classifierSlice = 8000

const categoryPrompt = `Based on the following content from one or more legal or healthtech
documents, please suggest 3-5 potential high-level, thematic category names.
These categories should represent broad classifications of the document's
purpose, not specific subtypes.

Examples of good high-level categories:
- "Healthcare Service Agreements"
- "Financial & Reimbursement Agreements"
- "Regulatory & Compliance Documents"
- "Intellectual Property Agreements"

Return your answer as a JSON object with a single key "categories" which
contains a list of the suggested category strings.

Document Content:
---
%s
---

JSON Response:`

const classificationPrompt = `You are an expert document classifier. Your task is to classify the
following document into ONE of the provided categories.

Analyze the document text and determine which single category best
represents its primary subject matter.

Available Categories:
---
%s
---

Document Text:
---
%s
---

Respond with a JSON object containing a single key "category" with the name
of the chosen category. It MUST be one of the categories from the provided
list.

JSON Response:`

const schemaPrompt = `You are an expert database administrator specializing in both HealthTech
and LegalTech. Your task is to design a SQLite table schema based on the
provided document text.

The table name should be a lowercase, snake_cased version of the document
category: "%s".

Analyze the following document text and propose a SQLite CREATE TABLE
statement. The schema should capture the most critical, structured
information from the document. Key fields to consider are parties involved,
effective dates, termination dates, monetary values, policy numbers,
medical codes, and important terms.

VERY IMPORTANT RULES:
1. For any column that holds an identifier, number, or code (e.g.
   'agreement_number', 'policy_number'), ALWAYS use the TEXT data type.
2. For contract durations, create a column named duration_years with the
   INTEGER data type.
3. For descriptive text, names, or clauses, ALWAYS use TEXT.
4. For complex, nested data or key-value pairs like reimbursement rates,
   use TEXT holding a JSON object.
5. Use DATE for specific dates.

Document Category: %s

Document Text Sample:
---
%s
---

Provide ONLY the CREATE TABLE statement and nothing else.`

const extractionPrompt = `You are an expert data extraction agent. Your task is to extract structured
information from the provided document text and format it as a JSON object
that strictly conforms to the given table schema.

Table Schema:
%s

Document Text:
---
%s
---

Instructions:
1. Read the document text carefully.
2. Extract the information required to populate the columns defined in the
   table schema.
3. The keys of your JSON object MUST match the column names in the schema.
4. Value types must be compatible with the column types (strings for TEXT,
   numbers for INTEGER/NUMERIC, 'YYYY-MM-DD' for DATE).
5. For JSON columns, extract the relevant information as a nested object.
6. If a piece of information is not present in the document, use null.
7. Do not include the primary key column (e.g. id) in your output.

Respond with ONLY the JSON object.`

// Analyzer runs the model-driven steps of the ingestion pipeline:
// category discovery, classification, schema design and record
// extraction.
type Analyzer struct {
	reasoningModel llms.Model
	schemaModel    llms.Model
	logger         log.Logger
}

// NewAnalyzer creates an analyzer. schemaModel generates DDL; it defaults
// to reasoningModel when nil.
func NewAnalyzer(reasoningModel, schemaModel llms.Model, logger log.Logger) *Analyzer {
	if schemaModel == nil {
		schemaModel = reasoningModel
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Analyzer{reasoningModel: reasoningModel, schemaModel: schemaModel, logger: logger}
}

func completion(ctx context.Context, model llms.Model, prompt string) (string, error) {
	resp, err := model.GenerateContent(ctx,
		[]llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, prompt)})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("model returned no choices")
	}
	return resp.Choices[0].Content, nil
}

// DiscoverCategories proposes high-level category names for the combined
// corpus content. The result is deduplicated and sorted.
func (a *Analyzer) DiscoverCategories(ctx context.Context, content string) ([]string, error) {
	raw, err := completion(ctx, a.reasoningModel, fmt.Sprintf(categoryPrompt, content))
	if err != nil {
		return nil, fmt.Errorf("category discovery failed: %w", err)
	}

	var parsed struct {
		Categories []string `json:"categories"`
	}
	if err := json.Unmarshal([]byte(stripJSONFences(raw)), &parsed); err != nil {
		return nil, fmt.Errorf("category discovery returned invalid JSON: %w", err)
	}

	seen := make(map[string]bool)
	var categories []string
	for _, c := range parsed.Categories {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		categories = append(categories, c)
	}
	sort.Strings(categories)
	return categories, nil
}

// Classify assigns the document to one of the given categories. The model
// must pick from the list; anything else is an error.
func (a *Analyzer) Classify(ctx context.Context, docText string, categories []string) (string, error) {
	if len(docText) > classifierSlice {
		docText = docText[:classifierSlice]
	}
	list := make([]string, len(categories))
	for i, c := range categories {
		list[i] = "- " + c
	}

	raw, err := completion(ctx, a.reasoningModel,
		fmt.Sprintf(classificationPrompt, strings.Join(list, "\n"), docText))
	if err != nil {
		return "", fmt.Errorf("classification failed: %w", err)
	}

	var parsed struct {
		Category string `json:"category"`
	}
	if err := json.Unmarshal([]byte(stripJSONFences(raw)), &parsed); err != nil {
		return "", fmt.Errorf("classification returned invalid JSON: %w", err)
	}
	for _, c := range categories {
		if parsed.Category == c {
			return c, nil
		}
	}
	return "", fmt.Errorf("classifier returned unknown category %q", parsed.Category)
}

// DesignSchema produces a CREATE TABLE statement for the category, using
// one document's text as the sample.
func (a *Analyzer) DesignSchema(ctx context.Context, sampleText, category string) (string, error) {
	table := sqlstore.SanitizeTableName(category)
	raw, err := completion(ctx, a.schemaModel, fmt.Sprintf(schemaPrompt, table, category, sampleText))
	if err != nil {
		return "", fmt.Errorf("schema design failed: %w", err)
	}

	schema := sqlstore.StripSQLFences(raw)
	if !strings.HasPrefix(strings.ToUpper(schema), "CREATE TABLE") {
		return "", fmt.Errorf("schema design did not produce a CREATE TABLE statement")
	}
	return schema, nil
}

// ExtractRecord pulls one structured record out of the document text,
// shaped by the table schema. The primary key is dropped if the model
// includes it anyway.
func (a *Analyzer) ExtractRecord(ctx context.Context, docText, schemaSQL string) (map[string]any, error) {
	raw, err := completion(ctx, a.reasoningModel, fmt.Sprintf(extractionPrompt, schemaSQL, docText))
	if err != nil {
		return nil, fmt.Errorf("data extraction failed: %w", err)
	}

	var record map[string]any
	if err := json.Unmarshal([]byte(stripJSONFences(raw)), &record); err != nil {
		return nil, fmt.Errorf("data extraction returned invalid JSON: %w", err)
	}
	delete(record, "id")
	return record, nil
}

// stripJSONFences removes a wrapping markdown code block around a JSON
// payload.
func stripJSONFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
	}
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
