package pipeline

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/company-scraper/internal/model"
)

// ErrMalformedResponse is returned when the model's reply does not have
// the extraction shape.
var ErrMalformedResponse = eris.New("pipeline: malformed extraction response")

const systemPrompt = `You read text taken from web pages and pull out facts about one company.

Reply with a single JSON object and nothing else, shaped like this:
{
  "company_name": "Example Corp",
  "company_location": "Austin, Texas",
  "products_or_services": ["Payroll software", "HR consulting"],
  "company_overview": "Example Corp builds payroll tools for small businesses.",
  "target_clients": ["Small businesses", "Accounting firms"],
  "confidence_scores": {
    "company_name": 0.9,
    "company_location": 0.8,
    "products_or_services": 0.7,
    "company_overview": 0.8,
    "target_clients": 0.6
  }
}

Confidence scores are numbers between 0 and 1 and say how sure you are that
the text supports the value.`

const userPromptHeader = `Extract company information from the page texts below. Return a JSON
object with these fields:
- company_name: the company's name
- company_location: where the company is located or headquartered
- products_or_services: list of products or services
- company_overview: a short description of the company
- target_clients: list of target clients or customer types

Include a "confidence_scores" object with a score between 0 and 1 for each field.

Use only information stated in the text. Use an empty string or an empty
list when a value is not mentioned.

Page texts, keyed by URL:
`

// fieldKeys maps response keys to record fields in canonical order.
var fieldKeys = []struct {
	key   string
	field model.Field
}{
	{"company_name", model.FieldName},
	{"company_location", model.FieldLocation},
	{"products_or_services", model.FieldOfferings},
	{"company_overview", model.FieldOverview},
	{"target_clients", model.FieldTargetClients},
}

// userPrompt renders the page texts as a JSON object keyed by URL, in the
// order the pages were gathered.
func userPrompt(pages []model.PageText) (string, error) {
	var buf bytes.Buffer
	buf.WriteString(userPromptHeader)
	buf.WriteByte('{')
	for i, p := range pages {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(p.URL)
		if err != nil {
			return "", eris.Wrap(err, "pipeline: encode page url")
		}
		v, err := json.Marshal(p.Text)
		if err != nil {
			return "", eris.Wrap(err, "pipeline: encode page text")
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.String(), nil
}

// cleanJSON strips markdown fences and any prose around the outermost
// JSON object. A reply that is a JSON array is returned as is.
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimSuffix(s, "```")
		s = strings.TrimSpace(s)
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
		s = strings.TrimSpace(s)
	}
	if strings.HasPrefix(s, "[") {
		return s
	}
	if start := strings.Index(s, "{"); start > 0 {
		s = s[start:]
	}
	if end := strings.LastIndex(s, "}"); end >= 0 && end < len(s)-1 {
		s = s[:end+1]
	}
	return s
}

// fieldValue accepts a string, a list of strings or null. Lists are joined
// with ", ".
type fieldValue string

func (v *fieldValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*v = ""
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = fieldValue(strings.TrimSpace(s))
		return nil
	case len(b) > 0 && b[0] == '[':
		var items []string
		if err := json.Unmarshal(b, &items); err != nil {
			return eris.Wrap(err, "list values must be strings")
		}
		kept := items[:0]
		for _, it := range items {
			if it = strings.TrimSpace(it); it != "" {
				kept = append(kept, it)
			}
		}
		*v = fieldValue(strings.Join(kept, ", "))
		return nil
	default:
		return eris.Errorf("expected string or list, got %s", string(b))
	}
}

type extractionResponse struct {
	CompanyName        *fieldValue         `json:"company_name"`
	CompanyLocation    *fieldValue         `json:"company_location"`
	ProductsOrServices *fieldValue         `json:"products_or_services"`
	CompanyOverview    *fieldValue         `json:"company_overview"`
	TargetClients      *fieldValue         `json:"target_clients"`
	ConfidenceScores   map[string]*float64 `json:"confidence_scores"`
}

func (r *extractionResponse) value(key string) string {
	var v *fieldValue
	switch key {
	case "company_name":
		v = r.CompanyName
	case "company_location":
		v = r.CompanyLocation
	case "products_or_services":
		v = r.ProductsOrServices
	case "company_overview":
		v = r.CompanyOverview
	case "target_clients":
		v = r.TargetClients
	}
	if v == nil {
		return ""
	}
	return string(*v)
}

// extractedField is one non-empty value from a reply.
type extractedField struct {
	Field      model.Field
	Value      string
	Confidence float64
}

// parseExtraction decodes a reply into the non-empty fields it carries.
// Every non-empty field needs a score in [0,1]; anything else rejects the
// whole reply so a record is never partly updated.
func parseExtraction(text string) ([]extractedField, error) {
	cleaned := cleanJSON(text)
	if !strings.HasPrefix(cleaned, "{") {
		return nil, eris.Wrap(ErrMalformedResponse, "no JSON object in reply")
	}

	var resp extractionResponse
	if err := json.Unmarshal([]byte(cleaned), &resp); err != nil {
		return nil, eris.Wrapf(ErrMalformedResponse, "decode: %v", err)
	}

	var out []extractedField
	for _, fk := range fieldKeys {
		v := resp.value(fk.key)
		if v == "" {
			continue
		}
		score, ok := resp.ConfidenceScores[fk.key]
		if !ok || score == nil {
			return nil, eris.Wrapf(ErrMalformedResponse, "missing confidence score for %s", fk.key)
		}
		if err := model.ValidateConfidence(*score); err != nil {
			return nil, eris.Wrapf(ErrMalformedResponse, "%s: %v", fk.key, err)
		}
		out = append(out, extractedField{Field: fk.field, Value: v, Confidence: *score})
	}
	return out, nil
}
