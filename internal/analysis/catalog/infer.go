package catalog

import (
	"regexp"
	"strings"
	"time"

	"github.com/koustreak/pgscope/internal/analysis/model"
)

// longStringThreshold is where an observed string stops looking like a
// varchar and starts looking like free text.
const longStringThreshold = 255

var (
	timestampRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}`)
	dateRe      = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	uuidRe      = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
)

// inferType guesses a SQL type from one observed value. Rules:
// ISO-timestamp-shaped strings → timestamp; date-shaped → date;
// UUID-shaped → uuid; long strings → text; other strings → varchar;
// whole numbers → integer, other numbers → numeric; booleans and nested
// objects map directly; arrays are detected structurally.
func inferType(v any) string {
	switch val := v.(type) {
	case bool:
		return "boolean"
	case int, int16, int32, int64:
		return "integer"
	case float32:
		return inferFloat(float64(val))
	case float64:
		return inferFloat(val)
	case time.Time:
		return "timestamp"
	case string:
		switch {
		case timestampRe.MatchString(val):
			return "timestamp"
		case dateRe.MatchString(val):
			return "date"
		case uuidRe.MatchString(val):
			return "uuid"
		case len(val) > longStringThreshold:
			return "text"
		default:
			return "varchar"
		}
	case [16]byte:
		return "uuid"
	case map[string]any:
		return "jsonb"
	case []byte:
		return "bytea"
	case []any:
		return "array"
	default:
		return "varchar"
	}
}

func inferFloat(f float64) string {
	if f == float64(int64(f)) {
		return "integer"
	}
	return "numeric"
}

// irregularPlurals covers the singular→plural forms the english -s rule
// gets wrong for common table names.
var irregularPlurals = map[string]string{
	"person": "people",
	"child":  "children",
	"man":    "men",
	"woman":  "women",
	"foot":   "feet",
	"tooth":  "teeth",
	"goose":  "geese",
	"mouse":  "mice",
	"status": "statuses",
}

// pluralize turns a singular noun into the table name it conventionally maps to.
func pluralize(word string) string {
	if p, ok := irregularPlurals[word]; ok {
		return p
	}
	switch {
	case strings.HasSuffix(word, "s"), strings.HasSuffix(word, "x"),
		strings.HasSuffix(word, "z"), strings.HasSuffix(word, "ch"),
		strings.HasSuffix(word, "sh"):
		return word + "es"
	case strings.HasSuffix(word, "y") && !endsWithVowelY(word):
		return word[:len(word)-1] + "ies"
	default:
		return word + "s"
	}
}

func endsWithVowelY(word string) bool {
	if len(word) < 2 {
		return false
	}
	return strings.ContainsRune("aeiou", rune(word[len(word)-2]))
}

// InferForeignKeys derives foreign-key edges from column naming convention:
// a column "<word>_id" implies a reference to table "<word>s" (with
// irregular-plural exceptions) when such a table exists in the discovered
// set. The result is strictly a heuristic and every edge carries
// ProvenanceInferred.
func InferForeignKeys(cols []model.ColumnProfile, known map[string]bool) []model.ForeignKeyEdge {
	var fks []model.ForeignKeyEdge
	for _, col := range cols {
		word, ok := strings.CutSuffix(col.Name, "_id")
		if !ok || word == "" {
			continue
		}
		target := pluralize(word)
		if !known[target] {
			continue
		}
		fks = append(fks, model.ForeignKeyEdge{
			Column:    col.Name,
			RefTable:  target,
			RefColumn: "id",
			Source:    model.ProvenanceInferred,
		})
	}
	return fks
}
