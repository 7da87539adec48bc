package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/mickamy/plandiff/internal/model"
)

// ParseJSON reads a PostgreSQL EXPLAIN (FORMAT JSON) document and produces a
// Document. Structural problems (missing Plan root, non-object nodes) are
// reported here so the analysis packages can assume a well-formed tree.
func ParseJSON(r io.Reader) (*model.Document, error) {
	decoder := json.NewDecoder(r)
	decoder.UseNumber()

	var payload any
	if err := decoder.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode explain json: %w", err)
	}

	entry, err := pickFirstEntry(payload)
	if err != nil {
		return nil, err
	}

	planVal, ok := entry["Plan"]
	if !ok {
		return nil, errors.New("explain json: missing Plan root")
	}

	planMap, err := asObject(planVal)
	if err != nil {
		return nil, fmt.Errorf("explain json: invalid Plan node: %w", err)
	}

	root, err := parsePlanNode(planMap, "0")
	if err != nil {
		return nil, err
	}

	doc := &model.Document{
		Plan:          root,
		PlanningTime:  asFloat(entry["Planning Time"]),
		ExecutionTime: asFloat(entry["Execution Time"]),
		IOReadTime:    asFloat(planMap["I/O Read Time"]),
		IOWriteTime:   asFloat(planMap["I/O Write Time"]),
		Extra:         map[string]any{},
	}

	for k, v := range entry {
		switch k {
		case "Plan", "Planning Time", "Execution Time":
			continue
		}
		doc.Extra[k] = v
	}

	return doc, nil
}

func pickFirstEntry(payload any) (map[string]any, error) {
	switch v := payload.(type) {
	case []any:
		if len(v) == 0 {
			return nil, errors.New("explain json: empty payload")
		}
		obj, err := asObject(v[0])
		if err != nil {
			return nil, fmt.Errorf("explain json: invalid entry: %w", err)
		}
		return obj, nil
	case map[string]any:
		return v, nil
	default:
		return nil, fmt.Errorf("explain json: unexpected top-level type %T", payload)
	}
}

func parsePlanNode(data map[string]any, path string) (*model.PlanNode, error) {
	node := &model.PlanNode{
		NodeType:        asString(data["Node Type"]),
		RelationName:    asString(data["Relation Name"]),
		IndexName:       asString(data["Index Name"]),
		JoinType:        asString(data["Join Type"]),
		SortMethod:      asString(data["Sort Method"]),
		SortSpaceType:   asString(data["Sort Space Type"]),
		StartupCost:     asFloat(data["Startup Cost"]),
		TotalCost:       asFloat(data["Total Cost"]),
		PlanRows:        asFloatPtr(data["Plan Rows"]),
		ActualRows:      asFloatPtr(data["Actual Rows"]),
		ActualLoops:     asFloat(data["Actual Loops"]),
		ActualTotalTime: asFloatPtr(data["Actual Total Time"]),
		Extra:           map[string]any{},
	}

	node.Buffers = parseBuffers(data)

	for i, childVal := range asSlice(data["Plans"]) {
		childMap, err := asObject(childVal)
		if err != nil {
			return nil, fmt.Errorf("parse child plan (%s.%d): %w", path, i, err)
		}
		child, err := parsePlanNode(childMap, fmt.Sprintf("%s.%d", path, i))
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, child)
	}

	for k, v := range data {
		if _, ok := knownKeys[k]; ok {
			continue
		}
		node.Extra[k] = v
	}

	return node, nil
}

var knownKeys = map[string]struct{}{
	"Node Type":             {},
	"Relation Name":         {},
	"Index Name":            {},
	"Join Type":             {},
	"Sort Method":           {},
	"Sort Space Type":       {},
	"Startup Cost":          {},
	"Total Cost":            {},
	"Plan Rows":             {},
	"Actual Rows":           {},
	"Actual Loops":          {},
	"Actual Total Time":     {},
	"Plans":                 {},
	"Shared Hit Blocks":     {},
	"Shared Read Blocks":    {},
	"Shared Dirtied Blocks": {},
	"Shared Written Blocks": {},
	"Temp Read Blocks":      {},
	"Temp Written Blocks":   {},
	"Local Hit Blocks":      {},
	"Local Read Blocks":     {},
	"I/O Read Time":         {},
	"I/O Write Time":        {},
}

func parseBuffers(data map[string]any) model.Buffers {
	return model.Buffers{
		SharedHit:     asInt64(data["Shared Hit Blocks"]),
		SharedRead:    asInt64(data["Shared Read Blocks"]),
		SharedDirtied: asInt64(data["Shared Dirtied Blocks"]),
		SharedWritten: asInt64(data["Shared Written Blocks"]),
		TempRead:      asInt64(data["Temp Read Blocks"]),
		TempWritten:   asInt64(data["Temp Written Blocks"]),
		LocalHit:      asInt64(data["Local Hit Blocks"]),
		LocalRead:     asInt64(data["Local Read Blocks"]),
	}
}

func asObject(val any) (map[string]any, error) {
	if val == nil {
		return nil, errors.New("nil object")
	}
	obj, ok := val.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected object, got %T", val)
	}
	return obj, nil
}

func asSlice(val any) []any {
	if v, ok := val.([]any); ok {
		return v
	}
	return nil
}

func asString(val any) string {
	if val == nil {
		return ""
	}
	switch v := val.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func asFloat(val any) float64 {
	if val == nil {
		return 0
	}
	switch v := val.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0
		}
		return f
	case string:
		if v == "" {
			return 0
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// asFloatPtr preserves the distinction between an absent field and a zero value.
func asFloatPtr(val any) *float64 {
	if val == nil {
		return nil
	}
	f := asFloat(val)
	return &f
}

func asInt64(val any) int64 {
	if val == nil {
		return 0
	}
	switch v := val.(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(math.Round(v))
	case json.Number:
		i, err := v.Int64()
		if err == nil {
			return i
		}
		f, err := v.Float64()
		if err != nil {
			return 0
		}
		return int64(math.Round(f))
	case string:
		if v == "" {
			return 0
		}
		if strings.ContainsRune(v, '.') {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return 0
			}
			return int64(math.Round(f))
		}
		i, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0
		}
		return i
	default:
		return 0
	}
}
