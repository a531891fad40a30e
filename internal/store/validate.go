package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// The closed operator vocabulary. Anything starting with '$' that is
// not listed here is rejected before touching the datastore; this is
// the system's whole defense against query-semantics injection.
var (
	queryOperators = map[string]bool{
		"$eq": true, "$ne": true,
		"$gt": true, "$gte": true, "$lt": true, "$lte": true,
		"$in": true, "$nin": true,
		"$and": true, "$or": true, "$not": true,
		"$exists": true,
	}
	logicalOperators = map[string]bool{"$and": true, "$or": true}
	updateOperators  = map[string]bool{
		"$set": true, "$unset": true, "$inc": true, "$push": true, "$pull": true,
	}
	pipelineStages = map[string]bool{
		"$match": true, "$project": true, "$sort": true, "$limit": true,
		"$skip": true, "$count": true, "$group": true, "$unwind": true,
	}
	// operators permitted inside non-$match stage bodies: accumulators
	// plus a small arithmetic/string expression set. Field references
	// are plain "$field" strings and need no entry here.
	expressionOperators = map[string]bool{
		"$sum": true, "$avg": true, "$min": true, "$max": true,
		"$first": true, "$last": true, "$push": true, "$addToSet": true,
		"$add": true, "$subtract": true, "$multiply": true, "$divide": true,
		"$size": true, "$concat": true, "$toLower": true, "$toUpper": true,
		"$cond": true, "$ifNull": true,
	}
)

// NormalizeQuery validates a filter against the query operator
// vocabulary and re-types its values. nil is the match-all query.
func NormalizeQuery(query Document) (Document, error) {
	if query == nil {
		return Document{}, nil
	}
	out := Document{}
	for k, v := range query {
		switch {
		case logicalOperators[k]:
			arr, ok := v.([]any)
			if !ok || len(arr) == 0 {
				return nil, fmt.Errorf("%w: %s expects a non-empty array", ErrInvalidQuery, k)
			}
			sub := make([]any, 0, len(arr))
			for _, el := range arr {
				m, ok := el.(map[string]any)
				if !ok {
					return nil, fmt.Errorf("%w: %s elements must be queries", ErrInvalidQuery, k)
				}
				nq, err := NormalizeQuery(m)
				if err != nil {
					return nil, err
				}
				sub = append(sub, nq)
			}
			out[k] = sub
		case strings.HasPrefix(k, "$"):
			return nil, fmt.Errorf("%w: operator %q not allowed at top level", ErrInvalidQuery, k)
		default:
			// field selector: either a direct equality value or a map
			// of comparison operators
			if m, ok := v.(map[string]any); ok && hasOperatorKeys(m) {
				ops, err := normalizeFieldOperators(m)
				if err != nil {
					return nil, err
				}
				out[k] = ops
			} else {
				nv, err := normalizeValue(v)
				if err != nil {
					return nil, fmt.Errorf("%w: field %q: %v", ErrInvalidQuery, k, err)
				}
				out[k] = nv
			}
		}
	}
	return out, nil
}

func hasOperatorKeys(m map[string]any) bool {
	for k := range m {
		if strings.HasPrefix(k, "$") {
			return true
		}
	}
	return false
}

func normalizeFieldOperators(m map[string]any) (map[string]any, error) {
	out := map[string]any{}
	for op, v := range m {
		if !queryOperators[op] || logicalOperators[op] {
			return nil, fmt.Errorf("%w: operator %q not allowed on a field", ErrInvalidQuery, op)
		}
		switch op {
		case "$in", "$nin":
			arr, ok := v.([]any)
			if !ok {
				return nil, fmt.Errorf("%w: %s expects an array", ErrInvalidQuery, op)
			}
			na, err := normalizeValue(arr)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrInvalidQuery, op, err)
			}
			out[op] = na
		case "$exists":
			b, ok := v.(bool)
			if !ok {
				return nil, fmt.Errorf("%w: $exists expects a boolean", ErrInvalidQuery)
			}
			out[op] = b
		case "$not":
			inner, ok := v.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: $not expects an operator map", ErrInvalidQuery)
			}
			ni, err := normalizeFieldOperators(inner)
			if err != nil {
				return nil, err
			}
			out[op] = ni
		default:
			nv, err := normalizeValue(v)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrInvalidQuery, op, err)
			}
			out[op] = nv
		}
	}
	return out, nil
}

// NormalizeUpdate validates a mutation document: every top-level key
// must be a whitelisted update operator and no operator body may touch
// the immutable _id field.
func NormalizeUpdate(patch Document) (Document, error) {
	if len(patch) == 0 {
		return nil, fmt.Errorf("%w: empty update", ErrInvalidUpdate)
	}
	out := Document{}
	for op, body := range patch {
		if !updateOperators[op] {
			return nil, fmt.Errorf("%w: operator %q not allowed", ErrInvalidUpdate, op)
		}
		fields, ok := body.(map[string]any)
		if !ok || len(fields) == 0 {
			return nil, fmt.Errorf("%w: %s expects a non-empty field map", ErrInvalidUpdate, op)
		}
		nf := map[string]any{}
		for field, v := range fields {
			if field == "_id" {
				return nil, fmt.Errorf("%w: _id is immutable", ErrInvalidUpdate)
			}
			if strings.HasPrefix(field, "$") {
				return nil, fmt.Errorf("%w: field name %q", ErrInvalidUpdate, field)
			}
			nv, err := normalizeValue(v)
			if err != nil {
				return nil, fmt.Errorf("%w: field %q: %v", ErrInvalidUpdate, field, err)
			}
			if op == "$inc" && !isNumber(nv) {
				return nil, fmt.Errorf("%w: $inc value for %q must be numeric", ErrInvalidUpdate, field)
			}
			nf[field] = nv
		}
		out[op] = nf
	}
	return out, nil
}

// NormalizeProjection restricts projections to include/exclude flags.
func NormalizeProjection(keys Document) (Document, error) {
	if keys == nil {
		return nil, nil
	}
	out := Document{}
	for field, v := range keys {
		if strings.HasPrefix(field, "$") {
			return nil, fmt.Errorf("%w: projection field %q", ErrInvalidQuery, field)
		}
		switch t := v.(type) {
		case bool:
			if t {
				out[field] = int64(1)
			} else {
				out[field] = int64(0)
			}
		case float64:
			if t != 0 && t != 1 {
				return nil, fmt.Errorf("%w: projection flag for %q", ErrInvalidQuery, field)
			}
			out[field] = int64(t)
		case int, int64:
			nv, _ := normalizeValue(t)
			if nv != int64(0) && nv != int64(1) {
				return nil, fmt.Errorf("%w: projection flag for %q", ErrInvalidQuery, field)
			}
			out[field] = nv
		default:
			return nil, fmt.Errorf("%w: projection flag for %q", ErrInvalidQuery, field)
		}
	}
	return out, nil
}

// NormalizePipeline checks every stage key against the stage
// whitelist and validates $match bodies as queries. The whole
// pipeline is rejected on the first disallowed stage.
func NormalizePipeline(pipeline []Document) ([]Document, error) {
	if len(pipeline) == 0 {
		return nil, fmt.Errorf("%w: empty pipeline", ErrInvalidPipeline)
	}
	out := make([]Document, 0, len(pipeline))
	for i, stage := range pipeline {
		if len(stage) != 1 {
			return nil, fmt.Errorf("%w: stage %d must hold exactly one operator", ErrInvalidPipeline, i)
		}
		for op, body := range stage {
			if !pipelineStages[op] {
				return nil, fmt.Errorf("%w: stage %q not allowed", ErrInvalidPipeline, op)
			}
			if op == "$match" {
				m, ok := body.(map[string]any)
				if !ok {
					return nil, fmt.Errorf("%w: $match expects a query", ErrInvalidPipeline)
				}
				q, err := NormalizeQuery(m)
				if err != nil {
					return nil, fmt.Errorf("%w: stage %d: %v", ErrInvalidPipeline, i, err)
				}
				out = append(out, Document{op: q})
				continue
			}
			nb, err := normalizeExpression(body)
			if err != nil {
				return nil, fmt.Errorf("%w: stage %d: %v", ErrInvalidPipeline, i, err)
			}
			out = append(out, Document{op: nb})
		}
	}
	return out, nil
}

// NormalizeDocument validates a document for insertion: field names
// may not be operators, values come from the closed value set.
func NormalizeDocument(doc Document) (Document, error) {
	if len(doc) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidUpdate)
	}
	out := Document{}
	for field, v := range doc {
		if strings.HasPrefix(field, "$") {
			return nil, fmt.Errorf("%w: field name %q", ErrInvalidUpdate, field)
		}
		nv, err := normalizeValue(v)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q: %v", ErrInvalidUpdate, field, err)
		}
		out[field] = nv
	}
	return out, nil
}

// normalizeExpression validates an aggregation stage body. Map keys
// starting with '$' must come from the expression vocabulary; plain
// field keys and "$field" string references pass through. Values are
// re-typed like any other transport value.
func normalizeExpression(v any) (any, error) {
	switch t := v.(type) {
	case []any:
		out := make([]any, 0, len(t))
		for _, el := range t {
			ne, err := normalizeExpression(el)
			if err != nil {
				return nil, err
			}
			out = append(out, ne)
		}
		return out, nil
	case map[string]any:
		out := map[string]any{}
		for k, el := range t {
			if strings.HasPrefix(k, "$") && !expressionOperators[k] {
				return nil, fmt.Errorf("expression operator %q not allowed", k)
			}
			ne, err := normalizeExpression(el)
			if err != nil {
				return nil, err
			}
			out[k] = ne
		}
		return out, nil
	default:
		return normalizeValue(v)
	}
}

// normalizeValue re-types a raw transport value into the closed set
// {nil, bool, string, int64, float64, time.Time, []any,
// map[string]any}. JSON numbers with integral values become int64.
// '$'-prefixed map keys are rejected; operator positions are handled
// by the dedicated normalizers.
func normalizeValue(v any) (any, error) {
	switch t := v.(type) {
	case nil, bool, string, time.Time:
		return t, nil
	case int:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case int64:
		return t, nil
	case float32:
		return normalizeFloat(float64(t)), nil
	case float64:
		return normalizeFloat(t), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("unparseable number %q", t.String())
		}
		return f, nil
	case []any:
		out := make([]any, 0, len(t))
		for _, el := range t {
			nv, err := normalizeValue(el)
			if err != nil {
				return nil, err
			}
			out = append(out, nv)
		}
		return out, nil
	case map[string]any:
		out := map[string]any{}
		for k, el := range t {
			if strings.HasPrefix(k, "$") {
				return nil, fmt.Errorf("operator key %q not allowed in a value", k)
			}
			nv, err := normalizeValue(el)
			if err != nil {
				return nil, err
			}
			out[k] = nv
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

func normalizeFloat(f float64) any {
	if f == float64(int64(f)) {
		return int64(f)
	}
	return f
}

func isNumber(v any) bool {
	switch v.(type) {
	case int64, float64:
		return true
	}
	return false
}
