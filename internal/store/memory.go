package store

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
)

// MemoryRepository is an in-process Repository used by unit tests and
// local development. It evaluates the same operator vocabulary the
// validator admits; aggregation supports the subset of stages the
// tests and dev flows need.
type MemoryRepository struct {
	mu          sync.RWMutex
	collections map[string][]Document
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{collections: map[string][]Document{}}
}

func (r *MemoryRepository) Find(ctx context.Context, collection string, query, projection Document) ([]Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []Document{}
	for _, d := range r.collections[collection] {
		if matchDocument(d, query) {
			out = append(out, project(cloneDocument(d), projection))
		}
	}
	return out, nil
}

func (r *MemoryRepository) Insert(ctx context.Context, collection string, docs []Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing := map[any]bool{}
	for _, d := range r.collections[collection] {
		existing[d["_id"]] = true
	}
	for _, d := range docs {
		if existing[d["_id"]] {
			return fmt.Errorf("%w: _id %v", ErrConflict, d["_id"])
		}
		existing[d["_id"]] = true
	}
	for _, d := range docs {
		r.collections[collection] = append(r.collections[collection], cloneDocument(d))
	}
	return nil
}

func (r *MemoryRepository) Update(ctx context.Context, collection string, query, patch Document) (int64, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched, modified int64
	for _, d := range r.collections[collection] {
		if !matchDocument(d, query) {
			continue
		}
		matched++
		if applyPatch(d, patch) {
			modified++
		}
	}
	return matched, modified, nil
}

func (r *MemoryRepository) Delete(ctx context.Context, collection string, query Document) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.collections[collection][:0]
	var deleted int64
	for _, d := range r.collections[collection] {
		if matchDocument(d, query) {
			deleted++
			continue
		}
		kept = append(kept, d)
	}
	r.collections[collection] = kept
	return deleted, nil
}

func (r *MemoryRepository) Aggregate(ctx context.Context, collection string, pipeline []Document) ([]Document, error) {
	r.mu.RLock()
	docs := make([]Document, 0, len(r.collections[collection]))
	for _, d := range r.collections[collection] {
		docs = append(docs, cloneDocument(d))
	}
	r.mu.RUnlock()

	for _, stage := range pipeline {
		for op, body := range stage {
			var err error
			docs, err = applyStage(docs, op, body)
			if err != nil {
				return nil, err
			}
		}
	}
	return docs, nil
}

func applyStage(docs []Document, op string, body any) ([]Document, error) {
	switch op {
	case "$match":
		q, _ := body.(map[string]any)
		out := []Document{}
		for _, d := range docs {
			if matchDocument(d, q) {
				out = append(out, d)
			}
		}
		return out, nil
	case "$sort":
		spec, ok := body.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: $sort expects a field map", ErrInvalidPipeline)
		}
		// deterministic multi-key ordering: sort key names first
		fields := make([]string, 0, len(spec))
		for f := range spec {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		sorted := append([]Document{}, docs...)
		sort.SliceStable(sorted, func(i, j int) bool {
			for _, f := range fields {
				dir := int64(1)
				if v, ok := toInt64(spec[f]); ok {
					dir = v
				}
				cmp, ok := compareValues(sorted[i][f], sorted[j][f])
				if !ok || cmp == 0 {
					continue
				}
				if dir < 0 {
					return cmp > 0
				}
				return cmp < 0
			}
			return false
		})
		return sorted, nil
	case "$skip":
		n, _ := toInt64(body)
		if n >= int64(len(docs)) {
			return []Document{}, nil
		}
		return docs[n:], nil
	case "$limit":
		n, _ := toInt64(body)
		if n < int64(len(docs)) {
			return docs[:n], nil
		}
		return docs, nil
	case "$count":
		name, ok := body.(string)
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: $count expects a field name", ErrInvalidPipeline)
		}
		return []Document{{name: int64(len(docs))}}, nil
	case "$project":
		spec, ok := body.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: $project expects a field map", ErrInvalidPipeline)
		}
		out := make([]Document, 0, len(docs))
		for _, d := range docs {
			out = append(out, project(d, spec))
		}
		return out, nil
	case "$unwind":
		path, ok := body.(string)
		if !ok || !strings.HasPrefix(path, "$") {
			return nil, fmt.Errorf("%w: $unwind expects a $field path", ErrInvalidPipeline)
		}
		field := strings.TrimPrefix(path, "$")
		out := []Document{}
		for _, d := range docs {
			arr, ok := d[field].([]any)
			if !ok {
				continue
			}
			for _, el := range arr {
				nd := cloneDocument(d)
				nd[field] = el
				out = append(out, nd)
			}
		}
		return out, nil
	case "$group":
		return groupStage(docs, body)
	default:
		return nil, fmt.Errorf("%w: stage %q not supported by the memory repository", ErrInvalidPipeline, op)
	}
}

// groupStage supports _id grouping by "$field" (or nil for a single
// bucket) with $sum accumulators, which covers the dev/test flows.
func groupStage(docs []Document, body any) ([]Document, error) {
	spec, ok := body.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: $group expects a document", ErrInvalidPipeline)
	}
	keyOf := func(d Document) any {
		if ref, ok := spec["_id"].(string); ok && strings.HasPrefix(ref, "$") {
			return d[strings.TrimPrefix(ref, "$")]
		}
		return nil
	}
	type bucket struct {
		key  any
		docs []Document
	}
	order := []string{}
	buckets := map[string]*bucket{}
	for _, d := range docs {
		k := fmt.Sprintf("%v", keyOf(d))
		b, ok := buckets[k]
		if !ok {
			b = &bucket{key: keyOf(d)}
			buckets[k] = b
			order = append(order, k)
		}
		b.docs = append(b.docs, d)
	}
	out := []Document{}
	for _, k := range order {
		b := buckets[k]
		res := Document{"_id": b.key}
		for name, acc := range spec {
			if name == "_id" {
				continue
			}
			am, ok := acc.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: accumulator %q", ErrInvalidPipeline, name)
			}
			expr, ok := am["$sum"]
			if !ok {
				return nil, fmt.Errorf("%w: only $sum accumulators are supported in memory", ErrInvalidPipeline)
			}
			var sum float64
			for _, d := range b.docs {
				switch e := expr.(type) {
				case string:
					if strings.HasPrefix(e, "$") {
						if f, ok := toFloat(d[strings.TrimPrefix(e, "$")]); ok {
							sum += f
						}
					}
				default:
					if f, ok := toFloat(e); ok {
						sum += f
					}
				}
			}
			res[name] = normalizeFloat(sum)
		}
		out = append(out, res)
	}
	return out, nil
}

func matchDocument(d, query Document) bool {
	for k, cond := range query {
		switch k {
		case "$and":
			for _, sub := range cond.([]any) {
				if !matchDocument(d, sub.(map[string]any)) {
					return false
				}
			}
		case "$or":
			hit := false
			for _, sub := range cond.([]any) {
				if matchDocument(d, sub.(map[string]any)) {
					hit = true
					break
				}
			}
			if !hit {
				return false
			}
		default:
			v, exists := d[k]
			if ops, ok := cond.(map[string]any); ok && hasOperatorKeys(ops) {
				if !matchOperators(v, exists, ops) {
					return false
				}
			} else if !exists || !valuesEqual(v, cond) {
				return false
			}
		}
	}
	return true
}

func matchOperators(v any, exists bool, ops map[string]any) bool {
	for op, arg := range ops {
		switch op {
		case "$eq":
			if !exists || !valuesEqual(v, arg) {
				return false
			}
		case "$ne":
			if exists && valuesEqual(v, arg) {
				return false
			}
		case "$gt", "$gte", "$lt", "$lte":
			cmp, ok := compareValues(v, arg)
			if !exists || !ok {
				return false
			}
			switch op {
			case "$gt":
				if cmp <= 0 {
					return false
				}
			case "$gte":
				if cmp < 0 {
					return false
				}
			case "$lt":
				if cmp >= 0 {
					return false
				}
			case "$lte":
				if cmp > 0 {
					return false
				}
			}
		case "$in":
			if !exists || !containsValue(arg, v) {
				return false
			}
		case "$nin":
			if exists && containsValue(arg, v) {
				return false
			}
		case "$exists":
			if arg.(bool) != exists {
				return false
			}
		case "$not":
			if matchOperators(v, exists, arg.(map[string]any)) {
				return false
			}
		}
	}
	return true
}

func containsValue(arr any, v any) bool {
	list, ok := arr.([]any)
	if !ok {
		return false
	}
	for _, el := range list {
		if valuesEqual(v, el) {
			return true
		}
	}
	return false
}

func valuesEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

// compareValues orders numbers and strings; other types are not
// comparable and fail the comparison operators.
func compareValues(a, b any) (int, bool) {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	sa, ok := a.(string)
	if !ok {
		return 0, false
	}
	sb, ok := b.(string)
	if !ok {
		return 0, false
	}
	return strings.Compare(sa, sb), true
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	}
	return 0, false
}

func toInt64(v any) (int64, bool) {
	f, ok := toFloat(v)
	if !ok {
		return 0, false
	}
	return int64(f), true
}

func applyPatch(d, patch Document) bool {
	changed := false
	for op, body := range patch {
		fields := body.(map[string]any)
		switch op {
		case "$set":
			for f, v := range fields {
				if cur, ok := d[f]; !ok || !valuesEqual(cur, v) {
					d[f] = v
					changed = true
				}
			}
		case "$unset":
			for f := range fields {
				if _, ok := d[f]; ok {
					delete(d, f)
					changed = true
				}
			}
		case "$inc":
			for f, v := range fields {
				delta, _ := toFloat(v)
				cur, _ := toFloat(d[f])
				d[f] = normalizeFloat(cur + delta)
				changed = true
			}
		case "$push":
			for f, v := range fields {
				arr, _ := d[f].([]any)
				d[f] = append(arr, v)
				changed = true
			}
		case "$pull":
			for f, v := range fields {
				arr, ok := d[f].([]any)
				if !ok {
					continue
				}
				kept := arr[:0]
				for _, el := range arr {
					if valuesEqual(el, v) {
						changed = true
						continue
					}
					kept = append(kept, el)
				}
				d[f] = kept
			}
		}
	}
	return changed
}

func project(d Document, spec Document) Document {
	if len(spec) == 0 {
		return d
	}
	include := false
	for f, flag := range spec {
		if f == "_id" {
			continue
		}
		if n, ok := toInt64(flag); ok && n == 1 {
			include = true
		}
	}
	out := Document{}
	if include {
		if flag, ok := spec["_id"]; !ok {
			out["_id"] = d["_id"]
		} else if n, _ := toInt64(flag); n == 1 {
			out["_id"] = d["_id"]
		}
		for f, flag := range spec {
			if n, ok := toInt64(flag); ok && n == 1 && f != "_id" {
				if v, ok := d[f]; ok {
					out[f] = v
				}
			}
		}
		return out
	}
	for k, v := range d {
		out[k] = v
	}
	for f, flag := range spec {
		if n, ok := toInt64(flag); ok && n == 0 {
			delete(out, f)
		}
	}
	return out
}

func cloneDocument(d Document) Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneDocument(t)
	case []any:
		out := make([]any, len(t))
		for i, el := range t {
			out[i] = cloneValue(el)
		}
		return out
	}
	return v
}
