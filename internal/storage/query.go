package storage

import (
	"sort"
	"strings"
	"time"
)

type Op string

const (
	OpEqual         Op = "=="
	OpArrayContains Op = "array-contains"
)

type Predicate struct {
	Field string
	Op    Op
	Value any
}

// Query: коллекция, предикаты равенства/array-contains и одно поле сортировки.
type Query struct {
	Collection string
	Where      []Predicate
	OrderBy    string
	Descending bool
}

func Collection(name string) Query {
	return Query{Collection: name}
}

func (q Query) with(p Predicate) Query {
	where := make([]Predicate, len(q.Where), len(q.Where)+1)
	copy(where, q.Where)
	q.Where = append(where, p)
	return q
}

func (q Query) WhereEqual(field string, v any) Query {
	return q.with(Predicate{Field: field, Op: OpEqual, Value: v})
}

func (q Query) WhereArrayContains(field string, v any) Query {
	return q.with(Predicate{Field: field, Op: OpArrayContains, Value: v})
}

func (q Query) Order(field string, descending bool) Query {
	q.OrderBy = field
	q.Descending = descending
	return q
}

// Match проверяет все предикаты запроса на данных документа.
func (q Query) Match(data map[string]any) bool {
	for _, p := range q.Where {
		v, ok := data[p.Field]
		if !ok {
			return false
		}
		switch p.Op {
		case OpEqual:
			if !equalValues(v, p.Value) {
				return false
			}
		case OpArrayContains:
			if !arrayContains(v, p.Value) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// Apply фильтрует и сортирует документы так, как это делает хранилище для запроса.
func (q Query) Apply(docs []Document) []Document {
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if q.Match(d.Data) {
			out = append(out, d)
		}
	}
	SortDocuments(out, q.OrderBy, q.Descending)
	return out
}

// SortDocuments сортирует по полю; документы без поля идут последними при любом направлении,
// равные значения упорядочены по id.
func SortDocuments(docs []Document, field string, descending bool) {
	sort.SliceStable(docs, func(i, j int) bool {
		if field != "" {
			a, aok := docs[i].Data[field]
			b, bok := docs[j].Data[field]
			aok = aok && a != nil
			bok = bok && b != nil
			switch {
			case aok && !bok:
				return true
			case !aok && bok:
				return false
			case aok && bok:
				if c := compareValues(a, b); c != 0 {
					if descending {
						return c > 0
					}
					return c < 0
				}
			}
		}
		return docs[i].ID < docs[j].ID
	})
}

func arrayContains(v, want any) bool {
	switch arr := v.(type) {
	case []any:
		for _, e := range arr {
			if equalValues(e, want) {
				return true
			}
		}
	case []string:
		for _, e := range arr {
			if equalValues(e, want) {
				return true
			}
		}
	}
	return false
}

func equalValues(a, b any) bool {
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	if fa, ok := number(a); ok {
		fb, ok := number(b)
		return ok && fa == fb
	}
	switch va := a.(type) {
	case string:
		vb, ok := b.(string)
		return ok && va == vb
	case bool:
		vb, ok := b.(bool)
		return ok && va == vb
	}
	return false
}

// compareValues: время < время, числа < числа, строки лексикографически.
// Несравнимые типы упорядочиваются по рангу типа.
func compareValues(a, b any) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch ra {
	case rankBool:
		ba, bb := a.(bool), b.(bool)
		switch {
		case ba == bb:
			return 0
		case !ba:
			return -1
		}
		return 1
	case rankNumber:
		fa, _ := number(a)
		fb, _ := number(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case rankTime:
		return a.(time.Time).Compare(b.(time.Time))
	case rankString:
		return strings.Compare(a.(string), b.(string))
	}
	return 0
}

const (
	rankBool = iota
	rankNumber
	rankTime
	rankString
	rankOther
)

func typeRank(v any) int {
	switch v.(type) {
	case bool:
		return rankBool
	case time.Time:
		return rankTime
	case string:
		return rankString
	}
	if _, ok := number(v); ok {
		return rankNumber
	}
	return rankOther
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
