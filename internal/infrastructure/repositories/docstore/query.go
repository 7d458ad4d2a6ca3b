package docstore

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"chatgate/internal/core/domain"
)

// Apply filters, orders and limits docs according to q. Documents without
// the order field are dropped. Ties fall back to creation time, then ID, in
// the query direction.
func Apply(docs []domain.Document, q domain.Query) []domain.Document {
	out := make([]domain.Document, 0, len(docs))
	for _, d := range docs {
		if q.OrderBy != "" {
			if _, ok := d.Fields[q.OrderBy]; !ok {
				continue
			}
		}
		out = append(out, d)
	}

	sort.SliceStable(out, func(i, j int) bool {
		c := compareDocuments(out[i], out[j], q.OrderBy)
		if q.Direction == domain.Descending {
			return c > 0
		}
		return c < 0
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

func compareDocuments(a, b domain.Document, field string) int {
	if field != "" {
		if c := CompareValues(a.Fields[field], b.Fields[field]); c != 0 {
			return c
		}
	}
	switch {
	case a.CreateTime.Before(b.CreateTime):
		return -1
	case a.CreateTime.After(b.CreateTime):
		return 1
	}
	return strings.Compare(string(a.ID), string(b.ID))
}

// CompareValues orders field values: nil < bool < number < time < string.
// Values of other types compare equal to each other.
func CompareValues(a, b interface{}) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}

	switch ra {
	case rankBool:
		ab, bb := a.(bool), b.(bool)
		switch {
		case ab == bb:
			return 0
		case !ab:
			return -1
		}
		return 1
	case rankNumber:
		af, bf := toFloat(a), toFloat(b)
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	case rankTime:
		at, bt := a.(time.Time), b.(time.Time)
		switch {
		case at.Before(bt):
			return -1
		case at.After(bt):
			return 1
		}
		return 0
	case rankString:
		return strings.Compare(a.(string), b.(string))
	}
	return 0
}

const (
	rankNil = iota
	rankBool
	rankNumber
	rankTime
	rankString
	rankOther
)

func rank(v interface{}) int {
	switch v.(type) {
	case nil:
		return rankNil
	case bool:
		return rankBool
	case int, int32, int64, float32, float64, json.Number:
		return rankNumber
	case time.Time:
		return rankTime
	case string:
		return rankString
	}
	return rankOther
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	case float64:
		return n
	case json.Number:
		f, _ := n.Float64()
		return f
	}
	return 0
}
