// Package reports derives summary counts and chart series from a query
// result. Everything here is a pure function of its input.
package reports

import (
	"bytes"
	"encoding/json"
	"iter"

	"trustlog/core/store"
)

// OrderedCounts is a label to count mapping that remembers first-seen order.
type OrderedCounts struct {
	keys   []string
	counts map[string]int
}

func (o *OrderedCounts) add(key string) {
	if o.counts == nil {
		o.counts = map[string]int{}
	}
	if _, ok := o.counts[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.counts[key]++
}

func (o OrderedCounts) Keys() []string {
	return append([]string(nil), o.keys...)
}

func (o OrderedCounts) Get(key string) int {
	return o.counts[key]
}

func (o OrderedCounts) Len() int {
	return len(o.keys)
}

// All yields entries in first-seen order.
func (o OrderedCounts) All() iter.Seq2[string, int] {
	return func(yield func(string, int) bool) {
		for _, k := range o.keys {
			if !yield(k, o.counts[k]) {
				return
			}
		}
	}
}

// MarshalJSON writes an object whose keys keep first-seen order.
func (o OrderedCounts) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, _ := json.Marshal(o.counts[k])
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

type Chart struct {
	Labels []string `json:"labels"`
	Values []int    `json:"values"`
}

type Summary struct {
	Total          int           `json:"total"`
	CategoryCounts OrderedCounts `json:"category_counts"`
	Chart          Chart         `json:"chart"`
	ImpactCounts   OrderedCounts `json:"impact_counts"`
}

func CategoryCounts(records []store.RecordSummary) OrderedCounts {
	var out OrderedCounts
	for _, r := range records {
		out.add(r.Category)
	}
	return out
}

// ImpactCounts counts each impact tag once per record that carries it.
func ImpactCounts(records []store.RecordSummary) OrderedCounts {
	var out OrderedCounts
	for _, r := range records {
		for _, it := range r.ImpactTypes {
			out.add(it)
		}
	}
	return out
}

func ChartSeries(counts OrderedCounts) Chart {
	c := Chart{Labels: make([]string, 0, counts.Len()), Values: make([]int, 0, counts.Len())}
	for k, v := range counts.All() {
		c.Labels = append(c.Labels, k)
		c.Values = append(c.Values, v)
	}
	return c
}

func Summarize(records []store.RecordSummary) Summary {
	cats := CategoryCounts(records)
	return Summary{
		Total:          len(records),
		CategoryCounts: cats,
		Chart:          ChartSeries(cats),
		ImpactCounts:   ImpactCounts(records),
	}
}

// SummarizeSeq collects a lazy query result and summarizes it, stopping at the
// first error.
func SummarizeSeq(seq iter.Seq2[store.RecordSummary, error]) (Summary, error) {
	var records []store.RecordSummary
	for rec, err := range seq {
		if err != nil {
			return Summary{}, err
		}
		records = append(records, rec)
	}
	return Summarize(records), nil
}
