package subdoc_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/agentflare-ai/subdoc"
)

func mediumDoc() []byte {
	var sb strings.Builder
	sb.WriteString(`{"count":0,"items":{`)
	for i := 0; i < 200; i++ {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, `"k%d":{"id":%d,"tags":["a","b"],"name":"item %d"}`, i, i, i)
	}
	sb.WriteString(`},"list":[`)
	for i := 0; i < 200; i++ {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%d", i)
	}
	sb.WriteString(`]}`)
	return []byte(sb.String())
}

func BenchmarkParsePath(b *testing.B) {
	for i := 0; i < b.N; i++ {
		if _, err := subdoc.ParsePath("items.`k.1`.tags[1].name[-1]"); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkParseMarshal_Medium(b *testing.B) {
	doc := mediumDoc()
	b.SetBytes(int64(len(doc)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		root, err := subdoc.ParseDocument(doc)
		if err != nil {
			b.Fatal(err)
		}
		_ = subdoc.Marshal(root)
	}
}

func BenchmarkLookup_Medium(b *testing.B) {
	engine := subdoc.NewEngine(subdoc.Options{})
	doc := mediumDoc()
	batch := subdoc.Batch{Specs: []subdoc.Spec{
		spec(subdoc.OpGet, "items.k150.name", ""),
		spec(subdoc.OpExists, "list[199]", ""),
		spec(subdoc.OpGetCount, "items", ""),
	}}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if res := engine.ExecuteLookup(doc, batch); !res.OK() {
			b.Fatal(res.Status)
		}
	}
}

func BenchmarkLookupTree_Medium(b *testing.B) {
	engine := subdoc.NewEngine(subdoc.Options{})
	root, err := subdoc.ParseDocument(mediumDoc())
	if err != nil {
		b.Fatal(err)
	}
	batch := subdoc.Batch{Specs: []subdoc.Spec{spec(subdoc.OpGet, "items.k150.tags[-1]", "")}}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if res := engine.LookupTree(root, batch); !res.OK() {
			b.Fatal(res.Status)
		}
	}
}

func BenchmarkMutation_Medium(b *testing.B) {
	engine := subdoc.NewEngine(subdoc.Options{})
	doc := mediumDoc()
	batch := subdoc.Batch{Specs: []subdoc.Spec{
		spec(subdoc.OpCounter, "count", "1"),
		spec(subdoc.OpDictUpsert, "items.k10.name", `"renamed"`),
		spec(subdoc.OpArrayPushLast, "list", "200"),
		spec(subdoc.OpDelete, "items.k20", ""),
	}}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if res, _ := engine.ExecuteMutation(doc, 0, batch); !res.OK() {
			b.Fatal(res.Status)
		}
	}
}
