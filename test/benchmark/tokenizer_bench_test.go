package benchmark

import (
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/bm25-search/internal/indexer/tokenizer"
)

var sampleTexts = map[string]string{
	"latin":   "The quick brown fox jumps over the lazy dog",
	"chinese": "自然语言处理是人工智能领域的一个重要方向，机器学习和深度学习技术被广泛应用于文本分类与信息检索。",
	"mixed":   "BM25 是信息检索中常用的排序函数，Python 和 Rust 都有高性能实现，k1=1.5 与 b=0.75 是常见的默认参数。",
	"long": strings.Repeat("搜索引擎使用倒排索引把每个词映射到包含它的文档，"+
		"并根据词频、逆文档频率和文档长度计算 relevance scores。", 40),
}

func BenchmarkSegmentMixed(b *testing.B) {
	seg := mixed(b)
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = seg.Segment(text)
			}
		})
	}
}

func BenchmarkSegmentMixedParallel(b *testing.B) {
	seg := mixed(b)
	text := sampleTexts["mixed"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = seg.Segment(text)
		}
	})
}

func BenchmarkSegmentSimple(b *testing.B) {
	text := sampleTexts["latin"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	for i := 0; i < b.N; i++ {
		_ = tokenizer.Simple{}.Segment(text)
	}
}

func BenchmarkAnalyzerLowercase(b *testing.B) {
	a := tokenizer.NewAnalyzer(mixed(b), true)
	text := sampleTexts["mixed"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	for i := 0; i < b.N; i++ {
		_ = a.Terms(text)
	}
}
