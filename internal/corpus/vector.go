package corpus

import "math"

// Cosine 计算两个向量的余弦相似度。任一向量为零向量时返回 0。
func Cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Relevance 把余弦相似度归一化到 [0,1] 并截断，作为检索相关度。
func Relevance(cos float64) float64 {
	return Clamp01((1 + cos) / 2)
}

// Clamp01 将数值截断到 [0,1] 区间。
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
