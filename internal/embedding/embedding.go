// Package embedding 基于词法特征的确定性伪嵌入
//
// 向量不是语义嵌入：由若干文本特征求和后作为三角函数的种子生成，
// 相同文本总是得到相同向量，不访问任何外部服务。
package embedding

import (
	"crypto/md5"
	"encoding/hex"
	"math"
	"strconv"
	"strings"
)

// Dimension 向量维度
const Dimension = 1536

var (
	formalIndicators = []string{"following", "summary", "commitment", "accordingly", "concerns"}
	casualIndicators = []string{"hi all", "hope you're", "feel free", "questions"}
	technicalTerms   = []string{"VLE", "Behat", "StudyApp", "API", "UI", "defect", "release", "version"}
)

// Func 文本到向量的映射
type Func func(text string) []float64

// Select mockEmbeddings 为 true 时返回 MockEmbed，否则返回 Embed
func Select(mockEmbeddings bool) Func {
	if mockEmbeddings {
		return MockEmbed
	}
	return Embed
}

// Features 参与求和的文本特征
type Features struct {
	Length         int
	WordCount      int
	HasBullets     bool
	HasMarkdown    bool
	HasTable       bool
	Formality      float64
	TechnicalTerms int
}

// Sum 布尔特征按 1/0 计入
func (f Features) Sum() float64 {
	return float64(f.Length) +
		float64(f.WordCount) +
		boolToFloat(f.HasBullets) +
		boolToFloat(f.HasMarkdown) +
		boolToFloat(f.HasTable) +
		f.Formality +
		float64(f.TechnicalTerms)
}

// Extract 计算文本特征
func Extract(text string) Features {
	return Features{
		Length:         len(text),
		WordCount:      WordCount(text),
		HasBullets:     strings.Contains(text, "•") || strings.Contains(text, "*"),
		HasMarkdown:    strings.Contains(text, "**"),
		HasTable:       strings.Contains(text, "|"),
		Formality:      FormalityScore(text),
		TechnicalTerms: CountTechnicalTerms(text),
	}
}

// Embed 返回长度为 Dimension 的未归一化向量：v[i] = sin((sum+i)*0.1)*0.5
func Embed(text string) []float64 {
	sum := Extract(text).Sum()
	vec := make([]float64, Dimension)
	for i := range vec {
		vec[i] = math.Sin((sum+float64(i))*0.1) * 0.5
	}
	return vec
}

// MockEmbed 以 md5 为种子的 L2 归一化向量
func MockEmbed(text string) []float64 {
	sum := md5.Sum([]byte(text))
	hash := hex.EncodeToString(sum[:])

	vec := make([]float64, Dimension)
	var norm float64
	for i := range vec {
		off := (i * 2) % 32
		seed, _ := strconv.ParseUint(hash[off:off+2], 16, 8)
		s := float64(seed)
		fi := float64(i)
		vec[i] = math.Sin(s+fi)*0.5 + math.Cos(s-fi)*0.5
		norm += vec[i] * vec[i]
	}

	norm = math.Sqrt(norm)
	if norm == 0 {
		return vec
	}
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

// FormalityScore formal/(formal+casual+1)，指示词大小写不敏感，每个最多计一次
func FormalityScore(text string) float64 {
	lower := strings.ToLower(text)
	formal, casual := 0, 0
	for _, ind := range formalIndicators {
		if strings.Contains(lower, ind) {
			formal++
		}
	}
	for _, ind := range casualIndicators {
		if strings.Contains(lower, ind) {
			casual++
		}
	}
	return float64(formal) / float64(formal+casual+1)
}

// CountTechnicalTerms 统计术语的不重叠出现次数（大小写不敏感）
func CountTechnicalTerms(text string) int {
	lower := strings.ToLower(text)
	count := 0
	for _, term := range technicalTerms {
		count += strings.Count(lower, strings.ToLower(term))
	}
	return count
}

// WordCount 单词为 ASCII 字母、' 与 - 组成的连续串；
// 整段文本开头的 ' 或 - 以及结尾的 - 不计入单词
func WordCount(text string) int {
	if text == "" {
		return 0
	}
	start, end := 0, len(text)
	if text[0] == '\'' || text[0] == '-' {
		start++
	}
	if end > start && text[end-1] == '-' {
		end--
	}

	count := 0
	inWord := false
	for i := start; i < end; i++ {
		if isWordByte(text[i]) {
			if !inWord {
				count++
				inWord = true
			}
			continue
		}
		inWord = false
	}
	return count
}

func isWordByte(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || b == '\'' || b == '-'
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
