package tag

import (
	"fmt"
	"strings"

	"github.com/charatag/charatag/internal/dataset"
)

func init() {
	MustRegister(Format{Key: "danbooru_tag", Label: "Danbooru 标签", Render: renderDanbooruTag})
	MustRegister(Format{Key: "natural_en", Label: "英文描述", Render: renderNaturalEN})
	MustRegister(Format{Key: "natural_cn", Label: "中文描述", Render: renderNaturalCN})
	MustRegister(Format{Key: "cn_name_source", Label: "中文名+出处", Render: renderCNNameSource})
}

// renderDanbooruTag 优先使用记录自带的 tag 字段；缺失时按
// “角色名_(作品名)” 的站点惯例从名称字段拼一个兜底标签。
func renderDanbooruTag(record dataset.Record) string {
	if tag := strings.TrimSpace(record.Tag); tag != "" {
		return tag
	}

	name := firstNonEmpty(record.NameEN, record.NameCN, "unknown")
	source := firstNonEmpty(record.Source, record.SourceEN, record.SourceCN, "unknown")
	return fmt.Sprintf("%s_(%s)", slugify(name), sourceSlug(source))
}

func renderNaturalEN(record dataset.Record) string {
	name := firstNonEmpty(record.NameEN, record.NameCN, "Unknown")
	source := firstNonEmpty(record.SourceEN, record.SourceCN, "Unknown")
	return fmt.Sprintf("%s from %s", name, source)
}

func renderNaturalCN(record dataset.Record) string {
	name := firstNonEmpty(record.NameCN, record.NameEN, "未知角色")
	source := firstNonEmpty(record.SourceCN, record.SourceEN, "未知作品")
	return fmt.Sprintf("%s来自%s", name, source)
}

// renderCNNameSource 输出 “名称, 出处”，任一部分缺失时只保留另一部分，
// 不产生孤立的逗号。
func renderCNNameSource(record dataset.Record) string {
	name := firstNonEmpty(record.NameCN, record.NameEN)
	source := firstNonEmpty(record.SourceCN, record.SourceEN)

	parts := make([]string, 0, 2)
	if name != "" {
		parts = append(parts, name)
	}
	if source != "" {
		parts = append(parts, source)
	}
	return strings.Join(parts, ", ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// slugify 把角色名折叠成标签片段：小写化，空格与连字符转下划线，
// 冒号删除，圆点符转下划线，最后合并并修剪多余的下划线。
func slugify(raw string) string {
	s := strings.ToLower(raw)
	replacer := strings.NewReplacer(" ", "_", "-", "_", ":", "", "•", "_")
	s = replacer.Replace(s)
	return collapseUnderscores(s)
}

// sourceSlug 作品名只做小写与空格转换，保留连字符等原有符号。
func sourceSlug(raw string) string {
	return strings.ReplaceAll(strings.ToLower(raw), " ", "_")
}

func collapseUnderscores(s string) string {
	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	return strings.Trim(s, "_")
}
