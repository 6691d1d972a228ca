package dataset

import "fmt"

// Record 描述单个角色条目，字段与数据集 JSON 一一对应，缺失字段视为空串。
type Record struct {
	NameCN   string `json:"name_cn"`
	NameEN   string `json:"name_en"`
	SourceCN string `json:"source_cn"`
	SourceEN string `json:"source_en"`
	Source   string `json:"source"`
	Tag      string `json:"tag"`
	IconURL  string `json:"icon_url"`
}

// DisplayName 产出用户可见的角色名：中英齐全时为 “中文名 (English)”，
// 否则退回任一非空名称。两者皆空返回空串，这类记录不会出现在任何列表中，
// 也无法被查找命中。
func (r Record) DisplayName() string {
	if r.NameCN != "" && r.NameEN != "" {
		return fmt.Sprintf("%s (%s)", r.NameCN, r.NameEN)
	}
	if r.NameCN != "" {
		return r.NameCN
	}
	return r.NameEN
}
