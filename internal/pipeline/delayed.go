package pipeline

import "strings"

// delayedRule marks a category of headline whose market impact outlasts the
// publication day. Rules are ordered; the first matching category wins.
type delayedRule struct {
	category string
	keywords []string
}

var delayedRules = []delayedRule{
	{
		category: "earnings",
		keywords: []string{
			"營收", "法說會", "財測", "展望", "接單", "capex", "資本支出",
			"月營收", "季報", "年報", "業績", "獲利", "eps", "毛利率",
		},
	},
	{
		category: "technology",
		keywords: []string{
			"dram", "nand", "hbm", "cowos", "ddr5", "先進製程", "先進封裝",
			"euv", "液冷", "ai伺服器", "gb200", "產能", "擴產",
		},
	},
	{
		category: "policy",
		keywords: []string{
			"關稅", "管制", "補助金", "美國廠", "地緣政治", "貿易戰", "制裁",
		},
	},
}

// delayedValueReason reports whether the text carries a delayed-value signal
// and, if so, which keyword and category triggered it. Used only by the
// relaxed classification mode to rescue negative verdicts.
func delayedValueReason(text string) (string, bool) {
	lowered := strings.ToLower(text)
	for _, rule := range delayedRules {
		for _, keyword := range rule.keywords {
			if strings.Contains(lowered, keyword) {
				return rule.category + ":" + keyword, true
			}
		}
	}
	return "", false
}
