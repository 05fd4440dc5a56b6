package scorecard

import (
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

var fullWidthReplacer = strings.NewReplacer(
	"＜", "<", "＞", ">", "＝", "=", "＊", "*",
	"（", "(", "）", ")", "％", "%", "＋", "+",
	"－", "-", "／", "/", "．", ".", "　", " ",
	"０", "0", "１", "1", "２", "2", "３", "3", "４", "4",
	"５", "5", "６", "6", "７", "7", "８", "8", "９", "9",
)

// NormalizeFullWidth converts the full-width comparison operators, brackets,
// percent sign and digits that appear in hand-typed rules to ASCII. The
// full-width comma and colon are kept: the rule patterns accept both forms.
func NormalizeFullWidth(s string) string {
	return fullWidthReplacer.Replace(s)
}

// targetUnits are stripped from the end of a target value before parsing.
var targetUnits = []string{
	"万元", "千元", "百元", "亿元",
	"分", "个", "人", "份", "例", "种", "场",
	"万", "千", "次", "项", "元", "起", "件",
	"台", "套", "吨", "株", "亩", "公斤", "千克",
	"立方米", "平米", "平方米", "㎡", "m²", "m³",
	"小时", "天", "日", "周", "月", "年",
	"公里", "千米", "米", "m", "km",
	"升", "ml", "l", "g", "kg",
	"分钟", "秒",
}

// unitsLongestFirst avoids "米" matching before "立方米".
var unitsLongestFirst = func() []string {
	units := append([]string(nil), targetUnits...)
	sort.SliceStable(units, func(i, j int) bool {
		return utf8.RuneCountInString(units[i]) > utf8.RuneCountInString(units[j])
	})
	return units
}()

// NormalizeTarget parses a raw target cell. "85%" yields (0.85, true);
// "85分", "10个" or "1,000万元" yield the bare number. Empty or unparseable
// values yield (0, false).
func NormalizeTarget(raw string) (float64, bool) {
	value := strings.TrimSpace(NormalizeFullWidth(raw))
	if value == "" {
		return 0, false
	}
	value = strings.ReplaceAll(value, ",", "")

	if strings.Contains(value, "%") {
		num := strings.TrimSpace(strings.ReplaceAll(value, "%", ""))
		f, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return 0, false
		}
		return f / 100, true
	}

	for _, unit := range unitsLongestFirst {
		if strings.HasSuffix(value, unit) {
			value = strings.TrimSpace(strings.TrimSuffix(value, unit))
			break
		}
	}

	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false
	}
	return f, false
}
