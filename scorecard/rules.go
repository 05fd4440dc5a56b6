package scorecard

import (
	"regexp"
	"strconv"
	"strings"
)

// Direction says whether a higher or a lower actual value is better.
type Direction string

const (
	Positive         Direction = "正向"
	Negative         Direction = "逆向"
	UnknownDirection Direction = "unknown"
)

const (
	num    = `([0-9]+\.?[0-9]*)`
	deduct = `(?:扣减|扣|减)`
)

var (
	accidentPatterns = compileAll(
		`每起\s*(?:`+num+`\s*(?:个|单位|起)?\s*)?`+deduct+`\s*`+num+`\s*分`,
		`每\s*`+num+`\s*起\s*`+deduct+`\s*`+num+`\s*分`,
	)

	ratioKeywordPatterns = compileAll(
		`实际\s*[:：]?\s*目标`,
		`达成\s*/\s*目标`,
		`除\s*以\s*目标`,
		`/\s*目标`,
		`÷\s*目标`,
		`按[^，,。；;]{0,8}比例得分`,
		`100分封顶`,
	)
	maxScorePattern = regexp.MustCompile(`最多\s*100分`)

	scoreThresholdPatterns = compileAll(
		`低于\s*([0-9]+)\s*分[,，]?\s*(?:不得分|为0|得0分)`,
		`(?:不足|少于)\s*([0-9]+)\s*分[,，]?\s*(?:不得分|为0|得0分)`,
		`([0-9]+)分\s*(?:以下|为0)\s*(?:不得分|得0分)`,
		`满\s*100分.*?(?:低于|不足)\s*([0-9]+)\s*分[,，]?\s*不得分`,
	)
	scoreThresholdMention = regexp.MustCompile(`(?:低于|不足|少于)\s*([0-9]+)\s*分\s*(?:不得分|为0|得0分)`)

	targetPercentPatterns = compileAll(
		`实际值\s*([<>=≤≥])\s*([0-9]+(?:\.[0-9]+)?)%`,
		`([<>=≤≥])\s*([0-9]+(?:\.[0-9]+)?)%\s*\*\s*目标值`,
	)
	targetPercentClause = regexp.MustCompile(`不得分|得0分|得60分`)

	positiveDeductionPatterns = compileAll(
		`每低于目标值\s*`+num+`%\s*[,，]?\s*`+deduct+`\s*`+num+`\s*分`,
		`每低于\s*`+num+`%\s*[,，]?\s*`+deduct+`\s*`+num+`\s*分`,
		`每低\s*`+num+`%\s*[,，]?\s*`+deduct+`\s*`+num+`\s*分`,
		`每少\s*`+num+`%\s*[,，]?\s*`+deduct+`\s*`+num+`\s*分`,
		`每低于目标值\s*`+num+`\s*分\s*[,，]?\s*`+deduct+`\s*`+num+`\s*分`,
		`每低\s*`+num+`\s*分\s*[,，]?\s*`+deduct+`\s*`+num+`\s*分`,
		`每少\s*`+num+`\s*个\s*[,，]?\s*`+deduct+`\s*`+num+`\s*分`,
		`每起\s*(?:`+num+`\s*(?:个|单位|起)?\s*)?`+deduct+`\s*`+num+`\s*分`,
		`每\s*`+num+`\s*起\s*`+deduct+`\s*`+num+`\s*分`,
		`每(?:少于|降低|[差小降])(?:于目标值)?\s*`+num+`\s*(?:%|[个人次项元万千百]{1,2})?\s*[,，]?\s*`+deduct+`\s*`+num+`\s*分`,
	)

	negativeDeductionPatterns = compileAll(
		`每高于目标值\s*`+num+`%\s*[,，]?\s*`+deduct+`\s*`+num+`\s*分`,
		`每高于\s*`+num+`%\s*[,，]?\s*`+deduct+`\s*`+num+`\s*分`,
		`每高\s*`+num+`%\s*[,，]?\s*`+deduct+`\s*`+num+`\s*分`,
		`每高于目标值\s*`+num+`\s*分\s*[,，]?\s*`+deduct+`\s*`+num+`\s*分`,
		`每高\s*`+num+`\s*分\s*[,，]?\s*`+deduct+`\s*`+num+`\s*分`,
		`每(?:超过|超出|多于|[高超多])(?:于目标值)?\s*`+num+`\s*(?:%|[个人次项元万千百]{1,2})?\s*[,，]?\s*`+deduct+`\s*`+num+`\s*分`,
	)

	explicitPositivePatterns = compileAll(
		`(?:低于|小于)\s*`+num+`%\s*(?:不得分|得0分)`,
		`<\s*`+num+`%\s*(?:不得分|得0分)`,
		`(?:低于|小于)\s*`+num+`%\s*分?\s*(?:不得分|得0分)`,
		`<\s*`+num+`%\s*分?\s*(?:不得分|得0分)`,
	)
	explicitNegativePatterns = compileAll(
		`(?:高于|大于|超过)\s*`+num+`%\s*(?:不得分|得0分)`,
		`>\s*`+num+`%\s*(?:不得分|得0分)`,
		`(?:高于|大于|超过)\s*`+num+`%\s*分?\s*(?:不得分|得0分)`,
		`>\s*`+num+`%\s*分?\s*(?:不得分|得0分)`,
	)
	// Multi-level rules such as "=2400万，得60分" or "完成3个，得60分".
	sixtyPointPatterns = compileAll(
		`=`+num+`\s*(?:万|个|次|项|元|%)?\s*[^0-9.]*?得60分`,
		`=`+num+`\s*(?:万|个|次|项|元|%)?，.*?得60分`,
		`(?:^|[^0-9.])`+num+`\s*(?:万|个|次|项|元|%)\s*[^0-9.]*?得60分`,
		`(?:^|[^0-9.])([0-9]+)\s*，.*?得60分`,
		num+`\s*得60分`,
	)
)

var (
	negativeKeywords = []string{
		"投诉率", "差错率", "故障率", "缺陷率", "不良率", "报废率",
		"成本控制", "控制在", "不超过", "不高于", "每高", "每超",
		"下降", "降低", "越低", "超出", "超支",
	}
	positiveKeywords = []string{
		"完成率", "达成率", "实现率", "增长率", "提升率",
		"收入", "利润", "销售额", "产量", "达标", "超额",
		"越高", "不少于", "每低", "每降", "每差", "每少",
	}
)

func compileAll(patterns ...string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		compiled[i] = regexp.MustCompile(p)
	}
	return compiled
}

func parseNum(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

// Deduction describes a "every X below/above target costs Y points" rule.
type Deduction struct {
	Step      float64
	Points    float64
	Direction Direction
	Percent   bool
}

// ExtractAccident matches incident-count rules ("每起扣10分", "每2起扣5分").
// These are always lower-is-better; a missing count defaults to one.
func ExtractAccident(rule string) (Deduction, bool) {
	rule = strings.TrimSpace(rule)
	for _, re := range accidentPatterns {
		m := re.FindStringSubmatch(rule)
		if m == nil {
			continue
		}
		step := 1.0
		if m[1] != "" {
			step = parseNum(m[1])
		}
		return Deduction{Step: step, Points: parseNum(m[2]), Direction: Negative}, true
	}
	return Deduction{}, false
}

func isRatioRule(rule string) bool {
	for _, re := range ratioKeywordPatterns {
		if re.MatchString(rule) {
			return true
		}
	}
	return false
}

// ExtractRatio matches "actual / target × 100" style rules and returns the
// ratio of target that scores 60 points: the stated score threshold divided
// by 100, or 0.6 when none is stated.
func ExtractRatio(rule string) (float64, Direction, bool) {
	rule = strings.TrimSpace(rule)
	if rule == "" {
		return 0, "", false
	}
	if !isRatioRule(rule) && !maxScorePattern.MatchString(rule) {
		return 0, "", false
	}
	for _, re := range scoreThresholdPatterns {
		if m := re.FindStringSubmatch(rule); m != nil {
			return parseNum(m[1]) / 100, Positive, true
		}
	}
	return 0.6, Positive, true
}

// ExtractTargetPercent matches rules that state the floor as a percentage of
// the target, such as "实际值<85%*目标值，不得分". The returned ratio is the
// percentage as a fraction; ">" floors are lower-is-better.
func ExtractTargetPercent(rule string) (ratio float64, direction Direction, ofTarget bool, ok bool) {
	rule = strings.TrimSpace(rule)
	if !targetPercentClause.MatchString(rule) {
		return 0, "", false, false
	}
	for i, re := range targetPercentPatterns {
		m := re.FindStringSubmatch(rule)
		if m == nil {
			continue
		}
		direction = Positive
		if m[1] == ">" || m[1] == "≥" {
			direction = Negative
		}
		ofTarget = i == 1 || strings.Contains(rule, "目标值")
		return parseNum(m[2]) / 100, direction, ofTarget, true
	}
	return 0, "", false, false
}

// ExtractDeduction matches "每低X%扣Y分" style rules. Percent reports whether
// the step X was written as a percentage.
func ExtractDeduction(rule string) (Deduction, bool) {
	rule = strings.TrimSpace(rule)
	if d, ok := matchDeduction(rule, positiveDeductionPatterns, Positive); ok {
		return d, true
	}
	return matchDeduction(rule, negativeDeductionPatterns, Negative)
}

func matchDeduction(rule string, patterns []*regexp.Regexp, direction Direction) (Deduction, bool) {
	for _, re := range patterns {
		m := re.FindStringSubmatch(rule)
		if m == nil {
			continue
		}
		step := 1.0
		if m[1] != "" {
			step = parseNum(m[1])
		}
		return Deduction{
			Step:      step,
			Points:    parseNum(m[2]),
			Direction: direction,
			Percent:   strings.Contains(m[0], "%"),
		}, true
	}
	return Deduction{}, false
}

// ExtractExplicit matches rules that state the floor directly: "低于85%不得分",
// "高于5%不得分" or the 60-point level of a tiered rule ("=2400万，得60分").
// Score thresholds inside ratio rules ("低于60分不得分") are not floors.
func ExtractExplicit(rule string) (float64, Direction, bool) {
	rule = strings.TrimSpace(rule)
	if rule == "" {
		return 0, "", false
	}

	if scoreThresholdMention.MatchString(rule) && (isRatioRule(rule) || maxScorePattern.MatchString(rule)) {
		return 0, "", false
	}

	if v, ok := firstPercentMatch(rule, explicitPositivePatterns); ok {
		return v, Positive, true
	}
	if v, ok := firstPercentMatch(rule, explicitNegativePatterns); ok {
		return v, Negative, true
	}
	if v, ok := firstPercentMatch(rule, sixtyPointPatterns); ok {
		return v, Positive, true
	}
	return 0, "", false
}

func firstPercentMatch(rule string, patterns []*regexp.Regexp) (float64, bool) {
	for _, re := range patterns {
		m := re.FindStringSubmatch(rule)
		if m == nil {
			continue
		}
		value := parseNum(m[1])
		if strings.Contains(m[0], "%") {
			value /= 100
		}
		return value, true
	}
	return 0, false
}

// DetectDirection votes on the indicator direction from keywords in the rule.
// It returns "" on a tie.
func DetectDirection(rule string) Direction {
	if rule == "" {
		return ""
	}
	pos, neg := 0, 0
	for _, kw := range positiveKeywords {
		if strings.Contains(rule, kw) {
			pos++
		}
	}
	for _, kw := range negativeKeywords {
		if strings.Contains(rule, kw) {
			neg++
		}
	}
	switch {
	case pos > neg:
		return Positive
	case neg > pos:
		return Negative
	}
	return ""
}
