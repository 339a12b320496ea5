package model

import "time"

// 对话角色。
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Policy 是对话引擎的策略变体，决定生成前附加的约束集。
type Policy string

const (
	// PolicyGuideline 只允许依据检索到的段落作答。
	PolicyGuideline Policy = "guideline"
	// PolicySpecialist 允许补充领域专家经验，但引用仍须来自检索结果。
	PolicySpecialist Policy = "specialist"
)

// Valid 报告策略取值是否合法。
func (p Policy) Valid() bool {
	return p == PolicyGuideline || p == PolicySpecialist
}

// ChatTurn 代表对话中的一条消息。
// Citations 仅允许引用本轮检索结果中的 Passage ID。
type ChatTurn struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Citations []string  `json:"citations,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
