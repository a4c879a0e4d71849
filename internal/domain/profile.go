package domain

import "time"

// Profile 身份目录中的一个个人或公司档案。
type Profile struct {
	ID              string    `json:"id"`
	Emails          []string  `json:"emails"`
	MailChatAliases []string  `json:"mailChatAliases"`
	CreatedAt       time.Time `json:"createdAt"`
}

// ProfileQuery 档案查询条件：任一邮箱或任一别名命中即返回。
type ProfileQuery struct {
	Emails  []string
	Aliases []string
}

// IsEmpty 查询条件是否为空
func (q ProfileQuery) IsEmpty() bool {
	return len(q.Emails) == 0 && len(q.Aliases) == 0
}

// ProfileFields 创建档案时的字段
type ProfileFields struct {
	Emails          []string
	MailChatAliases []string
}

// Relation 两个档案之间的关系，按左侧档案的视角查询。
type Relation struct {
	ID             string    `json:"id"`
	LeftProfileID  string    `json:"leftProfileId"`
	RightProfileID string    `json:"rightProfileId"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Counterpart 返回关系中 profileID 的对端，profileID 不在关系中时返回空串
func (r Relation) Counterpart(profileID string) string {
	switch profileID {
	case r.LeftProfileID:
		return r.RightProfileID
	case r.RightProfileID:
		return r.LeftProfileID
	default:
		return ""
	}
}
