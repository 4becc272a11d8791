package model

// User 是当前登录用户的资料。身份认证流程不在本系统内，这里只是一个不透明的快照。
type User struct {
	UID       string `json:"uid"`
	Name      string `json:"name"`
	MuID      string `json:"muId"`
	Email     string `json:"email"`
	IsPremium bool   `json:"isPremium"`
}
