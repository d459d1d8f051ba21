package model

type LoginType string

const (
	LoginGoogle LoginType = "google"
	LoginWeChat LoginType = "wechat"
	LoginPhone  LoginType = "phone"
	LoginGuest  LoginType = "guest"
)

func (t LoginType) Valid() bool {
	switch t {
	case LoginGoogle, LoginWeChat, LoginPhone, LoginGuest:
		return true
	}
	return false
}

type User struct {
	ID           string    `json:"id" gorm:"primaryKey;size:64"`
	Name         string    `json:"name" gorm:"size:128"`
	Avatar       string    `json:"avatar,omitempty" gorm:"size:512"`
	Email        string    `json:"email,omitempty" gorm:"size:255"`
	Phone        string    `json:"phone,omitempty" gorm:"size:32"`
	LoginType    LoginType `json:"loginType" gorm:"size:16"`
	IsLoggedIn   bool      `json:"isLoggedIn"`
	RegisteredAt int64     `json:"registeredAt"`
}

func (User) TableName() string {
	return "users"
}
