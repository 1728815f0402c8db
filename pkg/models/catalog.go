package models

import "time"

// Event 活动（首页轮播）
type Event struct {
	ID           int64     `json:"id" db:"id"`
	Name         *string   `json:"name" db:"name"`
	ImageLink    string    `json:"image_link" db:"image_link"`
	RedirectLink *string   `json:"redirect_link" db:"redirect_link"`
	EventCode    *string   `json:"event_code" db:"event_code"`
	IsDelete     bool      `json:"is_delete" db:"is_delete"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// SocialMediaManager 社交媒体负责人
type SocialMediaManager struct {
	ID           int64     `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Phone        string    `json:"phone" db:"phone"`
	TeamSize     int       `json:"team_size" db:"team_size"`
	IsHidden     bool      `json:"is_hidden" db:"is_hidden"`
	TotalMembers int       `json:"total_miembros" db:"total_miembros"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Product 商店商品
type Product struct {
	ID          int64   `json:"id" db:"id"`
	Title       string  `json:"title" db:"title"`
	Description string  `json:"description,omitempty" db:"description"`
	Price       float64 `json:"price" db:"price"`
	Image       string  `json:"image,omitempty" db:"image"`
}

// SystemConf 全局配置（单行表 system_conf）
type SystemConf struct {
	ShopWhatsapp string `json:"shop_whatsapp" db:"shop_whatsapp"`
	CurrentEvent string `json:"current_event" db:"current_event"`
	PointsEvent  int    `json:"points_event" db:"points_event"`
}

// DonationQR 捐款二维码（qr_link 表最新一行）
type DonationQR struct {
	ID          int64  `json:"id" db:"id"`
	URLImage    string `json:"url_image" db:"url_image"`
	Comprobante string `json:"comprobante" db:"comprobante"` // WhatsApp number for receipts
}

// Statistics 成员进度展示配置
type Statistics struct {
	FakeMembersCount int `json:"fake_members_count" db:"fake_members_count"`
	TargetGoal       int `json:"target_goal" db:"target_goal"`
	Trending         int `json:"trending" db:"trending"`
}
