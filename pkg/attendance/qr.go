// Package attendance builds the rotating check-in QR a member shows at an
// event.
package attendance

import (
	"encoding/json"
	"fmt"
	"time"

	"xsch-membership-backend/pkg/models"

	"github.com/skip2/go-qrcode"
)

// DefaultWindow 二维码刷新周期
const DefaultWindow = 30 * time.Second

// Payload is the JSON encoded into the QR image.
type Payload struct {
	UserID       string `json:"user_id"`
	EventCode    string `json:"event_code"`
	PointAwarded int    `json:"point_awarded"`
	TS           int64  `json:"ts"`
}

// Segment numbers the window that now falls in.
func Segment(now time.Time, window time.Duration) int64 {
	if window <= 0 {
		window = DefaultWindow
	}
	return now.UnixMilli() / window.Milliseconds()
}

// NewPayload builds the payload for memberID from the current event
// configuration. Without a current event there is nothing to check into.
func NewPayload(memberID string, conf models.SystemConf, now time.Time, window time.Duration) (Payload, error) {
	if conf.CurrentEvent == "" {
		return Payload{}, models.NewValidationError("current_event", "No hay un evento activo")
	}
	return Payload{
		UserID:       memberID,
		EventCode:    conf.CurrentEvent,
		PointAwarded: conf.PointsEvent,
		TS:           Segment(now, window),
	}, nil
}

// Fresh reports whether p was issued in the current or the previous window.
func (p Payload) Fresh(now time.Time, window time.Duration) bool {
	seg := Segment(now, window)
	return p.TS == seg || p.TS == seg-1
}

// Encode 返回二维码中的JSON文本
func (p Payload) Encode() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// RenderPNG encodes p as a size×size PNG QR code.
func RenderPNG(p Payload, size int) ([]byte, error) {
	content, err := p.Encode()
	if err != nil {
		return nil, err
	}
	png, err := qrcode.Encode(content, qrcode.High, size)
	if err != nil {
		return nil, fmt.Errorf("failed to render QR: %w", err)
	}
	return png, nil
}
