package attendance

import (
	"bytes"
	"encoding/json"
	"image/png"
	"testing"
	"time"

	"xsch-membership-backend/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegment(t *testing.T) {
	base := time.Unix(1_700_000_010, 0)
	assert.Equal(t, int64(56_666_667), Segment(base, DefaultWindow))
	assert.Equal(t, Segment(base, DefaultWindow), Segment(base.Add(29*time.Second), DefaultWindow))
	assert.Equal(t, Segment(base, DefaultWindow)+1, Segment(base.Add(30*time.Second), DefaultWindow))
	assert.Equal(t, Segment(base, DefaultWindow), Segment(base, 0))
}

func TestNewPayload(t *testing.T) {
	now := time.Unix(1_700_000_010, 0)

	_, err := NewPayload("m1", models.SystemConf{}, now, DefaultWindow)
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)

	p, err := NewPayload("m1", models.SystemConf{CurrentEvent: "EVT-1", PointsEvent: 15}, now, DefaultWindow)
	require.NoError(t, err)

	text, err := p.Encode()
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text), &decoded))
	assert.Equal(t, "m1", decoded["user_id"])
	assert.Equal(t, "EVT-1", decoded["event_code"])
	assert.EqualValues(t, 15, decoded["point_awarded"])
	assert.EqualValues(t, 56_666_667, decoded["ts"])

	assert.True(t, p.Fresh(now, DefaultWindow))
	assert.True(t, p.Fresh(now.Add(30*time.Second), DefaultWindow))
	assert.False(t, p.Fresh(now.Add(60*time.Second), DefaultWindow))
}

func TestRenderPNG(t *testing.T) {
	data, err := RenderPNG(Payload{UserID: "m1", EventCode: "EVT-1", PointAwarded: 5, TS: 1}, 256)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 256, img.Bounds().Dx())
}
