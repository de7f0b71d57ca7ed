package model

type ProctorEventType string

const (
	EventBaseline          ProctorEventType = "baseline"
	EventBaselineNoFace    ProctorEventType = "baseline_no_face"
	EventBaselineMultiFace ProctorEventType = "baseline_multi_face"
	EventNoFace            ProctorEventType = "no_face"
	EventMultiFace         ProctorEventType = "multi_face"
	EventFaceMismatch      ProctorEventType = "face_mismatch"
	EventHighMotion        ProctorEventType = "high_motion"
	EventPeriodic          ProctorEventType = "periodic"
)

// Suspicious 表示该事件属于违规信号（缺席、多人、换人、大幅移动）
func (t ProctorEventType) Suspicious() bool {
	switch t {
	case EventNoFace, EventMultiFace, EventFaceMismatch, EventHighMotion,
		EventBaselineNoFace, EventBaselineMultiFace:
		return true
	}
	return false
}

// ProctorEvent 监考事件，按节流策略落库；ImagePath 仅在保存快照时存在
// swagger:model ProctorEvent
type ProctorEvent struct {
	BaseModel
	SessionID uint             `gorm:"index;not null" json:"SessionId"`
	EventType ProctorEventType `gorm:"size:80;not null" json:"EventType"`
	Score     float64          `gorm:"default:0;not null" json:"Score"`
	Meta      map[string]any   `gorm:"serializer:json;type:text" json:"Meta"`
	ImagePath string           `gorm:"size:500" json:"ImagePath"`
}

func (ProctorEvent) TableName() string {
	return "proctor_events"
}
