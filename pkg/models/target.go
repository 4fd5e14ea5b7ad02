package models

// TargetKind identifies who a step operator or manager entry points at.
type TargetKind string

const (
	TargetUser  TargetKind = "user"
	TargetLabel TargetKind = "label"
	TargetNone  TargetKind = "none"
)

// Target designates either a single user, every member of a label, or nobody.
// A none target on a step means the assignee is fixed at ticket creation.
type Target struct {
	Kind    TargetKind `json:"kind"`
	UserID  *string    `json:"user_id,omitempty"`
	LabelID *string    `json:"label_id,omitempty"`
}

func UserTarget(userID string) Target {
	return Target{Kind: TargetUser, UserID: &userID}
}

func LabelTarget(labelID string) Target {
	return Target{Kind: TargetLabel, LabelID: &labelID}
}

func NoTarget() Target {
	return Target{Kind: TargetNone}
}
