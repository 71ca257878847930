package audit

import "time"

// Kind classifies an audit event. It is tagged explicitly by the caller at
// write time; readers must never infer it from the free-text details.
type Kind string

const (
	KindLogin             Kind = "LOGIN"
	KindLoginFailed       Kind = "LOGIN_FAILED"
	KindUserCreate        Kind = "USER_CREATE"
	KindUserUpdate        Kind = "USER_UPDATE"
	KindUserDelete        Kind = "USER_DELETE"
	KindProjectCreate     Kind = "PROJECT_CREATE"
	KindProjectUpdate     Kind = "PROJECT_UPDATE"
	KindPhaseApprove      Kind = "PHASE_APPROVE"
	KindProjectFinalize   Kind = "PROJECT_FINALIZE"
	KindObservationCreate Kind = "OBSERVATION_CREATE"
	KindAlertDismiss      Kind = "ALERT_DISMISS"
	KindAlertContact      Kind = "ALERT_CONTACT"
)

var Kinds = []Kind{
	KindLogin,
	KindLoginFailed,
	KindUserCreate,
	KindUserUpdate,
	KindUserDelete,
	KindProjectCreate,
	KindProjectUpdate,
	KindPhaseApprove,
	KindProjectFinalize,
	KindObservationCreate,
	KindAlertDismiss,
	KindAlertContact,
}

func (k Kind) IsValid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

type Event struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Kind      Kind      `json:"kind"`
	Details   string    `json:"details"`
	IPAddress string    `json:"ip_address"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

type QueryFilter struct {
	UserID      string    `query:"user_id"`
	Kind        Kind      `query:"kind"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.UserID == "" && qf.Kind == "" && qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}
