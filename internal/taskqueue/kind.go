package taskqueue

// Kind identifies a background task type. Only the kinds enumerated here can
// be registered; unknown names are rejected up front instead of being dropped
// silently at dispatch time.
type Kind string

const (
	KindSendEmail Kind = "send_email"
	KindSendSMS   Kind = "send_sms"
	KindSendPush  Kind = "send_push"
)

func (k Kind) Valid() bool {
	switch k {
	case KindSendEmail, KindSendSMS, KindSendPush:
		return true
	default:
		return false
	}
}

func (k Kind) String() string {
	return string(k)
}
