package domain

// Status is a hiring-pipeline stage. The empty value means "no status detected".
type Status string

const (
	StatusNone        Status = ""
	StatusInterested  Status = "Interested"
	StatusApplied     Status = "Applied"
	StatusPhoneScreen Status = "Phone Screen"
	StatusInterview   Status = "Interview"
	StatusOffer       Status = "Offer"
	StatusRejected    Status = "Rejected"
)

func (s Status) Valid() bool {
	switch s {
	case StatusInterested, StatusApplied, StatusPhoneScreen, StatusInterview, StatusOffer, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no further email-driven transition is expected.
func (s Status) Terminal() bool {
	return s == StatusOffer || s == StatusRejected
}
