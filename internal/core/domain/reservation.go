package domain

import "time"

type ReservationStatus string

const (
	ReservationPending    ReservationStatus = "pending"
	ReservationProcessing ReservationStatus = "processing"
	ReservationConfirmed  ReservationStatus = "confirmed"
	ReservationUnassigned ReservationStatus = "unassigned"
	ReservationFailed     ReservationStatus = "failed"
)

type ReservationApplication struct {
	Program        string `json:"program"`
	VisitDate      string `json:"visit_date"`
	VisitHours     string `json:"visit_hours"`
	Visitors       int    `json:"visitors"`
	ApplicantEmail string `json:"applicant_email"`
}

// ReservationReport is the final verdict of the chat-ops bot.
type ReservationReport struct {
	IsSuccess   bool   `json:"is_success"`
	ThreadTS    string `json:"thread_ts"`
	ChannelID   string `json:"channel_id"`
	DocentName  string `json:"docent_name,omitempty"`
	DocentEmail string `json:"docent_email,omitempty"`
}

type Reservation struct {
	ID           string                 `json:"id"`
	Application  ReservationApplication `json:"application"`
	Status       ReservationStatus      `json:"status"`
	Report       *ReservationReport     `json:"report,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// ReservationOptions lists the selectable values of the application form.
type ReservationOptions struct {
	Programs   []string `json:"programs"`
	VisitDates []string `json:"visit_dates"`
	VisitHours []string `json:"visit_hours"`
}

// Mail is one outgoing notification.
type Mail struct {
	To      string
	Cc      string
	Subject string
	Body    string
}
