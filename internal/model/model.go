package model

import (
	"errors"
	"strings"
	"time"
)

type Role string

const (
	RoleUser   Role = "user"
	RoleExpert Role = "expert"
	RoleAdmin  Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleExpert, RoleAdmin:
		return true
	}
	return false
}

type User struct {
	ID           string
	Email        string
	PasswordHash string
	Name         string
	Role         Role
	Phone        string
	PhotoURL     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Expert is the public profile of a user with RoleExpert. ID is the user id.
type Expert struct {
	ID          string
	Name        string
	Specialty   string
	Bio         string
	FeeCents    int64
	PhotoURL    string
	Rating      float64
	ReviewCount int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Availability maps a capitalised weekday name to the free-text slots the
// expert declared for it. Slots are kept as entered.
type Availability struct {
	ExpertID  string
	Days      map[string][]string
	UpdatedAt time.Time
}

// Slots returns the declared slots for the weekday of d.
func (a *Availability) Slots(d time.Time) []string {
	if a == nil || a.Days == nil {
		return nil
	}
	return a.Days[d.Weekday().String()]
}

var ErrBadWeekday = errors.New("unknown weekday")

// NormalizeWeekday maps "monday", "MONDAY" etc. to "Monday".
func NormalizeWeekday(s string) (string, error) {
	s = strings.TrimSpace(s)
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(s, d.String()) {
			return d.String(), nil
		}
	}
	return "", ErrBadWeekday
}

const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD day in UTC.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
}

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusAccepted  AppointmentStatus = "accepted"
	StatusRejected  AppointmentStatus = "rejected"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRejected, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Active reports whether the appointment still holds its slot.
func (s AppointmentStatus) Active() bool {
	return s != StatusRejected && s != StatusCancelled
}

// CanTransition reports whether an appointment may move from one status to
// another. byExpert is true when the expert of the appointment acts.
func CanTransition(from, to AppointmentStatus, byExpert bool) bool {
	switch {
	case from == StatusPending && (to == StatusAccepted || to == StatusRejected):
		return byExpert
	case (from == StatusPending || from == StatusAccepted) && to == StatusCancelled:
		return true
	case from == StatusAccepted && to == StatusCompleted:
		return byExpert
	}
	return false
}

type Appointment struct {
	ID        string
	UserID    string
	ExpertID  string
	Date      time.Time
	Time      string
	Note      string
	Status    AppointmentStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

type AppointmentFilter struct {
	UserID   string
	ExpertID string
	Status   AppointmentStatus
}

type Product struct {
	ID          string
	Name        string
	Description string
	PriceCents  int64
	ImageURL    string
	Category    string
	Rating      float64
	ReviewCount int
	CreatedAt   time.Time
}

type ReviewTarget string

const (
	TargetExpert  ReviewTarget = "expert"
	TargetProduct ReviewTarget = "product"
)

type Review struct {
	ID         string
	UserID     string
	UserName   string
	TargetKind ReviewTarget
	TargetID   string
	Rating     int
	Comment    string
	CreatedAt  time.Time
}

type ResourceKind string

const (
	KindArticle     ResourceKind = "article"
	KindVideo       ResourceKind = "video"
	KindInfographic ResourceKind = "infographic"
)

func (k ResourceKind) Valid() bool {
	return k == KindArticle || k == KindVideo || k == KindInfographic
}

type Resource struct {
	ID        string
	AuthorID  string
	Kind      ResourceKind
	Title     string
	Body      string
	MediaURL  string
	SourceURL string
	Likes     int64
	Views     int64
	Comments  int64
	CreatedAt time.Time
}

type Comment struct {
	ID         string
	ResourceID string
	UserID     string
	UserName   string
	Body       string
	CreatedAt  time.Time
}

type Score struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

type HistoryEntry struct {
	ID         string
	UserID     string
	ImageURL   string
	Label      string
	Confidence float64
	Scores     []Score
	CreatedAt  time.Time
}

type ResourceFeed struct {
	ID            string
	URL           string
	Kind          ResourceKind
	LastFetchedAt *time.Time
	CreatedAt     time.Time
}

// Event is pushed to connected clients of a user.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}
