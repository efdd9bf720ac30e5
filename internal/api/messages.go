// Package api holds the request and response messages of the
// dermalink.v1.Dermalink service. Messages travel as JSON over both the
// native gRPC transport and the gRPC-Web bridge.
package api

import "time"

// auth

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Role     string `json:"role,omitempty"`
}

type RegisterResponse struct {
	UserID       string `json:"user_id"`
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	UserID       string `json:"user_id"`
	Name         string `json:"name"`
	Role         string `json:"role"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type RefreshResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
}

type LogoutRequest struct{}
type LogoutResponse struct{}

// profile

type Profile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Phone     string    `json:"phone,omitempty"`
	PhotoURL  string    `json:"photo_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type GetProfileRequest struct{}

type GetProfileResponse struct {
	Profile *Profile `json:"profile"`
}

type UpdateProfileRequest struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	PhotoURL string `json:"photo_url"`
}

type UpdateProfileResponse struct {
	Profile *Profile `json:"profile"`
}

// experts

type Expert struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Specialty   string  `json:"specialty"`
	Bio         string  `json:"bio"`
	FeeCents    int64   `json:"fee_cents"`
	PhotoURL    string  `json:"photo_url,omitempty"`
	Rating      float64 `json:"rating"`
	ReviewCount int     `json:"review_count"`
}

type UpsertExpertProfileRequest struct {
	Specialty string `json:"specialty"`
	Bio       string `json:"bio"`
	FeeCents  int64  `json:"fee_cents"`
	PhotoURL  string `json:"photo_url"`
}

type UpsertExpertProfileResponse struct {
	Expert *Expert `json:"expert"`
}

type ListExpertsRequest struct {
	Specialty string `json:"specialty,omitempty"`
}

type ListExpertsResponse struct {
	Experts []*Expert `json:"experts"`
}

type GetExpertRequest struct {
	ID string `json:"id"`
}

type GetExpertResponse struct {
	Expert *Expert `json:"expert"`
}

// availability

type GetAvailabilityRequest struct {
	ExpertID string `json:"expert_id"`
}

type GetAvailabilityResponse struct {
	ExpertID string              `json:"expert_id"`
	Days     map[string][]string `json:"days"`
}

type SetAvailabilityRequest struct {
	Days map[string][]string `json:"days"`
}

type SetAvailabilityResponse struct {
	ExpertID string              `json:"expert_id"`
	Days     map[string][]string `json:"days"`
}

// appointments

type Appointment struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ExpertID  string    `json:"expert_id"`
	Date      string    `json:"date"`
	Time      string    `json:"time"`
	Note      string    `json:"note,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type BookAppointmentRequest struct {
	ExpertID string `json:"expert_id"`
	Date     string `json:"date"`
	Time     string `json:"time"`
	Note     string `json:"note,omitempty"`
}

type BookAppointmentResponse struct {
	Appointment *Appointment `json:"appointment"`
}

type ListAppointmentsRequest struct {
	Status string `json:"status,omitempty"`
}

type ListAppointmentsResponse struct {
	Appointments []*Appointment `json:"appointments"`
}

type GetAppointmentRequest struct {
	ID string `json:"id"`
}

type GetAppointmentResponse struct {
	Appointment *Appointment `json:"appointment"`
}

type UpdateAppointmentStatusRequest struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type UpdateAppointmentStatusResponse struct {
	Appointment *Appointment `json:"appointment"`
}

// products and reviews

type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	PriceCents  int64     `json:"price_cents"`
	ImageURL    string    `json:"image_url,omitempty"`
	Category    string    `json:"category"`
	Rating      float64   `json:"rating"`
	ReviewCount int       `json:"review_count"`
	CreatedAt   time.Time `json:"created_at"`
}

type CreateProductRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	PriceCents  int64  `json:"price_cents"`
	ImageURL    string `json:"image_url"`
	Category    string `json:"category"`
}

type CreateProductResponse struct {
	Product *Product `json:"product"`
}

type ListProductsRequest struct {
	Category string `json:"category,omitempty"`
}

type ListProductsResponse struct {
	Products []*Product `json:"products"`
}

type GetProductRequest struct {
	ID string `json:"id"`
}

type GetProductResponse struct {
	Product *Product `json:"product"`
}

type Review struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	UserName   string    `json:"user_name"`
	TargetKind string    `json:"target_kind"`
	TargetID   string    `json:"target_id"`
	Rating     int       `json:"rating"`
	Comment    string    `json:"comment"`
	CreatedAt  time.Time `json:"created_at"`
}

type CreateReviewRequest struct {
	TargetKind string `json:"target_kind"`
	TargetID   string `json:"target_id"`
	Rating     int    `json:"rating"`
	Comment    string `json:"comment"`
}

type CreateReviewResponse struct {
	Review *Review `json:"review"`
}

type ListReviewsRequest struct {
	TargetKind string `json:"target_kind"`
	TargetID   string `json:"target_id"`
}

type ListReviewsResponse struct {
	Reviews []*Review `json:"reviews"`
}

// resources and comments

type Resource struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id,omitempty"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	MediaURL  string    `json:"media_url,omitempty"`
	SourceURL string    `json:"source_url,omitempty"`
	Likes     int64     `json:"likes"`
	Views     int64     `json:"views"`
	Comments  int64     `json:"comments"`
	CreatedAt time.Time `json:"created_at"`
}

type CreateResourceRequest struct {
	Kind      string `json:"kind"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	MediaURL  string `json:"media_url"`
	SourceURL string `json:"source_url"`
}

type CreateResourceResponse struct {
	Resource *Resource `json:"resource"`
}

type ListResourcesRequest struct {
	Kind string `json:"kind,omitempty"`
}

type ListResourcesResponse struct {
	Resources []*Resource `json:"resources"`
}

type GetResourceRequest struct {
	ID string `json:"id"`
}

type GetResourceResponse struct {
	Resource *Resource `json:"resource"`
}

type LikeResourceRequest struct {
	ID string `json:"id"`
}

type LikeResourceResponse struct {
	Likes int64 `json:"likes"`
	Liked bool  `json:"liked"`
}

type Comment struct {
	ID         string    `json:"id"`
	ResourceID string    `json:"resource_id"`
	UserID     string    `json:"user_id"`
	UserName   string    `json:"user_name"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

type AddCommentRequest struct {
	ResourceID string `json:"resource_id"`
	Body       string `json:"body"`
}

type AddCommentResponse struct {
	Comment *Comment `json:"comment"`
}

type ListCommentsRequest struct {
	ResourceID string `json:"resource_id"`
}

type ListCommentsResponse struct {
	Comments []*Comment `json:"comments"`
}

type DeleteCommentRequest struct {
	ID string `json:"id"`
}

type DeleteCommentResponse struct{}

// history

type Score struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

type HistoryEntry struct {
	ID         string    `json:"id"`
	ImageURL   string    `json:"image_url"`
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	Scores     []Score   `json:"scores,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type AddHistoryRequest struct {
	ImageURL   string  `json:"image_url"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Scores     []Score `json:"scores,omitempty"`
}

type AddHistoryResponse struct {
	Entry *HistoryEntry `json:"entry"`
}

type ListHistoryRequest struct{}

type ListHistoryResponse struct {
	Entries []*HistoryEntry `json:"entries"`
}

type DeleteHistoryRequest struct {
	ID string `json:"id"`
}

type DeleteHistoryResponse struct{}

// resource feeds

type ResourceFeed struct {
	ID            string     `json:"id"`
	URL           string     `json:"url"`
	Kind          string     `json:"kind"`
	LastFetchedAt *time.Time `json:"last_fetched_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

type AddResourceFeedRequest struct {
	URL  string `json:"url"`
	Kind string `json:"kind,omitempty"`
}

type AddResourceFeedResponse struct {
	Feed *ResourceFeed `json:"feed"`
}

type ListResourceFeedsRequest struct{}

type ListResourceFeedsResponse struct {
	Feeds []*ResourceFeed `json:"feeds"`
}
