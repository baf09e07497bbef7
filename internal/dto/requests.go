package dto

import (
	"github.com/google/uuid"
)

// RegisterRequest represents the request to register a new account
type RegisterRequest struct {
	Email       string `json:"email" binding:"required"`
	Password    string `json:"password" binding:"required,min=8"`
	Username    string `json:"username"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name"`
}

// LoginRequest represents the request to log in
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RefreshRequest represents the request to rotate a token pair
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// UpdateProfileRequest represents the request to update user profile
type UpdateProfileRequest struct {
	DisplayName    string  `json:"display_name" binding:"required"`
	Bio            *string `json:"bio"`
	GatewayAccount *string `json:"gateway_account"`
}

// CreateServiceRequest represents the request to publish a service
type CreateServiceRequest struct {
	Title        string  `json:"title" binding:"required"`
	Description  string  `json:"description" binding:"required"`
	Price        float64 `json:"price" binding:"required"`
	DeliveryDays int     `json:"delivery_days" binding:"required"`
}

// UpdateServiceRequest represents the request to update a service
type UpdateServiceRequest struct {
	Title        string  `json:"title" binding:"required"`
	Description  string  `json:"description" binding:"required"`
	Price        float64 `json:"price" binding:"required"`
	DeliveryDays int     `json:"delivery_days" binding:"required"`
}

// CreateOrderRequest represents the request to order a service
type CreateOrderRequest struct {
	ServiceID    string   `json:"service_id" binding:"required"`
	Requirements string   `json:"requirements" binding:"required"`
	Attachments  []string `json:"attachment_ids"`
}

// DeliverOrderRequest represents the request to deliver completed work
type DeliverOrderRequest struct {
	Message string   `json:"message" binding:"required"`
	FileIDs []string `json:"file_ids" binding:"required"`
}

// CancelOrderRequest represents the request to cancel an order
type CancelOrderRequest struct {
	Reason string `json:"reason"`
}

// CreateDisputeRequest represents the request to open a dispute
type CreateDisputeRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// ResolveDisputeRequest represents the admin decision on a dispute
type ResolveDisputeRequest struct {
	Resolution    string   `json:"resolution" binding:"required"`
	Notes         string   `json:"notes"`
	PartialAmount *float64 `json:"partial_amount"`
}

// RefundRequest represents an admin-initiated refund
type RefundRequest struct {
	Amount *float64 `json:"amount"`
}

// CreateWithdrawalRequest represents the request to withdraw earnings
type CreateWithdrawalRequest struct {
	Amount    float64 `json:"amount" binding:"required"`
	CardLast4 string  `json:"card_last4" binding:"required,len=4"`
	BankName  string  `json:"bank_name" binding:"required"`
}

// RejectWithdrawalRequest represents the admin rejection of a withdrawal
type RejectWithdrawalRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// UpdateSettingsRequest represents the request to change platform settings
type UpdateSettingsRequest struct {
	CommissionRate float64 `json:"commission_rate"`
	MaxRevisions   int     `json:"max_revisions"`
}

// ParseServiceID converts the service ID to uuid.UUID
func (r *CreateOrderRequest) ParseServiceID() (uuid.UUID, error) {
	return uuid.Parse(r.ServiceID)
}

// ParseAttachmentIDs converts string UUIDs to uuid.UUID slice
func (r *CreateOrderRequest) ParseAttachmentIDs() ([]uuid.UUID, error) {
	return parseUUIDSlice(r.Attachments)
}

// ParseFileIDs converts string UUIDs to uuid.UUID slice
func (r *DeliverOrderRequest) ParseFileIDs() ([]uuid.UUID, error) {
	return parseUUIDSlice(r.FileIDs)
}

// parseUUIDSlice is a helper to convert string slice to UUID slice
func parseUUIDSlice(strs []string) ([]uuid.UUID, error) {
	if strs == nil {
		return nil, nil
	}

	var uuids []uuid.UUID
	for _, str := range strs {
		if str == "" {
			continue
		}
		parsed, err := uuid.Parse(str)
		if err != nil {
			return nil, err
		}
		uuids = append(uuids, parsed)
	}
	return uuids, nil
}
