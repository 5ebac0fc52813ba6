package models

import "time"

type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Meta      *Meta       `json:"meta,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

type Meta struct {
	Page       int   `json:"page,omitempty"`
	Limit      int   `json:"limit,omitempty"`
	Total      int64 `json:"total,omitempty"`
	TotalPages int   `json:"total_pages,omitempty"`
}

// LimitExceeded is the deny body rendered for quota and feature refusals.
type LimitExceeded struct {
	Success         bool      `json:"success"`
	Type            string    `json:"type"`
	Title           string    `json:"title"`
	Message         string    `json:"message"`
	Category        Category  `json:"category,omitempty"`
	Feature         Feature   `json:"feature,omitempty"`
	CurrentUsage    int64     `json:"currentUsage"`
	Limit           Limit     `json:"limit"`
	TopupAvailable  int64     `json:"topupAvailable"`
	UpgradeRequired bool      `json:"upgradeRequired"`
	Timestamp       time.Time `json:"timestamp"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RegisterRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,strong_password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type PriorityRequest struct {
	Priority CreditPriority `json:"priority" validate:"required,credit_priority"`
}

type SubscriptionOrderRequest struct {
	Plan         string       `json:"plan" validate:"required"`
	BillingCycle BillingCycle `json:"billing_cycle" validate:"required,billing_cycle"`
	Currency     string       `json:"currency" validate:"omitempty,oneof=USD INR usd inr"`
}

type TopupOrderRequest struct {
	PackageID string `json:"package_id" validate:"required,len=24,hexadecimal"`
}

type VerifyPaymentRequest struct {
	SessionID string `json:"session_id" validate:"required"`
}

type EditRequest struct {
	Edits EditSet `json:"edits"`
}

// AutomationStep is one stage of an advanced automation pipeline.
type AutomationStep struct {
	Action string            `json:"action" validate:"required,oneof=compress rotate remove-pages extract-pages encrypt decrypt properties"`
	Params map[string]string `json:"params"`
}

type AutomationRequest struct {
	Steps []AutomationStep `json:"steps" validate:"required,min=1,max=10,dive"`
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// ToolResponse is returned after a successful tool run.
type ToolResponse struct {
	OperationID  string       `json:"operationId"`
	DownloadURL  string       `json:"downloadUrl"`
	FileName     string       `json:"fileName"`
	FileSize     int64        `json:"fileSize"`
	ChargedFrom  CreditSource `json:"chargedFrom"`
	CurrentUsage int64        `json:"currentUsage"`
	Limit        Limit        `json:"limit"`
}
