package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of action being audited
type AuditAction string

const (
	AuditActionUnauthenticated AuditAction = "authz_unauthenticated"
	AuditActionForbidden       AuditAction = "authz_forbidden"
	AuditActionHandlerError    AuditAction = "authz_handler_error"
	AuditActionGranted         AuditAction = "authz_granted"
	AuditActionUserCreated     AuditAction = "user_created"
	AuditActionUserRoleChanged AuditAction = "user_role_changed"
)

// AuditLog represents an audit trail entry
type AuditLog struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	ActorID      *string         `json:"actor_id,omitempty" db:"actor_id"`
	ActorRole    string          `json:"actor_role,omitempty" db:"actor_role"`
	Action       AuditAction     `json:"action" db:"action"`
	ResourceType string          `json:"resource_type" db:"resource_type"` // route, user
	ResourceID   string          `json:"resource_id,omitempty" db:"resource_id"`
	Details      json.RawMessage `json:"details,omitempty" db:"details"`
	IPAddress    string          `json:"ip_address" db:"ip_address"`
	UserAgent    string          `json:"user_agent" db:"user_agent"`
	RequestID    string          `json:"request_id" db:"request_id"`
	StatusCode   *int            `json:"status_code,omitempty" db:"status_code"`
	ErrorMessage *string         `json:"error_message,omitempty" db:"error_message"`
	Timestamp    time.Time       `json:"timestamp" db:"timestamp"`
}

// TableName returns the table name for the AuditLog model
func (AuditLog) TableName() string {
	return "audit_logs"
}

// NewAuditLog creates a new AuditLog instance
func NewAuditLog(action AuditAction, resourceType, resourceID string) *AuditLog {
	return &AuditLog{
		ID:           uuid.New(),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Timestamp:    time.Now().UTC(),
	}
}

// WithActor sets the acting principal. An empty id leaves the actor unset.
func (a *AuditLog) WithActor(actorID, role string) *AuditLog {
	if actorID != "" {
		a.ActorID = &actorID
	}
	a.ActorRole = role
	return a
}

// WithDetails sets the details
func (a *AuditLog) WithDetails(details interface{}) *AuditLog {
	if data, err := json.Marshal(details); err == nil {
		a.Details = data
	}
	return a
}

// WithRequest sets request metadata
func (a *AuditLog) WithRequest(requestID, ipAddress, userAgent string) *AuditLog {
	a.RequestID = requestID
	a.IPAddress = ipAddress
	a.UserAgent = userAgent
	return a
}

// WithStatus sets the HTTP status returned to the caller
func (a *AuditLog) WithStatus(statusCode int) *AuditLog {
	a.StatusCode = &statusCode
	return a
}

// WithError sets error information
func (a *AuditLog) WithError(statusCode int, errorMessage string) *AuditLog {
	a.StatusCode = &statusCode
	a.ErrorMessage = &errorMessage
	return a
}
