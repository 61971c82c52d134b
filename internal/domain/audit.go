package domain

import "time"

// Actor is the authenticated caller a request runs on behalf of.
type Actor struct {
	TenantID  string
	UserID    string
	ClientIP  string
	UserAgent string
}

func (a Actor) Valid() bool {
	return a.TenantID != "" && a.UserID != ""
}

type ClientInfo struct {
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
}

type AuditEntry struct {
	ID           int64          `json:"id"`
	TenantID     string         `json:"tenantId"`
	UserID       string         `json:"userId"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resourceType"`
	ResourceID   string         `json:"resourceId"`
	Changes      map[string]any `json:"changes,omitempty"`
	ClientInfo   ClientInfo     `json:"clientInfo"`
	CreatedAt    time.Time      `json:"createdAt"`
}
