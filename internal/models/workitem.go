package models

import (
	"encoding/json"
	"strings"
	"time"
)

// WorkItem is the fully assembled record for one ticket. Comments,
// attachments and images start empty and are populated exactly once
// during assembly.
type WorkItem struct {
	ID                 int              `json:"id"`
	Title              string           `json:"title"`
	Description        string           `json:"description"`
	AcceptanceCriteria []string         `json:"acceptance_criteria"`
	Comments           []Comment        `json:"comments"`
	Attachments        []Attachment     `json:"attachments"`
	Images             []ImageReference `json:"images"`
	CreatedDate        time.Time        `json:"created_date"`
	UpdatedDate        time.Time        `json:"updated_date"`
	CreatedBy          User             `json:"created_by"`
	AssignedTo         *User            `json:"assigned_to,omitempty"`
	State              string           `json:"state"`
	WorkItemType       string           `json:"work_item_type"`
	AreaPath           string           `json:"area_path"`
	IterationPath      string           `json:"iteration_path"`
}

// Comment holds one work item comment with its own image references,
// independent of the parent item's.
type Comment struct {
	ID          int              `json:"id"`
	Author      User             `json:"author"`
	CreatedDate time.Time        `json:"created_date"`
	UpdatedDate *time.Time       `json:"updated_date,omitempty"`
	Text        string           `json:"text"`
	Images      []ImageReference `json:"images"`
}

// Attachment describes a downloaded file. The ID is generated locally;
// Azure relations do not carry one.
type Attachment struct {
	ID          uint32    `json:"id"`
	Filename    string    `json:"filename"`
	URL         string    `json:"url"`
	LocalPath   string    `json:"local_path"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size_bytes"`
	CreatedDate time.Time `json:"created_date"`
}

// ImageReference maps an embedded remote image to its local placeholder
// file. Width and height are reserved and never populated.
type ImageReference struct {
	Placeholder string `json:"placeholder"`
	OriginalURL string `json:"original_url"`
	LocalPath   string `json:"local_path"`
	Width       *int   `json:"width,omitempty"`
	Height      *int   `json:"height,omitempty"`
	AltText     string `json:"alt_text,omitempty"`
}

type User struct {
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	URL         string `json:"url"`
}

// Azure DevOps API payload types

type AzureWorkItem struct {
	ID        int                        `json:"id"`
	Rev       int                        `json:"rev"`
	Fields    map[string]json.RawMessage `json:"fields"`
	Relations []AzureRelation            `json:"relations"`
	URL       string                     `json:"url"`
}

type AzureRelation struct {
	Rel        string                   `json:"rel"`
	URL        string                   `json:"url"`
	Attributes *AzureRelationAttributes `json:"attributes"`
}

type AzureRelationAttributes struct {
	Name           string `json:"name"`
	Comment        string `json:"comment"`
	AuthorizedDate string `json:"authorized-date"`
}

type AzureCommentsResponse struct {
	Count int            `json:"count"`
	Value []AzureComment `json:"value"`
}

type AzureComment struct {
	ID          int           `json:"id"`
	Version     int           `json:"version"`
	Text        string        `json:"text"`
	CreatedDate string        `json:"createdDate"`
	UpdatedDate string        `json:"updatedDate"`
	Author      AzureIdentity `json:"author"`
}

type AzureIdentity struct {
	DisplayName string `json:"displayName"`
	UniqueName  string `json:"uniqueName"`
	URL         string `json:"url"`
}

// AttachedFileRelation marks a relation entry as a file attachment
const AttachedFileRelation = "AttachedFile"

// NewWorkItem maps the raw Azure field bag onto a WorkItem. Missing or
// wrongly-typed fields degrade to defaults; the remote schema is not
// guaranteed complete.
func NewWorkItem(raw *AzureWorkItem) *WorkItem {
	now := time.Now().UTC()

	item := &WorkItem{
		ID:                 raw.ID,
		Title:              stringField(raw.Fields, "System.Title"),
		Description:        stringField(raw.Fields, "System.Description"),
		State:              stringField(raw.Fields, "System.State"),
		WorkItemType:       stringField(raw.Fields, "System.WorkItemType"),
		AreaPath:           stringField(raw.Fields, "System.AreaPath"),
		IterationPath:      stringField(raw.Fields, "System.IterationPath"),
		CreatedDate:        timeField(raw.Fields, "System.CreatedDate", now),
		UpdatedDate:        timeField(raw.Fields, "System.ChangedDate", now),
		AcceptanceCriteria: []string{},
		Comments:           []Comment{},
		Attachments:        []Attachment{},
		Images:             []ImageReference{},
	}

	if user, ok := userField(raw.Fields, "System.CreatedBy"); ok {
		item.CreatedBy = user
	} else {
		item.CreatedBy = UnknownUser()
	}

	if user, ok := userField(raw.Fields, "System.AssignedTo"); ok {
		item.AssignedTo = &user
	}

	return item
}

// UnknownUser is the sentinel for a missing creator
func UnknownUser() User {
	return User{DisplayName: "Unknown", Email: "unknown@example.com"}
}

// UserFromIdentity builds a User from an Azure identity record. Azure
// does not expose an email on comment authors, so the unique name is
// used when it looks like an address and the profile URL otherwise.
func UserFromIdentity(identity AzureIdentity) User {
	email := identity.URL
	if strings.Contains(identity.UniqueName, "@") {
		email = identity.UniqueName
	}
	return User{
		DisplayName: identity.DisplayName,
		Email:       email,
		URL:         identity.URL,
	}
}

func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func timeField(fields map[string]json.RawMessage, key string, fallback time.Time) time.Time {
	s := stringField(fields, key)
	return ParseTimestamp(s, fallback)
}

// ParseTimestamp parses an RFC3339 timestamp, degrading to the fallback
// on any parse failure.
func ParseTimestamp(s string, fallback time.Time) time.Time {
	if s == "" {
		return fallback
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fallback
	}
	return t.UTC()
}

// userField handles both identity shapes Azure returns: a bare
// "name <email>" style string on older API versions, an identity object
// on newer ones.
func userField(fields map[string]json.RawMessage, key string) (User, bool) {
	raw, ok := fields[key]
	if !ok {
		return User{}, false
	}

	var identity AzureIdentity
	if err := json.Unmarshal(raw, &identity); err == nil && identity.DisplayName != "" {
		return UserFromIdentity(identity), true
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil || s == "" {
		return User{}, false
	}
	name := s
	if at := strings.Index(s, "@"); at > 0 {
		name = s[:at]
	}
	return User{
		DisplayName: name,
		Email:       s,
		URL:         "mailto:" + s,
	}, true
}
