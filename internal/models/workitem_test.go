package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawFields(t *testing.T, doc string) map[string]json.RawMessage {
	t.Helper()
	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(doc), &fields))
	return fields
}

func TestNewWorkItem_MissingFieldsDegrade(t *testing.T) {
	item := NewWorkItem(&AzureWorkItem{ID: 7, Fields: rawFields(t, `{}`)})

	assert.Equal(t, 7, item.ID)
	assert.Equal(t, "", item.Title)
	assert.Equal(t, UnknownUser(), item.CreatedBy)
	assert.Nil(t, item.AssignedTo)
	assert.WithinDuration(t, time.Now().UTC(), item.CreatedDate, time.Minute)

	// Collections start empty, never nil
	assert.NotNil(t, item.AcceptanceCriteria)
	assert.NotNil(t, item.Comments)
	assert.NotNil(t, item.Attachments)
	assert.NotNil(t, item.Images)
}

func TestNewWorkItem_IdentityObject(t *testing.T) {
	fields := rawFields(t, `{
		"System.CreatedBy": {"displayName": "Jane Dev", "uniqueName": "jane@example.com", "url": "https://vssps.example/ids/1"}
	}`)

	item := NewWorkItem(&AzureWorkItem{ID: 1, Fields: fields})

	assert.Equal(t, "Jane Dev", item.CreatedBy.DisplayName)
	assert.Equal(t, "jane@example.com", item.CreatedBy.Email)
}

func TestNewWorkItem_IdentityString(t *testing.T) {
	fields := rawFields(t, `{"System.AssignedTo": "bob@example.com"}`)

	item := NewWorkItem(&AzureWorkItem{ID: 1, Fields: fields})

	require.NotNil(t, item.AssignedTo)
	assert.Equal(t, "bob", item.AssignedTo.DisplayName)
	assert.Equal(t, "bob@example.com", item.AssignedTo.Email)
	assert.Equal(t, "mailto:bob@example.com", item.AssignedTo.URL)
}

func TestUserFromIdentity_NonAddressUniqueName(t *testing.T) {
	user := UserFromIdentity(AzureIdentity{
		DisplayName: "Build Service",
		UniqueName:  "build-service",
		URL:         "https://vssps.example/ids/9",
	})

	// A unique name without an @ is not an address; the profile URL
	// stands in for the email
	assert.Equal(t, "https://vssps.example/ids/9", user.Email)
}

func TestParseTimestamp(t *testing.T) {
	fallback := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	parsed := ParseTimestamp("2024-03-01T09:00:00Z", fallback)
	assert.Equal(t, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), parsed)

	assert.Equal(t, fallback, ParseTimestamp("", fallback))
	assert.Equal(t, fallback, ParseTimestamp("yesterday", fallback))
}

func TestParseTimestamp_NormalizesToUTC(t *testing.T) {
	parsed := ParseTimestamp("2024-03-01T10:00:00+01:00", time.Time{})

	assert.Equal(t, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), parsed)
}
