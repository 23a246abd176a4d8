package collector

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bakery/internal/common"
)

// memSink collects downloaded bytes in memory
type memSink struct {
	attachments map[string][]byte
	images      map[string][]byte
}

func newMemSink() *memSink {
	return &memSink{
		attachments: make(map[string][]byte),
		images:      make(map[string][]byte),
	}
}

func (s *memSink) SaveAttachment(ticketID int, filename string, data []byte) (string, error) {
	path := fmt.Sprintf("%d/attachments/%s", ticketID, filename)
	s.attachments[path] = data
	return path, nil
}

func (s *memSink) SaveImage(ticketID int, scope, placeholder string, data []byte) (string, error) {
	path := fmt.Sprintf("%d/images/%s", ticketID, placeholder)
	if scope != "" {
		path = fmt.Sprintf("%d/images/%s/%s", ticketID, scope, placeholder)
	}
	s.images[path] = data
	return path, nil
}

func newTestClient(serverURL string) *Client {
	return NewClient(&common.AzureConfig{
		BaseURL:      serverURL,
		Organization: "testorg",
		Project:      "TestProject",
		Token:        "test-token",
		APIVersion:   "7.1",
	})
}

func TestAssemble_EndToEnd(t *testing.T) {
	var server *httptest.Server

	mux := http.NewServeMux()
	server = httptest.NewServer(mux)
	defer server.Close()

	// Image URLs carry the recognized host substring in their path so the
	// extraction filter accepts them while the bytes come from this server
	description := `<p>Do X</p>` +
		`<img src="` + server.URL + `/dev.azure.com/img-ok.png" alt="diagram">` +
		`<img src="` + server.URL + `/dev.azure.com/img-broken.png">` +
		`<img src="` + server.URL + `/dev.azure.com/img-second.png">` +
		`<img src="https://example.com/external.png">` +
		"<p>Acceptance Criteria:\nmust do X\nmust log Y</p>"

	mux.HandleFunc("/testorg/_apis/wit/workitems/42", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{
			"id": 42,
			"rev": 3,
			"fields": {
				"System.Title": "Fix login flow",
				"System.Description": %q,
				"System.State": "Active",
				"System.WorkItemType": "Bug",
				"System.AreaPath": "Proj\\Area",
				"System.IterationPath": "Proj\\Sprint 9",
				"System.CreatedDate": "2024-03-01T09:00:00Z",
				"System.ChangedDate": "2024-03-04T10:30:00Z",
				"System.CreatedBy": {"displayName": "Jane Dev", "uniqueName": "jane@example.com", "url": "https://vssps.example/ids/1"},
				"System.AssignedTo": "bob@example.com"
			},
			"relations": [
				{"rel": "AttachedFile", "url": %q, "attributes": {"name": "design.pdf"}},
				{"rel": "AttachedFile", "url": %q, "attributes": {"name": "broken.zip"}},
				{"rel": "System.LinkTypes.Related", "url": "https://dev.azure.com/other"}
			],
			"url": "https://dev.azure.com/testorg/_apis/wit/workItems/42"
		}`, description, server.URL+"/att/design.pdf", server.URL+"/att/broken.zip")
	})

	mux.HandleFunc("/testorg/_apis/wit/workItems/42/comments", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{
			"count": 2,
			"value": [
				{
					"id": 101,
					"version": 1,
					"text": "Looks good <img src=\"%s/dev.azure.com/comment-img.png\" alt=\"screenshot\">",
					"createdDate": "2024-03-05T10:00:00Z",
					"updatedDate": "2024-03-05T11:00:00Z",
					"author": {"displayName": "Sam Reviewer", "uniqueName": "sam@example.com", "url": "https://vssps.example/ids/2"}
				},
				{
					"id": 102,
					"version": 1,
					"text": "Plain comment",
					"createdDate": "not-a-date",
					"author": {"displayName": "Kim", "url": "https://vssps.example/ids/3"}
				}
			]
		}`, server.URL)
	})

	mux.HandleFunc("/att/design.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("pdf-bytes"))
	})
	mux.HandleFunc("/att/broken.zip", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	mux.HandleFunc("/dev.azure.com/img-ok.png", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("png-1"))
	})
	mux.HandleFunc("/dev.azure.com/img-broken.png", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})
	mux.HandleFunc("/dev.azure.com/img-second.png", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("png-2"))
	})
	mux.HandleFunc("/dev.azure.com/comment-img.png", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("png-c"))
	})

	sink := newMemSink()
	assembler := NewAssembler(newTestClient(server.URL), sink)

	item, err := assembler.Assemble(42)
	require.NoError(t, err)

	assert.Equal(t, 42, item.ID)
	assert.Equal(t, "Fix login flow", item.Title)
	assert.Equal(t, "Active", item.State)
	assert.Equal(t, "Bug", item.WorkItemType)
	assert.Equal(t, "Jane Dev", item.CreatedBy.DisplayName)
	assert.Equal(t, "jane@example.com", item.CreatedBy.Email)
	require.NotNil(t, item.AssignedTo)
	assert.Equal(t, "bob", item.AssignedTo.DisplayName)
	assert.Equal(t, "bob@example.com", item.AssignedTo.Email)

	// Criteria extraction runs over the raw description
	assert.Equal(t, []string{"must do X", "must log Y"}, item.AcceptanceCriteria)

	// One of the two attachment downloads failed and was skipped
	require.Len(t, item.Attachments, 1)
	att := item.Attachments[0]
	assert.Equal(t, "design.pdf", att.Filename)
	assert.Equal(t, "application/pdf", att.ContentType)
	assert.Equal(t, int64(len("pdf-bytes")), att.Size)
	assert.NotZero(t, att.ID)
	assert.Equal(t, []byte("pdf-bytes"), sink.attachments["42/attachments/design.pdf"])

	// Failed image download does not consume a placeholder slot;
	// the external image is ignored entirely
	require.Len(t, item.Images, 2)
	assert.Equal(t, "image001.png", item.Images[0].Placeholder)
	assert.Equal(t, server.URL+"/dev.azure.com/img-ok.png", item.Images[0].OriginalURL)
	assert.Equal(t, "diagram", item.Images[0].AltText)
	assert.Equal(t, "image002.png", item.Images[1].Placeholder)
	assert.Equal(t, server.URL+"/dev.azure.com/img-second.png", item.Images[1].OriginalURL)

	require.Len(t, item.Comments, 2)
	first := item.Comments[0]
	assert.Equal(t, 101, first.ID)
	assert.Equal(t, "Sam Reviewer", first.Author.DisplayName)
	assert.Equal(t, "sam@example.com", first.Author.Email)
	assert.Equal(t, time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC), first.CreatedDate)
	require.NotNil(t, first.UpdatedDate)

	// Comment images live in their own scope with their own numbering
	require.Len(t, first.Images, 1)
	assert.Equal(t, "image001.png", first.Images[0].Placeholder)
	assert.Equal(t, "42/images/comment_101/image001.png", first.Images[0].LocalPath)

	second := item.Comments[1]
	assert.Equal(t, "Kim", second.Author.DisplayName)
	// Author without an address-like unique name falls back to the profile URL
	assert.Equal(t, "https://vssps.example/ids/3", second.Author.Email)
	// Unparseable created date degrades to now
	assert.WithinDuration(t, time.Now().UTC(), second.CreatedDate, time.Minute)
	assert.Nil(t, second.UpdatedDate)
	assert.Empty(t, second.Images)
}

func TestAssemble_CommentsForbidden(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/testorg/_apis/wit/workitems/7", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id": 7, "rev": 1, "fields": {"System.Title": "Quiet item"}}`)
	})
	mux.HandleFunc("/testorg/_apis/wit/workItems/7/comments", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	})

	assembler := NewAssembler(newTestClient(server.URL), newMemSink())

	item, err := assembler.Assemble(7)
	require.NoError(t, err)
	assert.Empty(t, item.Comments)
}

func TestAssemble_ItemNotFound(t *testing.T) {
	calls := 0
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/testorg/_apis/wit/workitems/999", func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, `{"message": "work item does not exist"}`, http.StatusNotFound)
	})

	assembler := NewAssembler(newTestClient(server.URL), newMemSink())

	_, err := assembler.Assemble(999)
	require.Error(t, err)

	var berr *common.BakeryError
	require.True(t, errors.As(err, &berr))
	assert.Equal(t, common.ErrorKindRemote, berr.Kind)
	assert.Equal(t, http.StatusNotFound, berr.Status)

	// The fallback with relations-expand was attempted before giving up
	assert.Equal(t, 2, calls)
}

func TestAssemble_ExpandFallback(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/testorg/_apis/wit/workitems/11", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("$expand") != "Relations" {
			http.Error(w, "expand required", http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, `{"id": 11, "rev": 1, "fields": {"System.Title": "Needs expand"}}`)
	})
	mux.HandleFunc("/testorg/_apis/wit/workItems/11/comments", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"count": 0, "value": []}`)
	})

	assembler := NewAssembler(newTestClient(server.URL), newMemSink())

	item, err := assembler.Assemble(11)
	require.NoError(t, err)
	assert.Equal(t, "Needs expand", item.Title)
}

func TestGetWorkItem_MalformedPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id": 42, "fields": {`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	_, err := client.GetWorkItem(42, false)
	require.Error(t, err)

	var berr *common.BakeryError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, common.ErrorKindParse, berr.Kind)
}

func TestGetComments_MalformedPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"count": 1, "value": [`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	_, err := client.GetComments(42)
	require.Error(t, err)

	var berr *common.BakeryError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, common.ErrorKindParse, berr.Kind)
}

func TestClient_DownloadError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	_, _, _, err := client.Download(server.URL + "/blob")
	require.Error(t, err)

	var berr *common.BakeryError
	require.True(t, errors.As(err, &berr))
	assert.Equal(t, http.StatusInternalServerError, berr.Status)
}
