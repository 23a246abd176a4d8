package collector

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"bakery/internal/common"
	"bakery/internal/models"
)

const requestTimeout = 30 * time.Second

// Client performs authenticated reads against the Azure DevOps REST API
// and raw downloads of attachment/image URLs. There is no retry logic;
// transient failures surface immediately.
type Client struct {
	http         *resty.Client
	organization string
	apiVersion   string
}

// NewClient creates an Azure DevOps API client. Every request carries
// Basic auth with an empty username and the PAT as password.
func NewClient(cfg *common.AzureConfig) *Client {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetBasicAuth("", cfg.Token).
		SetTimeout(requestTimeout).
		SetHeader("Accept", "application/json")

	return &Client{
		http:         client,
		organization: cfg.Organization,
		apiVersion:   cfg.APIVersion,
	}
}

// GetWorkItem fetches one work item. With expand set, relation data is
// requested explicitly for API variants that omit it otherwise. The body
// is decoded here rather than by resty so a malformed payload surfaces as
// a parse error, not a transport one.
func (c *Client) GetWorkItem(id int, expand bool) (*models.AzureWorkItem, error) {
	req := c.http.R().
		SetQueryParam("api-version", c.apiVersion)
	if expand {
		req.SetQueryParam("$expand", "Relations")
	}

	resp, err := req.Get(fmt.Sprintf("/%s/_apis/wit/workitems/%d", c.organization, id))
	if err != nil {
		return nil, common.NewNetworkError(fmt.Sprintf("failed to connect to Azure DevOps API for work item %d", id)).WithCause(err)
	}

	if !resp.IsSuccess() {
		msg := fmt.Sprintf("failed to fetch work item %d", id)
		if body := resp.String(); body != "" {
			msg = fmt.Sprintf("%s: %s", msg, body)
		}
		return nil, common.NewRemoteError(msg).
			WithStatus(resp.StatusCode()).
			WithURL(resp.Request.URL)
	}

	var item models.AzureWorkItem
	if err := json.Unmarshal(resp.Body(), &item); err != nil {
		return nil, common.NewParseError(fmt.Sprintf("failed to decode work item %d payload", id)).
			WithURL(resp.Request.URL).
			WithCause(err)
	}

	return &item, nil
}

// GetComments fetches the comments sub-resource. A non-2xx status is
// treated as "no comments available": comment access can be
// permission-gated independently of item access, and missing comments
// must not fail the overall fetch.
func (c *Client) GetComments(id int) ([]models.AzureComment, error) {
	resp, err := c.http.R().
		SetQueryParam("api-version", c.apiVersion).
		Get(fmt.Sprintf("/%s/_apis/wit/workItems/%d/comments", c.organization, id))
	if err != nil {
		return nil, common.NewNetworkError(fmt.Sprintf("failed to fetch comments for work item %d", id)).WithCause(err)
	}

	if !resp.IsSuccess() {
		common.GetLogger().Debug().
			Int("ticket", id).
			Int("status", resp.StatusCode()).
			Msg("No comments available or insufficient permissions")
		return []models.AzureComment{}, nil
	}

	var response models.AzureCommentsResponse
	if err := json.Unmarshal(resp.Body(), &response); err != nil {
		return nil, common.NewParseError(fmt.Sprintf("failed to decode comments payload for work item %d", id)).
			WithURL(resp.Request.URL).
			WithCause(err)
	}

	return response.Value, nil
}

// Download performs an authenticated GET of a binary resource and
// returns the declared content type, size and body. Content type and
// size degrade to defaults when the headers are absent.
func (c *Client) Download(url string) (string, int64, []byte, error) {
	resp, err := c.http.R().Get(url)
	if err != nil {
		return "", 0, nil, common.NewNetworkError("failed to download resource").WithURL(url).WithCause(err)
	}

	if !resp.IsSuccess() {
		return "", 0, nil, common.NewRemoteError("failed to download resource").
			WithStatus(resp.StatusCode()).
			WithURL(url)
	}

	body := resp.Body()

	contentType := resp.Header().Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	size := resp.Size()
	if size <= 0 {
		size = int64(len(body))
	}

	return contentType, size, body, nil
}
