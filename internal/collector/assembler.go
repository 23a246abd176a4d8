package collector

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"bakery/internal/common"
	"bakery/internal/models"
)

// Sink receives downloaded bytes during assembly. Paths are computed by
// the sink so no two writes in one run can collide.
type Sink interface {
	// SaveAttachment writes attachment bytes under the ticket's
	// attachments directory and returns the local path.
	SaveAttachment(ticketID int, filename string, data []byte) (string, error)
	// SaveImage writes image bytes under the ticket's images directory.
	// An empty scope targets the item-level directory; a non-empty scope
	// (e.g. "comment_12") targets a per-comment subdirectory.
	SaveImage(ticketID int, scope, placeholder string, data []byte) (string, error)
}

// Assembler coordinates the API client and the normalizer to turn a bare
// ticket id into one fully populated record.
type Assembler struct {
	client *Client
	sink   Sink
	logger arbor.ILogger
}

func NewAssembler(client *Client, sink Sink) *Assembler {
	return &Assembler{
		client: client,
		sink:   sink,
		logger: common.GetLogger(),
	}
}

// Assemble fetches the work item and populates attachments, images and
// comments. Only the item fetch itself (and a transport failure on the
// comment fetch) can fail the whole operation; every sub-resource
// failure is logged and the element skipped.
func (a *Assembler) Assemble(id int) (*models.WorkItem, error) {
	a.logger.Info().Int("ticket", id).Msg("Fetching work item from Azure DevOps")

	raw, err := a.client.GetWorkItem(id, false)
	if err != nil {
		// Some API variants only return relation data when asked for it
		// explicitly; this is a fallback, not a retry policy
		raw, err = a.client.GetWorkItem(id, true)
		if err != nil {
			return nil, err
		}
	}

	item := models.NewWorkItem(raw)
	if criteria := ExtractAcceptanceCriteria(item.Description); criteria != nil {
		item.AcceptanceCriteria = criteria
	}

	attachments, err := a.collectAttachments(id, raw.Relations)
	if err != nil {
		return nil, err
	}
	item.Attachments = attachments

	images, err := a.collectImages(id, "", item.Description)
	if err != nil {
		return nil, err
	}
	item.Images = images

	comments, err := a.collectComments(id)
	if err != nil {
		return nil, err
	}
	item.Comments = comments

	a.logger.Info().
		Int("ticket", id).
		Int("attachments", len(item.Attachments)).
		Int("images", len(item.Images)).
		Int("comments", len(item.Comments)).
		Msg("Work item assembled")

	return item, nil
}

func (a *Assembler) collectAttachments(ticketID int, relations []models.AzureRelation) ([]models.Attachment, error) {
	attachments := []models.Attachment{}

	for _, relation := range relations {
		if relation.Rel != models.AttachedFileRelation {
			continue
		}
		if relation.Attributes == nil || relation.Attributes.Name == "" {
			continue
		}
		filename := relation.Attributes.Name

		contentType, size, data, err := a.client.Download(relation.URL)
		if err != nil {
			a.logger.Warn().
				Err(err).
				Str("filename", filename).
				Msg("Failed to download attachment, skipping")
			continue
		}

		localPath, err := a.sink.SaveAttachment(ticketID, filename, data)
		if err != nil {
			// Local I/O failure is fatal; the tool assumes a writable tree
			return nil, err
		}

		attachments = append(attachments, models.Attachment{
			ID:          uuid.New().ID(),
			Filename:    filename,
			URL:         relation.URL,
			LocalPath:   localPath,
			ContentType: contentType,
			Size:        size,
			CreatedDate: time.Now().UTC(),
		})
	}

	return attachments, nil
}

// collectImages downloads every recognized <img> reference in the text.
// Placeholder numbers advance strictly after a successful download, so
// the sequence stays gapless however many downloads fail.
func (a *Assembler) collectImages(ticketID int, scope, text string) ([]models.ImageReference, error) {
	images := []models.ImageReference{}
	counter := 1

	for _, ref := range ExtractImageRefs(text) {
		_, _, data, err := a.client.Download(ref.URL)
		if err != nil {
			a.logger.Warn().
				Err(err).
				Str("url", ref.URL).
				Msg("Failed to download image, skipping")
			continue
		}

		// Named .png regardless of actual format; downstream tooling
		// keys off the manifest, not the extension
		placeholder := fmt.Sprintf("image%03d.png", counter)
		localPath, err := a.sink.SaveImage(ticketID, scope, placeholder, data)
		if err != nil {
			return nil, err
		}

		images = append(images, models.ImageReference{
			Placeholder: placeholder,
			OriginalURL: ref.URL,
			LocalPath:   localPath,
			AltText:     ref.Alt,
		})
		counter++
	}

	return images, nil
}

func (a *Assembler) collectComments(ticketID int) ([]models.Comment, error) {
	payloads, err := a.client.GetComments(ticketID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	comments := []models.Comment{}

	for _, payload := range payloads {
		created := models.ParseTimestamp(payload.CreatedDate, now)

		var updated *time.Time
		if payload.UpdatedDate != "" {
			if t, err := time.Parse(time.RFC3339, payload.UpdatedDate); err == nil {
				utc := t.UTC()
				updated = &utc
			}
		}

		// Comment images live in their own subdirectory so they never
		// collide with item-level images or with other comments
		images, err := a.collectImages(ticketID, fmt.Sprintf("comment_%d", payload.ID), payload.Text)
		if err != nil {
			return nil, err
		}

		comments = append(comments, models.Comment{
			ID:          payload.ID,
			Author:      models.UserFromIdentity(payload.Author),
			CreatedDate: created,
			UpdatedDate: updated,
			Text:        payload.Text,
			Images:      images,
		})
	}

	return comments, nil
}
