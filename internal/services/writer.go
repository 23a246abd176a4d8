package services

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ternarybob/arbor"

	"bakery/internal/common"
	"bakery/internal/models"
)

const timestampLayout = "2006-01-02 15:04:05 UTC"

// Writer persists an assembled work item as a directory of metadata,
// markdown and manifest files under the tickets root. It also serves as
// the assembler's byte sink for downloaded attachments and images.
type Writer struct {
	baseDir     string
	ticketsDir  string
	openspecDir string
	logger      arbor.ILogger
}

func NewWriter(cfg *common.Config) *Writer {
	return &Writer{
		baseDir:     cfg.EffectiveBaseDir(),
		ticketsDir:  cfg.TicketsDir(),
		openspecDir: cfg.OpenSpecDir(),
		logger:      common.GetLogger(),
	}
}

// EnsureBaseStructure creates the base directory tree
func (w *Writer) EnsureBaseStructure() error {
	for _, dir := range []string{w.baseDir, w.ticketsDir, w.openspecDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return common.NewStorageError(fmt.Sprintf("failed to create directory %s", dir)).WithCause(err)
		}
	}
	return nil
}

// TicketDir returns the directory for one ticket id
func (w *Writer) TicketDir(id int) string {
	return filepath.Join(w.ticketsDir, fmt.Sprintf("%d", id))
}

// SaveAttachment writes attachment bytes and returns the local path
func (w *Writer) SaveAttachment(ticketID int, filename string, data []byte) (string, error) {
	dir := filepath.Join(w.TicketDir(ticketID), "attachments")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", common.NewStorageError("failed to create attachments directory").WithCause(err)
	}

	path := filepath.Join(dir, filepath.Base(filename))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", common.NewStorageError(fmt.Sprintf("failed to write attachment %s", filename)).WithCause(err)
	}
	return path, nil
}

// SaveImage writes image bytes into the item's images directory, or a
// per-comment subdirectory when scope is set.
func (w *Writer) SaveImage(ticketID int, scope, placeholder string, data []byte) (string, error) {
	dir := filepath.Join(w.TicketDir(ticketID), "images")
	if scope != "" {
		dir = filepath.Join(dir, scope)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", common.NewStorageError("failed to create images directory").WithCause(err)
	}

	path := filepath.Join(dir, placeholder)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", common.NewStorageError(fmt.Sprintf("failed to write image %s", placeholder)).WithCause(err)
	}
	return path, nil
}

// SaveWorkItem persists the full record and returns the ticket directory
func (w *Writer) SaveWorkItem(item *models.WorkItem) (string, error) {
	ticketDir := w.TicketDir(item.ID)

	for _, dir := range []string{ticketDir,
		filepath.Join(ticketDir, "attachments"),
		filepath.Join(ticketDir, "images"),
		filepath.Join(ticketDir, "comments")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", common.NewStorageError(fmt.Sprintf("failed to create directory %s", dir)).WithCause(err)
		}
	}

	w.logger.Info().Int("ticket", item.ID).Str("path", ticketDir).Msg("Saving work item")

	if err := w.saveMetadata(item, ticketDir); err != nil {
		return "", err
	}
	if err := w.saveDescription(item, ticketDir); err != nil {
		return "", err
	}
	if err := w.saveAcceptanceCriteria(item, ticketDir); err != nil {
		return "", err
	}
	if err := w.saveComments(item, ticketDir); err != nil {
		return "", err
	}
	if err := w.saveAttachmentManifest(item, ticketDir); err != nil {
		return "", err
	}
	if err := w.saveImageManifest(item, ticketDir); err != nil {
		return "", err
	}

	return ticketDir, nil
}

func (w *Writer) saveMetadata(item *models.WorkItem, ticketDir string) error {
	var assignedTo map[string]string
	if item.AssignedTo != nil {
		assignedTo = map[string]string{
			"display_name": item.AssignedTo.DisplayName,
			"email":        item.AssignedTo.Email,
		}
	}

	metadata := map[string]interface{}{
		"id":             item.ID,
		"title":          item.Title,
		"state":          item.State,
		"work_item_type": item.WorkItemType,
		"area_path":      item.AreaPath,
		"iteration_path": item.IterationPath,
		"created_date":   item.CreatedDate,
		"updated_date":   item.UpdatedDate,
		"created_by": map[string]string{
			"display_name": item.CreatedBy.DisplayName,
			"email":        item.CreatedBy.Email,
		},
		"assigned_to": assignedTo,
		"stats": map[string]int{
			"attachments_count":         len(item.Attachments),
			"comments_count":            len(item.Comments),
			"images_count":              len(item.Images),
			"acceptance_criteria_count": len(item.AcceptanceCriteria),
		},
	}

	return w.writeJSON(filepath.Join(ticketDir, "metadata.json"), metadata)
}

func (w *Writer) saveDescription(item *models.WorkItem, ticketDir string) error {
	cleaned := common.CleanHTML(item.Description)
	processed := ReplaceImagePlaceholders(cleaned, item.Images)

	content := fmt.Sprintf(
		"# %s\n\n**Work Item ID**: %d\n\n**State**: %s\n\n**Type**: %s\n\n**Created**: %s\n\n**Created By**: %s\n\n---\n\n## Description\n\n%s",
		item.Title,
		item.ID,
		item.State,
		item.WorkItemType,
		item.CreatedDate.Format(timestampLayout),
		item.CreatedBy.DisplayName,
		processed,
	)

	return w.writeFile(filepath.Join(ticketDir, "description.md"), content)
}

func (w *Writer) saveAcceptanceCriteria(item *models.WorkItem, ticketDir string) error {
	path := filepath.Join(ticketDir, "acceptance-criteria.md")

	if len(item.AcceptanceCriteria) == 0 {
		return w.writeFile(path, "# Acceptance Criteria\n\nNo explicit acceptance criteria specified in the work item.")
	}

	var lines []string
	for i, criterion := range item.AcceptanceCriteria {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, common.CleanHTML(criterion)))
	}
	content := fmt.Sprintf("# Acceptance Criteria\n\n%s", strings.Join(lines, "\n\n"))

	return w.writeFile(path, content)
}

func (w *Writer) saveComments(item *models.WorkItem, ticketDir string) error {
	commentsDir := filepath.Join(ticketDir, "comments")

	if len(item.Comments) == 0 {
		return w.writeFile(filepath.Join(commentsDir, "no-comments.md"),
			"# Comments\n\nNo comments found for this work item.")
	}

	for index, comment := range item.Comments {
		doc := map[string]interface{}{
			"id": comment.ID,
			"author": map[string]string{
				"display_name": comment.Author.DisplayName,
				"email":        comment.Author.Email,
			},
			"created_date": comment.CreatedDate,
			"updated_date": comment.UpdatedDate,
			"text":         common.CleanHTML(comment.Text),
			"images":       comment.Images,
		}

		jsonPath := filepath.Join(commentsDir, fmt.Sprintf("comment_%03d.json", index+1))
		if err := w.writeJSON(jsonPath, doc); err != nil {
			return err
		}

		// Also save as markdown for readability
		processed := ReplaceImagePlaceholders(comment.Text, comment.Images)
		markdown := fmt.Sprintf("# Comment by %s\n\n**Date**: %s\n\n---\n\n%s",
			comment.Author.DisplayName,
			comment.CreatedDate.Format(timestampLayout),
			processed,
		)
		mdPath := filepath.Join(commentsDir, fmt.Sprintf("comment_%03d.md", index+1))
		if err := w.writeFile(mdPath, markdown); err != nil {
			return err
		}
	}

	return nil
}

func (w *Writer) saveAttachmentManifest(item *models.WorkItem, ticketDir string) error {
	manifest := map[string]interface{}{"attachments": item.Attachments}
	return w.writeJSON(filepath.Join(ticketDir, "attachments", "manifest.json"), manifest)
}

func (w *Writer) saveImageManifest(item *models.WorkItem, ticketDir string) error {
	manifest := map[string]interface{}{"images": item.Images}
	return w.writeJSON(filepath.Join(ticketDir, "images", "manifest.json"), manifest)
}

func (w *Writer) writeJSON(path string, doc interface{}) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return common.NewStorageError(fmt.Sprintf("failed to encode %s", filepath.Base(path))).WithCause(err)
	}
	return w.writeFile(path, string(data))
}

func (w *Writer) writeFile(path, content string) error {
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return common.NewStorageError(fmt.Sprintf("failed to write %s", path)).WithCause(err)
	}
	w.logger.Debug().Str("path", path).Msg("Wrote file")
	return nil
}

// ReplaceImagePlaceholders rewrites remote image URLs in stored text to
// the local placeholder paths. Whole <img> tags become markdown image
// links; any bare occurrence of the URL is replaced in place. When the
// cleaned text no longer contains the URL (it lived only in a dropped
// attribute), the substitution is a no-op.
func ReplaceImagePlaceholders(text string, images []models.ImageReference) string {
	for _, image := range images {
		local := "images/" + image.Placeholder

		alt := image.AltText
		if alt == "" {
			alt = "image"
		}
		tagPattern := regexp.MustCompile(`<img[^>]*src="` + regexp.QuoteMeta(image.OriginalURL) + `"[^>]*>`)
		text = tagPattern.ReplaceAllString(text, fmt.Sprintf("![%s](%s)", alt, local))

		text = strings.ReplaceAll(text, image.OriginalURL, local)
	}
	return text
}
