package services

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/ternarybob/arbor"

	"bakery/internal/common"
	"bakery/internal/models"
)

// PlanData is the distilled work item handed to the AI prompt
type PlanData struct {
	TicketNumber       int
	Title              string
	Description        string
	AcceptanceCriteria []string
	Priority           string
	Complexity         string
	Dependencies       []string
	AttachmentsCount   int
	CommentsCount      int
	HasImages          bool
}

var dependencyPattern = regexp.MustCompile(`#(\d+)`)

// NewPlanData derives plan inputs from an assembled item. The
// description is the cleaned form; priority and complexity are cheap
// heuristics over the item's metadata.
func NewPlanData(item *models.WorkItem) PlanData {
	return PlanData{
		TicketNumber:       item.ID,
		Title:              item.Title,
		Description:        common.CleanHTML(item.Description),
		AcceptanceCriteria: item.AcceptanceCriteria,
		Priority:           priorityFromAreaPath(item.AreaPath),
		Complexity:         estimateComplexity(item),
		Dependencies:       extractDependencies(item.Description),
		AttachmentsCount:   len(item.Attachments),
		CommentsCount:      len(item.Comments),
		HasImages:          len(item.Images) > 0,
	}
}

func priorityFromAreaPath(areaPath string) string {
	lower := strings.ToLower(areaPath)
	switch {
	case strings.Contains(lower, "critical") || strings.Contains(lower, "urgent"):
		return "High"
	case strings.Contains(lower, "low"):
		return "Low"
	default:
		return "Medium"
	}
}

func estimateComplexity(item *models.WorkItem) string {
	score := len(item.Description)/100 +
		len(item.AcceptanceCriteria)*2 +
		len(item.Attachments) +
		len(item.Comments)

	switch {
	case score <= 10:
		return "Low"
	case score <= 50:
		return "Medium"
	case score <= 100:
		return "High"
	default:
		return "Very High"
	}
}

func extractDependencies(description string) []string {
	var deps []string
	for _, match := range dependencyPattern.FindAllStringSubmatch(description, -1) {
		deps = append(deps, "Work Item #"+match[1])
	}
	return deps
}

// BuildPrompt renders the OpenSpec change-proposal prompt for the AI command
func (p PlanData) BuildPrompt() string {
	criteria := "No explicit acceptance criteria specified"
	if len(p.AcceptanceCriteria) > 0 {
		var lines []string
		for i, criterion := range p.AcceptanceCriteria {
			lines = append(lines, fmt.Sprintf("%d. %s", i+1, common.CleanHTML(criterion)))
		}
		criteria = strings.Join(lines, "\n")
	}

	return fmt.Sprintf(`You are creating a comprehensive OpenSpec implementation plan for the following Azure DevOps work item.
Follow the complete OpenSpec methodology with proper three-stage workflow, directory structures, and spec formatting.

**Ticket #%d: %s**

**Description:**
%s

**Acceptance Criteria:**
%s

## OpenSpec Implementation Plan Requirements

Create a complete OpenSpec change proposal with these components:

### 1. Change Analysis and Setup
- **Change ID**: Propose a unique kebab-case, verb-led identifier (e.g., "add-", "update-", "remove-", "refactor-")
- **Scope Decision**: Is this a new capability or modifying existing capability?
- **Directory Structure**: Plan the openspec/changes/[change-id]/ layout

### 2. Proposal Structure (proposal.md)
Write the proposal with exactly these sections:

# Change: [Brief description]

## Why
[1-2 sentences on problem/opportunity]

## What Changes
- [Bullet list of changes]
- [Mark breaking changes with **BREAKING**]

## Impact
- Affected specs: [list capabilities]
- Affected code: [key files/systems]

### 3. Delta Specifications (specs/[capability]/spec.md)
Use proper delta operation headers (ADDED/MODIFIED/REMOVED Requirements).
Every requirement MUST use SHALL/MUST wording and carry at least one
scenario formatted as:

#### Scenario: [Name]
- **WHEN** [condition occurs]
- **THEN** [expected behavior]

### 4. Implementation Tasks

## Tasks
Create a numbered implementation checklist covering analysis, implementation,
tests, documentation and verification (openspec validate [change-id] --strict).

### 5. Three-Stage Workflow
Stage 1 creates and validates the change, Stage 2 implements tasks
sequentially, Stage 3 archives to changes/archive/YYYY-MM-DD-[change-id]/
after deployment.

Generate a complete, practical OpenSpec plan following this methodology.
Focus on what needs to be built, how it will be tested, and how the change
will be managed through the full OpenSpec workflow.`,
		p.TicketNumber, p.Title, p.Description, criteria)
}

// Filename derives the plan filename from the ticket number and title
func (p PlanData) Filename() string {
	return fmt.Sprintf("%d-%s.md", p.TicketNumber, sanitizeTitle(p.Title))
}

// Generator runs the external AI command and persists the resulting plan
type Generator struct {
	cfg     *common.OpenSpecConfig
	baseDir string
	planDir string
	logger  arbor.ILogger
}

func NewGenerator(cfg *common.Config) *Generator {
	return &Generator{
		cfg:     &cfg.OpenSpec,
		baseDir: cfg.EffectiveBaseDir(),
		planDir: cfg.OpenSpecDir(),
		logger:  common.GetLogger(),
	}
}

// EnsureInitialized runs `openspec init` in the base directory when the
// openspec tree is missing, falling back to a bare directory when the
// command itself is unavailable.
func (g *Generator) EnsureInitialized() error {
	if _, err := os.Stat(g.planDir); err == nil {
		g.logger.Debug().Str("path", g.planDir).Msg("OpenSpec already initialized")
		return nil
	}

	g.logger.Info().Str("path", g.planDir).Msg("Initializing OpenSpec")

	cmd := exec.Command("openspec", "init")
	cmd.Dir = g.baseDir
	output, err := cmd.CombinedOutput()
	if err != nil {
		g.logger.Warn().Err(err).Str("output", string(output)).Msg("openspec init failed, creating directory manually")
		if err := os.MkdirAll(g.planDir, 0755); err != nil {
			return common.NewStorageError("failed to create openspec directory").WithCause(err)
		}
	}

	return nil
}

// GeneratePlan feeds the prompt to the configured AI command and returns
// its stdout. The prompt travels through a temp file: it is attached to
// the command's stdin, and a {prompt_file} placeholder in the template
// expands to its path for tools that take a file argument. No timeout is
// enforced; a hung command hangs the tool.
func (g *Generator) GeneratePlan(prompt string) (string, error) {
	if strings.TrimSpace(g.cfg.CommandTemplate) == "" {
		return "", common.NewConfigurationError("openspec command_template is empty")
	}

	promptFile, err := os.CreateTemp("", "bakery-prompt-*.txt")
	if err != nil {
		return "", common.NewStorageError("failed to create prompt temp file").WithCause(err)
	}
	defer os.Remove(promptFile.Name())

	if _, err := promptFile.WriteString(prompt); err != nil {
		promptFile.Close()
		return "", common.NewStorageError("failed to write prompt temp file").WithCause(err)
	}
	if _, err := promptFile.Seek(0, 0); err != nil {
		promptFile.Close()
		return "", common.NewStorageError("failed to rewind prompt temp file").WithCause(err)
	}
	defer promptFile.Close()

	args := strings.Fields(g.cfg.CommandTemplate)
	for i, arg := range args {
		args[i] = strings.ReplaceAll(arg, "{prompt_file}", promptFile.Name())
	}

	g.logger.Info().
		Str("command", args[0]).
		Int("prompt_chars", len(prompt)).
		Msg("Running AI plan generation; no timeout is enforced on the external command")

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Stdin = promptFile
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", common.NewPlanError(fmt.Sprintf("AI command failed: %s", strings.TrimSpace(stderr.String()))).WithCause(err)
	}

	g.logger.Info().Int("plan_chars", stdout.Len()).Msg("OpenSpec plan generated")
	return stdout.String(), nil
}

// SavePlan writes the generated plan under the openspec directory and
// returns its path.
func (g *Generator) SavePlan(data PlanData, content string) (string, error) {
	if err := os.MkdirAll(g.planDir, 0755); err != nil {
		return "", common.NewStorageError("failed to create openspec directory").WithCause(err)
	}

	path := filepath.Join(g.planDir, data.Filename())
	header := fmt.Sprintf("# OpenSpec Implementation Plan: %s\n\n**Work Item ID**: %d\n**Generated**: %s\n\n---\n\n",
		data.Title, data.TicketNumber, time.Now().UTC().Format(timestampLayout))

	if err := os.WriteFile(path, []byte(header+content), 0644); err != nil {
		return "", common.NewStorageError(fmt.Sprintf("failed to write plan to %s", path)).WithCause(err)
	}

	g.logger.Info().Str("path", path).Msg("OpenSpec plan saved")
	return path, nil
}

// sanitizeTitle reduces a ticket title to at most eight lowercase
// hyphen-joined words of alphanumeric characters.
func sanitizeTitle(title string) string {
	var filtered strings.Builder
	for _, r := range title {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) || r == '-' {
			filtered.WriteRune(r)
		}
	}

	words := strings.Fields(filtered.String())
	if len(words) > 8 {
		words = words[:8]
	}
	for i, word := range words {
		words[i] = strings.ToLower(word)
	}
	return strings.Join(words, "-")
}
