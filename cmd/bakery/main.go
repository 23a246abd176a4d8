package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/ternarybob/arbor"

	"bakery/internal/collector"
	"bakery/internal/common"
	"bakery/internal/models"
	"bakery/internal/services"
)

const toolName = "bakery"

func main() {
	var (
		ticketID     = flag.Int("ticket", 0, "Azure DevOps work item ID to scrape")
		organization = flag.String("organization", "", "Azure DevOps organization name (overrides config)")
		project      = flag.String("project", "", "Azure DevOps project name (overrides config)")
		token        = flag.String("token", "", "Personal Access Token (overrides config)")
		baseDir      = flag.String("base-dir", "", "Base directory for storing tickets (overrides config)")
		configPath   = flag.String("config", "", "Path to configuration file")
		noPlan       = flag.Bool("no-plan", false, "Skip OpenSpec plan generation")
		listCached   = flag.Bool("list-cached", false, "List previously fetched work items and exit")
		verbose      = flag.Bool("verbose", false, "Enable verbose logging")
		quiet        = flag.Bool("quiet", false, "Suppress banner output")
		version      = flag.Bool("version", false, "Show version information")
		help         = flag.Bool("help", false, "Show help message")
	)
	flag.Parse()

	if *version {
		fmt.Printf("%s v%s (build: %s)\n", toolName, common.GetVersion(), common.GetBuild())
		os.Exit(0)
	}

	if *help {
		showHelp()
		os.Exit(0)
	}

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// CLI overrides
	if *organization != "" {
		cfg.AzureDevOps.Organization = *organization
	}
	if *project != "" {
		cfg.AzureDevOps.Project = *project
	}
	if *token != "" {
		cfg.AzureDevOps.Token = *token
	}
	if *baseDir != "" {
		cfg.Storage.BaseDirectory = *baseDir
	}
	if *verbose {
		cfg.Logging.Level = "debug"
	}

	if err := common.InitLogger(&cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger := common.GetLogger()

	if flag.Arg(0) == "config" {
		if err := openConfigEditor(*configPath); err != nil {
			common.PrintError(err.Error())
			os.Exit(1)
		}
		os.Exit(0)
	}

	if *listCached {
		if err := printCachedItems(cfg); err != nil {
			common.PrintError(err.Error())
			os.Exit(1)
		}
		os.Exit(0)
	}

	if *ticketID <= 0 {
		fmt.Fprintf(os.Stderr, "Error: ticket ID is required. Use -ticket <ID> or run '%s config' to open configuration\n", toolName)
		os.Exit(1)
	}

	if err := cfg.ValidateCredentials(); err != nil {
		common.PrintError(err.Error())
		os.Exit(1)
	}

	logger.Info().
		Str("version", common.GetVersion()).
		Str("organization", cfg.AzureDevOps.Organization).
		Str("project", cfg.AzureDevOps.Project).
		Int("ticket", *ticketID).
		Msg("Starting Bakery")

	if !*quiet {
		common.PrintBanner(cfg.AzureDevOps.Organization, cfg.AzureDevOps.Project, *ticketID, common.GetLogFilePath())
	}

	if err := run(cfg, *ticketID, *noPlan, *verbose, logger); err != nil {
		common.PrintError(fmt.Sprintf("Failed to process work item %d: %v", *ticketID, err))
		os.Exit(1)
	}
}

// run executes the main pipeline: assemble, persist, cache, plan. Only
// fatal failures return an error; degraded sub-steps exit successfully.
func run(cfg *common.Config, ticketID int, noPlan, verbose bool, logger arbor.ILogger) error {
	writer := services.NewWriter(cfg)
	if err := writer.EnsureBaseStructure(); err != nil {
		return err
	}

	client := collector.NewClient(&cfg.AzureDevOps)
	assembler := collector.NewAssembler(client, writer)

	fmt.Printf("Fetching work item #%d...\n", ticketID)

	item, err := assembler.Assemble(ticketID)
	if err != nil {
		return err
	}
	common.PrintSuccess(item.Title)

	ticketPath, err := writer.SaveWorkItem(item)
	if err != nil {
		return err
	}
	logger.Info().Str("path", ticketPath).Msg("Work item saved")

	// The cache is bookkeeping, not the deliverable; a failure here is
	// reported but does not fail the run
	if cache, err := collector.OpenCache(cfg.Storage.CachePath); err != nil {
		logger.Warn().Err(err).Msg("Fetch cache unavailable")
	} else {
		if err := cache.Put(item); err != nil {
			logger.Warn().Err(err).Msg("Failed to record work item in fetch cache")
		}
		cache.Close()
	}

	planPath := ""
	if !noPlan && cfg.OpenSpec.AutoGenerate {
		planPath = generatePlan(cfg, item, logger)
	} else {
		logger.Info().Msg("OpenSpec plan generation skipped")
	}

	printSummary(item, ticketPath, planPath, verbose)
	return nil
}

// generatePlan runs the AI step. Failures degrade: the work item is
// already saved, so the run still succeeds.
func generatePlan(cfg *common.Config, item *models.WorkItem, logger arbor.ILogger) string {
	generator := services.NewGenerator(cfg)

	if err := generator.EnsureInitialized(); err != nil {
		common.PrintWarning(fmt.Sprintf("Failed to initialize OpenSpec: %v", err))
		return ""
	}

	data := services.NewPlanData(item)
	prompt := data.BuildPrompt()

	content, err := generator.GeneratePlan(prompt)
	if err != nil {
		common.PrintWarning(fmt.Sprintf("Failed to generate OpenSpec plan: %v", err))
		return ""
	}

	planPath, err := generator.SavePlan(data, content)
	if err != nil {
		common.PrintWarning(fmt.Sprintf("Failed to save OpenSpec plan: %v", err))
		return ""
	}

	sections := services.ParsePlanSections(content)
	if why, ok := sections.Get(services.SectionWhy); ok {
		common.PrintInfo("Why: " + firstLine(why))
	}
	if impact, ok := sections.Get(services.SectionImpact); ok {
		common.PrintInfo("Impact: " + firstLine(impact))
	}

	return planPath
}

func printSummary(item *models.WorkItem, ticketPath, planPath string, verbose bool) {
	if verbose {
		fmt.Println()
		common.PrintSummaryBanner("WORK ITEM SCRAPED")
		fmt.Printf("\n   ID:       %d\n", item.ID)
		fmt.Printf("   Title:    %s\n", item.Title)
		fmt.Printf("   State:    %s\n", item.State)
		fmt.Printf("   Type:     %s\n", item.WorkItemType)
		fmt.Printf("   Location: %s\n", ticketPath)
		fmt.Printf("\n   Attachments: %d\n", len(item.Attachments))
		fmt.Printf("   Comments:    %d\n", len(item.Comments))
		fmt.Printf("   Images:      %d\n", len(item.Images))
		fmt.Printf("   Criteria:    %d\n", len(item.AcceptanceCriteria))
		if planPath != "" {
			fmt.Printf("\n   Plan: %s\n", planPath)
		}
		fmt.Println()
	} else {
		common.PrintSuccess(fmt.Sprintf("Work item #%d saved", item.ID))
		if planPath != "" {
			common.PrintSuccess("Plan generated")
		}
	}
}

func printCachedItems(cfg *common.Config) error {
	cache, err := collector.OpenCache(cfg.Storage.CachePath)
	if err != nil {
		return err
	}
	defer cache.Close()

	items, err := cache.List()
	if err != nil {
		return err
	}

	if len(items) == 0 {
		fmt.Println("No cached work items.")
		return nil
	}

	for _, item := range items {
		fmt.Printf("#%d  %-50s  %s  (fetched %dx, last %s)\n",
			item.ID, item.Title, item.State, item.FetchCount,
			item.LastFetched.Format("2006-01-02 15:04"))
	}
	return nil
}

func openConfigEditor(configPath string) error {
	if configPath == "" {
		configPath = common.ConfigPath()
	}

	editor := os.Getenv("EDITOR")
	if editor == "" {
		if runtime.GOOS == "windows" {
			editor = "notepad"
		} else {
			editor = "vi"
		}
	}

	fmt.Printf("Opening %s with %s\n", configPath, editor)

	cmd := exec.Command(editor, configPath)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor '%s': %w", editor, err)
	}

	fmt.Println("Configuration file closed. Changes take effect on the next run.")
	return nil
}

func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

func showHelp() {
	fmt.Printf("%s v%s - Azure DevOps work item scraper with OpenSpec integration\n\n", toolName, common.GetVersion())
	fmt.Println("Usage:")
	fmt.Printf("  %s -ticket <ID> [flags]\n", toolName)
	fmt.Printf("  %s config\n\n", toolName)
	fmt.Println("Flags:")
	fmt.Println("  -ticket int          Azure DevOps work item ID to scrape (required)")
	fmt.Println("  -organization string Azure DevOps organization name (overrides config)")
	fmt.Println("  -project string      Azure DevOps project name (overrides config)")
	fmt.Println("  -token string        Personal Access Token (overrides config; AZURE_DEVOPS_PAT also works)")
	fmt.Println("  -base-dir string     Base directory for storing tickets (overrides config)")
	fmt.Println("  -config string       Configuration file path")
	fmt.Println("  -no-plan             Skip OpenSpec plan generation")
	fmt.Println("  -list-cached         List previously fetched work items and exit")
	fmt.Println("  -verbose             Enable verbose logging")
	fmt.Println("  -quiet               Suppress banner output")
	fmt.Println("  -version             Show version information")
	fmt.Println("\nSubcommands:")
	fmt.Println("  config               Open the configuration file in $EDITOR")
	fmt.Println("\nExamples:")
	fmt.Printf("  %s -ticket 42                       # Scrape ticket 42 and generate a plan\n", toolName)
	fmt.Printf("  %s -ticket 42 -no-plan -verbose     # Scrape only, with debug logging\n", toolName)
}
