package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/studybuddy/backend/internal/config"
	"github.com/studybuddy/backend/internal/database"
	"github.com/studybuddy/backend/internal/models"
	"github.com/studybuddy/backend/internal/repository"
	"github.com/studybuddy/backend/pkg/utils"
)

// SourcePageConfig describes one reference page to seed into the knowledge base.
type SourcePageConfig struct {
	Title       string
	URL         string
	Priority    int
	Subjects    []string
	Reliability float64
}

// KnowledgeSeeder scrapes reference pages and loads them as knowledge sources.
type KnowledgeSeeder struct {
	repoManager *repository.RepositoryManager
	logger      *logrus.Logger
	processed   map[string]bool
	errors      []error
}

var (
	// Curated study reference pages. Wikipedia carries a moderate default
	// reliability; curated subject primers rank higher.
	ReferencePages = []SourcePageConfig{
		{Title: "Pythagorean_theorem", Priority: 10, Subjects: []string{"mathematics", "geometry"}, Reliability: 0.85, URL: "https://en.wikipedia.org/wiki/Pythagorean_theorem"},
		{Title: "Quadratic_equation", Priority: 10, Subjects: []string{"mathematics", "algebra"}, Reliability: 0.85, URL: "https://en.wikipedia.org/wiki/Quadratic_equation"},
		{Title: "Derivative", Priority: 9, Subjects: []string{"mathematics", "calculus"}, Reliability: 0.85, URL: "https://en.wikipedia.org/wiki/Derivative"},
		{Title: "Newton's_laws_of_motion", Priority: 9, Subjects: []string{"physics", "mechanics"}, Reliability: 0.85, URL: "https://en.wikipedia.org/wiki/Newton%27s_laws_of_motion"},
		{Title: "Photosynthesis", Priority: 9, Subjects: []string{"biology", "chemistry"}, Reliability: 0.85, URL: "https://en.wikipedia.org/wiki/Photosynthesis"},
		{Title: "Chemical_bond", Priority: 8, Subjects: []string{"chemistry"}, Reliability: 0.85, URL: "https://en.wikipedia.org/wiki/Chemical_bond"},
		{Title: "Cell_(biology)", Priority: 8, Subjects: []string{"biology"}, Reliability: 0.85, URL: "https://en.wikipedia.org/wiki/Cell_(biology)"},
		{Title: "World_War_II", Priority: 7, Subjects: []string{"history"}, Reliability: 0.8, URL: "https://en.wikipedia.org/wiki/World_War_II"},
		{Title: "French_Revolution", Priority: 7, Subjects: []string{"history"}, Reliability: 0.8, URL: "https://en.wikipedia.org/wiki/French_Revolution"},
		{Title: "Grammar", Priority: 6, Subjects: []string{"english", "language"}, Reliability: 0.75, URL: "https://en.wikipedia.org/wiki/Grammar"},
		{Title: "Essay", Priority: 6, Subjects: []string{"english", "writing"}, Reliability: 0.75, URL: "https://en.wikipedia.org/wiki/Essay"},
		{Title: "Periodic_table", Priority: 8, Subjects: []string{"chemistry"}, Reliability: 0.85, URL: "https://en.wikipedia.org/wiki/Periodic_table"},
		{Title: "Probability", Priority: 8, Subjects: []string{"mathematics", "statistics"}, Reliability: 0.85, URL: "https://en.wikipedia.org/wiki/Probability"},
		{Title: "Electromagnetism", Priority: 7, Subjects: []string{"physics"}, Reliability: 0.85, URL: "https://en.wikipedia.org/wiki/Electromagnetism"},
		{Title: "Evolution", Priority: 7, Subjects: []string{"biology"}, Reliability: 0.85, URL: "https://en.wikipedia.org/wiki/Evolution"},
	}

	// Command line flags
	dryRun     = flag.Bool("dry-run", false, "Don't write to the database, just print what would be stored")
	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	pageLimit  = flag.Int("limit", 0, "Limit number of pages to process (0 = all)")
	concurrent = flag.Int("concurrent", 2, "Number of concurrent requests")
	delay      = flag.Duration("delay", 2*time.Second, "Delay between requests")
)

func main() {
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	logger := utils.GetLogger()
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	logger.Info("Starting knowledge base seeder...")

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	var repoManager *repository.RepositoryManager

	if !*dryRun {
		dbConfig := &database.Config{
			DatabaseURL: cfg.Database.URL,
			RedisURL:    cfg.Redis.URL,
			LogLevel:    os.Getenv("LOG_LEVEL"),
		}

		dbManager, err := database.NewManager(dbConfig, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize database manager")
		}
		defer dbManager.Close()

		repoManager = repository.NewRepositoryManager(dbManager.DB)
	}

	seeder := &KnowledgeSeeder{
		repoManager: repoManager,
		logger:      logger,
		processed:   make(map[string]bool),
		errors:      make([]error, 0),
	}

	if err := seeder.SeedContent(); err != nil {
		logger.WithError(err).Fatal("Knowledge seeding failed")
	}

	logger.Info("Knowledge seeding completed successfully!")
}

func (ks *KnowledgeSeeder) SeedContent() error {
	ks.logger.Info("Starting knowledge seeding process...")

	pages := make([]SourcePageConfig, len(ReferencePages))
	copy(pages, ReferencePages)

	sort.SliceStable(pages, func(i, j int) bool {
		return pages[i].Priority > pages[j].Priority
	})

	if *pageLimit > 0 && *pageLimit < len(pages) {
		pages = pages[:*pageLimit]
		ks.logger.WithField("limit", *pageLimit).Info("Limited pages to process")
	}

	ks.logger.WithField("total_pages", len(pages)).Info("Processing reference pages")

	for i, page := range pages {
		ks.logger.WithFields(logrus.Fields{
			"page":     page.Title,
			"priority": page.Priority,
			"progress": fmt.Sprintf("%d/%d", i+1, len(pages)),
		}).Info("Processing page")

		if err := ks.processPage(page); err != nil {
			ks.logger.WithError(err).WithField("page", page.Title).Error("Failed to process page")
			ks.errors = append(ks.errors, fmt.Errorf("failed to process %s: %w", page.Title, err))
			continue
		}

		ks.processed[page.Title] = true
		ks.logger.WithField("page", page.Title).Info("Page processed successfully")

		time.Sleep(500 * time.Millisecond)
	}

	ks.logger.WithFields(logrus.Fields{
		"processed": len(ks.processed),
		"errors":    len(ks.errors),
	}).Info("Knowledge seeding completed")

	if len(ks.errors) > 0 {
		ks.logger.Warn("Some pages failed to process:")
		for _, err := range ks.errors {
			ks.logger.WithError(err).Warn("Processing error")
		}
	}

	return nil
}

func (ks *KnowledgeSeeder) processPage(page SourcePageConfig) error {
	var content string
	var processingError error

	// A fresh collector per page avoids callback state bleeding across visits.
	c := colly.NewCollector(
		colly.UserAgent("StudyBuddy-Seeder/1.0 (+https://github.com/studybuddy/backend)"),
	)

	c.Limit(&colly.LimitRule{
		DomainGlob:  "en.wikipedia.org",
		Parallelism: *concurrent,
		Delay:       *delay,
	})

	c.SetRequestTimeout(30 * time.Second)

	c.OnHTML("#mw-content-text", func(e *colly.HTMLElement) {
		content = ks.extractPageContent(e)

		ks.logger.WithFields(logrus.Fields{
			"page":           page.Title,
			"content_length": len(content),
		}).Debug("Content extracted")
	})

	c.OnError(func(r *colly.Response, err error) {
		processingError = err
	})

	if err := c.Visit(page.URL); err != nil {
		return fmt.Errorf("failed to visit page: %w", err)
	}

	if processingError != nil {
		return fmt.Errorf("processing error: %w", processingError)
	}

	if content == "" {
		return fmt.Errorf("no content extracted from page")
	}

	contentHash := utils.MD5Hash(content)

	if *dryRun {
		ks.logger.WithFields(logrus.Fields{
			"page":           page.Title,
			"content_length": len(content),
			"subjects":       page.Subjects,
			"hash":           contentHash[:8],
		}).Info("DRY RUN: Would store knowledge source")
		return nil
	}

	return ks.storeSource(page, content, contentHash)
}

func (ks *KnowledgeSeeder) extractPageContent(e *colly.HTMLElement) string {
	// Strip navigation, reference and edit chrome before capturing text.
	e.DOM.Find(".navbox, .infobox, .ambox, .toc, .printfooter, .catlinks").Remove()
	e.DOM.Find("#toc, .noprint, .mw-editsection, .reflist, .reference").Remove()

	var content strings.Builder
	e.DOM.Find("p, h2, h3").Each(func(i int, selection *goquery.Selection) {
		text := strings.TrimSpace(selection.Text())
		if text != "" {
			content.WriteString(text + "\n")
		}
	})

	text := strings.TrimSpace(content.String())
	text = regexp.MustCompile(`\[\d+\]`).ReplaceAllString(text, "")
	text = regexp.MustCompile(`[ \t]+`).ReplaceAllString(text, " ")

	return text
}

func (ks *KnowledgeSeeder) storeSource(page SourcePageConfig, content, contentHash string) error {
	// Skip rewrite when the content is unchanged since the last crawl.
	if existing, err := ks.repoManager.Knowledge.GetByTitle(page.Title); err == nil && existing.ContentHash == contentHash {
		ks.logger.WithField("page", page.Title).Debug("Content unchanged, skipping")
		return nil
	}

	source := &models.KnowledgeSource{
		Title:            page.Title,
		Content:          content,
		Subjects:         models.StringArray(page.Subjects),
		ReliabilityScore: page.Reliability,
		EducationalValue: educationalValue(page.Priority),
		SourceURL:        page.URL,
		ContentHash:      contentHash,
		IsActive:         true,
	}

	return ks.repoManager.Knowledge.Upsert(source)
}

// educationalValue maps the curation priority onto the 0..1 scoring scale.
func educationalValue(priority int) float64 {
	return utils.Clamp01(0.4 + float64(priority)*0.05)
}
