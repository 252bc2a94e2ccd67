package classifier

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/feedsift/internal/ai"
	"github.com/feedsift/internal/models"
	"github.com/feedsift/pkg/logger"
)

// maxContentChars bounds how much entry content goes into a prompt
const maxContentChars = 3000

// Result is the structured outcome of classifying one entry. A nil Interest
// means no registered interest matched.
type Result struct {
	Interest  *string
	IsSignal  bool
	Reasoning string
}

// Classifier is the contract the classification job depends on. Failures of
// any kind (network, rate limit, unparseable output) surface as errors and
// leave the entry unclassified for a later pass.
type Classifier interface {
	Classify(ctx context.Context, entry *models.Entry, interests []*models.Interest, prompt, model string) (*Result, error)
}

// Anthropic classifies entries with Claude via the shared AI client
type Anthropic struct {
	client *ai.Client
	log    *logger.Logger
}

// NewAnthropic creates an Anthropic-backed classifier
func NewAnthropic(client *ai.Client, log *logger.Logger) *Anthropic {
	return &Anthropic{
		client: client,
		log:    log.WithComponent("classifier"),
	}
}

// Classify builds the prompt from the interest registry and the runtime
// prompt/model settings, invokes Claude and parses the structured result.
// The interest key is validated against the registry at this boundary.
func (a *Anthropic) Classify(ctx context.Context, entry *models.Entry, interests []*models.Interest, prompt, model string) (*Result, error) {
	systemPrompt := BuildSystemPrompt(prompt, interests)
	userMessage := FormatEntry(entry)

	response, err := a.client.CompleteWithJSON(ctx, model, systemPrompt, userMessage)
	if err != nil {
		return nil, fmt.Errorf("classification request failed: %w", err)
	}

	result, err := ParseResponse(response)
	if err != nil {
		a.log.Warn().
			Err(err).
			Str("response", response).
			Msg("Unparseable classification response")
		return nil, fmt.Errorf("failed to parse classification response: %w", err)
	}

	// Unknown keys become uncategorized rather than poisoning the store
	if result.Interest != nil && !knownInterest(*result.Interest, interests) {
		a.log.Warn().
			Str("interest", *result.Interest).
			Msg("Classifier returned unregistered interest key, treating as uncategorized")
		result.Interest = nil
	}

	return result, nil
}

// BuildSystemPrompt assembles the system prompt from the stored reader
// context and the full interest list with descriptions.
func BuildSystemPrompt(readerContext string, interests []*models.Interest) string {
	lines := make([]string, 0, len(interests))
	for _, i := range interests {
		line := fmt.Sprintf("- %s: %s", i.Key, i.Label)
		if i.Description != "" {
			line += " - " + i.Description
		}
		lines = append(lines, line)
	}
	return fmt.Sprintf(ClassificationSystemPrompt, readerContext, strings.Join(lines, "\n"))
}

var (
	htmlTagRe    = regexp.MustCompile(`<[^>]+>`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// FormatEntry renders an entry for classification. Content is HTML-stripped
// and truncated so one oversized article can't blow the token budget.
func FormatEntry(entry *models.Entry) string {
	var parts []string

	if entry.FeedName != "" {
		parts = append(parts, "Feed: "+entry.FeedName)
	}
	if entry.Title != "" {
		parts = append(parts, "Title: "+entry.Title)
	}
	if entry.URL != "" {
		parts = append(parts, "URL: "+entry.URL)
	}
	if entry.Author != "" {
		parts = append(parts, "Author: "+entry.Author)
	}
	if entry.Content != "" {
		content := entry.Content
		if len(content) > maxContentChars {
			content = content[:maxContentChars]
		}
		content = htmlTagRe.ReplaceAllString(content, " ")
		content = strings.TrimSpace(whitespaceRe.ReplaceAllString(content, " "))
		parts = append(parts, "Content: "+content)
	}

	return strings.Join(parts, "\n")
}

func knownInterest(key string, interests []*models.Interest) bool {
	for _, i := range interests {
		if i.Key == key {
			return true
		}
	}
	return false
}

// Ensure Anthropic implements Classifier
var _ Classifier = (*Anthropic)(nil)
