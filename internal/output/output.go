// Package output formats API responses for the vecgate CLI.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/devine/vecgate/internal/models"
	"github.com/devine/vecgate/pkg/utils"
)

// Format is the format for search result output.
type Format string

const (
	// Text is human-readable text (default).
	Text Format = "text"
	// JSON is structured JSON for machine consumption.
	JSON Format = "json"
	// Markdown is a markdown table rendered for the terminal.
	Markdown Format = "markdown"
)

// ParseFormat maps a flag value to a Format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case Text, JSON, Markdown:
		return f, nil
	case "":
		return Text, nil
	}
	return "", fmt.Errorf("unknown output format %q; use text, json or markdown", s)
}

// WriteSearchResults writes search results to w in the given format.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format Format) error {
	switch format {
	case JSON:
		return WriteJSON(w, response)
	case Markdown:
		rendered, err := glamour.Render(SearchMarkdown(response), "dark")
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, rendered)
		return err
	default:
		writeSearchResultsText(w, response)
		return nil
	}
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeSearchResultsText(w io.Writer, response *models.SearchResponse) {
	fmt.Fprintf(w, "Found %d results in %dms\n", response.ResultCount, response.TotalTimeMs)
	for i, r := range response.Results {
		metric, score := scoreOf(&r)
		fmt.Fprintf(w, "%2d. report %d  %s %.4f  %s\n", i+1, r.ReportID, metric, score, utils.Truncate(titleOf(&r), 60))
	}
}

// SearchMarkdown lays search results out as a markdown table.
func SearchMarkdown(response *models.SearchResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %d result(s) in %d ms\n\n", response.ResultCount, response.TotalTimeMs)
	if len(response.Results) == 0 {
		b.WriteString("_No stored embeddings matched._\n")
		return b.String()
	}
	header := "Similarity"
	if response.Results[0].Distance != nil {
		header = "Distance"
	}
	fmt.Fprintf(&b, "| # | Report | Title | %s |\n", header)
	b.WriteString("|---|--------|-------|-----------|\n")
	for i, r := range response.Results {
		_, score := scoreOf(&r)
		fmt.Fprintf(&b, "| %d | %d | %s | %.4f |\n", i+1, r.ReportID, escapeCell(titleOf(&r)), score)
	}
	return b.String()
}

func scoreOf(r *models.SearchResult) (string, float64) {
	switch {
	case r.Distance != nil:
		return "distance", *r.Distance
	case r.Similarity != nil:
		return "similarity", *r.Similarity
	}
	return "similarity", 0
}

func titleOf(r *models.SearchResult) string {
	if r.ReportTitle == nil || *r.ReportTitle == "" {
		return "-"
	}
	return *r.ReportTitle
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
