package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/devine/vecgate/internal/models"
	"github.com/devine/vecgate/internal/output"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

// apiError is a non-2xx response from the server.
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	var env models.ErrorResponse
	if json.Unmarshal([]byte(e.Body), &env) == nil && env.Error != "" {
		if env.ErrorType != "" {
			return fmt.Sprintf("server returned %d: %s (%s)", e.Status, env.Error, env.ErrorType)
		}
		return fmt.Sprintf("server returned %d: %s", e.Status, env.Error)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, strings.TrimSpace(e.Body))
}

// call sends body (if non-nil) as JSON to the API path and decodes a 200
// response into out.
func call(method, baseURL, path string, body, out interface{}) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, strings.TrimRight(baseURL, "/")+path, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return &apiError{Status: resp.StatusCode, Body: string(b)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// parseVectorArg accepts a JSON array, either inline or as @file.
func parseVectorArg(arg string) ([]float64, error) {
	if arg == "" {
		return nil, errors.New("a vector argument is required, e.g. '[0.1,0.2]' or @vector.json")
	}
	data := []byte(arg)
	if strings.HasPrefix(arg, "@") {
		b, err := os.ReadFile(arg[1:])
		if err != nil {
			return nil, err
		}
		data = b
	}
	var v []float64
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("vector must be a JSON array of numbers: %w", err)
	}
	return v, nil
}

func runSave(c *cli.Context) error {
	vec, err := parseVectorArg(c.Args().First())
	if err != nil {
		return err
	}
	id := c.Int64("report-id")
	req := models.EmbeddingRequest{ReportID: &id, Vector: vec}
	if c.IsSet("title") {
		title := c.String("title")
		req.ReportTitle = &title
	}
	var out models.SaveResponse
	if err := call(http.MethodPost, c.String("server"), "/api/vectors/save", req, &out); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "saved report %d in %d ms\n", id, out.SaveTimeMs)
	return nil
}

func runSearch(c *cli.Context) error {
	vec, err := parseVectorArg(c.Args().First())
	if err != nil {
		return err
	}
	req := models.SearchRequest{Vector: vec, Metric: c.String("metric")}
	if c.IsSet("limit") {
		limit := c.Int("limit")
		req.Limit = &limit
	}
	var out models.SearchResponse
	if err := call(http.MethodPost, c.String("server"), "/api/vectors/search", req, &out); err != nil {
		return err
	}
	format, err := output.ParseFormat(c.String("output"))
	if err != nil {
		return err
	}
	if c.Bool("pretty") {
		format = output.Markdown
	}
	return output.WriteSearchResults(c.App.Writer, &out, format)
}

func runCount(c *cli.Context) error {
	var out models.CountResponse
	if err := call(http.MethodGet, c.String("server"), "/api/vectors/count", nil, &out); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, out.Count)
	return nil
}

func runHealth(c *cli.Context) error {
	var out models.HealthResponse
	if err := call(http.MethodGet, c.String("server"), "/api/vectors/health", nil, &out); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%s: %s\n", out.Service, out.Status)
	return nil
}

func runEmbed(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return errors.New("usage: vecgate embed <report.json>")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var report map[string]interface{}
	if err := json.Unmarshal(data, &report); err != nil {
		return fmt.Errorf("report must be a JSON object: %w", err)
	}
	var out models.EmbedResponse
	if err := call(http.MethodPost, c.String("server"), "/api/vectors/embed", models.EmbedRequest{Report: report}, &out); err != nil {
		return err
	}
	return output.WriteJSON(c.App.Writer, out)
}
