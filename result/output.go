package result

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/lukemcguire/linkwalk/outcome"
)

type jsonPage struct {
	Links []jsonLink `json:"links"`
}

type jsonLink struct {
	Href    string        `json:"href"`
	URL     string        `json:"url"`
	Results []jsonOutcome `json:"results"`
}

type jsonOutcome struct {
	Type       string `json:"type"`
	StatusCode *int   `json:"status_code,omitempty"`
	Value      string `json:"value,omitempty"`
	URL        string `json:"url,omitempty"`
	Message    string `json:"message,omitempty"`
}

func toJSONOutcome(o outcome.Outcome) jsonOutcome {
	switch v := o.(type) {
	case outcome.Page:
		return jsonOutcome{Type: "response", StatusCode: &v.Code}
	case outcome.Redirect:
		return jsonOutcome{Type: "redirect", StatusCode: &v.Code, Value: v.Location, URL: v.Target.String()}
	case outcome.RequestError:
		return jsonOutcome{Type: "error", Message: v.Message}
	case outcome.Excluded:
		return jsonOutcome{Type: "excluded"}
	case outcome.Unknown:
		return jsonOutcome{Type: "unknown"}
	default:
		panic(fmt.Sprintf("result: unhandled outcome %T", o))
	}
}

// WriteJSON writes the analysis as one JSON object keyed by page URL.
func WriteJSON(w io.Writer, a *Analysis) error {
	doc := make(map[string]jsonPage, len(a.Pages))
	for _, page := range a.Pages {
		links := make([]jsonLink, 0, len(page.Links))
		for _, link := range page.Links {
			results := make([]jsonOutcome, 0, len(link.Chain))
			for _, o := range link.Chain {
				results = append(results, toJSONOutcome(o))
			}
			links = append(links, jsonLink{Href: link.Href, URL: link.Target.String(), Results: results})
		}
		doc[page.URL.String()] = jsonPage{Links: links}
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("write json output: %w", err)
	}
	return nil
}

// WriteCSV writes one row per link result to the writer.
// Always includes a header row, even if there are no links.
// Column order: page, href, url, ok, status_code, error_type, chain
func WriteCSV(w io.Writer, a *Analysis) error {
	cw := csv.NewWriter(w)

	header := []string{"page", "href", "url", "ok", "status_code", "error_type", "chain"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, page := range a.Pages {
		for _, link := range page.Links {
			final := link.Chain.Final()
			var code int
			if final != nil {
				code, _ = final.StatusCode()
			}
			record := []string{
				page.URL.String(),
				link.Href,
				link.Target.String(),
				strconv.FormatBool(link.OK()),
				statusCodeStr(code),
				errorType(final),
				link.Describe(),
			}
			if err := cw.Write(record); err != nil {
				return fmt.Errorf("write csv record for %s: %w", link.Target, err)
			}
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv output: %w", err)
	}
	return nil
}

// statusCodeStr converts an HTTP status code to a string.
// Returns empty string for 0 (no HTTP status).
func statusCodeStr(code int) string {
	if code == 0 {
		return ""
	}
	return strconv.Itoa(code)
}

func errorType(o outcome.Outcome) string {
	category, failed := outcome.Failure(o)
	if !failed {
		return ""
	}
	return string(category)
}
