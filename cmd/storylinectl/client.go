package main

import (
	"fmt"
	"io"
	"net/http"

	"github.com/go-resty/resty/v2"
)

func newClient(apiURL string) *resty.Client {
	c := resty.New().SetBaseURL(apiURL)
	if sessionFlag != "" {
		c.SetCookie(&http.Cookie{Name: "sl-access-token", Value: sessionFlag})
	}
	return c
}

func checkStatus(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
		return fmt.Errorf("http %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

func runFeature(apiURL, storyID string, featured bool, out io.Writer) error {
	resp, err := newClient(apiURL).R().
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]bool{"featured": featured}).
		Put("/api/stories/" + storyID + "/featured")
	if err := checkStatus(resp, err); err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, resp.String())
	return err
}

func runTrigger(apiURL string, sourceIDs []string, force bool, out io.Writer) error {
	resp, err := newClient(apiURL).R().
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]interface{}{"sourceIds": sourceIDs, "force": force}).
		Post("/api/scraper/jobs")
	if err := checkStatus(resp, err); err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, resp.String())
	return err
}

func runReport(apiURL string, year int, out io.Writer) error {
	resp, err := newClient(apiURL).R().
		SetQueryParam("year", fmt.Sprintf("%d", year)).
		Get("/api/annual-report")
	if err := checkStatus(resp, err); err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, resp.String())
	return err
}

func runPublishReport(apiURL string, year int, out io.Writer) error {
	resp, err := newClient(apiURL).R().
		SetQueryParam("year", fmt.Sprintf("%d", year)).
		Post("/api/annual-report")
	if err := checkStatus(resp, err); err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, resp.String())
	return err
}

func runSearch(apiURL, query string, topK int, out io.Writer) error {
	if query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	resp, err := newClient(apiURL).R().
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]interface{}{"query": query, "topK": topK}).
		Post("/api/ai/semantic-search")
	if err := checkStatus(resp, err); err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, resp.String())
	return err
}
