// Package github is a small client for the GitHub Actions REST endpoints
// wheelfetch needs: workflow runs, run artifacts and artifact archives.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/3leaps/wheelfetch/internal/model"
)

const (
	DefaultAPIBase = "https://api.github.com"
	apiVersion     = "2022-11-28"
	perPage        = 100
	maxPages       = 10
	maxErrorBody   = 512
	maxRedirects   = 10
)

// TokenEnvVars lists the environment variables consulted for a token, in
// precedence order.
var TokenEnvVars = []string{"WHEELFETCH_GITHUB_TOKEN", "GITHUB_API_TOKEN", "GITHUB_TOKEN"}

func TokenFromEnv() string {
	for _, name := range TokenEnvVars {
		if tok := strings.TrimSpace(os.Getenv(name)); tok != "" {
			return tok
		}
	}
	return ""
}

func UserAgent(version string) string {
	return fmt.Sprintf("wheelfetch/%s", version)
}

// Config holds the client settings. Zero durations and rates fall back to
// the defaults below.
type Config struct {
	APIBase           string
	Token             string
	UserAgent         string
	Timeout           time.Duration
	DownloadTimeout   time.Duration
	RequestsPerSecond float64
}

type Client struct {
	base      *url.URL
	token     string
	userAgent string
	api       *http.Client
	download  *http.Client
	limiter   *rate.Limiter
	log       *logrus.Entry
}

func New(cfg Config) (*Client, error) {
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	base, err := url.Parse(strings.TrimRight(cfg.APIBase, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api base %q: %w", cfg.APIBase, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("api base %q: scheme must be http or https", cfg.APIBase)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = 10 * time.Minute
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = UserAgent("dev")
	}

	c := &Client{
		base:      base,
		token:     cfg.Token,
		userAgent: cfg.UserAgent,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 5),
		log:       logrus.WithField("component", "github"),
	}
	c.api = &http.Client{Timeout: cfg.Timeout, CheckRedirect: c.checkRedirect}
	c.download = &http.Client{Timeout: cfg.DownloadTimeout, CheckRedirect: c.checkRedirect}
	return c, nil
}

// checkRedirect drops the credential when a redirect leaves the API host.
// Artifact archives are served from short-lived signed storage URLs.
func (c *Client) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	if req.URL.Host != c.base.Host {
		req.Header.Del("Authorization")
	}
	return nil
}

// ListWorkflowRuns returns the push-event runs recorded for q.Branch and
// q.HeadSHA, in provider order.
func (c *Client) ListWorkflowRuns(ctx context.Context, q model.RunQuery) ([]model.WorkflowRun, error) {
	u := c.base.JoinPath("repos", q.Owner, q.Repo, "actions", "runs")
	params := url.Values{}
	params.Set("event", "push")
	if q.Branch != "" {
		params.Set("branch", q.Branch)
	}
	if q.HeadSHA != "" {
		params.Set("head_sha", q.HeadSHA)
	}
	params.Set("per_page", strconv.Itoa(perPage))
	u.RawQuery = params.Encode()

	var runs []model.WorkflowRun
	err := c.paginate(ctx, u.String(), func(body io.Reader) error {
		var page model.WorkflowRunList
		if err := json.NewDecoder(body).Decode(&page); err != nil {
			return err
		}
		runs = append(runs, page.WorkflowRuns...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.log.WithFields(logrus.Fields{"repo": q.Owner + "/" + q.Repo, "runs": len(runs)}).Debug("listed workflow runs")
	return runs, nil
}

// ListArtifacts returns every artifact listed at artifactsURL, usually a
// run's artifacts_url.
func (c *Client) ListArtifacts(ctx context.Context, artifactsURL string) ([]model.Artifact, error) {
	u, err := url.Parse(artifactsURL)
	if err != nil {
		return nil, model.Wrap(model.ErrNetwork, err, "artifacts url %q", artifactsURL)
	}
	params := u.Query()
	params.Set("per_page", strconv.Itoa(perPage))
	u.RawQuery = params.Encode()

	var artifacts []model.Artifact
	err = c.paginate(ctx, u.String(), func(body io.Reader) error {
		var page model.ArtifactList
		if err := json.NewDecoder(body).Decode(&page); err != nil {
			return err
		}
		artifacts = append(artifacts, page.Artifacts...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return artifacts, nil
}

// Download reads the archive at rawURL fully into memory. Bodies larger than
// limit bytes are rejected.
func (c *Client) Download(ctx context.Context, rawURL string, limit int64) ([]byte, error) {
	resp, err := c.do(ctx, c.download, rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if limit > 0 && resp.ContentLength > limit {
		return nil, model.Errorf(model.ErrNetwork, "GET %s: archive is %d bytes, limit is %d", rawURL, resp.ContentLength, limit)
	}
	reader := io.Reader(resp.Body)
	if limit > 0 {
		reader = io.LimitReader(resp.Body, limit+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, model.Wrap(model.ErrNetwork, err, "read %s", rawURL)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, model.Errorf(model.ErrNetwork, "GET %s: archive exceeds %d bytes", rawURL, limit)
	}
	c.log.WithFields(logrus.Fields{"url": rawURL, "bytes": len(data)}).Debug("downloaded archive")
	return data, nil
}

func (c *Client) paginate(ctx context.Context, next string, decode func(io.Reader) error) error {
	for page := 0; next != "" && page < maxPages; page++ {
		resp, err := c.do(ctx, c.api, next)
		if err != nil {
			return err
		}
		err = decode(resp.Body)
		link := resp.Header.Get("Link")
		resp.Body.Close()
		if err != nil {
			return model.Wrap(model.ErrNetwork, err, "decode %s", next)
		}
		next = nextLink(link)
	}
	if next != "" {
		c.log.WithFields(logrus.Fields{"pages": maxPages, "next": next}).Warn("listing truncated at page limit; later entries were not considered")
	}
	return nil
}

func (c *Client) do(ctx context.Context, client *http.Client, rawURL string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, model.Wrap(model.ErrNetwork, err, "GET %s", rawURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, model.Wrap(model.ErrNetwork, err, "GET %s", rawURL)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	if c.token != "" && req.URL.Host == c.base.Host {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	c.log.WithField("url", rawURL).Debug("GET")
	resp, err := client.Do(req)
	if err != nil {
		return nil, model.Wrap(model.ErrNetwork, err, "GET %s", rawURL)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := strings.TrimSpace(string(snippet))
		if msg == "" {
			return nil, model.Errorf(model.ErrNetwork, "GET %s: %s", rawURL, resp.Status)
		}
		return nil, model.Errorf(model.ErrNetwork, "GET %s: %s: %s", rawURL, resp.Status, msg)
	}
	return resp, nil
}

// nextLink extracts the rel="next" target from an RFC 8288 Link header.
func nextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		fields := strings.Split(part, ";")
		if len(fields) < 2 {
			continue
		}
		target := strings.TrimSpace(fields[0])
		if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
			continue
		}
		for _, param := range fields[1:] {
			param = strings.ReplaceAll(strings.TrimSpace(param), " ", "")
			if param == `rel="next"` || param == "rel=next" {
				return strings.Trim(target, "<>")
			}
		}
	}
	return ""
}
