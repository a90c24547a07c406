package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"mirrorbox/models"
	"mirrorbox/services/payload"
)

const (
	searchPath   = "wefeed-h5-bff/web/subject/search"
	downloadPath = "wefeed-h5-bff/web/subject/download"
)

// Client is the downstream-facing surface over the dispatcher: search,
// entity fetch (page + decode), and download candidate lookup.
type Client struct {
	d *Dispatcher
	// requireFlag selects the stricter candidate policy: exclude entries
	// whose availability flag is false even when a URL is present.
	requireFlag bool
}

func NewClient(d *Dispatcher, requireAvailabilityFlag bool) *Client {
	return &Client{d: d, requireFlag: requireAvailabilityFlag}
}

// apiEnvelope is the upstream's uniform JSON response wrapper.
type apiEnvelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decodeEnvelope(body []byte, v any) error {
	var env apiEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	if env.Code != 0 {
		return fmt.Errorf("upstream api error code=%d message=%q", env.Code, env.Message)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

type searchRequest struct {
	Keyword     string `json:"keyword"`
	Page        int    `json:"page"`
	PerPage     int    `json:"perPage"`
	SubjectType int    `json:"subjectType"`
}

type searchData struct {
	Items []struct {
		SubjectID   string   `json:"subjectId"`
		Title       string   `json:"title"`
		DetailPath  string   `json:"detailPath"`
		SubjectType int      `json:"subjectType"`
		ReleaseDate string   `json:"releaseDate"`
		Genre       string   `json:"genre"`
		CountryName string   `json:"countryName"`
		ImdbRating  *float64 `json:"imdbRatingValue"`
		Cover       struct {
			URL string `json:"url"`
		} `json:"cover"`
	} `json:"items"`
	Pager struct {
		Page       int  `json:"page"`
		PerPage    int  `json:"perPage"`
		TotalCount int  `json:"totalCount"`
		HasMore    bool `json:"hasMore"`
	} `json:"pager"`
}

// Search runs a keyword query and returns one page of results.
func (c *Client) Search(ctx context.Context, keyword string, page, perPage int, subjectType models.SubjectType) (*models.SearchPage, error) {
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 24
	}

	body, err := json.Marshal(searchRequest{
		Keyword:     strings.TrimSpace(keyword),
		Page:        page,
		PerPage:     perPage,
		SubjectType: int(subjectType),
	})
	if err != nil {
		return nil, err
	}

	raw, _, err := c.d.Dispatch(ctx, Request{
		Method: http.MethodPost,
		Path:   searchPath,
		Body:   body,
		Headers: map[string]string{
			"Accept":       "application/json",
			"Content-Type": "application/json",
		},
		MaxRetries: -1,
	})
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", keyword, err)
	}

	var data searchData
	if err := decodeEnvelope(raw, &data); err != nil {
		return nil, fmt.Errorf("search %q: %w", keyword, err)
	}

	result := &models.SearchPage{
		Items: make([]models.SearchItem, 0, len(data.Items)),
		Pager: models.Pager{
			Page:       data.Pager.Page,
			PerPage:    data.Pager.PerPage,
			TotalCount: data.Pager.TotalCount,
			HasMore:    data.Pager.HasMore,
		},
	}
	for _, item := range data.Items {
		result.Items = append(result.Items, models.SearchItem{
			SubjectID:   item.SubjectID,
			Title:       item.Title,
			DetailPath:  item.DetailPath,
			SubjectType: models.SubjectType(item.SubjectType),
			ReleaseDate: item.ReleaseDate,
			Genre:       item.Genre,
			Country:     item.CountryName,
			ImdbRating:  item.ImdbRating,
			Cover:       item.Cover.URL,
		})
	}

	log.Printf("[upstream] search %q page=%d returned %d item(s)", keyword, page, len(result.Items))
	return result, nil
}

// detailPagePath maps a detail slug to its page route. Slugs that already
// carry a route segment are used as-is.
func detailPagePath(detailPath string) string {
	detailPath = strings.Trim(strings.TrimSpace(detailPath), "/")
	if strings.Contains(detailPath, "/") {
		return detailPath
	}
	return "movies/" + detailPath
}

// FetchSubject fetches the content's detail page via the dispatcher and
// decodes the embedded payload into a resolved entity.
func (c *Client) FetchSubject(ctx context.Context, detailPath, subjectID string) (*models.ResolvedEntity, error) {
	pagePath := detailPagePath(detailPath)

	query := url.Values{}
	if strings.TrimSpace(subjectID) != "" {
		query.Set("id", subjectID)
	}

	raw, _, err := c.d.Dispatch(ctx, Request{
		Method:      http.MethodGet,
		Path:        pagePath,
		Query:       query,
		RefererPath: pagePath,
		MaxRetries:  -1,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch subject %q: %w", detailPath, err)
	}

	entity, err := payload.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("fetch subject %q: %w", detailPath, err)
	}
	if entity.Subject.SubjectID == "" {
		entity.Subject.SubjectID = strings.TrimSpace(subjectID)
	}
	return entity, nil
}

type downloadData struct {
	Downloads []struct {
		Resolution  int    `json:"resolution"`
		Size        *int64 `json:"size"`
		URL         string `json:"url"`
		ResourceURL string `json:"resourceLink"`
		CanDownload *bool  `json:"canDownload"`
	} `json:"downloads"`
}

// parseDownloads handles both upstream shapes: the JSON envelope from the
// download endpoint, and a full HTML page with the candidates embedded in
// its payload (older mirrors).
func parseDownloads(raw []byte) ([]models.DownloadCandidate, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return payload.DecodeDownloads(raw)
	}

	var data downloadData
	if err := decodeEnvelope(trimmed, &data); err != nil {
		return nil, err
	}
	candidates := make([]models.DownloadCandidate, 0, len(data.Downloads))
	for _, item := range data.Downloads {
		candidates = append(candidates, models.DownloadCandidate{
			Resolution:  item.Resolution,
			Size:        item.Size,
			URL:         item.URL,
			ResourceURL: item.ResourceURL,
			// A missing flag counts as available; the flag is unreliable
			// and never the sole gate either way.
			CanDownload: item.CanDownload == nil || *item.CanDownload,
		})
	}
	return candidates, nil
}

// FetchDownloads looks up download candidates for a subject. Movies use
// season=0/episode=0; episode 0 forces season 0; a non-zero episode with
// season 0 is rejected as invalid input.
func (c *Client) FetchDownloads(ctx context.Context, subjectID, detailPath string, season, episode int) (*models.DownloadResult, error) {
	if strings.TrimSpace(subjectID) == "" {
		return nil, fmt.Errorf("%w: subject id required", ErrInvalidSelection)
	}
	if episode == 0 {
		season = 0
	} else if season == 0 {
		return nil, fmt.Errorf("%w: episode %d without a season", ErrInvalidSelection, episode)
	}
	if season < 0 || episode < 0 {
		return nil, fmt.Errorf("%w: season=%d episode=%d", ErrInvalidSelection, season, episode)
	}

	query := url.Values{}
	query.Set("subjectId", subjectID)
	query.Set("se", strconv.Itoa(season))
	query.Set("ep", strconv.Itoa(episode))

	raw, cookies, err := c.d.Dispatch(ctx, Request{
		Method:      http.MethodGet,
		Path:        downloadPath,
		Query:       query,
		Headers:     map[string]string{"Accept": "application/json"},
		RefererPath: detailPagePath(detailPath),
		MaxRetries:  -1,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch downloads subject=%s: %w", subjectID, err)
	}

	candidates, err := parseDownloads(raw)
	if err != nil {
		return nil, fmt.Errorf("fetch downloads subject=%s: %w", subjectID, err)
	}

	usable := filterCandidates(candidates, c.requireFlag)
	log.Printf("[upstream] downloads subject=%s se=%d ep=%d: %d candidate(s), %d usable", subjectID, season, episode, len(candidates), len(usable))
	if len(usable) == 0 {
		return nil, ErrNoCandidates
	}

	return &models.DownloadResult{Candidates: usable, SessionCookies: cookies}, nil
}

// filterCandidates drops entries without a usable URL. URL presence is
// authoritative: a flag-false entry with a URL stays in unless the stricter
// policy is enabled.
func filterCandidates(candidates []models.DownloadCandidate, requireFlag bool) []models.DownloadCandidate {
	usable := make([]models.DownloadCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.BestURL() == "" {
			continue
		}
		if requireFlag && !c.CanDownload {
			continue
		}
		usable = append(usable, c)
	}
	return usable
}
