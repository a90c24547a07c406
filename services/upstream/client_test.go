package upstream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"mirrorbox/models"
	"mirrorbox/services/hostpool"
)

func testClient(transport roundTripFunc, requireFlag bool) *Client {
	pool := hostpool.New([]string{"https://a.test"})
	httpc := &http.Client{Transport: transport}
	d := NewDispatcher(pool, NewSessionStore(), httpc, "", 10*time.Second, 0)
	return NewClient(d, requireFlag)
}

func TestSearchParsesEnvelope(t *testing.T) {
	var gotPath, gotBody string
	client := testClient(func(req *http.Request) (*http.Response, error) {
		gotPath = req.URL.Path
		raw, _ := io.ReadAll(req.Body)
		gotBody = string(raw)
		return jsonResponse(http.StatusOK, `{
			"code": 0,
			"message": "ok",
			"data": {
				"items": [
					{"subjectId":"42","title":"Sea Fog","detailPath":"sea-fog","subjectType":1,"releaseDate":"2014-08-13","genre":"Thriller","countryName":"KR","imdbRatingValue":6.8,"cover":{"url":"https://img.test/42.jpg"}}
				],
				"pager": {"page":1,"perPage":24,"totalCount":1,"hasMore":false}
			}
		}`), nil
	}, false)

	page, err := client.Search(context.Background(), "sea fog", 0, 0, models.SubjectTypeMovie)
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if gotPath != "/wefeed-h5-bff/web/subject/search" {
		t.Errorf("path = %q", gotPath)
	}
	if !strings.Contains(gotBody, `"keyword":"sea fog"`) || !strings.Contains(gotBody, `"page":1`) {
		t.Errorf("request body = %s", gotBody)
	}
	if len(page.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(page.Items))
	}
	item := page.Items[0]
	if item.SubjectID != "42" || item.Title != "Sea Fog" || item.DetailPath != "sea-fog" {
		t.Errorf("item = %+v", item)
	}
	if item.ImdbRating == nil || *item.ImdbRating != 6.8 {
		t.Errorf("rating = %v", item.ImdbRating)
	}
	if page.Pager.TotalCount != 1 || page.Pager.HasMore {
		t.Errorf("pager = %+v", page.Pager)
	}
}

func TestSearchNonZeroCodeIsError(t *testing.T) {
	client := testClient(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"code":50001,"message":"rate limited","data":null}`), nil
	}, false)
	if _, err := client.Search(context.Background(), "x", 1, 24, models.SubjectTypeAll); err == nil {
		t.Fatal("expected error for non-zero envelope code")
	}
}

func TestFetchDownloadsEpisodeNormalization(t *testing.T) {
	var gotQuery string
	client := testClient(func(req *http.Request) (*http.Response, error) {
		gotQuery = req.URL.RawQuery
		return jsonResponse(http.StatusOK, `{"code":0,"data":{"downloads":[{"resolution":720,"url":"https://cdn.test/x.mp4"}]}}`), nil
	}, false)

	// Episode 0 forces season 0 regardless of the requested season.
	if _, err := client.FetchDownloads(context.Background(), "42", "slug", 5, 0); err != nil {
		t.Fatalf("FetchDownloads returned error: %v", err)
	}
	if !strings.Contains(gotQuery, "se=0") || !strings.Contains(gotQuery, "ep=0") {
		t.Errorf("query = %q, want se=0 ep=0", gotQuery)
	}

	// A concrete episode without a season is invalid input.
	_, err := client.FetchDownloads(context.Background(), "42", "slug", 0, 3)
	if !errors.Is(err, ErrInvalidSelection) {
		t.Errorf("err = %v, want ErrInvalidSelection", err)
	}
}

func TestFetchDownloadsFiltersCandidates(t *testing.T) {
	body := `{"code":0,"data":{"downloads":[
		{"resolution":360,"url":"","resourceLink":""},
		{"resolution":720,"url":"https://cdn.test/720.mp4","canDownload":false},
		{"resolution":1080,"url":"","resourceLink":"https://cdn.test/1080.mp4","canDownload":true}
	]}}`
	client := testClient(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, body), nil
	}, false)

	result, err := client.FetchDownloads(context.Background(), "42", "slug", 0, 0)
	if err != nil {
		t.Fatalf("FetchDownloads returned error: %v", err)
	}
	// 360 has no URL at all; 720's flag is false but the URL is present, so
	// it stays in under the permissive policy.
	if len(result.Candidates) != 2 {
		t.Fatalf("candidates = %+v, want 2", result.Candidates)
	}
	if result.Candidates[0].Resolution != 720 || result.Candidates[1].Resolution != 1080 {
		t.Errorf("candidates = %+v", result.Candidates)
	}

	strict := testClient(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, body), nil
	}, true)
	strictResult, err := strict.FetchDownloads(context.Background(), "42", "slug", 0, 0)
	if err != nil {
		t.Fatalf("strict FetchDownloads returned error: %v", err)
	}
	if len(strictResult.Candidates) != 1 || strictResult.Candidates[0].Resolution != 1080 {
		t.Errorf("strict candidates = %+v, want only 1080", strictResult.Candidates)
	}
}

func TestFetchDownloadsNoCandidatesIsDistinctError(t *testing.T) {
	client := testClient(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"code":0,"data":{"downloads":[{"resolution":1080,"url":"","canDownload":true}]}}`), nil
	}, false)
	_, err := client.FetchDownloads(context.Background(), "42", "slug", 0, 0)
	if !errors.Is(err, ErrNoCandidates) {
		t.Errorf("err = %v, want ErrNoCandidates", err)
	}
}

// The download endpoint on older mirrors answers with a full HTML page whose
// embedded payload carries the candidate list.
func TestFetchDownloadsFromHTMLPage(t *testing.T) {
	page := `<!DOCTYPE html><html><body>
<script id="__NUXT_DATA__" type="application/json">[{"data":1},{"downloads":2},[3,4],{"resolution":5,"url":6},{"resolution":7,"url":8},720,"https://cdn.test/movie-720.mp4",1080,""]</script>
</body></html>`
	client := testClient(func(req *http.Request) (*http.Response, error) {
		resp := jsonResponse(http.StatusOK, page)
		resp.Header.Add("Set-Cookie", "account=abc")
		return resp, nil
	}, false)

	result, err := client.FetchDownloads(context.Background(), "123", "movie-abc", 0, 0)
	if err != nil {
		t.Fatalf("FetchDownloads returned error: %v", err)
	}
	if len(result.Candidates) != 1 {
		t.Fatalf("candidates = %+v, want exactly one", result.Candidates)
	}
	if result.Candidates[0].Resolution != 720 {
		t.Errorf("resolution = %d, want 720", result.Candidates[0].Resolution)
	}
	if result.SessionCookies != "account=abc" {
		t.Errorf("session cookies = %q", result.SessionCookies)
	}
}

func TestFetchSubjectDecodesPage(t *testing.T) {
	page := `<!DOCTYPE html><html><body>
<script id="__NUXT_DATA__" type="application/json">[{"data":1},{"subject":2},{"title":3},"Sea Fog"]</script>
</body></html>`
	var gotPath string
	client := testClient(func(req *http.Request) (*http.Response, error) {
		gotPath = req.URL.Path
		return jsonResponse(http.StatusOK, page), nil
	}, false)

	entity, err := client.FetchSubject(context.Background(), "sea-fog", "42")
	if err != nil {
		t.Fatalf("FetchSubject returned error: %v", err)
	}
	if gotPath != "/movies/sea-fog" {
		t.Errorf("path = %q", gotPath)
	}
	if entity.Subject.Title != "Sea Fog" {
		t.Errorf("title = %q", entity.Subject.Title)
	}
	// The decoder found no ID on the page, so the caller's falls through.
	if entity.Subject.SubjectID != "42" {
		t.Errorf("subjectId = %q", entity.Subject.SubjectID)
	}
}
