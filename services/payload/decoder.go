package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"mirrorbox/models"

	"github.com/PuerkitoBio/goquery"
)

// ExtractionError means the document held no recognizable embedded payload,
// or the payload's shape did not contain the expected entity. It is never
// downgraded to an empty result.
type ExtractionError struct {
	Reason string
}

func (e *ExtractionError) Error() string {
	return "payload extraction failed: " + e.Reason
}

func extractionErrf(format string, args ...any) *ExtractionError {
	return &ExtractionError{Reason: fmt.Sprintf(format, args...)}
}

// Decode locates the flat, index-referenced array embedded in an HTML
// document, materializes the object graph it encodes, and extracts the
// content entity from it.
func Decode(document []byte) (*models.ResolvedEntity, error) {
	store, err := locatePayload(document)
	if err != nil {
		return nil, err
	}
	if len(store) == 0 {
		return nil, extractionErrf("embedded array is empty")
	}

	entity, err := selectEntity(newResolver(store))
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, extractionErrf("no entity with recognizable shape among %d element(s)", len(store))
	}

	resData := entityData(entity)
	if resData == nil {
		return nil, extractionErrf("entity carries no data section")
	}

	return assemble(resData), nil
}

// locatePayload finds the script region holding the JSON array and parses it.
// A document that is itself a bare JSON array is accepted too.
func locatePayload(document []byte) ([]any, error) {
	trimmed := bytes.TrimSpace(document)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return parseArray(string(trimmed))
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(document))
	if err != nil {
		return nil, extractionErrf("parse document: %v", err)
	}

	var raw string
	if sel := doc.Find("script#__NUXT_DATA__"); sel.Length() > 0 {
		raw = strings.TrimSpace(sel.First().Text())
	}
	if raw == "" {
		doc.Find(`script[type="application/json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text := strings.TrimSpace(s.Text())
			if strings.HasPrefix(text, "[") {
				raw = text
				return false
			}
			return true
		})
	}
	if raw == "" {
		doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text := strings.TrimSpace(s.Text())
			if strings.HasPrefix(text, "[") && json.Valid([]byte(text)) {
				raw = text
				return false
			}
			return true
		})
	}
	if raw == "" {
		return nil, extractionErrf("no embedded payload script found")
	}
	return parseArray(raw)
}

func parseArray(raw string) ([]any, error) {
	var store []any
	if err := json.Unmarshal([]byte(raw), &store); err != nil {
		return nil, extractionErrf("parse embedded array: %v", err)
	}
	return store, nil
}

// resolver materializes the flat encoding: integer values that are in-range
// indices into the store stand for the element at that index, everything
// else is literal. Shared subtrees are memoized by index; indices currently
// being resolved are tracked so a cyclic document fails instead of looping,
// while valid chains resolve fully no matter how deep.
type resolver struct {
	store  []any
	memo   map[int]any
	active map[int]bool
}

func newResolver(store []any) *resolver {
	return &resolver{
		store:  store,
		memo:   make(map[int]any),
		active: make(map[int]bool),
	}
}

// refIndex reports whether v encodes a reference into a store of the given
// length. Non-integral numbers and out-of-range values are literals.
func refIndex(v any, length int) (int, bool) {
	f, ok := v.(float64)
	if !ok {
		return 0, false
	}
	if f != math.Trunc(f) || f < 0 || f >= float64(length) {
		return 0, false
	}
	return int(f), true
}

func (r *resolver) at(index int) (any, error) {
	if memo, hit := r.memo[index]; hit {
		return memo, nil
	}
	if r.active[index] {
		return nil, extractionErrf("reference cycle through element %d", index)
	}
	r.active[index] = true
	resolved, err := r.resolve(r.store[index])
	delete(r.active, index)
	if err != nil {
		return nil, err
	}
	r.memo[index] = resolved
	return resolved, nil
}

func (r *resolver) resolve(v any) (any, error) {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, el := range t {
			resolved, err := r.deref(el)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, el := range t {
			resolved, err := r.deref(el)
			if err != nil {
				return nil, err
			}
			out[stripKeyPrefix(k)] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

func (r *resolver) deref(v any) (any, error) {
	if index, ok := refIndex(v, len(r.store)); ok {
		return r.at(index)
	}
	return r.resolve(v)
}

// stripKeyPrefix drops framework reactivity markers from map keys.
func stripKeyPrefix(k string) string {
	if strings.HasPrefix(k, "$s") && len(k) > 2 {
		return k[2:]
	}
	if strings.HasPrefix(k, "$") && len(k) > 1 {
		return k[1:]
	}
	return k
}

// selectEntity walks the resolved top-level maps and picks the candidate
// carrying the state shape, or one exposing the data section directly, or
// the first map as a last resort. A cyclic document surfaces its resolution
// error instead of a partial entity.
func selectEntity(r *resolver) (map[string]any, error) {
	var first map[string]any
	var direct map[string]any

	for index, el := range r.store {
		if _, ok := el.(map[string]any); !ok {
			continue
		}
		value, err := r.at(index)
		if err != nil {
			return nil, err
		}
		resolved, ok := value.(map[string]any)
		if !ok {
			continue
		}
		if first == nil {
			first = resolved
		}
		if state, ok := resolved["state"].([]any); ok && len(state) >= 2 {
			// The state field is an array whose second element is the
			// real state map.
			if inner, ok := state[1].(map[string]any); ok {
				if entityData(inner) != nil {
					return inner, nil
				}
			}
		}
		if direct == nil && entityData(resolved) != nil {
			direct = resolved
		}
	}

	if direct != nil {
		return direct, nil
	}
	return first, nil
}

// entityData returns the entity's data section, under either of the names
// the upstream uses.
func entityData(entity map[string]any) map[string]any {
	if m, ok := entity["resData"].(map[string]any); ok {
		return m
	}
	if m, ok := entity["data"].(map[string]any); ok {
		return m
	}
	return nil
}

// DecodeDownloads extracts the download candidate list from a document's
// embedded payload. Mirrors that have not migrated to the JSON download
// endpoint still answer with a full page.
func DecodeDownloads(document []byte) ([]models.DownloadCandidate, error) {
	store, err := locatePayload(document)
	if err != nil {
		return nil, err
	}
	if len(store) == 0 {
		return nil, extractionErrf("embedded array is empty")
	}

	entity, err := selectEntity(newResolver(store))
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, extractionErrf("no entity with recognizable shape among %d element(s)", len(store))
	}
	resData := entityData(entity)
	if resData == nil {
		return nil, extractionErrf("entity carries no data section")
	}

	downloads, ok := resData["downloads"].([]any)
	if !ok {
		if resourceMap, okRes := resData["resource"].(map[string]any); okRes {
			downloads, ok = resourceMap["downloads"].([]any)
		}
	}
	if !ok {
		return nil, extractionErrf("entity carries no downloads section")
	}

	candidates := make([]models.DownloadCandidate, 0, len(downloads))
	for _, raw := range downloads {
		itemMap, okItem := raw.(map[string]any)
		if !okItem {
			continue
		}
		candidate := models.DownloadCandidate{
			Resolution:  asInt(itemMap["resolution"]),
			URL:         asString(itemMap["url"]),
			ResourceURL: asString(itemMap["resourceLink"]),
			CanDownload: true,
		}
		if size := asFloat(itemMap["size"]); size != nil {
			n := int64(*size)
			candidate.Size = &n
		}
		if flag, okFlag := itemMap["canDownload"].(bool); okFlag {
			candidate.CanDownload = flag
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

func assemble(resData map[string]any) *models.ResolvedEntity {
	entity := &models.ResolvedEntity{}

	subjectMap, _ := resData["subject"].(map[string]any)
	entity.Subject = assembleSubject(subjectMap)

	if resourceMap, ok := resData["resource"].(map[string]any); ok {
		entity.Resource = assembleResource(resourceMap)
	}

	if stars, ok := resData["stars"].([]any); ok {
		for _, raw := range stars {
			starMap, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			entity.Stars = append(entity.Stars, models.Star{
				Name:      asString(starMap["name"]),
				Character: asString(starMap["character"]),
				AvatarURL: asString(starMap["avatarUrl"]),
			})
		}
	}

	if metaMap, ok := resData["metadata"].(map[string]any); ok {
		entity.Metadata = models.Metadata{
			Description: asString(metaMap["description"]),
			Keywords:    asString(metaMap["keywords"]),
			ImdbRating:  asFloat(metaMap["imdbRatingValue"]),
		}
	}

	// The rating can appear on either side; mirror it so callers find it in
	// both places.
	if entity.Metadata.ImdbRating == nil {
		entity.Metadata.ImdbRating = entity.Subject.ImdbRating
	}
	if entity.Subject.ImdbRating == nil {
		entity.Subject.ImdbRating = entity.Metadata.ImdbRating
	}
	if entity.Metadata.Description == "" {
		entity.Metadata.Description = entity.Subject.Description
	}

	return entity
}

func assembleSubject(subjectMap map[string]any) models.Subject {
	if subjectMap == nil {
		return models.Subject{}
	}
	subject := models.Subject{
		SubjectID:   asString(subjectMap["subjectId"]),
		Title:       asString(subjectMap["title"]),
		ReleaseDate: asString(subjectMap["releaseDate"]),
		Genre:       asString(subjectMap["genre"]),
		Country:     asString(subjectMap["countryName"]),
		ImdbRating:  asFloat(subjectMap["imdbRatingValue"]),
		Description: asString(subjectMap["description"]),
	}
	if cover, ok := subjectMap["cover"].(map[string]any); ok {
		subject.Cover = asString(cover["url"])
	} else {
		subject.Cover = asString(subjectMap["cover"])
	}
	subject.SubtitleLanguages = normalizeSubtitles(subjectMap["subtitles"])
	if len(subject.SubtitleLanguages) == 0 {
		subject.SubtitleLanguages = normalizeSubtitles(subjectMap["subtitleLanguages"])
	}
	return subject
}

// normalizeSubtitles accepts either a comma-joined string or an array and
// returns a clean list.
func normalizeSubtitles(v any) []string {
	var out []string
	switch t := v.(type) {
	case string:
		for _, part := range strings.Split(t, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	case []any:
		for _, el := range t {
			if s := strings.TrimSpace(asString(el)); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func assembleResource(resourceMap map[string]any) models.Resource {
	var resource models.Resource
	seasons, ok := resourceMap["seasons"].([]any)
	if !ok {
		return resource
	}
	for _, raw := range seasons {
		seasonMap, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		season := models.Season{
			Number:       asInt(seasonMap["se"]),
			EpisodeCount: asInt(seasonMap["maxEp"]),
		}
		if episodes, ok := seasonMap["episodes"].([]any); ok {
			for _, ep := range episodes {
				if n := asInt(ep); n > 0 {
					season.Episodes = append(season.Episodes, n)
				}
			}
		}
		// Upstream often ships only the count; synthesize 1..maxEp then.
		if len(season.Episodes) == 0 && season.EpisodeCount > 0 {
			season.Episodes = make([]int, season.EpisodeCount)
			for i := range season.Episodes {
				season.Episodes[i] = i + 1
			}
		}
		if resolutions, ok := seasonMap["resolutions"].([]any); ok {
			for _, res := range resolutions {
				if n := asInt(res); n > 0 {
					season.Resolutions = append(season.Resolutions, n)
				}
			}
		}
		resource.Seasons = append(resource.Seasons, season)
	}
	return resource
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == math.Trunc(t) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

func asFloat(v any) *float64 {
	switch t := v.(type) {
	case float64:
		return &t
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			return &f
		}
	}
	return nil
}

func asInt(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return n
		}
	}
	return 0
}
