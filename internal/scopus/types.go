package scopus

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/segmentio/encoding/json"
)

// List decodes a field that the API returns either as a single object or
// as an array of objects.
type List[T any] []T

// UnmarshalJSON implements json.Unmarshaler.
func (l *List[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0, bytes.Equal(data, []byte("null")):
		*l = nil
		return nil
	case data[0] == '[':
		var items []T
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		*l = items
		return nil
	default:
		var item T
		if err := json.Unmarshal(data, &item); err != nil {
			return err
		}
		*l = List[T]{item}
		return nil
	}
}

// AuthorResponse is the body of an author retrieval request.
type AuthorResponse struct {
	Authors []Author `json:"author-retrieval-response"`
	Raw     []byte   `json:"-"`
}

// Author is one author profile.
type Author struct {
	Coredata      Coredata       `json:"coredata"`
	SubjectAreas  SubjectAreas   `json:"subject-areas"`
	Profile       *AuthorProfile `json:"author-profile"`
	HIndex        string         `json:"h-index"`
	CoauthorCount string         `json:"coauthor-count"`
}

// Coredata holds the author identifier and counts.
type Coredata struct {
	URL           string `json:"prism:url"`
	Identifier    string `json:"dc:identifier"`
	DocumentCount string `json:"document-count"`
	CitedByCount  string `json:"cited-by-count"`
	CitationCount string `json:"citation-count"`
}

type SubjectAreas struct {
	SubjectArea List[SubjectArea] `json:"subject-area"`
}

// SubjectArea is an ASJC classification.
type SubjectArea struct {
	Abbrev string `json:"@abbrev"`
	Code   string `json:"@code"`
	Name   string `json:"$"`
}

// AuthorProfile is the ENHANCED view profile block.
type AuthorProfile struct {
	PreferredName       Name                `json:"preferred-name"`
	PublicationRange    Range               `json:"publication-range"`
	ClassificationGroup ClassificationGroup `json:"classificationgroup"`
	AffiliationCurrent  *struct {
		Affiliation List[ProfileAffiliation] `json:"affiliation"`
	} `json:"affiliation-current"`
}

type Name struct {
	Initials    string `json:"initials"`
	IndexedName string `json:"indexed-name"`
	Surname     string `json:"surname"`
	GivenName   string `json:"given-name"`
}

type Range struct {
	Start string `json:"@start"`
	End   string `json:"@end"`
}

type ClassificationGroup struct {
	Classifications struct {
		Type           string               `json:"@type"`
		Classification List[Classification] `json:"classification"`
	} `json:"classifications"`
}

// Classification counts documents of an author in one ASJC code.
type Classification struct {
	Frequency string `json:"@frequency"`
	Code      string `json:"$"`
}

type ProfileAffiliation struct {
	ID    string `json:"@affiliation-id"`
	IPDoc struct {
		DisplayName   string `json:"afdispname"`
		PreferredName struct {
			Value string `json:"$"`
		} `json:"preferred-name"`
		Address struct {
			City    string `json:"city"`
			Country string `json:"country"`
		} `json:"address"`
	} `json:"ip-doc"`
}

// MetricsResponse is the body of a SciVal author metrics request.
type MetricsResponse struct {
	Results []MetricsResult `json:"results"`
	Raw     []byte          `json:"-"`
}

type MetricsResult struct {
	Author struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"author"`
	Metrics []Metric `json:"metrics"`
}

// Metric is one SciVal metric. Scalar metrics carry Value; breakdown
// metrics such as Collaboration carry Values.
type Metric struct {
	MetricType string        `json:"metricType"`
	Value      *float64      `json:"value"`
	Values     []MetricValue `json:"values"`
}

type MetricValue struct {
	CollabType string   `json:"collabType"`
	Threshold  int      `json:"threshold"`
	Value      *float64 `json:"value"`
	Percentage *float64 `json:"percentage"`
}

// Metric returns the metric of type t, or nil.
func (r MetricsResult) Metric(t string) *Metric {
	for i := range r.Metrics {
		if r.Metrics[i].MetricType == t {
			return &r.Metrics[i]
		}
	}
	return nil
}

// SearchResponse is the body of a Scopus or author search request.
type SearchResponse[E any] struct {
	Results SearchResults[E] `json:"search-results"`
	Raw     []byte           `json:"-"`
}

type SearchResults[E any] struct {
	TotalResults string `json:"opensearch:totalResults"`
	StartIndex   string `json:"opensearch:startIndex"`
	ItemsPerPage string `json:"opensearch:itemsPerPage"`
	Entry        []E    `json:"entry"`
}

// Total parses TotalResults, returning 0 when it is missing.
func (r SearchResults[E]) Total() int {
	n, _ := strconv.Atoi(r.TotalResults)
	return n
}

// Document is a Scopus search entry.
type Document struct {
	Identifier      string `json:"dc:identifier"`
	EID             string `json:"eid"`
	Title           string `json:"dc:title"`
	Creator         string `json:"dc:creator"`
	PublicationName string `json:"prism:publicationName"`
	CoverDate       string `json:"prism:coverDate"`
	CitedByCount    string `json:"citedby-count"`
	Subtype         string `json:"subtypeDescription"`
	AuthKeywords    string `json:"authkeywords"`
	Error           string `json:"error"`
}

// Keywords splits the author keywords.
func (d Document) Keywords() []string {
	var out []string
	for _, k := range strings.Split(d.AuthKeywords, "|") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// AuthorEntry is an author search entry.
type AuthorEntry struct {
	Identifier    string `json:"dc:identifier"`
	PreferredName Name   `json:"preferred-name"`
	DocumentCount string `json:"document-count"`
	Error         string `json:"error"`
}

// AuthorID strips the AUTHOR_ID: prefix from Identifier.
func (e AuthorEntry) AuthorID() string {
	if _, id, ok := strings.Cut(e.Identifier, ":"); ok {
		return id
	}
	return e.Identifier
}

// Found returns the entries that are real results. An empty result set is
// reported by the API as a single entry carrying an error message.
func Found[E interface{ errorText() string }](entries []E) []E {
	out := make([]E, 0, len(entries))
	for _, e := range entries {
		if e.errorText() == "" {
			out = append(out, e)
		}
	}
	return out
}

func (d Document) errorText() string    { return d.Error }
func (e AuthorEntry) errorText() string { return e.Error }

// DecodeAuthor decodes an author retrieval body.
func DecodeAuthor(body []byte) (*AuthorResponse, error) {
	r := AuthorResponse{Raw: body}
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// DecodeMetrics decodes a SciVal metrics body.
func DecodeMetrics(body []byte) (*MetricsResponse, error) {
	r := MetricsResponse{Raw: body}
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// DecodeSearch decodes a Scopus search body.
func DecodeSearch(body []byte) (*SearchResponse[Document], error) {
	r := SearchResponse[Document]{Raw: body}
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// DecodeAuthorSearch decodes an author search body.
func DecodeAuthorSearch(body []byte) (*SearchResponse[AuthorEntry], error) {
	r := SearchResponse[AuthorEntry]{Raw: body}
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
