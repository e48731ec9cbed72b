package talent

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/national-talent-atm/data-retrieval/internal/scopus"
	"github.com/national-talent-atm/data-retrieval/pkg/streaming/stream"
)

type (
	AuthorResult  = Fetched[*scopus.AuthorResponse]
	MetricsResult = Fetched[*scopus.MetricsResponse]
	SearchResult  = Fetched[*scopus.SearchResponse[scopus.Document]]

	// Joined is the per-author join of the three fetched resources.
	Joined = stream.Tuple3[AuthorResult, MetricsResult, SearchResult]
)

// ExtractFunc shapes a joined author into a report row.
type ExtractFunc func(Joined) (Row, error)

// TopKeywords is how many author keywords Extract reports.
const TopKeywords = 10

// ExtractedMetrics are the scalar SciVal metrics Extract reports, in
// column order.
var ExtractedMetrics = []string{
	"ScholarlyOutput",
	"CitationCount",
	"CitationsPerPublication",
	"CitedPublications",
	"FieldWeightedCitationImpact",
	"HIndices",
}

// Complete reports whether every resource was fetched and is non-empty.
func Complete(j Joined) bool {
	return j.V1.OK() && j.V2.OK() && j.V3.OK() &&
		len(j.V1.Body.Authors) > 0 &&
		len(j.V2.Body.Results) > 0 &&
		len(scopus.Found(j.V3.Body.Results.Entry)) > 0
}

// Extract builds the full talent row: identity, subject areas ordered by
// document frequency, counts, top keywords, SciVal metrics, then the
// extra input columns.
func Extract(j Joined) (Row, error) {
	if j.V1.ID != j.V2.ID || j.V1.ID != j.V3.ID {
		return nil, fmt.Errorf("joined ids differ: %s, %s, %s", j.V1.ID, j.V2.ID, j.V3.ID)
	}
	author := j.V1.Body.Authors[0]
	metrics := j.V2.Body.Results[0]
	docs := scopus.Found(j.V3.Body.Results.Entry)

	var name scopus.Name
	var pubRange scopus.Range
	var affiliation string
	if p := author.Profile; p != nil {
		name = p.PreferredName
		pubRange = p.PublicationRange
		if p.AffiliationCurrent != nil && len(p.AffiliationCurrent.Affiliation) > 0 {
			doc := p.AffiliationCurrent.Affiliation[0].IPDoc
			affiliation = doc.DisplayName
			if affiliation == "" {
				affiliation = doc.PreferredName.Value
			}
		}
	}

	row := Row{
		{"scopus_id", j.V1.ID},
		{"index", strconv.Itoa(j.V1.Index)},
		{"given_name", name.GivenName},
		{"surname", name.Surname},
		{"affiliation", affiliation},
		{"subject_areas", strings.Join(subjectAreas(author), "; ")},
		{"h_index", author.HIndex},
		{"document_count", author.Coredata.DocumentCount},
		{"cited_by_count", author.Coredata.CitedByCount},
		{"citation_count", author.Coredata.CitationCount},
		{"no_of_coauthor", author.CoauthorCount},
		{"first_pub", pubRange.Start},
		{"most_recent_pub", pubRange.End},
		{"search_documents", strconv.Itoa(len(docs))},
		{"keywords", strings.Join(topKeywords(docs, TopKeywords), "; ")},
	}
	for _, t := range ExtractedMetrics {
		row = append(row, Field{t, metricValue(metrics.Metric(t))})
	}
	for i, v := range j.V1.Rest {
		row = append(row, Field{fmt.Sprintf("extra_%d", i+1), v})
	}
	return row, nil
}

// subjectAreas names the author's ASJC classifications, most frequent
// first. Codes missing from the subject area list are reported as codes.
func subjectAreas(a scopus.Author) []string {
	if a.Profile == nil {
		var out []string
		for _, s := range a.SubjectAreas.SubjectArea {
			out = append(out, s.Name)
		}
		return out
	}

	names := make(map[string]string)
	for _, s := range a.SubjectAreas.SubjectArea {
		names[s.Code] = s.Name
	}
	cls := append([]scopus.Classification(nil), a.Profile.ClassificationGroup.Classifications.Classification...)
	freq := func(c scopus.Classification) int {
		n, _ := strconv.Atoi(c.Frequency)
		return n
	}
	sort.SliceStable(cls, func(i, j int) bool {
		if fi, fj := freq(cls[i]), freq(cls[j]); fi != fj {
			return fi > fj
		}
		return cls[i].Code < cls[j].Code
	})

	out := make([]string, 0, len(cls))
	for _, c := range cls {
		if n, ok := names[c.Code]; ok {
			out = append(out, n)
		} else {
			out = append(out, c.Code)
		}
	}
	return out
}

// topKeywords counts author keywords case-insensitively and returns the n
// most used, ties broken alphabetically.
func topKeywords(docs []scopus.Document, n int) []string {
	counts := make(map[string]int)
	spelling := make(map[string]string)
	for _, d := range docs {
		for _, k := range d.Keywords() {
			lk := strings.ToLower(k)
			if _, ok := spelling[lk]; !ok {
				spelling[lk] = k
			}
			counts[lk]++
		}
	}

	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	for i, k := range keys {
		keys[i] = spelling[k]
	}
	return keys
}

func metricValue(m *scopus.Metric) string {
	if m == nil || m.Value == nil {
		return ""
	}
	return strconv.FormatFloat(*m.Value, 'f', -1, 64)
}
