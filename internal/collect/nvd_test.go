package collect

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const nvdFixture = `{"vulnerabilities":[
	{"cve":{
		"id":"CVE-2026-1111",
		"descriptions":[{"lang":"es","value":"no"},{"lang":"en","value":"Remote code execution in the widget parser."}],
		"metrics":{"cvssMetricV31":[{"cvssData":{"baseScore":9.8,"baseSeverity":"CRITICAL"}}]},
		"weaknesses":[{"description":[{"value":"CWE-787"},{"value":"NVD-CWE-Other"},{"value":"CWE-125"}]}],
		"configurations":[{"nodes":[{"cpeMatch":[
			{"criteria":"cpe:2.3:a:acme:widget:1.0:*:*:*:*:*:*:*"},
			{"criteria":"cpe:2.3:a:acme:widget:1.1:*:*:*:*:*:*:*"}
		]}]}]
	}},
	{"cve":{
		"id":"CVE-2026-2222",
		"descriptions":[{"lang":"en","value":"Low severity issue."}],
		"metrics":{"cvssMetricV2":[{"cvssData":{"baseScore":4.3},"baseSeverity":"MEDIUM"}]}
	}}
]}`

func TestNVDCollect(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		io.WriteString(w, nvdFixture)
	}))
	defer srv.Close()

	n := NewNVD(NVDConfig{BaseURL: srv.URL, Logger: discardLogger()})
	arts, state, err := n.Collect(context.Background(), nil)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	// WHAT: the MEDIUM CVE falls below the default 7.0 floor.
	if len(arts) != 1 {
		t.Fatalf("got %d artifacts, want 1", len(arts))
	}
	a := arts[0]
	if a.SourceID != "nvd:CVE-2026-1111" {
		t.Errorf("source id = %q", a.SourceID)
	}
	if !strings.HasPrefix(a.Title, "[CRITICAL] CVE-2026-1111: Remote code execution") {
		t.Errorf("title = %q", a.Title)
	}
	if score, _ := a.Metadata["cvss_score"].(float64); score != 9.8 {
		t.Errorf("cvss_score = %v", a.Metadata["cvss_score"])
	}
	cwe, _ := a.Metadata["cwe"].([]string)
	if len(cwe) != 2 || cwe[0] != "CWE-787" || cwe[1] != "CWE-125" {
		t.Errorf("cwe = %v", a.Metadata["cwe"])
	}
	products, _ := a.Metadata["products"].([]string)
	if len(products) != 1 || products[0] != "acme:widget" {
		t.Errorf("products = %v", a.Metadata["products"])
	}

	if gotQuery["resultsPerPage"] != "50" {
		t.Errorf("resultsPerPage = %q", gotQuery["resultsPerPage"])
	}
	if gotQuery["lastModStartDate"] == "" || gotQuery["lastModEndDate"] == "" {
		t.Errorf("window params missing: %v", gotQuery)
	}

	var st nvdState
	if err := json.Unmarshal(state, &st); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if _, err := time.Parse(nvdTimeLayout, st.LastModified); err != nil {
		t.Errorf("last_modified %q not in layout: %v", st.LastModified, err)
	}
}

func TestNVDWindowResumesFromCheckpoint(t *testing.T) {
	var gotStart string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotStart = r.URL.Query().Get("lastModStartDate")
		io.WriteString(w, `{"vulnerabilities":[]}`)
	}))
	defer srv.Close()

	n := NewNVD(NVDConfig{BaseURL: srv.URL, Logger: discardLogger()})
	prev, _ := json.Marshal(nvdState{LastModified: "2026-08-20T00:00:00.000+00:00"})
	if _, _, err := n.Collect(context.Background(), prev); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if gotStart != "2026-08-20T00:00:00.000+00:00" {
		t.Errorf("lastModStartDate = %q", gotStart)
	}
}

func TestNVDCVSSPreference(t *testing.T) {
	tests := []struct {
		name     string
		metrics  string
		score    float64
		severity string
	}{
		{"v31 wins", `{"cvssMetricV31":[{"cvssData":{"baseScore":8.1,"baseSeverity":"HIGH"}}],
			"cvssMetricV30":[{"cvssData":{"baseScore":7.0,"baseSeverity":"HIGH"}}]}`, 8.1, "HIGH"},
		{"v30 fallback", `{"cvssMetricV30":[{"cvssData":{"baseScore":7.5,"baseSeverity":"HIGH"}}]}`, 7.5, "HIGH"},
		{"v2 fallback", `{"cvssMetricV2":[{"cvssData":{"baseScore":9.0},"baseSeverity":"HIGH"}]}`, 9.0, "HIGH"},
		{"none", `{}`, 0, "UNKNOWN"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var cve nvdCVE
			if err := json.Unmarshal([]byte(`{"id":"CVE-1","metrics":`+tc.metrics+`}`), &cve); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			score, severity := cvssOf(cve)
			if score != tc.score || severity != tc.severity {
				t.Errorf("got (%v, %q), want (%v, %q)", score, severity, tc.score, tc.severity)
			}
		})
	}
}
