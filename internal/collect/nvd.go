package collect

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/happycoding7/signal-extract/internal/canon"
)

// nvdTimeLayout renders UTC as "+00:00", the offset form the CVE API
// accepts for its lastModStartDate/lastModEndDate window.
const nvdTimeLayout = "2006-01-02T15:04:05.000-07:00"

// NVDConfig configures the NVD CVE collector.
type NVDConfig struct {
	MinCVSS    float64 // default 7.0
	MaxResults int     // per pass, default 50
	APIKey     string  // optional, raises rate limits
	BaseURL    string  // default https://services.nvd.nist.gov/rest/json/cves/2.0
	Client     *http.Client
	Logger     *slog.Logger
}

// NVD pulls recently modified CVEs from the NVD CVE API 2.0. The
// checkpoint records the end of the last window so consecutive passes
// tile without gaps.
type NVD struct {
	cfg NVDConfig
	now func() time.Time
}

// NewNVD creates the NVD collector.
func NewNVD(cfg NVDConfig) *NVD {
	if cfg.MinCVSS <= 0 {
		cfg.MinCVSS = 7.0
	}
	if cfg.MaxResults <= 0 || cfg.MaxResults > 50 {
		cfg.MaxResults = 50
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://services.nvd.nist.gov/rest/json/cves/2.0"
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &NVD{cfg: cfg, now: time.Now}
}

func (n *NVD) Name() string { return "nvd" }

type nvdState struct {
	LastModified string `json:"last_modified"`
}

type nvdResponse struct {
	Vulnerabilities []struct {
		CVE nvdCVE `json:"cve"`
	} `json:"vulnerabilities"`
}

type nvdCVE struct {
	ID           string `json:"id"`
	Descriptions []struct {
		Lang  string `json:"lang"`
		Value string `json:"value"`
	} `json:"descriptions"`
	Metrics struct {
		V31 []nvdMetricV3 `json:"cvssMetricV31"`
		V30 []nvdMetricV3 `json:"cvssMetricV30"`
		V2  []nvdMetricV2 `json:"cvssMetricV2"`
	} `json:"metrics"`
	Weaknesses []struct {
		Description []struct {
			Value string `json:"value"`
		} `json:"description"`
	} `json:"weaknesses"`
	Configurations []struct {
		Nodes []struct {
			CPEMatch []struct {
				Criteria string `json:"criteria"`
			} `json:"cpeMatch"`
		} `json:"nodes"`
	} `json:"configurations"`
}

type nvdMetricV3 struct {
	CVSSData struct {
		BaseScore    float64 `json:"baseScore"`
		BaseSeverity string  `json:"baseSeverity"`
	} `json:"cvssData"`
}

type nvdMetricV2 struct {
	CVSSData struct {
		BaseScore float64 `json:"baseScore"`
	} `json:"cvssData"`
	BaseSeverity string `json:"baseSeverity"`
}

// Collect fetches CVEs modified since the previous pass, filtered to
// the configured minimum CVSS. A fresh checkpoint starts 7 days back.
func (n *NVD) Collect(ctx context.Context, prev json.RawMessage) ([]*canon.Artifact, json.RawMessage, error) {
	now := n.now().UTC()
	start := now.Add(-7 * 24 * time.Hour)
	if len(prev) > 0 {
		var state nvdState
		if err := json.Unmarshal(prev, &state); err == nil && state.LastModified != "" {
			if t, err := time.Parse(nvdTimeLayout, state.LastModified); err == nil {
				start = t
			}
		}
	}

	q := url.Values{
		"lastModStartDate": {start.Format(nvdTimeLayout)},
		"lastModEndDate":   {now.Format(nvdTimeLayout)},
		"resultsPerPage":   {strconv.Itoa(n.cfg.MaxResults)},
	}
	var headers http.Header
	if n.cfg.APIKey != "" {
		headers = http.Header{"apiKey": {n.cfg.APIKey}}
	}
	var resp nvdResponse
	if err := getJSON(ctx, n.cfg.Client, n.cfg.BaseURL+"?"+q.Encode(), headers, &resp); err != nil {
		return nil, nil, err
	}

	var out []*canon.Artifact
	for _, v := range resp.Vulnerabilities {
		a := n.toArtifact(v.CVE, now)
		if a != nil {
			out = append(out, a)
		}
	}

	nextState, err := json.Marshal(nvdState{LastModified: now.Format(nvdTimeLayout)})
	if err != nil {
		return nil, nil, err
	}
	return out, nextState, nil
}

func (n *NVD) toArtifact(cve nvdCVE, observed time.Time) *canon.Artifact {
	score, severity := cvssOf(cve)
	if score < n.cfg.MinCVSS {
		return nil
	}

	desc := ""
	for _, d := range cve.Descriptions {
		if d.Lang == "en" {
			desc = d.Value
			break
		}
	}
	if desc == "" {
		return nil
	}

	summary := desc
	if len(summary) > 100 {
		summary = summary[:100]
	}

	return &canon.Artifact{
		Source:   canon.SourceNVD,
		SourceID: "nvd:" + cve.ID,
		URL:      "https://nvd.nist.gov/vuln/detail/" + cve.ID,
		Title:    "[" + severity + "] " + cve.ID + ": " + summary,
		Body:     truncate(desc, 2000),
		Metadata: map[string]any{
			"cvss_score":    score,
			"cvss_severity": severity,
			"cwe":           cweIDs(cve),
			"products":      affectedProducts(cve),
		},
		ObservedAt: observed,
	}
}

// cvssOf prefers CVSS v3.1, then v3.0, then v2.
func cvssOf(cve nvdCVE) (float64, string) {
	if len(cve.Metrics.V31) > 0 {
		m := cve.Metrics.V31[0]
		return m.CVSSData.BaseScore, m.CVSSData.BaseSeverity
	}
	if len(cve.Metrics.V30) > 0 {
		m := cve.Metrics.V30[0]
		return m.CVSSData.BaseScore, m.CVSSData.BaseSeverity
	}
	if len(cve.Metrics.V2) > 0 {
		m := cve.Metrics.V2[0]
		return m.CVSSData.BaseScore, m.BaseSeverity
	}
	return 0, "UNKNOWN"
}

func cweIDs(cve nvdCVE) []string {
	var out []string
	for _, w := range cve.Weaknesses {
		for _, d := range w.Description {
			if strings.HasPrefix(d.Value, "CWE-") {
				out = append(out, d.Value)
				if len(out) == 5 {
					return out
				}
			}
		}
	}
	return out
}

// affectedProducts extracts vendor:product pairs from CPE 2.3 URIs.
func affectedProducts(cve nvdCVE) []string {
	seen := map[string]bool{}
	var out []string
	for _, c := range cve.Configurations {
		for _, node := range c.Nodes {
			for _, match := range node.CPEMatch {
				parts := strings.Split(match.Criteria, ":")
				if len(parts) < 5 {
					continue
				}
				product := parts[3] + ":" + parts[4]
				if seen[product] {
					continue
				}
				seen[product] = true
				out = append(out, product)
				if len(out) == 10 {
					return out
				}
			}
		}
	}
	return out
}
