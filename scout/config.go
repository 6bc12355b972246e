package scout

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all scout configuration. Watch lists and thresholds come
// from the YAML file; credentials come from the environment only and are
// never written to disk.
type Config struct {
	DBPath string `yaml:"db_path"`

	LLM      LLMConfig    `yaml:"llm"`
	GitHub   GitHubConfig `yaml:"github"`
	HN       HNConfig     `yaml:"hackernews"`
	NVD      NVDConfig    `yaml:"nvd"`
	RSSFeeds []string     `yaml:"rss_feeds"`
	Email    EmailConfig  `yaml:"email"`

	// ScoreThreshold is the keep floor for collected items (0-100).
	ScoreThreshold int `yaml:"score_threshold"`
}

// LLMConfig selects the model provider.
type LLMConfig struct {
	Provider string `yaml:"provider"` // claude | openai | openrouter
	Model    string `yaml:"model"`
	APIKey   string `yaml:"-"`
}

// GitHubConfig lists the repos watched over REST and GraphQL.
type GitHubConfig struct {
	Repos            []string `yaml:"repos"`
	DiscussionsRepos []string `yaml:"discussions_repos"`
	Token            string   `yaml:"-"`
}

// HNConfig tunes the Hacker News collector.
type HNConfig struct {
	MinScore       int      `yaml:"min_score"`
	MaxItems       int      `yaml:"max_items"`
	SearchKeywords []string `yaml:"search_keywords"`
	SearchMinScore int      `yaml:"search_min_score"`
}

// NVDConfig tunes the CVE collector.
type NVDConfig struct {
	MinCVSS    float64 `yaml:"min_cvss"`
	MaxResults int     `yaml:"max_results"`
	APIKey     string  `yaml:"-"`
}

// EmailConfig enables SMTP delivery when Host is set.
type EmailConfig struct {
	Host string `yaml:"smtp_host"`
	Port int    `yaml:"smtp_port"`
	User string `yaml:"-"`
	Pass string `yaml:"-"`
	To   string `yaml:"to"`
	From string `yaml:"from"`
}

// DefaultConfig is the watch list the pipeline ships with: the
// enterprise dev-tool ecosystem where workflow pain is filed directly.
func DefaultConfig() *Config {
	return &Config{
		DBPath:         "data/signal.db",
		ScoreThreshold: 40,
		LLM:            LLMConfig{Provider: "openrouter"},
		GitHub: GitHubConfig{
			Repos: []string{
				"actions/runner", "actions/runner-images", "cli/cli", "github/codeql",
				"dependabot/dependabot-core", "nektos/act",
				"actions/checkout", "actions/cache", "actions/setup-node", "actions/setup-python",
				"docker/build-push-action",
				"reviewdog/reviewdog", "danger/danger-js", "hmarr/auto-approve-action",
				"step-security/harden-runner", "aquasecurity/trivy-action", "ossf/scorecard-action",
				"bridgecrewio/checkov", "aquasecurity/trivy", "anchore/grype", "anchore/syft",
				"sigstore/cosign", "falcosecurity/falco",
				"open-policy-agent/opa", "open-policy-agent/gatekeeper",
				"hashicorp/terraform", "hashicorp/vault", "pulumi/pulumi",
				"argoproj/argo-cd", "fluxcd/flux2",
				"grafana/grafana", "prometheus/prometheus",
				"backstage/backstage", "crossplane/crossplane",
			},
			DiscussionsRepos: []string{
				"community/community", "actions/runner", "hashicorp/terraform", "backstage/backstage",
			},
		},
		HN: HNConfig{
			MinScore:       100,
			MaxItems:       30,
			SearchMinScore: 50,
			SearchKeywords: []string{
				"github actions", "github marketplace", "github app",
				"code review automation", "CI/CD pipeline", "developer experience",
				"devtools", "github workflow", "pull request review",
				"dependency management", "github bot", "CODEOWNERS",
				"SOC2 compliance", "security audit automation", "vulnerability management",
				"SBOM software bill of materials", "infrastructure as code", "terraform drift",
				"kubernetes security", "secrets management", "platform engineering",
				"developer portal", "DORA metrics", "incident management", "DevSecOps",
				"software supply chain security", "flaky tests", "cloud cost optimization",
				"policy as code",
			},
		},
		NVD: NVDConfig{MinCVSS: 7.0, MaxResults: 20},
		RSSFeeds: []string{
			"https://github.blog/feed/",
			"https://devops.com/feed/",
			"https://www.thoughtworks.com/rss/insights.xml",
			"https://blog.pragmaticengineer.com/rss/",
			"https://martinfowler.com/feed.atom",
			"https://www.docker.com/blog/feed/",
			"https://www.reddit.com/r/github/.rss",
			"https://www.reddit.com/r/devops/.rss",
			"https://www.reddit.com/r/githubactions/.rss",
			"https://www.reddit.com/r/netsec/.rss",
			"https://www.reddit.com/r/sysadmin/.rss",
			"https://www.reddit.com/r/kubernetes/.rss",
			"https://www.reddit.com/r/Terraform/.rss",
			"https://www.reddit.com/r/devsecops/.rss",
			"https://aws.amazon.com/blogs/security/feed/",
			"https://aws.amazon.com/blogs/devops/feed/",
			"https://cloud.google.com/feeds/blog.xml",
			"https://azure.microsoft.com/en-us/blog/feed/",
			"https://dev.to/feed/tag/security",
			"https://dev.to/feed/tag/devops",
			"https://dev.to/feed/tag/kubernetes",
			"https://www.infoq.com/feed/",
			"https://stackoverflow.com/feeds/tag/devsecops",
			"https://stackoverflow.com/feeds/tag/kubernetes-security",
			"https://stackoverflow.com/feeds/tag/terraform",
			"https://stackoverflow.com/feeds/tag/ci-cd",
			"https://stackoverflow.com/feeds/tag/github-actions",
		},
		Email: EmailConfig{Port: 587, From: "signal-extract@localhost"},
	}
}

// LoadConfig reads the YAML file (optional) over the defaults, then
// applies environment overrides. Credentials are env-only.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.DBPath, "SIGNAL_DB_PATH")
	setString(&c.LLM.Provider, "SIGNAL_LLM_PROVIDER")
	setString(&c.LLM.Model, "SIGNAL_LLM_MODEL")
	setInt(&c.ScoreThreshold, "SIGNAL_SCORE_THRESHOLD")
	setInt(&c.HN.MinScore, "SIGNAL_HN_MIN_SCORE")
	setInt(&c.HN.MaxItems, "SIGNAL_HN_MAX_ITEMS")
	setInt(&c.HN.SearchMinScore, "SIGNAL_HN_SEARCH_MIN_SCORE")
	setFloat(&c.NVD.MinCVSS, "SIGNAL_NVD_MIN_CVSS")
	setInt(&c.NVD.MaxResults, "SIGNAL_NVD_MAX_RESULTS")
	setString(&c.Email.Host, "SIGNAL_SMTP_HOST")
	setInt(&c.Email.Port, "SIGNAL_SMTP_PORT")
	setString(&c.Email.To, "SIGNAL_EMAIL_TO")
	setString(&c.Email.From, "SIGNAL_EMAIL_FROM")

	c.GitHub.Token = os.Getenv("GITHUB_TOKEN")
	c.NVD.APIKey = os.Getenv("NVD_API_KEY")
	c.Email.User = os.Getenv("SIGNAL_SMTP_USER")
	c.Email.Pass = os.Getenv("SIGNAL_SMTP_PASS")

	switch c.LLM.Provider {
	case "claude":
		c.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	case "openai":
		c.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	case "openrouter":
		c.LLM.APIKey = os.Getenv("OPENROUTER_API_KEY")
	}
}

// Validate rejects configurations that would fail later in confusing
// ways. API keys are not checked here: collect needs none of them.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path must not be empty")
	}
	if c.ScoreThreshold < 0 || c.ScoreThreshold > 100 {
		return fmt.Errorf("score_threshold must be 0-100, got %d", c.ScoreThreshold)
	}
	if c.NVD.MinCVSS < 0 || c.NVD.MinCVSS > 10 {
		return fmt.Errorf("nvd.min_cvss must be 0-10, got %v", c.NVD.MinCVSS)
	}
	switch c.LLM.Provider {
	case "claude", "openai", "openrouter":
	default:
		return fmt.Errorf("llm.provider must be claude, openai or openrouter, got %q", c.LLM.Provider)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
