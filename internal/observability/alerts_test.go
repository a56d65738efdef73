package observability

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type alertRule struct {
	Alert       string            `yaml:"alert"`
	Expr        string            `yaml:"expr"`
	For         string            `yaml:"for"`
	Labels      map[string]string `yaml:"labels"`
	Annotations map[string]string `yaml:"annotations"`
}

type alertFile struct {
	Groups []struct {
		Name  string      `yaml:"name"`
		Rules []alertRule `yaml:"rules"`
	} `yaml:"groups"`
}

var metricRef = regexp.MustCompile(`payables_[a-z_]+`)

func loadAlertRules(t *testing.T) []alertRule {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "..", "deploy", "prometheus", "alerts", "payables.yml"))
	require.NoError(t, err)
	var f alertFile
	require.NoError(t, yaml.Unmarshal(data, &f))
	for _, g := range f.Groups {
		if g.Name == "payables" {
			return g.Rules
		}
	}
	t.Fatal("payables alert group missing")
	return nil
}

// exportedMetrics touches every collector so each family shows up in a scrape.
func exportedMetrics(t *testing.T) map[string]bool {
	t.Helper()
	m := NewMetrics()
	m.PaymentTransition("pending")
	m.AdviceGenerated(10)
	m.SyncImported("vendors", 1)
	_ = m.Jobs().Track("erpsync:run").End(nil)
	m.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).
		ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	families, err := m.registry.Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	return names
}

func TestAlertRulesAreComplete(t *testing.T) {
	rules := loadAlertRules(t)
	severities := map[string]string{
		"HighErrorRate":        "critical",
		"HighLatency":          "warning",
		"ERPSyncFailing":       "warning",
		"ERPSyncStale":         "warning",
		"PaymentRequestsStuck": "info",
	}
	require.Len(t, rules, len(severities))

	for _, rule := range rules {
		want, ok := severities[rule.Alert]
		require.True(t, ok, "unexpected rule %q", rule.Alert)
		require.Equal(t, want, rule.Labels["severity"], rule.Alert)
		require.NotEmpty(t, rule.Expr, rule.Alert)
		require.NotEmpty(t, rule.For, rule.Alert)
		require.NotEmpty(t, rule.Annotations["summary"], rule.Alert)
		require.NotEmpty(t, rule.Annotations["description"], rule.Alert)
		require.True(t, strings.HasPrefix(rule.Annotations["runbook"], "docs/runbook.md#"), rule.Alert)
	}
}

func TestAlertRulesReferenceExportedMetrics(t *testing.T) {
	exported := exportedMetrics(t)
	for _, rule := range loadAlertRules(t) {
		for _, ref := range metricRef.FindAllString(rule.Expr, -1) {
			name := ref
			for _, suffix := range []string{"_bucket", "_sum", "_count"} {
				name = strings.TrimSuffix(name, suffix)
			}
			require.True(t, exported[name], "rule %s references unknown metric %s", rule.Alert, ref)
		}
	}
}
