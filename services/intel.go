package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/oschwald/geoip2-golang"

	"ssh-guardian-dashboard/system"
)

// Network classification labels, in blocking priority order
const (
	NetworkTOR        = "TOR"
	NetworkProxy      = "Proxy"
	NetworkVPN        = "VPN"
	NetworkDatacenter = "Datacenter"
	NetworkHosting    = "Hosting"
	NetworkRegular    = "Regular"
)

// ThreatIntelResult is the normalized threat-intelligence shape.
// Both the composite evaluate endpoint and the simpler lookup
// endpoint are reduced to this; callers cannot tell them apart.
type ThreatIntelResult struct {
	AbuseIPDBScore      int    `json:"abuseipdb_score"`
	VirusTotalPositives int    `json:"virustotal_positives"`
	VirusTotalTotal     int    `json:"virustotal_total"`
	Country             string `json:"country"`
	NetworkType         string `json:"network_type"`
	ISP                 string `json:"isp"`
	IsTor               bool   `json:"is_tor"`
	IsProxy             bool   `json:"is_proxy"`
	IsVPN               bool   `json:"is_vpn"`
	IsDatacenter        bool   `json:"is_datacenter"`
	IsHosting           bool   `json:"is_hosting"`
	ThreatLevel         string `json:"threat_level"`
}

// HasSignals reports whether any raw intel value is present, i.e.
// whether local fallback scoring has anything to work with.
func (t *ThreatIntelResult) HasSignals() bool {
	return t.AbuseIPDBScore > 0 || t.VirusTotalPositives > 0 ||
		t.IsTor || t.IsProxy || t.IsVPN || t.IsDatacenter || t.IsHosting
}

// MLEvaluationResult is the normalized ML verdict shape. Confidence
// 0.85 marks locally computed fallback results.
type MLEvaluationResult struct {
	ThreatScore       int      `json:"threat_score"`
	RiskLevel         string   `json:"risk_level"`
	RecommendedAction string   `json:"recommended_action"`
	Confidence        float64  `json:"confidence"`
	Factors           []string `json:"factors"`
	IsAnomaly         bool     `json:"is_anomaly,omitempty"`
	ModelUsed         string   `json:"model_used,omitempty"`
}

// FallbackConfidence is the fixed confidence assigned to locally
// computed risk evaluations, distinguishing them from remote ones.
const FallbackConfidence = 0.85

// Enrichment bundles both normalized shapes for one IP
type Enrichment struct {
	ThreatIntel  *ThreatIntelResult  `json:"threat_intel,omitempty"`
	MLEvaluation *MLEvaluationResult `json:"ml_evaluation,omitempty"`
}

type cachedEnrichment struct {
	enrichment Enrichment
	fetchedAt  time.Time
}

// IntelService fetches supplementary risk signals for an IP from the
// threat-intelligence service, with a per-IP cache and a deterministic
// local fallback when the remote ML evaluation is unavailable.
type IntelService struct {
	baseURL  string
	client   *http.Client
	cache    *lru.Cache[string, cachedEnrichment]
	cacheTTL time.Duration
	geoip    *geoip2.Reader
	metrics  *Metrics
}

func NewIntelService(baseURL string, timeout time.Duration, cacheSize int, cacheTTL time.Duration, metrics *Metrics) *IntelService {
	if cacheSize <= 0 {
		cacheSize = 512
	}
	cache, _ := lru.New[string, cachedEnrichment](cacheSize)
	return &IntelService{
		baseURL:  baseURL,
		client:   &http.Client{Timeout: timeout},
		cache:    cache,
		cacheTTL: cacheTTL,
		metrics:  metrics,
	}
}

// LoadGeoIP opens a local MaxMind database used to fill in the
// country when the remote endpoints return none. Optional.
func (s *IntelService) LoadGeoIP(path string) error {
	reader, err := geoip2.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open GeoIP database: %w", err)
	}
	s.geoip = reader
	system.Info("Local GeoIP database loaded: %s", path)
	return nil
}

// Close releases the GeoIP reader if one was loaded
func (s *IntelService) Close() {
	if s.geoip != nil {
		s.geoip.Close()
	}
}

// Enrich returns normalized threat-intel and ML data for an IP.
// Path order: cache, composite evaluate endpoint, lookup endpoint
// plus local fallback scoring. Returns an error only when no usable
// data could be obtained from any path.
func (s *IntelService) Enrich(ctx context.Context, ip string) (*Enrichment, error) {
	if cached, ok := s.cache.Get(ip); ok && time.Since(cached.fetchedAt) < s.cacheTTL {
		if s.metrics != nil {
			s.metrics.IntelCacheHits.Inc()
		}
		e := cached.enrichment
		return &e, nil
	}

	enrichment, err := s.evaluate(ctx, ip)
	if err != nil {
		system.Warn("Composite evaluation unavailable for %s: %v", ip, err)
		enrichment, err = s.lookup(ctx, ip)
		if err != nil {
			return nil, fmt.Errorf("threat intelligence unavailable: %w", err)
		}
	}

	if enrichment.ThreatIntel != nil && enrichment.ThreatIntel.Country == "" {
		enrichment.ThreatIntel.Country = s.localCountry(ip)
	}

	// No remote verdict but raw signals exist: score locally
	if enrichment.MLEvaluation == nil && enrichment.ThreatIntel != nil && enrichment.ThreatIntel.HasSignals() {
		ml := ComputeFallbackRisk(*enrichment.ThreatIntel)
		enrichment.MLEvaluation = &ml
		if s.metrics != nil {
			s.metrics.IntelFallbacks.Inc()
		}
	}

	s.cache.Add(ip, cachedEnrichment{enrichment: *enrichment, fetchedAt: time.Now()})
	return enrichment, nil
}

// evaluate queries the composite evaluation endpoint, preferred
// because it returns threat-intel, network and ML data in one call.
func (s *IntelService) evaluate(ctx context.Context, ip string) (*Enrichment, error) {
	var resp struct {
		Success    bool   `json:"success"`
		Error      string `json:"error"`
		Evaluation *struct {
			CompositeScore    int      `json:"composite_score"`
			RiskLevel         string   `json:"risk_level"`
			RecommendedAction string   `json:"recommended_action"`
			Confidence        float64  `json:"confidence"`
			Factors           []string `json:"factors"`
			Details           struct {
				ThreatIntel *rawThreatIntel `json:"threat_intel"`
				Network     *rawNetwork     `json:"network"`
				ML          *struct {
					IsAnomaly bool   `json:"is_anomaly"`
					ModelUsed string `json:"model_used"`
				} `json:"ml"`
			} `json:"details"`
		} `json:"evaluation"`
	}
	if err := s.get(ctx, "/api/threat-intel/evaluate/"+ip, &resp); err != nil {
		return nil, err
	}
	if !resp.Success || resp.Evaluation == nil {
		return nil, apiError(resp.Error, "empty evaluation")
	}

	ev := resp.Evaluation
	ti := normalizeThreatIntel(ev.Details.ThreatIntel, ev.Details.Network)

	ml := &MLEvaluationResult{
		ThreatScore:       ev.CompositeScore,
		RiskLevel:         defaultString(ev.RiskLevel, "unknown"),
		RecommendedAction: ev.RecommendedAction,
		Confidence:        ev.Confidence,
		Factors:           ev.Factors,
	}
	if ev.Details.ML != nil {
		ml.IsAnomaly = ev.Details.ML.IsAnomaly
		ml.ModelUsed = ev.Details.ML.ModelUsed
	}

	return &Enrichment{ThreatIntel: ti, MLEvaluation: ml}, nil
}

// lookup queries the simpler lookup endpoint. It never carries a
// remote ML verdict; the caller applies fallback scoring.
func (s *IntelService) lookup(ctx context.Context, ip string) (*Enrichment, error) {
	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
		Data    *struct {
			rawThreatIntel
			rawNetwork
			CountryName        string `json:"country_name"`
			ASNOrg             string `json:"asn_org"`
			OverallThreatLevel string `json:"overall_threat_level"`
		} `json:"data"`
	}
	if err := s.get(ctx, "/api/threat-intel/lookup/"+ip, &resp); err != nil {
		return nil, err
	}
	if !resp.Success || resp.Data == nil {
		return nil, apiError(resp.Error, "empty lookup result")
	}

	d := resp.Data
	d.rawThreatIntel.Country = defaultString(d.rawThreatIntel.Country, d.CountryName)
	d.rawThreatIntel.ISP = defaultString(d.rawThreatIntel.ISP, d.ASNOrg)
	d.rawThreatIntel.ThreatLevel = defaultString(d.rawThreatIntel.ThreatLevel, d.OverallThreatLevel)

	ti := normalizeThreatIntel(&d.rawThreatIntel, &d.rawNetwork)
	return &Enrichment{ThreatIntel: ti}, nil
}

type rawThreatIntel struct {
	AbuseIPDBScore      int    `json:"abuseipdb_score"`
	VirusTotalPositives int    `json:"virustotal_positives"`
	VirusTotalTotal     int    `json:"virustotal_total"`
	Country             string `json:"country"`
	ISP                 string `json:"isp"`
	ThreatLevel         string `json:"threat_level"`
}

type rawNetwork struct {
	IsTor        bool `json:"is_tor"`
	IsProxy      bool `json:"is_proxy"`
	IsVPN        bool `json:"is_vpn"`
	IsDatacenter bool `json:"is_datacenter"`
	IsHosting    bool `json:"is_hosting"`
}

// normalizeThreatIntel applies the documented defaults so that both
// source endpoints produce an identical shape.
func normalizeThreatIntel(ti *rawThreatIntel, nw *rawNetwork) *ThreatIntelResult {
	out := &ThreatIntelResult{
		VirusTotalTotal: 70,
		ThreatLevel:     "unknown",
		NetworkType:     NetworkRegular,
	}
	if ti != nil {
		out.AbuseIPDBScore = ti.AbuseIPDBScore
		out.VirusTotalPositives = ti.VirusTotalPositives
		if ti.VirusTotalTotal > 0 {
			out.VirusTotalTotal = ti.VirusTotalTotal
		}
		out.Country = ti.Country
		out.ISP = ti.ISP
		out.ThreatLevel = defaultString(ti.ThreatLevel, "unknown")
	}
	if nw != nil {
		out.IsTor = nw.IsTor
		out.IsProxy = nw.IsProxy
		out.IsVPN = nw.IsVPN
		out.IsDatacenter = nw.IsDatacenter
		out.IsHosting = nw.IsHosting
	}
	out.NetworkType = classifyNetwork(out)
	return out
}

// classifyNetwork picks the highest-priority matching category
func classifyNetwork(t *ThreatIntelResult) string {
	switch {
	case t.IsTor:
		return NetworkTOR
	case t.IsProxy:
		return NetworkProxy
	case t.IsVPN:
		return NetworkVPN
	case t.IsDatacenter:
		return NetworkDatacenter
	case t.IsHosting:
		return NetworkHosting
	default:
		return NetworkRegular
	}
}

// ComputeFallbackRisk derives a deterministic risk evaluation from raw
// threat-intel signals. Used only when no remote ML evaluation is
// available. Weights:
//   - AbuseIPDB: min(40, score*0.4)
//   - VirusTotal: min(30, positives*3)
//   - Network: TOR +20 > Proxy +15 > VPN +10 > Datacenter/Hosting +10,
//     only the highest-priority matching category applies.
func ComputeFallbackRisk(ti ThreatIntelResult) MLEvaluationResult {
	score := 0.0
	var factors []string

	abuse := float64(ti.AbuseIPDBScore) * 0.4
	if abuse > 40 {
		abuse = 40
	}
	score += abuse
	if ti.AbuseIPDBScore >= 75 {
		factors = append(factors, fmt.Sprintf("Critical AbuseIPDB score: %d", ti.AbuseIPDBScore))
	} else if ti.AbuseIPDBScore >= 50 {
		factors = append(factors, fmt.Sprintf("High AbuseIPDB score: %d", ti.AbuseIPDBScore))
	}

	vt := float64(ti.VirusTotalPositives * 3)
	if vt > 30 {
		vt = 30
	}
	score += vt
	if ti.VirusTotalPositives > 0 {
		factors = append(factors, fmt.Sprintf("%d AV detections", ti.VirusTotalPositives))
	}

	switch {
	case ti.IsTor:
		score += 20
		factors = append(factors, "TOR Exit Node")
	case ti.IsProxy:
		score += 15
		factors = append(factors, "Proxy Server")
	case ti.IsVPN:
		score += 10
		factors = append(factors, "VPN Detected")
	case ti.IsDatacenter || ti.IsHosting:
		score += 10
		factors = append(factors, "Datacenter/Hosting IP")
	}

	riskLevel, action := riskLevelFor(score)

	return MLEvaluationResult{
		ThreatScore:       int(score),
		RiskLevel:         riskLevel,
		RecommendedAction: action,
		Confidence:        FallbackConfidence,
		Factors:           factors,
		ModelUsed:         "local_fallback",
	}
}

func riskLevelFor(score float64) (string, string) {
	switch {
	case score >= 75:
		return "critical", "block_immediate"
	case score >= 50:
		return "high", "block"
	case score >= 25:
		return "medium", "monitor_closely"
	default:
		return "low", "monitor"
	}
}

// ScoreBand maps a displayed numeric score to its visual severity
// band, applied uniformly to AbuseIPDB and ML risk scores.
func ScoreBand(score int) string {
	switch {
	case score >= 50:
		return "danger"
	case score >= 25:
		return "warning"
	default:
		return "success"
	}
}

// localCountry resolves the country from the local MaxMind database,
// best effort.
func (s *IntelService) localCountry(ipStr string) string {
	if s.geoip == nil {
		return ""
	}
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return ""
	}
	record, err := s.geoip.Country(ip)
	if err != nil {
		return ""
	}
	return record.Country.Names["en"]
}

func (s *IntelService) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("threat-intel service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("invalid response from threat-intel service: %w", err)
	}
	return nil
}

func defaultString(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
