package evaluate

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"lumen/pkg/httpx"
	"lumen/pkg/models"
)

// Engine scores one piece of AI output against the selected packs.
type Engine interface {
	Score(ctx context.Context, req models.EvaluateRequest) (models.Score, error)
}

// HTTPEngine delegates scoring to the external scoring service.
type HTTPEngine struct {
	Client  *http.Client
	BaseURL string
}

func (e *HTTPEngine) Score(ctx context.Context, req models.EvaluateRequest) (models.Score, error) {
	client := e.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return models.Score{}, fmt.Errorf("scoring request: %w", err)
	}
	url := strings.TrimRight(e.BaseURL, "/") + "/score"
	status, body, err := httpx.RequestJSON(ctx, client, http.MethodPost, url, payload, nil, 2, 200*time.Millisecond)
	if err != nil {
		return models.Score{}, fmt.Errorf("scoring engine: %w", err)
	}
	if status != http.StatusOK {
		return models.Score{}, fmt.Errorf("scoring engine returned %d", status)
	}
	var score models.Score
	if err := json.Unmarshal(body, &score); err != nil {
		return models.Score{}, fmt.Errorf("scoring engine response: %w", err)
	}
	return score, nil
}

// StubEngine scores locally with the interim heuristic: the human action sets
// the base score band, each selected pack subtracts two points, and the tier
// and verdict follow the 80/50 cutoffs.
type StubEngine struct {
	mu   sync.Mutex
	rand *rand.Rand
}

func NewStubEngine(seed int64) *StubEngine {
	return &StubEngine{rand: rand.New(rand.NewSource(seed))}
}

func (e *StubEngine) Score(_ context.Context, req models.EvaluateRequest) (models.Score, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var base int
	switch req.HumanAction {
	case models.ActionAccepted:
		base = 70 + e.rand.Intn(31)
	case models.ActionModified:
		base = 50 + e.rand.Intn(36)
	default:
		base = 20 + e.rand.Intn(41)
	}

	score := base - 2*len(req.CompliancePacks)
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	tier, verdict := 3, models.VerdictBlock
	switch {
	case score >= 80:
		tier, verdict = 1, models.VerdictAllow
	case score >= 50:
		tier, verdict = 2, models.VerdictWarn
	}

	integrity := 0.7 + e.rand.Float64()*0.3
	return models.Score{
		LumenScore:        score,
		Tier:              tier,
		Verdict:           verdict,
		CitationIntegrity: float64(int(integrity*100+0.5)) / 100,
	}, nil
}
