package jupiter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	solana "github.com/gagliardetto/solana-go"

	clierr "github.com/ggonzalez94/clonekit/internal/errors"
	"github.com/ggonzalez94/clonekit/internal/httpx"
	"github.com/ggonzalez94/clonekit/internal/model"
	"github.com/ggonzalez94/clonekit/internal/providers"
	"github.com/ggonzalez94/clonekit/internal/registry"
)

const (
	DefaultSlippageBps = 50

	priorityMaxLamports = 10_000_000
	priorityLevel       = "veryHigh"
)

type Client struct {
	http    *httpx.Client
	baseURL string
	apiKey  string
}

// New returns a client for the keyed endpoint when apiKey is set and the
// public one otherwise. A non-empty baseURL overrides either.
func New(httpClient *httpx.Client, apiKey, baseURL string) *Client {
	apiKey = strings.TrimSpace(apiKey)
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = registry.JupiterBaseURL(apiKey)
	}
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

func (c *Client) Info() providers.Info {
	return providers.Info{
		Name:          "jupiter",
		Type:          "aggregator",
		BaseURL:       c.baseURL,
		RequiresKey:   false,
		KeyEnvVarName: registry.JupiterAPIKeyEnv,
		Capabilities:  []string{"swap.quote", "swap.instructions"},
	}
}

func (c *Client) Quote(ctx context.Context, req providers.QuoteRequest) (model.Quote, error) {
	if strings.TrimSpace(req.AmountBaseUnits) == "" {
		return nil, clierr.New(clierr.CodeUsage, "quote amount is required")
	}
	slippage := req.SlippageBps
	if slippage < 0 {
		slippage = DefaultSlippageBps
	}

	vals := url.Values{}
	vals.Set("inputMint", req.InputMint.String())
	vals.Set("outputMint", req.OutputMint.String())
	vals.Set("amount", req.AmountBaseUnits)
	vals.Set("slippageBps", strconv.Itoa(slippage))
	if len(req.Dexes) > 0 {
		vals.Set("dexes", strings.Join(req.Dexes, ","))
	}
	if len(req.ExcludeDexes) > 0 {
		vals.Set("excludeDexes", strings.Join(req.ExcludeDexes, ","))
	}
	if req.OnlyDirectRoutes {
		vals.Set("onlyDirectRoutes", "true")
	}

	endpoint := fmt.Sprintf("%s/quote?%s", c.baseURL, vals.Encode())
	hReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "build jupiter quote request", err)
	}
	if c.apiKey != "" {
		hReq.Header.Set("x-api-key", c.apiKey)
	}

	var quote model.Quote
	if _, err := c.http.DoJSON(ctx, hReq, &quote); err != nil {
		return nil, err
	}
	if msg := errorMessage(quote); msg != "" {
		return nil, clierr.New(clierr.CodeUnavailable, "jupiter quote failed: "+msg)
	}
	if strings.TrimSpace(quote.OutAmount()) == "" {
		return nil, clierr.New(clierr.CodeUnavailable, "jupiter quote missing output amount")
	}
	return quote, nil
}

type swapInstructionsRequest struct {
	UserPublicKey             string            `json:"userPublicKey"`
	QuoteResponse             model.Quote       `json:"quoteResponse"`
	PrioritizationFeeLamports prioritizationFee `json:"prioritizationFeeLamports"`
	DynamicComputeUnitLimit   bool              `json:"dynamicComputeUnitLimit"`
}

type prioritizationFee struct {
	PriorityLevelWithMaxLamports struct {
		MaxLamports   int64  `json:"maxLamports"`
		PriorityLevel string `json:"priorityLevel"`
	} `json:"priorityLevelWithMaxLamports"`
}

func (c *Client) SwapInstructions(ctx context.Context, trader solana.PublicKey, quote model.Quote) (model.InstructionPlan, error) {
	if quote == nil {
		return model.InstructionPlan{}, clierr.New(clierr.CodeUsage, "swap instructions need a quote")
	}
	reqBody := swapInstructionsRequest{
		UserPublicKey:           trader.String(),
		QuoteResponse:           quote,
		DynamicComputeUnitLimit: true,
	}
	reqBody.PrioritizationFeeLamports.PriorityLevelWithMaxLamports.MaxLamports = priorityMaxLamports
	reqBody.PrioritizationFeeLamports.PriorityLevelWithMaxLamports.PriorityLevel = priorityLevel
	body, err := json.Marshal(reqBody)
	if err != nil {
		return model.InstructionPlan{}, clierr.Wrap(clierr.CodeInternal, "encode jupiter swap-instructions request", err)
	}

	headers := map[string]string{}
	if c.apiKey != "" {
		headers["x-api-key"] = c.apiKey
	}
	var raw json.RawMessage
	if _, err := httpx.DoBodyJSON(ctx, c.http, http.MethodPost, c.baseURL+"/swap-instructions", body, headers, &raw); err != nil {
		return model.InstructionPlan{}, err
	}

	var probe map[string]any
	if err := json.Unmarshal(raw, &probe); err == nil {
		if msg := errorMessage(probe); msg != "" {
			return model.InstructionPlan{}, clierr.New(clierr.CodeUnavailable, "jupiter swap-instructions failed: "+msg)
		}
	}
	var plan model.InstructionPlan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return model.InstructionPlan{}, clierr.Wrap(clierr.CodeUnavailable, "decode jupiter swap-instructions", err)
	}
	return plan, nil
}

func errorMessage(body map[string]any) string {
	switch v := body["error"].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
