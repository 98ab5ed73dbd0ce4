package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/easygo-dev/token/internal/metrics"
)

const tokenPriceQuery = `
    query TokenPrice($address: Address!, $network: Network!) {
        fungibleToken(address: $address, network: $network) {
            symbol
            name
            onchainMarketData {
                price
                marketCap
            }
        }
    }
`

// GraphQLOptions parameterise the Zapper API fetcher.
type GraphQLOptions struct {
	Endpoint   string
	ClientName string
	Address    string
	Network    string
	Timeout    time.Duration
}

// GraphQL fetches price and market cap from the Zapper GraphQL API.
type GraphQL struct {
	opts     GraphQLOptions
	logger   zerolog.Logger
	client   *http.Client
	endpoint string
}

// NewGraphQL constructs a GraphQL fetcher.
func NewGraphQL(opts GraphQLOptions, logger zerolog.Logger) *GraphQL {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	endpoint := strings.TrimRight(opts.Endpoint, "/")
	if endpoint == "" {
		endpoint = "https://zapper.xyz/z/graphql"
	}

	return &GraphQL{
		opts:     opts,
		logger:   logger.With().Str("component", "graphql_fetcher").Logger(),
		client:   &http.Client{Timeout: timeout},
		endpoint: endpoint,
	}
}

// FetchMetrics retrieves current price and market cap for the configured token.
func (g *GraphQL) FetchMetrics(ctx context.Context) (metrics.TokenData, error) {
	if g.opts.Address == "" {
		return metrics.TokenData{}, errors.New("token address not configured")
	}
	if g.opts.Network == "" {
		return metrics.TokenData{}, errors.New("token network not configured")
	}

	reqPayload := graphQLRequest{
		Query: tokenPriceQuery,
		Variables: tokenPriceVariables{
			Address: g.opts.Address,
			Network: g.opts.Network,
		},
	}

	body, err := json.Marshal(reqPayload)
	if err != nil {
		return metrics.TokenData{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return metrics.TokenData{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	clientName := g.opts.ClientName
	if clientName == "" {
		clientName = "web-relay"
	}
	req.Header.Set("apollographql-client-name", clientName)

	resp, err := g.client.Do(req)
	if err != nil {
		return metrics.TokenData{}, err
	}
	defer resp.Body.Close()

	payloadBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return metrics.TokenData{}, err
	}

	if resp.StatusCode != http.StatusOK {
		return metrics.TokenData{}, parseHTTPError(resp.StatusCode, payloadBytes)
	}

	var gqlRes graphQLResponse
	if err := json.Unmarshal(payloadBytes, &gqlRes); err != nil {
		return metrics.TokenData{}, err
	}

	if len(gqlRes.Errors) > 0 {
		return metrics.TokenData{}, fmt.Errorf("graphql error: %s", gqlRes.Errors[0].Message)
	}

	token := gqlRes.Data.FungibleToken
	if token == nil {
		return metrics.TokenData{}, errors.New("graphql response missing fungibleToken")
	}
	if token.OnchainMarketData == nil {
		return metrics.TokenData{}, errors.New("graphql response missing onchainMarketData")
	}

	values := metrics.NewSet(metrics.Price, metrics.MarketCap)
	values.Set(metrics.Price, token.OnchainMarketData.Price)
	values.Set(metrics.MarketCap, token.OnchainMarketData.MarketCap)

	return metrics.TokenData{
		Name:   token.Name,
		Symbol: token.Symbol,
		Values: values,
	}, nil
}

type graphQLRequest struct {
	Query     string              `json:"query"`
	Variables tokenPriceVariables `json:"variables"`
}

type tokenPriceVariables struct {
	Address string `json:"address"`
	Network string `json:"network"`
}

type graphQLResponse struct {
	Data struct {
		FungibleToken *struct {
			Symbol            string `json:"symbol"`
			Name              string `json:"name"`
			OnchainMarketData *struct {
				Price     decimal.Decimal `json:"price"`
				MarketCap decimal.Decimal `json:"marketCap"`
			} `json:"onchainMarketData"`
		} `json:"fungibleToken"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type errorResponse struct {
	ErrorType   string `json:"errorType"`
	Description string `json:"description"`
	Message     string `json:"message"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Description != "" {
			return fmt.Errorf("api error (%d): %s", status, apiErr.Description)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("api error (%d): %s", status, apiErr.Message)
		}
		if apiErr.ErrorType != "" {
			return fmt.Errorf("api error (%d): %s", status, apiErr.ErrorType)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("api error (%d)", status)
}

var _ MetricsFetcher = (*GraphQL)(nil)
